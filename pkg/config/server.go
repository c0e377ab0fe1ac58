// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig configures the HTTP chat surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// CORSOrigins is the exact-match origin allow-list.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout,omitempty"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout,omitempty"`

	// StreamDelay paces streamed text chunks. Zero sends them back to back.
	StreamDelay time.Duration `yaml:"stream_delay,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"http://localhost:5173"}
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return fmt.Errorf("cors_origins must list explicit origins")
		}
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("cors origin %q must include a scheme", o)
		}
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig configures request authentication.
//
// Example:
//
//	auth:
//	  enabled: true
//	  directory_url: https://smesapi.example.com
//	  jwks_url: https://auth.example.com/.well-known/jwks.json
//	  issuer: https://auth.example.com
//	  audience: insightbot
type AuthConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// DirectoryURL is the base URL of the user directory API.
	DirectoryURL string `yaml:"directory_url,omitempty"`

	// JWKSURL, Issuer and Audience enable bearer token validation.
	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// Timeout bounds a single directory call.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// CACertificate and InsecureSkipVerify configure TLS towards the
	// directory and the JWKS endpoint.
	CACertificate      string `yaml:"ca_certificate,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// SetDefaults applies default values.
func (c *AuthConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}

// Validate checks the auth configuration.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.DirectoryURL == "" && c.JWKSURL == "" {
		return fmt.Errorf("directory_url or jwks_url is required when auth is enabled")
	}
	if c.JWKSURL != "" && (c.Issuer == "" || c.Audience == "") {
		return fmt.Errorf("issuer and audience are required with jwks_url")
	}
	return nil
}

// HasJWT reports whether bearer token validation is configured.
func (c *AuthConfig) HasJWT() bool {
	return c.JWKSURL != ""
}
