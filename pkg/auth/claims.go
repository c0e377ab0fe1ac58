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

// Package auth identifies the caller of the chat surface.
//
// Two sources of identity are supported and tried in order:
//
//  1. A directory user id in the gid header, resolved through the user
//     directory API into a Profile.
//  2. A bearer JWT validated against a JWKS endpoint, turned into a Profile
//     from its claims.
//
// Configure it in insightbot.yaml:
//
//	auth:
//	  enabled: true
//	  directory_url: "https://smesapi.example.com"
//	  jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	  issuer: "https://auth.example.com"
//	  audience: "insightbot"
//
// Handlers read the caller with ProfileFromContext.
package auth

import (
	"context"
	"slices"
)

type contextKey string

const profileContextKey contextKey = "insightbot_auth_profile"

// Profile is an authenticated user.
type Profile struct {
	UserID      string   `json:"user_id"`
	GID         string   `json:"gid,omitempty"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Department  string   `json:"department,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Identifier is the stable key used to own threads.
func (p *Profile) Identifier() string {
	switch {
	case p.UserID != "":
		return p.UserID
	case p.GID != "":
		return p.GID
	default:
		return p.Username
	}
}

// HasAnyRole reports whether the user holds one of roles.
func (p *Profile) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if slices.Contains(p.Roles, role) {
			return true
		}
	}
	return false
}

// Claims are the validated claims of a bearer token.
type Claims struct {
	Subject string         `json:"sub"`
	Email   string         `json:"email,omitempty"`
	Name    string         `json:"name,omitempty"`
	Roles   []string       `json:"roles,omitempty"`
	Custom  map[string]any `json:"-"`
}

// GetStringClaim returns a custom claim if it is a string.
func (c *Claims) GetStringClaim(key string) string {
	if s, ok := c.Custom[key].(string); ok {
		return s
	}
	return ""
}

// Profile converts the claims into a Profile.
func (c *Claims) Profile() *Profile {
	username := c.GetStringClaim("preferred_username")
	if username == "" {
		username = c.Subject
	}
	return &Profile{
		UserID:      c.Subject,
		Username:    username,
		DisplayName: c.Name,
		Department:  c.GetStringClaim("department"),
		Email:       c.Email,
		Roles:       slices.Clone(c.Roles),
	}
}

// ProfileFromContext returns the authenticated user, or nil.
func ProfileFromContext(ctx context.Context) *Profile {
	if p, ok := ctx.Value(profileContextKey).(*Profile); ok {
		return p
	}
	return nil
}

// ContextWithProfile attaches p to ctx.
func ContextWithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, profileContextKey, p)
}
