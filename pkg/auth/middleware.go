// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

// GIDHeader carries a directory user id set by the fronting portal.
const GIDHeader = "gid"

// ProfileLookup resolves a directory user id.
type ProfileLookup interface {
	Lookup(ctx context.Context, gid string) (*Profile, error)
}

// TokenValidator validates a bearer token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Authenticator resolves the caller of an HTTP request.
type Authenticator struct {
	directory ProfileLookup
	validator TokenValidator
}

// NewAuthenticator combines a directory and a token validator. Either may be
// nil.
func NewAuthenticator(directory ProfileLookup, validator TokenValidator) *Authenticator {
	return &Authenticator{directory: directory, validator: validator}
}

// NewFromConfig builds the authenticator and the directory described by cfg.
// It returns nil values when auth is disabled. The returned directory is nil
// when no directory URL is configured.
func NewFromConfig(ctx context.Context, cfg config.AuthConfig) (*Authenticator, *Directory, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid auth config: %w", err)
	}

	a := &Authenticator{}
	var directory *Directory
	if cfg.DirectoryURL != "" {
		directory = NewDirectory(cfg)
		a.directory = directory
	}
	if cfg.HasJWT() {
		validator, err := NewJWTValidator(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create JWT validator: %w", err)
		}
		a.validator = validator
	}
	return a, directory, nil
}

// Authenticate tries the gid header first and the bearer token second.
func (a *Authenticator) Authenticate(r *http.Request) (*Profile, error) {
	ctx := r.Context()

	if gid := strings.TrimSpace(r.Header.Get(GIDHeader)); gid != "" && a.directory != nil {
		p, err := a.directory.Lookup(ctx, gid)
		if err == nil {
			return p, nil
		}
		slog.Debug("gid header rejected, trying bearer token", "error", err)
	}

	token, ok := bearerToken(r)
	if ok && a.validator != nil {
		claims, err := a.validator.ValidateToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return claims.Profile(), nil
	}

	return nil, ErrUnauthenticated
}

// Middleware rejects unauthenticated requests with 401 and stores the
// profile of authenticated ones in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithProfile(r.Context(), p)))
	})
}

// RequireRole rejects authenticated users lacking all of roles with 403.
// It must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := ProfileFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !p.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
