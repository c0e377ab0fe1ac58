package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

// directoryServer fakes the user directory API. Known credentials are
// z004zjsw/123456; the only known gid is G001.
func directoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case loginPath:
			var body map[string]string
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
				return
			}
			assert.NotEmpty(t, body["UUID"])
			if body["userName"] != "z004zjsw" || body["passWord"] != "123456" {
				_, _ = w.Write([]byte(`{"status":false,"code":"500","message":"账号或密码错误","data":null}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":true,"code":"310","message":"登陆成功","data":{"token":"tok","userId":7868,"userName":"Yin, Jia Zhen (ext)","roleName":["Admin","XP"],"deptName":null}}`))
		case lookupPath:
			if r.URL.Query().Get("gid") != "G001" {
				_, _ = w.Write([]byte(`{"status":false,"code":"404","message":"用户不存在"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":true,"code":"200","data":{"userId":42,"gid":"G001","userName":"zhang","userTrueName":"张三","deptName":"财务部","email":"zhang@example.com","roleName":["XP"]}}`))
		case "/broken/api/user/info":
			http.Error(w, "boom", http.StatusBadRequest)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDirectory(url string) *Directory {
	cfg := config.AuthConfig{DirectoryURL: url}
	cfg.SetDefaults()
	return NewDirectory(cfg)
}

func TestDirectory_Login(t *testing.T) {
	srv := directoryServer(t)
	d := newDirectory(srv.URL + "/")

	s, err := d.Login(context.Background(), "z004zjsw", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, "7868", s.Profile.UserID)
	assert.Equal(t, "Yin, Jia Zhen (ext)", s.Profile.DisplayName)
	assert.Empty(t, s.Profile.Department)
	assert.Equal(t, []string{"Admin", "XP"}, s.Profile.Roles)

	_, err = d.Login(context.Background(), "z004zjsw", "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Contains(t, err.Error(), "账号或密码错误")
}

func TestDirectory_Lookup(t *testing.T) {
	srv := directoryServer(t)
	d := newDirectory(srv.URL)

	p, err := d.Lookup(context.Background(), "G001")
	require.NoError(t, err)
	assert.Equal(t, &Profile{
		UserID:      "42",
		GID:         "G001",
		Username:    "zhang",
		DisplayName: "张三",
		Department:  "财务部",
		Email:       "zhang@example.com",
		Roles:       []string{"XP"},
	}, p)
	assert.Equal(t, "42", p.Identifier())

	tests := []struct {
		name string
		dir  *Directory
		gid  string
	}{
		{"unknown gid", d, "G404"},
		{"empty gid", d, "  "},
		{"http error", newDirectory(srv.URL + "/broken"), "G001"},
		{"unreachable", newDirectory("http://127.0.0.1:1"), "G001"},
		{"not configured", newDirectory(""), "G001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.dir.Lookup(context.Background(), tt.gid)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.True(t, IsUnauthenticated(err))
		})
	}
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	validator, key, issuer, audience := setupTestValidator(t)

	token, err := createTestJWT(key, issuer, audience, "user-1", map[string]any{
		"email":  "a@example.com",
		"name":   "Alice",
		"roles":  []string{"XP", "Admin"},
		"region": "cn",
	})
	require.NoError(t, err)

	claims, err := validator.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.ElementsMatch(t, []string{"XP", "Admin"}, claims.Roles)
	assert.Equal(t, "cn", claims.GetStringClaim("region"))

	p := claims.Profile()
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.True(t, p.HasAnyRole("Admin"))

	t.Run("wrong audience", func(t *testing.T) {
		bad, err := createTestJWT(key, issuer, "other", "user-1", nil)
		require.NoError(t, err)
		_, err = validator.ValidateToken(context.Background(), bad)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := createTestJWT(key, issuer, audience, "user-1", map[string]any{
			"exp": time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
		_, err = validator.ValidateToken(context.Background(), expired)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := validator.ValidateToken(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewJWTValidator_BadURL(t *testing.T) {
	_, err := NewJWTValidator(context.Background(), "http://127.0.0.1:1/jwks.json", "i", "a")
	assert.Error(t, err)
}

func TestAuthenticator_Middleware(t *testing.T) {
	srv := directoryServer(t)
	validator, key, issuer, audience := setupTestValidator(t)
	token, err := createTestJWT(key, issuer, audience, "user-9", nil)
	require.NoError(t, err)

	a := NewAuthenticator(newDirectory(srv.URL), validator)
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ProfileFromContext(r.Context()).Identifier()))
	}))

	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{"gid", map[string]string{GIDHeader: "G001"}, http.StatusOK, "42"},
		{"bearer", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK, "user-9"},
		{"bad gid falls back to bearer", map[string]string{GIDHeader: "G404", "Authorization": "Bearer " + token}, http.StatusOK, "user-9"},
		{"bad gid only", map[string]string{GIDHeader: "G404"}, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"bad token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"basic scheme", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"nothing", nil, http.StatusUnauthorized, `{"error":"unauthorized"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("Admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		name    string
		profile *Profile
		want    int
	}{
		{"admin", &Profile{UserID: "1", Roles: []string{"Admin"}}, http.StatusNoContent},
		{"viewer", &Profile{UserID: "2", Roles: []string{"XP"}}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.profile != nil {
				req = req.WithContext(ContextWithProfile(req.Context(), tc.profile))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	a, d, err := NewFromConfig(context.Background(), config.AuthConfig{})
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Nil(t, d)

	_, _, err = NewFromConfig(context.Background(), config.AuthConfig{Enabled: true})
	assert.Error(t, err)

	srv := directoryServer(t)
	a, d, err = NewFromConfig(context.Background(), config.AuthConfig{Enabled: true, DirectoryURL: srv.URL})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Nil(t, a.validator)
}
