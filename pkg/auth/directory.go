package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/httpclient"
)

const (
	loginPath  = "/api/user/login"
	lookupPath = "/api/user/info"
)

// Session is the result of a successful login.
type Session struct {
	Token   string   `json:"token"`
	Profile *Profile `json:"profile"`
}

// Directory is a client for the user directory API.
type Directory struct {
	baseURL string
	client  *httpclient.Client
}

// NewDirectory builds a directory client for cfg.DirectoryURL.
func NewDirectory(cfg config.AuthConfig, opts ...httpclient.Option) *Directory {
	base := []httpclient.Option{
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithMaxRetries(2),
	}
	if cfg.CACertificate != "" || cfg.InsecureSkipVerify {
		base = append(base, httpclient.WithTLSConfig(&httpclient.TLSConfig{
			CACertificate:      cfg.CACertificate,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}))
	}
	return &Directory{
		baseURL: strings.TrimRight(cfg.DirectoryURL, "/"),
		client:  httpclient.New(append(base, opts...)...),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type directoryUser struct {
	Token    string      `json:"token"`
	UserID   json.Number `json:"userId"`
	GID      string      `json:"gid"`
	UserName string      `json:"userName"`
	TrueName string      `json:"userTrueName"`
	DeptName *string     `json:"deptName"`
	Email    *string     `json:"email"`
	Roles    []string    `json:"roleName"`
}

func (u directoryUser) profile() *Profile {
	p := &Profile{
		UserID:      u.UserID.String(),
		GID:         u.GID,
		Username:    u.UserName,
		DisplayName: u.TrueName,
		Roles:       u.Roles,
	}
	if p.DisplayName == "" {
		p.DisplayName = u.UserName
	}
	if u.DeptName != nil {
		p.Department = *u.DeptName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	return p
}

// Login verifies a username and password. Any failure, including transport
// errors and a false status in the response, wraps ErrUnauthenticated.
func (d *Directory) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{
		"userName": username,
		"passWord": password,
		"UUID":     uuid.NewString(),
	}

	user, err := d.call(ctx, http.MethodPost, d.baseURL+loginPath, body)
	if err != nil {
		slog.Warn("Directory login failed", "user", username, "error", err)
		return nil, err
	}
	if user.Token == "" {
		return nil, fmt.Errorf("%w: login response carries no token", ErrUnauthenticated)
	}
	return &Session{Token: user.Token, Profile: user.profile()}, nil
}

// Lookup resolves a directory user id into a profile.
func (d *Directory) Lookup(ctx context.Context, gid string) (*Profile, error) {
	if strings.TrimSpace(gid) == "" {
		return nil, fmt.Errorf("%w: empty gid", ErrUnauthenticated)
	}

	user, err := d.call(ctx, http.MethodGet, d.baseURL+lookupPath+"?gid="+url.QueryEscape(gid), nil)
	if err != nil {
		slog.Debug("Directory lookup failed", "gid", gid, "error", err)
		return nil, err
	}
	p := user.profile()
	if p.GID == "" {
		p.GID = gid
	}
	return p, nil
}

func (d *Directory) call(ctx context.Context, method, endpoint string, in any) (*directoryUser, error) {
	if d.baseURL == "" {
		return nil, fmt.Errorf("%w: directory is not configured", ErrUnauthenticated)
	}

	var env envelope
	if err := d.client.DoJSON(ctx, method, endpoint, in, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: %s (code %s)", ErrUnauthenticated, env.Message, env.Code)
	}

	var user directoryUser
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: response carries no user", ErrUnauthenticated)
	}
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return nil, fmt.Errorf("%w: malformed user: %v", ErrUnauthenticated, err)
	}
	return &user, nil
}
