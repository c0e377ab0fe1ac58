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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config/provider"
)

// HotSections are the config sections a running server applies on reload.
// The rest are read once at startup.
var HotSections = []string{"llm", "workbook", "team"}

// Loader turns provider bytes into a validated Config and, while watching,
// re-runs that pipeline on every change notification.
type Loader struct {
	source   provider.Provider
	base     func() *Config
	onChange func(*Config)
	last     atomic.Pointer[Config]
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange registers the callback that receives each reloaded Config.
// It is not called when a reload fails or changes nothing.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// WithBase seeds every load with a starting Config, typically FromEnv, so
// the file only needs to override what differs.
func WithBase(fn func() *Config) LoaderOption {
	return func(l *Loader) {
		l.base = fn
	}
}

// NewLoader builds a Loader over p.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{source: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the source and returns the resulting Config.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := l.build(data)
	if err != nil {
		return nil, err
	}
	l.last.Store(cfg)
	return cfg, nil
}

// build runs document → ${VAR} expansion → decode over the base → defaults
// → validation.
func (l *Loader) build(data []byte) (*Config, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{}
	if l.base != nil {
		cfg = l.base()
	}
	if err := decodeInto(cfg, expandValue(doc)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Watch reloads on every change until ctx is done. A reload that fails
// keeps the previous Config.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	if changes == nil {
		slog.Info("Config source cannot be watched", "type", l.source.Type())
		<-ctx.Done()
		return ctx.Err()
	}

	slog.Info("Watching config for changes", "type", l.source.Type())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			l.reload(ctx)
		}
	}
}

func (l *Loader) reload(ctx context.Context) {
	prev := l.last.Load()
	cfg, err := l.Load(ctx)
	if err != nil {
		slog.Error("Config reload rejected, keeping the running config", "error", err)
		return
	}

	changed := ChangedSections(prev, cfg)
	if len(changed) == 0 {
		slog.Debug("Config source touched without effective changes")
		return
	}
	slog.Info("Config reloaded", "sections", changed)

	var cold []string
	for _, s := range changed {
		if !slices.Contains(HotSections, s) {
			cold = append(cold, s)
		}
	}
	if len(cold) > 0 {
		slog.Warn("Changed config sections take effect after a restart", "sections", cold)
	}
	if l.onChange != nil {
		l.onChange(cfg)
	}
}

// Close releases the source.
func (l *Loader) Close() error {
	return l.source.Close()
}

// ChangedSections names, by yaml key, the top-level sections that differ
// between prev and next. A nil prev counts as every section changed.
func ChangedSections(prev, next *Config) []string {
	if next == nil {
		return nil
	}
	if prev == nil {
		prev = &Config{}
	}
	a, b := reflect.ValueOf(prev).Elem(), reflect.ValueOf(next).Elem()
	typ := a.Type()

	var out []string
	for i := range typ.NumField() {
		if reflect.DeepEqual(a.Field(i).Interface(), b.Field(i).Interface()) {
			continue
		}
		name, _, _ := strings.Cut(typ.Field(i).Tag.Get("yaml"), ",")
		out = append(out, name)
	}
	return out
}

// parseDocument accepts YAML and, failing that, JSON.
func parseDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	yamlErr := yaml.Unmarshal(data, &doc)
	if yamlErr == nil {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("neither YAML (%v) nor JSON: %w", yamlErr, err)
	}
	return doc, nil
}

func decodeInto(cfg *Config, doc any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(doc)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandValue replaces ${VAR}, ${VAR:-default} and $VAR in every string of
// a decoded document. An empty variable falls back to the default.
func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "$") {
			return val
		}
		return envRef.ReplaceAllStringFunc(val, func(ref string) string {
			m := envRef.FindStringSubmatch(ref)
			if m[2] != "" {
				return os.Getenv(m[2])
			}
			if name, def, ok := strings.Cut(m[1], ":-"); ok {
				if got := os.Getenv(name); got != "" {
					return got
				}
				return def
			}
			return os.Getenv(m[1])
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}
		return out
	default:
		return v
	}
}

// LoadConfig builds the provider described by opts and loads from it. The
// returned Loader owns the provider.
func LoadConfig(ctx context.Context, opts provider.ProviderConfig, loaderOpts ...LoaderOption) (*Config, *Loader, error) {
	p, err := provider.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}
	loader := NewLoader(p, loaderOpts...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		p.Close()
		return nil, nil, err
	}
	return cfg, loader, nil
}

// LoadConfigFile loads a config file on top of the environment defaults.
func LoadConfigFile(ctx context.Context, path string, opts ...LoaderOption) (*Config, *Loader, error) {
	return LoadConfig(ctx, provider.ProviderConfig{
		Type: provider.TypeFile,
		Path: path,
	}, append([]LoaderOption{WithBase(FromEnv)}, opts...)...)
}
