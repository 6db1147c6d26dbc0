package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/wippyai/wasm-boot/errors"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("boot", pflag.ContinueOnError)
	fs.String("location", "", "")
	fs.String("entry", "", "")
	fs.String("log-level", "", "")
	fs.Int("port", 0, "")
	fs.StringSlice("arg", nil, "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if cfg.Module.Location != "pkg/thoth_manager_bg.wasm" {
		t.Errorf("location = %q", cfg.Module.Location)
	}
	if cfg.Module.Entry != "run_app" {
		t.Errorf("entry = %q", cfg.Module.Entry)
	}
	if !cfg.Module.WASI {
		t.Error("wasi should default to enabled")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8000 {
		t.Errorf("server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.KeepAlive != 10*time.Second {
		t.Errorf("keep_alive = %v", cfg.Server.KeepAlive)
	}
	if cfg.Progress != ProgressAuto || cfg.Log.Format != FormatConsole || cfg.Log.Level != "info" {
		t.Errorf("progress/format/level = %q/%q/%q", cfg.Progress, cfg.Log.Format, cfg.Log.Level)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "boot.yaml", `
module:
  location: file.wasm
  entry: file_entry
  args: [a, b]
  env:
    - THOTH_GRAPHQL_API=https://api.thoth.pub
server:
  port: 9000
  keep_alive: 30s
log:
  level: debug
`)

	tests := []struct {
		env      map[string]string
		name     string
		args     []string
		location string
		entry    string
		level    string
		port     int
	}{
		{
			name:     "file over defaults",
			location: "file.wasm", entry: "file_entry", level: "debug", port: 9000,
		},
		{
			name:     "env over file",
			env:      map[string]string{"BOOT_MODULE_ENTRY": "env_entry", "BOOT_SERVER_PORT": "9100"},
			location: "file.wasm", entry: "env_entry", level: "debug", port: 9100,
		},
		{
			name:     "flags over env",
			env:      map[string]string{"BOOT_MODULE_ENTRY": "env_entry", "BOOT_MODULE_LOCATION": "env.wasm"},
			args:     []string{"--location", "https://cdn.example/app_bg.wasm?v=2", "--log-level", "warn"},
			location: "https://cdn.example/app_bg.wasm?v=2", entry: "env_entry", level: "warn", port: 9000,
		},
		{
			name:     "unset flags keep lower layers",
			args:     []string{"--entry", "flag_entry"},
			location: "file.wasm", entry: "flag_entry", level: "debug", port: 9000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("", testFlags(t, tt.args...))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.File == "" {
				t.Error("File should report boot.yaml")
			}
			if cfg.Module.Location != tt.location {
				t.Errorf("location = %q, want %q", cfg.Module.Location, tt.location)
			}
			if cfg.Module.Entry != tt.entry {
				t.Errorf("entry = %q, want %q", cfg.Module.Entry, tt.entry)
			}
			if cfg.Log.Level != tt.level {
				t.Errorf("level = %q, want %q", cfg.Log.Level, tt.level)
			}
			if cfg.Server.Port != tt.port {
				t.Errorf("port = %d, want %d", cfg.Server.Port, tt.port)
			}
			if cfg.Server.KeepAlive != 30*time.Second {
				t.Errorf("keep_alive = %v", cfg.Server.KeepAlive)
			}
			if len(cfg.Module.Args) != 2 || cfg.Module.Args[1] != "b" {
				t.Errorf("args = %v", cfg.Module.Args)
			}
			env, err := cfg.Module.Environ()
			if err != nil {
				t.Fatalf("Environ: %v", err)
			}
			if env["THOTH_GRAPHQL_API"] != "https://api.thoth.pub" {
				t.Errorf("env = %v", env)
			}
		})
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())

	p := writeFile(t, dir, "custom.yaml", "module:\n  location: custom.wasm\n")
	cfg, err := Load(p, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Module.Location != "custom.wasm" || cfg.File != p {
		t.Errorf("location/file = %q/%q", cfg.Module.Location, cfg.File)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml"), nil); err == nil {
		t.Error("missing explicit config file should fail")
	}

	bad := writeFile(t, dir, "bad.yaml", "module: [unterminated\n")
	if _, err := Load(bad, nil); err == nil {
		t.Error("malformed config file should fail")
	}
}

func TestLoad_ConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "config"), "boot.yaml", "server:\n  dir: dist\n")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Dir != "dist" {
		t.Errorf("dir = %q, want dist", cfg.Server.Dir)
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		env  map[string]string
		name string
	}{
		{name: "progress", env: map[string]string{"BOOT_PROGRESS": "sometimes"}},
		{name: "format", env: map[string]string{"BOOT_LOG_FORMAT": "xml"}},
		{name: "location", env: map[string]string{"BOOT_MODULE_LOCATION": "  "}},
		{name: "port", env: map[string]string{"BOOT_SERVER_PORT": "70000"}},
		{name: "max bytes", env: map[string]string{"BOOT_MODULE_MAX_BYTES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Phase != errors.PhaseConfig || e.Kind != errors.KindInvalidInput {
				t.Errorf("err = %v, want config/invalid_input", err)
			}
		})
	}
}

func TestModule_Parse(t *testing.T) {
	tests := []struct {
		wantEnv    map[string]string
		wantMounts map[string]string
		name       string
		mod        Module
		wantErr    bool
	}{
		{
			name:       "pairs",
			mod:        Module{Env: []string{"A=1", "B=x=y", "C="}, Mounts: []string{"/srv/data:/data", "/tmp"}},
			wantEnv:    map[string]string{"A": "1", "B": "x=y", "C": ""},
			wantMounts: map[string]string{"/data": "/srv/data", "/tmp": "/tmp"},
		},
		{name: "env without value", mod: Module{Env: []string{"A"}}, wantErr: true},
		{name: "env without key", mod: Module{Env: []string{"=1"}}, wantErr: true},
		{name: "mount without guest", mod: Module{Mounts: []string{"/srv:"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, envErr := tt.mod.Environ()
			mounts, mountErr := tt.mod.MountMap()
			if tt.wantErr {
				if envErr == nil && mountErr == nil {
					t.Fatal("expected error")
				}
				return
			}
			if envErr != nil || mountErr != nil {
				t.Fatalf("parse: %v %v", envErr, mountErr)
			}
			for k, v := range tt.wantEnv {
				if env[k] != v {
					t.Errorf("env[%s] = %q, want %q", k, env[k], v)
				}
			}
			for k, v := range tt.wantMounts {
				if mounts[k] != v {
					t.Errorf("mounts[%s] = %q, want %q", k, mounts[k], v)
				}
			}
		})
	}
}
