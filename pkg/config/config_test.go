package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Port  int    `yaml:"port"`
}

type validatedConfig struct {
	Port int `yaml:"port"`
}

var errBadPort = errors.New("port out of range")

func (c *validatedConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errBadPort
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", "name: display\nport: 8080\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "display" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DISPLAY_TOKEN", "sekrit-value")
	path := writeFile(t, "config.yaml", "token: ${TEST_DISPLAY_TOKEN}\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "sekrit-value" {
		t.Errorf("token = %q", cfg.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "port: [not a number\n")
	var cfg testConfig
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeFile(t, "config.yaml", "port: 0\n")
	var cfg validatedConfig
	err := Load(path, &cfg)
	if !errors.Is(err, errBadPort) {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadWithDefaultsFallsBack(t *testing.T) {
	def := writeFile(t, "default.yaml", "name: fallback\n")

	var cfg testConfig
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), def, &cfg); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Name != "fallback" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestLoadWithDefaultsNoFallback(t *testing.T) {
	var cfg testConfig
	err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), "", &cfg)
	if err == nil {
		t.Fatal("expected error when neither file exists")
	}
}
