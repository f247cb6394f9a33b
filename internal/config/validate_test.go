package config

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestValidateDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Install.TempDir = "/var/tmp"
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
}

func TestValidateFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 2
	cfg.Install.TempDir = "relative/tmp"
	cfg.Install.MaxDownloads = 0
	cfg.Target.Local = false
	cfg.Target.Host = ""
	cfg.Server.Addr = "no-port"
	cfg.Log.Level = "trace"

	err := Validate(cfg)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	want := []string{
		"version must be 1",
		"install.temp_dir must resolve to an absolute path",
		"install.max_downloads must be > 0",
		"target: remote destination requires a host",
		"server.addr",
		"log.level",
	}
	joined := strings.Join(validation.Problems, "\n")
	for _, fragment := range want {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected problem containing %q, got:\n%s", fragment, joined)
		}
	}
}

func TestTemplateIsValidYAML(t *testing.T) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(Template(TemplateOptions{})), &doc); err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	for _, key := range []string{"tools", "install", "target", "steam", "server", "log"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("template is missing %q section", key)
		}
	}
}

func TestTemplateTargetVariants(t *testing.T) {
	var local struct {
		Target map[string]any `yaml:"target"`
	}
	if err := yaml.Unmarshal([]byte(Template(TemplateOptions{Local: true})), &local); err != nil {
		t.Fatalf("local template does not parse: %v", err)
	}
	if local.Target["local"] != true {
		t.Fatalf("expected local target, got %#v", local.Target)
	}
	if _, ok := local.Target["host"]; ok {
		t.Fatalf("local template should not carry a host: %#v", local.Target)
	}

	var remote struct {
		Target map[string]any `yaml:"target"`
	}
	if err := yaml.Unmarshal([]byte(Template(TemplateOptions{Host: "10.0.0.7", User: "gamer"})), &remote); err != nil {
		t.Fatalf("remote template does not parse: %v", err)
	}
	if remote.Target["host"] != "10.0.0.7" || remote.Target["user"] != "gamer" {
		t.Fatalf("unexpected remote target: %#v", remote.Target)
	}
	if remote.Target["library_dir"] != "/home/gamer/.local/share/Steam/steamapps/common" {
		t.Fatalf("unexpected library_dir: %v", remote.Target["library_dir"])
	}
}
