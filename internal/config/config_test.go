package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing config file, got %+v", cfg)
	}

	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	defer os.Chdir(wd)

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Collaborator.QueryPath != "/query" || cfg.Collaborator.UploadPath != "/upload-file" || cfg.Collaborator.ListenPath != "/listen" {
		t.Errorf("unexpected collaborator paths %+v", cfg.Collaborator)
	}
	if cfg.Collaborator.TopK != 5 || !cfg.Collaborator.SearchDocs || cfg.Collaborator.SearchWeb {
		t.Errorf("unexpected query defaults %+v", cfg.Collaborator)
	}
	if cfg.Collaborator.RequestTimeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Collaborator.RequestTimeout)
	}
	if cfg.Chat.MaxConversations != 1024 {
		t.Errorf("expected 1024 cached conversations, got %d", cfg.Chat.MaxConversations)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Errorf("unexpected address %s", cfg.Address())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doclens.yaml")
	content := `
server:
  port: 9090
collaborator:
  base_url: http://rag:8000
  top_k: 8
upload:
  max_size_mb: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOCLENS_COLLABORATOR_SEARCH_WEB", "true")
	t.Setenv("DOCLENS_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Collaborator.BaseURL != "http://rag:8000" || cfg.Collaborator.TopK != 8 {
		t.Errorf("unexpected collaborator config %+v", cfg.Collaborator)
	}
	if !cfg.Collaborator.SearchWeb {
		t.Errorf("expected search_web from env")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level from env, got %s", cfg.Log.Level)
	}
	if cfg.Upload.MaxSizeMB != 10 {
		t.Errorf("expected 10MB, got %d", cfg.Upload.MaxSizeMB)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Collaborator: CollaboratorConfig{BaseURL: "http://x", TopK: 0},
		Upload:       UploadConfig{MaxSizeMB: 1},
		Chat:         ChatConfig{MaxConversations: 8},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero top_k")
	}
	cfg.Collaborator.TopK = 3
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
	cfg.Chat.MaxConversations = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero max_conversations")
	}
	cfg.Chat.MaxConversations = 8
	cfg.Collaborator.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty base_url")
	}
}
