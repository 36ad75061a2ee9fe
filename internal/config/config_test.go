package config

import "testing"

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("ASSISTANT_PROVIDER_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ASSISTANT_PROVIDER_API_KEY", "test-key")
	t.Setenv("ASSISTANT_SERVER_PORT", "9999")
	t.Setenv("ASSISTANT_RETRIEVAL_TOP_K", "12")
	t.Setenv("ASSISTANT_MODULE_DETECTION_THRESHOLD", "0.65")
	t.Setenv("ASSISTANT_CHAT_MODEL", "gpt-4o")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Pipeline.RetrievalTopK != 12 {
		t.Errorf("topK = %d, want 12", cfg.Pipeline.RetrievalTopK)
	}
	if cfg.Pipeline.ModuleDetectionThreshold != 0.65 {
		t.Errorf("threshold = %v, want 0.65", cfg.Pipeline.ModuleDetectionThreshold)
	}
	if cfg.Providers.ChatModel != "gpt-4o" {
		t.Errorf("chat model = %q, want gpt-4o", cfg.Providers.ChatModel)
	}
}

func TestInvalidEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("ASSISTANT_PROVIDER_API_KEY", "test-key")
	t.Setenv("ASSISTANT_SERVER_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != defaults().Server.Port {
		t.Errorf("port = %d, want default %d", cfg.Server.Port, defaults().Server.Port)
	}
}
