package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("ENGINE_ADDR", "localhost:50051")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxAutoResumes != DefaultMaxAutoResumes {
		t.Fatalf("MaxAutoResumes = %d, want %d", cfg.MaxAutoResumes, DefaultMaxAutoResumes)
	}
	if cfg.Engine.RequestTimeout != 60*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.Engine.RequestTimeout)
	}
	if cfg.Engine.Mode != EngineModeGRPC {
		t.Fatalf("Mode = %q, want %q", cfg.Engine.Mode, EngineModeGRPC)
	}
	if cfg.Notify.Subject != "retention.approvals" {
		t.Fatalf("Subject = %q", cfg.Notify.Subject)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_AUTO_RESUMES", "4")
	t.Setenv("ENGINE_MODE", "Demo")
	t.Setenv("ENGINE_CONNECT_TIMEOUT", "250ms")
	t.Setenv("ENGINE_REQUEST_TIMEOUT", "12")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,,")
	t.Setenv("DB_DRIVER", "MEMORY")
	t.Setenv("RATE_LIMIT_RPS", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxAutoResumes != 4 {
		t.Fatalf("MaxAutoResumes = %d", cfg.MaxAutoResumes)
	}
	if cfg.Engine.ConnectTimeout != 250*time.Millisecond {
		t.Fatalf("ConnectTimeout = %v", cfg.Engine.ConnectTimeout)
	}
	if cfg.Engine.RequestTimeout != 12*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.Engine.RequestTimeout)
	}
	if cfg.Engine.Mode != EngineModeDemo {
		t.Fatalf("Mode = %q", cfg.Engine.Mode)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("Driver = %q", cfg.Store.Driver)
	}
	if cfg.RateLimit.RPS != 0.5 {
		t.Fatalf("RPS = %v", cfg.RateLimit.RPS)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[0] != "http://a.test" || origins[1] != "http://b.test" {
		t.Fatalf("AllowedOrigins() = %v", origins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero ceiling", map[string]string{"MAX_AUTO_RESUMES": "0"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "cassandra"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"empty port", map[string]string{"PORT": ""}},
		{"grpc engine without address", map[string]string{"ENGINE_ADDR": ""}},
		{"unknown engine mode", map[string]string{"ENGINE_MODE": "local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENGINE_ADDR", "localhost:50051")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load() error = nil, want validation error")
			}
		})
	}
}

func TestAllowedOriginsFallsBackToFrontendURL(t *testing.T) {
	cfg := &Config{FrontendURL: "https://retention.example.com"}
	got := cfg.AllowedOrigins()
	if len(got) != 1 || got[0] != "https://retention.example.com" {
		t.Fatalf("AllowedOrigins() = %v", got)
	}
	if cfg.IsDevelopment() {
		t.Fatal("IsDevelopment() = true for production URL")
	}
}
