package config

import (
	"testing"
	"time"
)

var keys = []string{
	"PORT", "PORT_NO", "JWT_SECRET", "AUTH_SERVICE_URL", "ALLOWED_ORIGINS", "REDIS_URL", "DATABASE_URL",
	"STOCKFISH_PATH", "ANALYSIS_MODE", "ANALYSIS_DEPTH", "ANALYSIS_TIMEOUT_MS", "ANALYSIS_POOL_SIZE",
	"ENGINE_THREADS", "ENGINE_HASH_MB", "MESSAGES_DIR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.StockfishPath != "stockfish" || cfg.AnalysisMode != AnalysisModeSpawn {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AnalysisDepth != 15 || cfg.AnalysisTimeout != 20*time.Second || cfg.EngineHashMB != 16 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.AnalysisPoolSize < 2 || cfg.AnalysisPoolSize > 4 {
		t.Fatalf("pool size out of range: %d", cfg.AnalysisPoolSize)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT_NO", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ANALYSIS_MODE", "POOL")
	t.Setenv("ANALYSIS_TIMEOUT_MS", "1500")
	t.Setenv("ANALYSIS_DEPTH", "-3")
	t.Setenv("REDIS_URL", " redis://localhost:6379/1 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("PORT_NO fallback ignored: %d", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
	if cfg.AnalysisMode != AnalysisModePool || cfg.AnalysisTimeout != 1500*time.Millisecond {
		t.Fatalf("analysis overrides: %+v", cfg)
	}
	if cfg.AnalysisDepth != 15 {
		t.Fatalf("invalid depth should keep default, got %d", cfg.AnalysisDepth)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("redis url not trimmed: %q", cfg.RedisURL)
	}

	t.Setenv("PORT", "8181")
	cfg, _ = Load()
	if cfg.Port != 8181 {
		t.Fatalf("PORT should win over PORT_NO: %d", cfg.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad port")
	}
	clearEnv(t)
	t.Setenv("ANALYSIS_MODE", "cloud")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad analysis mode")
	}
}
