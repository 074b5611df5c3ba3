package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "postgres", DSN: "postgres://localhost/ragline"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres driver without dsn")
	}
}

func TestValidate_MemoryDriverNeedsNoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "memory"
	cfg.Database.DSN = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown database driver")
	}
}

func TestValidate_OverlapMustBeSmallerThanWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Chunking.CharSize = 100
	cfg.Chunking.CharOverlap = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for char_overlap >= char_size")
	}

	cfg = validConfig()
	cfg.Chunking.TokenSize = 50
	cfg.Chunking.TokenOverlap = 80
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for token_overlap >= token_size")
	}
}

func TestValidate_CacheRequiresAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled cache without addrs")
	}
}

func TestValidate_UnknownProviders(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "cohere"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown embedding provider")
	}

	cfg = validConfig()
	cfg.Generation.Provider = "anthropic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown generation provider")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: "memory"}}
	cfg.ApplyDefaults()

	if cfg.Chunking.Strategy != "character" {
		t.Errorf("default strategy: got %q, want character", cfg.Chunking.Strategy)
	}
	if cfg.Chunking.TokenEncoding != "o200k_base" {
		t.Errorf("default encoding: got %q, want o200k_base", cfg.Chunking.TokenEncoding)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("default top_k: got %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Embedding.OpenAI.Dimensions != cfg.Database.Dimensions {
		t.Errorf("embedding dimensions should default to database dimensions")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RAGLINE_TEST_DSN", "postgres://db/test")

	out := string(expandEnvVars([]byte("dsn: ${RAGLINE_TEST_DSN}")))
	if out != "dsn: postgres://db/test" {
		t.Errorf("got %q", out)
	}

	out = string(expandEnvVars([]byte("level: ${RAGLINE_TEST_MISSING:-info}")))
	if out != "level: info" {
		t.Errorf("default expansion: got %q", out)
	}
}
