package config

import "testing"

type envTestConfig struct {
	Addr string `env:"WAYFARER_QUEST_TEST_ADDR" envDefault:"127.0.0.1:7000"`
	Name string `env:"WAYFARER_QUEST_TEST_NAME"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7000" {
		t.Fatalf("addr = %q, want default", cfg.Addr)
	}
}

func TestParseEnvReadsValues(t *testing.T) {
	t.Setenv("WAYFARER_QUEST_TEST_ADDR", "0.0.0.0:9000")
	t.Setenv("WAYFARER_QUEST_TEST_NAME", "wayfarer")

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Name != "wayfarer" {
		t.Fatalf("name = %q", cfg.Name)
	}
}
