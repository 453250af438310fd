package config

import (
	"testing"
)

type sampleConfig struct {
	Port int `mapstructure:"port"`
	DB   struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"db"`
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "9090")
	t.Setenv("SAMPLE_DB_HOST", "db.internal")
	t.Setenv("SAMPLE_DB_PORT", "5433")

	var cfg sampleConfig
	if err := Load("SAMPLE_", &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.DB.Host != "db.internal" || cfg.DB.Port != 5433 {
		t.Errorf("db = %+v", cfg.DB)
	}
}

func TestLoadIgnoresOtherPrefixes(t *testing.T) {
	t.Setenv("OTHER_PORT", "1234")

	var cfg sampleConfig
	if err := Load("SAMPLE_", &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port == 1234 {
		t.Error("picked up a variable outside the prefix")
	}
}
