package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempClientConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ppcbc.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseJSONConfigSuccess(t *testing.T) {
	path := writeTempClientConfig(t, `{"log":"client.log","statslog":"stats.csv","statsperiod":10}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}
	if cfg.Log != "client.log" || cfg.StatsLog != "stats.csv" || cfg.StatsPeriod != 10 {
		t.Fatalf("unexpected field values: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func TestParseJSONConfigMalformed(t *testing.T) {
	path := writeTempClientConfig(t, `{not json`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err == nil {
		t.Fatalf("parseJSONConfig expected error for malformed JSON")
	}
}
