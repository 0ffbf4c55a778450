package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage.DBPath != "./data" || c.Storage.BloomBitsPerKey != 10 || c.Storage.ZScanCacheSize != 1024 {
		t.Fatalf("unexpected defaults: %+v", c.Storage)
	}
	if !c.GC.Enabled {
		t.Fatal("gc should default to enabled")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
storage:
  db_path: /var/lib/zsetdb
  bloom_bits_per_key: 14
gc:
  enabled: false
  cron: "15 4 * * *"
metrics:
  addr: ":9100"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage.DBPath != "/var/lib/zsetdb" || c.Storage.BloomBitsPerKey != 14 {
		t.Fatalf("storage = %+v", c.Storage)
	}
	if c.GC.Enabled || c.GC.Cron != "15 4 * * *" {
		t.Fatalf("gc = %+v", c.GC)
	}
	if c.Metrics.Addr != ":9100" || c.Logging.Level != "debug" {
		t.Fatalf("metrics/logging = %+v %+v", c.Metrics, c.Logging)
	}
	// unset fields keep their defaults
	if c.Storage.ZScanCacheSize != 1024 {
		t.Fatalf("zscan_cache_size = %d", c.Storage.ZScanCacheSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZSETDB_DB_PATH", "/tmp/override")
	t.Setenv("ZSETDB_BLOOM_BITS_PER_KEY", "12")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage.DBPath != "/tmp/override" || c.Storage.BloomBitsPerKey != 12 {
		t.Fatalf("env overrides not applied: %+v", c.Storage)
	}
}
