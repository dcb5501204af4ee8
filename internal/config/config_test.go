package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StorageDriver != StorageSQLite || cfg.LogLevel != slog.LevelInfo {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SyncInterval != 15*time.Minute || cfg.SyncRetries != 3 {
		t.Errorf("sync defaults = %v, %d", cfg.SyncInterval, cfg.SyncRetries)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("session idle timeout = %v, want 30m", cfg.SessionIdleTimeout)
	}
	if len(cfg.Sync().Centers) != 0 {
		t.Errorf("default centers = %v, want none", cfg.Sync().Centers)
	}
}

func TestLoadSyncArea(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SYNC_CENTERS", "59.3293:18.0686,57.7089:11.9746")
	t.Setenv("SYNC_BBOX", "59.30:18.00:59.36:18.12")
	t.Setenv("SYNC_RADIUS_M", "3000")
	t.Setenv("SYNC_RETRY_BASE", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.SyncCenters) != 2 || cfg.SyncCenters[1].Lat != 57.7089 {
		t.Fatalf("centers = %+v", cfg.SyncCenters)
	}

	sc := cfg.Sync()
	if len(sc.Centers) <= 2 {
		t.Errorf("bbox produced no extra centers: %d", len(sc.Centers))
	}
	if sc.Centers[0].Lat != 59.3293 || sc.Centers[0].Lng != 18.0686 {
		t.Errorf("first center = %+v", sc.Centers[0])
	}
	if sc.Radius != 3000 || sc.BackoffBase != 250*time.Millisecond {
		t.Errorf("sync config = %+v", sc)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "postgres"}},
		{"bad center", map[string]string{"SYNC_CENTERS": "59.3"}},
		{"center out of range", map[string]string{"SYNC_CENTERS": "91:18"}},
		{"inverted bbox", map[string]string{"SYNC_BBOX": "59.4:18:59.3:18.1"}},
		{"zero sync interval", map[string]string{"SYNC_INTERVAL": "0s"}},
		{"negative sync interval", map[string]string{"SYNC_INTERVAL": "-1m"}},
		{"zero idle timeout", map[string]string{"SESSION_IDLE_TIMEOUT": "0s"}},
		{"two providers", map[string]string{"PROVIDER_URL": "http://x", "PROVIDER_SEED_PATH": "seed.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
