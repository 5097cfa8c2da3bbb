package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"scheduler": {"enabled": true, "stuck_after": "1h", "timezone": "UTC"},
		"store": {"driver": "sqlite", "path": "./jobs.db", "busy_timeout": "5s"}
	}`)

	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Scheduler.Enabled {
		t.Fatalf("decoded config = %+v", cfg)
	}
	if cfg.Store == nil || cfg.Store.Driver != "sqlite" {
		t.Fatalf("store section = %+v", cfg.Store)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./cronbot.log
scheduler:
  enabled: true
  stuck_after: 30m
`)

	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.File.Path != "./cronbot.log" {
		t.Fatalf("yaml file path = %q", cfg.Logging.File.Path)
	}
	if cfg.Scheduler.StuckAfter != "30m" {
		t.Fatalf("stuck_after = %q", cfg.Scheduler.StuckAfter)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json",
			file:    "config.json",
			content: `{"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "scheduler": {"enabled": true}, "workres": 3}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
scheduler:
  enabled: true
  retry_max: 3
`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, tt.file, tt.content)
			if _, err := NewManager(p).Parse(); err == nil {
				t.Fatal("unknown key accepted")
			}
		})
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"scheduler":{"enabled":true}}{"extra":1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("scheduler.stuck_after", " 90m "); err != nil || d != 90*time.Minute {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if _, err := ParseDurationField("scheduler.stuck_after", "ninety minutes"); err == nil {
		t.Fatal("bad duration accepted")
	}
	if _, err := ParseDurationField("scheduler.stuck_after", "-1m"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("store.busy_timeout", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{Enabled: true},
	}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug", Console: true},
		Scheduler: SchedulerConfig{Enabled: true},
		Store:     &StoreConfig{Driver: "sqlite", Path: "./jobs.db"},
	}

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	want := []string{"logging", "store"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs for changed sections")
	}

	if changed, _ := SummarizeChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}

	// Omitted events block equals the explicit defaults.
	withEvents := *newCfg
	withEvents.Events = &EventsConfig{Enabled: true, RatePerSec: 5, Burst: 10}
	if changed, _ := SummarizeChange(newCfg, &withEvents); len(changed) != 0 {
		t.Fatalf("default events block reported as change: %v", changed)
	}
}

func TestHashConfigStable(t *testing.T) {
	t.Parallel()
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	if hashConfig(cfg) != hashConfig(&Config{Logging: LoggingConfig{Level: "info"}}) {
		t.Fatal("equal configs hash differently")
	}
	if hashConfig(cfg) == hashConfig(&Config{Logging: LoggingConfig{Level: "debug"}}) {
		t.Fatal("different configs hash equal")
	}
	if hashConfig(nil) != 0 {
		t.Fatal("nil config must hash to 0")
	}
}
