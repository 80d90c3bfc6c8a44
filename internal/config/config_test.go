package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
)

// clearEnv unsets every variable Load reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BUCKET_URL", "ORGANIZATION_ID", "RUN_STYLE", "GOOGLE_APPLICATION_CREDENTIALS",
		EnvPrefix + "BUCKET_URL", EnvPrefix + "ORGANIZATION_ID", EnvPrefix + "RUN_STYLE",
		EnvPrefix + "LOG_LEVEL", EnvPrefix + "OUTPUT_FORMAT", EnvPrefix + "EXECUTE_WORKERS",
		EnvPrefix + "STREAM_THRESHOLD", EnvPrefix + "CREDENTIALS_FILE", EnvPrefix + "PROFILE",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.ExecuteWorkers != 6 || cfg.WalkWorkers != 4 || cfg.RestoreFolderWorkers != 2 {
		t.Errorf("worker defaults = %d/%d/%d", cfg.WalkWorkers, cfg.ExecuteWorkers, cfg.RestoreFolderWorkers)
	}
	if cfg.MaxDaysSinceLastFull != 30 || cfg.MaxHoursToCompleteFull != 12 {
		t.Errorf("full run thresholds = %d days, %d hours", cfg.MaxDaysSinceLastFull, cfg.MaxHoursToCompleteFull)
	}
	if cfg.GetDequeueTimeout() != time.Minute {
		t.Errorf("dequeue timeout = %v", cfg.GetDequeueTimeout())
	}
	if cfg.StreamThreshold != 1_000_000 {
		t.Errorf("stream threshold = %d", cfg.StreamThreshold)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		errorMsg string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"invalid output format", func(c *Config) { c.DefaultOutputFormat = "xml" }, "invalid output format"},
		{"bad bucket scheme", func(c *Config) { c.BucketURL = "s3://b/p" }, "gs://"},
		{"unknown run style", func(c *Config) { c.RunStyle = "weekly" }, "unknown run style"},
		{"forced abort", func(c *Config) { c.RunStyle = "abort" }, "ABORT"},
		{"zero workers", func(c *Config) { c.ExecuteWorkers = 0 }, "execute workers"},
		{"max retries too high", func(c *Config) { c.MaxRetries = 11 }, "max retries"},
		{"retry delay too low", func(c *Config) { c.RetryBaseDelay = 50 }, "retry base delay"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"lower case run style", func(c *Config) { c.RunStyle = "full" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error = %v, want it to mention %q", err, tt.errorMsg)
			}
		})
	}
}

func TestParseBucketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    BucketLocation
		wantErr bool
	}{
		{in: "gs://backups", want: BucketLocation{Bucket: "backups"}},
		{in: "gs://backups/docdr", want: BucketLocation{Bucket: "backups", Prefix: "docdr"}},
		{in: "gs://backups/a/b/", want: BucketLocation{Bucket: "backups", Prefix: "a/b"}},
		{in: " gs://backups//x ", want: BucketLocation{Bucket: "backups", Prefix: "x"}},
		{in: "backups/docdr", wantErr: true},
		{in: "gs:///docdr", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBucketURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequireDestination(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.RequireDestination(); err == nil {
		t.Error("expected an error without a bucket")
	}
	cfg.BucketURL = "gs://b/p"
	if _, err := cfg.RequireDestination(); err == nil {
		t.Error("expected an error without an organization")
	}
	cfg.OrganizationID = "C123"
	loc, err := cfg.RequireDestination()
	if err != nil {
		t.Fatalf("RequireDestination: %v", err)
	}
	if loc.Bucket != "b" || loc.Prefix != "p" {
		t.Errorf("location = %+v", loc)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := DefaultConfig()
	cfg.BucketURL = "gs://backups/docdr"
	cfg.OrganizationID = "C123"
	cfg.RunStyle = "INCREMENTAL"
	cfg.ExecuteWorkers = 12
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.BucketURL != cfg.BucketURL || loaded.OrganizationID != "C123" || loaded.ExecuteWorkers != 12 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.GetRunStyle() != types.RunStyleIncremental {
		t.Errorf("run style = %q", loaded.GetRunStyle())
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.ExecuteWorkers != DefaultConfig().ExecuteWorkers {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("prefixed variables", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"BUCKET_URL", "gs://env-bucket")
		t.Setenv(EnvPrefix+"EXECUTE_WORKERS", "9")
		t.Setenv(EnvPrefix+"STREAM_THRESHOLD", "2048")
		t.Setenv(EnvPrefix+"OUTPUT_FORMAT", "json")

		cfg, err := LoadFrom(filepath.Join(t.TempDir(), ConfigFileName))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.BucketURL != "gs://env-bucket" || cfg.ExecuteWorkers != 9 || cfg.StreamThreshold != 2048 {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.DefaultOutputFormat != types.OutputFormatJSON {
			t.Errorf("output format = %s", cfg.DefaultOutputFormat)
		}
	})

	t.Run("legacy names", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BUCKET_URL", "gs://legacy/prefix")
		t.Setenv("ORGANIZATION_ID", "C999")
		t.Setenv("RUN_STYLE", "full")

		cfg, err := LoadFrom(filepath.Join(t.TempDir(), ConfigFileName))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.BucketURL != "gs://legacy/prefix" || cfg.OrganizationID != "C999" {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.GetRunStyle() != types.RunStyleFull {
			t.Errorf("run style = %q", cfg.GetRunStyle())
		}
	})

	t.Run("prefixed wins over legacy", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ORGANIZATION_ID", "legacy")
		t.Setenv(EnvPrefix+"ORGANIZATION_ID", "current")

		cfg, err := LoadFrom(filepath.Join(t.TempDir(), ConfigFileName))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.OrganizationID != "current" {
			t.Errorf("OrganizationID = %q", cfg.OrganizationID)
		}
	})
}

func TestGetJournalPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", dir)

	tests := []struct {
		journal string
		want    string
	}{
		{"", filepath.Join(dir, JournalFileName)},
		{"-", ""},
		{"/var/lib/docdr/j.db", "/var/lib/docdr/j.db"},
	}
	for _, tt := range tests {
		t.Run(tt.journal, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.JournalPath = tt.journal
			got, err := cfg.GetJournalPath()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("GetJournalPath = %q, want %q", got, tt.want)
			}
		})
	}
}

type runRows [][]string

func (r runRows) Headers() []string    { return []string{"ID", "Status"} }
func (r runRows) Rows() [][]string     { return r }
func (r runRows) EmptyMessage() string { return "No runs." }

func TestOutputFormatter(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		f := NewOutputFormatter(OutputOptions{Format: types.OutputFormatTable, Writer: &out})
		if err := f.WriteSuccess("runs list", runRows{{"r1", "ok"}}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.String(), "r1") || !strings.Contains(out.String(), "ok") {
			t.Errorf("table output = %q", out.String())
		}
	})

	t.Run("empty table", func(t *testing.T) {
		var out bytes.Buffer
		f := NewOutputFormatter(OutputOptions{Format: types.OutputFormatTable, Writer: &out})
		if err := f.WriteSuccess("runs list", runRows{}); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(out.String()) != "No runs." {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("json envelope", func(t *testing.T) {
		var out bytes.Buffer
		f := NewOutputFormatter(OutputOptions{Format: types.OutputFormatJSON, Writer: &out})
		if err := f.WriteSuccess("status", map[string]string{"style": "FULL"}); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{`"schemaVersion"`, `"command": "status"`, `"style": "FULL"`} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("json output lacks %s: %s", want, out.String())
			}
		}
	})

	t.Run("warnings and key values", func(t *testing.T) {
		var out, errOut bytes.Buffer
		f := NewOutputFormatter(OutputOptions{Format: types.OutputFormatTable, Writer: &out, ErrorWriter: &errOut})
		f.AddWarning("RUN_SKIPPED", "nothing to do", "info")
		if err := f.WriteSuccess("config.show", map[string]interface{}{"workers": 4, "bucketUrl": "gs://b"}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(errOut.String(), "Warning [RUN_SKIPPED]: nothing to do") {
			t.Errorf("stderr = %q", errOut.String())
		}
		s := out.String()
		if strings.Index(s, "bucketUrl") > strings.Index(s, "workers") {
			t.Errorf("keys not sorted: %q", s)
		}
	})

	t.Run("quiet suppresses log", func(t *testing.T) {
		var errOut bytes.Buffer
		f := NewOutputFormatter(OutputOptions{Format: types.OutputFormatTable, Quiet: true, ErrorWriter: &errOut})
		f.Log("written to %s", "x")
		if errOut.Len() != 0 {
			t.Errorf("quiet log wrote %q", errOut.String())
		}
	})
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatSize(1536); got != "1.5 KB" {
		t.Errorf("FormatSize = %q", got)
	}
	if got := FormatSize(0); got != "-" {
		t.Errorf("FormatSize(0) = %q", got)
	}
	if got := TruncateString("abcdefghij", 6); got != "abc..." {
		t.Errorf("TruncateString = %q", got)
	}
	if got := FormatDuration(90 * time.Second); got != "2m0s" {
		t.Errorf("FormatDuration = %q", got)
	}
	if got := FormatTime(time.Time{}, time.Now()); got != "-" {
		t.Errorf("FormatTime(zero) = %q", got)
	}
}
