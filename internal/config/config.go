package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// JournalFileName is the default run journal inside the config directory
	JournalFileName = "journal.db"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "DOCDR_"
)

// Config holds application configuration
type Config struct {
	// BucketURL is the destination, gs://bucket[/prefix]
	BucketURL string `json:"bucketUrl,omitempty"`

	// OrganizationID names the organisation folder under the bucket prefix
	OrganizationID string `json:"organizationId,omitempty"`

	// AdminSubject is the administrator impersonated for directory and
	// activity calls
	AdminSubject string `json:"adminSubject,omitempty"`

	// CredentialsFile is a service-account key file. When empty the key
	// stored under CredentialProfile is used.
	CredentialsFile   string `json:"credentialsFile,omitempty"`
	CredentialProfile string `json:"credentialProfile"`

	// RunStyle forces FULL or INCREMENTAL; empty lets the run markers decide
	RunStyle string `json:"runStyle,omitempty"`

	MaxDaysSinceLastFull   int `json:"maxDaysSinceLastFull"`
	MaxHoursToCompleteFull int `json:"maxHoursToCompleteFull"`

	WalkWorkers          int `json:"walkWorkers"`
	ReconcileWorkers     int `json:"reconcileWorkers"`
	ExecuteWorkers       int `json:"executeWorkers"`
	ConsolidateWorkers   int `json:"consolidateWorkers"`
	RestoreFolderWorkers int `json:"restoreFolderWorkers"`
	RestoreFileWorkers   int `json:"restoreFileWorkers"`

	// DequeueTimeout is in seconds
	DequeueTimeout      int    `json:"dequeueTimeout"`
	ActivityActionLimit int    `json:"activityActionLimit"`
	StreamThreshold     int64  `json:"streamThreshold"`
	SpoolDir            string `json:"spoolDir,omitempty"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the default request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`
	// LogFile receives JSON log lines, rotated by size
	LogFile string `json:"logFile,omitempty"`

	// JournalPath is the run journal; "-" disables it
	JournalPath string `json:"journalPath,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CredentialProfile:      "default",
		MaxDaysSinceLastFull:   utils.DefaultMaxDaysSinceLastFull,
		MaxHoursToCompleteFull: utils.DefaultMaxHoursToCompleteFull,
		WalkWorkers:            utils.DefaultWalkWorkers,
		ReconcileWorkers:       utils.DefaultReconcileWorkers,
		ExecuteWorkers:         utils.DefaultExecuteWorkers,
		ConsolidateWorkers:     utils.DefaultConsolidateWorkers,
		RestoreFolderWorkers:   utils.DefaultRestoreFolderWorkers,
		RestoreFileWorkers:     utils.DefaultRestoreFileWorkers,
		DequeueTimeout:         int(utils.DefaultDequeueTimeout / time.Second),
		ActivityActionLimit:    utils.DefaultActivityActionLimit,
		StreamThreshold:        utils.StreamThresholdBytes,
		MaxRetries:             3,
		RetryBaseDelay:         1000, // 1 second
		RequestTimeout:         300,
		DefaultOutputFormat:    types.OutputFormatTable,
		LogLevel:               "normal",
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file
func LoadFrom(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ReadFile returns the defaults overlaid with the file at path, ignoring the
// environment. A missing file yields the defaults.
func ReadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// loadFromEnv applies DOCDR_ variables, then the unprefixed names older
// deployments set
func (c *Config) loadFromEnv() {
	setString := func(dst *string, names ...string) {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, name string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.BucketURL, EnvPrefix+"BUCKET_URL", "BUCKET_URL")
	setString(&c.OrganizationID, EnvPrefix+"ORGANIZATION_ID", "ORGANIZATION_ID")
	setString(&c.RunStyle, EnvPrefix+"RUN_STYLE", "RUN_STYLE")
	setString(&c.AdminSubject, EnvPrefix+"ADMIN_SUBJECT")
	setString(&c.CredentialsFile, EnvPrefix+"CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.CredentialProfile, EnvPrefix+"PROFILE")
	setString(&c.SpoolDir, EnvPrefix+"SPOOL_DIR")
	setString(&c.LogLevel, EnvPrefix+"LOG_LEVEL")
	setString(&c.LogFile, EnvPrefix+"LOG_FILE")
	setString(&c.JournalPath, EnvPrefix+"JOURNAL")
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}

	setInt(&c.MaxDaysSinceLastFull, "MAX_DAYS_SINCE_LAST_FULL")
	setInt(&c.MaxHoursToCompleteFull, "MAX_HOURS_TO_COMPLETE_FULL")
	setInt(&c.WalkWorkers, "WALK_WORKERS")
	setInt(&c.ReconcileWorkers, "RECONCILE_WORKERS")
	setInt(&c.ExecuteWorkers, "EXECUTE_WORKERS")
	setInt(&c.ConsolidateWorkers, "CONSOLIDATE_WORKERS")
	setInt(&c.RestoreFolderWorkers, "RESTORE_FOLDER_WORKERS")
	setInt(&c.RestoreFileWorkers, "RESTORE_FILE_WORKERS")
	setInt(&c.DequeueTimeout, "DEQUEUE_TIMEOUT")
	setInt(&c.ActivityActionLimit, "ACTIVITY_ACTION_LIMIT")
	setInt(&c.MaxRetries, "MAX_RETRIES")
	setInt(&c.RetryBaseDelay, "RETRY_BASE_DELAY")
	setInt(&c.RequestTimeout, "REQUEST_TIMEOUT")
	if v := os.Getenv(EnvPrefix + "STREAM_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.StreamThreshold = n
		}
	}
}

// Save writes the configuration to the default config file
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path with owner-only permissions
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field ranges. The destination is checked separately by
// RequireDestination since not every command needs one.
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	if c.BucketURL != "" {
		if _, err := ParseBucketURL(c.BucketURL); err != nil {
			return err
		}
	}

	if c.RunStyle != "" {
		style, err := types.ParseRunStyle(c.RunStyle)
		if err != nil {
			return err
		}
		if style == types.RunStyleAbort {
			return fmt.Errorf("run style ABORT cannot be forced")
		}
	}

	if c.MaxDaysSinceLastFull < 1 {
		return fmt.Errorf("max days since last full must be positive, got: %d", c.MaxDaysSinceLastFull)
	}
	if c.MaxHoursToCompleteFull < 1 {
		return fmt.Errorf("max hours to complete full must be positive, got: %d", c.MaxHoursToCompleteFull)
	}

	for name, n := range map[string]int{
		"walk":           c.WalkWorkers,
		"reconcile":      c.ReconcileWorkers,
		"execute":        c.ExecuteWorkers,
		"consolidate":    c.ConsolidateWorkers,
		"restore folder": c.RestoreFolderWorkers,
		"restore file":   c.RestoreFileWorkers,
	} {
		if n < 1 || n > 64 {
			return fmt.Errorf("%s workers must be between 1 and 64, got: %d", name, n)
		}
	}

	if c.DequeueTimeout < 1 {
		return fmt.Errorf("dequeue timeout must be positive, got: %d", c.DequeueTimeout)
	}
	if c.ActivityActionLimit < 1 {
		return fmt.Errorf("activity action limit must be positive, got: %d", c.ActivityActionLimit)
	}
	if c.StreamThreshold < 1 {
		return fmt.Errorf("stream threshold must be positive, got: %d", c.StreamThreshold)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}
	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequireDestination checks what backup and restore need to address the
// bucket
func (c *Config) RequireDestination() (BucketLocation, error) {
	if c.BucketURL == "" {
		return BucketLocation{}, fmt.Errorf("bucket URL is not set (config bucketUrl, %sBUCKET_URL or --bucket-url)", EnvPrefix)
	}
	if c.OrganizationID == "" {
		return BucketLocation{}, fmt.Errorf("organization id is not set (config organizationId, %sORGANIZATION_ID or --org)", EnvPrefix)
	}
	return ParseBucketURL(c.BucketURL)
}

// BucketLocation is a parsed bucket URL
type BucketLocation struct {
	Bucket string
	Prefix string
}

// ParseBucketURL splits gs://bucket/some/prefix. The prefix has no leading
// or trailing slash.
func ParseBucketURL(raw string) (BucketLocation, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "gs://")
	if !ok {
		return BucketLocation{}, fmt.Errorf("invalid bucket URL %q: must start with gs://", raw)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return BucketLocation{}, fmt.Errorf("invalid bucket URL %q: no bucket name", raw)
	}
	return BucketLocation{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

// GetLogLevel returns the configured level
func (c *Config) GetLogLevel() logging.LogLevel {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetDequeueTimeout returns the worker idle timeout as a duration
func (c *Config) GetDequeueTimeout() time.Duration {
	return time.Duration(c.DequeueTimeout) * time.Second
}

// GetRunStyle returns the forced run style, or "" to let the markers decide
func (c *Config) GetRunStyle() types.RunStyle {
	style, _ := types.ParseRunStyle(c.RunStyle)
	return style
}

// GetJournalPath resolves the journal location; "" means no journal
func (c *Config) GetJournalPath() (string, error) {
	switch c.JournalPath {
	case "-":
		return "", nil
	case "":
		dir, err := GetConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, JournalFileName), nil
	}
	return c.JournalPath, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "docdr"), nil
}
