package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"github.com/dl-alexandre/docdr/pkg/version"
)

// GlobalFlags are the flags every command accepts
type GlobalFlags struct {
	Config       string
	Profile      string
	KeyFile      string
	BucketURL    string
	Org          string
	Admin        string
	OutputFormat types.OutputFormat
	JSON         bool
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	Journal      string
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      logging.Logger = logging.NewNoOpLogger()
)

var rootCmd = &cobra.Command{
	Use:   "docdr",
	Short: "Disaster recovery for Google Workspace documents",
	Long: `docdr backs up every user's Drive documents into a Cloud Storage bucket
and restores them to a local directory.

Backups alternate between full walks of every user's tree and incremental
passes driven by the Drive activity feed.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			return newOutput(cmd).WriteSuccess("version", info)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return err
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	pf.StringVar(&globalFlags.Profile, "profile", "", "Stored service account key to use")
	pf.StringVar(&globalFlags.KeyFile, "key-file", "", "Service account key file (overrides --profile)")
	pf.StringVar(&globalFlags.BucketURL, "bucket-url", "", "Destination bucket, gs://bucket[/prefix]")
	pf.StringVar(&globalFlags.Org, "org", "", "Organization id used as the top folder in the bucket")
	pf.StringVar(&globalFlags.Admin, "admin", "", "Administrator email impersonated to list users")
	pf.StringVar((*string)(&globalFlags.OutputFormat), "output", "", "Output format (json, table)")
	pf.BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	pf.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Only log errors")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&globalFlags.Debug, "debug", false, "Enable debug logging")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "Write JSON logs to this file")
	pf.StringVar(&globalFlags.Journal, "journal", "", "Run journal database (\"-\" disables it)")

	rootCmd.AddCommand(versionCmd)
}

// setup loads the config, folds the global flags into it and builds the logger
func setup(cmd *cobra.Command) error {
	var err error
	if globalFlags.Config != "" {
		cfg, err = config.LoadFrom(globalFlags.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}
	applyGlobalFlags(cfg, globalFlags)
	if err := cfg.Validate(); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	if globalFlags.OutputFormat == "" {
		globalFlags.OutputFormat = cfg.DefaultOutputFormat
	}
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}

	logger, err = logging.NewLogger(logConfigFor(cfg, globalFlags, cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// logConfigFor builds the logger settings for a resolved config and flags
func logConfigFor(c *config.Config, f GlobalFlags, console io.Writer) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.GetLogLevel()
	lc.OutputFile = c.LogFile
	lc.ConsoleWriter = console
	// JSON output owns stdout; keep the console quiet unless asked for
	if f.OutputFormat == types.OutputFormatJSON && !f.Verbose && !f.Debug {
		lc.Level = maxLevel(lc.Level, logging.WARN)
	}
	return lc
}

// applyGlobalFlags overrides config values with the flags that were set
func applyGlobalFlags(c *config.Config, f GlobalFlags) {
	if f.Profile != "" {
		c.CredentialProfile = f.Profile
	}
	if f.KeyFile != "" {
		c.CredentialsFile = f.KeyFile
	}
	if f.BucketURL != "" {
		c.BucketURL = f.BucketURL
	}
	if f.Org != "" {
		c.OrganizationID = f.Org
	}
	if f.Admin != "" {
		c.AdminSubject = f.Admin
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}
	if f.Journal != "" {
		c.JournalPath = f.Journal
	}
	switch {
	case f.Debug:
		c.LogLevel = "debug"
	case f.Verbose:
		c.LogLevel = "verbose"
	case f.Quiet:
		c.LogLevel = "quiet"
	}
}

func maxLevel(a, b logging.LogLevel) logging.LogLevel {
	if a > b {
		return a
	}
	return b
}

func newOutput(cmd *cobra.Command) *config.OutputFormatter {
	return config.NewOutputFormatter(config.OutputOptions{
		Format:      globalFlags.OutputFormat,
		Quiet:       globalFlags.Quiet,
		Verbose:     globalFlags.Verbose,
		Writer:      cmd.OutOrStdout(),
		ErrorWriter: cmd.ErrOrStderr(),
	})
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Close() }()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return utils.ExitSuccess
	}
	reportError(cmd, err)
	return exitCode(err)
}

// exitCode maps an error onto the documented exit codes
func exitCode(err error) int {
	return utils.GetExitCode(utils.CodeForError(err))
}

func reportError(cmd *cobra.Command, err error) {
	var cliErr types.CLIError
	var appErr *utils.AppError
	switch {
	case errors.As(err, &appErr):
		cliErr = appErr.CLIError
	case errors.Is(err, context.Canceled):
		cliErr = utils.NewCLIError(utils.ErrCodeCancelled, "interrupted").Build()
	default:
		cliErr = utils.NewCLIError(utils.CodeForError(err), err.Error()).Build()
	}

	if globalFlags.OutputFormat == types.OutputFormatJSON {
		_ = newOutput(cmd).WriteError(cmd.CommandPath(), cliErr)
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
}
