package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing the docdr configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the configuration file",
	Long: `Write the effective configuration, defaults plus environment and flags,
to the configuration file.`,
	Example: `  docdr config init --bucket-url gs://dr-bucket/docs --org example.com --admin admin@example.com`,
	RunE:    runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Use 'config show' to see available keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing configuration file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() (string, error) {
	if globalFlags.Config != "" {
		return globalFlags.Config, nil
	}
	return config.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	values, err := configValues(cfg)
	if err != nil {
		return err
	}
	return newOutput(cmd).WriteSuccess("config.show", values)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)
	path, err := configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return invalidArgument(fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}
	if err := cfg.SaveTo(path); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}
	out.Log("Configuration written to %s", path)
	if _, err := cfg.RequireDestination(); err != nil {
		out.AddWarning("NO_DESTINATION", err.Error(), "warning")
	}
	values, err := configValues(cfg)
	if err != nil {
		return err
	}
	return out.WriteSuccess("config.init", values)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)
	path, err := configPath()
	if err != nil {
		return err
	}

	// env and flags stay out of the file
	fileCfg, err := config.ReadFile(path)
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}
	updated, err := setConfigValue(fileCfg, args[0], args[1])
	if err != nil {
		return err
	}
	if err := updated.SaveTo(path); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}

	out.Log("Configuration updated: %s = %s", args[0], args[1])
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   args[0],
		"value": args[1],
	})
}

// configValues flattens the config into its JSON keys
func configValues(c *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{})
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// setConfigValue sets the field with JSON name key (any case) and validates
// the result
func setConfigValue(c *config.Config, key, value string) (*config.Config, error) {
	values, err := configValues(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	current, err := configValues(c)
	if err != nil {
		return nil, err
	}
	for k, v := range current {
		values[k] = v
	}

	name, ok := configKey(key)
	if !ok {
		return nil, invalidArgument(fmt.Sprintf("Unknown configuration key: %s (known: %s)", key, strings.Join(configKeys(), ", ")))
	}

	switch values[name].(type) {
	case float64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, invalidArgument(fmt.Sprintf("%s must be an integer", name))
		}
		values[name] = n
	default:
		values[name] = value
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	updated := config.DefaultConfig()
	if err := json.Unmarshal(data, updated); err != nil {
		return nil, invalidArgument(err.Error())
	}
	if err := updated.Validate(); err != nil {
		return nil, invalidArgument(err.Error())
	}
	return updated, nil
}

// configKeys lists every settable key, including those omitted when empty
func configKeys() []string {
	full := config.DefaultConfig()
	full.BucketURL = "gs://x"
	full.OrganizationID = "x"
	full.AdminSubject = "x"
	full.CredentialsFile = "x"
	full.RunStyle = "x"
	full.SpoolDir = "x"
	full.LogFile = "x"
	full.JournalPath = "x"
	values, _ := configValues(full)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func configKey(key string) (string, bool) {
	for _, k := range configKeys() {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}
