package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/psantana5/callguard/internal/config"
	"github.com/psantana5/callguard/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
	locale       string
	logLevel     string

	cfg    *config.Config
	cfgErr error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "callguard",
	Short: "Guarded backend calls for the transfer-booking dashboard",
	Long: `callguard runs the customer dashboard's backend and mapping calls under
per-call-site retry, timeout and cancellation policies, and reports final
failures as one localized message.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.callguard/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "", "message locale, e.g. en, fr-CA or an Accept-Language value")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	v, err := config.New(cfgFile)
	if err != nil {
		cfgErr = err
		return
	}
	flags := rootCmd.PersistentFlags()
	if flags.Changed("locale") {
		v.Set("locale", locale)
	}
	if flags.Changed("log-level") {
		v.Set("log.level", logLevel)
	}
	cfg, cfgErr = config.FromViper(v)
}

func loadConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// newLogger builds the process logger. Command output goes to stdout, so
// logs go to stderr unless a log directory is configured.
func newLogger(c *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(c.Log.Level)
	if c.Log.Dir != "" {
		return logging.NewFileLogger(c.Log.Dir, "callguard", level, c.Log.JSON)
	}
	logger := logging.NewLogger(level, c.Log.JSON)
	logger.SetOutput(os.Stderr)
	return logger, nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}
