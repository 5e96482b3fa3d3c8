package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamline/queueserver/internal/config"
	"github.com/beamline/queueserver/internal/printer"
	"github.com/beamline/queueserver/pkg/qsapi"
)

var (
	version string
	commit  string
	date    string
)

// Global flags shared by every subcommand.
var (
	flagConfig  string
	flagHTTP    bool
	flagZMQAddr string
	flagHTTPURI string
	flagUser    string
	flagGroup   string
	flagJSON    bool
	flagTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qserver",
	Short: "Qserver - Command-line client for the run engine queue server",
	Long: `Qserver is a command-line client for the bluesky run engine queue server.

It talks to the queue server manager over its 0MQ control socket (default)
or over the HTTP REST API, and covers queue editing, queue execution,
run engine control, environment management and task submission.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to qserver.yml (default: ~/.config/qserver/qserver.yml)")
	rootCmd.PersistentFlags().BoolVar(&flagHTTP, "http", false, "Use the HTTP REST API instead of the 0MQ control socket")
	rootCmd.PersistentFlags().StringVar(&flagZMQAddr, "zmq-addr", "", "0MQ control socket address (default: tcp://localhost:60615)")
	rootCmd.PersistentFlags().StringVar(&flagHTTPURI, "http-uri", "", "HTTP server URI (default: http://localhost:60610)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "User name attached to requests")
	rootCmd.PersistentFlags().StringVar(&flagGroup, "group", "", "User group attached to requests")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output raw responses in JSON format")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "Timeout for wait commands (default: 60s)")
}

// loadConfig resolves the CLI configuration from file, environment and flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, printer.Error("Failed to load configuration", err.Error(), nil)
	}

	if flagHTTP {
		cfg.Protocol = "http"
	}
	if flagZMQAddr != "" {
		cfg.ZMQ.ControlAddress = flagZMQAddr
	}
	if flagHTTPURI != "" {
		cfg.HTTP.ServerURI = flagHTTPURI
	}
	if flagUser != "" {
		cfg.User.Name = flagUser
	}
	if flagGroup != "" {
		cfg.User.Group = flagGroup
	}
	if flagTimeout > 0 {
		cfg.WaitTimeout = flagTimeout
	}
	return cfg, nil
}

// newClient resolves the configuration and creates a queue server client.
func newClient() (*qsapi.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newClientFromConfig(cfg)
}

// newClientFromConfig creates a queue server client from an already resolved
// configuration.
func newClientFromConfig(cfg *config.Config) (*qsapi.Client, error) {
	opts := []qsapi.Option{qsapi.WithFailedRequestErrors(true)}
	if cfg.User.Name != "" {
		opts = append(opts, qsapi.WithUser(cfg.User.Name))
	}
	if cfg.User.Group != "" {
		opts = append(opts, qsapi.WithUserGroup(cfg.User.Group))
	}

	if cfg.Protocol == "http" {
		if cfg.HTTP.ServerURI != "" {
			opts = append(opts, qsapi.WithHTTPServerURI(cfg.HTTP.ServerURI))
		}
		if cfg.HTTP.Timeout > 0 {
			opts = append(opts, qsapi.WithHTTPTimeout(cfg.HTTP.Timeout))
		}
		client, err := qsapi.NewHTTP(opts...)
		if err != nil {
			return nil, printer.Error("Failed to create HTTP client", err.Error(), nil)
		}
		return client, nil
	}

	if cfg.ZMQ.ControlAddress != "" {
		opts = append(opts, qsapi.WithZMQControlAddress(cfg.ZMQ.ControlAddress))
	}
	if cfg.ZMQ.InfoAddress != "" {
		opts = append(opts, qsapi.WithZMQInfoAddress(cfg.ZMQ.InfoAddress))
	}
	if cfg.ZMQ.SendTimeout > 0 || cfg.ZMQ.RecvTimeout > 0 {
		opts = append(opts, qsapi.WithZMQTimeouts(cfg.ZMQ.SendTimeout, cfg.ZMQ.RecvTimeout))
	}
	client, err := qsapi.NewZMQ(opts...)
	if err != nil {
		return nil, printer.Error("Failed to create 0MQ client", err.Error(), nil)
	}
	return client, nil
}

// outputJSON pretty-prints a value as indented JSON.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// requestError converts a client error into a formatted CLI error.
func requestError(action string, err error) error {
	if qsapi.IsRequestTimeout(err) {
		return printer.Error(
			fmt.Sprintf("Failed to %s: request timed out", action),
			"The queue server did not respond.",
			[]string{
				"Check that the queue server is running",
				"Check the connection address (--zmq-addr / --http-uri)",
			},
		)
	}
	return printer.Error(fmt.Sprintf("Failed to %s", action), err.Error(), nil)
}
