package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string         // Path to custom config file (optional)
	cfg      *config.Config // Global reference to loaded configuration
	exitCode int            // Set by commands whose outcome is not an error
)

// rootCmd defines the main CLI command for the capsule validator
var rootCmd = &cobra.Command{
	Use:   "capsule-validator",
	Short: "End-to-end validator for Nostr time capsules",
	Long: `Creates a public and a private time capsule locked to a drand round, publishes
both to a relay, waits for the unlock round and checks that both decrypt.`,
	Example: `
  capsule-validator run --relay wss://relay.example.com --delay 30s
  capsule-validator round --network quicknet --delay 5m
  capsule-validator run --config /path/to/config.yaml --log-level debug`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that do not need it
		switch cmd.Name() {
		case "version", "keygen":
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		// Override config with command line flags if specified
		flags := cmd.Flags()
		if flags.Changed("relay") {
			cfg.Relay.URL, _ = flags.GetString("relay")
		}
		if flags.Changed("network") {
			cfg.Beacon.DefaultNetwork, _ = flags.GetString("network")
		}
		if flags.Changed("delay") {
			cfg.Capsules.UnlockDelay, _ = flags.GetDuration("delay")
		}
		if flags.Changed("concurrent") {
			cfg.Capsules.Concurrent, _ = flags.GetBool("concurrent")
		}
		if flags.Changed("timelock-backend") {
			cfg.Capsules.TimelockBackend, _ = flags.GetString("timelock-backend")
		}
		if flags.Changed("crypto-backend") {
			cfg.Capsules.CryptoBackend, _ = flags.GetString("crypto-backend")
		}
		if flags.Changed("log-level") {
			cfg.Logging.Level, _ = flags.GetString("log-level")
		}
		if flags.Changed("log-format") {
			cfg.Logging.Format, _ = flags.GetString("log-format")
		}
		if flags.Changed("log-file") {
			cfg.Logging.FilePath, _ = flags.GetString("log-file")
		}
		if flags.Changed("metrics-port") {
			cfg.Metrics.Port, _ = flags.GetInt("metrics-port")
			cfg.Metrics.Enabled = true
		}

		if err := config.Validate(cfg); err != nil {
			return err
		}
		if err := config.InitLogger(cfg); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Default behavior: show help when no subcommand is provided
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context and returns the
// process exit status.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}

// init is automatically called before main(), sets up flags and subcommands
func init() {
	// Add persistent flags (inherited by all subcommands)
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")

	flags.String("relay", "", "Relay websocket URL (ws:// or wss://)")
	flags.String("network", "", "Name of the drand network to lock capsules to")
	flags.Duration("delay", 0, "Time from now until the capsules unlock")
	flags.Bool("concurrent", false, "Run the public and private workflows concurrently")
	flags.String("timelock-backend", "", "Time-lock backend (drand or tle)")
	flags.String("crypto-backend", "", "Crypto backend (native or nak)")
	flags.String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")
	flags.String("log-file", "", "Path to the log file")
	flags.String("log-format", "console", "Log output format (console or json)")
	flags.Int("metrics-port", 8181, "Serve Prometheus metrics on this port during the run")

	// A simple version subcommand
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of the capsule validator",
		Long:  "Print the version number of the capsule validator along with build information",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")

	rootCmd.AddCommand(versionCmd, runCmd, roundCmd, networksCmd, keygenCmd, preflightCmd)
}
