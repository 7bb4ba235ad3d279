package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/application"
	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/identity"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/metrics"
	"github.com/Shugur-Network/capsule-validator/internal/preflight"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the end-to-end time capsule validation",
	Long: `Generates fresh keys, locks a public and a private capsule to the round that
follows the unlock delay, publishes both, waits for that round and decrypts them.
Exits 0 only when both capsules were created, published and decrypted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Metrics.Enabled {
			metrics.RegisterMetrics()
			srv, err := metrics.Serve(cfg.Metrics.Port)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to stop metrics server", zap.Error(err))
				}
			}()
		}

		orchestrator, err := application.New(cfg)
		if err != nil {
			return err
		}

		report := orchestrator.Run(ctx)
		if report.Preflight != nil && !report.Preflight.Ready() {
			renderPreflight(report.Preflight)
		}
		report.Render(os.Stdout)
		exitCode = report.ExitCode()
		return nil
	},
}

var roundCmd = &cobra.Command{
	Use:   "round",
	Short: "Print the current round and the round matching --delay",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := beacon.RegistryFromConfig(cfg.Beacon)
		network, err := registry.ByName(cfg.Beacon.DefaultNetwork)
		if err != nil {
			return err
		}

		client := beacon.NewClient(cfg.Beacon.RequestTimeout)
		calc := beacon.NewCalculator(client, nil)
		timing, err := calc.Plan(cmd.Context(), time.Now().Add(cfg.Capsules.UnlockDelay), network)
		if err != nil {
			return err
		}

		fmt.Printf("Network:       %s (%s)\n", network.Label(), network.ChainHash)
		fmt.Printf("Period:        %s\n", timing.Period)
		fmt.Printf("Current round: %d\n", timing.CurrentRound)
		fmt.Printf("Unlock time:   %s\n", timing.UnlockTime.Format(time.RFC3339))
		fmt.Printf("Target round:  %d (+%d)\n", timing.TargetRound, timing.RoundsNeeded)
		if !timing.ExpectedAt.IsZero() {
			fmt.Printf("Expected at:   %s\n", timing.ExpectedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the configured drand networks",
	Run: func(cmd *cobra.Command, args []string) {
		registry := beacon.RegistryFromConfig(cfg.Beacon)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Chain hash", "Period", "API", "Default"})
		table.SetBorder(true)
		table.SetAutoWrapText(false)
		for _, n := range registry.All() {
			def := ""
			if n.Name == cfg.Beacon.DefaultNetwork {
				def = "*"
			}
			table.Append([]string{n.Label(), n.ChainHash, n.Period.String(), n.API, def})
		}
		table.Render()
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a keypair, or derive the public key of --secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			kp  identity.Keypair
			err error
		)
		if secret, _ := cmd.Flags().GetString("secret"); secret != "" {
			kp, err = identity.FromSecret(secret)
		} else {
			kp, err = identity.Generate()
		}
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(kp)
		}
		fmt.Printf("secret: %s\npublic: %s\n", kp.Secret, kp.Public)
		return nil
	},
}

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check the beacon, relay and external tools without running",
	RunE: func(cmd *cobra.Command, args []string) error {
		checker, err := application.NewPreflight(cfg)
		if err != nil {
			return err
		}
		report := checker.Run(cmd.Context())
		renderPreflight(report)
		if !report.Ready() {
			exitCode = application.ExitFailure
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().String("secret", "", "Hex secret key to derive the public key from")
	keygenCmd.Flags().Bool("json", false, "Print the keypair as JSON")
}

func renderPreflight(report *preflight.Report) {
	fmt.Printf("Preflight: %s (%s)\n", report.Status, report.Duration.Round(time.Millisecond))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Component", "Status", "Message"})
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	for _, c := range report.Components {
		msg := c.Message
		if errMsg, ok := c.Details["error"]; ok {
			msg += ": " + fmt.Sprint(errMsg)
		}
		table.Append([]string{c.Name, string(c.Status), msg})
	}
	table.Render()
}
