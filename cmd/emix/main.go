package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "emix"
	version = "v0.3.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Emission-pricing scenarios for linear energy-system models",
		Version: version,
		Long: `emix builds small energy-system scenarios, solves them as linear
programs through HiGHS, and derives emission prices from the constraint
duals. Scenarios are stored versioned in a memory, sqlite or postgres
backend.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to emix.yaml (optional)")

	solveCmd := &cobra.Command{
		Use:   "solve <definition.yaml>",
		Short: "Build, commit and solve a scenario definition",
		Long:  "Reads a YAML scenario definition, populates and commits the scenario, solves it, and prints the requested output tables as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}
	solveCmd.Flags().StringSlice("par", nil, "Derived parameters to retain (df_year, df_period, levelized_cost)")
	solveCmd.Flags().StringSlice("table", []string{"OBJ", "PRICE_EMISSION", "PRICE_EMISSION_NEW", "EMISS"}, "Output tables to print")

	qaCmd := &cobra.Command{
		Use:   "qa",
		Short: "Run the emission-pricing property suite",
		Long:  "Solves the reference scenarios and checks the analytic pricing properties: discounted growth under cumulative bounds, flat prices under per-period bounds, and price/tax/bound duality",
		RunE:  runQA,
	}

	serveCmd := &cobra.Command{
		Use:   "serve [definition.yaml...]",
		Short: "Serve the scenario catalog and published results over HTTP",
		Long:  "Starts the JSON API. Scenario definitions given as arguments are solved at startup and their results published under /v1/scenarios/{model}/{scenario}/{version}",
		Args:  cobra.ArbitraryArgs,
		RunE:  runServe,
	}

	rootCmd.AddCommand(solveCmd, qaCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
