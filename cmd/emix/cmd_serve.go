package main

import (
	"github.com/spf13/cobra"

	"github.com/emixlab/emix/internal/config"
	"github.com/emixlab/emix/internal/httpapi"
	"github.com/emixlab/emix/internal/solver"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	platform, err := openPlatform(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	server := httpapi.NewServer(platform, cfg.Server.RateLimit, cfg.Server.RateBurst)

	// Definitions passed on the command line are solved up front and their
	// results published through the API.
	if len(args) > 0 {
		ctx := cmd.Context()
		slv := buildSolver(cfg)
		for _, path := range args {
			def, err := loadDefinition(path)
			if err != nil {
				return err
			}
			scen, err := platform.CreateScenario(ctx, def.Model, def.Scenario)
			if err != nil {
				return err
			}
			if err := def.populate(scen); err != nil {
				return err
			}
			if err := scen.Commit(ctx, "built from "+path); err != nil {
				return err
			}
			res, err := slv.Solve(ctx, scen, solver.Options{})
			if err != nil {
				return err
			}
			server.Publish(scen, res)
		}
	}

	return server.ListenAndServe(cfg.Server.Addr, cfg.Server.Timeout)
}
