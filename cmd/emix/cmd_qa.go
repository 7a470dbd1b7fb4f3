package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/emixlab/emix/internal/cache"
	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/solver"
	"github.com/emixlab/emix/internal/verify"
)

func runQA(cmd *cobra.Command, _ []string) error {
	// QA always runs against an ephemeral store so it never pollutes the
	// configured backend.
	env := verify.Env{
		Platform: ixstore.NewMemoryPlatform(),
		Solver:   solver.New(solver.WithCache(cache.NewMemory(), time.Hour)),
	}
	defer env.Platform.Close()

	outcomes := verify.RunAll(cmd.Context(), env)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Printf("FAIL  %-28s %v\n", o.Name, o.Err)
		} else {
			fmt.Printf("ok    %-28s %s\n", o.Name, o.Elapsed.Round(time.Millisecond))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(outcomes))
	}
	log.Info().Int("checks", len(outcomes)).Msg("all pricing properties hold")
	return nil
}
