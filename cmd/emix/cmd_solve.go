package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emixlab/emix/internal/cache"
	"github.com/emixlab/emix/internal/config"
	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/scenbuild"
	"github.com/emixlab/emix/internal/solver"
)

// definition is the YAML shape of a solvable scenario.
type definition struct {
	Model    string `yaml:"model"`
	Scenario string `yaml:"scenario"`
	Years    []int  `yaml:"years"`

	Graded       bool    `yaml:"graded"`
	NumTechs     int     `yaml:"num_techs"`
	InterestRate float64 `yaml:"interest_rate"`

	Bounds []boundDef `yaml:"bounds"`
	Taxes  []float64  `yaml:"taxes"`
}

type boundDef struct {
	Category string  `yaml:"category"`
	Years    []int   `yaml:"years"`
	Value    float64 `yaml:"value"`
	Unit     string  `yaml:"unit"`
}

func loadDefinition(path string) (*definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition YAML: %w", err)
	}
	if def.Model == "" {
		def.Model = "emission_pricing"
	}
	if def.Scenario == "" {
		def.Scenario = "scenario"
	}
	if len(def.Years) == 0 {
		return nil, fmt.Errorf("definition needs at least one year")
	}
	return &def, nil
}

func (d *definition) populate(scen *ixstore.Scenario) error {
	opts := scenbuild.Options{
		Graded:       d.Graded,
		NumTechs:     d.NumTechs,
		InterestRate: d.InterestRate,
	}
	if d.Graded && opts.NumTechs == 0 {
		opts.NumTechs = scenbuild.DefaultNumTechs
	}
	if err := scenbuild.Setup(scen, d.Years, opts); err != nil {
		return err
	}
	for _, b := range d.Bounds {
		unit := b.Unit
		if unit == "" {
			unit = "tCO2"
		}
		years := b.Years
		if len(years) == 0 {
			years = d.Years
		}
		if err := scenbuild.AttachBound(scen, b.Category, years, b.Value, unit); err != nil {
			return err
		}
	}
	if len(d.Taxes) > 0 {
		if err := scenbuild.AttachTaxes(scen, d.Years, d.Taxes, "USD/tCO2"); err != nil {
			return err
		}
	}
	return nil
}

func openPlatform(cfg config.Config) (*ixstore.Platform, error) {
	return ixstore.Open(cfg.Store.Backend, cfg.Store.DSN)
}

func buildSolver(cfg config.Config) *solver.Solver {
	if !cfg.Cache.Enabled {
		return solver.New()
	}
	var c cache.Cache
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
		c = cache.NewRedis(client)
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using redis result cache")
	} else {
		c = cache.NewMemory()
	}
	ttl := cfg.Cache.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return solver.New(solver.WithCache(c, ttl))
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	def, err := loadDefinition(args[0])
	if err != nil {
		return err
	}

	platform, err := openPlatform(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	ctx := cmd.Context()
	scen, err := platform.CreateScenario(ctx, def.Model, def.Scenario)
	if err != nil {
		return err
	}
	if err := def.populate(scen); err != nil {
		return err
	}
	if err := scen.Commit(ctx, "built from "+args[0]); err != nil {
		return err
	}

	pars, _ := cmd.Flags().GetStringSlice("par")
	res, err := buildSolver(cfg).Solve(ctx, scen, solver.Options{ParList: pars})
	if err != nil {
		return err
	}

	tables, _ := cmd.Flags().GetStringSlice("table")
	out := make(map[string]any, len(tables))
	for _, name := range tables {
		if t, err := res.Var(name); err == nil {
			out[name] = t
			continue
		}
		if t, err := res.Equ(name); err == nil {
			out[name] = t
			continue
		}
		if t, err := res.Par(name); err == nil {
			out[name] = t
			continue
		}
		log.Warn().Str("table", name).Msg("table not in solution")
	}
	out["run_id"] = res.RunID
	out["objective"] = res.Objective

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
