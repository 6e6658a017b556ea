package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/sosim/internal/engine"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation for a number of ticks",
		Long: `Build the demo world, step it the configured number of ticks and
persist every tick to the configured outputs.

Examples:
  sosim run --ticks 500 --seed 42
  sosim run --config sosim.yaml --fresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ticks") {
				cfg.Sim.Ticks, _ = cmd.Flags().GetInt("ticks")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Sim.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			fresh, _ := cmd.Flags().GetBool("fresh")

			w, err := buildWorld(cfg)
			if err != nil {
				return err
			}
			eng := newEngine(cfg, w)
			out, err := openOutputs(cfg, eng, fresh)
			if err != nil {
				return err
			}
			defer out.Close()

			if out.db != nil {
				if err := out.db.SaveObjects(w); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := eng.RunTicks(ctx, cfg.Sim.Ticks)

			if out.db != nil {
				if err := out.db.SaveObjects(w); err != nil {
					slog.Error("final snapshot failed", "error", err)
				}
			}
			if err := printSummary(cmd, eng); err != nil {
				return err
			}
			if runErr != nil && ctx.Err() == nil {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().Int("ticks", 0, "Number of ticks to run (default from config)")
	cmd.Flags().Uint64("seed", 0, "Seed (default from config, 0 = random)")
	cmd.Flags().Bool("fresh", false, "Clear the database before running")
	return cmd
}

func printSummary(cmd *cobra.Command, eng *engine.Engine) error {
	stats := eng.Stats()
	counts := eng.World.Stats()

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
			"world":  eng.World.ID(),
			"tick":   eng.CurrentTick(),
			"counts": counts,
			"totals": stats,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "world %s stopped at tick %d\n", eng.World.ID(), eng.CurrentTick())
	fmt.Fprintf(w, "  nodes: %d organizations, %d infrastructures, %d environments, %d agents\n",
		counts.Organizations, counts.Infrastructures, counts.Environments, counts.Agents)
	fmt.Fprintf(w, "  events: %d, diagnostics: %d\n", stats.Events, stats.Diagnostics)

	for _, t := range slices.Sorted(maps.Keys(stats.ByType)) {
		fmt.Fprintf(w, "    %-18s %d\n", t, stats.ByType[t])
	}
	for _, c := range slices.Sorted(maps.Keys(stats.ByCode)) {
		fmt.Fprintf(w, "    %-18s %d\n", c, stats.ByCode[c])
	}
	return nil
}
