package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/sosim/internal/api"
	"github.com/talgya/sosim/internal/engine"
	"github.com/talgya/sosim/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API; ticks advance through POST /api/v1/step",
		Long: `Build the demo world and expose it over HTTP. The server has no
clock of its own: an admin client advances the world by posting
{"ticks": n} to /api/v1/step with the configured bearer token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.API.Addr, _ = cmd.Flags().GetString("addr")
			}

			w, err := buildWorld(cfg)
			if err != nil {
				return err
			}
			eng := newEngine(cfg, w)
			out, err := openOutputs(cfg, eng, true)
			if err != nil {
				return err
			}
			defer out.Close()

			recent := engine.NewMemorySink(1000)
			hub := api.NewHub()
			collector := metrics.New()
			eng.AddSink(recent)
			eng.AddSink(hub)
			eng.AddSink(collector)

			srv := &api.Server{
				Eng:             eng,
				DB:              out.db,
				Recent:          recent,
				Hub:             hub,
				Metrics:         collector,
				Addr:            cfg.API.Addr,
				AdminKey:        cfg.API.AdminKey,
				CORSOrigins:     cfg.API.CORSOrigins,
				EventsPerMinute: cfg.API.EventsPerMinute,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = srv.ListenAndServe(ctx)

			if out.db != nil {
				if serr := out.db.SaveObjects(w); err == nil {
					err = serr
				}
			}
			return err
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	return cmd
}
