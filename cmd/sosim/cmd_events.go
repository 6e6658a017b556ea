package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/persistence"
	"github.com/talgya/sosim/internal/persistence/eventlog"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query stored log events",
		Long: `Read events from the SQLite store, or from a compressed export file
with --file.

Examples:
  sosim events --limit 20
  sosim events --tick 12
  sosim events --subject patrol-1
  sosim events --diagnostics
  sosim events --file data/events/sos-00000001.jsonl.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			tick, _ := cmd.Flags().GetInt("tick")
			subject, _ := cmd.Flags().GetString("subject")
			diagsOnly, _ := cmd.Flags().GetBool("diagnostics")
			file, _ := cmd.Flags().GetString("file")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if file != "" {
				events, err := eventlog.ReadFile(file)
				if err != nil {
					return err
				}
				return printEvents(cmd, events, jsonOut)
			}

			if cfg.Storage.DBPath == "" {
				return fmt.Errorf("no database configured (storage.db_path)")
			}
			db, err := persistence.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if diagsOnly {
				diags, err := db.RecentDiagnostics(limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(diags)
				}
				for _, d := range diags {
					fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-18s %-16s %-16s %s\n", d.Tick, d.Code, d.SubjectID, d.ActionID, d.Detail)
				}
				return nil
			}

			var events []model.LogEvent
			switch {
			case tick > 0:
				events, err = db.EventsForTick(tick)
			case subject != "":
				events, err = db.EventsForSubject(subject, limit)
			default:
				events, err = db.RecentEvents(limit)
			}
			if err != nil {
				return err
			}
			return printEvents(cmd, events, jsonOut)
		},
	}

	cmd.Flags().Int("limit", 50, "Maximum number of rows")
	cmd.Flags().Int("tick", 0, "Only events of this tick")
	cmd.Flags().String("subject", "", "Only events of this agent")
	cmd.Flags().Bool("diagnostics", false, "Show diagnostics instead of events")
	cmd.Flags().String("file", "", "Read a .jsonl.zst export instead of the database")
	return cmd
}

func printEvents(cmd *cobra.Command, events []model.LogEvent, jsonOut bool) error {
	if jsonOut {
		if events == nil {
			events = []model.LogEvent{}
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(events)
	}
	for _, ev := range events {
		target := ev.Detail
		if ev.PeerID != "" {
			target = "-> " + ev.PeerID
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-12s %-18s %-16s %s\n", ev.Tick, ev.ID, ev.Type, ev.ActionID, target)
	}
	return nil
}
