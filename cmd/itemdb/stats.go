package main

import (
	"fmt"
	"time"

	"itemdb/internal/archive"
	"itemdb/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the configured archive and report what it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			arc, err := core.OpenArchive(ctx, a.cfg, archive.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := arc.Close(ctx); cerr != nil && err == nil {
					err = cerr
				}
			}()
			rec := core.NewExpvarMetricsRecorder("")
			w, err := core.OpenWorld(ctx, a.cfg, arc, core.WithLogger(a.log), core.WithMetrics(rec))
			if err != nil {
				return err
			}
			s := w.Stats()
			loadMS := rec.Snapshot().DurationsMS["load"]
			out := cmd.OutOrStdout()
			for _, row := range []struct {
				label string
				n     int
			}{
				{"items", s.Items},
				{"entries", s.Entries},
				{"votes", s.Votes},
				{"ordinals", s.Ordinals},
				{"users", s.Users},
			} {
				if _, err := fmt.Fprintf(out, "%-9s %s\n", row.label, humanize.Comma(int64(row.n))); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(out, "%-9s %s\n", "loaded in", time.Duration(loadMS*float64(time.Millisecond)).Round(time.Microsecond))
			return err
		},
	}
}
