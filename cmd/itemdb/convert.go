package main

import (
	"fmt"
	"os"
	"time"

	"itemdb/internal/archive"
	"itemdb/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func convertCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Rewrite a log document of any generation in the current one",
		Long: `Convert decodes IN, which may be of any known generation, and writes
its records to OUT as a single current-generation dump. A user list stays a
user list. OUT may be - for standard output.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) // #nosec G304: operator-supplied path
			if err != nil {
				return err
			}
			log, err := archive.DecodeAny(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if check {
				if err := replay(a, log); err != nil {
					return fmt.Errorf("check %s: %w", args[0], err)
				}
			}
			at := log.Timestamp
			if at.IsZero() {
				at = time.Now().UTC()
			}
			var out []byte
			if log.Format == archive.FormatMayUsers {
				out, err = archive.EncodeUserList(log.Users, at)
			} else {
				out, err = archive.EncodeDump(log.Records, log.Users, at)
			}
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if args[1] == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(args[1], out, 0o600); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"from":    log.Format,
				"records": humanize.Comma(int64(len(log.Records))),
				"size":    humanize.Bytes(uint64(len(out))),
			}).Info("converted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "replay the records into a world and fail on broken edit chains")
	return cmd
}

// replay loads a decoded document into an empty world.
func replay(a *app, log *archive.Log) error {
	w, err := core.New(core.WithLogger(a.log), core.WithCacheSize(a.cfg.World.CacheSize))
	if err != nil {
		return err
	}
	return w.LoadRecords(log.Records, log.Users)
}
