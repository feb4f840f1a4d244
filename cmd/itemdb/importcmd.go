package main

import (
	"fmt"
	"os"

	"itemdb/internal/archive"
	"itemdb/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Append log documents to the configured journal",
		Long: `Import validates each FILE and appends it unchanged to the configured
journal, where it is read back like any other fragment. A user list replaces
the journal's user list instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			j, err := core.OpenJournal(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := j.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close journal: %w", cerr)
				}
			}()
			for _, path := range args {
				data, err := os.ReadFile(path) // #nosec G304: operator-supplied path
				if err != nil {
					return err
				}
				log, err := archive.DecodeAny(data)
				if err != nil {
					return fmt.Errorf("decode %s: %w", path, err)
				}
				if log.Format == archive.FormatMayUsers {
					err = j.ReplaceUsers(ctx, data)
				} else {
					err = j.Append(ctx, data)
				}
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				a.log.WithFields(logrus.Fields{
					"file":    path,
					"format":  log.Format,
					"records": humanize.Comma(int64(len(log.Records))),
					"journal": a.cfg.Journal.Driver,
				}).Info("imported")
			}
			return nil
		},
	}
}
