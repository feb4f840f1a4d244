package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"itemdb/internal/archive"
	"itemdb/pkg/domain"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

func inspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Decode log documents of any generation and summarise them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := inspectFile(cmd.OutOrStdout(), path); err != nil {
					a.log.WithError(err).WithField("file", path).Error("inspect failed")
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%s could not be decoded", english.Plural(failed, "file", ""))
			}
			return nil
		},
	}
}

func inspectFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path) // #nosec G304: operator-supplied path
	if err != nil {
		return err
	}
	log, err := archive.DecodeAny(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: %s, %s, written %s\n  %s\n",
		path, log.Format, humanize.Bytes(uint64(len(data))), log.Timestamp.UTC().Format(time.RFC3339), summarize(log))
	return err
}

var kindNouns = []struct {
	kind             domain.RecordKind
	singular, plural string
}{
	{domain.KindItem, "item", "items"},
	{domain.KindEntry, "entry", "entries"},
	{domain.KindVote, "vote", "votes"},
	{domain.KindOrdinal, "ordinal", "ordinals"},
	{domain.KindUser, "user record", "user records"},
}

// summarize counts a document's records by kind.
func summarize(log *archive.Log) string {
	counts := make(map[domain.RecordKind]int)
	for _, rec := range log.Records {
		counts[rec.Kind()]++
	}
	parts := make([]string, 0, len(kindNouns)+1)
	for _, k := range kindNouns {
		n := counts[k.kind]
		parts = append(parts, humanize.Comma(int64(n))+" "+english.PluralWord(n, k.singular, k.plural))
	}
	n := len(log.Users)
	parts = append(parts, humanize.Comma(int64(n))+" "+english.PluralWord(n, "password", ""))
	return english.OxfordWordSeries(parts, "and")
}
