// Command itemdb inspects, converts and imports record log documents and
// serves a journal over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"itemdb/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// cli runs the command line and returns the process exit code.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries what the subcommands share once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "itemdb",
		Short:         "Record log tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (YAML)")

	cmd.AddCommand(
		inspectCmd(a),
		convertCmd(a),
		importCmd(a),
		statsCmd(a),
		serveCmd(a),
	)
	return cmd
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logrus.New()
	log.SetOutput(stderr)
	if err := cfg.ConfigureLogger(log); err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}
