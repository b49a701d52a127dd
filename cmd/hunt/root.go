package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eduzsantillan/scavenger-hunt/internal/logging"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

// app carries the state shared by every subcommand.
type app struct {
	dbPath   string
	logLevel string
	emf      bool
	store    *store.SQLiteStore
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "hunt",
		Short: "Run the scavenger hunt verification pipeline locally",
		Long: `hunt manages a local scavenger hunt: the item catalog, teams and
sessions, simulated photo uploads and completion status.

Examples:
  hunt item add wolf --name Wolf --synonyms "gray wolf"
  hunt group create --kind team --name "Red Foxes" --items wolf,owl
  hunt upload <groupId> wolf --labels "wolf:98,snow:80"
  hunt status <groupId>`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "hunt.db", "SQLite database path")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.emf, "emf", false, "Print EMF metric lines to stderr")

	root.AddCommand(newItemCmd(a), newGroupCmd(a), newUploadCmd(a), newStatusCmd(a))
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	logging.InitWithLevel(a.logLevel)
	if a.emf {
		metrics.SetOutput(cmd.ErrOrStderr())
	} else {
		metrics.SetOutput(io.Discard)
	}

	st, err := store.OpenSQLite(cmd.Context(), a.dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.dbPath, err)
	}
	a.store = st
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
