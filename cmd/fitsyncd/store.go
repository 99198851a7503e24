package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and initialize the local Embedded Store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Run migrations and seed the catalogue without syncing",
	RunE:  runStoreInit,
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print outbox size and sync status",
	RunE:  runStoreStatus,
}

func init() {
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storeStatusCmd)
}

func runStoreInit(cmd *cobra.Command, args []string) error {
	boot, err := newBootstrap(func() string { return "" })
	if err != nil {
		return err
	}
	defer boot.Close()

	if err := boot.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "store initialized at %s\n", boot.cfg.Database.Path)
	return nil
}

func runStoreStatus(cmd *cobra.Command, args []string) error {
	boot, err := newBootstrap(func() string { return "" })
	if err != nil {
		return err
	}
	defer boot.Close()

	ctx := cmd.Context()
	if err := boot.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	size, err := boot.store.OutboxSize(ctx)
	if err != nil {
		return fmt.Errorf("read outbox size: %w", err)
	}

	status := boot.engine.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "state=%s outbox_size=%d last_error=%q\n", status.State, size, status.LastError)
	return nil
}
