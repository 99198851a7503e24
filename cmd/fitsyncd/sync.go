package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var syncUserID string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync engine against the local store",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full sync pass and exit",
	RunE:  runSyncOnce,
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run full sync passes on an interval until interrupted",
	RunE:  runSyncWatch,
}

func init() {
	syncCmd.PersistentFlags().StringVar(&syncUserID, "user", "", "active session user id")
	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncWatchCmd)
}

func currentUserID() string { return syncUserID }

func runSyncOnce(cmd *cobra.Command, args []string) error {
	boot, err := newBootstrap(currentUserID)
	if err != nil {
		return err
	}
	defer boot.Close()

	ctx := cmd.Context()
	if err := boot.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	if err := boot.engine.FullSync(ctx); err != nil {
		return fmt.Errorf("full sync: %w", err)
	}

	status := boot.engine.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "sync complete: state=%s queue=%d\n", status.State, status.QueueSize)
	return nil
}

func runSyncWatch(cmd *cobra.Command, args []string) error {
	boot, err := newBootstrap(currentUserID)
	if err != nil {
		return err
	}
	defer boot.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := boot.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	boot.StartBackupCoordinator(ctx)
	boot.engine.StartRealtimeSync(ctx)
	defer boot.engine.CleanupRealtimeSync()

	statusCh, unsubscribe := boot.engine.SubscribeStatus()
	defer unsubscribe()
	go func() {
		for s := range statusCh {
			boot.logger.Info("sync status", "state", s.State, "queue_size", s.QueueSize, "last_error", s.LastError)
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	if err := boot.engine.FullSync(ctx); err != nil {
		boot.logger.Error("initial sync failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			os.Stdout.WriteString("shutdown complete\n")
			return nil
		case <-ticker.C:
			if err := boot.engine.FullSync(ctx); err != nil {
				boot.logger.Error("sync pass failed", "error", err)
			}
		}
	}
}
