package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fitsync/fitsync/internal/gatewaytest"
)

var (
	serveMockAddr    string
	serveMockAPIKey  string
	serveMockUserID  string
)

var serveMockCmd = &cobra.Command{
	Use:   "serve-mock",
	Short: "Run the in-process mock Remote Gateway for local development",
	RunE:  runServeMock,
}

func init() {
	serveMockCmd.Flags().StringVar(&serveMockAddr, "addr", ":8787", "listen address")
	serveMockCmd.Flags().StringVar(&serveMockAPIKey, "api-key", "dev-key", "bearer token the mock requires")
	serveMockCmd.Flags().StringVar(&serveMockUserID, "user", "dev-user", "the one user_id the mock authorizes")
}

func runServeMock(cmd *cobra.Command, args []string) error {
	srv := gatewaytest.NewServer(serveMockAPIKey, serveMockUserID)
	fmt.Fprintf(cmd.OutOrStdout(), "mock gateway listening on %s (user=%s)\n", serveMockAddr, serveMockUserID)
	return http.ListenAndServe(serveMockAddr, srv.Handler())
}
