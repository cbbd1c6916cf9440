// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/chainguard-dev/clog"
	"github.com/octo-sts/ghapp/pkg/appsetup"
	envConfig "github.com/octo-sts/ghapp/pkg/envconfig"
	"github.com/octo-sts/ghapp/pkg/ghapp"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ghapp",
	Short: "Act as a GitHub App from the command line",
	Long: `ghapp authenticates as the GitHub App configured in the environment
(GITHUB_APP_ID plus one private key source) and inspects or updates what its
installations can reach.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		cmd.SetContext(clog.WithLogger(cmd.Context(), clog.New(h)))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log credential renewals and requests")
}

// newApp builds the App from the environment.
func newApp(ctx context.Context) (*ghapp.App, error) {
	cfg, err := envConfig.Process()
	if err != nil {
		return nil, err
	}
	return appsetup.New(ctx, cfg)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("ghapp: %v", err)
	}
}
