// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"

	"github.com/chainguard-dev/clog"
	"github.com/octo-sts/ghapp/pkg/ghapp"
	"github.com/spf13/cobra"
)

var installationsCmd = &cobra.Command{
	Use:   "installations",
	Short: "List the App's installations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		installs, err := app.Installations(cmd.Context())
		if err != nil {
			return err
		}
		for _, inst := range installs {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", inst.GetID(), inst.GetAccount().GetLogin())
		}
		return nil
	},
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List the repositories of every installation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		installs, err := app.Installations(ctx)
		if err != nil {
			return err
		}
		for _, inst := range installs {
			repos, err := inst.Repos(ctx)
			if err != nil {
				clog.FromContext(ctx).Warnf("installation %d: %v", inst.GetID(), err)
				continue
			}
			for _, r := range repos {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", inst.GetID(), r.GetFullName())
			}
		}
		return nil
	},
}

var prState string

var prsCmd = &cobra.Command{
	Use:   "prs",
	Short: "List pull requests across every installation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		prs, err := app.PullRequests(ctx, ghapp.PullRequestState(prState))
		for _, pr := range prs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", pr.GetHTMLURL(), pr.GetTitle())
		}
		return err
	},
}

var statusContext string

var statusCmd = &cobra.Command{
	Use:     "status OWNER/REPO/pulls/NUMBER",
	Short:   "Show the latest commit status of a pull request",
	Example: `  ghapp status --installation 42 --context ci octo-sts/ghapp/pulls/7`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inst, err := installationFlag(cmd)
		if err != nil {
			return err
		}
		pr, err := inst.PullRequest(ctx, args[0])
		if err != nil {
			return err
		}
		last, err := pr.LastStatusForContext(ctx, inst, statusContext)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "no status in context %q\n", statusContext)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", last.State, last.Description, last.TargetURL)
		return nil
	},
}

var (
	targetURL   string
	description string
)

var markPendingCmd = &cobra.Command{
	Use:   "mark-pending OWNER/REPO/pulls/NUMBER",
	Short: "Set a pull request's status to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inst, err := installationFlag(cmd)
		if err != nil {
			return err
		}
		pr, err := inst.PullRequest(ctx, args[0])
		if err != nil {
			return err
		}
		created, err := pr.SetStatus(ctx, inst, ghapp.Status{
			State:       ghapp.StatePending,
			Context:     statusContext,
			TargetURL:   targetURL,
			Description: description,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created status %d in context %q\n", created.ID, created.Context)
		return nil
	},
}

var installationID int64

// installationFlag fetches the installation named by --installation.
func installationFlag(cmd *cobra.Command) (*ghapp.Installation, error) {
	if installationID == 0 {
		return nil, fmt.Errorf("--installation is required")
	}
	app, err := newApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	return app.Installation(cmd.Context(), installationID)
}

var tokenCmd = &cobra.Command{
	Use:   "token INSTALLATION_ID",
	Short: "Print an installation access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid installation id %q: %w", args[0], err)
		}
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		inst, err := app.Installation(cmd.Context(), id)
		if err != nil {
			return err
		}
		cred, err := inst.Credential(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cred.Value)
		clog.FromContext(cmd.Context()).Infof("token expires at %s", cred.ExpiresAt)
		return nil
	},
}

func init() {
	prsCmd.Flags().StringVar(&prState, "state", string(ghapp.PullRequestOpen), "Pull request state: open, closed or all")

	for _, c := range []*cobra.Command{statusCmd, markPendingCmd} {
		c.Flags().Int64Var(&installationID, "installation", 0, "Installation that can see the pull request")
		c.Flags().StringVar(&statusContext, "context", ghapp.DefaultStatusContext, "Status context")
	}
	markPendingCmd.Flags().StringVar(&targetURL, "target-url", "", "Link shown with the status")
	markPendingCmd.Flags().StringVar(&description, "description", "", "Short description shown with the status")

	rootCmd.AddCommand(installationsCmd, reposCmd, prsCmd, statusCmd, markPendingCmd, tokenCmd)
}
