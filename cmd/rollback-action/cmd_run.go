package main

import (
	"github.com/spf13/cobra"

	"github.com/rancher/rollback-action/internal/app"
)

var runFlags struct {
	skipPublish  bool
	skipVerify   bool
	verifyRemote bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Revert the configured branch to the target commit and push it",
	RunE:  runRollback,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runFlags.skipPublish, "skip-publish", false, "Do not publish to the workspace even when configured")
	f.BoolVar(&runFlags.skipVerify, "skip-verify", false, "Skip the post-push tree verification")
	f.BoolVar(&runFlags.verifyRemote, "verify-remote", false, "Check branch, access and target through the GitHub API before cloning")
}

func runRollback(cmd *cobra.Command, _ []string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if runFlags.skipPublish {
		cfg.SkipPublish = true
	}
	if runFlags.skipVerify {
		cfg.SkipVerify = true
	}
	if runFlags.verifyRemote {
		cfg.VerifyRemote = true
	}

	runner, err := app.NewRunner(cfg)
	if err != nil {
		return err
	}

	_, err = runner.Run(cmd.Context())
	return err
}
