package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rancher/rollback-action/internal/app"
	"github.com/rancher/rollback-action/internal/git"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print it with secrets masked",
	RunE:  runCheckConfig,
}

var remoteURLCmd = &cobra.Command{
	Use:   "remote-url",
	Short: "Print the authenticated remote URL with the token masked",
	RunE:  runRemoteURL,
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))
	fmt.Fprintf(out, "publish: %t\n", cfg.PublishEnabled())
	return nil
}

func runRemoteURL(cmd *cobra.Command, _ []string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	remote, err := git.BuildRemoteURL(cfg.Git.HostURL, cfg.Git.UserName, cfg.Git.APIToken, cfg.Git.RepoOwner, cfg.Git.RepoName)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), git.RedactURL(remote))
	return nil
}
