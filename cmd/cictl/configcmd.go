package main

import (
	"fmt"

	"github.com/danmuck/cictl/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or check configuration files",
	}

	var (
		kind      string
		overwrite bool
	)
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a commented config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], kind, overwrite); err != nil {
				return err
			}
			cmd.Printf("wrote %s config: %s\n", kind, args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&kind, "kind", "project", "template kind: project or sink")
	initCmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a project config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.configPath = args[0]
			}
			if a.configPath == "" {
				return fmt.Errorf("no config path given")
			}
			if _, err := a.loadProject(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("config ok: %s\n", a.configPath)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
