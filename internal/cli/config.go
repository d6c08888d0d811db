package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/statementrag/rag/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	// Config commands run without loading a config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		p, err := config.DefaultUserConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := setup(cmd, args); err != nil {
		return err
	}
	data, err := yaml.Marshal(appConfig)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
