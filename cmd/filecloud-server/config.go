package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/filecloud/internal/config"
)

var (
	forceInit  bool
	showFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  # Write to the user config dir
  filecloud-server config init

  # Write a TOML file elsewhere
  filecloud-server config init --config ./filecloud.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(configPath, forceInit)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		format := config.FormatYAML
		switch showFormat {
		case "yaml":
		case "toml":
			format = config.FormatTOML
		default:
			return fmt.Errorf("unknown format %q (want yaml or toml)", showFormat)
		}
		data, err := cfg.Marshal(format)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configShowCmd.Flags().StringVar(&showFormat, "format", "yaml", "Output format (yaml, toml)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
