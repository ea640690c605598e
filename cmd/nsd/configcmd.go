package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/DeBrosOfficial/nameservice/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after file and environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys settable through the environment",
	Run: func(cmd *cobra.Command, args []string) {
		keys := config.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-36s %s\n", k, strings.ToUpper(envPrefix+strings.ReplaceAll(k, ".", "_")))
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configKeysCmd)
}
