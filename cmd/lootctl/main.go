// Command lootctl is a command-line front end over the core library,
// exposing sort/validate subcommands via cobra. Both subcommands load the
// named plugins first; there is no separate load subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pluginsort/lootcore"
	"github.com/pluginsort/lootcore/internal/environment"
)

var (
	dataDir      string
	gameFlag     string
	masterlist   string
	userlist     string
	activeFlag   []string
	existingFlag []string
)

func main() {
	root := &cobra.Command{
		Use:   "lootctl",
		Short: "Compute a load order for a directory of plugin files",
	}
	root.PersistentFlags().StringVar(&dataDir, "data", ".", "path to the game's plugin data directory")
	root.PersistentFlags().StringVar(&gameFlag, "game", "tes5se", "game kind: tes4, tes5, tes5se, fo3, fonv, fo4")
	root.PersistentFlags().StringVar(&masterlist, "masterlist", "", "path to the masterlist YAML document")
	root.PersistentFlags().StringVar(&userlist, "userlist", "", "path to the userlist YAML document")
	root.PersistentFlags().StringSliceVar(&activeFlag, "active", nil, "active plugin names")
	root.PersistentFlags().StringSliceVar(&existingFlag, "existing-order", nil, "existing load order, most-recently-read first")

	root.AddCommand(sortCmd(), validateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCore(plugins []string, headerOnly bool) (*lootcore.Core, error) {
	core, err := lootcore.New(dataDir, environment.Kind(gameFlag), activeFlag, existingFlag)
	if err != nil {
		return nil, err
	}
	if masterlist != "" {
		if err := core.LoadMasterlist(masterlist); err != nil {
			return nil, err
		}
	}
	if userlist != "" {
		if err := core.LoadUserlist(userlist); err != nil {
			return nil, err
		}
	}
	if err := core.LoadPlugins(plugins, headerOnly); err != nil {
		return nil, err
	}
	return core, nil
}

func sortCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "sort [plugin...]",
		Short: "Compute and print the load order for the given plugins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(args, false)
			if err != nil {
				return err
			}
			ordered, err := core.Sort(language)
			if err != nil {
				return err
			}
			for i, p := range ordered {
				fmt.Printf("%3d  %s\n", i+1, p.Name)
			}
			for _, m := range core.Messages() {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", m.Type, m.FirstText())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "en", "target language for message localization")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [plugin...]",
		Short: "Report is_valid/loads_archive/is_active for the given plugins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(args, true)
			if err != nil {
				return err
			}
			for _, name := range args {
				fmt.Printf("%-40s valid=%-5v active=%-5v loads_archive=%v\n",
					name, core.IsValid(name), core.IsActive(name), core.LoadsArchive(name))
			}
			return nil
		},
	}
}
