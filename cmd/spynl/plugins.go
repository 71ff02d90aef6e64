package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SoftwearDevelopment/spynl/internal/pkg/config"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/registration"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List installed plugins and their load order",
	Long: `List the plugins in the catalog and the order in which the
plugins selected by spynl.enable_plugins would be loaded.

Examples:
  spynl plugins
  spynl plugins --config /etc/spynl/config.yaml`,
	RunE: runPlugins,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

func runPlugins(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	catalog := plugin.NewCatalog()
	if err := registration.RegisterBuiltins(catalog); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tEXTRAS\tSCM")
	for _, d := range catalog.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Version, strings.Join(d.Extras, ","), d.SCM())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	order, err := plugin.ResolveOrder(catalog, cfg.Spynl.EnablePlugins)
	if err != nil {
		return err
	}
	fmt.Printf("\nLoad order: %s\n", strings.Join(order, " -> "))
	return nil
}
