package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "los",
	Short: "Local knowledge base with tiered memory",
	Long: "los keeps your saved notes, bookmarks and files searchable by meaning, " +
		"assembles a small always-on memory from facts and interests, and folds old " +
		"material into compact archive summaries.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.los/config.yaml, or $LOS_CONFIG)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(hotCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(reindexCmd)
}
