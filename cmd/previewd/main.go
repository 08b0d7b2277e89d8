package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "previewd",
	Short: "Content preview and auto-tagging worker",
	Long: `previewd polls a content repository for items that need preview
processing, renders page previews and thumbnails for them, optionally
auto-tags them with extracted terms, and posts the results back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// A .env next to the binary is a development convenience; absence is
	// not an error.
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to YAML config file")
	pf.String("server", "", "content repository base URL")
	pf.String("content-server", "", "content body server URL")
	pf.String("user", "", "repository username")
	pf.String("password", "", "repository password")
	pf.String("dir", "", "scratch directory for downloads and previews")
	pf.Bool("force-tagging", false, "tag every document regardless of owner preference")

	rootCmd.AddCommand(runCmd, onceCmd, versionCmd)
}
