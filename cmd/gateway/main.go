package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Translation gateway between Anthropic Messages and OpenAI Responses",
		Long:    `Serves an Anthropic Messages-compatible HTTP API backed by the OpenAI Responses API.`,
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
