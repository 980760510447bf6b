package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	mode       string
	outputFile string
	mock       bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "protogen",
	Short: "Generate HTML/CSS/JS prototypes from the command line",
	Long: `Protogen runs the prototype generation pipeline against the configured
LLM provider (see LLM_PROVIDER and LLM_API_KEY) and prints the run as it
happens.

Use 'protogen help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	generateCmd.Flags().StringVar(&mode, "mode", "agent", "Run mode: agent or chat")
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the generated page to this HTML file")
	generateCmd.Flags().BoolVar(&mock, "mock", false, "Replay a built-in sample instead of calling the provider")

	rootCmd.AddCommand(generateCmd, strategyCmd)
}
