package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/waterbill-audit/internal/changelog"
	"github.com/waterbill-audit/internal/config"
	"github.com/waterbill-audit/internal/logging"
	"github.com/waterbill-audit/internal/pipeline"
	"github.com/waterbill-audit/internal/web"
)

var (
	configPath string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "billing-audit",
		Short: "Utility billing data-quality and anomaly-detection pipeline",
		Long:  `Cleans noisy utility-billing CSVs, corrects UK street name spellings against a reference gazetteer, and flags bills with rule-based or statistical anomalies.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(createAutofixCmd())
	rootCmd.AddCommand(createDetectCmd())
	rootCmd.AddCommand(createChangesCmd())
	rootCmd.AddCommand(createServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// createAutofixCmd creates the cleaning + street correction subcommand
func createAutofixCmd() *cobra.Command {
	var input, gazetteerDir, output, changes string

	cmd := &cobra.Command{
		Use:   "autofix",
		Short: "Clean a raw billing CSV and correct street spellings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Debug)
			runner := pipeline.NewRunner(cfg, log)
			result, err := runner.Autofix(input, gazetteerDir, output, changes)
			if err != nil {
				return err
			}
			fmt.Printf("Cleaned %d rows (%d duplicates removed, %d streets corrected)\n",
				result.RowsOut, result.DuplicatesRemoved, result.StreetsCorrected)
			fmt.Printf("Output: %s\n", result.OutputPath)
			fmt.Printf("Change log: %s (%d entries)\n", result.ChangeLogPath, result.ChangesLogged)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "raw billing CSV (required)")
	cmd.Flags().StringVar(&gazetteerDir, "gazetteer", "", "folder of reference street-name CSVs (required)")
	cmd.Flags().StringVar(&output, "output", "cleaned_billing_data.csv", "cleaned CSV destination")
	cmd.Flags().StringVar(&changes, "changes", pipeline.ChangeLogFile, "change-log JSON destination")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("gazetteer")
	return cmd
}

// createDetectCmd creates the anomaly detection subcommand
func createDetectCmd() *cobra.Command {
	var input, outDir string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run rule-based and statistical anomaly detection over a cleaned CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Debug)
			runner := pipeline.NewRunner(cfg, log)
			result, err := runner.Detect(input, outDir)
			if err != nil {
				return err
			}
			fmt.Printf("Rule-based anomalies: %d (%s)\n", result.RuleFlagged, result.RulePath)
			fmt.Printf("ML anomalies:         %d (%s)\n", result.MLFlagged, result.MLPath)
			fmt.Printf("Combined:             %d (%s)\n", result.Combined, result.CombinedPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "cleaned billing CSV (required)")
	cmd.Flags().StringVar(&outDir, "out-dir", "data/output", "directory for anomaly artifacts")
	cmd.MarkFlagRequired("input")
	return cmd
}

// createChangesCmd creates the change-log summary subcommand
func createChangesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Summarize a change-log artifact by change type",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read change log: %w", err)
			}
			var entries []changelog.Entry
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("failed to parse change log: %w", err)
			}
			summary := make(map[string]int)
			for _, e := range entries {
				summary[e.ChangeType]++
			}
			types := make([]string, 0, len(summary))
			for t := range summary {
				types = append(types, t)
			}
			sort.Strings(types)
			fmt.Printf("%d change entries\n", len(entries))
			for _, t := range types {
				fmt.Printf("  %s: %d\n", t, summary[t])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", pipeline.ChangeLogFile, "change-log JSON file")
	return cmd
}

// createServeCmd creates the artifact query API subcommand
func createServeCmd() *cobra.Command {
	var addr, dataDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the anomaly and change-log artifacts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			log := logging.New(cfg.Debug)
			server := web.NewServer(cfg.ListenAddr, cfg.DataDir, log)
			return server.Start()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "artifact directory (default from config)")
	return cmd
}
