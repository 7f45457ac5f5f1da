package cmd

import (
	"fmt"
	"os"

	"feed-reconciliation-service/cmd/reconciler/config"
	"feed-reconciliation-service/internal/matcher"
	"feed-reconciliation-service/internal/parsers"
	"feed-reconciliation-service/internal/reporter"
	"feed-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	bankFile      string
	processorFile string
	feedProfile   string
	tolerance     string
	outputFormat  string
	outputFile    string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a bank feed against a processor feed",
	Long: `Reconcile compares a bank transaction feed (delimited text) with a
payment processor feed (JSON array), matching records by transaction id.
Matched pairs are checked for amount differences beyond the tolerance and
for status mismatches.

Examples:
  # Basic reconciliation, human-readable output
  reconciler reconcile --bank-file bank.csv --processor-file processor.json

  # JSON report written to a file
  reconciler reconcile -b bank.csv -p processor.json \
    --output-format json --output-file report.json

  # Wider amount tolerance and a custom feed profile
  reconciler reconcile -b bank.csv -p processor.json \
    --tolerance 0.05 --feed-profile feeds.yaml`,

	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&bankFile, "bank-file", "b", "", "path to the bank feed file (required)")
	reconcileCmd.Flags().StringVarP(&processorFile, "processor-file", "p", "", "path to the processor feed file (required)")
	reconcileCmd.Flags().StringVar(&feedProfile, "feed-profile", "", "YAML feed profile with column and field mappings")
	reconcileCmd.Flags().StringVarP(&tolerance, "tolerance", "t", "", "amount tolerance as a decimal (default 0.01)")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "text", "output format: text, json")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.MarkFlagRequired("bank-file")
	reconcileCmd.MarkFlagRequired("processor-file")

	viper.BindPFlag("bank-file", reconcileCmd.Flags().Lookup("bank-file"))
	viper.BindPFlag("processor-file", reconcileCmd.Flags().Lookup("processor-file"))
	viper.BindPFlag("feed-profile", reconcileCmd.Flags().Lookup("feed-profile"))
	viper.BindPFlag("tolerance", reconcileCmd.Flags().Lookup("tolerance"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
}

func runReconcile(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	if err := reconcileOnce(); err != nil {
		os.Exit(handler.HandleError(err))
	}
	return nil
}

func reconcileOnce() error {
	bankFile = viper.GetString("bank-file")
	processorFile = viper.GetString("processor-file")
	feedProfile = viper.GetString("feed-profile")
	tolerance = viper.GetString("tolerance")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")

	if outputFormat != "text" && outputFormat != "json" {
		return errors.ValidationError(errors.CodeInvalidConfig, "output-format", outputFormat, nil).
			WithSuggestion("Use 'text' or 'json'")
	}

	cfg, err := config.CreatePipelineConfig(feedProfile, tolerance)
	if err != nil {
		return err
	}

	bankParser, err := parsers.NewBankParser(cfg.BankFeed)
	if err != nil {
		return err
	}
	processorParser, err := parsers.NewProcessorParser(cfg.ProcessorFeed)
	if err != nil {
		return err
	}

	bankData, err := readFeedFile(bankFile)
	if err != nil {
		return err
	}
	processorData, err := readFeedFile(processorFile)
	if err != nil {
		return err
	}

	bankTxs, err := bankParser.Parse(bankData)
	if err != nil {
		return err
	}
	processorTxs, err := processorParser.Parse(processorData)
	if err != nil {
		return err
	}

	result := matcher.NewMatcher(cfg.Matching).Match(bankTxs, processorTxs)

	report, err := reporter.NewBuilder().Build(result)
	if err != nil {
		return err
	}

	var output string
	if outputFormat == "json" {
		output, err = report.JSON()
		if err != nil {
			return err
		}
	} else {
		output = report.Text()
	}

	return writeOutput(output)
}

func readFeedFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFileUnreadable, path, err)
	}
	return data, nil
}

func writeOutput(output string) error {
	if outputFile == "" {
		fmt.Println(output)
		return nil
	}
	if err := os.WriteFile(outputFile, []byte(output+"\n"), 0644); err != nil {
		return errors.FileError(errors.CodeFileUnreadable, outputFile, err).
			WithSuggestion("Check that the output directory exists and is writable")
	}
	return nil
}
