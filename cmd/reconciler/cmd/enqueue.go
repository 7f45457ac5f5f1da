package cmd

import (
	"context"
	"fmt"
	"os"

	"feed-reconciliation-service/cmd/reconciler/config"
	"feed-reconciliation-service/internal/reconciler"
	"feed-reconciliation-service/internal/storage"

	"github.com/spf13/cobra"
)

// Flags for the enqueue command
var (
	enqueueID    string
	bankRef      string
	processorRef string
	runNow       bool
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create a pending reconciliation record",
	Long: `Enqueue creates a pending reconciliation record referencing two feed
files. A running serve process picks the record up on its next poll; with
--run the record is processed immediately instead.

File references are resolved relative to --files-root when processed.

Examples:
  reconciler enqueue --id run-42 --bank-ref feeds/bank.csv --processor-ref feeds/proc.json
  reconciler enqueue --id run-43 --bank-ref b.csv --processor-ref p.json --run`,

	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueueID, "id", "", "reconciliation id (required)")
	enqueueCmd.Flags().StringVar(&bankRef, "bank-ref", "", "bank feed file reference (required)")
	enqueueCmd.Flags().StringVar(&processorRef, "processor-ref", "", "processor feed file reference (required)")
	enqueueCmd.Flags().BoolVar(&runNow, "run", false, "process the record immediately instead of waiting for serve")
	enqueueCmd.Flags().StringVar(&dbPath, "db-path", "reconciler.db", "path to the SQLite database file")
	enqueueCmd.Flags().StringVar(&filesRoot, "files-root", ".", "directory feed file references resolve under")

	enqueueCmd.MarkFlagRequired("id")
	enqueueCmd.MarkFlagRequired("bank-ref")
	enqueueCmd.MarkFlagRequired("processor-ref")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	if err := enqueue(); err != nil {
		os.Exit(handler.HandleError(err))
	}
	return nil
}

func enqueue() error {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := &storage.Reconciliation{
		ID:               enqueueID,
		Status:           storage.StatusPending,
		BankFileRef:      bankRef,
		ProcessorFileRef: processorRef,
	}
	if err := store.Create(rec); err != nil {
		return err
	}
	fmt.Printf("Created reconciliation %s (pending)\n", enqueueID)

	if !runNow {
		return nil
	}

	files, err := storage.NewLocalFileStore(filesRoot)
	if err != nil {
		return err
	}

	pipelineCfg, err := config.CreatePipelineConfig(feedProfile, tolerance)
	if err != nil {
		return err
	}

	orchestrator, err := reconciler.NewOrchestrator(store, files, pipelineCfg)
	if err != nil {
		return err
	}

	if err := orchestrator.Invoke(context.Background(), enqueueID); err != nil {
		return err
	}

	processed, err := store.Get(enqueueID)
	if err != nil {
		return err
	}
	fmt.Printf("Reconciliation %s finished with status %s\n", enqueueID, processed.Status)
	if processed.Report != nil {
		fmt.Println(*processed.Report)
	}
	return nil
}
