package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"feed-reconciliation-service/cmd/reconciler/config"
	"feed-reconciliation-service/internal/jobs"
	"feed-reconciliation-service/internal/reconciler"
	"feed-reconciliation-service/internal/storage"
	"feed-reconciliation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the serve command
var (
	dbPath       string
	filesRoot    string
	workers      int
	pollInterval time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation worker service",
	Long: `Serve runs the background reconciliation service: it polls the
database for pending reconciliations whose feed files are attached and
processes them with a pool of workers. Stops cleanly on SIGINT or SIGTERM.

Configuration is read from flags, RECONCILER_* environment variables, and
an optional .env file in the working directory.

Examples:
  reconciler serve --db-path reconciler.db --files-root ./feeds
  reconciler serve --workers 8 --poll-interval 10s`,

	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&dbPath, "db-path", "reconciler.db", "path to the SQLite database file")
	serveCmd.Flags().StringVar(&filesRoot, "files-root", ".", "directory feed file references resolve under")
	serveCmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent reconciliation workers")
	serveCmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "how often to poll for eligible pending records")
	serveCmd.Flags().StringVar(&feedProfile, "feed-profile", "", "YAML feed profile with column and field mappings")
	serveCmd.Flags().StringVar(&tolerance, "tolerance", "", "amount tolerance as a decimal (default 0.01)")

	viper.BindPFlag("db-path", serveCmd.Flags().Lookup("db-path"))
	viper.BindPFlag("files-root", serveCmd.Flags().Lookup("files-root"))
	viper.BindPFlag("workers", serveCmd.Flags().Lookup("workers"))
	viper.BindPFlag("poll-interval", serveCmd.Flags().Lookup("poll-interval"))
}

func runServe(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	if err := serve(); err != nil {
		os.Exit(handler.HandleError(err))
	}
	return nil
}

func serve() error {
	// Optional .env next to the binary; flags and env vars still win.
	godotenv.Load()

	dbPath = viper.GetString("db-path")
	filesRoot = viper.GetString("files-root")
	workers = viper.GetInt("workers")
	pollInterval = viper.GetDuration("poll-interval")

	log := logger.GetGlobalLogger().WithComponent("serve")

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

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

	queueCfg := jobs.DefaultConfig()
	queueCfg.Workers = workers
	queue, err := jobs.NewQueue(orchestrator, queueCfg)
	if err != nil {
		return err
	}
	queue.Start()

	log.WithFields(logger.Fields{
		"db_path":       dbPath,
		"files_root":    filesRoot,
		"workers":       workers,
		"poll_interval": pollInterval.String(),
	}).Info("Reconciliation service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ids, err := store.ListEligiblePending(queueCfg.QueueSize)
			if err != nil {
				log.WithError(err).Error("Could not poll for pending reconciliations")
				continue
			}
			for _, id := range ids {
				queue.Enqueue(id)
			}
		case sig := <-stop:
			log.WithField("signal", sig.String()).Info("Shutting down")
			queue.Close()
			return nil
		}
	}
}
