// Package reconciler orchestrates the reconciliation pipeline.
//
// The Orchestrator drives one persisted reconciliation record through its
// state machine:
//
//	pending → processing → {completed | failed}
//
// Invoke is the synchronous entry point the job trigger calls. Preconditions
// (record pending, both files attached) are checked before any work; feed
// files are fetched before the processing transition so a transient
// retrieval failure leaves the record pending and retryable. Once the
// record is claimed, any stage failure lands it in failed with the causing
// message — a run never exits leaving the record in processing.
package reconciler

import (
	"context"
	"time"

	"feed-reconciliation-service/internal/matcher"
	"feed-reconciliation-service/internal/parsers"
	"feed-reconciliation-service/internal/reporter"
	"feed-reconciliation-service/internal/storage"
	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// Config bundles the pipeline stage configurations.
type Config struct {
	BankFeed      *parsers.BankFeedConfig
	ProcessorFeed *parsers.ProcessorFeedConfig
	Matching      *matcher.Config
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		BankFeed:      parsers.DefaultBankFeedConfig(),
		ProcessorFeed: parsers.DefaultProcessorFeedConfig(),
		Matching:      matcher.DefaultConfig(),
	}
}

// Orchestrator sequences parsing, matching, report building, and
// persistence for one reconciliation record per invocation.
type Orchestrator struct {
	store           *storage.Store
	files           storage.FileStore
	bankParser      *parsers.BankParser
	processorParser *parsers.ProcessorParser
	matcher         *matcher.Matcher
	builder         *reporter.Builder
	now             func() time.Time
	logger          logger.Logger
}

// NewOrchestrator creates an orchestrator over the given store and file
// store.
func NewOrchestrator(store *storage.Store, files storage.FileStore, config *Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "store", nil, nil)
	}
	if files == nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "file_store", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}

	bankParser, err := parsers.NewBankParser(config.BankFeed)
	if err != nil {
		return nil, err
	}

	processorParser, err := parsers.NewProcessorParser(config.ProcessorFeed)
	if err != nil {
		return nil, err
	}

	if config.Matching != nil {
		if err := config.Matching.Validate(); err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidConfig, "matching_config", nil, err)
		}
	}

	return &Orchestrator{
		store:           store,
		files:           files,
		bankParser:      bankParser,
		processorParser: processorParser,
		matcher:         matcher.NewMatcher(config.Matching),
		builder:         reporter.NewBuilder(),
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.GetGlobalLogger().WithComponent("orchestrator"),
	}, nil
}

// Invoke processes the reconciliation with the given id.
//
// Returns nil when the run completed, when preconditions were not met (the
// record was not pending or files were missing — not an error, the trigger
// may re-enqueue later), or when a concurrent invocation claimed the record
// first. Returns a retryable error when the record or a feed file could not
// be retrieved, and a permanent error when a pipeline stage failed.
func (o *Orchestrator) Invoke(ctx context.Context, id string) error {
	log := o.logger.WithField("reconciliation_id", id)

	rec, err := o.store.Get(id)
	if err != nil {
		log.WithError(err).Warn("Reconciliation not loadable")
		return err
	}

	if rec.Status != storage.StatusPending {
		log.WithField("status", string(rec.Status)).Debug("Record not pending, nothing to do")
		return nil
	}
	if !o.files.BothFilesPresent(rec) {
		log.Debug("Feed files not yet attached, leaving record pending")
		return nil
	}

	// Fetch both feeds before claiming the record so a transient retrieval
	// failure leaves it pending and retryable.
	bankData, err := o.files.FetchBankFile(ctx, rec.BankFileRef)
	if err != nil {
		log.WithError(err).Warn("Bank feed not retrievable")
		return err
	}
	processorData, err := o.files.FetchProcessorFile(ctx, rec.ProcessorFileRef)
	if err != nil {
		log.WithError(err).Warn("Processor feed not retrievable")
		return err
	}

	acquired, err := o.store.AcquireProcessing(id)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug("Record claimed by a concurrent invocation")
		return nil
	}

	log.Info("Processing reconciliation")

	report, counts, stageErr := o.runStages(bankData, processorData)
	if stageErr != nil {
		return o.fail(id, stageErr)
	}

	reportJSON, err := report.JSON()
	if err != nil {
		return o.fail(id, err)
	}

	if err := o.store.Complete(id, counts, reportJSON, o.now()); err != nil {
		// The record must not stay in processing; record the persistence
		// failure as the run's failure.
		return o.fail(id, err)
	}

	log.WithFields(logger.Fields{
		"matched":        counts.Matched,
		"bank_only":      counts.BankOnly,
		"processor_only": counts.ProcessorOnly,
		"discrepancies":  counts.Discrepancy,
	}).Info("Reconciliation completed")

	return nil
}

// runStages executes the four pipeline stages in fixed order, halting on
// the first failure. No stage has externally visible side effects.
func (o *Orchestrator) runStages(bankData, processorData []byte) (*reporter.Report, storage.Counts, error) {
	bankTxs, err := o.bankParser.Parse(bankData)
	if err != nil {
		return nil, storage.Counts{}, err
	}

	processorTxs, err := o.processorParser.Parse(processorData)
	if err != nil {
		return nil, storage.Counts{}, err
	}

	result := o.matcher.Match(bankTxs, processorTxs)

	report, err := o.builder.BuildAt(result, o.now())
	if err != nil {
		return nil, storage.Counts{}, err
	}

	counts := storage.Counts{
		Matched:       len(result.Matched),
		BankOnly:      len(result.BankOnly),
		ProcessorOnly: len(result.ProcessorOnly),
		Discrepancy:   len(result.Discrepancies),
	}

	return report, counts, nil
}

// fail records the terminal failed state and returns the causing error.
func (o *Orchestrator) fail(id string, cause error) error {
	if persistErr := o.store.Fail(id, cause.Error(), o.now()); persistErr != nil {
		o.logger.WithError(persistErr).
			WithField("reconciliation_id", id).
			Error("Could not persist failed state")
	}
	return cause
}
