// Package storage persists reconciliation records and resolves feed file
// references.
//
// The Store wraps a gorm/sqlite database holding one row per reconciliation.
// Status transitions that must be race-safe (claiming a pending record for
// processing) are expressed as conditional updates so that concurrent
// invocations for the same record cannot both win.
package storage

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// Status is the lifecycle state of a reconciliation record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the orchestrator will never transition out of
// this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Reconciliation is the persisted job record. The orchestrator owns Status
// (beyond pending), the four counts, Report, ErrorMessage, and ProcessedAt;
// everything else belongs to the request-handling layer that created the
// record.
type Reconciliation struct {
	ID                 string `gorm:"primaryKey"`
	Status             Status `gorm:"index"`
	MatchedCount       int
	BankOnlyCount      int
	ProcessorOnlyCount int
	DiscrepancyCount   int
	Report             *string
	ErrorMessage       *string
	ProcessedAt        *time.Time
	BankFileRef        string
	ProcessorFileRef   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FileRefsPresent reports whether both feed file references are attached.
func (r *Reconciliation) FileRefsPresent() bool {
	return strings.TrimSpace(r.BankFileRef) != "" && strings.TrimSpace(r.ProcessorFileRef) != ""
}

// Counts bundles the four result counts derived from a match result.
type Counts struct {
	Matched       int
	BankOnly      int
	ProcessorOnly int
	Discrepancy   int
}

// Store provides access to persisted reconciliation records.
type Store struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewStore opens (or creates) the sqlite database at dbPath and migrates the
// schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Reconciliation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("store"),
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.InternalError("close_database", err)
	}
	return sqlDB.Close()
}

// Create inserts a new reconciliation record in the pending state.
func (s *Store) Create(rec *Reconciliation) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.ValidationError(errors.CodeInvalidData, "reconciliation_id", rec.ID, nil).
			WithSuggestion("provide a non-empty reconciliation id")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	if err := s.db.Create(rec).Error; err != nil {
		return errors.InternalError("create_reconciliation", err)
	}

	s.logger.WithField("reconciliation_id", rec.ID).Info("Reconciliation created")
	return nil
}

// Get loads a reconciliation record by id. A missing record is a
// File-category error so the job trigger treats it as transient: the record
// may not have committed yet when the enqueue message arrives.
func (s *Store) Get(id string) (*Reconciliation, error) {
	var rec Reconciliation
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.FileError(errors.CodeRecordNotFound, id, err)
		}
		return nil, errors.InternalError("load_reconciliation", err)
	}
	return &rec, nil
}

// AcquireProcessing transitions the record from pending to processing with
// a conditional update. It returns false when the record was not pending,
// which includes losing the race to a concurrent invocation.
func (s *Store) AcquireProcessing(id string) (bool, error) {
	tx := s.db.Model(&Reconciliation{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusProcessing)
	if tx.Error != nil {
		return false, errors.InternalError("acquire_processing", tx.Error)
	}

	acquired := tx.RowsAffected == 1
	if acquired {
		s.logger.WithField("reconciliation_id", id).Debug("Acquired record for processing")
	}
	return acquired, nil
}

// Complete atomically persists the terminal completed state: status, the
// four counts, the report artifact, and the processing timestamp in a
// single update, so partial results are never observable.
func (s *Store) Complete(id string, counts Counts, report string, processedAt time.Time) error {
	tx := s.db.Model(&Reconciliation{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]interface{}{
			"status":               StatusCompleted,
			"matched_count":        counts.Matched,
			"bank_only_count":      counts.BankOnly,
			"processor_only_count": counts.ProcessorOnly,
			"discrepancy_count":    counts.Discrepancy,
			"report":               report,
			"processed_at":         processedAt,
		})
	if tx.Error != nil {
		return errors.InternalError("complete_reconciliation", tx.Error)
	}
	if tx.RowsAffected != 1 {
		return errors.ReconciliationError(errors.CodeStateConflict, "complete", nil).
			WithContext("reconciliation_id", id)
	}

	s.logger.WithField("reconciliation_id", id).Info("Reconciliation completed")
	return nil
}

// Fail records the terminal failed state with the causing error message.
// Unlike Complete it is not guarded on the current status: a failure must
// always be recordable so no record is left in processing.
func (s *Store) Fail(id, message string, processedAt time.Time) error {
	tx := s.db.Model(&Reconciliation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": message,
			"processed_at":  processedAt,
		})
	if tx.Error != nil {
		return errors.InternalError("fail_reconciliation", tx.Error)
	}

	s.logger.WithFields(logger.Fields{
		"reconciliation_id": id,
		"error_message":     message,
	}).Warn("Reconciliation failed")
	return nil
}

// ListEligiblePending returns ids of pending records with both file
// references attached, oldest first, for the worker poll loop.
func (s *Store) ListEligiblePending(limit int) ([]string, error) {
	var ids []string
	err := s.db.Model(&Reconciliation{}).
		Where("status = ? AND bank_file_ref <> '' AND processor_file_ref <> ''", StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.InternalError("list_pending", err)
	}
	return ids, nil
}

// ListRecent returns the most recently created records.
func (s *Store) ListRecent(limit int) ([]Reconciliation, error) {
	var recs []Reconciliation
	err := s.db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, errors.InternalError("list_recent", err)
	}
	return recs, nil
}
