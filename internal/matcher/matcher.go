// Package matcher partitions two transaction feeds by identity.
//
// Matching joins the bank and processor feeds on transaction id and compares
// the joined pairs on amount (within a fixed cent-level tolerance, computed
// on decimals) and status (exact string equality). The result is a complete
// partition: every input transaction appears in exactly one output group.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"feed-reconciliation-service/internal/models"
)

// Config holds the matching tolerances.
type Config struct {
	// AmountTolerance is the maximum absolute amount difference for two
	// transactions to be considered amount-matching.
	AmountTolerance decimal.Decimal
}

// DefaultConfig returns the standard one-cent tolerance, which absorbs
// rounding variance between the feeds without hiding real differences.
func DefaultConfig() *Config {
	return &Config{
		AmountTolerance: decimal.NewFromFloat(0.01),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative, got %s", c.AmountTolerance.String())
	}
	return nil
}

// Matcher joins two feeds by transaction id.
type Matcher struct {
	config *Config
}

// NewMatcher creates a Matcher with the given configuration.
func NewMatcher(config *Config) *Matcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Matcher{config: config}
}

// Match partitions the two feeds. It is deterministic and side-effect-free:
// bank transactions are classified in input order, and leftover processor
// transactions keep their original relative order.
//
// Ids are assumed unique within a feed. A duplicate id in the processor feed
// silently keeps only the last record (last-write-wins); duplicate bank ids
// each consume at most one processor record.
func (m *Matcher) Match(bank, processor []*models.Transaction) *models.MatchResult {
	result := &models.MatchResult{
		Matched:       []*models.MatchedPair{},
		BankOnly:      []*models.Transaction{},
		ProcessorOnly: []*models.Transaction{},
		Discrepancies: []*models.Discrepancy{},
	}

	processorByID := make(map[string]*models.Transaction, len(processor))
	for _, tx := range processor {
		processorByID[tx.ID] = tx
	}

	for _, bankTx := range bank {
		processorTx, ok := processorByID[bankTx.ID]
		if !ok {
			result.BankOnly = append(result.BankOnly, bankTx)
			continue
		}
		delete(processorByID, bankTx.ID)

		m.classify(result, bankTx, processorTx)
	}

	// Unconsumed processor entries, preserving feed order.
	for _, tx := range processor {
		if _, ok := processorByID[tx.ID]; ok {
			result.ProcessorOnly = append(result.ProcessorOnly, tx)
			delete(processorByID, tx.ID)
		}
	}

	return result
}

// classify decides whether a same-id pair is a match or a discrepancy.
func (m *Matcher) classify(result *models.MatchResult, bankTx, processorTx *models.Transaction) {
	var types []models.DiscrepancyType

	if !models.AmountsWithinTolerance(bankTx.Amount, processorTx.Amount, m.config.AmountTolerance) {
		types = append(types, models.DiscrepancyAmount)
	}
	if bankTx.Status != processorTx.Status {
		types = append(types, models.DiscrepancyStatus)
	}

	if len(types) == 0 {
		result.Matched = append(result.Matched, &models.MatchedPair{
			Bank:      bankTx,
			Processor: processorTx,
		})
		return
	}

	result.Discrepancies = append(result.Discrepancies, &models.Discrepancy{
		ID:               bankTx.ID,
		Types:            types,
		BankAmount:       bankTx.Amount,
		ProcessorAmount:  processorTx.Amount,
		AmountDifference: bankTx.Amount.Sub(processorTx.Amount).Abs(),
		BankStatus:       bankTx.Status,
		ProcessorStatus:  processorTx.Status,
	})
}
