package matcher

import (
	"testing"
	"time"

	"feed-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func tx(id, amount, status string) *models.Transaction {
	return &models.Transaction{
		ID:     id,
		Amount: decimal.RequireFromString(amount),
		Status: status,
		Date:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewMatcher(t *testing.T) {
	m := NewMatcher(nil)
	if m == nil {
		t.Fatal("Expected matcher to be created")
	}
	if !m.config.AmountTolerance.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected default tolerance 0.01, got %s", m.config.AmountTolerance)
	}

	custom := &Config{AmountTolerance: decimal.RequireFromString("0.05")}
	m = NewMatcher(custom)
	if !m.config.AmountTolerance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Expected custom tolerance 0.05, got %s", m.config.AmountTolerance)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}

	negative := &Config{AmountTolerance: decimal.RequireFromString("-0.01")}
	if err := negative.Validate(); err == nil {
		t.Error("Expected negative tolerance to be rejected")
	}

	zero := &Config{AmountTolerance: decimal.Zero}
	if err := zero.Validate(); err != nil {
		t.Errorf("Expected zero tolerance to be allowed, got %v", err)
	}
}

func TestMatch_ExactMatch(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(
		[]*models.Transaction{tx("TX001", "100.50", "completed")},
		[]*models.Transaction{tx("TX001", "100.50", "completed")},
	)

	if len(result.Matched) != 1 {
		t.Fatalf("Expected 1 matched pair, got %d", len(result.Matched))
	}
	if result.Matched[0].Bank.ID != "TX001" || result.Matched[0].Processor.ID != "TX001" {
		t.Error("Expected the pair to carry both sides of TX001")
	}
	if len(result.BankOnly) != 0 || len(result.ProcessorOnly) != 0 || len(result.Discrepancies) != 0 {
		t.Error("Expected no unmatched records or discrepancies")
	}
}

func TestMatch_AmountWithinTolerance(t *testing.T) {
	m := NewMatcher(nil)

	// Differs by exactly the tolerance; still a match.
	result := m.Match(
		[]*models.Transaction{tx("TX001", "100.00", "completed")},
		[]*models.Transaction{tx("TX001", "100.01", "completed")},
	)

	if len(result.Matched) != 1 {
		t.Fatalf("Expected difference of exactly 0.01 to match, got %d matched", len(result.Matched))
	}
	if len(result.Discrepancies) != 0 {
		t.Errorf("Expected no discrepancies, got %d", len(result.Discrepancies))
	}
}

func TestMatch_AmountDiscrepancy(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(
		[]*models.Transaction{tx("TX001", "100.50", "completed")},
		[]*models.Transaction{tx("TX001", "100.00", "completed")},
	)

	if len(result.Discrepancies) != 1 {
		t.Fatalf("Expected 1 discrepancy, got %d", len(result.Discrepancies))
	}

	d := result.Discrepancies[0]
	if !d.HasType(models.DiscrepancyAmount) {
		t.Error("Expected an amount discrepancy")
	}
	if d.HasType(models.DiscrepancyStatus) {
		t.Error("Expected no status discrepancy")
	}
	if !d.AmountDifference.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("Expected amount difference 0.50, got %s", d.AmountDifference)
	}
	if len(result.Matched) != 0 {
		t.Error("Expected discrepant pair not to count as matched")
	}
}

func TestMatch_StatusDiscrepancy(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(
		[]*models.Transaction{tx("TX001", "100.50", "completed")},
		[]*models.Transaction{tx("TX001", "100.50", "failed")},
	)

	if len(result.Discrepancies) != 1 {
		t.Fatalf("Expected 1 discrepancy, got %d", len(result.Discrepancies))
	}

	d := result.Discrepancies[0]
	if !d.HasType(models.DiscrepancyStatus) {
		t.Error("Expected a status discrepancy")
	}
	if d.HasType(models.DiscrepancyAmount) {
		t.Error("Expected no amount discrepancy")
	}
	if d.BankStatus != "completed" || d.ProcessorStatus != "failed" {
		t.Errorf("Expected statuses completed/failed, got %s/%s", d.BankStatus, d.ProcessorStatus)
	}
}

func TestMatch_BothDiscrepancies(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(
		[]*models.Transaction{tx("TX001", "100.50", "completed")},
		[]*models.Transaction{tx("TX001", "99.00", "pending")},
	)

	if len(result.Discrepancies) != 1 {
		t.Fatalf("Expected 1 discrepancy, got %d", len(result.Discrepancies))
	}

	d := result.Discrepancies[0]
	if !d.HasType(models.DiscrepancyAmount) || !d.HasType(models.DiscrepancyStatus) {
		t.Errorf("Expected both discrepancy types, got %v", d.Types)
	}
}

func TestMatch_DisjointFeeds(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(
		[]*models.Transaction{tx("TX001", "10.00", "completed"), tx("TX002", "20.00", "completed")},
		[]*models.Transaction{tx("TX003", "30.00", "completed"), tx("TX004", "40.00", "completed")},
	)

	if len(result.Matched) != 0 || len(result.Discrepancies) != 0 {
		t.Error("Expected no matches between disjoint feeds")
	}
	if len(result.BankOnly) != 2 {
		t.Errorf("Expected 2 bank-only records, got %d", len(result.BankOnly))
	}
	if len(result.ProcessorOnly) != 2 {
		t.Errorf("Expected 2 processor-only records, got %d", len(result.ProcessorOnly))
	}
}

func TestMatch_EmptyFeeds(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(nil, nil)
	if result == nil {
		t.Fatal("Expected a result for empty input")
	}
	if result.Matched == nil || result.BankOnly == nil || result.ProcessorOnly == nil || result.Discrepancies == nil {
		t.Error("Expected empty groups, not nil slices")
	}
	if len(result.Matched)+len(result.BankOnly)+len(result.ProcessorOnly)+len(result.Discrepancies) != 0 {
		t.Error("Expected all groups empty")
	}

	result = m.Match([]*models.Transaction{tx("TX001", "10.00", "completed")}, nil)
	if len(result.BankOnly) != 1 {
		t.Errorf("Expected the lone bank record in bank-only, got %d", len(result.BankOnly))
	}

	result = m.Match(nil, []*models.Transaction{tx("TX001", "10.00", "completed")})
	if len(result.ProcessorOnly) != 1 {
		t.Errorf("Expected the lone processor record in processor-only, got %d", len(result.ProcessorOnly))
	}
}

func TestMatch_OrderPreserved(t *testing.T) {
	m := NewMatcher(nil)

	result := m.Match(
		[]*models.Transaction{
			tx("B3", "1.00", "completed"),
			tx("B1", "1.00", "completed"),
			tx("B2", "1.00", "completed"),
		},
		[]*models.Transaction{
			tx("P2", "1.00", "completed"),
			tx("P1", "1.00", "completed"),
		},
	)

	wantBank := []string{"B3", "B1", "B2"}
	for i, id := range wantBank {
		if result.BankOnly[i].ID != id {
			t.Errorf("Expected bank-only[%d] = %s, got %s", i, id, result.BankOnly[i].ID)
		}
	}

	wantProcessor := []string{"P2", "P1"}
	for i, id := range wantProcessor {
		if result.ProcessorOnly[i].ID != id {
			t.Errorf("Expected processor-only[%d] = %s, got %s", i, id, result.ProcessorOnly[i].ID)
		}
	}
}

func TestMatch_DuplicateProcessorIDs(t *testing.T) {
	m := NewMatcher(nil)

	// Later record with the same id wins.
	result := m.Match(
		[]*models.Transaction{tx("TX001", "2.00", "completed")},
		[]*models.Transaction{
			tx("TX001", "1.00", "completed"),
			tx("TX001", "2.00", "completed"),
		},
	)

	if len(result.Matched) != 1 {
		t.Fatalf("Expected the later duplicate to match, got %d matched, %d discrepancies",
			len(result.Matched), len(result.Discrepancies))
	}
}

func TestMatch_PartitionInvariant(t *testing.T) {
	m := NewMatcher(nil)

	bank := []*models.Transaction{
		tx("TX001", "100.50", "completed"),
		tx("TX002", "75.00", "pending"),
		tx("TX003", "33.10", "completed"),
		tx("TX004", "12.00", "failed"),
	}
	processor := []*models.Transaction{
		tx("TX001", "100.50", "completed"),
		tx("TX003", "34.00", "completed"),
		tx("TX005", "9.99", "completed"),
	}

	result := m.Match(bank, processor)

	bankTotal := len(result.Matched) + len(result.BankOnly) + len(result.Discrepancies)
	if bankTotal != len(bank) {
		t.Errorf("Expected every bank transaction in exactly one group, got %d of %d", bankTotal, len(bank))
	}

	processorTotal := len(result.Matched) + len(result.ProcessorOnly) + len(result.Discrepancies)
	if processorTotal != len(processor) {
		t.Errorf("Expected every processor transaction in exactly one group, got %d of %d", processorTotal, len(processor))
	}
}

func TestMatch_MixedScenario(t *testing.T) {
	m := NewMatcher(nil)

	bank := []*models.Transaction{
		tx("TX001", "100.50", "completed"),
		tx("TX002", "250.00", "completed"),
		tx("TX003", "75.25", "pending"),
		tx("TX004", "12.40", "completed"),
	}
	processor := []*models.Transaction{
		tx("TX001", "100.50", "completed"),
		tx("TX002", "250.00", "completed"),
		tx("TX003", "75.50", "pending"),
		tx("TX005", "60.00", "completed"),
	}

	result := m.Match(bank, processor)

	if len(result.Matched) != 2 {
		t.Errorf("Expected 2 matched pairs, got %d", len(result.Matched))
	}
	if len(result.BankOnly) != 1 || result.BankOnly[0].ID != "TX004" {
		t.Errorf("Expected bank-only = [TX004], got %v", ids(result.BankOnly))
	}
	if len(result.ProcessorOnly) != 1 || result.ProcessorOnly[0].ID != "TX005" {
		t.Errorf("Expected processor-only = [TX005], got %v", ids(result.ProcessorOnly))
	}
	if len(result.Discrepancies) != 1 {
		t.Fatalf("Expected 1 discrepancy, got %d", len(result.Discrepancies))
	}

	d := result.Discrepancies[0]
	if d.ID != "TX003" {
		t.Errorf("Expected discrepancy on TX003, got %s", d.ID)
	}
	if !d.AmountDifference.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Expected amount difference 0.25, got %s", d.AmountDifference)
	}
	if d.HasType(models.DiscrepancyStatus) {
		t.Error("Expected no status discrepancy for TX003")
	}
}

func ids(txs []*models.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}
