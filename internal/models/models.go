package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the canonical representation both feed parsers normalize
// into. ID is the join key between feeds and is assumed unique within one
// feed; the parsers do not enforce uniqueness.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// NewTransaction creates a new Transaction instance.
func NewTransaction(id string, amount decimal.Decimal, status string, date time.Time, description string) *Transaction {
	return &Transaction{
		ID:          id,
		Amount:      amount,
		Status:      status,
		Date:        date,
		Description: description,
	}
}

// Validate performs basic validation on the Transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction id cannot be empty")
	}

	if strings.TrimSpace(t.Status) == "" {
		return fmt.Errorf("transaction status cannot be empty")
	}

	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	return nil
}

// String returns a string representation of the Transaction.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Amount: %s, Status: %s, Date: %s}",
		t.ID, t.Amount.String(), t.Status, t.Date.Format("2006-01-02"))
}

// MarshalJSON renders the amount as a decimal string and the date as a plain
// calendar date so reports stay free of binary float artifacts.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: t.Amount.String(),
		Date:   t.Date.Format("2006-01-02"),
		Alias:  (*Alias)(t),
	})
}

// MatchedPair holds a bank transaction and the processor transaction that
// agreed with it on amount and status.
type MatchedPair struct {
	Bank      *Transaction `json:"bank"`
	Processor *Transaction `json:"processor"`
}

// MatchResult partitions both input feeds. Every bank transaction lands in
// exactly one of Matched, BankOnly, or Discrepancies; every processor
// transaction in exactly one of Matched, ProcessorOnly, or Discrepancies.
type MatchResult struct {
	Matched       []*MatchedPair `json:"matched"`
	BankOnly      []*Transaction `json:"bank_only"`
	ProcessorOnly []*Transaction `json:"processor_only"`
	Discrepancies []*Discrepancy `json:"discrepancies"`
}

// DiscrepancyType names a dimension on which a same-id pair disagreed.
type DiscrepancyType string

const (
	DiscrepancyAmount DiscrepancyType = "amount"
	DiscrepancyStatus DiscrepancyType = "status"
)

// Discrepancy records a same-id transaction pair whose amount and/or status
// disagreed. Types is never empty.
type Discrepancy struct {
	ID               string            `json:"id"`
	Types            []DiscrepancyType `json:"types"`
	BankAmount       decimal.Decimal   `json:"bank_amount"`
	ProcessorAmount  decimal.Decimal   `json:"processor_amount"`
	AmountDifference decimal.Decimal   `json:"amount_difference"`
	BankStatus       string            `json:"bank_status"`
	ProcessorStatus  string            `json:"processor_status"`
}

// HasType reports whether the discrepancy includes the given dimension.
func (d *Discrepancy) HasType(t DiscrepancyType) bool {
	for _, dt := range d.Types {
		if dt == t {
			return true
		}
	}
	return false
}

// MarshalJSON renders decimal fields as strings.
func (d *Discrepancy) MarshalJSON() ([]byte, error) {
	type Alias Discrepancy
	return json.Marshal(&struct {
		BankAmount       string `json:"bank_amount"`
		ProcessorAmount  string `json:"processor_amount"`
		AmountDifference string `json:"amount_difference"`
		*Alias
	}{
		BankAmount:       d.BankAmount.StringFixed(2),
		ProcessorAmount:  d.ProcessorAmount.StringFixed(2),
		AmountDifference: d.AmountDifference.StringFixed(2),
		Alias:            (*Alias)(d),
	})
}

// ParseAmount parses a decimal amount from a feed field, stripping common
// currency formatting. Amounts never pass through float64.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseDate attempts to parse a date from the formats seen across feeds.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"01/02/2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// AmountsWithinTolerance reports whether two amounts differ by at most
// tolerance, computed on the decimal representation.
func AmountsWithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
