// Package reporter renders match results into persistable report artifacts.
//
// A Report serializes two ways: JSON for the persisted artifact consumed by
// the API layer, and rendered text for terminal output. Both are
// deterministic given the same match result and generation timestamp, and
// both render a placeholder for the dimension of a discrepancy that did not
// differ, since the comparison never establishes equality of the ignored
// dimension's value.
package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"feed-reconciliation-service/internal/models"
	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// Placeholder marks a discrepancy dimension that did not differ.
const Placeholder = "-"

// Summary holds the headline counts of a reconciliation run.
type Summary struct {
	Matched       int `json:"matched"`
	BankOnly      int `json:"bank_only"`
	ProcessorOnly int `json:"processor_only"`
	Discrepancies int `json:"discrepancies"`
}

// DiscrepancyDetail is one rendered discrepancy row. Amount fields carry
// the placeholder when only the status differed, and vice versa.
type DiscrepancyDetail struct {
	TransactionID   string   `json:"transaction_id"`
	Types           []string `json:"types"`
	BankAmount      string   `json:"bank_amount"`
	ProcessorAmount string   `json:"processor_amount"`
	Difference      string   `json:"difference"`
	BankStatus      string   `json:"bank_status"`
	ProcessorStatus string   `json:"processor_status"`
}

// Report is the structured reconciliation report artifact.
type Report struct {
	GeneratedAt        time.Time           `json:"generated_at"`
	Summary            Summary             `json:"summary"`
	DiscrepancyDetails []DiscrepancyDetail `json:"discrepancy_details"`
	BankOnlyIDs        []string            `json:"bank_only_ids"`
	ProcessorOnlyIDs   []string            `json:"processor_only_ids"`
}

// Builder turns match results into reports.
type Builder struct {
	logger logger.Logger
}

// NewBuilder creates a report builder.
func NewBuilder() *Builder {
	return &Builder{
		logger: logger.GetGlobalLogger().WithComponent("report_builder"),
	}
}

// Build renders the match result with the current time as generation
// timestamp.
func (b *Builder) Build(result *models.MatchResult) (*Report, error) {
	return b.BuildAt(result, time.Now().UTC())
}

// BuildAt renders the match result with an explicit generation timestamp.
// Output is byte-identical for identical inputs.
func (b *Builder) BuildAt(result *models.MatchResult, generatedAt time.Time) (*Report, error) {
	if result == nil {
		return nil, errors.ValidationError(errors.CodeInvalidData, "match_result", nil, nil).
			WithSuggestion("run the matcher before building a report")
	}

	report := &Report{
		GeneratedAt: generatedAt,
		Summary: Summary{
			Matched:       len(result.Matched),
			BankOnly:      len(result.BankOnly),
			ProcessorOnly: len(result.ProcessorOnly),
			Discrepancies: len(result.Discrepancies),
		},
		DiscrepancyDetails: make([]DiscrepancyDetail, 0, len(result.Discrepancies)),
		BankOnlyIDs:        make([]string, 0, len(result.BankOnly)),
		ProcessorOnlyIDs:   make([]string, 0, len(result.ProcessorOnly)),
	}

	for _, disc := range result.Discrepancies {
		report.DiscrepancyDetails = append(report.DiscrepancyDetails, renderDiscrepancy(disc))
	}
	for _, tx := range result.BankOnly {
		report.BankOnlyIDs = append(report.BankOnlyIDs, tx.ID)
	}
	for _, tx := range result.ProcessorOnly {
		report.ProcessorOnlyIDs = append(report.ProcessorOnlyIDs, tx.ID)
	}

	b.logger.WithFields(logger.Fields{
		"matched":        report.Summary.Matched,
		"bank_only":      report.Summary.BankOnly,
		"processor_only": report.Summary.ProcessorOnly,
		"discrepancies":  report.Summary.Discrepancies,
	}).Info("Report built")

	return report, nil
}

func renderDiscrepancy(disc *models.Discrepancy) DiscrepancyDetail {
	detail := DiscrepancyDetail{
		TransactionID:   disc.ID,
		BankAmount:      Placeholder,
		ProcessorAmount: Placeholder,
		Difference:      Placeholder,
		BankStatus:      Placeholder,
		ProcessorStatus: Placeholder,
	}

	for _, t := range disc.Types {
		detail.Types = append(detail.Types, string(t))
	}

	if disc.HasType(models.DiscrepancyAmount) {
		detail.BankAmount = disc.BankAmount.StringFixed(2)
		detail.ProcessorAmount = disc.ProcessorAmount.StringFixed(2)
		detail.Difference = disc.AmountDifference.StringFixed(2)
	}
	if disc.HasType(models.DiscrepancyStatus) {
		detail.BankStatus = disc.BankStatus
		detail.ProcessorStatus = disc.ProcessorStatus
	}

	return detail
}

// JSON serializes the report as indented JSON, the persisted artifact
// format.
func (r *Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.InternalError("report_serialization", err)
	}
	return string(data), nil
}

// Text renders the report as a human-readable document. Empty categories
// produce no section.
func (r *Report) Text() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "RECONCILIATION REPORT\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&sb, "=== SUMMARY ===\n")
	fmt.Fprintf(&sb, "Matched:        %d\n", r.Summary.Matched)
	fmt.Fprintf(&sb, "Discrepancies:  %d\n", r.Summary.Discrepancies)
	fmt.Fprintf(&sb, "Bank only:      %d\n", r.Summary.BankOnly)
	fmt.Fprintf(&sb, "Processor only: %d\n", r.Summary.ProcessorOnly)

	if len(r.DiscrepancyDetails) > 0 {
		fmt.Fprintf(&sb, "\n=== DISCREPANCIES ===\n")
		for _, d := range r.DiscrepancyDetails {
			fmt.Fprintf(&sb, "%s [%s]: bank amount %s, processor amount %s, difference %s, bank status %s, processor status %s\n",
				d.TransactionID,
				strings.Join(d.Types, ","),
				d.BankAmount,
				d.ProcessorAmount,
				d.Difference,
				d.BankStatus,
				d.ProcessorStatus)
		}
	}

	if len(r.BankOnlyIDs) > 0 {
		fmt.Fprintf(&sb, "\n=== BANK ONLY ===\n")
		for _, id := range r.BankOnlyIDs {
			fmt.Fprintf(&sb, "%s\n", id)
		}
	}

	if len(r.ProcessorOnlyIDs) > 0 {
		fmt.Fprintf(&sb, "\n=== PROCESSOR ONLY ===\n")
		for _, id := range r.ProcessorOnlyIDs {
			fmt.Fprintf(&sb, "%s\n", id)
		}
	}

	return sb.String()
}
