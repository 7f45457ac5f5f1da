// Package parsers converts raw feed bytes into canonical transactions.
//
// Two parsers cover the two feed formats: BankParser reads the bank's
// delimited text export and ProcessorParser reads the payment processor's
// JSON record list. Both normalize amounts into fixed-precision decimals and
// return transactions in source order. Neither performs cross-feed logic.
//
// Malformed input fails the whole parse with a Parse-category error; partial
// results are never returned, because the matcher's partition invariants
// assume complete feeds.
package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"feed-reconciliation-service/internal/models"
	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// BankParser parses the bank's delimited feed into canonical transactions.
type BankParser struct {
	config *BankFeedConfig
	logger logger.Logger
}

// NewBankParser creates a BankParser with the given configuration.
func NewBankParser(config *BankFeedConfig) (*BankParser, error) {
	if config == nil {
		config = DefaultBankFeedConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "bank_feed_config", config.Name, err)
	}

	return &BankParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("bank_parser"),
	}, nil
}

// Parse converts raw bank feed bytes into transactions in source order.
func (bp *BankParser) Parse(data []byte) ([]*models.Transaction, error) {
	bp.logger.WithField("bytes", len(data)).Debug("Parsing bank feed")

	if err := bp.checkContentShape(data); err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true

	columns, err := bp.readHeader(reader)
	if err != nil {
		return nil, err
	}

	var transactions []*models.Transaction
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, bp.config.Name, line, "row", "", err).
				WithSuggestion("check that every row has the same number of columns as the header")
		}

		tx, err := bp.parseRecord(record, columns, line)
		if err != nil {
			return nil, err
		}

		transactions = append(transactions, tx)
	}

	bp.logger.WithFields(logger.Fields{
		"transactions": len(transactions),
		"lines":        line,
	}).Info("Bank feed parsed")

	return transactions, nil
}

// checkContentShape rejects payloads that are clearly not delimited text,
// such as a JSON document uploaded under the wrong feed.
func (bp *BankParser) checkContentShape(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.ParseError(errors.CodeInvalidFormat, bp.config.Name, 0, "content", "", fmt.Errorf("feed is empty"))
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return errors.ParseError(errors.CodeInvalidFormat, bp.config.Name, 1, "content", "", fmt.Errorf("content appears to be JSON, expected delimited text")).
			WithSuggestion("the bank feed must be delimited text with a header row")
	}
	return nil
}

// readHeader reads the header row and maps canonical column names to their
// indices, failing if any required column is absent.
func (bp *BankParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, bp.config.Name, 1, "header", "", err).
			WithSuggestion("ensure the feed starts with a header row")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[bp.config.canonicalColumn(name)] = i
	}

	required := []string{
		bp.config.IDColumn,
		bp.config.AmountColumn,
		bp.config.StatusColumn,
		bp.config.DateColumn,
		bp.config.DescriptionColumn,
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, errors.ParseError(errors.CodeMissingColumn, bp.config.Name, 1, name, "", nil).
				WithSuggestion(fmt.Sprintf("ensure the header includes these columns: %s", strings.Join(required, ", ")))
		}
	}

	return columns, nil
}

func (bp *BankParser) parseRecord(record []string, columns map[string]int, line int) (*models.Transaction, error) {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	id := field(bp.config.IDColumn)
	if id == "" {
		return nil, errors.ParseError(errors.CodeMissingField, bp.config.Name, line, bp.config.IDColumn, "", nil)
	}

	amountStr := field(bp.config.AmountColumn)
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidAmount, bp.config.Name, line, bp.config.AmountColumn, amountStr, err).
			WithSuggestion("amounts must be decimal numbers like '123.45'")
	}

	status := field(bp.config.StatusColumn)
	if status == "" {
		return nil, errors.ParseError(errors.CodeMissingField, bp.config.Name, line, bp.config.StatusColumn, "", nil)
	}

	dateStr := field(bp.config.DateColumn)
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidDate, bp.config.Name, line, bp.config.DateColumn, dateStr, err).
			WithSuggestion("use ISO dates like '2025-01-15'")
	}

	return models.NewTransaction(id, amount, status, date, field(bp.config.DescriptionColumn)), nil
}
