package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"feed-reconciliation-service/internal/models"
	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// ProcessorParser parses the payment processor's JSON feed, a single array
// of records whose field names vary by processor version.
type ProcessorParser struct {
	config *ProcessorFeedConfig
	logger logger.Logger
}

// NewProcessorParser creates a ProcessorParser with the given configuration.
func NewProcessorParser(config *ProcessorFeedConfig) (*ProcessorParser, error) {
	if config == nil {
		config = DefaultProcessorFeedConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "processor_feed_config", config.Name, err)
	}

	return &ProcessorParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("processor_parser"),
	}, nil
}

// Parse converts raw processor feed bytes into transactions in source order.
// Amounts are decoded through json.Number so they reach the decimal type
// without a binary float round-trip.
func (pp *ProcessorParser) Parse(data []byte) ([]*models.Transaction, error) {
	pp.logger.WithField("bytes", len(data)).Debug("Parsing processor feed")

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.ParseError(errors.CodeInvalidFormat, pp.config.Name, 0, "content", "", fmt.Errorf("feed is empty"))
	}
	if trimmed[0] != '[' {
		return nil, errors.ParseError(errors.CodeInvalidFormat, pp.config.Name, 1, "content", "", fmt.Errorf("expected a JSON array of records")).
			WithSuggestion("the processor feed must be a single JSON array")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var records []map[string]interface{}
	if err := decoder.Decode(&records); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, pp.config.Name, 0, "content", "", err).
			WithSuggestion("check that the feed is well-formed JSON")
	}

	transactions := make([]*models.Transaction, 0, len(records))
	for i, record := range records {
		tx, err := pp.parseRecord(record, i+1)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	pp.logger.WithField("transactions", len(transactions)).Info("Processor feed parsed")

	return transactions, nil
}

func (pp *ProcessorParser) parseRecord(record map[string]interface{}, position int) (*models.Transaction, error) {
	id, ok := pp.stringField(record, pp.config.IDFields)
	if !ok || id == "" {
		return nil, errors.ParseError(errors.CodeMissingField, pp.config.Name, position, pp.config.IDFields[0], "", nil).
			WithSuggestion(fmt.Sprintf("each record needs one of these id fields: %v", pp.config.IDFields))
	}

	amount, err := pp.amountField(record)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidAmount, pp.config.Name, position, pp.config.AmountFields[0], "", err)
	}

	status, ok := pp.stringField(record, pp.config.StatusFields)
	if !ok || status == "" {
		return nil, errors.ParseError(errors.CodeMissingField, pp.config.Name, position, pp.config.StatusFields[0], "", nil)
	}

	dateStr, ok := pp.stringField(record, pp.config.DateFields)
	if !ok {
		return nil, errors.ParseError(errors.CodeMissingField, pp.config.Name, position, pp.config.DateFields[0], "", nil)
	}
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidDate, pp.config.Name, position, pp.config.DateFields[0], dateStr, err)
	}

	description, _ := pp.stringField(record, pp.config.DescriptionFields)

	return models.NewTransaction(id, amount, status, date, description), nil
}

// stringField returns the first candidate field present as a string.
func (pp *ProcessorParser) stringField(record map[string]interface{}, candidates []string) (string, bool) {
	for _, name := range candidates {
		if raw, ok := record[name]; ok {
			if s, ok := raw.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// amountField extracts the amount, accepting either a JSON number or a
// decimal string.
func (pp *ProcessorParser) amountField(record map[string]interface{}) (decimal.Decimal, error) {
	for _, name := range pp.config.AmountFields {
		raw, ok := record[name]
		if !ok {
			continue
		}

		switch v := raw.(type) {
		case json.Number:
			return decimal.NewFromString(v.String())
		case string:
			return models.ParseAmount(v)
		default:
			return decimal.Zero, fmt.Errorf("amount field '%s' has unsupported type %T", name, raw)
		}
	}
	return decimal.Zero, fmt.Errorf("no amount field found, tried %v", pp.config.AmountFields)
}
