package parsers

import (
	"fmt"
	"strings"
)

// BankFeedConfig describes how to read one bank's delimited feed. Column
// names are resolved case-insensitively through Aliases so the same parser
// handles the naming variations banks ship.
type BankFeedConfig struct {
	Name              string            `yaml:"name"`
	IDColumn          string            `yaml:"id_column"`
	AmountColumn      string            `yaml:"amount_column"`
	StatusColumn      string            `yaml:"status_column"`
	DateColumn        string            `yaml:"date_column"`
	DescriptionColumn string            `yaml:"description_column"`
	Delimiter         rune              `yaml:"-"`
	DelimiterString   string            `yaml:"delimiter,omitempty"`
	Aliases           map[string]string `yaml:"aliases,omitempty"`
}

// DefaultBankFeedConfig returns the configuration matching the standard
// bank export: comma-delimited with a header row.
func DefaultBankFeedConfig() *BankFeedConfig {
	return &BankFeedConfig{
		Name:              "bank",
		IDColumn:          "transaction_id",
		AmountColumn:      "amount",
		StatusColumn:      "status",
		DateColumn:        "date",
		DescriptionColumn: "description",
		Delimiter:         ',',
		Aliases: map[string]string{
			"id":               "transaction_id",
			"txn_id":           "transaction_id",
			"reference":        "transaction_id",
			"amt":              "amount",
			"value":            "amount",
			"state":            "status",
			"posting_date":     "date",
			"transaction_date": "date",
			"narrative":        "description",
			"memo":             "description",
		},
	}
}

// Validate checks the configuration for required column names.
func (c *BankFeedConfig) Validate() error {
	if strings.TrimSpace(c.IDColumn) == "" {
		return fmt.Errorf("id column name is required")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column name is required")
	}
	if strings.TrimSpace(c.StatusColumn) == "" {
		return fmt.Errorf("status column name is required")
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column name is required")
	}
	if strings.TrimSpace(c.DescriptionColumn) == "" {
		return fmt.Errorf("description column name is required")
	}
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter is required")
	}
	return nil
}

// canonicalColumn maps a raw header name to the canonical column name,
// applying aliases case-insensitively.
func (c *BankFeedConfig) canonicalColumn(header string) string {
	name := strings.ToLower(strings.TrimSpace(header))
	if alias, ok := c.Aliases[name]; ok {
		return alias
	}
	return name
}

// ProcessorFeedConfig describes how to normalize the processor's JSON
// records. Each slice lists the accepted field names for one canonical
// attribute, in priority order.
type ProcessorFeedConfig struct {
	Name              string   `yaml:"name"`
	IDFields          []string `yaml:"id_fields"`
	AmountFields      []string `yaml:"amount_fields"`
	StatusFields      []string `yaml:"status_fields"`
	DateFields        []string `yaml:"date_fields"`
	DescriptionFields []string `yaml:"description_fields"`
}

// DefaultProcessorFeedConfig returns the configuration matching the
// processor export formats seen in production.
func DefaultProcessorFeedConfig() *ProcessorFeedConfig {
	return &ProcessorFeedConfig{
		Name:              "processor",
		IDFields:          []string{"id", "transaction_id", "reference"},
		AmountFields:      []string{"amount", "value"},
		StatusFields:      []string{"status", "state"},
		DateFields:        []string{"date", "processed_at", "timestamp"},
		DescriptionFields: []string{"description", "narrative", "memo"},
	}
}

// Validate checks the configuration for required field candidates.
func (c *ProcessorFeedConfig) Validate() error {
	if len(c.IDFields) == 0 {
		return fmt.Errorf("at least one id field name is required")
	}
	if len(c.AmountFields) == 0 {
		return fmt.Errorf("at least one amount field name is required")
	}
	if len(c.StatusFields) == 0 {
		return fmt.Errorf("at least one status field name is required")
	}
	if len(c.DateFields) == 0 {
		return fmt.Errorf("at least one date field name is required")
	}
	return nil
}
