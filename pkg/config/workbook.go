package config

import (
	"fmt"
	"sort"
)

// AllowListSource names the sheet and column holding the permitted values
// for one rate-query filter field.
type AllowListSource struct {
	Sheet  string `yaml:"sheet"`
	Column string `yaml:"column"`
}

// WorkbookConfig configures the spreadsheet query engine.
type WorkbookConfig struct {
	// Path is the default workbook used by the SQL tools.
	Path string `yaml:"path,omitempty"`

	// Sheets lists the sheets advertised to the SQL specialist prompt.
	Sheets []string `yaml:"sheets,omitempty"`

	// MaxRows caps the rows dumped into a query result. Zero disables the cap.
	MaxRows int `yaml:"max_rows,omitempty"`

	// CostTable and RateTable are the default tables of the rate query.
	CostTable string `yaml:"cost_table,omitempty"`
	RateTable string `yaml:"rate_table,omitempty"`

	// AllowLists maps a rate-query filter field (cc, key, func, bl) to the
	// sheet column its values must come from.
	AllowLists map[string]AllowListSource `yaml:"allow_lists,omitempty"`
}

// DefaultAllowLists returns the allow-list sources used when none are configured.
func DefaultAllowLists() map[string]AllowListSource {
	return map[string]AllowListSource{
		"cc":   {Sheet: "CC Mapping", Column: "CostCenterNumber"},
		"key":  {Sheet: "CostDataBase", Column: "Key"},
		"func": {Sheet: "CostDataBase", Column: "Function"},
	}
}

// SetDefaults applies default values.
func (c *WorkbookConfig) SetDefaults() {
	if c.MaxRows == 0 {
		c.MaxRows = 100
	}
	if c.CostTable == "" {
		c.CostTable = "CostDataBase"
	}
	if c.RateTable == "" {
		c.RateTable = "Table7"
	}
	if len(c.Sheets) == 0 {
		c.Sheets = []string{"CostDataBase", "Table7", "CC Mapping", "Cost Text Mapping"}
	}
	if c.AllowLists == nil {
		c.AllowLists = DefaultAllowLists()
	}
}

// Validate checks the workbook configuration.
func (c *WorkbookConfig) Validate() error {
	if c.MaxRows < 0 {
		return fmt.Errorf("max_rows must be non-negative")
	}

	fields := make([]string, 0, len(c.AllowLists))
	for f := range c.AllowLists {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		switch f {
		case "cc", "key", "func", "bl":
		default:
			return fmt.Errorf("allow_lists: unknown field %q (valid: cc, key, func, bl)", f)
		}
		src := c.AllowLists[f]
		if src.Sheet == "" || src.Column == "" {
			return fmt.Errorf("allow_lists.%s: sheet and column are required", f)
		}
	}
	return nil
}
