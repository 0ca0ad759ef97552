package feed

import (
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrContractBreached marks a non-empty validation report when the
// block policy is in force. The report travels with the run result;
// this error only carries the kind.
var ErrContractBreached = eris.New("feed: schema validation failed")

// Rule is one declarative column constraint: a column name, whether
// nulls are allowed, and an optional value predicate with its
// human-readable check name.
type Rule struct {
	Column   string
	Nullable bool
	Check    string
	Valid    func(v any) bool
}

// Violation is one failed check for one row. Row is -1 for
// table-level (column layout) violations.
type Violation struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Check  string `json:"check"`
	Value  string `json:"value"`
}

// Report collects every violation found in a table. Validation is
// lazy: it never stops at the first failure.
type Report struct {
	Violations []Violation `json:"violations"`
}

// Count returns the total number of violations.
func (r *Report) Count() int { return len(r.Violations) }

// Empty reports whether the table passed validation.
func (r *Report) Empty() bool { return len(r.Violations) == 0 }

var customerCodeRe = regexp.MustCompile(`^[A-Z0-9]+$`)

// DefaultSchema returns the canonical feed constraints. The schema is
// closed: the table's column list must match exactly.
func DefaultSchema() []Rule {
	return []Rule{
		{Column: "SellerID"},
		{Column: "GUID", Check: "ge(0)", Valid: func(v any) bool { return v.(int64) >= 0 }},
		{Column: "Date"},
		{Column: "Reference"},
		{Column: "Customer_Code", Check: "matches([A-Z0-9]+)", Valid: func(v any) bool { return customerCodeRe.MatchString(v.(string)) }},
		{Column: "Name"},
		{Column: "Physical_Address1", Nullable: true},
		{Column: "Physical_Address2", Nullable: true},
		{Column: "Physical_Address3", Nullable: true},
		{Column: "Physical_Address4", Nullable: true},
		{Column: "Telephone", Nullable: true},
		{Column: "Stock_Code"},
		{Column: "Description"},
		{Column: "Price_Ex_Vat", Check: "ge(0.0)", Valid: func(v any) bool { return v.(float64) >= 0 }},
		{Column: "Quantity"},
		{Column: "RepCode", Nullable: true},
		{Column: "ProductBarCodeID", Nullable: true},
	}
}

// Validate checks the table against the rules and returns every
// violation found. The pipeline driver decides whether a non-empty
// report blocks downstream stages.
func Validate(t *Table, rules []Rule) *Report {
	report := &Report{}

	// Closed schema: the column layout must match the rule list
	// exactly, in order.
	expected := make([]string, len(rules))
	for i, rule := range rules {
		expected[i] = rule.Column
	}
	if !equalColumns(t.Columns, expected) {
		missing := diffColumns(expected, t.Columns)
		extra := diffColumns(t.Columns, expected)
		for _, col := range missing {
			report.Violations = append(report.Violations, Violation{
				Row: -1, Column: col, Check: "column_missing",
			})
		}
		for _, col := range extra {
			report.Violations = append(report.Violations, Violation{
				Row: -1, Column: col, Check: "column_not_in_schema",
			})
		}
		if len(missing) == 0 && len(extra) == 0 {
			report.Violations = append(report.Violations, Violation{
				Row: -1, Column: "", Check: "column_order",
			})
		}
	}

	for i := range t.Records {
		rec := &t.Records[i]
		for _, rule := range rules {
			v, ok := rec.Field(rule.Column)
			if !ok {
				if !rule.Nullable {
					report.Violations = append(report.Violations, Violation{
						Row: i, Column: rule.Column, Check: "not_nullable",
					})
				}
				continue
			}
			if rule.Valid != nil && !rule.Valid(v) {
				report.Violations = append(report.Violations, Violation{
					Row: i, Column: rule.Column, Check: rule.Check,
					Value: fmt.Sprint(v),
				})
			}
		}
	}

	if !report.Empty() {
		zap.L().Warn("validate: contract breached",
			zap.Int("violations", report.Count()),
		)
		for _, v := range report.Violations {
			zap.L().Debug("validate: violation",
				zap.Int("row", v.Row),
				zap.String("column", v.Column),
				zap.String("check", v.Check),
				zap.String("value", v.Value),
			)
		}
	}
	return report
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diffColumns returns the entries of want absent from have.
func diffColumns(want, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	var missing []string
	for _, c := range want {
		if _, ok := set[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
