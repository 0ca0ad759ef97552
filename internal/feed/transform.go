package feed

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMissingSourceColumn reports a vendor export whose header lacks a
// required source column entirely. Per-row blanks become nulls instead.
var ErrMissingSourceColumn = eris.New("feed: required source column absent from export")

// TransformOptions carries the deployment-specific constants used
// during the remap. Both come from config, not code.
type TransformOptions struct {
	// SellerID is stamped onto every row.
	SellerID string
	// FallbackCustomer replaces a missing customer name. The reference
	// deployment maps nameless rows to a known default store account.
	FallbackCustomer string
}

// Source column names in the vendor export.
const (
	srcDate        = "Date"
	srcReference   = "Reference"
	srcCustCode    = "Customer code"
	srcCustName    = "Customer name"
	srcTelephone   = "Telephone"
	srcProductCode = "Product code"
	srcProductDesc = "Product description"
	srcValue       = "Value"
	srcQuantity    = "Quantity"
	srcRep         = "Rep"
)

// dateLayouts are tried in order when parsing vendor dates. Values
// that match none of them become nulls, never errors.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"20060102",
}

// requiredSources are the vendor columns the remap cannot do without.
var requiredSources = []string{
	srcDate, srcReference, srcCustCode, srcCustName,
	srcProductCode, srcProductDesc, srcValue, srcQuantity,
}

// MissingSources returns the required source columns absent from the
// raw header. A non-empty result aborts the transform stage; blanks
// within a present column flow through as nulls instead.
func MissingSources(raw *RawTable) []string {
	var missing []string
	for _, col := range requiredSources {
		if !raw.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Transform remaps a raw vendor table into the canonical layout. It is
// a pure function: no I/O, no mutation of the input, and it never
// fails. Missing or unparseable source values surface as nulls in the
// output; the validator decides what to do about them.
func Transform(raw *RawTable, opts TransformOptions) *Table {
	out := NewTable()
	out.Records = make([]Record, 0, len(raw.Rows))

	for i := range raw.Rows {
		rec := Record{
			SellerID:         ptr(opts.SellerID),
			GUID:             ptrInt(0),
			Date:             parseDate(raw, i),
			Reference:        strCell(raw, i, srcReference),
			CustomerCode:     strCell(raw, i, srcCustCode),
			Name:             strCell(raw, i, srcCustName),
			PhysicalAddress1: strCell(raw, i, "Physical_Address1"),
			PhysicalAddress2: strCell(raw, i, "Physical_Address2"),
			PhysicalAddress3: strCell(raw, i, "Physical_Address3"),
			PhysicalAddress4: ptr(joinDelivery(raw, i)),
			Telephone:        strCell(raw, i, srcTelephone),
			StockCode:        strCell(raw, i, srcProductCode),
			Description:      strCell(raw, i, srcProductDesc),
			Quantity:         parseQuantity(raw, i),
			RepCode:          strCell(raw, i, srcRep),
			ProductBarCodeID: ptr(""),
		}
		rec.PriceExVat = derivePrice(raw, i, rec.Quantity)

		if rec.Name == nil && opts.FallbackCustomer != "" {
			rec.Name = ptr(opts.FallbackCustomer)
		}

		out.Records = append(out.Records, rec)
	}

	zap.L().Info("transform: complete",
		zap.Int("rows", len(out.Records)),
		zap.Int64("total_quantity", out.TotalQuantity()),
	)
	return out
}

// joinDelivery concatenates the four delivery address fragments with
// single spaces and trims the ends, exactly as the reference feed
// expects. Missing fragments join as empty strings.
func joinDelivery(raw *RawTable, row int) string {
	parts := make([]string, 0, 4)
	for _, col := range []string{"Deliver1", "Deliver2", "Deliver3", "Deliver4"} {
		v, _ := raw.Cell(row, col)
		parts = append(parts, v)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// derivePrice computes round(abs(Value/Quantity), 2). A null Value,
// a null Quantity, or Quantity zero leaves the price null; the
// validator then flags the row on Price_Ex_Vat.
func derivePrice(raw *RawTable, row int, qty *int64) *float64 {
	v, ok := raw.Cell(row, srcValue)
	if !ok || qty == nil || *qty == 0 {
		return nil
	}
	value, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	price := math.Round(math.Abs(value/float64(*qty))*100) / 100
	return &price
}

func parseQuantity(raw *RawTable, row int) *int64 {
	v, ok := raw.Cell(row, srcQuantity)
	if !ok {
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return &n
	}
	// Some exports render integral quantities as floats ("10.0").
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == math.Trunc(f) {
		n := int64(f)
		return &n
	}
	return nil
}

func parseDate(raw *RawTable, row int) *time.Time {
	v, ok := raw.Cell(row, srcDate)
	if !ok {
		return nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

func strCell(raw *RawTable, row int, col string) *string {
	v, ok := raw.Cell(row, col)
	if !ok {
		return nil
	}
	return &v
}

func ptr(s string) *string { return &s }

func ptrInt(n int64) *int64 { return &n }
