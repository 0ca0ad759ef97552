// Package feed holds the canonical sales-feed row shape and the
// transform and validation steps that produce and check it.
package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the on-disk date format for canonical rows.
const DateLayout = "2006-01-02"

// Columns is the canonical header, in on-disk order. The schema is
// closed: exactly these 17 columns, no extras, none missing.
var Columns = []string{
	"SellerID",
	"GUID",
	"Date",
	"Reference",
	"Customer_Code",
	"Name",
	"Physical_Address1",
	"Physical_Address2",
	"Physical_Address3",
	"Physical_Address4",
	"Telephone",
	"Stock_Code",
	"Description",
	"Price_Ex_Vat",
	"Quantity",
	"RepCode",
	"ProductBarCodeID",
}

// Record is one canonical row. Nil pointer = null. The transform is
// total and never fails, so nulls flow through to validation, which is
// the single enforcement point.
type Record struct {
	SellerID         *string
	GUID             *int64
	Date             *time.Time
	Reference        *string
	CustomerCode     *string
	Name             *string
	PhysicalAddress1 *string
	PhysicalAddress2 *string
	PhysicalAddress3 *string
	PhysicalAddress4 *string
	Telephone        *string
	StockCode        *string
	Description      *string
	PriceExVat       *float64
	Quantity         *int64
	RepCode          *string
	ProductBarCodeID *string
}

// Field returns the record's value for a canonical column name and
// whether it is non-null. Unknown columns return (nil, false).
func (r *Record) Field(col string) (any, bool) {
	switch col {
	case "SellerID":
		return strField(r.SellerID)
	case "GUID":
		if r.GUID == nil {
			return nil, false
		}
		return *r.GUID, true
	case "Date":
		if r.Date == nil {
			return nil, false
		}
		return *r.Date, true
	case "Reference":
		return strField(r.Reference)
	case "Customer_Code":
		return strField(r.CustomerCode)
	case "Name":
		return strField(r.Name)
	case "Physical_Address1":
		return strField(r.PhysicalAddress1)
	case "Physical_Address2":
		return strField(r.PhysicalAddress2)
	case "Physical_Address3":
		return strField(r.PhysicalAddress3)
	case "Physical_Address4":
		return strField(r.PhysicalAddress4)
	case "Telephone":
		return strField(r.Telephone)
	case "Stock_Code":
		return strField(r.StockCode)
	case "Description":
		return strField(r.Description)
	case "Price_Ex_Vat":
		if r.PriceExVat == nil {
			return nil, false
		}
		return *r.PriceExVat, true
	case "Quantity":
		if r.Quantity == nil {
			return nil, false
		}
		return *r.Quantity, true
	case "RepCode":
		return strField(r.RepCode)
	case "ProductBarCodeID":
		return strField(r.ProductBarCodeID)
	default:
		return nil, false
	}
}

func strField(p *string) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

// FormatField renders the record's value for a canonical column as it
// appears in the staged CSV. Nulls render as the empty cell.
func (r *Record) FormatField(col string) string {
	v, ok := r.Field(col)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', 2, 64)
	case time.Time:
		return t.Format(DateLayout)
	default:
		return fmt.Sprint(t)
	}
}

// Table is an ordered sequence of canonical records sharing the fixed
// column layout. Immutable once validated.
type Table struct {
	Columns []string
	Records []Record
}

// NewTable creates an empty canonical table.
func NewTable() *Table {
	return &Table{Columns: append([]string(nil), Columns...)}
}

// HasDateColumn reports whether the table layout includes Date.
func (t *Table) HasDateColumn() bool {
	for _, c := range t.Columns {
		if c == "Date" {
			return true
		}
	}
	return false
}

// DateRange returns the min and max non-null dates in the table.
// ok is false when every date is null.
func (t *Table) DateRange() (min, max time.Time, ok bool) {
	for _, r := range t.Records {
		if r.Date == nil {
			continue
		}
		d := *r.Date
		if !ok {
			min, max, ok = d, d, true
			continue
		}
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, ok
}

// TotalQuantity sums the non-null Quantity values.
func (t *Table) TotalQuantity() int64 {
	var total int64
	for _, r := range t.Records {
		if r.Quantity != nil {
			total += *r.Quantity
		}
	}
	return total
}

// RawTable is a loosely typed table as decoded from the vendor CSV.
// It only exists between extract and transform.
type RawTable struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewRawTable builds a RawTable with a column index over the header.
func NewRawTable(header []string, rows [][]string) *RawTable {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return &RawTable{Header: header, Rows: rows, index: idx}
}

// HasColumn reports whether the source header contains the column.
func (t *RawTable) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Cell returns the trimmed cell value for a row and source column.
// A missing column, short row, or blank cell returns ok=false: blank
// vendor cells are nulls.
func (t *RawTable) Cell(row int, name string) (string, bool) {
	i, ok := t.index[name]
	if !ok || row < 0 || row >= len(t.Rows) {
		return "", false
	}
	cells := t.Rows[row]
	if i >= len(cells) {
		return "", false
	}
	v := strings.TrimSpace(cells[i])
	if v == "" {
		return "", false
	}
	return v, true
}
