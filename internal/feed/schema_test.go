package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	d := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	price := 5.0
	qty := int64(10)
	guid := int64(0)
	return Record{
		SellerID:         ptr("VILJOEN"),
		GUID:             &guid,
		Date:             &d,
		Reference:        ptr("INV001"),
		CustomerCode:     ptr("SPAR01"),
		Name:             ptr("SPAR EDENVALE"),
		PhysicalAddress4: ptr("Unit 4 Main Rd"),
		StockCode:        ptr("CB330"),
		Description:      ptr("Cola 330ml"),
		PriceExVat:       &price,
		Quantity:         &qty,
		ProductBarCodeID: ptr(""),
	}
}

func tableOf(records ...Record) *Table {
	t := NewTable()
	t.Records = records
	return t
}

func TestValidate_CleanTablePasses(t *testing.T) {
	report := Validate(tableOf(validRecord()), DefaultSchema())
	assert.True(t, report.Empty())
	assert.Zero(t, report.Count())
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	// Three simultaneous violations across two rows: validation is
	// lazy, so all of them must appear.
	r1 := validRecord()
	r1.Reference = nil
	r1.CustomerCode = ptr("spar01") // lowercase fails the pattern

	r2 := validRecord()
	r2.PriceExVat = nil

	report := Validate(tableOf(r1, r2), DefaultSchema())
	require.Equal(t, 3, report.Count())

	checks := map[string]Violation{}
	for _, v := range report.Violations {
		checks[v.Column] = v
	}

	assert.Equal(t, 0, checks["Reference"].Row)
	assert.Equal(t, "not_nullable", checks["Reference"].Check)
	assert.Equal(t, 0, checks["Customer_Code"].Row)
	assert.Equal(t, "matches([A-Z0-9]+)", checks["Customer_Code"].Check)
	assert.Equal(t, "spar01", checks["Customer_Code"].Value)
	assert.Equal(t, 1, checks["Price_Ex_Vat"].Row)
	assert.Equal(t, "not_nullable", checks["Price_Ex_Vat"].Check)
}

func TestValidate_NullableColumnsPass(t *testing.T) {
	r := validRecord()
	r.PhysicalAddress1 = nil
	r.Telephone = nil
	r.RepCode = nil

	report := Validate(tableOf(r), DefaultSchema())
	assert.True(t, report.Empty())
}

func TestValidate_NegativeGUID(t *testing.T) {
	r := validRecord()
	guid := int64(-1)
	r.GUID = &guid

	report := Validate(tableOf(r), DefaultSchema())
	require.Equal(t, 1, report.Count())
	assert.Equal(t, "GUID", report.Violations[0].Column)
	assert.Equal(t, "ge(0)", report.Violations[0].Check)
	assert.Equal(t, "-1", report.Violations[0].Value)
}

func TestValidate_ClosedSchema_ExtraColumn(t *testing.T) {
	table := tableOf(validRecord())
	table.Columns = append(table.Columns, "Surprise")

	report := Validate(table, DefaultSchema())
	require.False(t, report.Empty())

	found := false
	for _, v := range report.Violations {
		if v.Check == "column_not_in_schema" && v.Column == "Surprise" {
			found = true
			assert.Equal(t, -1, v.Row)
		}
	}
	assert.True(t, found)
}

func TestValidate_ClosedSchema_MissingColumn(t *testing.T) {
	table := tableOf(validRecord())
	table.Columns = table.Columns[:len(table.Columns)-1] // drop ProductBarCodeID

	report := Validate(table, DefaultSchema())
	require.False(t, report.Empty())
	assert.Equal(t, "column_missing", report.Violations[0].Check)
	assert.Equal(t, "ProductBarCodeID", report.Violations[0].Column)
}

func TestValidate_ZeroQuantityRowFlaggedOnPrice(t *testing.T) {
	// A zero-quantity row leaves the derived price null; the contract
	// breach shows up here, not in the transform.
	raw := NewRawTable(vendorHeader, [][]string{vendorRow(map[string]string{"Quantity": "0"})})
	table := Transform(raw, TransformOptions{SellerID: "VILJOEN", FallbackCustomer: "X"})

	report := Validate(table, DefaultSchema())
	require.Equal(t, 1, report.Count())
	assert.Equal(t, "Price_Ex_Vat", report.Violations[0].Column)
	assert.Equal(t, "not_nullable", report.Violations[0].Check)
}
