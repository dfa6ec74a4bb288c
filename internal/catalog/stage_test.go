package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-feed/internal/feed"
)

func row(mfr, pid, pkg string) feed.Row {
	return feed.Row{
		feed.ColManufacturerItemID: mfr,
		feed.ColProductID:          pid,
		feed.ColPackaging:          pkg,
	}
}

func TestKeyOf(t *testing.T) {
	k := KeyOf(row("M1", "P1", "BX"))
	assert.Equal(t, Key{ManufacturerItemID: "M1", ProductID: "P1", Packaging: "BX"}, k)
	assert.Equal(t, "M1-P1-BX", k.SKU())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		row  feed.Row
		want bool
	}{
		{name: "all required present", row: row("M1", "P1", "BX"), want: true},
		{name: "empty packaging", row: row("M1", "P1", ""), want: false},
		{name: "empty product id", row: row("M1", "", "BX"), want: false},
		{name: "empty manufacturer item id", row: row("", "P1", "BX"), want: false},
		{name: "absent columns", row: feed.Row{feed.ColProductName: "Gauze"}, want: false},
		{name: "other fields not checked", row: feed.Row{
			feed.ColManufacturerItemID: "M1",
			feed.ColProductID:          "P1",
			feed.ColPackaging:          "BX",
			feed.ColPrice:              "not a number",
		}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.row))
		})
	}
}

func TestTransform_InvalidRowNeverNormalized(t *testing.T) {
	seen := NewExactTracker()

	p, outcome := Transform(row("M1", "", "BX"), seen)

	assert.Equal(t, OutcomeInvalid, outcome)
	assert.Empty(t, p.Variants)
	assert.Zero(t, seen.Len())
}

func TestTransform_DuplicateRegardlessOfOtherFields(t *testing.T) {
	seen := NewExactTracker()
	first := row("M1", "P1", "BX")
	first[feed.ColProductName] = "Gauze"
	second := row("M1", "P1", "BX")
	second[feed.ColProductName] = "Different Gauze"
	second[feed.ColPrice] = "99"

	p, outcome := Transform(first, seen)
	require.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, "M1-P1-BX", p.Variants[0].SKU)

	_, outcome = Transform(second, seen)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestTransform_SKUMatchesDedupKey(t *testing.T) {
	rows := []feed.Row{row("M1", "P1", "BX"), row("A-B", "C", "D"), row("x", "y", "z")}
	for _, r := range rows {
		seen := NewExactTracker()
		p, outcome := Transform(r, seen)
		require.Equal(t, OutcomeAccepted, outcome)

		key := KeyOf(r)
		assert.Equal(t, key.SKU(), p.Variants[0].SKU)
		assert.True(t, seen.Seen(key))
	}
}

func TestTransform_SameSKUDistinctKeys(t *testing.T) {
	seen := NewExactTracker()

	first, outcome := Transform(row("A-B", "C", "D"), seen)
	require.Equal(t, OutcomeAccepted, outcome)
	second, outcome := Transform(row("A", "B-C", "D"), seen)
	require.Equal(t, OutcomeAccepted, outcome)

	assert.Equal(t, "A-B-C-D", first.Variants[0].SKU)
	assert.Equal(t, first.Variants[0].SKU, second.Variants[0].SKU)
}

func TestTransform_PartitionIsIdempotent(t *testing.T) {
	rows := []feed.Row{
		row("M1", "P1", "BX"),
		row("M1", "P1", ""),
		row("M1", "P1", "BX"),
		row("M2", "P1", "BX"),
		row("", "P9", "CS"),
		row("M2", "P1", "BX"),
	}
	partition := func() []Outcome {
		seen := NewExactTracker()
		out := make([]Outcome, len(rows))
		for i, r := range rows {
			_, out[i] = Transform(r, seen)
		}
		return out
	}

	want := []Outcome{
		OutcomeAccepted, OutcomeInvalid, OutcomeDuplicate,
		OutcomeAccepted, OutcomeInvalid, OutcomeDuplicate,
	}
	assert.Equal(t, want, partition())
	assert.Equal(t, partition(), partition())
}

func TestNormalize(t *testing.T) {
	r := feed.Row{
		feed.ColManufacturerItemID:        "M1",
		feed.ColProductID:                 "P1",
		feed.ColPackaging:                 "BX",
		feed.ColProductName:               "Gauze",
		feed.ColType:                      "simple",
		feed.ColShortDescription:          "Gauze pads",
		feed.ColItemDescription:           "4x4 sterile gauze pad",
		feed.ColVendorID:                  "V100",
		feed.ColStorefrontPriceVisibility: "visible",
		feed.ColCategoryName:              "Wound Care",
		feed.ColAvailability:              "no",
		feed.ColPrice:                     "12.50",
		feed.ColCurrency:                  "EUR",
		feed.ColManufacturerItemCode:      "MC-77",
	}

	p := Normalize(r, KeyOf(r))

	assert.Empty(t, p.ID)
	assert.Equal(t, "P1", p.ProductID)
	assert.Equal(t, "Gauze", p.Name)
	assert.Equal(t, "simple", p.Type)
	assert.Equal(t, "Gauze pads", p.ShortDescription)
	assert.Equal(t, "4x4 sterile gauze pad", p.Description)
	assert.Equal(t, "V100", p.VendorID)
	assert.Equal(t, "M1", p.ManufacturerID)
	assert.Equal(t, "visible", p.StorefrontPriceVisibility)
	assert.Equal(t, "Wound Care", p.CategoryName)
	assert.False(t, p.Enriched)
	assert.True(t, p.Available)

	require.Len(t, p.Variants, 1)
	v := p.Variants[0]
	assert.False(t, v.Available)
	assert.Equal(t, "M1-P1-BX", v.SKU)
	assert.Equal(t, "HSI MC-77", v.ItemCode)
	assert.Equal(t, "MC-77", v.ManufacturerItemCode)
	assert.Equal(t, "BX", v.Packaging)
	assert.Equal(t, "EUR", v.Currency)
	assert.Equal(t, "4x4 sterile gauze pad", v.Description)
	assert.Equal(t, map[string]string{"packaging": "BX", "description": "4x4 sterile gauze pad"}, v.Attributes)
	require.True(t, v.Price.Valid)
	assert.True(t, decimal.RequireFromString("12.50").Equal(v.Price.Decimal))
	assert.Equal(t, "12.50", v.PriceText)
	assert.Equal(t, v.Price, v.Cost)

	require.Len(t, v.Images, 1)
	assert.Empty(t, v.Images[0].FileName)
	assert.Nil(t, v.Images[0].CDNLink)
	assert.Nil(t, v.Images[0].Alt)
	assert.Zero(t, v.Images[0].Index)
}

func TestNormalize_PriceTextKept(t *testing.T) {
	for _, cell := range []string{"$12.50", "1,234.00", "12.50 USD", "call for price", ""} {
		t.Run(cell, func(t *testing.T) {
			r := row("M1", "P1", "BX")
			r[feed.ColPrice] = cell

			v := Normalize(r, KeyOf(r)).Variants[0]
			assert.Equal(t, cell, v.PriceText)
			assert.False(t, v.Price.Valid)
			assert.False(t, v.Cost.Valid)
		})
	}
}

func TestNormalize_LenientFields(t *testing.T) {
	r := row("M1", "P1", "BX")
	r[feed.ColPrice] = "call for price"

	p := Normalize(r, KeyOf(r))

	v := p.Variants[0]
	assert.False(t, v.Price.Valid)
	assert.False(t, v.Cost.Valid)
	assert.Equal(t, "USD", v.Currency)
	assert.True(t, v.Available)
	assert.Equal(t, "HSI ", v.ItemCode)
}
