package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/feed"
)

const (
	defaultCurrency = "USD"
	itemCodePrefix  = "HSI "
)

// Normalize maps a validated, non-duplicate row to a Product with exactly one
// Variant. It performs no I/O; ids and timestamps are assigned by the Sink.
func Normalize(row feed.Row, key Key) product.Product {
	description := row.Get(feed.ColItemDescription)
	packaging := row.Get(feed.ColPackaging)
	priceText := row.Get(feed.ColPrice)
	price := parseAmount(priceText)

	currency := strings.TrimSpace(row.Get(feed.ColCurrency))
	if currency == "" {
		currency = defaultCurrency
	}

	return product.Product{
		ProductID:                 row.Get(feed.ColProductID),
		Name:                      row.Get(feed.ColProductName),
		Type:                      row.Get(feed.ColType),
		ShortDescription:          row.Get(feed.ColShortDescription),
		Description:               description,
		VendorID:                  row.Get(feed.ColVendorID),
		ManufacturerID:            row.Get(feed.ColManufacturerItemID),
		StorefrontPriceVisibility: row.Get(feed.ColStorefrontPriceVisibility),
		CategoryName:              row.Get(feed.ColCategoryName),
		Available:                 true,
		Variants: []product.Variant{{
			Available: parseAvailable(row.Get(feed.ColAvailability)),
			Attributes: map[string]string{
				"packaging":   packaging,
				"description": description,
			},
			Cost:                 price,
			Price:                price,
			PriceText:            priceText,
			Currency:             currency,
			Packaging:            packaging,
			Description:          description,
			ManufacturerItemCode: row.Get(feed.ColManufacturerItemCode),
			SKU:                  key.SKU(),
			ItemCode:             itemCodePrefix + row.Get(feed.ColManufacturerItemCode),
			Images:               []product.Image{{FileName: "", CDNLink: nil, Index: 0, Alt: nil}},
		}},
	}
}

// parseAmount reads a price cell. Cells that are not plain decimal numbers
// become NULL; the cell itself is kept in Variant.PriceText.
func parseAmount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// parseAvailable treats an empty cell as available.
func parseAvailable(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "0", "n", "no", "unavailable", "out of stock", "discontinued":
		return false
	default:
		return true
	}
}
