package catalog

import (
	"context"
	"strings"

	"github.com/xenking/catalog-feed/internal/domain/product"
)

// mockProductRepo records inserts and can fail selected SKUs.
type mockProductRepo struct {
	inserted []product.Product
	failSKU  map[string]error
	err      error
}

func (m *mockProductRepo) Insert(_ context.Context, products ...product.Product) error {
	if m.err != nil {
		return m.err
	}
	for _, p := range products {
		if err, ok := m.failSKU[p.Variants[0].SKU]; ok {
			return err
		}
	}
	m.inserted = append(m.inserted, products...)
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range m.inserted {
		if m.inserted[i].ID == id {
			return &m.inserted[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.inserted, nil
}

func (m *mockProductRepo) ListUnenriched(_ context.Context, _ int) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) ApplyEnrichment(_ context.Context, _, _, _ string) error {
	return nil
}

func (m *mockProductRepo) Update(_ context.Context, _ string, _ product.Patch) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) SoftDelete(_ context.Context, _ string) error {
	return nil
}

const header = "ManufacturerItemId\tProductID\tPKG\tProductName\ttype\tshortDescription\tItemDescription\t" +
	"vendorId\tstorefrontPriceVisibility\tcategoryName\tavailbility\tprice\tcurrency\tManufacturerItemCode\n"

// feedOf builds a feed from rows of the 14 header columns.
func feedOf(rows ...[]string) *strings.Reader {
	var b strings.Builder
	b.WriteString(header)
	for _, r := range rows {
		b.WriteString(strings.Join(r, "\t"))
		b.WriteString("\n")
	}
	return strings.NewReader(b.String())
}

func gauzeRow(mfr, pid, pkg, name string) []string {
	return []string{
		mfr, pid, pkg, name, "simple", "Gauze pads", "4x4 sterile gauze pad",
		"V100", "visible", "Wound Care", "true", "12.50", "USD", "MC-" + mfr,
	}
}
