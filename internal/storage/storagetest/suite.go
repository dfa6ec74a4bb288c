// Package storagetest holds behavior tests shared by every product.Repository
// backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-feed/internal/domain/product"
)

// Factory returns an empty repository for one test.
type Factory func(t *testing.T) product.Repository

// Fixture returns a stored-ready product with one variant.
func Fixture(name string) product.Product {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	return product.Product{
		ID:           uuid.NewString(),
		ProductID:    "P-" + name,
		Name:         name,
		Description:  "plain " + name,
		CategoryName: "Wound Care",
		Available:    true,
		Variants: []product.Variant{{
			ID:        uuid.NewString(),
			Available: true,
			Attributes: map[string]string{
				"packaging":   "BX",
				"description": "Box of 10",
			},
			Price:     decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
			PriceText: "12.50",
			Currency:  "USD",
			Packaging: "BX",
			SKU:       "M-" + name + "-BX",
			ItemCode:  "HSI C-" + name,
			Images:    []product.Image{{}},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run executes the shared repository behavior tests.
func Run(t *testing.T, newRepo Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newRepo(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newRepo(t)) })
	t.Run("PricePrecision", func(t *testing.T) { testPricePrecision(t, newRepo(t)) })
	t.Run("PriceText", func(t *testing.T) { testPriceText(t, newRepo(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("ListUnenriched", func(t *testing.T) { testListUnenriched(t, newRepo(t)) })
	t.Run("ApplyEnrichment", func(t *testing.T) { testApplyEnrichment(t, newRepo(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("SoftDelete", func(t *testing.T) { testSoftDelete(t, newRepo(t)) })
}

func testInsertAndGet(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	p := Fixture("gauze")
	require.NoError(t, repo.Insert(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.ProductID, got.ProductID)
	assert.False(t, got.Enriched)
	assert.True(t, got.Available)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	require.Len(t, got.Variants, 1)
	v := got.Variants[0]
	assert.Equal(t, p.Variants[0].ID, v.ID)
	assert.Equal(t, "M-gauze-BX", v.SKU)
	assert.Equal(t, "Box of 10", v.Attributes["description"])
	require.True(t, v.Price.Valid)
	assert.True(t, v.Price.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.False(t, v.Cost.Valid)
	require.Len(t, v.Images, 1)
	assert.Nil(t, v.Images[0].CDNLink)
}

func testPricePrecision(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	p := Fixture("autoclave")
	price := decimal.RequireFromString("123456789012345.123456789")
	p.Variants[0].Price = decimal.NewNullDecimal(price)
	p.Variants[0].PriceText = "123456789012345.123456789"
	require.NoError(t, repo.Insert(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	v := got.Variants[0]
	require.True(t, v.Price.Valid)
	assert.True(t, price.Equal(v.Price.Decimal), "got %s", v.Price.Decimal)
	assert.Equal(t, "123456789012345.123456789", v.PriceText)
}

func testPriceText(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	p := Fixture("gloves")
	p.Variants[0].Price = decimal.NullDecimal{}
	p.Variants[0].PriceText = "$12.50 / box"
	require.NoError(t, repo.Insert(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	v := got.Variants[0]
	assert.False(t, v.Price.Valid)
	assert.Equal(t, "$12.50 / box", v.PriceText)
}

func testGetMissing(t *testing.T, repo product.Repository) {
	_, err := repo.GetByID(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, product.ErrNotFound)
}

func testList(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	a, b := Fixture("a"), Fixture("b")
	require.NoError(t, repo.Insert(ctx, a, b))
	require.NoError(t, repo.SoftDelete(ctx, b.ID))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func testListUnenriched(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	var all []product.Product
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		all = append(all, Fixture(name))
	}
	require.NoError(t, repo.Insert(ctx, all...))
	require.NoError(t, repo.ApplyEnrichment(ctx, all[0].ID, all[0].FirstVariantID(), "rich"))

	got, err := repo.ListUnenriched(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, p := range got {
		assert.False(t, p.Enriched)
		assert.NotEqual(t, all[0].ID, p.ID)
	}

	got, err = repo.ListUnenriched(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func testApplyEnrichment(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	p := Fixture("gauze")
	require.NoError(t, repo.Insert(ctx, p))

	err := repo.ApplyEnrichment(ctx, p.ID, uuid.NewString(), "wrong variant")
	require.ErrorIs(t, err, product.ErrNotFound)

	require.NoError(t, repo.ApplyEnrichment(ctx, p.ID, p.FirstVariantID(), "Absorbent sterile gauze."))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Enriched)
	assert.Equal(t, "Absorbent sterile gauze.", got.Description)

	// One-way: a second application matches nothing and changes nothing.
	err = repo.ApplyEnrichment(ctx, p.ID, p.FirstVariantID(), "overwrite")
	require.ErrorIs(t, err, product.ErrNotFound)

	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Absorbent sterile gauze.", got.Description)

	err = repo.ApplyEnrichment(ctx, uuid.NewString(), p.FirstVariantID(), "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func testUpdate(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	p := Fixture("gauze")
	require.NoError(t, repo.Insert(ctx, p))

	name := "Sterile Gauze"
	available := false
	got, err := repo.Update(ctx, p.ID, product.Patch{Name: &name, Available: &available})
	require.NoError(t, err)
	assert.Equal(t, "Sterile Gauze", got.Name)
	assert.False(t, got.Available)
	assert.Equal(t, p.Description, got.Description)
	assert.Len(t, got.Variants, 1)

	stored, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sterile Gauze", stored.Name)
	assert.False(t, stored.Available)

	_, err = repo.Update(ctx, uuid.NewString(), product.Patch{Name: &name})
	require.ErrorIs(t, err, product.ErrNotFound)
}

func testSoftDelete(t *testing.T, repo product.Repository) {
	ctx := context.Background()
	open, guarded := Fixture("open"), Fixture("guarded")
	guarded.Available = false
	require.NoError(t, repo.Insert(ctx, open, guarded))

	require.ErrorIs(t, repo.SoftDelete(ctx, guarded.ID), product.ErrDeleteGuarded)
	_, err := repo.GetByID(ctx, guarded.ID)
	require.NoError(t, err)

	require.NoError(t, repo.SoftDelete(ctx, open.ID))
	_, err = repo.GetByID(ctx, open.ID)
	require.ErrorIs(t, err, product.ErrNotFound)

	require.ErrorIs(t, repo.SoftDelete(ctx, open.ID), product.ErrNotFound)
	require.ErrorIs(t, repo.SoftDelete(ctx, uuid.NewString()), product.ErrNotFound)

	err = repo.ApplyEnrichment(ctx, open.ID, open.FirstVariantID(), "deleted")
	require.ErrorIs(t, err, product.ErrNotFound)
}
