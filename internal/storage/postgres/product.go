package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-feed/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const productColumns = `id, product_id, name, type, short_description, description,
	vendor_id, manufacturer_id, storefront_price_visibility, category_name,
	enriched, available, deleted, variants, created_at, updated_at`

// ProductRepository implements product.Repository backed by PostgreSQL.
// Variants are stored as a JSONB document on the product row.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Insert stores the products in one batch round trip.
func (r *ProductRepository) Insert(ctx context.Context, products ...product.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		variants, err := json.Marshal(p.Variants)
		if err != nil {
			return errors.Wrapf(err, "marshal variants of %s", p.ID)
		}
		batch.Queue(`INSERT INTO products (`+productColumns+`, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			p.ID, p.ProductID, p.Name, p.Type, p.ShortDescription, p.Description,
			p.VendorID, p.ManufacturerID, p.StorefrontPriceVisibility, p.CategoryName,
			p.Enriched, p.Available, p.Deleted, variants, p.CreatedAt, p.UpdatedAt,
			firstPrice(p),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for _, p := range products {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(err, "insert product %s", p.ID)
		}
	}
	return br.Close()
}

// GetByID returns a live product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// List returns all live products ordered by creation time.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE NOT deleted ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// ListUnenriched returns up to limit live products pending enrichment.
func (r *ProductRepository) ListUnenriched(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE NOT enriched AND NOT deleted LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list unenriched products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "list unenriched products")
	}
	return products, nil
}

// ApplyEnrichment sets the description and the completion flag in one
// conditional update.
func (r *ProductRepository) ApplyEnrichment(ctx context.Context, id, variantID, description string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products
		SET description = $2, enriched = TRUE, updated_at = now()
		WHERE id = $1
			AND variants -> 0 ->> 'id' = $3
			AND NOT enriched
			AND NOT deleted`,
		id, description, variantID,
	)
	if err != nil {
		return errors.Wrapf(err, "apply enrichment to %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Update applies a partial update and returns the stored product.
func (r *ProductRepository) Update(ctx context.Context, id string, patch product.Patch) (*product.Product, error) {
	var updated product.Product
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(&p)

		row := tx.QueryRow(ctx, `UPDATE products SET
				name = $2, type = $3, short_description = $4, description = $5,
				vendor_id = $6, storefront_price_visibility = $7, category_name = $8,
				available = $9, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			id, p.Name, p.Type, p.ShortDescription, p.Description,
			p.VendorID, p.StorefrontPriceVisibility, p.CategoryName, p.Available,
		)
		if err := row.Scan(&p.UpdatedAt); err != nil {
			return errors.Wrap(err, "update")
		}
		updated = p
		return nil
	})
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "update product %q", id)
	}
	return &updated, nil
}

// SoftDelete marks an available product deleted.
func (r *ProductRepository) SoftDelete(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		if !p.Available {
			return product.ErrDeleteGuarded
		}
		_, err = tx.Exec(ctx, `UPDATE products SET deleted = TRUE, updated_at = now() WHERE id = $1`, id)
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, product.ErrNotFound), errors.Is(err, product.ErrDeleteGuarded):
		return err
	default:
		return errors.Wrapf(err, "delete product %q", id)
	}
}

func lockProduct(ctx context.Context, tx pgx.Tx, id string) (product.Product, error) {
	rows, err := tx.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE id = $1 AND NOT deleted FOR UPDATE`, id)
	if err != nil {
		return product.Product{}, errors.Wrap(err, "lock")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.Product{}, product.ErrNotFound
		}
		return product.Product{}, errors.Wrap(err, "lock")
	}
	return p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		variants []byte
	)
	if err := row.Scan(
		&p.ID, &p.ProductID, &p.Name, &p.Type, &p.ShortDescription, &p.Description,
		&p.VendorID, &p.ManufacturerID, &p.StorefrontPriceVisibility, &p.CategoryName,
		&p.Enriched, &p.Available, &p.Deleted, &variants, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return product.Product{}, err
	}
	if err := json.Unmarshal(variants, &p.Variants); err != nil {
		return product.Product{}, errors.Wrapf(err, "unmarshal variants of %s", p.ID)
	}
	return p, nil
}

func firstPrice(p product.Product) decimal.NullDecimal {
	if len(p.Variants) == 0 {
		return decimal.NullDecimal{}
	}
	return p.Variants[0].Price
}
