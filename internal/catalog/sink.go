package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/catalog-feed/internal/domain/product"
)

// PersistError indicates the store rejected a normalized product.
type PersistError struct {
	SKU string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist product %s: %v", e.SKU, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Sink is the effectful end of the pipeline: one insertion per accepted row.
type Sink struct {
	repo  product.Repository
	newID func() string
	now   func() time.Time
}

// NewSink returns a Sink writing to repo.
func NewSink(repo product.Repository) *Sink {
	return &Sink{repo: repo, newID: uuid.NewString, now: time.Now}
}

// Persist assigns the document and variant ids and the timestamps, then
// inserts p. The stored product is returned.
func (s *Sink) Persist(ctx context.Context, p product.Product) (product.Product, error) {
	now := s.now().UTC()
	p.ID = s.newID()
	p.Enriched = false
	p.CreatedAt = now
	p.UpdatedAt = now
	for i := range p.Variants {
		p.Variants[i].ID = s.newID()
	}

	if err := s.repo.Insert(ctx, p); err != nil {
		return product.Product{}, &PersistError{SKU: sku(p), Err: err}
	}
	return p, nil
}

func sku(p product.Product) string {
	if len(p.Variants) == 0 {
		return p.ID
	}
	return p.Variants[0].SKU
}
