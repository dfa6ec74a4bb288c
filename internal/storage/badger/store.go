// Package badger implements the product store on an embedded Badger database.
package badger

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/catalog-feed/internal/domain/product"
)

const productPrefix = "product/"

func productKey(id string) []byte {
	return []byte(productPrefix + id)
}

// zapLogger adapts zap to badger.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

var _ badger.Logger = zapLogger{}

func (l zapLogger) Errorf(msg string, args ...any)   { l.s.Errorf(strings.TrimSpace(msg), args...) }
func (l zapLogger) Warningf(msg string, args ...any) { l.s.Warnf(strings.TrimSpace(msg), args...) }
func (l zapLogger) Infof(msg string, args ...any)    { l.s.Debugf(strings.TrimSpace(msg), args...) }
func (l zapLogger) Debugf(msg string, args ...any)   { l.s.Debugf(strings.TrimSpace(msg), args...) }

// Store implements product.Repository on Badger. Products are JSON documents
// keyed by id.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ product.Repository = (*Store)(nil)

// Open opens the database at dir, creating it when missing. Empty dir opens
// an in-memory database.
func Open(dir string, lg *zap.Logger) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	opts.Logger = zapLogger{s: lg.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger closed")
	}
	return nil
}

// Insert stores the products in one transaction.
func (s *Store) Insert(_ context.Context, products ...product.Product) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, p := range products {
			key := productKey(p.ID)
			if _, err := txn.Get(key); err == nil {
				return errors.Errorf("product %s already exists", p.ID)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := put(txn, p); err != nil {
				return errors.Wrapf(err, "insert product %s", p.ID)
			}
		}
		return nil
	})
}

// GetByID returns a live product.
func (s *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getLive(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all live products ordered by creation time.
func (s *Store) List(ctx context.Context) ([]product.Product, error) {
	products, err := s.scan(ctx, func(product.Product) bool { return true }, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	slices.SortFunc(products, func(a, b product.Product) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

// ListUnenriched returns up to limit live products pending enrichment.
func (s *Store) ListUnenriched(ctx context.Context, limit int) ([]product.Product, error) {
	products, err := s.scan(ctx, func(p product.Product) bool { return !p.Enriched }, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list unenriched products")
	}
	return products, nil
}

// ApplyEnrichment sets the description and the completion flag while the
// product is still pending.
func (s *Store) ApplyEnrichment(_ context.Context, id, variantID, description string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		p, err := getLive(txn, id)
		if err != nil {
			return err
		}
		if p.Enriched || p.FirstVariantID() != variantID {
			return product.ErrNotFound
		}
		p.Description = description
		p.Enriched = true
		p.UpdatedAt = s.now().UTC()
		return put(txn, p)
	})
}

// Update applies a partial update and returns the stored product.
func (s *Store) Update(_ context.Context, id string, patch product.Patch) (*product.Product, error) {
	var p product.Product
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if p, err = getLive(txn, id); err != nil {
			return err
		}
		patch.Apply(&p)
		p.UpdatedAt = s.now().UTC()
		return put(txn, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SoftDelete marks an available product deleted.
func (s *Store) SoftDelete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		p, err := getLive(txn, id)
		if err != nil {
			return err
		}
		if !p.Available {
			return product.ErrDeleteGuarded
		}
		p.Deleted = true
		p.UpdatedAt = s.now().UTC()
		return put(txn, p)
	})
}

// scan collects live products accepted by keep. Non-positive limit means no
// limit.
func (s *Store) scan(ctx context.Context, keep func(product.Product) bool, limit int) ([]product.Product, error) {
	var out []product.Product
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(productPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p product.Product
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return errors.Wrapf(err, "decode %s", it.Item().Key())
			}
			if p.Deleted || !keep(p) {
				continue
			}
			out = append(out, p)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

func getLive(txn *badger.Txn, id string) (product.Product, error) {
	item, err := txn.Get(productKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return product.Product{}, product.ErrNotFound
		}
		return product.Product{}, errors.Wrapf(err, "get product %q", id)
	}
	var p product.Product
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return product.Product{}, errors.Wrapf(err, "decode product %q", id)
	}
	if p.Deleted {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func put(txn *badger.Txn, p product.Product) error {
	val, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return txn.Set(productKey(p.ID), val)
}
