// Package catalog turns decoded feed rows into persisted catalog products.
//
// Each row passes through pure stages (validate, dedup, normalize) before it
// reaches the only effectful stage, the Sink. The dedup state belongs to a
// single ingestion run and is never shared between runs.
package catalog

import (
	"encoding/binary"

	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/feed"
)

// Key is the canonical identity of a feed row. Dedup compares all three
// parts, so rows whose parts differ never collide even when their SKUs do.
type Key struct {
	ManufacturerItemID string
	ProductID          string
	Packaging          string
}

// KeyOf builds the canonical key of row. Every dedup test, dedup insert and
// SKU goes through this function.
func KeyOf(row feed.Row) Key {
	return Key{
		ManufacturerItemID: row.Get(feed.ColManufacturerItemID),
		ProductID:          row.Get(feed.ColProductID),
		Packaging:          row.Get(feed.ColPackaging),
	}
}

// SKU joins the key parts with "-".
func (k Key) SKU() string {
	return k.ManufacturerItemID + "-" + k.ProductID + "-" + k.Packaging
}

// appendBinary appends a length-prefixed encoding of k, unambiguous for any
// part contents.
func (k Key) appendBinary(b []byte) []byte {
	for _, part := range [...]string{k.ManufacturerItemID, k.ProductID, k.Packaging} {
		b = binary.AppendUvarint(b, uint64(len(part)))
		b = append(b, part...)
	}
	return b
}

// Validate reports whether row carries the fields required to become a
// catalog entry. Absent columns count as empty.
func Validate(row feed.Row) bool {
	return row.Get(feed.ColPackaging) != "" &&
		row.Get(feed.ColProductID) != "" &&
		row.Get(feed.ColManufacturerItemID) != ""
}

// Outcome is the result of pushing one row through the pipeline.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePersisted Outcome = "persisted"
	OutcomeFailed    Outcome = "failed"
)

// Transform runs the pure stages for one row against the run's tracker. The
// key of an accepted row is recorded before the row is persisted, so the
// accepted/skipped partition of a feed does not depend on the store.
func Transform(row feed.Row, seen Tracker) (product.Product, Outcome) {
	if !Validate(row) {
		return product.Product{}, OutcomeInvalid
	}
	key := KeyOf(row)
	if seen.Seen(key) {
		return product.Product{}, OutcomeDuplicate
	}
	seen.Record(key)
	return Normalize(row, key), OutcomeAccepted
}
