// Package feed decodes the tab-delimited catalog feed into field-keyed rows.
//
// Decoding is lazy and single-pass: rows are read from the underlying stream
// one at a time, so feeds far larger than memory can be processed.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/go-faster/errors"
)

// Feed column names.
const (
	ColManufacturerItemID        = "ManufacturerItemId"
	ColProductID                 = "ProductID"
	ColPackaging                 = "PKG"
	ColProductName               = "ProductName"
	ColType                      = "type"
	ColShortDescription          = "shortDescription"
	ColItemDescription           = "ItemDescription"
	ColVendorID                  = "vendorId"
	ColStorefrontPriceVisibility = "storefrontPriceVisibility"
	ColCategoryName              = "categoryName"
	ColAvailability              = "availbility" // sic, as sent by the supplier
	ColPrice                     = "price"
	ColCurrency                  = "currency"
	ColManufacturerItemCode      = "ManufacturerItemCode"
)

const utf8BOM = "\ufeff"

// Row maps header names to cell values for one feed line.
type Row map[string]string

// Get returns the value of column name, or "" when the column is absent.
func (r Row) Get(name string) string {
	return r[name]
}

// DecodeError reports an unreadable or malformed feed stream. It aborts the
// whole ingestion run.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode feed line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder reads a tab-delimited stream whose first line is the header.
type Decoder struct {
	r *csv.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return &Decoder{r: cr}
}

// Rows returns the sequence of decoded rows in input order. On a decode
// failure the sequence yields a *DecodeError once and stops. The sequence can
// only be consumed once.
func (d *Decoder) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		header, err := d.r.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, d.decodeError(1, err))
			return
		}
		header = normalizeHeader(header)

		line := 1
		for {
			record, err := d.r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, d.decodeError(line+1, err))
				return
			}
			line, _ = d.r.FieldPos(0)

			if !yield(makeRow(header, record), nil) {
				return
			}
		}
	}
}

func (d *Decoder) decodeError(line int, err error) *DecodeError {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		line = perr.Line
	}
	return &DecodeError{Line: line, Err: err}
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// makeRow pairs header names with cells. Missing trailing cells are empty and
// cells beyond the header are dropped.
func makeRow(header, record []string) Row {
	row := make(Row, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row
}
