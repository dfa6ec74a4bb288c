// Package enrich replaces catalog descriptions with text generated by an
// external service, one bounded batch of un-enriched products at a time.
package enrich

import (
	"context"
	"fmt"
)

// Enhancer generates a new product description.
//
// Implementations return *EnhancementError on any failure and never a partial
// result.
type Enhancer interface {
	Enhance(ctx context.Context, name, description, category string) (string, error)
}

// EnhancementError reports that the text-generation call failed or returned
// no usable text.
type EnhancementError struct {
	Err error
}

func (e *EnhancementError) Error() string {
	return fmt.Sprintf("generate description: %v", e.Err)
}

func (e *EnhancementError) Unwrap() error {
	return e.Err
}

// Prompt renders the fixed generation prompt for one product.
func Prompt(name, description, category string) string {
	return fmt.Sprintf(`You are an expert in medical sales. Your specialty is medical consumables used by hospitals on a daily basis.
Product Name: %s
Product Description: %s
Category: %s

New Description: `, name, description, category)
}
