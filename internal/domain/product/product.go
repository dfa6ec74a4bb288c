package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist, is
	// soft-deleted, or did not match the update filter.
	ErrNotFound = errors.New("product not found")
	// ErrDeleteGuarded is returned when deleting a product whose availability
	// flag is unset, which marks it as tied to open orders.
	ErrDeleteGuarded = errors.New("cannot delete product with existing orders")
)

// Product is a canonical catalog entry. It owns its variants.
type Product struct {
	ID                        string    `json:"id"`
	ProductID                 string    `json:"productId"`
	Name                      string    `json:"name"`
	Type                      string    `json:"type"`
	ShortDescription          string    `json:"shortDescription"`
	Description               string    `json:"description"`
	VendorID                  string    `json:"vendorId"`
	ManufacturerID            string    `json:"manufacturerId"`
	StorefrontPriceVisibility string    `json:"storefrontPriceVisibility"`
	CategoryName              string    `json:"categoryName"`
	Enriched                  bool      `json:"enriched"`
	Available                 bool      `json:"available"`
	Deleted                   bool      `json:"deleted"`
	Variants                  []Variant `json:"variants"`
	CreatedAt                 time.Time `json:"createdAt"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// FirstVariantID returns the id of the first variant, or "" when there is none.
func (p *Product) FirstVariantID() string {
	if len(p.Variants) == 0 {
		return ""
	}
	return p.Variants[0].ID
}

// Variant is a purchasable unit of a Product. PriceText is the feed's price
// cell as read; Cost and Price are set only when it parses as a decimal.
type Variant struct {
	ID                   string              `json:"id"`
	Available            bool                `json:"available"`
	Attributes           map[string]string   `json:"attributes"`
	Cost                 decimal.NullDecimal `json:"cost"`
	Price                decimal.NullDecimal `json:"price"`
	PriceText            string              `json:"priceText"`
	Currency             string              `json:"currency"`
	Dimensions           *Dimensions         `json:"dimensions,omitempty"`
	Packaging            string              `json:"packaging"`
	Description          string              `json:"description"`
	ManufacturerItemCode string              `json:"manufacturerItemCode"`
	SKU                  string              `json:"sku"`
	ItemCode             string              `json:"itemCode"`
	Images               []Image             `json:"images"`
}

// Dimensions holds optional physical measurements of a variant.
type Dimensions struct {
	Depth        decimal.NullDecimal `json:"depth"`
	Width        decimal.NullDecimal `json:"width"`
	Height       decimal.NullDecimal `json:"height"`
	DimensionUOM string              `json:"dimensionUom,omitempty"`
	Volume       decimal.NullDecimal `json:"volume"`
	VolumeUOM    string              `json:"volumeUom,omitempty"`
	Weight       decimal.NullDecimal `json:"weight"`
	WeightUOM    string              `json:"weightUom,omitempty"`
}

// Image is a variant image reference.
type Image struct {
	FileName string  `json:"fileName"`
	CDNLink  *string `json:"cdnLink"`
	Index    int     `json:"i"`
	Alt      *string `json:"alt"`
}

// Patch is a partial update of the mutable top-level product fields.
// Nil fields are left untouched.
type Patch struct {
	Name                      *string `json:"name"`
	Type                      *string `json:"type"`
	ShortDescription          *string `json:"shortDescription"`
	Description               *string `json:"description"`
	VendorID                  *string `json:"vendorId"`
	StorefrontPriceVisibility *string `json:"storefrontPriceVisibility"`
	CategoryName              *string `json:"categoryName"`
	Available                 *bool   `json:"available"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Type == nil && p.ShortDescription == nil &&
		p.Description == nil && p.VendorID == nil &&
		p.StorefrontPriceVisibility == nil && p.CategoryName == nil && p.Available == nil
}

// Apply copies the set fields of the patch onto dst.
func (p Patch) Apply(dst *Product) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&dst.Name, p.Name)
	set(&dst.Type, p.Type)
	set(&dst.ShortDescription, p.ShortDescription)
	set(&dst.Description, p.Description)
	set(&dst.VendorID, p.VendorID)
	set(&dst.StorefrontPriceVisibility, p.StorefrontPriceVisibility)
	set(&dst.CategoryName, p.CategoryName)
	if p.Available != nil {
		dst.Available = *p.Available
	}
}

// Repository is the document store over products. Soft-deleted products are
// invisible to every read.
type Repository interface {
	// Insert stores new products. Each product must carry its document id.
	Insert(ctx context.Context, products ...Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	// ListUnenriched returns up to limit products whose Enriched flag is
	// unset. No ordering is guaranteed.
	ListUnenriched(ctx context.Context, limit int) ([]Product, error)
	// ApplyEnrichment sets the description and flips Enriched on the product
	// matching id and first variant id, only while Enriched is still false.
	// Returns ErrNotFound when nothing matched.
	ApplyEnrichment(ctx context.Context, id, variantID, description string) error
	Update(ctx context.Context, id string, patch Patch) (*Product, error)
	// SoftDelete marks the product deleted. Unavailable products are guarded
	// with ErrDeleteGuarded.
	SoftDelete(ctx context.Context, id string) error
}
