package types

import (
	"sort"
	"strings"

	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// Product is the contract metadata for one underlying. Option symbols are
// resolved to their product by prefix, e.g. NIFTY24DEC24500CE -> NIFTY.
type Product struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// LotSize is the exchange contract size for one lot.
	LotSize int `yaml:"lot_size" json:"lot_size" validate:"required,gt=0"`
	// UnderlyingPrice is the reference price of the underlying index used
	// for short-option margin when no live price is available.
	UnderlyingPrice float64 `yaml:"underlying_price" json:"underlying_price" validate:"required,gt=0"`
}

// ProductCatalog resolves symbols to products. Resolution is by longest
// matching name prefix so BANKNIFTY wins over any shorter candidate.
type ProductCatalog struct {
	products []Product
}

// NewProductCatalog builds a catalog from the given products.
func NewProductCatalog(products []Product) *ProductCatalog {
	sorted := make([]Product, len(products))
	copy(sorted, products)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Name) > len(sorted[j].Name)
	})

	return &ProductCatalog{products: sorted}
}

// DefaultProducts returns the built-in NSE index option contracts.
func DefaultProducts() []Product {
	return []Product{
		{Name: "NIFTY", LotSize: 50, UnderlyingPrice: 21500},
		{Name: "BANKNIFTY", LotSize: 25, UnderlyingPrice: 46000},
		{Name: "FINNIFTY", LotSize: 40, UnderlyingPrice: 21500},
	}
}

// Resolve returns the product whose name prefixes the symbol.
func (c *ProductCatalog) Resolve(symbol string) (Product, error) {
	for _, p := range c.products {
		if strings.HasPrefix(symbol, p.Name) {
			return p, nil
		}
	}

	return Product{}, errors.Newf(errors.ErrCodeUnknownSymbol, "no product for symbol %s", symbol)
}

// Products returns the catalog contents in resolution order.
func (c *ProductCatalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)

	return out
}
