package orderflow

import (
	"fmt"
	"strings"
)

// Product is one entry of the configured price list.
type Product struct {
	Name  string `koanf:"name" json:"name" validate:"required"`
	Price int    `koanf:"price" json:"price" validate:"gte=0"`
}

// RenderPriceList formats the configured products as a plain-text price list,
// one product per line. Returns an empty string when no products are configured.
func RenderPriceList(header string, products []Product) string {
	if len(products) == 0 {
		return ""
	}

	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteByte('\n')
	}
	for i, p := range products {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %d", p.Name, p.Price)
	}
	return b.String()
}
