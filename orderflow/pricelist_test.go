package orderflow

import "testing"

func TestRenderPriceList(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		products []Product
		want     string
	}{
		{
			name:   "header and products",
			header: "Актуальний прайс-лист:",
			products: []Product{
				{Name: "Мед", Price: 250},
				{Name: "Горіхи", Price: 180},
			},
			want: "Актуальний прайс-лист:\nМед: 250\nГоріхи: 180",
		},
		{
			name:     "no header",
			products: []Product{{Name: "Мед", Price: 250}},
			want:     "Мед: 250",
		},
		{
			name:   "no products",
			header: "Прайс:",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderPriceList(tt.header, tt.products); got != tt.want {
				t.Errorf("RenderPriceList() = %q, want %q", got, tt.want)
			}
		})
	}
}
