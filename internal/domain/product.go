package domain

// Product is one catalog entry. The catalog is static data served as-is.
type Product struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Heart int    `json:"heart"`
	Price int    `json:"price"`
	Image string `json:"img"`
}
