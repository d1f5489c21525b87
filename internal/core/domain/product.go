package domain

// Product describes a purchasable item as reported by the store catalog.
type Product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}
