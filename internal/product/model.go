package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// NUMERIC in Postgres; decimal keeps cents exact through order totals.
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Category  string          `json:"category,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListResponse represents the paginated response of products.
// swagger:model
type ListResponse struct {
	// search query applied
	Q string `json:"q,omitempty"`
	// limit applied
	Limit int `json:"limit"`
	// offset applied
	Offset int `json:"offset"`
	// items found
	Items []Product `json:"items"`
}

// CreateProductRequest payload of creation.
// swagger:model CreateProductRequest
type CreateProductRequest struct {
	Name        string `json:"name"        example:"Sourdough Loaf"`
	Description string `json:"description" example:"48h fermentation"`
	Price       string `json:"price"       example:"8.50"`
	Stock       int    `json:"stock"       example:"12"`
	Category    string `json:"category"    example:"bread"`
	ImageURL    string `json:"image_url"   example:"/uploads/sourdough.jpg"`
}

// UpdateProductRequest payload of partial update. Stock is not part of it:
// stock only moves through the ledger (orders, cancellations, adjustments).
// swagger:model UpdateProductRequest
type UpdateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
}

// AdjustStockRequest adds (restock) or removes (write-off) units.
// swagger:model AdjustStockRequest
type AdjustStockRequest struct {
	Delta int `json:"delta" example:"10"`
}

// StockResponse is the stock level after an adjustment.
// swagger:model StockResponse
type StockResponse struct {
	ID    string `json:"id"`
	Stock int    `json:"stock"`
}
