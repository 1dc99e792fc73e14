package httpx

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/product"
)

// HTTPError represents an error response.
// swagger:model HTTPError
type HTTPError struct {
	Error     string `json:"error"      example:"insufficient stock"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// WriteError maps domain errors to a status and a JSON body. Storage
// failures are logged with the request id and answered with an opaque 500.
func WriteError(c *gin.Context, err error) {
	var (
		ve *order.ValidationError
		se *product.InsufficientStockError
		nf *order.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, HTTPError{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &se):
		c.JSON(http.StatusConflict, HTTPError{Error: "insufficient stock", ProductID: se.ProductID})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, HTTPError{Error: "order not found", OrderID: nf.OrderID})
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, HTTPError{Error: "order not found"})
	case errors.Is(err, product.ErrNotFound):
		c.JSON(http.StatusNotFound, HTTPError{Error: "not found"})
	case errors.Is(err, order.ErrInvalidTransition):
		c.JSON(http.StatusConflict, HTTPError{Error: err.Error()})
	default:
		log.Printf("[http] rid=%s %s %s err=%v", RID(c), c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, HTTPError{Error: "server error"})
	}
}
