package httpx

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/product"
)

func init() {
	gin.SetMode(gin.TestMode)
	log.SetOutput(io.Discard)
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"validation", &order.ValidationError{Field: "items", Reason: "at least one item is required"}, http.StatusBadRequest, `"field":"items"`},
		{"stock", fmt.Errorf("place: %w", &product.InsufficientStockError{ProductID: "p-1", Requested: 3}), http.StatusConflict, `"product_id":"p-1"`},
		{"order missing", &order.NotFoundError{OrderID: "o-1"}, http.StatusNotFound, `"order_id":"o-1"`},
		{"product missing", product.ErrNotFound, http.StatusNotFound, `"not found"`},
		{"transition", fmt.Errorf("%w: CANCELLED -> PENDING", order.ErrInvalidTransition), http.StatusConflict, `CANCELLED -> PENDING`},
		{"tx failure", &order.TransactionFailure{Op: "place order", Err: errors.New("lock timeout")}, http.StatusInternalServerError, `{"error":"server error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID())
			r.GET("/x", func(c *gin.Context) { WriteError(c, tc.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
		})
	}
}

func TestWriteError_HidesCause(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		WriteError(c, &order.TransactionFailure{Op: "set status", Err: errors.New("password authentication failed for user orders")})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestRequestID_KeepsIncomingHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) { seen = RID(c); c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}
