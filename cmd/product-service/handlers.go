package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/MikeMC777/pickup-orders/docs"
	"github.com/MikeMC777/pickup-orders/internal/httpx"
	prod "github.com/MikeMC777/pickup-orders/internal/product"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func newRouter(repo prod.Repository, ledger prod.Ledger, db pinger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := db.Ping(c.Request.Context()); err != nil {
				c.String(http.StatusServiceUnavailable, "db unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.InstanceName(docs.ProductSwaggerInfo.InstanceName())))

	r.GET("/products", listOnlyHandler(repo))
	r.GET("/products/search", searchHandler(repo))
	r.GET("/products/:id", getProductHandler(repo))
	r.POST("/products", createProductHandler(repo))
	r.PUT("/products/:id", updateProductHandler(repo))
	r.POST("/products/:id/stock", adjustStockHandler(ledger))
	r.DELETE("/products/:id", deleteProductHandler(repo))
	return r
}

func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func parsePrice(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// listOnlyHandler godoc
// @Summary  Listar productos (solo paginación)
// @Tags     products
// @Produce  json
// @Param    limit     query     int     false  "max 100"
// @Param    offset    query     int     false  "offset"
// @Param    category  query     string  false  "category"
// @Success  200       {object}  prod.ListResponse
// @Router   /products [get]
func listOnlyHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := paging(c)
		items, err := repo.List(c.Request.Context(), prod.Query{
			Category: c.Query("category"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.ListResponse{Limit: limit, Offset: offset, Items: items})
	}
}

// searchHandler godoc
// @Summary  Buscar productos por nombre o descripción
// @Tags     products
// @Produce  json
// @Param    q       query     string  true   "min 2 caracteres"
// @Param    limit   query     int     false  "max 100"
// @Param    offset  query     int     false  "offset"
// @Success  200     {object}  prod.ListResponse
// @Failure  400     {object}  httpx.HTTPError
// @Router   /products/search [get]
func searchHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := strings.TrimSpace(c.Query("q"))
		if len([]rune(q)) < 2 {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "q must have at least 2 characters", Field: "q"})
			return
		}
		limit, offset := paging(c)
		items, err := repo.List(c.Request.Context(), prod.Query{Q: q, Limit: limit, Offset: offset})
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.ListResponse{Q: q, Limit: limit, Offset: offset, Items: items})
	}
}

// getProductHandler godoc
// @Summary  Obtener producto
// @Tags     products
// @Produce  json
// @Param    id   path      string  true  "product id"
// @Success  200  {object}  prod.Product
// @Failure  404  {object}  httpx.HTTPError
// @Router   /products/{id} [get]
func getProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// createProductHandler godoc
// @Summary  Crear producto
// @Tags     products
// @Accept   json
// @Produce  json
// @Param    body  body      prod.CreateProductRequest  true  "product"
// @Success  201   {object}  prod.Product
// @Failure  400   {object}  httpx.HTTPError
// @Router   /products [post]
func createProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid json"})
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" || strings.TrimSpace(req.Price) == "" {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "name and price are required"})
			return
		}
		price, ok := parsePrice(req.Price)
		if !ok {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid price", Field: "price"})
			return
		}
		if req.Stock < 0 {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "stock must be >= 0", Field: "stock"})
			return
		}
		p := &prod.Product{
			ID:          uuid.NewString(),
			Name:        name,
			Description: req.Description,
			Price:       price,
			Stock:       req.Stock,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
		}
		if err := repo.Create(c.Request.Context(), p); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// updateProductHandler godoc
// @Summary      Actualizar producto (parcial)
// @Description  Campos vacíos no se modifican. El stock solo cambia vía /products/{id}/stock.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    path      string                     true  "product id"
// @Param        body  body      prod.UpdateProductRequest  true  "fields"
// @Success      200   {object}  prod.Product
// @Failure      400   {object}  httpx.HTTPError
// @Failure      404   {object}  httpx.HTTPError
// @Router       /products/{id} [put]
func updateProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.UpdateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid json"})
			return
		}
		p := &prod.Product{
			ID:          c.Param("id"),
			Name:        strings.TrimSpace(req.Name),
			Description: req.Description,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
		}
		updatePrice := strings.TrimSpace(req.Price) != ""
		if updatePrice {
			price, ok := parsePrice(req.Price)
			if !ok {
				c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid price", Field: "price"})
				return
			}
			p.Price = price
		}
		ctx := c.Request.Context()
		if err := repo.Update(ctx, p, updatePrice); err != nil {
			httpx.WriteError(c, err)
			return
		}
		got, err := repo.GetByID(ctx, p.ID)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, got)
	}
}

// adjustStockHandler godoc
// @Summary      Ajustar stock (reposición o baja)
// @Description  delta > 0 repone, delta < 0 descuenta; nunca deja stock negativo.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "product id"
// @Param        body  body      prod.AdjustStockRequest  true  "delta"
// @Success      200   {object}  prod.StockResponse
// @Failure      400   {object}  httpx.HTTPError
// @Failure      404   {object}  httpx.HTTPError
// @Failure      409   {object}  httpx.HTTPError
// @Router       /products/{id}/stock [post]
func adjustStockHandler(ledger prod.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.AdjustStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid json"})
			return
		}
		if req.Delta == 0 {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "delta must be non-zero", Field: "delta"})
			return
		}
		id := c.Param("id")
		stock, err := ledger.Adjust(c.Request.Context(), id, req.Delta)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.StockResponse{ID: id, Stock: stock})
	}
}

// deleteProductHandler godoc
// @Summary  Eliminar producto
// @Tags     products
// @Param    id  path  string  true  "product id"
// @Success  204
// @Failure  404  {object}  httpx.HTTPError
// @Router   /products/{id} [delete]
func deleteProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		if !ok {
			httpx.WriteError(c, prod.ErrNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
