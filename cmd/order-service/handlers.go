package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/MikeMC777/pickup-orders/docs"
	"github.com/MikeMC777/pickup-orders/internal/httpx"
	"github.com/MikeMC777/pickup-orders/internal/idempotency"
	ord "github.com/MikeMC777/pickup-orders/internal/order"
)

const headerIdempotencyKey = "Idempotency-Key"

type pinger interface {
	Ping(ctx context.Context) error
}

func newRouter(svc *ord.Service, guard *idempotency.Guard, db pinger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", healthHandler(db))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.InstanceName(docs.OrderSwaggerInfo.InstanceName())))

	r.POST("/orders", createOrderHandler(svc, guard))
	r.GET("/orders", listAllOrdersHandler(svc))
	r.GET("/orders/:id", getOrderHandler(svc))
	r.GET("/orders/:id/items", getOrderItemsHandler(svc))
	r.GET("/orders/user/:user_id", listOrdersByUserHandler(svc))
	r.PUT("/orders/:id/status", updateOrderStatusHandler(svc))
	return r
}

func healthHandler(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	}
}

// createOrderHandler godoc
// @Summary      Crear orden
// @Description  Valida, reserva stock y persiste la orden en una sola transacción.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                  false  "replay-safe key"
// @Param        body             body      ord.CreateOrderRequest  true   "order"
// @Success      201              {object}  ord.Order
// @Success      200              {object}  ord.Order  "replayed"
// @Failure      400              {object}  httpx.HTTPError
// @Failure      409              {object}  httpx.HTTPError
// @Failure      500              {object}  httpx.HTTPError
// @Router       /orders [post]
func createOrderHandler(svc *ord.Service, guard *idempotency.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid json"})
			return
		}
		ctx := c.Request.Context()

		key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if key == "" || guard == nil {
			o, err := svc.PlaceOrder(ctx, req)
			if err != nil {
				httpx.WriteError(c, err)
				return
			}
			c.JSON(http.StatusCreated, o)
			return
		}

		var placed *ord.Order
		id, replayed, err := guard.Do(ctx, strings.TrimSpace(req.UserID)+":"+key, func(ctx context.Context) (string, error) {
			o, err := svc.PlaceOrder(ctx, req)
			if err != nil {
				return "", err
			}
			placed = o
			return o.ID, nil
		})
		if errors.Is(err, idempotency.ErrInFlight) {
			c.JSON(http.StatusConflict, httpx.HTTPError{Error: err.Error()})
			return
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		if !replayed {
			c.JSON(http.StatusCreated, placed)
			return
		}
		o, err := svc.Get(ctx, id)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// getOrderHandler godoc
// @Summary  Obtener orden
// @Tags     orders
// @Produce  json
// @Param    id   path      string  true  "order id"
// @Success  200  {object}  ord.Order
// @Failure  404  {object}  httpx.HTTPError
// @Router   /orders/{id} [get]
func getOrderHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// getOrderItemsHandler godoc
// @Summary  Ítems de una orden
// @Tags     orders
// @Produce  json
// @Param    id   path      string  true  "order id"
// @Success  200  {object}  ord.ItemsResponse
// @Failure  404  {object}  httpx.HTTPError
// @Router   /orders/{id}/items [get]
func getOrderItemsHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.Items(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ItemsResponse{Items: items})
	}
}

// listOrdersByUserHandler godoc
// @Summary  Órdenes de un usuario, más recientes primero
// @Tags     orders
// @Produce  json
// @Param    user_id  path      string  true  "user id"
// @Success  200      {object}  ord.ListResponse
// @Router   /orders/user/{user_id} [get]
func listOrdersByUserHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ord.ListResponse{Orders: svc.ListByUser(c.Request.Context(), c.Param("user_id"))})
	}
}

// listAllOrdersHandler godoc
// @Summary  Listado admin de órdenes (incluye username)
// @Tags     orders
// @Produce  json
// @Param    all  query     bool  true  "must be true"
// @Success  200  {object}  ord.ListResponse
// @Failure  400  {object}  httpx.HTTPError
// @Router   /orders [get]
func listAllOrdersHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("all") != "true" {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "use /orders/user/:user_id or ?all=true"})
			return
		}
		c.JSON(http.StatusOK, ord.ListResponse{Orders: svc.ListAll(c.Request.Context())})
	}
}

// updateOrderStatusHandler godoc
// @Summary      Cambiar estado
// @Description  CANCELLED devuelve el stock de todos los ítems en la misma transacción.
// @Description  Si la relectura falla tras confirmar, responde 200 con la transición.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "order id"
// @Param        body  body      ord.UpdateStatusRequest  true  "new status"
// @Success      200   {object}  ord.Order
// @Failure      400   {object}  httpx.HTTPError
// @Failure      404   {object}  httpx.HTTPError
// @Failure      409   {object}  httpx.HTTPError
// @Router       /orders/{id}/status [put]
func updateOrderStatusHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpx.HTTPError{Error: "invalid json"})
			return
		}
		ctx := c.Request.Context()
		id := c.Param("id")
		tr, err := svc.SetStatus(ctx, id, req.Status)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		o, err := svc.Get(ctx, id)
		if err != nil {
			// committed; report the transition instead of failing the request
			log.Printf("[http] rid=%s status reread id=%s err=%v", httpx.RID(c), id, err)
			c.JSON(http.StatusOK, tr)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}
