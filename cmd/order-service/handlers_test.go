package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/pickup-orders/internal/events"
	"github.com/MikeMC777/pickup-orders/internal/idempotency"
	ord "github.com/MikeMC777/pickup-orders/internal/order"
	prod "github.com/MikeMC777/pickup-orders/internal/product"
	"github.com/MikeMC777/pickup-orders/internal/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	log.SetOutput(io.Discard)
}

//
// ---------- FIXTURES ----------
//

type fixture struct {
	store  *memstore.Store
	router *gin.Engine
	svc    *ord.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := memstore.New()
	svc := ord.NewService(ms, ms, events.LogPublisher{})
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), time.Hour)
	return &fixture{store: ms, svc: svc, router: newRouter(svc, guard, ms)}
}

func (f *fixture) addProduct(t *testing.T, price string, stock int) string {
	t.Helper()
	p := &prod.Product{
		ID:    uuid.NewString(),
		Name:  "Prod " + price,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	if err := f.store.Create(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p.ID
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	f.router.ServeHTTP(w, req)
	return w
}

func orderBody(userID string, lines ...any) string {
	items := ""
	for i := 0; i+1 < len(lines); i += 2 {
		if items != "" {
			items += ","
		}
		items += fmt.Sprintf(`{"product_id":%q,"quantity":%d}`, lines[i], lines[i+1])
	}
	return fmt.Sprintf(`{"user_id":%q,"items":[%s],"pickup_date":"2026-01-11","pickup_time":"01:00 PM","payment_method":"cash"}`, userID, items)
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) ord.Order {
	t.Helper()
	var o ord.Order
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("json inválido: %v body=%s", err, w.Body.String())
	}
	return o
}

//
// ---------- TESTS ----------
//

func TestCreateOrder_HappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "15.00", 5)

	// 2 unidades => descuenta stock
	w := f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 2))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	o := decodeOrder(t, w)
	if o.Status != ord.StatusPending || len(o.Items) != 1 {
		t.Fatalf("orden inesperada: %+v", o)
	}
	if !o.Total.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("total esperado=30.00, real=%s", o.Total)
	}
	if got := f.stock(t, prodID); got != 3 {
		t.Fatalf("stock esperado=3, real=%d", got)
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "10.00", 1)

	w := f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 2))
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s (esperaba 409)", w.Code, w.Body.String())
	}
	var body struct {
		Error     string `json:"error"`
		ProductID string `json:"product_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.ProductID != prodID {
		t.Fatalf("product_id=%q, esperaba %q", body.ProductID, prodID)
	}
	if got := f.stock(t, prodID); got != 1 {
		t.Fatalf("stock no debía cambiar, real=%d", got)
	}
}

// una línea sin stock aborta todo el pedido: nada se descuenta ni se persiste
func TestCreateOrder_PartialFailureRollsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.addProduct(t, "2.00", 5)
	b := f.addProduct(t, "3.00", 0)
	uid := uuid.NewString()

	w := f.do(http.MethodPost, "/orders", orderBody(uid, a, 2, b, 1))
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := f.stock(t, a); got != 5 {
		t.Fatalf("stock A esperado=5, real=%d", got)
	}
	if n := len(f.svc.ListByUser(context.Background(), uid)); n != 0 {
		t.Fatalf("no debía persistirse ninguna orden, hay %d", n)
	}
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "1.00", 10)
	uid := uuid.NewString()

	cases := map[string]string{
		"json roto":          `{"user_id":`,
		"sin items":          orderBody(uid),
		"cantidad cero":      orderBody(uid, prodID, 0),
		"producto vacío":     orderBody(uid, "", 1),
		"producto no existe": orderBody(uid, uuid.NewString(), 1),
		"user inválido":      orderBody("", prodID, 1),
		"pago inválido":      fmt.Sprintf(`{"user_id":%q,"items":[{"product_id":%q,"quantity":1}],"pickup_date":"2026-01-11","pickup_time":"01:00 PM","payment_method":"card"}`, uid, prodID),
		"fecha inválida":     fmt.Sprintf(`{"user_id":%q,"items":[{"product_id":%q,"quantity":1}],"pickup_date":"11/01/2026","pickup_time":"01:00 PM","payment_method":"cash"}`, uid, prodID),
	}
	for name, body := range cases {
		w := f.do(http.MethodPost, "/orders", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s (esperaba 400)", name, w.Code, w.Body.String())
		}
	}
	if got := f.stock(t, prodID); got != 10 {
		t.Fatalf("stock no debía cambiar, real=%d", got)
	}
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "4.00", 10)
	body := orderBody(uuid.NewString(), prodID, 3)

	first := f.do(http.MethodPost, "/orders", body, headerIdempotencyKey, "abc")
	if first.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", first.Code, first.Body.String())
	}
	second := f.do(http.MethodPost, "/orders", body, headerIdempotencyKey, "abc")
	if second.Code != http.StatusOK {
		t.Fatalf("replay status=%d body=%s (esperaba 200)", second.Code, second.Body.String())
	}
	if decodeOrder(t, first).ID != decodeOrder(t, second).ID {
		t.Fatalf("el replay debía devolver la misma orden")
	}
	if got := f.stock(t, prodID); got != 7 {
		t.Fatalf("stock esperado=7 (una sola reserva), real=%d", got)
	}
}

// ===== GET /orders/:id (not found) =====
func TestGetOrder_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodGet, "/orders/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s (esperaba 404)", w.Code, w.Body.String())
	}
}

// ===== GET /orders/:id/items =====
func TestGetOrderItems_OK(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.addProduct(t, "10.00", 5)
	b := f.addProduct(t, "2.50", 5)

	created := decodeOrder(t, f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), a, 2, b, 1)))
	f.store.AddFeedback(created.ID, a, 5, "excelente")

	w := f.do(http.MethodGet, "/orders/"+created.ID+"/items", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s (esperaba 200)", w.Code, w.Body.String())
	}
	var wrap ord.ItemsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &wrap); err != nil {
		t.Fatalf("json inválido: %v", err)
	}
	if len(wrap.Items) != 2 || wrap.Items[0].ProductID != a || wrap.Items[1].ProductID != b {
		t.Fatalf("items en orden de colocación esperados, got %+v", wrap.Items)
	}
	if wrap.Items[0].Feedback == nil || wrap.Items[0].Feedback.Rating != 5 {
		t.Fatalf("feedback no adjuntado: %+v", wrap.Items[0])
	}
	if wrap.Items[1].Feedback != nil {
		t.Fatalf("feedback inesperado en B")
	}
}

// ===== GET /orders/user/:user_id =====
func TestListOrdersByUser_NewestFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "1.00", 10)
	uid := uuid.NewString()

	first := decodeOrder(t, f.do(http.MethodPost, "/orders", orderBody(uid, prodID, 1)))
	second := decodeOrder(t, f.do(http.MethodPost, "/orders", orderBody(uid, prodID, 1)))
	_ = f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 1))

	w := f.do(http.MethodGet, "/orders/user/"+uid, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s (esperaba 200)", w.Code, w.Body.String())
	}
	var got ord.ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json inválido: %v", err)
	}
	if len(got.Orders) != 2 || got.Orders[0].ID != second.ID || got.Orders[1].ID != first.ID {
		t.Fatalf("orden esperado [second, first], got %+v", got.Orders)
	}
}

func TestListAllOrders_RequiresAllAndIncludesUsername(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "1.00", 10)
	uid := uuid.NewString()
	f.store.AddUser(uid, "maria")
	_ = f.do(http.MethodPost, "/orders", orderBody(uid, prodID, 1))

	if w := f.do(http.MethodGet, "/orders", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("sin all=true esperaba 400, got %d", w.Code)
	}
	w := f.do(http.MethodGet, "/orders?all=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got ord.ListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.Orders) != 1 || got.Orders[0].Username != "maria" {
		t.Fatalf("listado admin inesperado: %+v", got.Orders)
	}
}

// ===== PUT /orders/:id/status → CANCELLED (restock) =====
func TestUpdateOrderStatus_PendingToCancelled_Restocks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "10.00", 5)

	created := decodeOrder(t, f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 2)))
	if got := f.stock(t, prodID); got != 3 {
		t.Fatalf("stock tras pedido esperado=3, real=%d", got)
	}

	w := f.do(http.MethodPut, "/orders/"+created.ID+"/status", `{"status":"CANCELLED"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if o := decodeOrder(t, w); o.Status != ord.StatusCancelled {
		t.Fatalf("estado esperado CANCELLED, got %s", o.Status)
	}
	if got := f.stock(t, prodID); got != 5 {
		t.Fatalf("stock tras cancelar esperado=5, real=%d", got)
	}

	// segunda cancelación: no-op, no vuelve a reponer
	w = f.do(http.MethodPut, "/orders/"+created.ID+"/status", `{"status":"cancelled"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("doble cancel status=%d body=%s", w.Code, w.Body.String())
	}
	if got := f.stock(t, prodID); got != 5 {
		t.Fatalf("doble cancel no debe reponer otra vez, stock=%d", got)
	}

	// salir de CANCELLED no está permitido
	w = f.do(http.MethodPut, "/orders/"+created.ID+"/status", `{"status":"PENDING"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("esperaba 409 al revivir una orden cancelada, got %d", w.Code)
	}
}

// rereadFails deja fallar la relectura de una orden después del commit.
type rereadFails struct{ *memstore.Store }

func (rereadFails) Get(context.Context, string) (*ord.Order, error) {
	return nil, errors.New("connection reset")
}

func TestUpdateOrderStatus_RereadFailureStillReportsCommit(t *testing.T) {
	t.Parallel()
	ms := memstore.New()
	f := &fixture{store: ms}
	prodID := f.addProduct(t, "4.00", 5)
	created, err := ord.NewService(ms, ms, nil).PlaceOrder(context.Background(), ord.CreateOrderRequest{
		UserID: uuid.NewString(), Items: []ord.CreateOrderItem{{ProductID: prodID, Quantity: 2}},
		PickupDate: "2026-01-11", PickupTime: "01:00 PM", PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	svc := ord.NewService(ms, rereadFails{ms}, nil)
	f.router = newRouter(svc, idempotency.NewGuard(idempotency.NewMemoryStore(), time.Hour), ms)

	w := f.do(http.MethodPut, "/orders/"+created.ID+"/status", `{"status":"CANCELLED"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("el cambio ya está confirmado, esperaba 200, got %d body=%s", w.Code, w.Body.String())
	}
	var tr ord.Transition
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("json inválido: %v", err)
	}
	if !tr.Changed || tr.From != ord.StatusPending || tr.To != ord.StatusCancelled || tr.OrderID != created.ID {
		t.Fatalf("transición inesperada: %+v", tr)
	}
	if got := f.stock(t, prodID); got != 5 {
		t.Fatalf("stock tras cancelar esperado=5, real=%d", got)
	}
}

func TestCreateOrder_OversizedTotalIs400(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "32.00", 1_000_000_000)

	w := f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 400_000_000))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("total fuera de rango esperaba 400, got %d body=%s", w.Code, w.Body.String())
	}
	if got := f.stock(t, prodID); got != 1_000_000_000 {
		t.Fatalf("stock no debe cambiar, real=%d", got)
	}

	w = f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 3_000_000_000))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("cantidad fuera de rango esperaba 400, got %d", w.Code)
	}
}

func TestUpdateOrderStatus_InvalidAndUnknown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	prodID := f.addProduct(t, "1.00", 5)
	created := decodeOrder(t, f.do(http.MethodPost, "/orders", orderBody(uuid.NewString(), prodID, 1)))

	if w := f.do(http.MethodPut, "/orders/"+created.ID+"/status", `{"status":"SHIPPED"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("estado desconocido esperaba 400, got %d", w.Code)
	}
	if w := f.do(http.MethodPut, "/orders/"+uuid.NewString()+"/status", `{"status":"COMPLETED"}`); w.Code != http.StatusNotFound {
		t.Fatalf("orden inexistente esperaba 404, got %d", w.Code)
	}
	w := f.do(http.MethodPut, "/orders/"+created.ID+"/status", `{"status":"READY_FOR_PICKUP"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if o := decodeOrder(t, w); o.Status != ord.StatusReadyForPickup {
		t.Fatalf("estado esperado READY_FOR_PICKUP, got %s", o.Status)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
