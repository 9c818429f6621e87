package polymarket_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/updown/internal/adapters/polymarket"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walletKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type clobStub struct {
	derives atomic.Int32
	orders  []map[string]any
	deleted []string
	reply   string
}

func newCLOBStub(t *testing.T) (*clobStub, *httptest.Server) {
	t.Helper()
	stub := &clobStub{reply: `{"success":true,"orderID":"0xorder1","status":"live","takingAmount":"","makingAmount":"0.9936"}`}
	secret := base64.URLEncoding.EncodeToString([]byte("secret"))

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/derive-api-key", func(w http.ResponseWriter, r *http.Request) {
		stub.derives.Add(1)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		w.Write([]byte(`{"apiKey":"api-key","secret":"` + secret + `","passphrase":"pp"}`))
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		stub.orders = append(stub.orders, body)
		w.Write([]byte(stub.reply))
	})
	mux.HandleFunc("/order/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		stub.deleted = append(stub.deleted, r.URL.Path)
		w.Write([]byte(`{"canceled":["0xorder1"]}`))
	})
	mux.HandleFunc("/neg-risk", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"neg_risk":` + map[bool]string{true: "true", false: "false"}[r.URL.Query().Get("token_id") == "neg"] + `}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return stub, srv
}

func newTradingClient(t *testing.T, srv *httptest.Server) *polymarket.TradingClient {
	t.Helper()
	auth, err := polymarket.NewAuthClient(srv.URL, "", walletKey, "")
	require.NoError(t, err)
	return polymarket.NewTradingClient(auth)
}

func TestPlaceOrder_Buy(t *testing.T) {
	stub, srv := newCLOBStub(t)
	tc := newTradingClient(t, srv)

	placed, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456", Price: 0.69, Size: 1.0, Side: domain.SideBuy,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xorder1", placed.CLOBOrderID)
	assert.Equal(t, "live", placed.Status)
	assert.InDelta(t, 0.9936, placed.MadeAmount, 1e-9)
	assert.Zero(t, placed.TakenAmount)

	require.Len(t, stub.orders, 1)
	assert.Equal(t, "GTC", stub.orders[0]["orderType"])
	assert.Equal(t, "api-key", stub.orders[0]["owner"])
	order := stub.orders[0]["order"].(map[string]any)
	assert.Equal(t, "BUY", order["side"])
	assert.Equal(t, "993600", order["makerAmount"])
	assert.Equal(t, "1440000", order["takerAmount"])
}

func TestPlaceOrder_SellAndCredsCached(t *testing.T) {
	stub, srv := newCLOBStub(t)
	tc := newTradingClient(t, srv)
	ctx := context.Background()

	_, err := tc.PlaceOrder(ctx, domain.PlaceOrderRequest{TokenID: "123456", Price: 0.69, Size: 1, Side: domain.SideBuy})
	require.NoError(t, err)
	_, err = tc.PlaceOrder(ctx, domain.PlaceOrderRequest{TokenID: "123456", Price: 0.80, Size: 1.44, Side: domain.SideSell})
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.derives.Load())
	order := stub.orders[1]["order"].(map[string]any)
	assert.Equal(t, "SELL", order["side"])
	assert.Equal(t, "1440000", order["makerAmount"])
	assert.Equal(t, "1152000", order["takerAmount"])
}

func TestPlaceOrder_RejectedByCLOB(t *testing.T) {
	stub, srv := newCLOBStub(t)
	stub.reply = `{"success":false,"errorMsg":"not enough balance / allowance"}`
	tc := newTradingClient(t, srv)

	_, err := tc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{TokenID: "123456", Price: 0.5, Size: 1, Side: domain.SideBuy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestCancelOrder(t *testing.T) {
	stub, srv := newCLOBStub(t)
	tc := newTradingClient(t, srv)

	require.NoError(t, tc.CancelOrder(context.Background(), "0xorder1"))
	assert.Equal(t, []string{"/order/0xorder1"}, stub.deleted)
}

func TestIsNegRisk(t *testing.T) {
	_, srv := newCLOBStub(t)
	tc := newTradingClient(t, srv)

	neg, err := tc.IsNegRisk(context.Background(), "neg")
	require.NoError(t, err)
	assert.True(t, neg)

	neg, err = tc.IsNegRisk(context.Background(), "plain")
	require.NoError(t, err)
	assert.False(t, neg)
}
