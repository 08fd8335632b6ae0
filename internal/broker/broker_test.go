package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrderAttachesStopLoss(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/orders", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"o-1","client_order_id":"run-1","symbol":"TSLA","status":"accepted"}`))
	}))
	defer server.Close()

	client := New("key", "secret", server.URL, 6000)
	stop := 89.504
	ref, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol:        "TSLA",
		Qty:           11,
		Side:          alpaca.Sell,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: "run-1",
		StopLoss:      &stop,
	})
	require.NoError(t, err)
	assert.Equal(t, OrderRef{ID: "o-1", ClientOrderID: "run-1", Symbol: "TSLA", Status: "accepted"}, ref)

	assert.Equal(t, "oto", body["order_class"])
	assert.Equal(t, "sell", body["side"])
	assert.Equal(t, "11", body["qty"])
	stopLoss, ok := body["stop_loss"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "89.5", stopLoss["stop_price"])
}

func TestPositionNotFoundIsFlat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":40410000,"message":"position does not exist"}`))
	}))
	defer server.Close()

	client := New("key", "secret", server.URL, 6000)
	pos, err := client.Position(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, Position{Symbol: "AAPL"}, pos)
}

func TestRateLimitHonorsContext(t *testing.T) {
	client := New("key", "secret", "http://127.0.0.1:0", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Account(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
