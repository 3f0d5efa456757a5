package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclob/pointsbook/pkg/messaging"
	"github.com/openclob/pointsbook/pkg/server"
)

const treasuryUser = 999

func startServer(t *testing.T) (*httptest.Server, *messaging.MockMessageSender) {
	t.Helper()

	sender := messaging.NewMockMessageSender()
	feed := server.NewFeed()
	manager := server.NewEngineManager(sender, feed)
	manager.SetTreasury(treasuryUser)
	t.Cleanup(manager.Close)

	srv := httptest.NewServer(server.NewAPI(manager, feed).Routes())
	t.Cleanup(srv.Close)
	return srv, sender
}

func request(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

// TestServerFullLifecycle exercises the whole surface end to end: engine
// creation, funding, a crossed trade, cancellation of the remainder,
// resolution, finalization and the fee sweep.
func TestServerFullLifecycle(t *testing.T) {
	srv, sender := startServer(t)

	resp, _ := request(t, "POST", srv.URL+"/engines", map[string]any{"name": "main"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, market := request(t, "POST", srv.URL+"/engines/main/markets", map[string]any{
		"creator":         100,
		"resolver":        101,
		"outcomes":        2,
		"taker_fee_bps":   200,
		"creator_fee_bps": 2500,
		"early_resolve":   true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	marketID := int(market["ID"].(float64))

	// Seller holds outcome-0 shares, buyer holds points.
	resp, _ = request(t, "POST", srv.URL+"/engines/main/deposits", map[string]any{
		"user": 1, "amount": 200, "market": marketID, "shares": true,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = request(t, "POST", srv.URL+"/engines/main/deposits", map[string]any{
		"user": 2, "amount": 500,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, ask := request(t, "POST", srv.URL+"/engines/main/orders", map[string]any{
		"user": 1, "market": marketID, "side": "ask", "tick": 60, "size": 200,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, true, ask["Rested"])
	askID := uint64(ask["OrderID"].(float64))

	resp, bid := request(t, "POST", srv.URL+"/engines/main/orders", map[string]any{
		"user": 2, "market": marketID, "side": "bid", "tick": 60, "size": 120,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(120), bid["Filled"])

	// 80 shares still rest on the ask side.
	resp, book := request(t, "GET",
		fmt.Sprintf("%s/engines/main/book?market=%d&outcome=0", srv.URL, marketID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	asks := book["asks"].([]any)
	require.Len(t, asks, 1)
	level := asks[0].(map[string]any)
	assert.Equal(t, float64(60), level["tick"])
	assert.Equal(t, float64(80), level["shares"])

	// Seller pulls the remainder using predecessor hints from the API.
	resp, hints := request(t, "GET",
		fmt.Sprintf("%s/engines/main/orders/%d/predecessors?market=%d&outcome=0&side=ask",
			srv.URL, askID, marketID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var candidates []uint64
	if raw, ok := hints["candidates"].([]any); ok {
		for _, c := range raw {
			candidates = append(candidates, uint64(c.(float64)))
		}
	}
	resp, cancel := request(t, "POST", srv.URL+"/engines/main/cancels", map[string]any{
		"user": 1, "market": marketID, "outcome": 0, "side": "ask",
		"order": askID, "prev_candidates": candidates,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(80), cancel["cancelled"])

	// Buyer's winning shares are in custody now.
	resp, balances := request(t, "GET",
		fmt.Sprintf("%s/engines/main/balances?user=2&market=%d&outcome=0", srv.URL, marketID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	shares := balances["shares"].(map[string]any)
	assert.Equal(t, float64(120), shares["free"])

	resp, _ = request(t, "POST",
		fmt.Sprintf("%s/engines/main/markets/%d/resolve", srv.URL, marketID),
		map[string]any{"resolver": 101, "winner": 0})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = request(t, "POST",
		fmt.Sprintf("%s/engines/main/markets/%d/finalize", srv.URL, marketID),
		map[string]any{"resolver": 101})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, sweep := request(t, "POST",
		fmt.Sprintf("%s/engines/main/markets/%d/sweep", srv.URL, marketID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	creatorCut := sweep["creator_cut"].(float64)
	protocolCut := sweep["protocol_cut"].(float64)
	assert.Greater(t, creatorCut+protocolCut, float64(0))

	// The creator received its cut as free points.
	resp, creator := request(t, "GET", srv.URL+"/engines/main/balances?user=100", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	points := creator["points"].(map[string]any)
	assert.Equal(t, creatorCut, points["free"])

	// Executions and market events flowed out to messaging.
	assert.NotEmpty(t, sender.Executions())
	require.NotEmpty(t, sender.MarketEvents())
	last := sender.MarketEvents()[len(sender.MarketEvents())-1]
	assert.Equal(t, messaging.MarketFeesSwept, last.Type)
}

// TestServerWebsocketFeed verifies that a crossed trade reaches websocket
// subscribers as trade and depth frames.
func TestServerWebsocketFeed(t *testing.T) {
	srv, _ := startServer(t)

	resp, _ := request(t, "POST", srv.URL+"/engines", map[string]any{"name": "main"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, market := request(t, "POST", srv.URL+"/engines/main/markets", map[string]any{
		"creator": 100, "resolver": 101, "outcomes": 2, "early_resolve": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	marketID := int(market["ID"].(float64))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	resp, _ = request(t, "POST", srv.URL+"/engines/main/deposits", map[string]any{
		"user": 1, "amount": 50, "market": marketID, "shares": true,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = request(t, "POST", srv.URL+"/engines/main/deposits", map[string]any{
		"user": 2, "amount": 100,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = request(t, "POST", srv.URL+"/engines/main/orders", map[string]any{
		"user": 1, "market": marketID, "side": "ask", "tick": 50, "size": 50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = request(t, "POST", srv.URL+"/engines/main/orders", map[string]any{
		"user": 2, "market": marketID, "side": "bid", "tick": 50, "size": 50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Each order publishes depth; the match also publishes trades.
	sawTrades := false
	sawDepth := false
	deadline := time.Now().Add(5 * time.Second)
	for (!sawTrades || !sawDepth) && time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var event server.FeedEvent
		require.NoError(t, conn.ReadJSON(&event))
		switch event.Type {
		case "trades":
			sawTrades = true
		case "depth":
			sawDepth = true
		}
	}
	assert.True(t, sawTrades, "expected a trades frame")
	assert.True(t, sawDepth, "expected a depth frame")
}

// TestServerEngineIsolation makes sure funds do not leak across engines.
func TestServerEngineIsolation(t *testing.T) {
	srv, _ := startServer(t)

	for _, name := range []string{"alpha", "beta"} {
		resp, _ := request(t, "POST", srv.URL+"/engines", map[string]any{"name": name})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, _ := request(t, "POST", srv.URL+"/engines/alpha/deposits", map[string]any{
		"user": 7, "amount": 250,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, alpha := request(t, "GET", srv.URL+"/engines/alpha/balances?user=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(250), alpha["points"].(map[string]any)["free"])

	resp, beta := request(t, "GET", srv.URL+"/engines/beta/balances?user=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), beta["points"].(map[string]any)["free"])
}
