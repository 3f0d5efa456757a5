package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclob/pointsbook/pkg/testutil"
)

const redisAddr = "localhost:6379"

// TestRedisBackedEngine runs a trade against an engine persisted in Redis.
// Requires a local Redis; skipped otherwise.
func TestRedisBackedEngine(t *testing.T) {
	testutil.SkipIfRedisUnavailable(t, redisAddr)

	prefix := fmt.Sprintf("pointsbook-it-%d", time.Now().UnixNano())
	client := redis.NewClient(&redis.Options{Addr: redisAddr, DB: 1})
	defer func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	}()

	srv, _ := startServer(t)

	resp, _ := request(t, "POST", srv.URL+"/engines", map[string]any{
		"name":    "redis-it",
		"backend": "redis",
		"options": map[string]string{"addr": redisAddr, "db": "1", "prefix": prefix},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, market := request(t, "POST", srv.URL+"/engines/redis-it/markets", map[string]any{
		"creator": 100, "resolver": 101, "outcomes": 2, "early_resolve": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	marketID := int(market["ID"].(float64))

	resp, _ = request(t, "POST", srv.URL+"/engines/redis-it/deposits", map[string]any{
		"user": 1, "amount": 100, "market": marketID, "shares": true,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = request(t, "POST", srv.URL+"/engines/redis-it/deposits", map[string]any{
		"user": 2, "amount": 100,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, ask := request(t, "POST", srv.URL+"/engines/redis-it/orders", map[string]any{
		"user": 1, "market": marketID, "side": "ask", "tick": 45, "size": 100,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, true, ask["Rested"])

	resp, bid := request(t, "POST", srv.URL+"/engines/redis-it/orders", map[string]any{
		"user": 2, "market": marketID, "side": "bid", "tick": 45, "size": 60,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(60), bid["Filled"])

	// The resting remainder survives in Redis and is visible through the API.
	resp, book := request(t, "GET",
		fmt.Sprintf("%s/engines/redis-it/book?market=%d&outcome=0", srv.URL, marketID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	asks := book["asks"].([]any)
	require.Len(t, asks, 1)
	assert.Equal(t, float64(40), asks[0].(map[string]any)["shares"])

	// Keys actually landed under the configured prefix.
	keys, err := client.Keys(context.Background(), prefix+":*").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, keys)
}
