package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	redisbackend "github.com/openclob/pointsbook/pkg/backend/redis"
	"github.com/openclob/pointsbook/pkg/core"
)

const (
	redisAddr = "localhost:6379"
	redisDB   = 0
	prefix    = "pointsbook-example"
)

func main() {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       redisDB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	fmt.Printf("Redis connection established: %s\n", pong)

	// Start fresh.
	client.FlushDB(ctx)

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	engine := core.NewEngine(redisbackend.NewRedisBackend(client, prefix, logger))

	market, err := engine.CreateMarket(ctx, core.CreateMarketParams{
		Creator:      1,
		Resolver:     1,
		Outcomes:     2,
		EarlyResolve: true,
	})
	if err != nil {
		panic(err)
	}
	class := core.ClassKey{Market: market.ID, Outcome: 0}

	engine.CreditFreeShares(1, class, 10)
	engine.CreditFreePoints(2, 10)

	ask, err := engine.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 1, Side: core.Ask, Tick: 50, Size: 10, Now: 1,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created sell order %d\n", ask.OrderID)

	// Partial fill: the buyer takes half the quote.
	bid, err := engine.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 2, Side: core.Bid, Tick: 50, Size: 5, Now: 2,
	})
	if err != nil {
		panic(err)
	}

	remaining := engine.OrderByID(class, core.Ask, ask.OrderID)
	fmt.Printf("Buy order %d filled %d shares\n", bid.OrderID, bid.Filled)
	fmt.Printf("Sell order remaining: %d of %d shares\n", remaining.Remaining, remaining.Original)

	// Every record lives in Redis under the key prefix; the order key is
	// the hex of its packed binary form.
	orderKey := core.OrderKey{Book: core.BookKey{Class: class, Side: core.Ask}, ID: ask.OrderID}
	jsonData, _ := client.Get(ctx, fmt.Sprintf("%s:order:%x", prefix, orderKey.Bytes())).Result()
	fmt.Printf("\nSell order Redis data: %s\n", jsonData)

	fmt.Println("\nSummary:")
	fmt.Printf("- Seller: %d shares left, %d Points earned\n",
		engine.ShareBalance(1, class).Free, engine.PointsBalance(1).Free)
	fmt.Printf("- Buyer: %d shares held, %d Points left\n",
		engine.ShareBalance(2, class).Free, engine.PointsBalance(2).Free)
}
