package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const probeTimeout = 2 * time.Second

// SkipIfRedisUnavailable skips the test unless a Redis server answers a
// ping on addr.
func SkipIfRedisUnavailable(t *testing.T, addr string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: Redis not available at %s - %v", addr, err)
	}
}

// SkipIfKafkaUnavailable skips the test unless a Kafka broker accepts
// connections and answers a fetch on addr.
func SkipIfKafkaUnavailable(t *testing.T, addr string) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		t.Skipf("Skipping test: Kafka not available at %s - %v", addr, err)
		return
	}
	_ = conn.Close()

	// The port being open is not enough; probe the broker with a short
	// fetch and treat anything other than a timeout or EOF as broken.
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{addr},
		Topic:       "pointsbook-test",
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	defer reader.Close()

	if _, err := reader.FetchMessage(ctx); err != nil &&
		err != context.DeadlineExceeded && err.Error() != "EOF" {
		t.Skipf("Skipping test: Kafka at %s is not responding correctly - %v", addr, err)
	}
}

// SkipIfDependenciesUnavailable skips the test unless both Redis and
// Kafka are reachable.
func SkipIfDependenciesUnavailable(t *testing.T, redisAddr, kafkaAddr string) {
	t.Helper()
	SkipIfRedisUnavailable(t, redisAddr)
	SkipIfKafkaUnavailable(t, kafkaAddr)
}
