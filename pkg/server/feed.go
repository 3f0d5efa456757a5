package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/openclob/pointsbook/pkg/core"
	"github.com/openclob/pointsbook/pkg/logging"
)

// FeedEvent is one frame pushed to websocket subscribers.
type FeedEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TradeUpdate carries the fills of one matched command.
type TradeUpdate struct {
	Engine  string       `json:"engine"`
	Market  uint32       `json:"market"`
	Outcome uint16       `json:"outcome"`
	Trades  []TradeEntry `json:"trades"`
}

// TradeEntry is one fill within a TradeUpdate.
type TradeEntry struct {
	MakerOrder uint64 `json:"maker_order"`
	TakerSide  string `json:"taker_side"`
	Tick       uint8  `json:"tick"`
	Shares     uint64 `json:"shares"`
	BuyerCost  uint64 `json:"buyer_cost"`
}

// DepthUpdate is a full depth snapshot of one outcome book.
type DepthUpdate struct {
	Engine  string       `json:"engine"`
	Market  uint32       `json:"market"`
	Outcome uint16       `json:"outcome"`
	Bids    []DepthLevel `json:"bids"`
	Asks    []DepthLevel `json:"asks"`
}

// DepthLevel is one price level of a DepthUpdate, best first.
type DepthLevel struct {
	Tick   uint8  `json:"tick"`
	Shares uint64 `json:"shares"`
}

type feedSubscriber struct {
	ch chan FeedEvent
}

// Feed fans engine events out to websocket subscribers. Slow
// subscribers drop frames rather than stall the sequencer; depth frames
// are full snapshots, so a dropped frame is repaired by the next one.
type Feed struct {
	mu       sync.Mutex
	subs     map[*feedSubscriber]struct{}
	upgrader websocket.Upgrader
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		subs: make(map[*feedSubscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe registers a new subscriber with the given buffer size.
func (f *Feed) Subscribe(buffer int) *feedSubscriber {
	sub := &feedSubscriber{ch: make(chan FeedEvent, buffer)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(sub *feedSubscriber) {
	f.mu.Lock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.ch)
	}
	f.mu.Unlock()
}

// Broadcast delivers an event to every subscriber, dropping it for
// subscribers whose buffer is full.
func (f *Feed) Broadcast(event FeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// BroadcastTrades publishes the fills of one command.
func (f *Feed) BroadcastTrades(engine string, class core.ClassKey, trades []core.Trade) {
	entries := make([]TradeEntry, len(trades))
	for i, t := range trades {
		entries[i] = TradeEntry{
			MakerOrder: uint64(t.MakerOrder),
			TakerSide:  t.TakerSide.String(),
			Tick:       uint8(t.Tick),
			Shares:     t.Shares,
			BuyerCost:  t.BuyerCost,
		}
	}
	f.Broadcast(FeedEvent{Type: "trades", Data: TradeUpdate{
		Engine:  engine,
		Market:  uint32(class.Market),
		Outcome: uint16(class.Outcome),
		Trades:  entries,
	}})
}

// BroadcastDepth publishes a depth snapshot for one outcome book.
func (f *Feed) BroadcastDepth(engine string, class core.ClassKey, bids, asks []core.TickDepth) {
	f.Broadcast(FeedEvent{Type: "depth", Data: DepthUpdate{
		Engine:  engine,
		Market:  uint32(class.Market),
		Outcome: uint16(class.Outcome),
		Bids:    depthLevels(bids),
		Asks:    depthLevels(asks),
	}})
}

func depthLevels(depth []core.TickDepth) []DepthLevel {
	levels := make([]DepthLevel, len(depth))
	for i, d := range depth {
		levels[i] = DepthLevel{Tick: uint8(d.Tick), Shares: d.Shares}
	}
	return levels
}

// HandleWS upgrades the connection and streams feed events until the
// client goes away.
func (f *Feed) HandleWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	sub := f.Subscribe(64)
	defer f.Unsubscribe(sub)
	defer conn.Close()

	// Drain client frames so control messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.Unsubscribe(sub)
				return
			}
		}
	}()

	for event := range sub.ch {
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug().Err(err).Msg("Websocket write failed, dropping subscriber")
			return
		}
	}
}
