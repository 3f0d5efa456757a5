package server

import (
	"context"
	"errors"
	"sync"
	"time"

	otelapi "go.opentelemetry.io/otel"

	"github.com/openclob/pointsbook/pkg/core"
	"github.com/openclob/pointsbook/pkg/logging"
	"github.com/openclob/pointsbook/pkg/otel"
)

// ErrSequencerStopped is returned for commands submitted after Stop.
var ErrSequencerStopped = errors.New("sequencer stopped")

const commandBuffer = 1024

type cmdResult struct {
	value any
	err   error
}

type command struct {
	op    string
	apply func(ctx context.Context, now int64) (any, error)
	reply chan cmdResult
}

// Sequencer serializes all mutating engine operations onto a single
// goroutine. The engine itself is not safe for concurrent writers;
// funneling every command through one channel gives a total order and
// makes each operation atomically visible. Reads go straight to the
// engine and see the state as of the last applied command.
type Sequencer struct {
	name   string
	engine *core.Engine
	feed   *Feed

	clock   func() int64
	metrics *otel.SequencerMetrics

	cmds     chan command
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSequencer wraps an engine. The feed may be nil.
func NewSequencer(name string, engine *core.Engine, feed *Feed) *Sequencer {
	meter := otelapi.GetMeterProvider().Meter("github.com/openclob/pointsbook/pkg/server")
	metrics, err := otel.GetSequencerMetrics(meter)
	if err != nil {
		metrics = nil
	}

	return &Sequencer{
		name:    name,
		engine:  engine,
		feed:    feed,
		clock:   func() int64 { return time.Now().Unix() },
		metrics: metrics,
		cmds:    make(chan command, commandBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetClock overrides the command timestamp source.
func (s *Sequencer) SetClock(clock func() int64) {
	s.clock = clock
}

// Engine exposes the underlying engine for read-only access.
func (s *Sequencer) Engine() *core.Engine {
	return s.engine
}

// Start launches the command loop.
func (s *Sequencer) Start() {
	go s.run()
}

// Stop shuts the loop down and waits for it to drain the command it is
// currently applying. Pending commands are rejected.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sequencer) run() {
	defer close(s.done)
	logger := logging.FromContext(context.Background()).With().Str("engine", s.name).Logger()

	for {
		select {
		case <-s.stop:
			// Reject anything still queued.
			for {
				select {
				case cmd := <-s.cmds:
					cmd.reply <- cmdResult{err: ErrSequencerStopped}
				default:
					return
				}
			}
		case cmd := <-s.cmds:
			ctx := context.Background()
			start := time.Now()

			value, err := cmd.apply(ctx, s.clock())

			if s.metrics != nil {
				s.metrics.AddQueueDepth(ctx, -1)
				s.metrics.IncCommands(ctx, cmd.op)
				s.metrics.RecordLatency(ctx, cmd.op, time.Since(start))
				if err != nil {
					s.metrics.IncErrors(ctx, cmd.op)
				}
			}
			if err != nil {
				logger.Debug().Err(err).Str("op", cmd.op).Msg("Command rejected")
			}

			cmd.reply <- cmdResult{value: value, err: err}
		}
	}
}

// submit enqueues a command and waits for its result. Once the loop
// picks a command up it always runs to completion; context cancellation
// only applies while waiting for a queue slot, and a stop rejects the
// command whether it was still queued or never picked up.
func (s *Sequencer) submit(ctx context.Context, op string, apply func(ctx context.Context, now int64) (any, error)) (any, error) {
	cmd := command{op: op, apply: apply, reply: make(chan cmdResult, 1)}

	select {
	case s.cmds <- cmd:
		if s.metrics != nil {
			s.metrics.AddQueueDepth(ctx, 1)
		}
	case <-s.stop:
		return nil, ErrSequencerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The enqueue can race the loop shutting down, in which case nothing
	// will ever answer on reply. Waiting on done as well keeps a late
	// submit from blocking forever; the reply channel is buffered, so a
	// command that did run still hands back its result.
	select {
	case res := <-cmd.reply:
		return res.value, res.err
	case <-s.done:
		select {
		case res := <-cmd.reply:
			return res.value, res.err
		default:
			if s.metrics != nil {
				s.metrics.AddQueueDepth(ctx, -1)
			}
			return nil, ErrSequencerStopped
		}
	}
}

// PlaceLimit submits a limit order. A zero Now is stamped with the
// sequencer clock.
func (s *Sequencer) PlaceLimit(ctx context.Context, p core.PlaceParams) (*core.PlaceResult, error) {
	v, err := s.submit(ctx, "place_limit", func(ctx context.Context, now int64) (any, error) {
		if p.Now == 0 {
			p.Now = now
		}
		result, err := s.engine.PlaceLimit(ctx, p)
		if err != nil {
			return nil, err
		}
		s.publish(p.Market, p.Outcome, result.Trades)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.PlaceResult), nil
}

// Take submits an immediate-or-cancel taker order.
func (s *Sequencer) Take(ctx context.Context, p core.TakeParams) (*core.TakeResult, error) {
	v, err := s.submit(ctx, "take", func(ctx context.Context, now int64) (any, error) {
		if p.Now == 0 {
			p.Now = now
		}
		result, err := s.engine.Take(ctx, p)
		if err != nil {
			return nil, err
		}
		s.publish(p.Market, p.Outcome, result.Trades)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.TakeResult), nil
}

// Cancel removes a resting order and returns the cancelled share count.
func (s *Sequencer) Cancel(ctx context.Context, p core.CancelParams) (uint64, error) {
	v, err := s.submit(ctx, "cancel", func(ctx context.Context, now int64) (any, error) {
		cancelled, err := s.engine.Cancel(ctx, p)
		if err != nil {
			return nil, err
		}
		s.publish(p.Market, p.Outcome, nil)
		return cancelled, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// CreateMarket submits a market creation.
func (s *Sequencer) CreateMarket(ctx context.Context, p core.CreateMarketParams) (*core.Market, error) {
	v, err := s.submit(ctx, "create_market", func(ctx context.Context, now int64) (any, error) {
		return s.engine.CreateMarket(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Market), nil
}

// ResolveMarket submits a resolution, stamped with the sequencer clock.
func (s *Sequencer) ResolveMarket(ctx context.Context, id core.MarketID, resolver core.UserID, winner core.OutcomeID) error {
	_, err := s.submit(ctx, "resolve_market", func(ctx context.Context, now int64) (any, error) {
		return nil, s.engine.ResolveMarket(ctx, id, resolver, winner, now)
	})
	return err
}

// FinalizeMarket submits a finalization.
func (s *Sequencer) FinalizeMarket(ctx context.Context, id core.MarketID, resolver core.UserID) error {
	_, err := s.submit(ctx, "finalize_market", func(ctx context.Context, now int64) (any, error) {
		return nil, s.engine.FinalizeMarket(ctx, id, resolver)
	})
	return err
}

// SweepFees submits a fee sweep.
func (s *Sequencer) SweepFees(ctx context.Context, id core.MarketID) (core.FeeSweep, error) {
	v, err := s.submit(ctx, "sweep_fees", func(ctx context.Context, now int64) (any, error) {
		return s.engine.SweepFees(ctx, id)
	})
	if err != nil {
		return core.FeeSweep{}, err
	}
	return v.(core.FeeSweep), nil
}

// Deposit credits free points to a user.
func (s *Sequencer) Deposit(ctx context.Context, user core.UserID, amount uint64) error {
	_, err := s.submit(ctx, "deposit", func(ctx context.Context, now int64) (any, error) {
		s.engine.CreditFreePoints(user, amount)
		return nil, nil
	})
	return err
}

// Withdraw debits free points from a user.
func (s *Sequencer) Withdraw(ctx context.Context, user core.UserID, amount uint64) error {
	_, err := s.submit(ctx, "withdraw", func(ctx context.Context, now int64) (any, error) {
		return nil, s.engine.DebitFreePoints(user, amount)
	})
	return err
}

// DepositShares credits free outcome shares to a user.
func (s *Sequencer) DepositShares(ctx context.Context, user core.UserID, class core.ClassKey, amount uint64) error {
	_, err := s.submit(ctx, "deposit_shares", func(ctx context.Context, now int64) (any, error) {
		s.engine.CreditFreeShares(user, class, amount)
		return nil, nil
	})
	return err
}

// WithdrawShares debits free outcome shares from a user.
func (s *Sequencer) WithdrawShares(ctx context.Context, user core.UserID, class core.ClassKey, amount uint64) error {
	_, err := s.submit(ctx, "withdraw_shares", func(ctx context.Context, now int64) (any, error) {
		return nil, s.engine.DebitFreeShares(user, class, amount)
	})
	return err
}

// publish pushes trades and a fresh depth snapshot to the feed. Runs on
// the sequencer goroutine, after the command mutated the book.
func (s *Sequencer) publish(market core.MarketID, outcome core.OutcomeID, trades []core.Trade) {
	if s.feed == nil {
		return
	}
	class := core.ClassKey{Market: market, Outcome: outcome}
	if len(trades) > 0 {
		s.feed.BroadcastTrades(s.name, class, trades)
	}
	s.feed.BroadcastDepth(s.name, class,
		s.engine.Depth(class, core.Bid),
		s.engine.Depth(class, core.Ask))
}
