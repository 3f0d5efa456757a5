package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclob/pointsbook/pkg/core"
)

// API exposes the engine manager over HTTP. Mutations go through each
// engine's sequencer; reads hit the engine directly.
type API struct {
	manager *EngineManager
	feed    *Feed
}

// NewAPI wires the manager and feed into an HTTP surface.
func NewAPI(manager *EngineManager, feed *Feed) *API {
	return &API{manager: manager, feed: feed}
}

// Routes builds the request multiplexer.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /engines", a.handleCreateEngine)
	mux.HandleFunc("GET /engines", a.handleListEngines)
	mux.HandleFunc("DELETE /engines/{engine}", a.handleDeleteEngine)

	mux.HandleFunc("POST /engines/{engine}/markets", a.handleCreateMarket)
	mux.HandleFunc("POST /engines/{engine}/markets/{id}/resolve", a.handleResolveMarket)
	mux.HandleFunc("POST /engines/{engine}/markets/{id}/finalize", a.handleFinalizeMarket)
	mux.HandleFunc("POST /engines/{engine}/markets/{id}/sweep", a.handleSweepFees)

	mux.HandleFunc("POST /engines/{engine}/orders", a.handlePlaceLimit)
	mux.HandleFunc("POST /engines/{engine}/takes", a.handleTake)
	mux.HandleFunc("POST /engines/{engine}/cancels", a.handleCancel)

	mux.HandleFunc("POST /engines/{engine}/deposits", a.handleDeposit)
	mux.HandleFunc("POST /engines/{engine}/withdrawals", a.handleWithdraw)

	mux.HandleFunc("GET /engines/{engine}/book", a.handleBook)
	mux.HandleFunc("GET /engines/{engine}/balances", a.handleBalances)
	mux.HandleFunc("GET /engines/{engine}/orders/{id}/predecessors", a.handlePredecessors)

	if a.feed != nil {
		mux.HandleFunc("GET /ws", a.feed.HandleWS)
	}

	return mux
}

type createEngineRequest struct {
	Name    string            `json:"name"`
	Backend string            `json:"backend"`
	Options map[string]string `json:"options,omitempty"`
}

func (a *API) handleCreateEngine(w http.ResponseWriter, r *http.Request) {
	var req createEngineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	var (
		info *EngineInfo
		err  error
	)
	switch strings.ToLower(req.Backend) {
	case "", "memory":
		info, err = a.manager.CreateMemoryEngine(r.Context(), req.Name)
	case "redis":
		info, err = a.manager.CreateRedisEngine(r.Context(), req.Name, req.Options)
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown backend"))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *API) handleListEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.ListEngines(r.Context()))
}

func (a *API) handleDeleteEngine(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.DeleteEngine(r.Context(), r.PathValue("engine")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createMarketRequest struct {
	Creator       uint64 `json:"creator"`
	Resolver      uint64 `json:"resolver"`
	Outcomes      uint16 `json:"outcomes"`
	MakerFeeBps   uint32 `json:"maker_fee_bps"`
	TakerFeeBps   uint32 `json:"taker_fee_bps"`
	CreatorFeeBps uint32 `json:"creator_fee_bps"`
	ExpiresAt     int64  `json:"expires_at"`
	EarlyResolve  bool   `json:"early_resolve"`
}

func (a *API) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	market, err := seq.CreateMarket(r.Context(), core.CreateMarketParams{
		Creator:       core.UserID(req.Creator),
		Resolver:      core.UserID(req.Resolver),
		Outcomes:      core.OutcomeID(req.Outcomes),
		MakerFeeBps:   req.MakerFeeBps,
		TakerFeeBps:   req.TakerFeeBps,
		CreatorFeeBps: req.CreatorFeeBps,
		ExpiresAt:     req.ExpiresAt,
		EarlyResolve:  req.EarlyResolve,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

type resolveRequest struct {
	Resolver uint64 `json:"resolver"`
	Winner   uint16 `json:"winner"`
}

func (a *API) handleResolveMarket(w http.ResponseWriter, r *http.Request) {
	seq, id, ok := a.engineAndMarket(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := seq.ResolveMarket(r.Context(), id, core.UserID(req.Resolver), core.OutcomeID(req.Winner)); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleFinalizeMarket(w http.ResponseWriter, r *http.Request) {
	seq, id, ok := a.engineAndMarket(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := seq.FinalizeMarket(r.Context(), id, core.UserID(req.Resolver)); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSweepFees(w http.ResponseWriter, r *http.Request) {
	seq, id, ok := a.engineAndMarket(w, r)
	if !ok {
		return
	}

	sweep, err := seq.SweepFees(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"creator_cut":  sweep.CreatorCut,
		"protocol_cut": sweep.ProtocolCut,
	})
}

type orderRequest struct {
	User    uint64 `json:"user"`
	Market  uint32 `json:"market"`
	Outcome uint16 `json:"outcome"`
	Side    string `json:"side"`
	Tick    uint8  `json:"tick"`
	Size    uint64 `json:"size"`
	// Take only.
	Limit   uint8  `json:"limit,omitempty"`
	MinFill uint64 `json:"min_fill,omitempty"`
	// Cancel only.
	Order          uint64   `json:"order,omitempty"`
	PrevCandidates []uint64 `json:"prev_candidates,omitempty"`
}

func (a *API) handlePlaceLimit(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := seq.PlaceLimit(r.Context(), core.PlaceParams{
		Market:  core.MarketID(req.Market),
		Outcome: core.OutcomeID(req.Outcome),
		User:    core.UserID(req.User),
		Side:    side,
		Tick:    core.Tick(req.Tick),
		Size:    req.Size,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleTake(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := seq.Take(r.Context(), core.TakeParams{
		Market:  core.MarketID(req.Market),
		Outcome: core.OutcomeID(req.Outcome),
		User:    core.UserID(req.User),
		Side:    side,
		Limit:   core.Tick(req.Limit),
		Size:    req.Size,
		MinFill: req.MinFill,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	candidates := make([]core.OrderID, len(req.PrevCandidates))
	for i, c := range req.PrevCandidates {
		candidates[i] = core.OrderID(c)
	}

	cancelled, err := seq.Cancel(r.Context(), core.CancelParams{
		Market:         core.MarketID(req.Market),
		Outcome:        core.OutcomeID(req.Outcome),
		User:           core.UserID(req.User),
		Side:           side,
		Order:          core.OrderID(req.Order),
		PrevCandidates: candidates,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"cancelled": cancelled})
}

type custodyRequest struct {
	User    uint64 `json:"user"`
	Amount  uint64 `json:"amount"`
	Market  uint32 `json:"market,omitempty"`
	Outcome uint16 `json:"outcome,omitempty"`
	Shares  bool   `json:"shares,omitempty"`
}

func (a *API) handleDeposit(w http.ResponseWriter, r *http.Request) {
	a.handleCustody(w, r, true)
}

func (a *API) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	a.handleCustody(w, r, false)
}

func (a *API) handleCustody(w http.ResponseWriter, r *http.Request, deposit bool) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req custodyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user := core.UserID(req.User)
	class := core.ClassKey{Market: core.MarketID(req.Market), Outcome: core.OutcomeID(req.Outcome)}

	switch {
	case deposit && req.Shares:
		err = seq.DepositShares(r.Context(), user, class, req.Amount)
	case deposit:
		err = seq.Deposit(r.Context(), user, req.Amount)
	case req.Shares:
		err = seq.WithdrawShares(r.Context(), user, class, req.Amount)
	default:
		err = seq.Withdraw(r.Context(), user, req.Amount)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBook(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	class, err := classFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	engine := seq.Engine()
	writeJSON(w, http.StatusOK, DepthUpdate{
		Engine:  r.PathValue("engine"),
		Market:  uint32(class.Market),
		Outcome: uint16(class.Outcome),
		Bids:    depthLevels(engine.Depth(class, core.Bid)),
		Asks:    depthLevels(engine.Depth(class, core.Ask)),
	})
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	user, err := strconv.ParseUint(r.URL.Query().Get("user"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid user"))
		return
	}

	engine := seq.Engine()
	points := engine.PointsBalance(core.UserID(user))
	resp := map[string]any{
		"points": map[string]uint64{"free": points.Free, "reserved": points.Reserved},
	}

	if r.URL.Query().Get("market") != "" {
		class, err := classFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		shares := engine.ShareBalance(core.UserID(user), class)
		resp["shares"] = map[string]uint64{"free": shares.Free, "reserved": shares.Reserved}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePredecessors(w http.ResponseWriter, r *http.Request) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	class, err := classFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid order id"))
		return
	}

	candidates, err := seq.Engine().PredecessorCandidates(class, side, core.OrderID(id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (a *API) engineAndMarket(w http.ResponseWriter, r *http.Request) (*Sequencer, core.MarketID, bool) {
	seq, _, err := a.manager.GetEngine(r.Context(), r.PathValue("engine"))
	if err != nil {
		writeEngineError(w, err)
		return nil, 0, false
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid market id"))
		return nil, 0, false
	}
	return seq, core.MarketID(id), true
}

func classFromQuery(r *http.Request) (core.ClassKey, error) {
	market, err := strconv.ParseUint(r.URL.Query().Get("market"), 10, 32)
	if err != nil {
		return core.ClassKey{}, errors.New("invalid market")
	}
	outcome, err := strconv.ParseUint(r.URL.Query().Get("outcome"), 10, 16)
	if err != nil {
		return core.ClassKey{}, errors.New("invalid outcome")
	}
	return core.ClassKey{Market: core.MarketID(market), Outcome: core.OutcomeID(outcome)}, nil
}

func parseSide(s string) (core.Side, error) {
	switch strings.ToUpper(s) {
	case "BID", "BUY":
		return core.Bid, nil
	case "ASK", "SELL":
		return core.Ask, nil
	default:
		return 0, errors.New("side must be bid or ask")
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeEngineError maps engine sentinel errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEngineNotFound), errors.Is(err, core.ErrMarketNotFound),
		errors.Is(err, core.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrEngineExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, core.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, core.ErrInvalidTick), errors.Is(err, core.ErrInvalidSize),
		errors.Is(err, core.ErrInvalidSide), errors.Is(err, core.ErrInvalidOutcome),
		errors.Is(err, core.ErrInvalidFeeRate), errors.Is(err, core.ErrTooManyCandidates):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, core.ErrMarketNotActive), errors.Is(err, core.ErrAlreadyResolved),
		errors.Is(err, core.ErrAlreadyFinalized), errors.Is(err, core.ErrNotResolved),
		errors.Is(err, core.ErrResolveNotAllowed), errors.Is(err, core.ErrNotResolver),
		errors.Is(err, core.ErrOrderNotOpen), errors.Is(err, core.ErrNotOrderOwner),
		errors.Is(err, core.ErrNoValidPredecessor), errors.Is(err, core.ErrMinFillNotMet):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
