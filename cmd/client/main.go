package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	serverAddr = flag.String("addr", "http://localhost:8080", "The server base URL")
	engineName = flag.String("engine", "main", "Engine name")
)

type apiClient struct {
	base   string
	engine string
	http   *http.Client
}

// newClient reads the shared flags, so it must run after flag.Parse.
func newClient() *apiClient {
	return &apiClient{
		base:   *serverAddr,
		engine: *engineName,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	switch command {
	case "create-engine":
		createEngine()
	case "list-engines":
		listEngines()
	case "delete-engine":
		deleteEngine()
	case "create-market":
		createMarket()
	case "deposit":
		deposit()
	case "order":
		placeOrder()
	case "take":
		take()
	case "cancel":
		cancel()
	case "book":
		if err := printBook(); err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch book")
		}
	case "resolve":
		resolve()
	case "finalize":
		finalize()
	case "sweep":
		sweep()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func createEngine() {
	backendType := flag.String("backend", "memory", "Backend type (memory or redis)")
	flag.Parse()
	c := newClient()

	body := map[string]any{"name": c.engine, "backend": *backendType}
	if *backendType == "redis" {
		body["options"] = map[string]string{
			"addr":   "localhost:6379",
			"db":     "0",
			"prefix": c.engine,
		}
	}

	var info struct {
		Name      string    `json:"Name"`
		Backend   string    `json:"Backend"`
		CreatedAt time.Time `json:"CreatedAt"`
	}
	if err := c.do("POST", "/engines", body, &info); err != nil {
		log.Fatal().Err(err).Msg("CreateEngine failed")
	}

	log.Info().
		Str("name", info.Name).
		Str("backend", info.Backend).
		Time("created_at", info.CreatedAt).
		Msg("Created engine")
}

func listEngines() {
	flag.Parse()
	c := newClient()

	var engines []struct {
		Name      string    `json:"Name"`
		Backend   string    `json:"Backend"`
		CreatedAt time.Time `json:"CreatedAt"`
	}
	if err := c.do("GET", "/engines", nil, &engines); err != nil {
		log.Fatal().Err(err).Msg("ListEngines failed")
	}

	log.Info().Int("total", len(engines)).Msg("Listed engines")
	for i, engine := range engines {
		log.Info().
			Int("index", i+1).
			Str("name", engine.Name).
			Str("backend", engine.Backend).
			Time("created_at", engine.CreatedAt).
			Msg("Engine")
	}
}

func deleteEngine() {
	flag.Parse()
	c := newClient()

	if err := c.do("DELETE", "/engines/"+c.engine, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("DeleteEngine failed")
	}
	log.Info().Str("name", c.engine).Msg("Engine deleted")
}

func createMarket() {
	creator := flag.Uint64("creator", 1, "Creator user id")
	resolver := flag.Uint64("resolver", 1, "Resolver user id")
	outcomes := flag.Uint("outcomes", 2, "Number of outcome classes")
	makerBps := flag.Uint("maker-bps", 0, "Maker fee in basis points")
	takerBps := flag.Uint("taker-bps", 0, "Taker fee in basis points")
	creatorBps := flag.Uint("creator-bps", 0, "Creator share of swept fees in basis points")
	expiresAt := flag.Int64("expires-at", 0, "Expiry unix timestamp (0 = never)")
	earlyResolve := flag.Bool("early-resolve", false, "Permit resolution before expiry")
	flag.Parse()
	c := newClient()

	var market struct {
		ID       uint32 `json:"ID"`
		Outcomes uint16 `json:"Outcomes"`
	}
	err := c.do("POST", "/engines/"+c.engine+"/markets", map[string]any{
		"creator":         *creator,
		"resolver":        *resolver,
		"outcomes":        *outcomes,
		"maker_fee_bps":   *makerBps,
		"taker_fee_bps":   *takerBps,
		"creator_fee_bps": *creatorBps,
		"expires_at":      *expiresAt,
		"early_resolve":   *earlyResolve,
	}, &market)
	if err != nil {
		log.Fatal().Err(err).Msg("CreateMarket failed")
	}

	log.Info().
		Uint32("market", market.ID).
		Uint16("outcomes", market.Outcomes).
		Msg("Created market")
}

func deposit() {
	user := flag.Uint64("user", 0, "User id")
	amount := flag.Uint64("amount", 0, "Amount to credit")
	market := flag.Uint("market", 0, "Market id (share deposits only)")
	outcome := flag.Uint("outcome", 0, "Outcome id (share deposits only)")
	shares := flag.Bool("shares", false, "Deposit outcome shares instead of points")
	flag.Parse()
	c := newClient()

	err := c.do("POST", "/engines/"+c.engine+"/deposits", map[string]any{
		"user":    *user,
		"amount":  *amount,
		"market":  *market,
		"outcome": *outcome,
		"shares":  *shares,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Deposit failed")
	}
	log.Info().Uint64("user", *user).Uint64("amount", *amount).Bool("shares", *shares).Msg("Deposited")
}

func placeOrder() {
	user := flag.Uint64("user", 0, "User id")
	market := flag.Uint("market", 0, "Market id")
	outcome := flag.Uint("outcome", 0, "Outcome id")
	side := flag.String("side", "", "Order side (BID/ASK)")
	tick := flag.Uint("tick", 0, "Limit tick (1-99)")
	size := flag.Uint64("size", 0, "Order size in shares")
	flag.Parse()
	c := newClient()

	var result struct {
		OrderID   uint64 `json:"OrderID"`
		Filled    uint64 `json:"Filled"`
		Remaining uint64 `json:"Remaining"`
		Rested    bool   `json:"Rested"`
	}
	err := c.do("POST", "/engines/"+c.engine+"/orders", map[string]any{
		"user": *user, "market": *market, "outcome": *outcome,
		"side": *side, "tick": *tick, "size": *size,
	}, &result)
	if err != nil {
		log.Fatal().Err(err).Msg("PlaceOrder failed")
	}

	log.Info().
		Uint64("order_id", result.OrderID).
		Uint64("filled", result.Filled).
		Uint64("remaining", result.Remaining).
		Bool("rested", result.Rested).
		Msg("Placed order")
}

func take() {
	user := flag.Uint64("user", 0, "User id")
	market := flag.Uint("market", 0, "Market id")
	outcome := flag.Uint("outcome", 0, "Outcome id")
	side := flag.String("side", "", "Taker side (BID/ASK)")
	limit := flag.Uint("limit", 0, "Price bound tick")
	size := flag.Uint64("size", 0, "Size in shares")
	minFill := flag.Uint64("min-fill", 0, "Fail unless at least this many shares match")
	flag.Parse()
	c := newClient()

	var result struct {
		Filled       uint64 `json:"Filled"`
		PointsTraded uint64 `json:"PointsTraded"`
	}
	err := c.do("POST", "/engines/"+c.engine+"/takes", map[string]any{
		"user": *user, "market": *market, "outcome": *outcome,
		"side": *side, "limit": *limit, "size": *size, "min_fill": *minFill,
	}, &result)
	if err != nil {
		log.Fatal().Err(err).Msg("Take failed")
	}

	log.Info().
		Uint64("filled", result.Filled).
		Uint64("points_traded", result.PointsTraded).
		Msg("Take executed")
}

func cancel() {
	user := flag.Uint64("user", 0, "User id")
	market := flag.Uint("market", 0, "Market id")
	outcome := flag.Uint("outcome", 0, "Outcome id")
	side := flag.String("side", "", "Order side (BID/ASK)")
	order := flag.Uint64("order", 0, "Order id")
	flag.Parse()
	c := newClient()

	// Fetch predecessor hints first; head orders need none.
	var hints struct {
		Candidates []uint64 `json:"candidates"`
	}
	path := fmt.Sprintf("/engines/%s/orders/%d/predecessors?market=%d&outcome=%d&side=%s",
		c.engine, *order, *market, *outcome, *side)
	if err := c.do("GET", path, nil, &hints); err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch predecessor candidates")
	}

	var result struct {
		Cancelled uint64 `json:"cancelled"`
	}
	err := c.do("POST", "/engines/"+c.engine+"/cancels", map[string]any{
		"user": *user, "market": *market, "outcome": *outcome,
		"side": *side, "order": *order, "prev_candidates": hints.Candidates,
	}, &result)
	if err != nil {
		log.Fatal().Err(err).Msg("Cancel failed")
	}
	log.Info().Uint64("order_id", *order).Uint64("cancelled", result.Cancelled).Msg("Order canceled")
}

func printBook() error {
	market := flag.Uint("market", 0, "Market id")
	outcome := flag.Uint("outcome", 0, "Outcome id")
	flag.Parse()
	c := newClient()

	color.NoColor = false
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	var book struct {
		Bids []struct {
			Tick   uint8  `json:"tick"`
			Shares uint64 `json:"shares"`
		} `json:"bids"`
		Asks []struct {
			Tick   uint8  `json:"tick"`
			Shares uint64 `json:"shares"`
		} `json:"asks"`
	}
	path := fmt.Sprintf("/engines/%s/book?market=%d&outcome=%d", c.engine, *market, *outcome)
	if err := c.do("GET", path, nil, &book); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%10s|%15s|%s\n", cyan("Tick"), cyan("Shares"), cyan("Side"))
	fmt.Fprintf(w, "%10s|%15s|%s\n", "----------", "---------------", "----")

	// Asks print worst to best so the spread sits in the middle.
	for i := len(book.Asks) - 1; i >= 0; i-- {
		level := book.Asks[i]
		fmt.Fprintf(w, "%10d|%15d|%s\n", level.Tick, level.Shares, red("ASK"))
	}

	fmt.Fprintf(w, "%10s|%15s|%s\n", "----------", "---------------", "----")

	for _, level := range book.Bids {
		fmt.Fprintf(w, "%10d|%15d|%s\n", level.Tick, level.Shares, green("BID"))
	}

	return w.Flush()
}

func resolve() {
	market := flag.Uint("market", 0, "Market id")
	resolver := flag.Uint64("resolver", 0, "Resolver user id")
	winner := flag.Uint("winner", 0, "Winning outcome id")
	flag.Parse()
	c := newClient()

	path := fmt.Sprintf("/engines/%s/markets/%d/resolve", c.engine, *market)
	err := c.do("POST", path, map[string]any{"resolver": *resolver, "winner": *winner}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Resolve failed")
	}
	log.Info().Uint("market", *market).Uint("winner", *winner).Msg("Market resolved")
}

func finalize() {
	market := flag.Uint("market", 0, "Market id")
	resolver := flag.Uint64("resolver", 0, "Resolver user id")
	flag.Parse()
	c := newClient()

	path := fmt.Sprintf("/engines/%s/markets/%d/finalize", c.engine, *market)
	err := c.do("POST", path, map[string]any{"resolver": *resolver}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Finalize failed")
	}
	log.Info().Uint("market", *market).Msg("Market finalized")
}

func sweep() {
	market := flag.Uint("market", 0, "Market id")
	flag.Parse()
	c := newClient()

	var result struct {
		CreatorCut  uint64 `json:"creator_cut"`
		ProtocolCut uint64 `json:"protocol_cut"`
	}
	path := fmt.Sprintf("/engines/%s/markets/%d/sweep", c.engine, *market)
	if err := c.do("POST", path, map[string]any{}, &result); err != nil {
		log.Fatal().Err(err).Msg("Sweep failed")
	}
	log.Info().
		Uint64("creator_cut", result.CreatorCut).
		Uint64("protocol_cut", result.ProtocolCut).
		Msg("Fees swept")
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  create-engine [--engine=<name>] [--backend=memory|redis]")
	fmt.Println("  list-engines")
	fmt.Println("  delete-engine [--engine=<name>]")
	fmt.Println("  create-market --creator=<id> --resolver=<id> [--outcomes=N] [--maker-bps=N] [--taker-bps=N]")
	fmt.Println("  deposit --user=<id> --amount=<n> [--shares --market=<id> --outcome=<n>]")
	fmt.Println("  order --user=<id> --market=<id> --side=bid|ask --tick=<1-99> --size=<n>")
	fmt.Println("  take --user=<id> --market=<id> --side=bid|ask --limit=<tick> --size=<n> [--min-fill=<n>]")
	fmt.Println("  cancel --user=<id> --market=<id> --side=bid|ask --order=<id>")
	fmt.Println("  book --market=<id> [--outcome=<n>]")
	fmt.Println("  resolve --market=<id> --resolver=<id> --winner=<outcome>")
	fmt.Println("  finalize --market=<id> --resolver=<id>")
	fmt.Println("  sweep --market=<id>")
	fmt.Println("\nExamples:")
	fmt.Println("  create-engine --backend=memory")
	fmt.Println("  create-market --creator=1 --resolver=1 --outcomes=2 --taker-bps=200")
	fmt.Println("  deposit --user=2 --amount=1000")
	fmt.Println("  order --user=2 --market=1 --side=bid --tick=55 --size=100")
	fmt.Println("  book --market=1")
}
