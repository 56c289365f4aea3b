package tablebase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/board"
)

const (
	DefaultLichessEndpoint = "https://tablebase.lichess.ovh/standard"
	DefaultLichessTimeout  = 2 * time.Second
)

// LichessProber uses the Lichess tablebase API for online lookups.
// Every probe is a network round trip; wrap it in a CachedProber.
type LichessProber struct {
	client    *http.Client
	endpoint  string
	timeout   time.Duration
	maxPieces int
}

// LichessOption configures a LichessProber.
type LichessOption func(*LichessProber)

// WithEndpoint points the prober at another server speaking the same API.
func WithEndpoint(endpoint string) LichessOption {
	return func(lp *LichessProber) { lp.endpoint = endpoint }
}

// WithTimeout bounds each request. The caller's context can end it sooner.
func WithTimeout(d time.Duration) LichessOption {
	return func(lp *LichessProber) { lp.timeout = d }
}

func WithHTTPClient(c *http.Client) LichessOption {
	return func(lp *LichessProber) { lp.client = c }
}

func WithMaxPieces(n int) LichessOption {
	return func(lp *LichessProber) { lp.maxPieces = n }
}

// NewLichessProber creates a new Lichess-based tablebase prober.
func NewLichessProber(opts ...LichessOption) *LichessProber {
	lp := &LichessProber{
		client:    http.DefaultClient,
		endpoint:  DefaultLichessEndpoint,
		timeout:   DefaultLichessTimeout,
		maxPieces: 7, // Lichess serves up to 7-piece tables
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// Lichess API response structure
type lichessResponse struct {
	Checkmate bool   `json:"checkmate"`
	Stalemate bool   `json:"stalemate"`
	Category  string `json:"category"` // "win", "maybe-win", "cursed-win", "draw", "blessed-loss", "maybe-loss", "loss", "unknown"
	DTZ       *int   `json:"dtz"`
	DTM       *int   `json:"dtm"`
}

// Probe implements the search's prober contract. Network and decoding
// errors count as "not covered", as does a ctx that ends first.
func (lp *LichessProber) Probe(ctx context.Context, pos *board.Position) (int, bool) {
	if pos.PieceCount() > lp.maxPieces || ctx.Err() != nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, lp.timeout)
	defer cancel()

	r, err := lp.Lookup(ctx, pos)
	if err != nil {
		log.Debug().Err(err).Str("fen", pos.FEN()).Msg("tablebase probe failed")
		return 0, false
	}
	return r.dtm(), true
}

// Lookup queries the server for pos. Terminal positions and results the
// server cannot classify are errors.
func (lp *LichessProber) Lookup(ctx context.Context, pos *board.Position) (Result, error) {
	q := url.Values{"fen": {pos.FEN()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lp.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := lp.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("tablebase: %s", resp.Status)
	}

	var body lichessResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("tablebase: decode response: %w", err)
	}
	if body.Checkmate || body.Stalemate {
		return Result{}, fmt.Errorf("tablebase: terminal position")
	}

	wdl, ok := categoryToWDL(body.Category)
	if !ok {
		return Result{}, fmt.Errorf("tablebase: unusable category %q", body.Category)
	}
	r := Result{WDL: wdl}
	if body.DTM != nil && (wdl == WDLWin || wdl == WDLLoss) {
		r.DTM = *body.DTM
	}
	return r, nil
}

func (lp *LichessProber) MaxPieces() int {
	return lp.maxPieces
}

// categoryToWDL maps the server's category. The maybe- categories depend
// on the 50-move counter the server could not see and are rejected.
func categoryToWDL(category string) (WDL, bool) {
	switch category {
	case "win":
		return WDLWin, true
	case "cursed-win":
		return WDLCursedWin, true
	case "draw":
		return WDLDraw, true
	case "blessed-loss":
		return WDLBlessedLoss, true
	case "loss":
		return WDLLoss, true
	}
	return WDLDraw, false
}
