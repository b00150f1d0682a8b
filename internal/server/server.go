// Package server exposes the quote API, the Farcaster frame surface, and a
// websocket stream of refreshed quotes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/volodeveth/defio/internal/activity"
	"github.com/volodeveth/defio/internal/amount"
	"github.com/volodeveth/defio/internal/config"
	"github.com/volodeveth/defio/internal/quotes"
	"github.com/volodeveth/defio/internal/tokens"
	"github.com/volodeveth/defio/internal/types"
)

type Server struct {
	log *zap.Logger
	cfg *config.Config
	sel *quotes.Selector
	reg *tokens.Registry
	act *activity.Log

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func New(cfg *config.Config, log *zap.Logger, sel *quotes.Selector, reg *tokens.Registry, act *activity.Log) *Server {
	return &Server{
		log: log,
		cfg: cfg,
		sel: sel,
		reg: reg,
		act: act,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quote", s.handleQuote)
	mux.HandleFunc("/api/tokens", s.handleTokens)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/api/frame/action", s.handleFrameAction)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/og-image.svg", s.handleOGImage)
	mux.HandleFunc("/", s.handleFrame)
	return withCORS(mux)
}

// Start serves until ctx ends.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { <-ctx.Done(); _ = srv.Close() }()

	s.log.Info("api server starting", zap.String("addr", s.cfg.Server.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error("api server error", zap.Error(err))
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type quoteResponse struct {
	TokenIn   string         `json:"tokenIn"`
	TokenOut  string         `json:"tokenOut"`
	AmountIn  string         `json:"amountIn"`
	Best      *types.Quote   `json:"best"`
	Quotes    []*types.Quote `json:"quotes"`
	UpdatedAt int64          `json:"updatedAt"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenIn, okIn := s.reg.Lookup(q.Get("token_in"))
	tokenOut, okOut := s.reg.Lookup(q.Get("token_out"))
	amt := strings.TrimSpace(q.Get("amount"))
	if !okIn || !okOut || amt == "" {
		httpError(w, http.StatusBadRequest, "token_in, token_out and amount are required")
		return
	}
	if tokenIn.Is(tokenOut.Address) {
		httpError(w, http.StatusBadRequest, types.ErrSameTokens.Message)
		return
	}
	if _, err := amount.ParseUnits(amt, tokenIn.Decimals); err != nil {
		httpError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QuoteTimeout())
	defer cancel()
	res, err := s.sel.GetBestQuote(ctx, types.QuoteParams{
		TokenIn:     tokenIn.Address,
		TokenOut:    tokenOut.Address,
		AmountIn:    amt,
		DecimalsIn:  tokenIn.Decimals,
		DecimalsOut: tokenOut.Decimals,
	})
	if err != nil {
		if types.KindOf(err) == types.ErrNoRouteFound {
			httpError(w, http.StatusNotFound, types.ErrNoRoute.Message)
			return
		}
		s.log.Warn("quote request failed", zap.Error(err))
		httpError(w, http.StatusBadGateway, "quote failed")
		return
	}

	all := make([]*types.Quote, 0, len(res.All))
	for _, q := range res.All {
		if q != nil {
			all = append(all, q)
		}
	}
	writeJSON(w, quoteResponse{
		TokenIn:   tokenIn.Address.Hex(),
		TokenOut:  tokenOut.Address.Hex(),
		AmountIn:  amt,
		Best:      res.Best,
		Quotes:    all,
		UpdatedAt: res.Ts.UnixMilli(),
	})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeJSON(w, s.reg.List())
		return
	}
	if !common.IsHexAddress(owner) {
		httpError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	list, err := s.reg.Balances(r.Context(), common.HexToAddress(owner))
	if err != nil {
		s.log.Warn("balance lookup failed", zap.Error(err))
		httpError(w, http.StatusBadGateway, "balance lookup failed")
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.act == nil {
		writeJSON(w, []types.ActivityEntry{})
		return
	}
	entries, err := s.act.Recent(r.Context(), 50)
	if err != nil {
		s.log.Warn("activity read failed", zap.Error(err))
		httpError(w, http.StatusBadGateway, "activity unavailable")
		return
	}
	writeJSON(w, entries)
}

// handleWS upgrades and registers a quote-stream subscriber. The client
// sends nothing meaningful; the read loop exists to detect disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("ws client connected", zap.String("remote", conn.RemoteAddr().String()))

	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Broadcast pushes a refreshed quote result to every websocket subscriber.
func (s *Server) Broadcast(res *quotes.Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(c)
		}
	}
}

// Pump forwards refresher results to websocket clients until ctx ends.
func (s *Server) Pump(ctx context.Context, in <-chan *quotes.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-in:
			if !ok {
				return
			}
			s.Broadcast(res)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) publicURL() string {
	u := strings.TrimRight(s.cfg.Server.PublicURL, "/")
	if u == "" {
		u = "http://localhost" + s.cfg.Server.ListenAddr
	}
	return u
}

// handleFrame serves the frame entry point: the fc:frame meta tags clients
// parse, plus a minimal human-readable page.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	base := s.publicURL()
	img := base + "/og-image.svg"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, frameHTML, img, img, base+"/api/frame/action")
}

// handleFrameAction answers button presses with a fresh frame document.
// Clients POST here via fc:frame:post_url.
func (s *Server) handleFrameAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	base := s.publicURL()
	img := base + "/og-image.svg"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, frameHTML, img, img, base+"/api/frame/action")
}

const frameHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta property="og:title" content="Defio - Swap on Base"/>
  <meta property="og:image" content="%s"/>
  <meta property="fc:frame" content="vNext"/>
  <meta property="fc:frame:image" content="%s"/>
  <meta property="fc:frame:button:1" content="Get Quote"/>
  <meta property="fc:frame:button:2" content="Swap"/>
  <meta property="fc:frame:post_url" content="%s"/>
  <title>Defio</title>
</head>
<body>
  <h1>Defio</h1>
  <p>Best-price swaps on Base: Uniswap v3 and Aerodrome, one quote.</p>
</body>
</html>`

// handleOGImage renders the share card; SVG keeps it dependency-free.
func (s *Server) handleOGImage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=300")
	fmt.Fprint(w, ogImageSVG)
}

const ogImageSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="1200" height="630" viewBox="0 0 1200 630">
  <rect width="1200" height="630" fill="#0b1220"/>
  <text x="80" y="280" font-family="system-ui, sans-serif" font-size="96" font-weight="700" fill="#ffffff">Defio</text>
  <text x="80" y="370" font-family="system-ui, sans-serif" font-size="42" fill="#93c5fd">Best-price swaps on Base</text>
  <text x="80" y="440" font-family="system-ui, sans-serif" font-size="32" fill="#6b7280">Uniswap v3 + Aerodrome</text>
</svg>`
