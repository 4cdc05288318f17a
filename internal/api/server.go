// Package api exposes the terminal's reconciled views over HTTP and accepts
// alert edits and order commands.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"crypto_terminal/internal/alert"
	"crypto_terminal/internal/depth"
	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/engine"
	"crypto_terminal/internal/execution"
	"crypto_terminal/internal/infra"
	"crypto_terminal/internal/precision"
	"crypto_terminal/internal/service"
)

// SettingsStore persists small user settings such as favorites.
type SettingsStore interface {
	SaveConfig(key, value string) error
}

// AssetLister lists the known base assets and their icons.
type AssetLister interface {
	GetAllAssets() ([]domain.AssetInfo, error)
}

// LadderCache serves ladders mirrored by an earlier run.
type LadderCache interface {
	GetLadder(ctx context.Context, symbol string) (*depth.Ladder, error)
}

// FavoritesKey is the settings key holding the comma separated favorites.
const FavoritesKey = "favorites"

// Deps are the components served by the API. Sequencer, Registry, Alerts
// and Tickers are required; the rest may be nil.
type Deps struct {
	Sequencer *engine.Sequencer
	Registry  *precision.Registry
	Alerts    *alert.Engine
	Tickers   *service.TickerService
	Candles   domain.CandleStore
	Sender    domain.CommandSender
	Settings  SettingsStore
	Assets    AssetLister
	Ladders   LadderCache
	Metrics   *infra.Metrics
}

type orderView struct {
	domain.Order
	Notional decimal.Decimal `json:"notional"`
}

type balanceView struct {
	domain.Balance
	Total decimal.Decimal `json:"total"`
}

type tickerView struct {
	domain.Ticker
	Direction string `json:"direction"`
}

// Server is the HTTP surface of the terminal.
type Server struct {
	deps    Deps
	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = infra.GlobalMetrics
	}
	s := &Server{
		deps:   deps,
		logger: slog.Default().With("module", "api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)

	r.GET("/symbols", s.listSymbols)
	r.GET("/precision/:symbol", s.getPrecision)
	r.GET("/tickers", s.listTickers)
	r.GET("/assets", s.listAssets)
	r.GET("/favorites", s.listFavorites)
	r.PUT("/favorites/:symbol", s.setFavorite)
	r.DELETE("/favorites/:symbol", s.setFavorite)

	r.GET("/orders", s.listOrders)
	r.GET("/history", s.listHistory)
	r.GET("/groups", s.listGroups)
	r.GET("/depth/:symbol", s.getDepth)
	r.GET("/balances", s.listBalances)
	r.GET("/candles/:symbol", s.getCandles)

	r.POST("/orders", s.submitOrder)
	r.POST("/orders/cancel", s.cancelOrder)

	r.GET("/alerts", s.listAlerts)
	r.POST("/alerts", s.createAlert)
	r.DELETE("/alerts/:id", s.deleteAlert)
	r.POST("/alerts/:id/toggle", s.toggleAlert)
	r.POST("/alerts/:id/reset", s.resetAlert)

	s.router = r
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info("🌐 API listening", slog.String("addr", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", slog.Any("error", err))
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)),
		)
	}
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, domain.ErrInvalidAlert), errors.Is(err, domain.ErrInvalidSymbol):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlertNotFound):
		status = http.StatusNotFound
	case domain.IsRetriable(err):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Metrics.Snapshot())
}

// ======================================================================================
// Market views
// ======================================================================================

func (s *Server) listSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Registry.Symbols())
}

func (s *Server) getPrecision(c *gin.Context) {
	p, known := s.deps.Registry.Lookup(c.Param("symbol"))
	c.JSON(http.StatusOK, gin.H{"precision": p, "known": known})
}

func (s *Server) listTickers(c *gin.Context) {
	tickers := s.deps.Tickers.GetAll()
	out := make([]tickerView, len(tickers))
	for i := range tickers {
		out[i] = tickerView{Ticker: tickers[i], Direction: tickers[i].ChangeDirection()}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listAssets(c *gin.Context) {
	if s.deps.Assets == nil {
		c.JSON(http.StatusOK, []domain.AssetInfo{})
		return
	}
	assets, err := s.deps.Assets.GetAllAssets()
	if err != nil {
		writeError(c, err)
		return
	}
	if assets == nil {
		assets = []domain.AssetInfo{}
	}
	c.JSON(http.StatusOK, assets)
}

func (s *Server) listFavorites(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Tickers.Favorites())
}

// setFavorite handles PUT (add) and DELETE (remove).
func (s *Server) setFavorite(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	s.deps.Tickers.SetFavorite(symbol, c.Request.Method == http.MethodPut)

	favorites := s.deps.Tickers.Favorites()
	if s.deps.Settings != nil {
		if err := s.deps.Settings.SaveConfig(FavoritesKey, strings.Join(favorites, ",")); err != nil {
			s.logger.Error("Failed to save favorites", slog.Any("error", err))
			s.deps.Metrics.RecordPersistenceError()
		}
	}
	c.JSON(http.StatusOK, favorites)
}

// ======================================================================================
// Reconciled views
// ======================================================================================

func (s *Server) listOrders(c *gin.Context) {
	orders := s.deps.Sequencer.OpenOrders(c.Query("symbol"))
	out := make([]orderView, len(orders))
	for i := range orders {
		out[i] = orderView{Order: orders[i], Notional: orders[i].Notional()}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listHistory(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Sequencer.History(c.Query("symbol")))
}

func (s *Server) listGroups(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Sequencer.Groups(c.Query("symbol")))
}

// getDepth serves the live ladder, falling back to the mirrored one until
// the first depth event of the symbol arrives.
func (s *Server) getDepth(c *gin.Context) {
	symbol := c.Param("symbol")
	if l, ok := s.deps.Sequencer.Ladder(symbol); ok {
		c.JSON(http.StatusOK, l)
		return
	}
	if s.deps.Ladders != nil {
		l, err := s.deps.Ladders.GetLadder(c.Request.Context(), symbol)
		if err != nil {
			s.logger.Warn("Cached ladder unavailable", slog.String("symbol", symbol), slog.Any("error", err))
		}
		if l != nil {
			c.JSON(http.StatusOK, l)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no depth for symbol"})
}

func (s *Server) listBalances(c *gin.Context) {
	balances := s.deps.Sequencer.Balances()
	out := make([]balanceView, len(balances))
	for i, b := range balances {
		out[i] = balanceView{Balance: b, Total: b.Total()}
	}
	c.JSON(http.StatusOK, out)
}

// getCandles serves the live series, falling back to the stored one.
func (s *Server) getCandles(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	interval := c.DefaultQuery("interval", "1m")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	candles := s.deps.Sequencer.Candles(symbol, interval)
	if len(candles) == 0 && s.deps.Candles != nil {
		stored, err := s.deps.Candles.LoadCandles(c.Request.Context(), symbol, interval, limit)
		if err != nil {
			s.logger.Error("Failed to load candles", slog.String("symbol", symbol), slog.Any("error", err))
			s.deps.Metrics.RecordPersistenceError()
		}
		candles = stored
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	c.JSON(http.StatusOK, candles)
}

// ======================================================================================
// Order commands
// ======================================================================================

type cancelRequest struct {
	Symbol  string `json:"symbol" binding:"required"`
	OrderID string `json:"orderId" binding:"required"`
}

func (s *Server) submitOrder(c *gin.Context) {
	var req execution.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := execution.BuildOrder(req, s.deps.Registry.Get(req.Symbol))
	if err != nil {
		writeError(c, err)
		return
	}
	s.send(c, cmd)
}

func (s *Server) cancelOrder(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := execution.BuildCancel(req.Symbol, req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}
	s.send(c, cmd)
}

func (s *Server) send(c *gin.Context, cmd domain.Command) {
	if s.deps.Sender == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transport not connected"})
		return
	}
	if err := s.deps.Sender.Send(cmd); err != nil {
		s.logger.Warn("Order command not sent", slog.String("request", cmd.Request), slog.Any("error", err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, cmd)
}

// ======================================================================================
// Alerts
// ======================================================================================

func (s *Server) listAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Alerts.List(c.Query("symbol")))
}

func (s *Server) createAlert(c *gin.Context) {
	var req alert.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := decimal.Zero
	if last, ok := s.deps.Tickers.LastPrice(req.Symbol); ok {
		current = last
	}
	a, err := s.deps.Alerts.Create(req, current)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) deleteAlert(c *gin.Context) {
	if err := s.deps.Alerts.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleAlert(c *gin.Context) {
	a, err := s.deps.Alerts.Toggle(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) resetAlert(c *gin.Context) {
	a, err := s.deps.Alerts.Reset(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
