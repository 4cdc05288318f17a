package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/infra"
)

const (
	baseDelay        = 1 * time.Second
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Options configures a Client. Zero values fall back to the defaults below.
type Options struct {
	URL              string
	Subscribe        []string // request names sent after each connect
	Symbols          []string
	PingInterval     time.Duration // default 30s
	ReadTimeout      time.Duration // default 2x PingInterval
	MaxBackoff       time.Duration // default 60s
	CircuitThreshold int           // default 5
	Metrics          *infra.Metrics
}

// Client is the terminal's websocket transport. It forwards every inbound
// frame unchanged to the sequencer inbox and writes outbound commands.
type Client struct {
	opts  Options
	inbox chan<- []byte

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewClient creates a new feed client pushing raw frames into inbox.
func NewClient(opts Options, inbox chan<- []byte) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * opts.PingInterval
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 60 * time.Second
	}
	if opts.CircuitThreshold <= 0 {
		opts.CircuitThreshold = 5
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	return &Client{
		opts:   opts,
		inbox:  inbox,
		logger: slog.Default().With("module", "feed"),
	}
}

// Connect starts the WebSocket connection with automatic reconnection
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.URL == "" {
		return domain.NewFatalNetworkError("connect", errors.New("empty websocket URL"))
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.connectionLoop(ctx)

	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff.
// After CircuitThreshold consecutive failures the circuit is reported open
// until the next successful dial.
func (c *Client) connectionLoop(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Feed panic recovered", slog.Any("panic", r))
		}
	}()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Feed connection loop stopped")
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Warn("Feed connection failed",
				slog.Any("error", err),
				slog.Int("retry", failures),
			)

			delay := c.calculateBackoff(failures)
			failures++
			if failures == c.opts.CircuitThreshold {
				c.logger.Error("🔌 Feed circuit open", slog.Int("failures", failures))
				c.opts.Metrics.SetCircuitState(true)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		if failures >= c.opts.CircuitThreshold {
			c.opts.Metrics.SetCircuitState(false)
		}
		failures = 0

		c.runConnection(ctx)
	}
}

// calculateBackoff returns the delay for the current retry attempt
func (c *Client) calculateBackoff(retryCount int) time.Duration {
	delay := baseDelay * time.Duration(math.Pow(2, float64(min(retryCount, 16))))
	if delay > c.opts.MaxBackoff {
		delay = c.opts.MaxBackoff
	}
	return delay
}

// connect dials and sends the subscription commands.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return domain.NewNetworkError("dial", fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.opts.Metrics.IncrementConnections()

	if err := c.subscribe(); err != nil {
		c.closeConnection()
		return domain.NewNetworkError("subscribe", err)
	}

	c.logger.Info("🔗 Feed connected",
		slog.String("url", c.opts.URL),
		slog.Int("subscriptions", len(c.opts.Subscribe)),
	)
	return nil
}

// subscribe sends one command per configured request name.
func (c *Client) subscribe() error {
	for _, req := range c.opts.Subscribe {
		cmd := domain.Command{Request: req, Data: map[string]any{}}
		if len(c.opts.Symbols) > 0 {
			cmd.Data["symbols"] = c.opts.Symbols
		}
		if err := c.Send(cmd); err != nil {
			return err
		}
	}
	return nil
}

// runConnection reads until the connection drops, pinging in the background.
func (c *Client) runConnection(ctx context.Context) {
	connCtx, stop := context.WithCancel(ctx)
	defer stop()

	c.wg.Add(1)
	go c.pingLoop(connCtx)

	c.readLoop(connCtx)
}

func (c *Client) pingLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Feed ping failed", slog.Any("error", err))
			}
		}
	}
}

// readLoop forwards frames to the inbox. Delivery blocks rather than drops:
// the sequencer relies on seeing every execution report.
func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Feed read error", slog.Any("error", err))
			}
			c.closeConnection()
			return
		}

		select {
		case c.inbox <- message:
		case <-ctx.Done():
			c.closeConnection()
			return
		}
	}
}

// Send marshals and writes an outbound command.
func (c *Client) Send(cmd domain.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := c.threadSafeWrite(websocket.TextMessage, data); err != nil {
		return domain.NewNetworkError("write", err)
	}
	return nil
}

// threadSafeWrite sends a message to the WebSocket connection in a thread-safe manner
func (c *Client) threadSafeWrite(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return domain.ErrConnectionFailed
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.opts.Metrics.DecrementConnections()
	}
	c.connected = false
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	c.wg.Wait()
	c.logger.Info("Feed disconnected")
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

var (
	_ domain.ExchangeWorker = (*Client)(nil)
	_ domain.CommandSender  = (*Client)(nil)
)
