package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// StreamConfig holds tick stream settings.
type StreamConfig struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration
}

// DefaultStreamConfig returns default stream settings.
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:            url,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// StreamClient maintains the websocket tick stream and pushes every
// received frame into a Store. It reconnects with exponential backoff
// and replays active subscriptions after each reconnect.
type StreamClient struct {
	cfg    StreamConfig
	store  *Store
	logger *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]string // token -> exchange-qualified key

	done chan struct{}
	wg   sync.WaitGroup
}

// NewStreamClient creates a stream client feeding store.
func NewStreamClient(cfg StreamConfig, store *Store, logger *slog.Logger) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamClient{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		subscribed: make(map[string]string),
		done:       make(chan struct{}),
	}
}

// Start dials the stream and launches the read loop.
func (c *StreamClient) Start(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("dial tick stream: %w", err)
	}

	c.wg.Add(1)
	go c.readLoop(ctx)
	return nil
}

// Stop closes the stream and waits for the read loop to exit.
func (c *StreamClient) Stop() {
	close(c.done)

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *StreamClient) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("tick stream connected", "url", c.cfg.URL)
	return nil
}

// Subscribe registers exchange-qualified tokens ("NFO|35001") and sends
// the subscription downstream.
func (c *StreamClient) Subscribe(keys []string) error {
	c.mu.Lock()
	for _, k := range keys {
		if _, token, ok := splitKey(k); ok {
			c.subscribed[token] = k
		}
	}
	c.mu.Unlock()

	return c.send(subscribeFrame(keys, "t"))
}

// Unsubscribe removes tokens from the stream.
func (c *StreamClient) Unsubscribe(keys []string) error {
	c.mu.Lock()
	for _, k := range keys {
		if _, token, ok := splitKey(k); ok {
			delete(c.subscribed, token)
		}
	}
	c.mu.Unlock()

	return c.send(subscribeFrame(keys, "u"))
}

func subscribeFrame(keys []string, kind string) []byte {
	msg, _ := json.Marshal(map[string]string{
		"k": strings.Join(keys, "#"),
		"t": kind,
	})
	return msg
}

func splitKey(key string) (exchange, token string, ok bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (c *StreamClient) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil // replayed on reconnect
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *StreamClient) readLoop(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.cfg.InitialBackoff
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if !c.reconnect(ctx, &backoff) {
				return
			}
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("tick stream read failed", "err", err)
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			continue
		}

		backoff = c.cfg.InitialBackoff
		c.handleMessage(msg)
	}
}

// reconnect dials with exponential backoff and replays subscriptions.
// Returns false when shutdown was requested while waiting.
func (c *StreamClient) reconnect(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}

	if *backoff < c.cfg.MaxBackoff {
		*backoff *= 2
		if *backoff > c.cfg.MaxBackoff {
			*backoff = c.cfg.MaxBackoff
		}
	}

	if err := c.dial(ctx); err != nil {
		c.logger.Warn("tick stream reconnect failed", "err", err, "next_backoff", *backoff)
		return true
	}

	c.mu.Lock()
	keys := make([]string, 0, len(c.subscribed))
	for _, k := range c.subscribed {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	if len(keys) > 0 {
		if err := c.send(subscribeFrame(keys, "t")); err != nil {
			c.logger.Warn("subscription replay failed", "err", err)
		}
	}
	return true
}

// tickFrame mirrors the wire format of the tick stream. Price fields
// arrive either as JSON numbers or quoted strings depending on frame
// type, so they decode through the number shim.
type tickFrame struct {
	Type         string  `json:"t"`
	Token        string  `json:"tk"`
	AckStatus    string  `json:"s"`
	Open         *number `json:"o"`
	High         *number `json:"h"`
	Low          *number `json:"l"`
	Close        *number `json:"c"`
	LastPrice    *number `json:"lp"`
	Volume       *number `json:"v"`
	VWAP         *number `json:"ap"`
	BestBid      *number `json:"bp1"`
	BestAsk      *number `json:"sp1"`
	OpenInterest *number `json:"oi"`
}

func (c *StreamClient) handleMessage(msg []byte) {
	var frame tickFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		c.logger.Warn("undecodable stream frame", "err", err)
		return
	}

	switch frame.Type {
	case "ck":
		c.logger.Info("stream connection acknowledged", "status", frame.AckStatus)
	case "tk":
		c.logger.Debug("token subscription acknowledged", "token", frame.Token)
		c.applyFrame(frame)
	case "tf", "dk", "df":
		c.applyFrame(frame)
	default:
		c.logger.Debug("ignoring stream frame", "type", frame.Type)
	}
}

func (c *StreamClient) applyFrame(frame tickFrame) {
	c.store.Apply(Update{
		Token:        frame.Token,
		Open:         frame.Open.decimal(),
		High:         frame.High.decimal(),
		Low:          frame.Low.decimal(),
		Close:        frame.Close.decimal(),
		LastPrice:    frame.LastPrice.decimal(),
		Volume:       frame.Volume.int64(),
		VWAP:         frame.VWAP.decimal(),
		BestBid:      frame.BestBid.decimal(),
		BestAsk:      frame.BestAsk.decimal(),
		OpenInterest: frame.OpenInterest.int64(),
	})
}

// number accepts both bare and quoted JSON numbers.
type number string

func (n *number) UnmarshalJSON(b []byte) error {
	*n = number(strings.Trim(string(b), `"`))
	return nil
}

func (n *number) decimal() *decimal.Decimal {
	if n == nil || *n == "" {
		return nil
	}
	d, err := decimal.NewFromString(string(*n))
	if err != nil {
		return nil
	}
	return &d
}

func (n *number) int64() *int64 {
	if n == nil || *n == "" {
		return nil
	}
	v, err := strconv.ParseInt(string(*n), 10, 64)
	if err != nil {
		if f, ferr := strconv.ParseFloat(string(*n), 64); ferr == nil {
			v = int64(f)
		} else {
			return nil
		}
	}
	return &v
}
