package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	wsPingInterval  = 10 * time.Second
	wsReconnectWait = 5 * time.Second
	wsWriteTimeout  = 5 * time.Second
)

// subscribeMessage es el primer frame que espera el canal market.
type subscribeMessage struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

// MarketStream implements ports.MarketStream over the CLOB market websocket.
// The connection is re-dialed after any read error until ctx ends or Close is called.
type MarketStream struct {
	url           string
	dialer        *websocket.Dialer
	pingInterval  time.Duration
	reconnectWait time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewMarketStream creates a stream against url, or the production endpoint if empty.
func NewMarketStream(url string) *MarketStream {
	if url == "" {
		url = defaultMarketWSURL
	}
	return &MarketStream{
		url:           url,
		dialer:        websocket.DefaultDialer,
		pingInterval:  wsPingInterval,
		reconnectWait: wsReconnectWait,
	}
}

// Subscribe blocks delivering raw frames to handle. It returns nil once ctx is
// cancelled or Close is called; connection errors only trigger a reconnect.
func (s *MarketStream) Subscribe(ctx context.Context, assetIDs []string, handle func(raw []byte)) error {
	if len(assetIDs) == 0 {
		return fmt.Errorf("ws.Subscribe: no asset ids")
	}
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()

	for {
		err := s.session(ctx, assetIDs, handle)
		if ctx.Err() != nil || s.isClosed() {
			return nil
		}
		slog.Warn("live: market ws disconnected, reconnecting", "err", err, "wait", s.reconnectWait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectWait):
		}
	}
}

// Close tears down the current connection. Safe to call more than once.
func (s *MarketStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *MarketStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// session runs one connection: dial, subscribe, keep-alive and read loop.
func (s *MarketStream) session(ctx context.Context, assetIDs []string, handle func(raw []byte)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(subscribeMessage{AssetsIDs: assetIDs, Type: "market"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	slog.Debug("live: market ws subscribed", "assets", len(assetIDs))

	stop := make(chan struct{})
	defer close(stop)
	go s.keepAlive(ctx, conn, stop)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		handle(msg)
	}
}

// keepAlive sends the text PING the server expects. It is the only writer
// once the subscription is sent. Cancelling ctx closes conn to unblock the reader.
func (s *MarketStream) keepAlive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				slog.Debug("live: market ws ping failed", "err", err)
				return
			}
		}
	}
}
