package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"presale-vesting/internal/domain"
)

// StreamConfig configures the event subscription.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is how long the connection may stay silent. The server
	// pings well within it.
	ReadTimeout time.Duration
	// Buffer is the length of the returned channel.
	Buffer int
	Logger *log.Logger
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		Buffer:            256,
	}
}

// streamURL maps the API base URL onto the websocket event route.
func (c *Client) streamURL(presale string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/events")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if presale != "" {
		u.RawQuery = url.Values{"presale": {presale}}.Encode()
	}
	return u.String(), nil
}

// Subscribe streams live ledger events, optionally for one presale. The
// first connection is made before Subscribe returns; later drops reconnect
// with exponential backoff. Events published while disconnected are not
// replayed. The channel is closed when ctx is done.
func (c *Client) Subscribe(ctx context.Context, presale string, config *StreamConfig) (<-chan *domain.LedgerEvent, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	endpoint, err := c.streamURL(presale)
	if err != nil {
		return nil, err
	}

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	ch := make(chan *domain.LedgerEvent, cfg.Buffer)
	go func() {
		defer close(ch)
		delay := cfg.ReconnectDelay
		for {
			received := readEvents(ctx, conn, cfg.ReadTimeout, ch, cfg.Logger)
			conn.Close()
			if received {
				delay = cfg.ReconnectDelay
			}

			for {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay = min(delay*2, cfg.MaxReconnectDelay)

				conn, err = dial(ctx, endpoint)
				if err == nil {
					break
				}
				cfg.Logger.Printf("reconnect: %v", err)
			}
		}
	}()
	return ch, nil
}

func dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// readEvents forwards events from conn until it fails or ctx is done. It
// reports whether any event arrived.
func readEvents(ctx context.Context, conn *websocket.Conn, timeout time.Duration, ch chan<- *domain.LedgerEvent, logger *log.Logger) bool {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(timeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	received := false
	for {
		conn.SetReadDeadline(time.Now().Add(timeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("read: %v", err)
			}
			return received
		}

		var ev domain.LedgerEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			logger.Printf("decode event: %v", err)
			continue
		}
		received = true

		select {
		case ch <- &ev:
		case <-ctx.Done():
			return received
		}
	}
}
