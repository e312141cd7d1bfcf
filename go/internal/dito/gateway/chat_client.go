package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Emit once the connection is gone.
var ErrClosed = errors.New("chat connection closed")

// Handler consumes inbound chat events. The orchestrator implements it.
type Handler interface {
	HandleEvent(ctx context.Context, eventType string, payload []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, eventType string, payload []byte) error

func (f HandlerFunc) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	return f(ctx, eventType, payload)
}

// ChatConfig holds settings for the websocket connection to the chat server.
type ChatConfig struct {
	URL            string
	Token          string
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultChatConfig returns default websocket settings for url.
func DefaultChatConfig(url, token string) ChatConfig {
	return ChatConfig{
		URL:            url,
		Token:          token,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// frame is the wire format in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatClient is the bot's websocket connection to the chat server. Inbound
// frames are handed to the handler one at a time, in arrival order.
type ChatClient struct {
	cfg     ChatConfig
	conn    *websocket.Conn
	handler Handler
	send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// DialChat connects to the chat server, authenticating with the bot token.
func DialChat(ctx context.Context, cfg ChatConfig, handler Handler) (*ChatClient, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+cfg.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial chat server: %w", err)
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}

	log.Info().Str("url", cfg.URL).Msg("connected to chat server")

	return &ChatClient{
		cfg:     cfg,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
	}, nil
}

// Run pumps frames until the connection drops or ctx is canceled.
func (c *ChatClient) Run(ctx context.Context) error {
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	err := c.readPump(ctx)
	c.Close()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Emit queues an outbound event.
func (c *ChatClient) Emit(ctx context.Context, event string, payload any) error {
	f := frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		f.Data = data
	}
	msg, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *ChatClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
		log.Info().Msg("chat connection closed")
	})
	return err
}

func (c *ChatClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Error().Err(err).Msg("failed to write frame")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				c.Close()
				return
			}
		}
	}
}

func (c *ChatClient) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected websocket close")
			}
			return fmt.Errorf("read frame: %w", err)
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if err := c.handler.HandleEvent(ctx, f.Event, f.Data); err != nil {
			log.Error().Err(err).Str("event", f.Event).Msg("failed to handle chat event")
		}
	}
}
