// Package ws connects a peer to a relay over a websocket and exposes it as a
// bddmp transport.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/internal/transport"
	"github.com/dsonbill/BDDMP/logging"
	"github.com/dsonbill/BDDMP/logging/network"
)

var (
	// ErrClosed is returned when sending on a closed client.
	ErrClosed = errors.New("ws: client closed")
	// ErrBackpressure is returned when a guaranteed frame could not be
	// queued within the write wait.
	ErrBackpressure = errors.New("ws: send queue full")
)

// MetricFramesDropped counts non-guaranteed frames discarded because the send
// queue was full.
const MetricFramesDropped = "bddmp_ws_frames_dropped_total"

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 256
	defaultReadLimit  = 64 << 10
)

type Config struct {
	URL        string
	PeerID     string
	WriteWait  time.Duration
	PongWait   time.Duration
	SendBuffer int
	ReadLimit  int64
	Dialer     *websocket.Dialer
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	Publisher  logging.Publisher
}

// Client is a relay connection. It satisfies bddmp.Transport.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	mu       sync.RWMutex
	handlers map[string][]func([]byte)

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       atomic.Value

	dropped atomic.Uint64
}

// Dial connects to the relay at cfg.URL as cfg.PeerID.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PeerID == "" {
		return nil, errors.New("ws: peer id is required")
	}
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ws: parse relay url: %w", err)
	}
	query := target.Query()
	query.Set("peer", cfg.PeerID)
	target.RawQuery = query.Encode()

	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", cfg.URL, err)
	}
	c := &Client{
		cfg:      cfg,
		conn:     conn,
		handlers: make(map[string][]func([]byte)),
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

func (c *Client) RegisterHandler(channel string, handler func([]byte)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[channel] = append(c.handlers[channel], handler)
}

// Send queues a frame for the relay. Frames that are not guaranteed are
// dropped when the queue is full; guaranteed frames wait up to WriteWait.
func (c *Client) Send(channel string, payload []byte, reliable, guaranteed bool) error {
	data, err := transport.EncodeFrame(transport.Frame{
		Channel:    channel,
		Reliable:   reliable,
		Guaranteed: guaranteed,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
	}
	if !guaranteed {
		c.dropped.Add(1)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.Add(MetricFramesDropped, 1)
		}
		return nil
	}
	timer := time.NewTimer(c.cfg.WriteWait)
	defer timer.Stop()
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return ErrBackpressure
	}
}

// Dropped reports non-guaranteed frames discarded under backpressure.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	if err, ok := c.err.Load().(error); ok {
		return err
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil {
			c.err.Store(cause)
		}
		close(c.done)
		deadline := time.Now().Add(c.cfg.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logf("[ws] peer %s read failed: %v", c.cfg.PeerID, err)
				c.shutdown(err)
				return
			}
			c.shutdown(nil)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		frame, err := transport.DecodeFrame(data)
		if err != nil {
			network.FrameMalformed(context.Background(), c.cfg.Publisher, c.cfg.PeerID, network.FramePayload{Bytes: len(data), Error: err.Error()})
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame transport.Frame) {
	c.mu.RLock()
	handlers := slices.Clone(c.handlers[frame.Channel])
	c.mu.RUnlock()
	for _, handler := range handlers {
		handler(frame.Payload)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.logf("[ws] peer %s write failed: %v", c.cfg.PeerID, err)
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, args...)
	}
}
