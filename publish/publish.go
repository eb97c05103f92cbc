// Package publish ships watcher results as JSON text frames over a
// websocket. A frame is only sent when the values differ from the previous
// frame.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/gorilla/websocket"
	"github.com/zeebo/xxh3"
)

type Value struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Data    string `json:"data"` // hex
}

type Payload struct {
	Session string    `json:"session"`
	PID     uint32    `json:"pid"`
	Tick    uint64    `json:"tick"`
	Time    time.Time `json:"time"`
	Values  []Value   `json:"values"`
}

type Options struct {
	URL            string
	ConnectRetries int
	ConnectDelay   time.Duration
	WriteTimeout   time.Duration
}

type Publisher struct {
	opts Options
	conn *websocket.Conn
	log  *logger.Logger

	last uint64
	sent bool

	// set once by readLoop when the connection fails
	mu      sync.Mutex
	readErr error
	done    chan struct{}
}

// Dial connects to opts.URL, making up to ConnectRetries attempts
// ConnectDelay apart
func Dial(ctx context.Context, opts Options) (*Publisher, error) {
	p := &Publisher{
		opts: opts,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "publish")),
	}

	attempts := opts.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		p.log.Infoln("connecting to", opts.URL, fmt.Sprintf("(attempt %d/%d)", attempt, attempts))

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
		if err == nil {
			p.conn = conn
			p.done = make(chan struct{})
			go p.readLoop()
			p.log.Infoln("connected to", opts.URL)
			return p, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.ConnectDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", opts.URL, attempts, lastErr)
}

// readLoop drains incoming frames so that pings are answered and a close
// from the server is noticed. Data frames are discarded.
func (p *Publisher) readLoop() {
	defer close(p.done)
	for {
		if _, _, err := p.conn.NextReader(); err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			p.log.Debugln("reader stopped:", err)
			return
		}
	}
}

// Err returns the error that ended the connection, or nil while it is up
func (p *Publisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}

// Publish sends payload unless its values hash the same as the last sent
// frame. It reports whether a frame was written.
func (p *Publisher) Publish(payload Payload) (bool, error) {
	if err := p.Err(); err != nil {
		return false, fmt.Errorf("connection to %s lost: %w", p.opts.URL, err)
	}

	values, err := json.Marshal(payload.Values)
	if err != nil {
		return false, fmt.Errorf("failed to encode values: %w", err)
	}

	sum := xxh3.Hash(values)
	if p.sent && sum == p.last {
		return false, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode payload: %w", err)
	}

	if p.opts.WriteTimeout > 0 {
		p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteTimeout))
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return false, fmt.Errorf("failed to send tick %d: %w", payload.Tick, err)
	}

	p.last = sum
	p.sent = true
	p.log.Debugln("sent tick", payload.Tick, len(body), "bytes")
	return true, nil
}

// Close sends a close frame, shuts the connection and waits for the reader
func (p *Publisher) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := p.conn.Close()
	<-p.done
	return err
}
