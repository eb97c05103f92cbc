package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- msg
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func receive(t *testing.T, frames <-chan []byte) Payload {
	t.Helper()
	select {
	case msg := <-frames:
		var p Payload
		require.NoError(t, json.Unmarshal(msg, &p))
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Payload{}
}

func TestPublishSuppressesRepeats(t *testing.T) {
	url, frames := newServer(t)

	p, err := Dial(context.Background(), Options{URL: url, ConnectRetries: 1})
	require.NoError(t, err)
	defer p.Close()

	values := []Value{{Name: "health", Address: "0x1000", Data: "64000000"}}

	sent, err := p.Publish(Payload{Session: "s", PID: 7, Tick: 1, Time: time.Now(), Values: values})
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = p.Publish(Payload{Session: "s", PID: 7, Tick: 2, Time: time.Now(), Values: values})
	require.NoError(t, err)
	assert.False(t, sent)

	changed := []Value{{Name: "health", Address: "0x1000", Data: "63000000"}}
	sent, err = p.Publish(Payload{Session: "s", PID: 7, Tick: 3, Time: time.Now(), Values: changed})
	require.NoError(t, err)
	assert.True(t, sent)

	first := receive(t, frames)
	assert.Equal(t, uint64(1), first.Tick)
	assert.Equal(t, uint32(7), first.PID)
	assert.Equal(t, values, first.Values)

	second := receive(t, frames)
	assert.Equal(t, uint64(3), second.Tick)
	assert.Equal(t, changed, second.Values)
}

// newPingingServer pings every interval and drops the client when no pong
// arrives within deadline. The reason the connection ended is sent on the
// returned error channel.
func newPingingServer(t *testing.T, interval, deadline time.Duration) (string, <-chan []byte, <-chan error) {
	t.Helper()
	frames := make(chan []byte, 64)
	ended := make(chan error, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(deadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(deadline))
		})

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
						return
					}
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				ended <- err
				return
			}
			frames <- msg
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames, ended
}

func TestPublishAnswersPings(t *testing.T) {
	url, frames, ended := newPingingServer(t, 50*time.Millisecond, 300*time.Millisecond)

	p, err := Dial(context.Background(), Options{URL: url, ConnectRetries: 1, WriteTimeout: time.Second})
	require.NoError(t, err)
	defer p.Close()

	const ticks = 8
	for tick := uint64(1); tick <= ticks; tick++ {
		values := []Value{{Name: "ammo", Address: "0x2000", Data: fmt.Sprintf("%08x", tick)}}
		sent, err := p.Publish(Payload{Session: "s", PID: 7, Tick: tick, Time: time.Now(), Values: values})
		require.NoError(t, err, "tick %d", tick)
		assert.True(t, sent)
		time.Sleep(100 * time.Millisecond)
	}

	for tick := uint64(1); tick <= ticks; tick++ {
		assert.Equal(t, tick, receive(t, frames).Tick)
	}

	select {
	case err := <-ended:
		t.Fatalf("server dropped the client: %v", err)
	default:
	}
	assert.NoError(t, p.Err())
}

func TestPublishReportsLostConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}))
	defer srv.Close()

	p, err := Dial(context.Background(), Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), ConnectRetries: 1})
	require.NoError(t, err)
	defer p.Close()

	values := []Value{{Name: "health", Address: "0x1000", Data: "64000000"}}
	sent, err := p.Publish(Payload{Tick: 1, Values: values})
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Eventually(t, func() bool { return p.Err() != nil }, 2*time.Second, 10*time.Millisecond)

	changed := []Value{{Name: "health", Address: "0x1000", Data: "63000000"}}
	sent, err = p.Publish(Payload{Tick: 2, Values: changed})
	assert.False(t, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lost")

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestDialGivesUp(t *testing.T) {
	// a plain http server rejects every upgrade
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	bad := "ws" + strings.TrimPrefix(srv.URL, "http")

	start := time.Now()
	_, err := Dial(context.Background(), Options{URL: bad, ConnectRetries: 3, ConnectDelay: 10 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDialCancelled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), ConnectRetries: 5, ConnectDelay: time.Hour})
	assert.Error(t, err)
}
