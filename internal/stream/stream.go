// Package stream receives activities pushed over a Direct Line WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/logging"
)

// ErrIdle is returned when no frame arrived within the idle timeout. It is
// not a failure: the caller may reconnect from the returned watermark.
var ErrIdle = errors.New("stream: idle timeout")

// errBadFrame marks a frame that was not an ActivitySet.
var errBadFrame = errors.New("stream: malformed frame")

// ErrStopped is returned when a Handler asks the listener to stop.
var ErrStopped = errors.New("stream: stopped by handler")

// Handler receives each delivered activity. Returning ErrStopped (or any
// other error) closes the stream and ends Listen with that error.
type Handler func(act directline.Activity) error

// Options controls a Listener.
type Options struct {
	IdleTimeout  time.Duration // 0 disables the idle timeout
	PingInterval time.Duration // 0 disables pings
	SkipFromID   string        // activities from this account id are not delivered

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Listener reads ActivitySet frames from a stream URL.
type Listener struct {
	opts Options
	log  *logging.Logger
}

// NewListener creates a Listener.
func NewListener(opts Options, log *logging.Logger) *Listener {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Listener{opts: opts, log: log.Sub("stream")}
}

// Outcome describes how a Listen call ended.
type Outcome struct {
	Watermark         string // last watermark received
	Delivered         int
	Skipped           int
	EndOfConversation bool
}

// Listen connects to streamURL and delivers activities to h until the
// server closes the stream, an endOfConversation activity arrives, the idle
// timeout fires (ErrIdle), h fails or ctx is done.
func (l *Listener) Listen(ctx context.Context, streamURL, token string, h Handler) (Outcome, error) {
	var out Outcome

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := l.opts.Dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil {
			return out, fmt.Errorf("stream: dial %s: %w (status %d)", redact(streamURL), err, resp.StatusCode)
		}
		return out, fmt.Errorf("stream: dial %s: %w", redact(streamURL), err)
	}
	s := newSession(ws)
	defer s.Close()

	l.log.Debug().Str("url", redact(streamURL)).Msg("stream connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	if l.opts.IdleTimeout > 0 {
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(l.opts.IdleTimeout))
		})
	}
	if l.opts.PingInterval > 0 {
		go s.pingLoop(l.opts.PingInterval, stop)
	}

	for {
		if l.opts.IdleTimeout > 0 {
			if err := ws.SetReadDeadline(time.Now().Add(l.opts.IdleTimeout)); err != nil {
				return out, err
			}
		}

		set, err := s.readSet()
		if errors.Is(err, errBadFrame) {
			l.log.Warn().Err(err).Msg("skipping frame")
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.log.Debug().Str("watermark", out.Watermark).Msg("stream idle")
				s.closeNormal("idle")
				return out, ErrIdle
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.log.Debug().Msg("server closed stream")
				return out, nil
			}
			return out, fmt.Errorf("stream: read: %w", err)
		}
		if set == nil {
			// keep-alive
			continue
		}

		if set.Watermark != "" {
			out.Watermark = set.Watermark
		}
		for _, act := range set.Activities {
			if l.opts.SkipFromID != "" && act.From != nil && act.From.ID == l.opts.SkipFromID {
				out.Skipped++
				continue
			}
			out.Delivered++
			if err := h(act); err != nil {
				s.closeNormal("client stopped")
				return out, err
			}
			if act.Type == directline.ActivityTypeEndOfConversation {
				out.EndOfConversation = true
				s.closeNormal("end of conversation")
				return out, nil
			}
		}
	}
}

// session serializes writes and makes Close idempotent.
type session struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newSession(ws *websocket.Conn) *session {
	return &session{ws: ws}
}

// readSet reads the next frame. Empty frames are keep-alives and yield a nil
// set.
func (s *session) readSet() (*directline.ActivitySet, error) {
	_, msg, err := s.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(msg))) == 0 {
		return nil, nil
	}
	var set directline.ActivitySet
	if err := json.Unmarshal(msg, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return &set, nil
}

func (s *session) pingLoop(every time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *session) closeNormal(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
}

// Close closes the WebSocket connection.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ws.Close()
}

// redact drops the query string, which carries a token on stream URLs.
func redact(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?..."
	}
	return u
}
