package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// streamServer upgrades every request and hands the connection to serve.
func streamServer(t *testing.T, serve func(r *http.Request, conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(r, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func send(conn *websocket.Conn, frame string) {
	conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func closeNormal(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	// Wait for the client's close so the frame is not lost.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.ReadMessage()
}

func collect(acts *[]directline.Activity) Handler {
	return func(a directline.Activity) error {
		*acts = append(*acts, a)
		return nil
	}
}

func TestListenDeliversAndTracksWatermark(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		send(conn, `{"activities":[{"type":"message","id":"1","text":"hi","from":{"id":"bot"}}],"watermark":"1"}`)
		send(conn, "")
		send(conn, `{"activities":[{"type":"message","id":"2","text":"there","from":{"id":"bot"}}],"watermark":"2"}`)
		closeNormal(conn)
	})

	var got []directline.Activity
	out, err := NewListener(Options{IdleTimeout: 5 * time.Second}, testLogger()).Listen(context.Background(), url, "tok", collect(&got))
	require.NoError(t, err)
	assert.Equal(t, "2", out.Watermark)
	assert.Equal(t, 2, out.Delivered)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, "there", got[1].Text)
}

func TestListenSkipsOwnActivities(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		send(conn, `{"activities":[{"type":"message","id":"1","text":"mine","from":{"id":"dl_me"}},{"type":"message","id":"2","text":"reply","from":{"id":"bot"}}],"watermark":"2"}`)
		closeNormal(conn)
	})

	var got []directline.Activity
	out, err := NewListener(Options{SkipFromID: "dl_me"}, testLogger()).Listen(context.Background(), url, "", collect(&got))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, got, 1)
	assert.Equal(t, "reply", got[0].Text)
}

func TestListenEndOfConversation(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		send(conn, `{"activities":[{"type":"message","id":"1","text":"last","from":{"id":"bot"}},{"type":"endOfConversation","id":"2","from":{"id":"bot"}},{"type":"message","id":"3","text":"never","from":{"id":"bot"}}],"watermark":"3"}`)
		// Keep the socket open; the client must end on its own.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	var got []directline.Activity
	out, err := NewListener(Options{}, testLogger()).Listen(context.Background(), url, "", collect(&got))
	require.NoError(t, err)
	assert.True(t, out.EndOfConversation)
	require.Len(t, got, 2)
	assert.Equal(t, directline.ActivityTypeEndOfConversation, got[1].Type)
}

func TestListenIdleIsErrIdle(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		send(conn, `{"activities":[{"type":"message","id":"1","from":{"id":"bot"}}],"watermark":"5"}`)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	var got []directline.Activity
	out, err := NewListener(Options{IdleTimeout: 100 * time.Millisecond}, testLogger()).Listen(context.Background(), url, "", collect(&got))
	assert.ErrorIs(t, err, ErrIdle)
	assert.Equal(t, "5", out.Watermark)
	assert.Len(t, got, 1)
}

func TestListenSkipsMalformedFrames(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		send(conn, `not json`)
		send(conn, `{"activities":[{"type":"message","id":"1","from":{"id":"bot"}}],"watermark":"1"}`)
		closeNormal(conn)
	})

	var got []directline.Activity
	_, err := NewListener(Options{}, testLogger()).Listen(context.Background(), url, "", collect(&got))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListenHandlerStops(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		send(conn, `{"activities":[{"type":"message","id":"1","from":{"id":"bot"}},{"type":"message","id":"2","from":{"id":"bot"}}]}`)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	calls := 0
	out, err := NewListener(Options{}, testLogger()).Listen(context.Background(), url, "", func(directline.Activity) error {
		calls++
		return ErrStopped
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Delivered)
}

func TestListenContextCanceled(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewListener(Options{}, testLogger()).Listen(ctx, url, "", func(directline.Activity) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListenDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewListener(Options{}, testLogger()).Listen(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"?t=secret", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.NotContains(t, err.Error(), "secret")
}

type fakeReconnector struct {
	urls       []string
	watermarks []string
}

func (f *fakeReconnector) ReconnectConversation(ctx context.Context, conversationID, watermark string) (*directline.Conversation, error) {
	f.watermarks = append(f.watermarks, watermark)
	if len(f.urls) == 0 {
		return nil, errors.New("no more urls")
	}
	u := f.urls[0]
	f.urls = f.urls[1:]
	return &directline.Conversation{ConversationID: conversationID, StreamURL: u}, nil
}

func TestFollowReconnectsAfterIdle(t *testing.T) {
	var connections atomic.Int32
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		switch connections.Add(1) {
		case 1:
			send(conn, `{"activities":[{"type":"message","id":"1","from":{"id":"bot"}}],"watermark":"1"}`)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			conn.ReadMessage()
		default:
			send(conn, `{"activities":[{"type":"endOfConversation","id":"2","from":{"id":"bot"}}],"watermark":"2"}`)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			conn.ReadMessage()
		}
	})

	rc := &fakeReconnector{urls: []string{url}}
	var got []directline.Activity
	l := NewListener(Options{IdleTimeout: 100 * time.Millisecond}, testLogger())

	out, err := l.Follow(context.Background(), rc, &directline.Conversation{ConversationID: "c", StreamURL: url}, "", 3, collect(&got))
	require.NoError(t, err)
	assert.True(t, out.EndOfConversation)
	assert.Equal(t, "2", out.Watermark)
	assert.Equal(t, 2, out.Delivered)
	assert.Equal(t, []string{"1"}, rc.watermarks)
}

func TestFollowNoReconnect(t *testing.T) {
	url := streamServer(t, func(r *http.Request, conn *websocket.Conn) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	rc := &fakeReconnector{}
	l := NewListener(Options{IdleTimeout: 50 * time.Millisecond}, testLogger())
	_, err := l.Follow(context.Background(), rc, &directline.Conversation{ConversationID: "c", StreamURL: url}, "", 0, func(directline.Activity) error { return nil })
	assert.ErrorIs(t, err, ErrIdle)
	assert.Empty(t, rc.watermarks)
}

func TestFollowRequiresStreamURL(t *testing.T) {
	l := NewListener(Options{}, testLogger())
	_, err := l.Follow(context.Background(), &fakeReconnector{}, &directline.Conversation{}, "", 1, nil)
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "wss://x/stream?...", redact("wss://x/stream?t=abc"))
	assert.Equal(t, "wss://x/stream", redact("wss://x/stream"))
}
