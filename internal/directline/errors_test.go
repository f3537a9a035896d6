package directline

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, KindBadRequest, Classify(400))
	assert.Equal(t, KindUnauthorized, Classify(401))
	assert.Equal(t, KindForbidden, Classify(403))
	assert.Equal(t, KindNotFound, Classify(404))
	assert.Equal(t, KindRateLimited, Classify(429))
	assert.Equal(t, KindServerError, Classify(500))
	assert.Equal(t, KindBadGateway, Classify(502))
	assert.Equal(t, KindServerError, Classify(504))
	assert.Equal(t, KindUnexpected, Classify(418))
	assert.Equal(t, KindUnexpected, Classify(302))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))

	date := now.Add(90 * time.Second).Format(http.TimeFormat)
	assert.Equal(t, 90*time.Second, parseRetryAfter(date, now))

	past := now.Add(-time.Minute).Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past, now))
}

func TestParseRetryAfterClampsHugeDelays(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, maxRetryAfter, parseRetryAfter("9223372036854775807", now))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("86401", now))
	assert.Equal(t, 86400*time.Second, parseRetryAfter("86400", now))

	far := now.Add(72 * time.Hour).Format(http.TimeFormat)
	assert.Equal(t, maxRetryAfter, parseRetryAfter(far, now))
}

func TestAPIErrorHelpersThroughWrapping(t *testing.T) {
	base := &APIError{Op: "get activities", StatusCode: 503, Kind: KindServerError, RetryAfter: 2 * time.Second}
	wrapped := fmt.Errorf("page 3: %w", base)

	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsAuth(wrapped))
	assert.False(t, IsNotFound(wrapped))

	d, ok := RetryAfter(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestHelpersOnPlainErrors(t *testing.T) {
	err := errors.New("connection reset")
	assert.False(t, IsTransient(err))
	assert.False(t, IsAuth(err))
	assert.False(t, IsNotFound(err))
	_, ok := RetryAfter(err)
	assert.False(t, ok)
}

func TestAPIErrorMessage(t *testing.T) {
	e := &APIError{Op: "get activities", StatusCode: 404, Kind: KindNotFound, Message: "Conversation not found"}
	assert.Equal(t, "directline get activities: 404 not_found: Conversation not found", e.Error())

	inner := errors.New("boom")
	e = &APIError{Op: "post activity", Kind: KindUnauthorized, Message: "token supplier failed", Err: inner}
	assert.Equal(t, "directline post activity: unauthorized: token supplier failed: boom", e.Error())
	assert.ErrorIs(t, e, inner)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "h...", truncate("héllo", 2))
	assert.Equal(t, "hé...", truncate("héllo", 3))
	assert.Equal(t, "...", truncate("日本語", 2))
	assert.True(t, utf8.ValidString(truncate("ünïcödé", 4)))
}
