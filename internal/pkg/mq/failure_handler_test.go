package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo/internal/pkg/errkind"
)

type capturingWriter struct {
	topic    string
	messages []kafka.Message
}

func (w *capturingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *capturingWriter) Close() error { return nil }

func newTestFailureHandler() (*FailureHandler, map[string]*capturingWriter) {
	levels := []RetryLevel{
		{Topic: "orders.retry.1s", Delay: "1s"},
		{Topic: "orders.retry.2s", Delay: "2s"},
		{Topic: "orders.retry.4s", Delay: "4s"},
	}
	h := NewFailureHandler(nil, levels, "orders.dlt")
	captured := make(map[string]*capturingWriter)
	h.newWriter = func(topic string) messageWriter {
		w := &capturingWriter{topic: topic}
		captured[topic] = w
		return w
	}
	return h, captured
}

func TestFailureHandlerRouting(t *testing.T) {
	ctx := context.Background()
	msg := kafka.Message{Topic: "orders", Key: []byte("k"), Value: []byte("v")}

	t.Run("transient failure escalates to the first retry level", func(t *testing.T) {
		h, captured := newTestFailureHandler()
		h.Handle(ctx, msg, errkind.Wrap(errkind.KindTransient, errors.New("db down")))

		require.Len(t, captured, 1)
		w := captured["orders.retry.1s"]
		require.NotNil(t, w)
		require.Len(t, w.messages, 1)
		assert.Equal(t, "1", GetHeader(w.messages[0].Headers, HeaderRetryAttempt))
		assert.Equal(t, "orders", GetHeader(w.messages[0].Headers, HeaderOriginalTopic))
	})

	t.Run("retry attempt header drives the escalation ladder", func(t *testing.T) {
		h, captured := newTestFailureHandler()
		attempted := msg
		attempted.Headers = SetHeader(attempted.Headers, HeaderRetryAttempt, "2")

		h.Handle(ctx, attempted, errkind.Wrap(errkind.KindTransient, errors.New("still down")))

		w := captured["orders.retry.4s"]
		require.NotNil(t, w)
		require.Len(t, w.messages, 1)
		assert.Equal(t, "3", GetHeader(w.messages[0].Headers, HeaderRetryAttempt))
	})

	t.Run("exhausted retry levels land in the DLT", func(t *testing.T) {
		h, captured := newTestFailureHandler()
		attempted := msg
		attempted.Headers = SetHeader(attempted.Headers, HeaderRetryAttempt, "3")

		h.Handle(ctx, attempted, errkind.Wrap(errkind.KindTransient, errors.New("gave up")))

		w := captured["orders.dlt"]
		require.NotNil(t, w)
		require.Len(t, w.messages, 1)
		assert.Equal(t, "TERMINAL", GetHeader(w.messages[0].Headers, HeaderExceptionKind))
		assert.Equal(t, "gave up", GetHeader(w.messages[0].Headers, HeaderExceptionMessage))
	})

	t.Run("business failures bypass retries straight to the DLT", func(t *testing.T) {
		h, captured := newTestFailureHandler()
		h.Handle(ctx, msg, errkind.Wrap(errkind.KindConflict, errors.New("sold out")))

		require.Len(t, captured, 1)
		w := captured["orders.dlt"]
		require.NotNil(t, w)
		require.Len(t, w.messages, 1)
		assert.Equal(t, "CONFLICT", GetHeader(w.messages[0].Headers, HeaderExceptionKind))
		assert.Equal(t, "orders", GetHeader(w.messages[0].Headers, HeaderOriginalTopic))
	})
}
