// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/synod-labs/synod/internal/logger"
	"github.com/synod-labs/synod/internal/port/messagequeue"
)

const (
	streamName = "SYNOD"
	dlqSuffix  = ".dlq"

	// maxRetries bounds handler attempts per message before it moves to
	// the subject's dead letter queue.
	maxRetries = 3

	headerRequestID  = "X-Request-ID"
	headerRetryCount = "Retry-Count"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	// The wildcards also capture the per-subject DLQs.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"advice.>", "funnel.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject, propagating the request ID
// from the context into the message headers.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. Messages
// that fail schema validation move straight to the DLQ; handler failures are
// retried up to maxRetries times before the DLQ takes them.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// dispatch validates one delivery, runs the handler with a request-scoped
// context, and applies the retry/DLQ policy on failure.
func (q *Queue) dispatch(msg jetstream.Msg, handler messagequeue.Handler) {
	subject := msg.Subject()

	if err := validate(subject, msg.Data()); err != nil {
		slog.Warn("message failed validation, moving to DLQ", "subject", subject, "error", err)
		q.moveToDLQ(msg)
		return
	}

	hctx := context.Background()
	if reqID := msg.Headers().Get(headerRequestID); reqID != "" {
		hctx = logger.WithRequestID(hctx, reqID)
	}

	if err := handler(hctx, subject, msg.Data()); err != nil {
		slog.Error("message handler failed",
			"subject", subject, "retry", retryCount(msg.Headers()), "error", err)
		q.retryOrDLQ(msg)
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "subject", subject, "error", ackErr)
	}
}

// retryOrDLQ republishes the message with an incremented retry count, or
// moves it to the DLQ once the count is exhausted. The original delivery is
// acked either way so the stream never redelivers it alongside the copy.
func (q *Queue) retryOrDLQ(msg jetstream.Msg) {
	count := retryCount(msg.Headers())
	if count >= maxRetries {
		q.moveToDLQ(msg)
		return
	}

	retry := copyMsg(msg, msg.Subject())
	retry.Header.Set(headerRetryCount, strconv.Itoa(count+1))

	if _, err := q.js.PublishMsg(context.Background(), retry); err != nil {
		slog.Error("nats retry publish failed", "subject", msg.Subject(), "error", err)
		// Fall back to redelivery of the original.
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed after retry publish", "error", err)
	}
}

// moveToDLQ copies the raw payload onto the subject's dead letter queue and
// acks the original.
func (q *Queue) moveToDLQ(msg jetstream.Msg) {
	dlq := copyMsg(msg, msg.Subject()+dlqSuffix)

	if _, err := q.js.PublishMsg(context.Background(), dlq); err != nil {
		slog.Error("nats DLQ publish failed", "subject", dlq.Subject, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed after DLQ publish", "error", err)
	}
}

func copyMsg(msg jetstream.Msg, subject string) *nats.Msg {
	out := &nats.Msg{Subject: subject, Data: msg.Data(), Header: nats.Header{}}
	for k, vs := range msg.Headers() {
		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}
	return out
}

func retryCount(hdrs nats.Header) int {
	v := hdrs.Get(headerRetryCount)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// A mangled count counts as exhausted.
		return maxRetries
	}
	return n
}

// validate rejects messages that do not match the schema for their subject.
// Subjects without a registered schema only need to carry valid JSON.
func validate(subject string, data []byte) error {
	switch subject {
	case messagequeue.SubjectDecision:
		var p messagequeue.DecisionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decision payload: %w", err)
		}
		if p.DecisionID == "" {
			return fmt.Errorf("decision payload missing decision_id")
		}
	case messagequeue.SubjectDegraded:
		var p messagequeue.DegradedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("degraded payload: %w", err)
		}
		if p.DecisionID == "" || p.Advisor == "" {
			return fmt.Errorf("degraded payload missing identifiers")
		}
	case messagequeue.SubjectFunnelEvent:
		var p messagequeue.FunnelEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("funnel payload: %w", err)
		}
		if p.EventID == "" || p.Stage == "" {
			return fmt.Errorf("funnel payload missing identifiers")
		}
	default:
		if !json.Valid(data) {
			return fmt.Errorf("payload is not valid JSON")
		}
	}
	return nil
}

// KeyValue creates or binds the named JetStream key-value bucket. TTL
// applies at bucket level to every key.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain processes pending messages on all subscriptions, then closes the
// connection.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
