package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
)

const (
	DefaultExtractionSubject = "distillery.jobs.extract"
	DefaultEmbedSubject      = "distillery.jobs.embed"
	DefaultQueueGroup        = "distillery-workers"
)

type Queue struct {
	conn              *nats.Conn
	extractionSubject string
	embedSubject      string
	group             string
	executor          *resilience.Executor
}

type Options struct {
	ExtractionSubject    string
	EmbedSubject         string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func (o Options) withDefaults() Options {
	out := o
	if out.ExtractionSubject == "" {
		out.ExtractionSubject = DefaultExtractionSubject
	}
	if out.EmbedSubject == "" {
		out.EmbedSubject = DefaultEmbedSubject
	}
	if out.QueueGroup == "" {
		out.QueueGroup = DefaultQueueGroup
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 2 * time.Second
	}
	if out.ReconnectWait <= 0 {
		out.ReconnectWait = 2 * time.Second
	}
	if out.MaxReconnects <= 0 {
		out.MaxReconnects = 60
	}
	return out
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	options = options.withDefaults()
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("firm-distillery"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:              conn,
		extractionSubject: options.ExtractionSubject,
		embedSubject:      options.EmbedSubject,
		group:             options.QueueGroup,
		executor:          options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ping reports whether the connection is currently usable.
func (q *Queue) Ping(ctx context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return domain.WrapError(domain.ErrTemporary, "nats ping", nats.ErrDisconnected)
	}
	deadline, ok := ctx.Deadline()
	timeout := 2 * time.Second
	if ok {
		timeout = time.Until(deadline)
	}
	return q.conn.FlushTimeout(timeout)
}

func (q *Queue) PublishExtractionJob(ctx context.Context, job domain.ExtractionJob) error {
	return q.publish(ctx, q.extractionSubject, job)
}

func (q *Queue) PublishEmbedJob(ctx context.Context, job domain.EmbedJob) error {
	return q.publish(ctx, q.embedSubject, job)
}

func (q *Queue) SubscribeExtractionJobs(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error {
	return subscribe(ctx, q, q.extractionSubject, handler)
}

func (q *Queue) SubscribeEmbedJobs(ctx context.Context, handler func(context.Context, domain.EmbedJob) error) error {
	return subscribe(ctx, q, q.embedSubject, handler)
}

func (q *Queue) publish(ctx context.Context, subject string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job for %s: %w", subject, err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if err := q.executor.Execute(ctx, "nats.publish", call, classifyNATSError); err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// subscribe blocks until ctx is done, then drains the subscription so
// in-flight jobs finish before it returns.
func subscribe[T any](ctx context.Context, q *Queue, subject string, handler func(context.Context, T) error) error {
	sub, err := q.conn.QueueSubscribe(subject, q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handleMessage(ctx, subject, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// handleMessage decodes one job and runs handler. Undecodable messages and
// handler errors are logged and dropped.
func handleMessage[T any](ctx context.Context, subject string, data []byte, handler func(context.Context, T) error) bool {
	var job T
	if err := json.Unmarshal(data, &job); err != nil {
		slog.Error("job_decode_failed", "subject", subject, "error", err)
		return false
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, job); err != nil {
		slog.Error("job_handler_failed", "subject", subject, "error", err)
		return false
	}
	return true
}
