package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/observability"
)

// ErrClosed is returned by Run once the subscriber has been closed.
var ErrClosed = errors.New("realtime subscriber closed")

type Options struct {
	Addr     string
	Channel  string
	TokenURL string // empty means connect without credentials
	Timeout  time.Duration
}

// Handler receives every earthquake or flood message from the channel.
type Handler func(ctx context.Context, msg models.RealtimeMessage)

// Subscriber listens on the realtime channel and hands messages to a Handler.
// There is no reconnect loop beyond what the redis client does itself; once the
// subscription ends Run returns.
type Subscriber struct {
	opts       Options
	handler    Handler
	metrics    *observability.Metrics
	httpClient *http.Client

	closed atomic.Bool
	mu     sync.Mutex
	client *redis.Client
	pubsub *redis.PubSub
}

func NewSubscriber(opts Options, handler Handler, metrics *observability.Metrics) *Subscriber {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Subscriber{
		opts:       opts,
		handler:    handler,
		metrics:    metrics,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

func (s *Subscriber) Name() string {
	return string(models.SourceRealtime)
}

func (s *Subscriber) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.connect(ctx); err != nil {
		s.metrics.PollErrors.WithLabelValues(s.Name()).Inc()
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.pubsub == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	ch := s.pubsub.Channel()
	s.mu.Unlock()

	s.metrics.RealtimeUp.Set(1)
	defer s.metrics.RealtimeUp.Set(0)
	slog.Info("realtime subscription active", "channel", s.opts.Channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				slog.Info("realtime subscription ended", "channel", s.opts.Channel)
				return nil
			}
			s.dispatch(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	var password string
	if s.opts.TokenURL != "" {
		tok, err := FetchToken(ctx, s.httpClient, s.opts.TokenURL)
		if err != nil {
			return fmt.Errorf("authorizing realtime channel: %w", err)
		}
		password = tok.Value
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.opts.Addr,
		Password: password,
	})
	pubsub := client.Subscribe(ctx, s.opts.Channel)

	// Receive blocks until the server confirms the subscription or refuses it.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return fmt.Errorf("subscribing to %s: %w", s.opts.Channel, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		pubsub.Close()
		client.Close()
		return ErrClosed
	}
	s.client = client
	s.pubsub = pubsub
	return nil
}

func (s *Subscriber) dispatch(ctx context.Context, payload string) {
	var msg models.RealtimeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.Warn("discarding malformed realtime message", "error", err)
		s.metrics.EventsDropped.WithLabelValues(s.Name(), "unusable").Inc()
		return
	}

	kind, ok := models.ParseKind(msg.Type)
	if !ok || (kind != models.KindEarthquake && kind != models.KindFlood) {
		slog.Debug("ignoring realtime message", "type", msg.Type)
		return
	}

	if s.closed.Load() || ctx.Err() != nil {
		return
	}
	s.handler(ctx, msg)
}

// Close ends the subscription. After Close returns no further messages reach
// the handler. Safe to call more than once.
func (s *Subscriber) Close() error {
	s.closed.Store(true)
	s.release()
	return nil
}

func (s *Subscriber) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub != nil {
		s.pubsub.Close()
		s.pubsub = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}
