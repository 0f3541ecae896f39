package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// Kind says why a notification was sent.
type Kind string

const (
	KindCreated   Kind = "created"
	KindEscalated Kind = "escalated"
)

// Notification is sent when an alert is created or its severity rises.
type Notification struct {
	Kind  Kind                `json:"kind"`
	Alert model.SecurityAlert `json:"alert"`
}

// Notifier delivers notifications to an external channel. Failures never
// affect alert persistence.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// WebhookNotifier POSTs notifications as JSON.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier returns a notifier posting to url with a 10s timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Dispatcher delivers notifications asynchronously through a bounded
// queue, at most limit per second. Notify never blocks; when the queue is
// full the notification is dropped and logged.
type Dispatcher struct {
	next    Notifier
	limiter *rate.Limiter
	queue   chan Notification
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher wraps next. Start must be called to begin delivery.
func NewDispatcher(next Notifier, perSecond float64, burst, queueSize int, logger *zap.Logger) *Dispatcher {
	if burst <= 0 {
		burst = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		queue:   make(chan Notification, queueSize),
		logger:  logger,
	}
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil
	}
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("alert notification queue full, dropping", zap.String("alert_id", n.Alert.ID))
	}
	return nil
}

// Start delivers queued notifications until ctx is done or Close is
// called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-d.queue:
				if !ok {
					return
				}
				d.deliver(ctx, n)
			}
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.logger.Warn("alert notification dropped", zap.String("alert_id", n.Alert.ID), zap.Error(err))
		return
	}
	if err := d.next.Notify(ctx, n); err != nil {
		d.logger.Warn("alert notification delivery failed",
			zap.String("alert_id", n.Alert.ID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}

// Close stops accepting notifications and delivers whatever is still
// queued, including when the context given to Start is already done.
// Delivery stops early once ctx is done.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()

	for n := range d.queue {
		d.deliver(ctx, n)
	}
}
