package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/ids"
	"github.com/doodlesbykumbi/clinicguard/pkg/metrics"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// DefaultMaxPending bounds the retry buffer. When it is full the oldest
// buffered event is dropped; it is still in the fallback log.
const DefaultMaxPending = 10000

// Classifier maps a category to its sensitivity.
type Classifier interface {
	Sensitivity(category string) model.Sensitivity
}

// Submission is one audited operation as reported by the caller.
type Submission struct {
	ActorID       string
	ActorRole     string
	Category      string
	Operation     model.Operation
	ResourceTable string
	ResourceID    string
	Outcome       model.Outcome
	IPAddress     *string
	// Source is the resolution source that authorized the operation.
	Source   model.Source
	Metadata map[string]string
}

// Options configures a Recorder. Zero fields take defaults.
type Options struct {
	Clock      clock.Clock
	IDs        ids.Generator
	Weights    *Weights
	Fallback   io.Writer
	Logger     *zap.Logger
	MaxPending int
}

// Recorder scores and persists audit events.
type Recorder struct {
	events     store.EventStore
	classifier Classifier
	clock      clock.Clock
	ids        ids.Generator
	weights    Weights
	fallback   *SyslogWriter
	logger     *zap.Logger
	maxPending int

	window *window
	locks  actorLocks

	// pendingMu also serializes inserts, so a buffered event is always
	// persisted before any later one.
	pendingMu sync.Mutex
	pending   []model.AuditEvent
}

// NewRecorder returns a Recorder persisting to events.
func NewRecorder(events store.EventStore, classifier Classifier, opts Options) *Recorder {
	r := &Recorder{
		events:     events,
		classifier: classifier,
		clock:      opts.Clock,
		ids:        opts.IDs,
		logger:     opts.Logger,
		maxPending: opts.MaxPending,
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.ids == nil {
		r.ids = ids.ULID{}
	}
	if opts.Weights != nil {
		r.weights = *opts.Weights
	} else {
		r.weights = DefaultWeights()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.maxPending <= 0 {
		r.maxPending = DefaultMaxPending
	}
	if opts.Fallback != nil {
		r.fallback = NewSyslogWriter(opts.Fallback)
	} else {
		r.fallback = NewSyslogWriter(io.Discard)
	}
	r.window = newWindow(r.weights.BurstWindow)
	return r
}

// Weights returns the weights in use.
func (r *Recorder) Weights() Weights {
	return r.weights
}

// Record scores s, persists it and returns the event. It never fails: a
// persistence error is logged, written to the fallback log and the event
// is buffered for Flush.
func (r *Recorder) Record(ctx context.Context, s Submission) model.AuditEvent {
	unlock := r.locks.lock(s.ActorID)
	defer unlock()

	now := r.clock.Now()
	sensitivity := r.classifier.Sensitivity(s.Category)
	prior := r.window.observe(s.ActorID, now)

	event := model.AuditEvent{
		ID:             r.ids.NewID(now),
		Timestamp:      now,
		ActorID:        s.ActorID,
		ActorRole:      s.ActorRole,
		Category:       s.Category,
		Sensitivity:    sensitivity,
		Operation:      s.Operation,
		ResourceTable:  s.ResourceTable,
		ResourceID:     s.ResourceID,
		Outcome:        s.Outcome.Status,
		OutcomeMessage: s.Outcome.Message,
		IPAddress:      s.IPAddress,
		Source:         s.Source,
	}
	if event.Outcome == "" {
		event.Outcome = model.OutcomeSuccess
	}
	if len(s.Metadata) > 0 {
		event.Metadata = make(model.StringMap, len(s.Metadata))
		for k, v := range s.Metadata {
			event.Metadata[k] = v
		}
	}
	event.RiskScore = r.weights.Score(Factors{
		Sensitivity: sensitivity,
		Operation:   s.Operation,
		Failed:      event.Failed(),
		Burst:       r.weights.Burst != 0 && prior >= r.weights.BurstThreshold,
		At:          now,
	})

	metrics.AuditEvents.WithLabelValues(string(sensitivity)).Inc()
	metrics.RiskScores.Observe(float64(event.RiskScore))

	r.persist(ctx, event)
	return event
}

func (r *Recorder) persist(ctx context.Context, event model.AuditEvent) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	if len(r.pending) > 0 {
		r.flushLocked(ctx)
	}
	if len(r.pending) == 0 {
		err := r.events.AppendEvent(ctx, &event)
		if err == nil {
			return
		}
		r.logger.Warn("audit event persistence failed",
			zap.String("event_id", event.ID),
			zap.String("actor_id", event.ActorID),
			zap.Error(err))
	}

	metrics.AuditWriteFailures.Inc()
	if err := r.fallback.Write(event); err != nil {
		r.logger.Error("audit fallback write failed", zap.String("event_id", event.ID), zap.Error(err))
	}
	r.enqueueLocked(event)
}

func (r *Recorder) enqueueLocked(event model.AuditEvent) {
	if len(r.pending) >= r.maxPending {
		dropped := r.pending[0]
		r.pending = r.pending[1:]
		r.logger.Error("audit retry buffer full, dropping oldest event",
			zap.String("event_id", dropped.ID))
	}
	r.pending = append(r.pending, event)
	metrics.AuditPending.Set(float64(len(r.pending)))
}

// Flush retries buffered events in order and returns how many were
// persisted and the error that stopped it, if any.
func (r *Recorder) Flush(ctx context.Context) (int, error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) (int, error) {
	flushed := 0
	for len(r.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return flushed, err
		}
		event := r.pending[0]
		err := r.events.AppendEvent(ctx, &event)
		if err != nil && !errors.Is(err, apperr.ErrConflict) {
			metrics.AuditPending.Set(float64(len(r.pending)))
			return flushed, err
		}
		// A conflict means an earlier attempt landed after all.
		r.pending = r.pending[1:]
		flushed++
	}
	metrics.AuditPending.Set(0)
	if flushed > 0 {
		r.logger.Info("flushed buffered audit events", zap.Int("count", flushed))
	}
	return flushed, nil
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return len(r.pending)
}

// Prune releases burst-window state of idle actors.
func (r *Recorder) Prune() {
	r.window.prune(r.clock.Now())
}

// Run flushes the retry buffer and prunes idle actors every interval
// until ctx is done.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("audit events still buffered", zap.Int("pending", r.Pending()), zap.Error(err))
			}
			r.Prune()
		}
	}
}
