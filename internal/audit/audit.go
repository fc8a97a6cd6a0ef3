// Package audit records who changed which ledger record, with before and after snapshots.
// Recording never blocks or fails the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates audited actions.
type Kind string

const (
	KindCreate        Kind = "CREATE"
	KindUpdate        Kind = "UPDATE"
	KindLogicalDelete Kind = "LOGICAL_DELETE"
)

// Record is one audit event.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	CompanyID int64           `json:"company_id"`
	ActorID   int64           `json:"actor_id"`
	ActorName string          `json:"actor_name"`
	Module    string          `json:"module"`
	Kind      Kind            `json:"kind"`
	Table     string          `json:"table"`
	RecordID  int64           `json:"record_id"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

// Validate checks the fields every sink requires.
func (r Record) Validate() error {
	if r.Kind == "" || r.Table == "" || r.Module == "" {
		return errors.New("audit: record requires kind/table/module")
	}
	return nil
}

// Snapshot marshals v for Before/After. Unmarshalable values are recorded as their error text.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"snapshot_error": err.Error()})
	}
	return data
}

// Sink persists records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// FailureObserver counts records a sink could not write.
type FailureObserver interface {
	AuditFailed(sink string)
}

// Recorder hands records to a sink in the background.
type Recorder struct {
	sink     Sink
	name     string
	logger   *slog.Logger
	timeout  time.Duration
	observer FailureObserver
	now      func() time.Time
	wg       sync.WaitGroup
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithTimeout bounds each sink write.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver reports sink failures.
func WithObserver(o FailureObserver) Option {
	return func(r *Recorder) { r.observer = o }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder builds a Recorder writing to sink. name labels failures.
func NewRecorder(sink Sink, name string, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{sink: sink, name: name, logger: logger, timeout: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record schedules rec for writing and returns immediately. Cancelling ctx does not drop the record.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil || r.sink == nil {
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.At.IsZero() {
		rec.At = r.now()
	}
	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.fail(rec, fmt.Errorf("panic: %v", p))
			}
		}()
		writeCtx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()
		if err := rec.Validate(); err != nil {
			r.fail(rec, err)
			return
		}
		if err := r.sink.Write(writeCtx, rec); err != nil {
			r.fail(rec, err)
		}
	}()
}

// Flush waits for scheduled records to finish.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Recorder) fail(rec Record, err error) {
	if r.observer != nil {
		r.observer.AuditFailed(r.name)
	}
	r.logger.Warn("audit record dropped",
		slog.String("sink", r.name),
		slog.String("module", rec.Module),
		slog.String("kind", string(rec.Kind)),
		slog.String("table", rec.Table),
		slog.Int64("record_id", rec.RecordID),
		slog.Any("error", err))
}
