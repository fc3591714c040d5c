package audit

import (
	"context"
	"maps"

	"github.com/nerrad567/entity-manager/internal/manager"
)

// DefaultQueueSize is the buffer size of the asynchronous write queue.
// Entries beyond it are dropped so audit writes never hold up a command.
const DefaultQueueSize = 256

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder turns manager mutations into audit log entries. Entries are
// queued by MutationApplied and written serially by Run.
type Recorder struct {
	repo   Repository
	queue  chan *AuditLog
	done   chan struct{}
	logger Logger
}

// NewRecorder creates a Recorder writing to repo. A non-positive size
// selects DefaultQueueSize.
func NewRecorder(repo Repository, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan *AuditLog, size),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// MutationApplied enqueues an entry for m. If the queue is full the entry
// is dropped and a warning is logged.
func (r *Recorder) MutationApplied(_ context.Context, m manager.Mutation) {
	entry := FromMutation(m)
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_id", entry.EntityID,
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns. Done is closed on return.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has drained the queue and returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(entry *AuditLog) {
	// The request that produced the entry may be gone by now.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// FromMutation builds the audit entry for m. Bulk entity lists, the
// change count and any error message are folded into Details.
func FromMutation(m manager.Mutation) *AuditLog {
	details := make(map[string]any, len(m.Details)+3)
	maps.Copy(details, m.Details)
	if len(m.EntityIDs) > 0 {
		details["entity_ids"] = m.EntityIDs
	}
	if m.Count != 1 || m.EntityID == "" {
		details["count"] = m.Count
	}
	if m.Error != "" {
		details["error"] = m.Error
	}
	if len(details) == 0 {
		details = nil
	}

	return &AuditLog{
		Action:    m.Operation,
		EntityID:  m.EntityID,
		UserID:    m.Actor.UserID,
		Source:    m.Actor.Source,
		Outcome:   m.Outcome,
		Details:   details,
		CreatedAt: m.Time,
	}
}

var _ manager.Observer = (*Recorder)(nil)
