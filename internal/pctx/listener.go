package pctx

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jriewerts/metalus/internal/value"
)

// AuditingListener is the default PipelineListener installed by New (spec
// §4.4 Audits): it records lifecycle timing into the audit list of the
// context it was built for and emits a structured log line per event
// through log. Every method is safe for concurrent callers: start times live
// in a mutex-guarded map, audit entries go through the context's own lock,
// and zerolog.Logger is safe for concurrent use (spec §5 "pipelineListener
// callbacks may be invoked concurrently ... must be internally
// synchronized").
type AuditingListener struct {
	ctx *PipelineContext
	log zerolog.Logger

	mu         sync.Mutex
	startTimes map[string]time.Time
}

// NewAuditingListener builds a listener that records audits onto ctx and
// logs through log.
func NewAuditingListener(ctx *PipelineContext, log zerolog.Logger) *AuditingListener {
	return &AuditingListener{
		ctx:        ctx,
		log:        log,
		startTimes: make(map[string]time.Time),
	}
}

func (l *AuditingListener) markStart(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startTimes[key] = time.Now()
}

func (l *AuditingListener) elapsed(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	start, ok := l.startTimes[key]
	delete(l.startTimes, key)
	if !ok {
		return 0
	}
	return time.Since(start)
}

func (l *AuditingListener) record(pipelineID, stepID, event, message string, d time.Duration) {
	entry := AuditEntry{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		StepID:     stepID,
		Event:      event,
		Message:    message,
		DurationNS: d.Nanoseconds(),
	}
	l.ctx.RecordAudit(entry)
	l.log.Info().
		Str("audit_id", entry.ID).
		Str("pipeline_id", pipelineID).
		Str("step_id", stepID).
		Str("event", event).
		Dur("duration", d).
		Msg(message)
}

// PipelineStarted implements PipelineListener.
func (l *AuditingListener) PipelineStarted(pipelineID string) {
	l.markStart("pipeline:" + pipelineID)
	l.record(pipelineID, "", "pipelineStarted", "pipeline started", 0)
}

// StepStarted implements PipelineListener.
func (l *AuditingListener) StepStarted(pipelineID, stepID string) {
	l.markStart(pipelineID + ":" + stepID)
	l.record(pipelineID, stepID, "stepStarted", "step started", 0)
}

// StepFinished implements PipelineListener.
func (l *AuditingListener) StepFinished(pipelineID, stepID string, resp value.PipelineStepResponse) {
	d := l.elapsed(pipelineID + ":" + stepID)
	l.record(pipelineID, stepID, "stepFinished", "step finished", d)
}

// PipelinePaused implements PipelineListener.
func (l *AuditingListener) PipelinePaused(pipelineID, stepID, message string) {
	d := l.elapsed("pipeline:" + pipelineID)
	l.record(pipelineID, stepID, "pipelinePaused", message, d)
}

// PipelineErrored implements PipelineListener.
func (l *AuditingListener) PipelineErrored(pipelineID, stepID string, err error) {
	d := l.elapsed("pipeline:" + pipelineID)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	l.record(pipelineID, stepID, "pipelineErrored", msg, d)
}

// PipelineFinished implements PipelineListener.
func (l *AuditingListener) PipelineFinished(pipelineID string) {
	d := l.elapsed("pipeline:" + pipelineID)
	l.record(pipelineID, "", "pipelineFinished", "pipeline finished", d)
}
