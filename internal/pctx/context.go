// Package pctx implements the per-execution PipelineContext (spec §3, §4.6):
// globals, per-pipeline step results, and the policy hooks (security
// manager, listener, parameter mapper, pipeline manager) every other
// subsystem reads through.
package pctx

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/value"
)

// Reserved global keys stripped from the final context after the driver
// seeds it (spec §4.6, §6 Driver configuration surface).
const (
	ReservedApplicationJSON               = "applicationJson"
	ReservedApplicationConfigPath         = "applicationConfigPath"
	ReservedApplicationConfigurationLoader = "applicationConfigurationLoader"
)

var reservedGlobalKeys = []string{
	ReservedApplicationJSON,
	ReservedApplicationConfigPath,
	ReservedApplicationConfigurationLoader,
}

// PipelineManager resolves a pipeline by id — used by the `&` sigil and by
// step-group steps that reference an embedded pipeline by id (spec §4.3,
// §4.5).
type PipelineManager interface {
	Get(id string) (*model.Pipeline, bool)
}

// SecurityManager secures every resolved final argument before it reaches a
// step body (spec §4.3 Security hook). It must be safe for concurrent use
// across executions (spec §5).
type SecurityManager interface {
	SecureParameter(v value.Value) (value.Value, error)
}

// ParameterMapper allows a deployment to intercept and transform a resolved
// parameter value before it is handed to the step registry. The zero value
// behavior (PassthroughParameterMapper) does nothing.
type ParameterMapper interface {
	MapParameter(param model.Parameter, resolved value.Value) (value.Value, error)
}

// PipelineListener receives lifecycle callbacks from the executor (spec
// §4.4 Audits). Implementations may be called concurrently from distinct
// executions and must synchronize internally (spec §5).
type PipelineListener interface {
	PipelineStarted(pipelineID string)
	StepStarted(pipelineID, stepID string)
	StepFinished(pipelineID, stepID string, resp value.PipelineStepResponse)
	PipelinePaused(pipelineID, stepID, message string)
	PipelineErrored(pipelineID, stepID string, err error)
	PipelineFinished(pipelineID string)
}

// PassthroughSecurityManager performs no redaction.
type PassthroughSecurityManager struct{}

// SecureParameter returns v unchanged.
func (PassthroughSecurityManager) SecureParameter(v value.Value) (value.Value, error) { return v, nil }

// PassthroughParameterMapper performs no transformation.
type PassthroughParameterMapper struct{}

// MapParameter returns resolved unchanged.
func (PassthroughParameterMapper) MapParameter(_ model.Parameter, resolved value.Value) (value.Value, error) {
	return resolved, nil
}

// NoopPipelineListener discards every callback.
type NoopPipelineListener struct{}

func (NoopPipelineListener) PipelineStarted(string)                          {}
func (NoopPipelineListener) StepStarted(string, string)                      {}
func (NoopPipelineListener) StepFinished(string, string, value.PipelineStepResponse) {}
func (NoopPipelineListener) PipelinePaused(string, string, string)           {}
func (NoopPipelineListener) PipelineErrored(string, string, error)           {}
func (NoopPipelineListener) PipelineFinished(string)                        {}

// PipelineContext is the per-execution mutable state described in spec §3
// and §4.6. Within one execution the executor is single-threaded except for
// step-group/fork children, which own a private child PipelineContext —
// see NewChild.
type PipelineContext struct {
	mu sync.Mutex

	Globals            map[string]value.Value
	Parameters         map[string]map[string]value.PipelineStepResponse
	PipelineParameters map[string]value.Value // execution-level pipelineParameters override (spec §3, §4.7 merge)

	PipelineManager PipelineManager
	SecurityManager SecurityManager
	Listener        PipelineListener
	ParameterMapper ParameterMapper
	StepPackages    []string

	ValidateStepParameterTypes bool

	audits []AuditEntry
}

// New builds a PipelineContext with the default policy hooks: a
// pass-through security manager and parameter mapper, and an
// AuditingListener that records into this context's audit list. mgr is
// stored as given (it may be nil).
func New(globals map[string]value.Value, mgr PipelineManager, stepPackages []string) *PipelineContext {
	if globals == nil {
		globals = map[string]value.Value{}
	}
	ctx := &PipelineContext{
		Globals:            globals,
		Parameters:         make(map[string]map[string]value.PipelineStepResponse),
		PipelineParameters: make(map[string]value.Value),
		PipelineManager:    mgr,
		SecurityManager:    PassthroughSecurityManager{},
		ParameterMapper:    PassthroughParameterMapper{},
		StepPackages:       stepPackages,
	}
	ctx.Listener = NewAuditingListener(ctx, zerolog.Nop())
	if v, ok := globals["validateStepParameterTypes"]; ok && v.Kind == value.KindBool {
		ctx.ValidateStepParameterTypes = v.Bool
	}
	return ctx
}

// StripReservedGlobals removes the driver-only keys from globals (spec
// §4.6, §6).
func StripReservedGlobals(globals map[string]value.Value) {
	for _, key := range reservedGlobalKeys {
		delete(globals, key)
	}
}

// SetResult records a step's result under pipelineID and stepID, replacing
// any result recorded earlier for the same step.
func (c *PipelineContext) SetResult(pipelineID, stepID string, resp value.PipelineStepResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps, ok := c.Parameters[pipelineID]
	if !ok {
		steps = make(map[string]value.PipelineStepResponse)
		c.Parameters[pipelineID] = steps
	}
	steps[stepID] = resp
}

// GetResult reads a previously recorded step result.
func (c *PipelineContext) GetResult(pipelineID, stepID string) (value.PipelineStepResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps, ok := c.Parameters[pipelineID]
	if !ok {
		return value.PipelineStepResponse{}, false
	}
	resp, ok := steps[stepID]
	return resp, ok
}

// HasPipeline reports whether pipelineID has any recorded results, used by
// the resolver to disambiguate a same-pipeline "$stepId" reference from a
// cross-pipeline "$pipelineId.stepId" reference (spec §4.3 sigil table).
func (c *PipelineContext) HasPipeline(pipelineID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.Parameters[pipelineID]
	return ok
}

// Global reads a global by exact key (dotted traversal is the resolver's
// job, not this accessor's).
func (c *PipelineContext) Global(name string) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Globals[name]
	return v, ok
}

// SetGlobal writes a global.
func (c *PipelineContext) SetGlobal(name string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Globals[name] = v
}

// AuditEntry is one recorded lifecycle event (spec §4.4 Audits, default
// listener behavior).
type AuditEntry struct {
	ID         string
	PipelineID string
	StepID     string
	Event      string
	Message    string
	DurationNS int64
}

// RecordAudit appends an audit entry. Safe for concurrent callers.
func (c *PipelineContext) RecordAudit(entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audits = append(c.audits, entry)
}

// Audits returns a snapshot copy of the recorded audit trail.
func (c *PipelineContext) Audits() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuditEntry, len(c.audits))
	copy(out, c.audits)
	return out
}

// NewChild builds the isolated PipelineContext a step-group or fork branch
// executes in: globals are entirely replaced (not merged) by childGlobals,
// parameters start empty, and the pipeline/security managers are inherited
// from the parent (spec §4.5).
func (c *PipelineContext) NewChild(childGlobals map[string]value.Value) *PipelineContext {
	c.mu.Lock()
	validate := c.ValidateStepParameterTypes
	mgr := c.PipelineManager
	sec := c.SecurityManager
	listener := c.Listener
	mapper := c.ParameterMapper
	packages := append([]string(nil), c.StepPackages...)
	c.mu.Unlock()

	if childGlobals == nil {
		childGlobals = map[string]value.Value{}
	}
	child := New(childGlobals, mgr, packages)
	child.SecurityManager = sec
	child.Listener = listener
	child.ParameterMapper = mapper
	child.ValidateStepParameterTypes = validate
	return child
}

// Snapshot returns independent copies of the globals, parameters, and
// pipelineParameters maps suitable for handing to dependents once this
// execution has reached a terminal state (spec §3 invariant: "Once an
// execution completes ... its PipelineContext is immutable and may be read
// by dependents"). The maps themselves are copied; list, map, and object
// values held inside them are shared with this context, not cloned.
func (c *PipelineContext) Snapshot() (globals map[string]value.Value, parameters map[string]map[string]value.PipelineStepResponse, pipelineParameters map[string]value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	globals = make(map[string]value.Value, len(c.Globals))
	for k, v := range c.Globals {
		globals[k] = v
	}

	parameters = make(map[string]map[string]value.PipelineStepResponse, len(c.Parameters))
	for pipelineID, steps := range c.Parameters {
		copied := make(map[string]value.PipelineStepResponse, len(steps))
		for stepID, resp := range steps {
			copied[stepID] = resp
		}
		parameters[pipelineID] = copied
	}

	pipelineParameters = make(map[string]value.Value, len(c.PipelineParameters))
	for k, v := range c.PipelineParameters {
		pipelineParameters[k] = v
	}
	return globals, parameters, pipelineParameters
}
