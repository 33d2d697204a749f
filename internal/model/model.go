// Package model defines the declarative shapes every other package builds
// on: PipelineStep, Parameter, and Pipeline (spec §3). It is a leaf package
// — it has no dependency on the resolver, registry, or execution
// subsystems, so both sides of the codebase (pipeline execution and
// pipeline-context/plan management) can depend on it without a cycle.
package model

import "github.com/jriewerts/metalus/internal/value"

// StepType distinguishes how the executor treats a step's control flow
// (spec §3 PipelineStep).
type StepType string

const (
	StepTypeDefault   StepType = "pipeline"
	StepTypeBranch    StepType = "branch"
	StepTypeStepGroup StepType = "step-group"
	StepTypeFork      StepType = "fork"
	StepTypeJoin      StepType = "join"
)

// ParamKind distinguishes how a Parameter's Value should be interpreted by
// the resolver (spec §3 Parameter).
type ParamKind string

const (
	ParamKindText   ParamKind = "text"
	ParamKindScript ParamKind = "script"
	ParamKindObject ParamKind = "object"
	ParamKindList   ParamKind = "list"
	ParamKindResult ParamKind = "result"
)

// Parameter is one named input to a step (spec §3 Parameter).
type Parameter struct {
	Name         string
	Type         ParamKind
	Value        value.Value
	ClassName    string
	DefaultValue *value.Value
}

// EngineMeta identifies the callable a step invokes: either an
// "Object.function" reference for ordinary steps, or an embedded-pipeline
// reference for step-group steps (spec §3 PipelineStep.engineMeta).
type EngineMeta struct {
	ObjectFunction string
	PipelineID     string
	InlinePipeline *Pipeline
}

// PipelineStep is one node in a pipeline's step graph (spec §3).
type PipelineStep struct {
	ID              string
	DisplayName     string
	Description     string
	Type            StepType
	Params          []Parameter
	EngineMeta      EngineMeta
	NextStepID      *string
	ExecuteIfEmpty  *Parameter
	PipelineMapping *Parameter // step-group child globals source (spec §4.5)
}

// Pipeline is an ordered graph of steps (spec §3).
type Pipeline struct {
	ID               string
	Name             string
	Category         string // "pipeline" | "step-group"
	Steps            []PipelineStep
	StepGroupResult  string
}

// StepByID returns the step with the given id, if present.
func (p *Pipeline) StepByID(id string) (*PipelineStep, bool) {
	if p == nil {
		return nil, false
	}
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// FirstStep returns the pipeline's entry step.
func (p *Pipeline) FirstStep() (*PipelineStep, bool) {
	if p == nil || len(p.Steps) == 0 {
		return nil, false
	}
	return &p.Steps[0], true
}
