// Package config parses the Application JSON document (spec §6) into the
// plan/pipeline/value types the rest of the core operates on.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/pctx"
	"github.com/jriewerts/metalus/internal/plan"
	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

// Driver configuration surface reserved keys (spec §4.6, §6): at least one
// means of supplying the application JSON must be present, and all three
// are stripped from the final globals once parsed. Aliased from pctx, which
// owns the canonical definition shared with execution-time stripping.
const (
	ReservedApplicationJSON                = pctx.ReservedApplicationJSON
	ReservedApplicationConfigPath          = pctx.ReservedApplicationConfigPath
	ReservedApplicationConfigurationLoader = pctx.ReservedApplicationConfigurationLoader
)

// ManagerDescriptor is a `{className, parameters}` override for the
// pipelineListener, securityManager, or stepMapper (spec §6).
type ManagerDescriptor struct {
	ClassName  string         `validate:"required"`
	Parameters map[string]value.Value
}

// Application is the parsed, validated top-level document (spec §6).
type Application struct {
	Globals         map[string]value.Value
	Pipelines       map[string]*model.Pipeline
	Executions      []*plan.PipelineExecution
	Listener        *ManagerDescriptor
	SecurityManager *ManagerDescriptor
	StepMapper      *ManagerDescriptor
	SparkConf       value.Value

	// StepPackages is the application-wide namespace search path handed to
	// every execution's PipelineContext (spec §3 "stepPackages"), unless an
	// execution overrides it with its own "stepPackages" list.
	StepPackages []string
}

var validate = validator.New()

// Parse parses raw Application JSON bytes into an Application, resolving
// each execution's pipelineIds against the pipeline library (or its inline
// pipelines) and validating required shape (spec §6).
func Parse(raw []byte) (*Application, error) {
	if !gjson.ValidBytes(raw) {
		return nil, metalerrors.NewConfigError("applicationJson", "not valid JSON", nil)
	}
	root := gjson.ParseBytes(raw)

	globals := valueMap(root.Get("globals"))

	library, err := parsePipelineLibrary(root.Get("pipelines"))
	if err != nil {
		return nil, err
	}

	appStepPackages := parseStringList(root.Get("stepPackages"))

	execs, err := parseExecutions(root.Get("executions"), library, appStepPackages)
	if err != nil {
		return nil, err
	}
	if len(execs) == 0 {
		return nil, metalerrors.NewConfigError("executions", "at least one execution is required", nil)
	}

	app := &Application{
		Globals:         globals,
		Pipelines:       library,
		Executions:      execs,
		Listener:        parseManagerDescriptor(root.Get("pipelineListener")),
		SecurityManager: parseManagerDescriptor(root.Get("securityManager")),
		StepMapper:      parseManagerDescriptor(root.Get("stepMapper")),
		SparkConf:       value.FromJSON(root.Get("sparkConf")),
		StepPackages:    appStepPackages,
	}

	for _, descriptor := range []*ManagerDescriptor{app.Listener, app.SecurityManager, app.StepMapper} {
		if descriptor == nil {
			continue
		}
		if err := validate.Struct(descriptor); err != nil {
			return nil, metalerrors.NewConfigError("className", err.Error(), err)
		}
	}

	return app, nil
}

func parsePipelineLibrary(node gjson.Result) (map[string]*model.Pipeline, error) {
	library := make(map[string]*model.Pipeline)
	if !node.Exists() {
		return library, nil
	}
	var parseErr error
	node.ForEach(func(_, item gjson.Result) bool {
		p, err := parsePipeline(item)
		if err != nil {
			parseErr = err
			return false
		}
		library[p.ID] = p
		return true
	})
	return library, parseErr
}

func parsePipeline(node gjson.Result) (*model.Pipeline, error) {
	id := node.Get("id").String()
	if id == "" {
		return nil, metalerrors.NewConfigError("pipelines", "pipeline id is required", nil)
	}

	p := &model.Pipeline{
		ID:              id,
		Name:            node.Get("name").String(),
		Category:        node.Get("category").String(),
		StepGroupResult: node.Get("stepGroupResult").String(),
	}
	if p.Category == "" {
		p.Category = "pipeline"
	}

	var parseErr error
	node.Get("steps").ForEach(func(_, item gjson.Result) bool {
		step, err := parseStep(item)
		if err != nil {
			parseErr = err
			return false
		}
		p.Steps = append(p.Steps, step)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return p, nil
}

func parseStep(node gjson.Result) (model.PipelineStep, error) {
	id := node.Get("id").String()
	if id == "" {
		return model.PipelineStep{}, metalerrors.NewConfigError("steps", "step id is required", nil)
	}

	step := model.PipelineStep{
		ID:          id,
		DisplayName: node.Get("displayName").String(),
		Description: node.Get("description").String(),
		Type:        model.StepType(node.Get("type").String()),
	}
	if step.Type == "" {
		step.Type = model.StepTypeDefault
	}
	if next := node.Get("nextStepId"); next.Exists() && next.Type == gjson.String {
		s := next.String()
		step.NextStepID = &s
	}

	if fn := node.Get("engineMeta"); fn.Exists() {
		if fn.Type == gjson.String {
			step.EngineMeta.ObjectFunction = fn.String()
		} else if objFn := fn.Get("objectFunction"); objFn.Exists() {
			step.EngineMeta.ObjectFunction = objFn.String()
		}
	}
	if pid := node.Get("pipelineId"); pid.Exists() {
		step.EngineMeta.PipelineID = pid.String()
	}
	if inline := node.Get("pipeline"); inline.Exists() {
		inlinePipeline, err := parsePipeline(inline)
		if err != nil {
			return model.PipelineStep{}, err
		}
		step.EngineMeta.InlinePipeline = inlinePipeline
	}

	var paramErr error
	node.Get("params").ForEach(func(_, item gjson.Result) bool {
		p, err := parseParameter(item)
		if err != nil {
			paramErr = err
			return false
		}
		step.Params = append(step.Params, p)
		return true
	})
	if paramErr != nil {
		return model.PipelineStep{}, paramErr
	}

	if mapping := node.Get("pipelineMappings"); mapping.Exists() {
		p, err := parseParameter(mapping)
		if err != nil {
			return model.PipelineStep{}, err
		}
		step.PipelineMapping = &p
	}
	if empty := node.Get("executeIfEmpty"); empty.Exists() {
		p, err := parseParameter(empty)
		if err != nil {
			return model.PipelineStep{}, err
		}
		step.ExecuteIfEmpty = &p
	}

	return step, nil
}

func parseParameter(node gjson.Result) (model.Parameter, error) {
	p := model.Parameter{
		Name:      node.Get("name").String(),
		Type:      model.ParamKind(node.Get("type").String()),
		ClassName: node.Get("className").String(),
		Value:     value.FromJSON(node.Get("value")),
	}
	if p.Type == "" {
		p.Type = model.ParamKindText
	}
	if def := node.Get("defaultValue"); def.Exists() {
		v := value.FromJSON(def)
		p.DefaultValue = &v
	}
	return p, nil
}

func parseExecutions(node gjson.Result, library map[string]*model.Pipeline, appStepPackages []string) ([]*plan.PipelineExecution, error) {
	var execs []*plan.PipelineExecution
	var parseErr error
	node.ForEach(func(_, item gjson.Result) bool {
		e, err := parseExecution(item, library, appStepPackages)
		if err != nil {
			parseErr = err
			return false
		}
		execs = append(execs, e)
		return true
	})
	return execs, parseErr
}

func parseExecution(node gjson.Result, library map[string]*model.Pipeline, appStepPackages []string) (*plan.PipelineExecution, error) {
	id := node.Get("id").String()
	if id == "" {
		return nil, metalerrors.NewConfigError("executions", "execution id is required", nil)
	}

	stepPackages := appStepPackages
	if own := parseStringList(node.Get("stepPackages")); len(own) > 0 {
		stepPackages = own
	}

	e := &plan.PipelineExecution{
		ID:                 id,
		Globals:            valueMap(node.Get("globals")),
		PipelineParameters: valueMap(node.Get("pipelineParameters")),
		StepPackages:       stepPackages,
	}

	node.Get("parents").ForEach(func(_, item gjson.Result) bool {
		e.Parents = append(e.Parents, item.String())
		return true
	})

	if inline := node.Get("pipelines"); inline.Exists() {
		var parseErr error
		inline.ForEach(func(_, item gjson.Result) bool {
			p, err := parsePipeline(item)
			if err != nil {
				parseErr = err
				return false
			}
			e.Pipelines = append(e.Pipelines, p)
			return true
		})
		if parseErr != nil {
			return nil, parseErr
		}
	}

	node.Get("pipelineIds").ForEach(func(_, item gjson.Result) bool {
		id := item.String()
		p, ok := library[id]
		if !ok {
			return true
		}
		e.Pipelines = append(e.Pipelines, p)
		return true
	})

	if len(e.Pipelines) == 0 {
		return nil, metalerrors.NewConfigError("executions", fmt.Sprintf("execution %q has no pipelines", id), nil)
	}

	return e, nil
}

func parseManagerDescriptor(node gjson.Result) *ManagerDescriptor {
	if !node.Exists() {
		return nil
	}
	return &ManagerDescriptor{
		ClassName:  node.Get("className").String(),
		Parameters: valueMap(node.Get("parameters")),
	}
}

func parseStringList(node gjson.Result) []string {
	if !node.Exists() {
		return nil
	}
	var out []string
	node.ForEach(func(_, item gjson.Result) bool {
		out = append(out, item.String())
		return true
	})
	return out
}

func valueMap(node gjson.Result) map[string]value.Value {
	v := value.FromJSON(node)
	if v.Kind != value.KindMap {
		return map[string]value.Value{}
	}
	return v.Map
}

// StripDriverKeys removes the three reserved driver-only keys from a raw
// globals JSON object losslessly (spec §4.6, §8 Round-trip).
func StripDriverKeys(globalsJSON []byte) ([]byte, error) {
	out := globalsJSON
	for _, key := range []string{ReservedApplicationJSON, ReservedApplicationConfigPath, ReservedApplicationConfigurationLoader} {
		stripped, err := sjson.DeleteBytes(out, key)
		if err != nil {
			return nil, err
		}
		out = stripped
	}
	return out, nil
}
