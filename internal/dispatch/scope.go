package dispatch

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/expr"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
)

// jobScope resolves references against one job's parameter values and the
// recorded outputs of its completed steps. The validator has already proven
// every reference well-formed, so resolution failures here indicate
// scheduling bugs (a consumer dispatched before its producer succeeded).
type jobScope struct {
	pipeline *pipeline.Pipeline
	params   map[string]cty.Value
	states   map[string]runstate.StepStatus
}

func (s *jobScope) ResolveReference(ref expr.Reference) (cty.Value, error) {
	if step, ok := s.pipeline.Step(ref.Name); ok {
		return s.resolveStepOutput(step, ref)
	}
	if v, ok := s.params[ref.Name]; ok {
		return projectPath(v, ref.Name, ref.Path)
	}
	return cty.NilVal, fmt.Errorf("unresolvable reference %s", ref)
}

func (s *jobScope) resolveStepOutput(step *pipeline.Step, ref expr.Reference) (cty.Value, error) {
	status := s.states[step.Name]
	if status.State != runstate.Succeeded {
		return cty.NilVal, fmt.Errorf("reference %s: step %q has not succeeded (state %s)", ref, step.Name, status.State)
	}

	if len(ref.Path) == 0 {
		out, ok := step.Signature.SingleOutput()
		if !ok {
			return cty.NilVal, fmt.Errorf("reference %s: step %q has no single output", ref, step.Name)
		}
		v, ok := status.Outputs[out.Name]
		if !ok {
			return cty.NilVal, fmt.Errorf("reference %s: step %q recorded no value for output %q", ref, step.Name, out.Name)
		}
		return v, nil
	}

	v, ok := status.Outputs[ref.Path[0]]
	if !ok {
		return cty.NilVal, fmt.Errorf("reference %s: step %q recorded no value for output %q", ref, step.Name, ref.Path[0])
	}
	return projectPath(v, ref.Name+"."+ref.Path[0], ref.Path[1:])
}

// projectPath walks the remaining dotted segments into a value.
func projectPath(v cty.Value, base string, path []string) (cty.Value, error) {
	for _, seg := range path {
		if v.IsNull() {
			return cty.NilVal, fmt.Errorf("reference $%s: cannot index null value with %q", base, seg)
		}
		ty := v.Type()
		switch {
		case ty.IsObjectType() && ty.HasAttribute(seg):
			v = v.GetAttr(seg)
		case ty.IsMapType():
			idx := cty.StringVal(seg)
			if v.HasIndex(idx).False() {
				return cty.NilVal, fmt.Errorf("reference $%s: no key %q", base, seg)
			}
			v = v.Index(idx)
		default:
			return cty.NilVal, fmt.Errorf("reference $%s: value of type %s has no field %q", base, ty.FriendlyName(), seg)
		}
		base += "." + seg
	}
	return v, nil
}
