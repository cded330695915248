package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Sentinel errors for programmatic checking via errors.Is. Every typed error
// below unwraps to exactly one of these, so callers can branch on the
// category without matching concrete types.
var (
	// ErrStructural covers graph-shape failures: unknown plugins, unknown
	// or self step references, unknown output fields.
	ErrStructural = errors.New("structural error")

	// ErrType covers static type failures between declared parameter types
	// and supplied expressions.
	ErrType = errors.New("type error")

	// ErrScheduling covers dependency-order failures, i.e. cycles.
	ErrScheduling = errors.New("scheduling error")
)

// UnknownPluginError reports a step bound to a plugin id that is not present
// in the signature catalog.
type UnknownPluginError struct {
	Step   string
	Plugin string
}

func (e *UnknownPluginError) Error() string {
	return fmt.Sprintf("step %q: unknown plugin %q", e.Step, e.Plugin)
}

func (e *UnknownPluginError) Unwrap() error { return ErrStructural }

// UnknownStepReferenceError reports a `$name` reference that does not
// resolve to another step or entrypoint parameter. Self-references are
// reported through this type as well, with Self set.
type UnknownStepReferenceError struct {
	Step string // the referencing step
	Ref  string // the referenced name, in `$name.path` form
	Self bool
}

func (e *UnknownStepReferenceError) Error() string {
	if e.Self {
		return fmt.Sprintf("step %q: reference %s refers to the step itself", e.Step, e.Ref)
	}
	return fmt.Sprintf("step %q: reference %s does not match any step or parameter", e.Step, e.Ref)
}

func (e *UnknownStepReferenceError) Unwrap() error { return ErrStructural }

// UnknownOutputFieldError reports a reference path that does not resolve
// against the producing step's declared outputs.
type UnknownOutputFieldError struct {
	Step     string // the referencing step
	Producer string
	Path     []string // the path that failed to resolve, possibly empty
	Reason   string
}

func (e *UnknownOutputFieldError) Error() string {
	ref := e.Producer
	if len(e.Path) > 0 {
		ref += "." + strings.Join(e.Path, ".")
	}
	if e.Reason != "" {
		return fmt.Sprintf("step %q: reference $%s: %s", e.Step, ref, e.Reason)
	}
	return fmt.Sprintf("step %q: reference $%s does not resolve against the declared outputs of %q", e.Step, ref, e.Producer)
}

func (e *UnknownOutputFieldError) Unwrap() error { return ErrStructural }

// MissingInputError reports a required input with no supplied expression.
type MissingInputError struct {
	Step  string
	Input string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("step %q: required input %q is not supplied", e.Step, e.Input)
}

func (e *MissingInputError) Unwrap() error { return ErrType }

// UnknownInputError reports a supplied input name the plugin does not
// declare.
type UnknownInputError struct {
	Step   string
	Plugin string
	Input  string
}

func (e *UnknownInputError) Error() string {
	return fmt.Sprintf("step %q: plugin %q declares no input named %q", e.Step, e.Plugin, e.Input)
}

func (e *UnknownInputError) Unwrap() error { return ErrType }

// InvalidLiteralError reports a literal whose shape is not compatible with
// the declared parameter type.
type InvalidLiteralError struct {
	Step     string
	Input    string
	Declared cty.Type
	Got      cty.Type
}

func (e *InvalidLiteralError) Error() string {
	return fmt.Sprintf("step %q, input %q: literal of type %s is not compatible with declared type %s",
		e.Step, e.Input, e.Got.FriendlyName(), e.Declared.FriendlyName())
}

func (e *InvalidLiteralError) Unwrap() error { return ErrType }

// TypeMismatchError reports an incompatibility between a producer's declared
// output type and a consumer's declared input type. Both ends are named so
// the message is actionable without opening either manifest.
type TypeMismatchError struct {
	ProducerStep  string
	OutputParam   string // dotted output path on the producer
	ProducerType  cty.Type
	ConsumerStep  string
	InputParam    string
	ConsumerType  cty.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("step %q output %q (%s) is not compatible with step %q input %q (%s)",
		e.ProducerStep, e.OutputParam, e.ProducerType.FriendlyName(),
		e.ConsumerStep, e.InputParam, e.ConsumerType.FriendlyName())
}

func (e *TypeMismatchError) Unwrap() error { return ErrType }

// CyclicDependencyError reports a reference cycle among steps. Cycle lists
// the step names involved, in an order that walks the cycle.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrScheduling }
