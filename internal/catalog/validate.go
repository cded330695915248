package catalog

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
)

// Validate performs a strict parity check between manifests and Go code for
// every plugin with a registered handler. It checks both the presence of
// declared parameters in the Go structs and the compatibility of their
// implied types, so a drifting manifest fails at startup rather than inside
// a worker.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	warnFor := func(pluginID string) func(msg string, args ...any) {
		return func(msg string, args ...any) {
			logger.Warn(msg, append([]any{"plugin", pluginID}, args...)...)
		}
	}
	var errs []string

	r.mu.RLock()
	defer r.mu.RUnlock()

	for pluginID, sig := range r.signatures {
		handler, ok := r.handlers[pluginID]
		if !ok {
			// Signature-only registrations are legal: the worker executing
			// this plugin may live in another process with its own handler
			// registry.
			continue
		}

		if handler.NewInput == nil {
			for _, in := range sig.Inputs {
				if in.Required {
					errs = append(errs, fmt.Sprintf("plugin '%s': manifest declares required input '%s', but Go handler has no input struct", pluginID, in.Name))
				}
			}
		} else {
			inputType := reflect.TypeOf(handler.NewInput())
			if inputType.Kind() == reflect.Ptr {
				inputType = inputType.Elem()
			}
			errs = append(errs, checkFields(warnFor(pluginID), pluginID, "input", declaredInputs(sig), taggedFields(inputType))...)
		}

		outType, err := handlerOutputType(handler.Fn)
		if err != nil {
			errs = append(errs, fmt.Sprintf("plugin '%s': %v", pluginID, err))
			continue
		}
		if outType == nil {
			if len(sig.Outputs) > 0 {
				errs = append(errs, fmt.Sprintf("plugin '%s': manifest declares outputs, but Go handler returns none", pluginID))
			}
			continue
		}
		errs = append(errs, checkFields(warnFor(pluginID), pluginID, "output", declaredOutputs(sig), taggedFields(outType))...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// checkFields compares one direction of the manifest/Go contract.
func checkFields(warn func(msg string, args ...any), pluginID, kind string, declared map[string]cty.Type, fields map[string]reflect.StructField) []string {
	var errs []string

	for name := range fields {
		if _, ok := declared[name]; !ok {
			errs = append(errs, fmt.Sprintf("plugin '%s': Go struct has field for %s '%s' which is not declared in manifest", pluginID, kind, name))
		}
	}
	for name, manifestType := range declared {
		field, ok := fields[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("plugin '%s': manifest declares %s '%s' which is not found in Go struct", pluginID, kind, name))
			continue
		}
		if manifestType.Equals(cty.DynamicPseudoType) {
			continue
		}
		goFieldType, err := impliedFieldType(field)
		if err != nil {
			errs = append(errs, fmt.Sprintf("plugin '%s', %s '%s': %v", pluginID, kind, name, err))
			continue
		}
		if goFieldType.Equals(cty.DynamicPseudoType) {
			warn("Go field uses cty.Value, which disables static parity checking for this parameter.", kind, name)
			continue
		}
		if !manifestType.Equals(goFieldType) {
			errs = append(errs, fmt.Sprintf("plugin '%s', %s '%s': type mismatch, manifest requires '%s' but Go field '%s' implies '%s'",
				pluginID, kind, name, manifestType.FriendlyName(), field.Name, goFieldType.FriendlyName()))
		}
	}
	return errs
}

func declaredInputs(sig *Signature) map[string]cty.Type {
	m := make(map[string]cty.Type, len(sig.Inputs))
	for _, in := range sig.Inputs {
		m[in.Name] = in.Type
	}
	return m
}

func declaredOutputs(sig *Signature) map[string]cty.Type {
	m := make(map[string]cty.Type, len(sig.Outputs))
	for _, out := range sig.Outputs {
		m[out.Name] = out.Type
	}
	return m
}

// taggedFields collects the exported struct fields addressable by their
// `cty` tag name.
func taggedFields(t reflect.Type) map[string]reflect.StructField {
	fields := make(map[string]reflect.StructField)
	if t == nil || t.Kind() != reflect.Struct {
		return fields
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tagName := strings.Split(field.Tag.Get("cty"), ",")[0]
		if tagName != "" && tagName != "-" {
			fields[tagName] = field
		}
	}
	return fields
}

// impliedFieldType infers the cty type a Go struct field carries. Fields of
// type cty.Value imply DynamicPseudoType and opt out of static checking.
func impliedFieldType(field reflect.StructField) (cty.Type, error) {
	if field.Type == reflect.TypeOf(cty.Value{}) {
		return cty.DynamicPseudoType, nil
	}
	ty, err := gocty.ImpliedType(reflect.Zero(field.Type).Interface())
	if err != nil {
		return cty.NilType, fmt.Errorf("could not imply cty type from Go field type %s: %v", field.Type, err)
	}
	return ty, nil
}

// handlerOutputType extracts the struct type of a handler's first return
// value, or nil when the handler returns (any, error) with a nil result
// contract.
func handlerOutputType(fn any) (reflect.Type, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler function is nil")
	}
	fnType := reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func || fnType.NumIn() != 2 || fnType.NumOut() != 2 {
		return nil, fmt.Errorf("handler must have shape func(ctx, *Input) (*Output, error), got %s", fnType)
	}
	out := fnType.Out(0)
	if out.Kind() == reflect.Interface {
		return nil, nil
	}
	if out.Kind() == reflect.Ptr {
		out = out.Elem()
	}
	if out.Kind() != reflect.Struct {
		return nil, fmt.Errorf("handler output must be a struct or pointer to struct, got %s", out)
	}
	return out, nil
}
