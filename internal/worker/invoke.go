package worker

import (
	"context"
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
)

// invoke decodes the argument map into the handler's input struct, calls
// the handler through reflection, and encodes the returned output struct
// back into per-output cty values. A panicking handler is converted to an
// error so one bad plugin cannot take down the pool.
func invoke(ctx context.Context, h *catalog.Handler, sig *catalog.Signature, args map[string]cty.Value) (outputs map[string]cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			outputs = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	fnVal := reflect.ValueOf(h.Fn)
	fnType := fnVal.Type()

	var inVal reflect.Value
	if h.NewInput != nil {
		in := h.NewInput()
		if err := decodeArgs(args, in); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		inVal = reflect.ValueOf(in)
	} else {
		inVal = reflect.New(fnType.In(1)).Elem()
	}

	results := fnVal.Call([]reflect.Value{reflect.ValueOf(ctx), inVal})

	if errResult := results[1].Interface(); errResult != nil {
		return nil, errResult.(error)
	}

	outResult := results[0]
	if outResult.Kind() == reflect.Ptr && outResult.IsNil() || outResult.Kind() == reflect.Interface && outResult.IsNil() {
		if len(sig.Outputs) > 0 {
			return nil, fmt.Errorf("handler returned no output but %d outputs are declared", len(sig.Outputs))
		}
		return map[string]cty.Value{}, nil
	}
	return encodeOutputs(outResult.Interface(), sig)
}

// decodeArgs converts the resolved argument map into the handler's input
// struct. Going through the struct's implied type first lets cty handle
// tuple-to-list and object-to-map adjustments uniformly.
func decodeArgs(args map[string]cty.Value, target any) error {
	implied, err := gocty.ImpliedType(target)
	if err != nil {
		return err
	}
	obj := cty.ObjectVal(args)
	converted, err := convert.Convert(obj, implied)
	if err != nil {
		return err
	}
	return gocty.FromCtyValue(converted, target)
}

// encodeOutputs converts the handler's output struct into one cty value per
// declared output parameter. Converting the whole struct value to the
// signature's output object type at once normalizes every attribute to its
// declared type; dynamic attributes pass through untouched.
func encodeOutputs(result any, sig *catalog.Signature) (map[string]cty.Value, error) {
	implied, err := gocty.ImpliedType(result)
	if err != nil {
		return nil, fmt.Errorf("encoding outputs: %w", err)
	}
	obj, err := gocty.ToCtyValue(result, implied)
	if err != nil {
		return nil, fmt.Errorf("encoding outputs: %w", err)
	}

	for _, out := range sig.Outputs {
		if !obj.Type().HasAttribute(out.Name) {
			return nil, fmt.Errorf("handler output has no field for declared output %q", out.Name)
		}
	}
	converted, err := convert.Convert(obj, sig.OutputObjectType())
	if err != nil {
		return nil, fmt.Errorf("encoding outputs: %w", err)
	}

	outputs := make(map[string]cty.Value, len(sig.Outputs))
	for _, out := range sig.Outputs {
		outputs[out.Name] = converted.GetAttr(out.Name)
	}
	return outputs, nil
}
