// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// evalFunctions is the builtin function table available inside body
// expressions. Numeric helpers first, plus enough string/collection
// support for echo-style logging functions.
var evalFunctions = map[string]function.Function{
	"abs":        stdlib.AbsoluteFunc,
	"ceil":       stdlib.CeilFunc,
	"floor":      stdlib.FloorFunc,
	"log":        stdlib.LogFunc,
	"pow":        stdlib.PowFunc,
	"signum":     stdlib.SignumFunc,
	"parseint":   stdlib.ParseIntFunc,
	"int":        stdlib.IntFunc,
	"max":        stdlib.MaxFunc,
	"min":        stdlib.MinFunc,
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"strlen":     stdlib.StrlenFunc,
	"substr":     stdlib.SubstrFunc,
	"format":     stdlib.FormatFunc,
	"join":       stdlib.JoinFunc,
	"split":      stdlib.SplitFunc,
	"concat":     stdlib.ConcatFunc,
	"length":     stdlib.LengthFunc,
	"range":      stdlib.RangeFunc,
	"element":    stdlib.ElementFunc,
	"coalesce":   stdlib.CoalesceFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"jsondecode": stdlib.JSONDecodeFunc,
}

// ArityError reports a call with the wrong number of positional arguments.
type ArityError struct {
	Func string
	Msg  string
}

func (e *ArityError) Error() string { return fmt.Sprintf("%s%s", e.Func, e.Msg) }

// Call invokes the function with positional arguments. Missing trailing
// arguments take their declared defaults; a missing required argument or
// an extra argument is an *ArityError. Evaluation failures (type errors,
// division by zero, a builtin raising) come back as plain errors carrying
// the HCL diagnostic text.
func (f *Function) Call(args []cty.Value) (cty.Value, error) {
	if len(args) > len(f.Params) {
		return cty.NilVal, &ArityError{
			Func: f.Name,
			Msg:  fmt.Sprintf("() takes at most %d argument(s), got %d", len(f.Params), len(args)),
		}
	}

	vars := make(map[string]cty.Value, len(f.Params))
	for i, p := range f.Params {
		if i < len(args) {
			vars[p] = args[i]
			continue
		}
		def, ok := f.Defaults[p]
		if !ok {
			return cty.NilVal, &ArityError{
				Func: f.Name,
				Msg:  fmt.Sprintf("() missing required argument %q", p),
			}
		}
		vars[p] = def
	}

	val, diags := f.Body.Value(&hcl.EvalContext{
		Variables: vars,
		Functions: evalFunctions,
	})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%s", diagSummary(diags))
	}
	return val, nil
}

// diagSummary flattens HCL diagnostics into one line for the error detail
// and the log row. Positions are dropped; students see the message, not
// the instructor's file layout.
func diagSummary(diags hcl.Diagnostics) string {
	msgs := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		m := d.Summary
		if d.Detail != "" {
			m += ": " + d.Detail
		}
		msgs = append(msgs, m)
	}
	return strings.Join(msgs, "; ")
}

// formatDefault renders a default value for Signature. Numbers print
// without a trailing ".0"; everything else falls back to JSON.
func formatDefault(v cty.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.Type() == cty.Number:
		return v.AsBigFloat().Text('g', -1)
	case v.Type() == cty.String:
		return fmt.Sprintf("%q", v.AsString())
	case v.Type() == cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	default:
		b, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return v.Type().FriendlyName()
		}
		return string(b)
	}
}

// DecodeArg converts one JSON-encoded call argument into a cty value,
// inferring the type from the JSON shape.
func DecodeArg(raw []byte) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported argument: %w", err)
	}
	v, err := ctyjson.Unmarshal(raw, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported argument: %w", err)
	}
	return v, nil
}

// EncodeResult converts an evaluation result back to JSON for the response
// body and the log row.
func EncodeResult(v cty.Value) ([]byte, error) {
	return ctyjson.Marshal(v, v.Type())
}
