// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry loads an experiment's callable functions from a directory
// of HCL files and resolves calls against them.
//
// # Function Files
//
// Instructors drop .hcl files into an experiment's funcs/ directory. Each
// file holds one or more function blocks:
//
//	function "rosenbrock" {
//	  params   = ["x", "y", "a", "b"]
//	  defaults = { a = 1, b = 100 }
//	  doc      = "Classic Rosenbrock function f(x, y) = (a-x)^2 + b(y - x^2)^2."
//	  body     = pow(a - x, 2) + b * pow(y - pow(x, 2), 2)
//	}
//
// The body is an HCL expression evaluated per call with the parameters bound
// as variables. Function names starting with "_" are private and never
// registered.
//
// # Loading Semantics
//
// Files load in sorted filename order, so a name defined in two files
// resolves deterministically: the later file wins and the shadowing is
// logged as a warning. A file that fails to parse is skipped, not fatal.
// An empty resulting registry is a warning, not an error.
//
// # Reload Semantics
//
// A Registry is an immutable snapshot. Store holds the current snapshot
// behind an atomic pointer; Reload builds a fresh Registry and swaps it
// wholesale. In-flight calls keep the snapshot they started with, so
// readers never observe a partially updated mapping.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFuncsFile is the top-level structure of a funcs file for decoding.
type hclFuncsFile struct {
	Functions []*hclFunction `hcl:"function,block"`
}

// hclFunction is one function block. Body stays an unevaluated expression;
// it is evaluated per call with the params bound as variables.
type hclFunction struct {
	Name     string         `hcl:"name,label"`
	Params   []string       `hcl:"params"`
	Defaults *cty.Value     `hcl:"defaults,optional"`
	Doc      string         `hcl:"doc,optional"`
	Body     hcl.Expression `hcl:"body"`
}

// Function is a named callable unit with an ordered parameter list.
type Function struct {
	Name       string
	Params     []string
	Defaults   map[string]cty.Value
	Doc        string
	Body       hcl.Expression
	SourceFile string
}

// Signature renders the parameter list the way students see it, e.g.
// "(x, y, a=1, b=100)".
func (f *Function) Signature() string {
	parts := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		if def, ok := f.Defaults[p]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", p, formatDefault(def)))
			continue
		}
		parts = append(parts, p)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Registry is an immutable name-to-function snapshot.
type Registry struct {
	funcs map[string]*Function
}

// Lookup resolves a function by name (case-sensitive).
func (r *Registry) Lookup(name string) (*Function, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int { return len(r.funcs) }

// Load builds a Registry from every .hcl file directly under dir
// (non-recursive). It only fails when the directory itself is unreadable;
// individual bad files or bad function blocks are skipped with a log entry.
func Load(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading funcs directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".hcl") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	// ReadDir returns sorted entries already; sorting again keeps the
	// last-wins shadowing rule deterministic even if that changes.
	sort.Strings(files)

	funcs := make(map[string]*Function)
	parser := hclparse.NewParser()
	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			slog.Error("skipping funcs file: parse failed", "file", path, "error", diags.Error())
			continue
		}
		var parsed hclFuncsFile
		if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
			slog.Error("skipping funcs file: decode failed", "file", path, "error", diags.Error())
			continue
		}
		for _, hf := range parsed.Functions {
			fn, err := buildFunction(hf, path)
			if err != nil {
				slog.Warn("skipping function", "file", path, "function", hf.Name, "error", err)
				continue
			}
			if fn == nil {
				continue // private
			}
			if prev, exists := funcs[fn.Name]; exists {
				slog.Warn("function redefined, later file wins",
					"function", fn.Name, "previous", prev.SourceFile, "winner", fn.SourceFile)
			}
			funcs[fn.Name] = fn
		}
	}

	if len(funcs) == 0 {
		slog.Warn("no public functions found in funcs directory", "dir", dir)
	}
	return &Registry{funcs: funcs}, nil
}

// buildFunction validates one decoded block. Returns (nil, nil) for private
// functions.
func buildFunction(hf *hclFunction, path string) (*Function, error) {
	if strings.HasPrefix(hf.Name, "_") {
		return nil, nil
	}
	seen := make(map[string]bool, len(hf.Params))
	for _, p := range hf.Params {
		if p == "" {
			return nil, fmt.Errorf("function %q has an empty parameter name", hf.Name)
		}
		if seen[p] {
			return nil, fmt.Errorf("function %q repeats parameter %q", hf.Name, p)
		}
		seen[p] = true
	}

	defaults := make(map[string]cty.Value)
	if hf.Defaults != nil {
		if !hf.Defaults.Type().IsObjectType() {
			return nil, fmt.Errorf("function %q: defaults must be an object", hf.Name)
		}
		for it := hf.Defaults.ElementIterator(); it.Next(); {
			k, v := it.Element()
			name := k.AsString()
			if !seen[name] {
				return nil, fmt.Errorf("function %q: default for unknown parameter %q", hf.Name, name)
			}
			defaults[name] = v
		}
	}

	// Defaulted params must form a suffix of the parameter list, so that
	// positional binding is unambiguous.
	sawDefault := false
	for _, p := range hf.Params {
		_, hasDefault := defaults[p]
		if sawDefault && !hasDefault {
			return nil, fmt.Errorf("function %q: required parameter %q follows a defaulted one", hf.Name, p)
		}
		sawDefault = sawDefault || hasDefault
	}

	return &Function{
		Name:       hf.Name,
		Params:     hf.Params,
		Defaults:   defaults,
		Doc:        strings.TrimSpace(hf.Doc),
		Body:       hf.Body,
		SourceFile: path,
	}, nil
}
