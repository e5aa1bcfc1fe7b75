// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dispatch runs the call state machine at the heart of the server:
//
//	received → gate-checked → validated → invoked → logged → responded
//
// The gate check always comes first, so a request can never learn which
// functions or students exist in an experiment that is not active. A call
// rejected before invocation leaves no log row; every attempted invocation
// leaves exactly one, success or failure.
//
// The gate is read once per call. A stop landing between that snapshot and
// the invocation does not abort the call; this race is accepted (holding
// the gate across arbitrary user function execution would turn a flag into
// a long-held lock).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/AleutianAI/classlab/pkg/validation"
	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
	"github.com/AleutianAI/classlab/services/rpcserver/experiment"
	"github.com/AleutianAI/classlab/services/rpcserver/observability"
	"github.com/AleutianAI/classlab/services/rpcserver/registry"
	"github.com/AleutianAI/classlab/services/rpcserver/state"
)

// Argument bounds enforced before invocation. Shallow by design: this is
// type/size checking, not a sandbox.
const (
	MaxArgs      = 16
	MaxArgsBytes = 64 * 1024
	MaxArgDepth  = 8
)

// Dispatcher validates and executes calls against experiment contexts.
type Dispatcher struct {
	Gate    *state.State
	Metrics *observability.Metrics

	// CallTimeout bounds a single invocation when positive. Zero keeps
	// the original contract: no timeout, a hung function hangs its
	// request.
	CallTimeout time.Duration
}

// Call runs one request through the state machine against expCtx and
// returns the JSON-encoded result. Errors are the package taxonomy; the
// handler maps them to HTTP statuses.
func (d *Dispatcher) Call(ctx context.Context, expCtx *experiment.Context, req *datatypes.CallRequest) (json.RawMessage, error) {
	if d.Metrics != nil {
		d.Metrics.ActiveCalls.Inc()
		defer d.Metrics.ActiveCalls.Dec()
	}

	// Gate check. One snapshot; see the package comment for the accepted
	// stop-mid-call race.
	active, ok := d.Gate.Active()
	if !ok {
		return nil, d.rejected(expCtx, req, &GateConflictError{
			Detail: "No active experiment. Start one from the landing page.",
		})
	}
	if active != expCtx.Name {
		return nil, d.rejected(expCtx, req, &GateConflictError{
			Detail: fmt.Sprintf("Experiment '%s' is active. Open that UI or stop it first.", active),
		})
	}
	if req.ExperimentName != "" && req.ExperimentName != expCtx.Name {
		return nil, d.rejected(expCtx, req, &GateConflictError{
			Detail: fmt.Sprintf("Mismatched experiment context. Expected '%s', got '%s'.", expCtx.Name, req.ExperimentName),
		})
	}

	// Registry check, against one snapshot for the whole call. Malformed
	// names are rejected before the lookup so registry keys stay clean
	// identifiers.
	if err := validation.ValidateFuncName(req.FuncName); err != nil {
		return nil, d.rejected(expCtx, req, &ValidationError{Detail: err.Error()})
	}
	fn, ok := expCtx.Registry.Snapshot().Lookup(req.FuncName)
	if !ok {
		return nil, d.rejected(expCtx, req, &NotFoundError{
			Detail: fmt.Sprintf("Function '%s' not found", req.FuncName),
		})
	}

	// Roster check. This is the student access-control gate; there is no
	// per-student password.
	registered, err := expCtx.Storage.StudentExists(req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("roster check: %w", err)
	}
	if !registered {
		return nil, d.rejected(expCtx, req, &ForbiddenError{
			Detail: fmt.Sprintf("Invalid student ID '%s'", req.StudentID),
		})
	}

	args, err := decodeArgs(req.Args)
	if err != nil {
		return nil, d.rejected(expCtx, req, err)
	}

	start := time.Now()
	result, invokeErr := d.invoke(ctx, fn, args)
	if d.Metrics != nil {
		d.Metrics.CallDurationSeconds.WithLabelValues(expCtx.Name, fn.Name).Observe(time.Since(start).Seconds())
	}

	// Logged state: reached for every attempted invocation, both outcomes.
	trial := req.TrialLabel()
	argsJSON := encodeForLog(req.Args)
	if invokeErr != nil {
		msg := invokeErr.Error()
		if logErr := expCtx.Storage.LogEvent(req.StudentID, expCtx.Name, trial, req.FuncName, argsJSON, nil, &msg); logErr != nil {
			slog.Error("failed to log errored invocation", "experiment", expCtx.Name, "func", req.FuncName, "error", logErr)
		}
		d.count(expCtx.Name, req.FuncName, "error")
		d.countRow(expCtx.Name, "error")
		return nil, &ExecutionError{Cause: invokeErr}
	}

	encoded, err := registry.EncodeResult(result)
	if err != nil {
		// A value the codec cannot round-trip still gets audited, as an
		// error row.
		msg := fmt.Sprintf("unencodable result: %v", err)
		if logErr := expCtx.Storage.LogEvent(req.StudentID, expCtx.Name, trial, req.FuncName, argsJSON, nil, &msg); logErr != nil {
			slog.Error("failed to log unencodable result", "experiment", expCtx.Name, "func", req.FuncName, "error", logErr)
		}
		d.count(expCtx.Name, req.FuncName, "error")
		d.countRow(expCtx.Name, "error")
		return nil, &ExecutionError{Cause: fmt.Errorf("%s", msg)}
	}

	if err := expCtx.Storage.LogEvent(req.StudentID, expCtx.Name, trial, req.FuncName, argsJSON, encoded, nil); err != nil {
		// The invocation succeeded but the audit trail did not. Surfacing
		// the failure keeps "every invocation is logged" honest.
		return nil, fmt.Errorf("logging invocation: %w", err)
	}
	d.count(expCtx.Name, req.FuncName, "ok")
	d.countRow(expCtx.Name, "result")
	return encoded, nil
}

// invoke evaluates the function, optionally bounded by CallTimeout.
func (d *Dispatcher) invoke(ctx context.Context, fn *registry.Function, args []cty.Value) (cty.Value, error) {
	if d.CallTimeout <= 0 {
		return fn.Call(args)
	}

	type outcome struct {
		val cty.Value
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn.Call(args)
		done <- outcome{val: val, err: err}
	}()

	timer := time.NewTimer(d.CallTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		return cty.NilVal, ctx.Err()
	case <-timer.C:
		// The goroutine keeps running to completion; evaluation cannot be
		// cancelled mid-expression.
		return cty.NilVal, fmt.Errorf("invocation exceeded %s timeout", d.CallTimeout)
	}
}

// rejected records a pre-invocation rejection in the metrics (never in the
// log store) and passes the error through.
func (d *Dispatcher) rejected(expCtx *experiment.Context, req *datatypes.CallRequest, err error) error {
	d.count(expCtx.Name, req.FuncName, "rejected")
	return err
}

func (d *Dispatcher) count(experimentName, funcName, status string) {
	if d.Metrics != nil {
		d.Metrics.CallsTotal.WithLabelValues(experimentName, funcName, status).Inc()
	}
}

func (d *Dispatcher) countRow(experimentName, outcome string) {
	if d.Metrics != nil {
		d.Metrics.LogRowsTotal.WithLabelValues(experimentName, outcome).Inc()
	}
}

// decodeArgs bounds-checks the positional arguments and converts them to
// cty values. All failures are ValidationErrors: rejected before
// invocation, never logged as an execution attempt.
func decodeArgs(raw []json.RawMessage) ([]cty.Value, error) {
	if len(raw) > MaxArgs {
		return nil, &ValidationError{Detail: fmt.Sprintf("too many arguments: %d (max %d)", len(raw), MaxArgs)}
	}
	total := 0
	for _, arg := range raw {
		total += len(arg)
	}
	if total > MaxArgsBytes {
		return nil, &ValidationError{Detail: fmt.Sprintf("arguments too large: %d bytes (max %d)", total, MaxArgsBytes)}
	}

	args := make([]cty.Value, len(raw))
	for i, arg := range raw {
		if depth := jsonDepth(arg); depth > MaxArgDepth {
			return nil, &ValidationError{Detail: fmt.Sprintf("argument %d nested too deeply (max depth %d)", i, MaxArgDepth)}
		}
		v, err := registry.DecodeArg(arg)
		if err != nil {
			return nil, &ValidationError{Detail: fmt.Sprintf("argument %d: %v", i, err)}
		}
		args[i] = v
	}
	return args, nil
}

// jsonDepth measures bracket nesting, skipping string contents.
func jsonDepth(raw []byte) int {
	depth, maxDepth := 0, 0
	inString, escaped := false, false
	for _, b := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}', ']':
			depth--
		}
	}
	return maxDepth
}

// encodeForLog serializes the raw argument list for the audit row,
// best-effort: arguments that fail to assemble are recorded as a quoted
// string rather than dropped.
func encodeForLog(raw []json.RawMessage) json.RawMessage {
	encoded, err := json.Marshal(raw)
	if err == nil {
		return encoded
	}
	quoted, err := json.Marshal(fmt.Sprintf("%v", raw))
	if err == nil {
		return quoted
	}
	return json.RawMessage("null")
}
