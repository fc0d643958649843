// Package executor runs a single tool invocation end to end: ledger check,
// registry resolution and validation, bounded handler execution and result
// normalization. It never returns an error to the caller; every failure is
// folded into a failed ToolCallResult so the transcript always gets a reply.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/relance/pkg/agent/ledger"
	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/metrics"
	"github.com/entrhq/relance/pkg/types"
)

// DefaultTimeout bounds a single handler call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/entrhq/relance/pkg/agent/executor"

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("executor")
	if err != nil {
		debugLog.Warnf("Failed to initialize executor logger, using stderr fallback: %v", err)
	}
}

// Executor executes tool calls. It is safe for concurrent use; the ledger is
// the only shared mutable state it touches.
type Executor struct {
	ledger   *ledger.Ledger
	registry *tools.Registry
	timeout  time.Duration
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds each handler call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMetrics records execution outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithTracerProvider sets the provider used for execution spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor backed by the given ledger and registry.
func New(l *ledger.Ledger, r *tools.Registry, opts ...Option) *Executor {
	e := &Executor{
		ledger:   l,
		registry: r,
		timeout:  DefaultTimeout,
		tracer:   otel.Tracer(tracerName),
		logger:   debugLog,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req on behalf of auth as part of batchID.
//
// The steps are, in order: cancellation check, id presence, ledger check-and-record,
// tool resolution, argument validation, handler call under a timeout with
// panic recovery. The first failing step determines the result code.
func (e *Executor) Execute(ctx context.Context, req types.ToolInvocationRequest, auth tools.AuthContext, batchID string) *types.ToolCallResult {
	ctx, span := e.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", req.ToolName),
		attribute.String("tool.call_id", req.ID),
		attribute.String("batch.id", batchID),
	))
	defer span.End()

	result := e.execute(ctx, req, auth, batchID)

	span.SetAttributes(attribute.Bool("tool.success", result.Success))
	if !result.Success {
		span.SetAttributes(attribute.String("tool.error_code", string(result.Code())))
		span.SetStatus(codes.Error, result.Error.Message)
	}
	e.metrics.RecordToolResult(req.ToolName, string(result.Code()))
	return result
}

func (e *Executor) execute(ctx context.Context, req types.ToolInvocationRequest, auth tools.AuthContext, batchID string) *types.ToolCallResult {
	if err := ctx.Err(); err != nil {
		return types.NewErrorResult(req, types.CodeCancelled, fmt.Sprintf("tool call not started: %v", err))
	}

	// an empty id would burn the shared "" slot in the ledger
	if strings.TrimSpace(req.ID) == "" {
		e.logger.Warnf("Rejected %s call without an id", req.ToolName)
		return types.NewErrorResult(req, types.CodeInvalidArguments, "tool call has no id")
	}

	if err := e.ledger.CheckAndRecord(req, batchID); err != nil {
		return e.denied(req, err)
	}

	tool, err := e.registry.Resolve(req.ToolName)
	if err != nil {
		e.logger.Warnf("Tool call %s: %v", req.ID, err)
		return types.NewErrorResult(req, types.CodeToolNotFound, err.Error())
	}

	if err := e.registry.Validate(req.ToolName, req.ArgumentsJSON); err != nil {
		e.logger.Warnf("Tool call %s: %v", req.ID, err)
		return types.NewErrorResult(req, types.CodeInvalidArguments, err.Error())
	}

	started := time.Now()
	output, err := e.invoke(ctx, tool, req, auth)
	e.metrics.ObserveToolDuration(req.ToolName, time.Since(started))

	if err != nil {
		if ctx.Err() != nil {
			return types.NewErrorResult(req, types.CodeCancelled, err.Error())
		}
		e.logger.Errorf("Tool %s (%s) failed: %v", req.ToolName, req.ID, err)
		return types.NewErrorResult(req, types.CodeExecutionError, err.Error())
	}

	payload, err := encodePayload(output)
	if err != nil {
		e.logger.Errorf("Tool %s (%s) returned an unencodable result: %v", req.ToolName, req.ID, err)
		return types.NewErrorResult(req, types.CodeExecutionError, fmt.Sprintf("tool result could not be encoded: %v", err))
	}

	e.logger.Debugf("Tool %s (%s) succeeded in %s", req.ToolName, req.ID, time.Since(started))
	return types.NewSuccessResult(req, payload)
}

// denied maps a ledger denial to the anti-loop result code.
func (e *Executor) denied(req types.ToolInvocationRequest, err error) *types.ToolCallResult {
	code := types.CodeAntiLoopID
	var denial *ledger.Denial
	if errors.As(err, &denial) && denial.Reason == types.CodeDuplicateSignature {
		code = types.CodeAntiLoopSignature
	}
	e.metrics.RecordDenial(string(code))
	return types.NewErrorResult(req, code, err.Error())
}

type outcome struct {
	value interface{}
	err   error
}

// invoke calls the handler on its own goroutine so a handler that ignores
// its context cannot hold the batch past the timeout.
func (e *Executor) invoke(ctx context.Context, tool tools.Tool, req types.ToolInvocationRequest, auth tools.AuthContext) (interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", req.ToolName, r)}
			}
		}()
		value, err := tool.Handle(callCtx, req.ArgumentsJSON, auth)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tool %s cancelled: %w", req.ToolName, err)
		}
		return nil, fmt.Errorf("tool %s timed out after %s", req.ToolName, e.timeout)
	}
}

// encodePayload turns handler output into a JSON document.
func encodePayload(output interface{}) (json.RawMessage, error) {
	switch v := output.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("raw payload is not valid JSON")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}
