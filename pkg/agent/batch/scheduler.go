// Package batch runs the tool calls of one model response in bounded-size
// chunks. Calls inside a chunk run concurrently; chunks run one after another
// with a pause in between. Results always come back in request order.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/metrics"
	"github.com/entrhq/relance/pkg/types"
)

const (
	// DefaultMaxBatchSize is the chunk size used when none is configured.
	DefaultMaxBatchSize = 10

	// DefaultPause is the delay inserted between chunks.
	DefaultPause = 250 * time.Millisecond

	tracerName = "github.com/entrhq/relance/pkg/agent/batch"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("batch")
	if err != nil {
		debugLog.Warnf("Failed to initialize batch logger, using stderr fallback: %v", err)
	}
}

// Runner executes a single tool call. *executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, req types.ToolInvocationRequest, auth tools.AuthContext, batchID string) *types.ToolCallResult
}

// EventFunc receives scheduler events. It may be called from several
// goroutines but never concurrently.
type EventFunc func(*types.AgentEvent)

// Scheduler partitions and runs tool calls.
type Scheduler struct {
	runner       Runner
	maxBatchSize int
	pause        time.Duration
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	logger       *logging.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxBatchSize sets the chunk size. Non-positive values keep the default.
func WithMaxBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithPause sets the delay between chunks. Negative values keep the default.
func WithPause(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.pause = d
		}
	}
}

// WithMetrics records chunk metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithTracerProvider sets the provider used for chunk spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scheduler dispatching to runner.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:       runner,
		maxBatchSize: DefaultMaxBatchSize,
		pause:        DefaultPause,
		tracer:       otel.Tracer(tracerName),
		logger:       debugLog,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBatchSize returns the configured chunk size.
func (s *Scheduler) MaxBatchSize() int {
	return s.maxBatchSize
}

// Partition splits requests into consecutive chunks of at most size
// elements. The chunks share the backing array of requests.
func Partition(requests []types.ToolInvocationRequest, size int) [][]types.ToolInvocationRequest {
	if size <= 0 {
		size = DefaultMaxBatchSize
	}
	chunks := make([][]types.ToolInvocationRequest, 0, (len(requests)+size-1)/size)
	for start := 0; start < len(requests); start += size {
		end := min(start+size, len(requests))
		chunks = append(chunks, requests[start:end:end])
	}
	return chunks
}

// RunAll executes every request and returns exactly one result per request,
// in request order. A failed call never stops its siblings or later chunks.
//
// When ctx is cancelled, the chunk in flight completes with whatever its
// handlers return and every request that was not started receives a
// CANCELLED result. emit may be nil.
func (s *Scheduler) RunAll(ctx context.Context, batchID string, requests []types.ToolInvocationRequest, auth tools.AuthContext, emit EventFunc) []*types.ToolCallResult {
	results := make([]*types.ToolCallResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	var emitMu sync.Mutex
	send := func(ev *types.AgentEvent) {
		if emit == nil {
			return
		}
		emitMu.Lock()
		defer emitMu.Unlock()
		emit(ev)
	}

	chunks := Partition(requests, s.maxBatchSize)
	s.logger.Debugf("Batch %s: %d calls in %d chunks of at most %d", batchID, len(requests), len(chunks), s.maxBatchSize)

	offset := 0
	for i, chunk := range chunks {
		if i > 0 {
			if err := s.wait(ctx); err != nil {
				s.logger.Warnf("Batch %s cancelled before chunk %d/%d: %v", batchID, i+1, len(chunks), err)
				s.cancelRemaining(requests, results, offset, err, send)
				return results
			}
		}

		info := types.BatchInfo{BatchID: batchID, Chunk: i, Chunks: len(chunks), Size: len(chunk)}
		s.runChunk(ctx, info, chunk, auth, results[offset:offset+len(chunk)], send)
		offset += len(chunk)
	}
	return results
}

// runChunk runs every call of a chunk concurrently and waits for all of them.
func (s *Scheduler) runChunk(ctx context.Context, info types.BatchInfo, chunk []types.ToolInvocationRequest, auth tools.AuthContext, out []*types.ToolCallResult, send EventFunc) {
	ctx, span := s.tracer.Start(ctx, "batch.chunk", trace.WithAttributes(
		attribute.String("batch.id", info.BatchID),
		attribute.Int("batch.chunk", info.Chunk),
		attribute.Int("batch.size", info.Size),
	))
	defer span.End()

	s.metrics.RecordChunk(len(chunk))
	send(types.NewBatchStartEvent(info))

	var g errgroup.Group
	for i, req := range chunk {
		send(types.NewToolCallEvent(0, req))
		g.Go(func() error {
			result := s.runner.Execute(ctx, req, auth, info.BatchID)
			if result == nil {
				result = types.NewErrorResult(req, types.CodeExecutionError, "tool runner returned no result")
			}
			out[i] = result
			send(types.NewToolResultEvent(0, result))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range out {
		if !r.Success {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))
	send(types.NewBatchEndEvent(info))
}

// wait sleeps for the inter-chunk pause unless ctx ends first.
func (s *Scheduler) wait(ctx context.Context) error {
	if s.pause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) cancelRemaining(requests []types.ToolInvocationRequest, results []*types.ToolCallResult, from int, cause error, send EventFunc) {
	for i := from; i < len(requests); i++ {
		results[i] = types.NewErrorResult(requests[i], types.CodeCancelled, fmt.Sprintf("tool call not started: %v", cause))
		send(types.NewToolResultEvent(0, results[i]))
	}
}
