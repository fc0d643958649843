// Package agent implements the relance controller: the turn-taking loop that
// sends the conversation to a model, runs the tool calls it requests through
// the batch scheduler, feeds the results back and decides when to stop.
//
// A turn starts with one user message and ends in one of two terminal states:
//   - StateFinalAnswer: the model answered without tool calls
//   - StateForcedFinal: the relance budget or the anti-loop breaker stopped it
//
// Example usage:
//
//	ctrl := agent.New(client, registry, scheduler,
//	    agent.WithRelanceBudget(5),
//	    agent.WithEventHandler(func(ev *types.AgentEvent) { log.Println(ev.Type) }),
//	)
//	conv := history.NewConversation()
//	result, err := ctrl.Run(ctx, conv, "Create a Recipes folder", tools.AuthContext{Principal: "u1"})
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/relance/pkg/agent/batch"
	"github.com/entrhq/relance/pkg/agent/history"
	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/llm"
	"github.com/entrhq/relance/pkg/llm/tokenizer"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/metrics"
	"github.com/entrhq/relance/pkg/types"
)

const (
	// DefaultRelanceBudget is the number of tool-call rounds allowed per user message.
	DefaultRelanceBudget = 5

	// DefaultMaxHistory is the number of plain messages sent to the model.
	DefaultMaxHistory = 50

	tracerName = "github.com/entrhq/relance/pkg/agent"
)

// ErrNilConversation is returned when Run is called without a conversation.
var ErrNilConversation = errors.New("conversation is nil")

var agentDebugLog *logging.Logger

func init() {
	var err error
	agentDebugLog, err = logging.NewLogger("agent")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		agentDebugLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

// Controller runs relance turns. It holds no per-conversation state and may
// serve several conversations, but a single conversation must not be used by
// two concurrent Run calls.
type Controller struct {
	client    llm.Client
	registry  *tools.Registry
	scheduler *batch.Scheduler

	systemPrompt   string
	relanceBudget  int
	maxHistory     int
	antiLoopRounds int

	tokenizer *tokenizer.Tokenizer
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *logging.Logger
	onEvent   func(*types.AgentEvent)
	newID     func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithSystemPrompt replaces DefaultSystemPrompt. An empty prompt sends none.
func WithSystemPrompt(prompt string) Option {
	return func(c *Controller) {
		c.systemPrompt = prompt
	}
}

// WithRelanceBudget sets the maximum number of tool-call rounds per user
// message. Negative values keep the default; zero forbids tool execution.
func WithRelanceBudget(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.relanceBudget = n
		}
	}
}

// WithMaxHistory sets how many plain messages are sent to the model.
// Zero sends the whole stored transcript.
func WithMaxHistory(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxHistory = n
		}
	}
}

// WithAntiLoopRounds stops a turn after n consecutive rounds in which every
// call was refused by the ledger. Zero disables the breaker.
func WithAntiLoopRounds(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.antiLoopRounds = n
		}
	}
}

// WithTokenizer enables prompt size estimates in api_call_start events.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(c *Controller) {
		c.tokenizer = tok
	}
}

// WithMetrics records turn and relance metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracerProvider sets the provider used for turn spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Controller) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEventHandler receives every event of every turn. Events are delivered
// synchronously and never concurrently.
func WithEventHandler(fn func(*types.AgentEvent)) Option {
	return func(c *Controller) {
		c.onEvent = fn
	}
}

// New creates a controller. The registry supplies the tool definitions sent
// to the model; the scheduler executes the calls.
func New(client llm.Client, registry *tools.Registry, scheduler *batch.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		client:        client,
		registry:      registry,
		scheduler:     scheduler,
		systemPrompt:  DefaultSystemPrompt,
		relanceBudget: DefaultRelanceBudget,
		maxHistory:    DefaultMaxHistory,
		tracer:        otel.Tracer(tracerName),
		logger:        agentDebugLog,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TurnResult describes a finished turn.
type TurnResult struct {
	// State is StateFinalAnswer or StateForcedFinal.
	State State

	// Content is the answer appended to the conversation.
	Content string

	// Reason is set for forced finals.
	Reason types.ErrorCode

	// Rounds is the number of tool-call rounds executed.
	Rounds int

	// BatchIDs lists the logical batch id of each executed round.
	BatchIDs []string

	// Results holds every tool result of the turn, in execution order.
	Results []*types.ToolCallResult

	// Usage sums the token usage reported by the model.
	Usage llm.Usage
}

// turn is the mutable state of one Run call.
type turn struct {
	round        int
	deniedStreak int
	result       *TurnResult
}

// Run processes one user message until a terminal state is reached.
//
// Per-call failures never surface as errors; they are tool results the model
// sees. Run returns an error only when the model client fails, the context is
// cancelled, or the conversation rejects a message. In every case the
// transcript keeps each tool-calls message paired with all of its results.
func (c *Controller) Run(ctx context.Context, conv *history.Conversation, input string, auth tools.AuthContext) (*TurnResult, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	ctx, span := c.tracer.Start(ctx, "relance.turn", trace.WithAttributes(
		attribute.String("llm.model", c.client.Model()),
		attribute.Int("relance.budget", c.relanceBudget),
	))
	defer span.End()

	if err := conv.Append(types.NewUserMessage(input)); err != nil {
		return nil, c.fail(span, metrics.OutcomeError, fmt.Errorf("failed to append user message: %w", err))
	}
	c.emit(types.NewTurnStartEvent(input))

	t := &turn{result: &TurnResult{}}
	for {
		if err := ctx.Err(); err != nil {
			return nil, c.fail(span, metrics.OutcomeCancelled, fmt.Errorf("turn cancelled: %w", err))
		}

		resp, err := c.callModel(ctx, conv, t.round)
		if err != nil {
			outcome := metrics.OutcomeError
			if ctx.Err() != nil {
				outcome = metrics.OutcomeCancelled
			}
			return nil, c.fail(span, outcome, fmt.Errorf("model call failed at round %d: %w", t.round, err))
		}
		t.result.Usage.PromptTokens += resp.Usage.PromptTokens
		t.result.Usage.CompletionTokens += resp.Usage.CompletionTokens

		tr := Decide(Observation{
			Round:          t.round,
			ToolCalls:      len(resp.ToolCalls),
			Budget:         c.relanceBudget,
			DeniedStreak:   t.deniedStreak,
			AntiLoopRounds: c.antiLoopRounds,
		})
		c.logger.Debugf("Round %d: %d tool calls -> %s", t.round, len(resp.ToolCalls), tr.Next)

		switch tr.Next {
		case StateFinalAnswer:
			content := restitute(resp.Content, t.result.Results)
			return c.finish(span, conv, t, StateFinalAnswer, "", content)

		case StateForcedFinal:
			c.logger.Warnf("Forcing final answer at round %d (%s), dropping %d tool calls", t.round, tr.Reason, len(resp.ToolCalls))
			content := truncationNotice(tr.Reason, t.result.Rounds, t.result.Results)
			c.emit(types.NewForcedFinalEvent(t.round, tr.Reason, content))
			return c.finish(span, conv, t, StateForcedFinal, tr.Reason, content)

		case StateExecutingTools:
			if err := c.executeTools(ctx, conv, t, resp.ToolCalls, auth); err != nil {
				outcome := metrics.OutcomeError
				if ctx.Err() != nil {
					outcome = metrics.OutcomeCancelled
				}
				return nil, c.fail(span, outcome, err)
			}
		}
	}
}

// callModel sends the bounded transcript to the model.
func (c *Controller) callModel(ctx context.Context, conv *history.Conversation, round int) (*llm.Response, error) {
	messages := conv.GetBounded(c.maxHistory)
	promptTokens := c.tokenizer.CountMessagesTokens(messages) + c.tokenizer.CountTokens(c.systemPrompt)
	c.emit(types.NewAPICallStartEvent(round, len(messages), promptTokens))

	start := time.Now()
	resp, err := c.client.Send(ctx, &llm.Request{
		SystemPrompt: c.systemPrompt,
		Messages:     messages,
		Tools:        c.registry.Definitions(),
	})
	c.metrics.ObserveModelCall(time.Since(start))
	c.emit(types.NewAPICallEndEvent(round))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &llm.Response{}
	}
	if resp.Thinking != "" {
		c.logger.Debugf("Round %d thinking: %s", round, resp.Thinking)
	}
	return resp, nil
}

// executeTools runs one round of tool calls and appends the exchange.
func (c *Controller) executeTools(ctx context.Context, conv *history.Conversation, t *turn, calls []types.ToolInvocationRequest, auth tools.AuthContext) error {
	batchID := c.newID()
	round := t.round
	results := c.scheduler.RunAll(ctx, batchID, calls, auth, func(ev *types.AgentEvent) {
		ev.Round = round
		c.emit(ev)
	})

	// The exchange goes in even when ctx was cancelled mid-round: every call
	// has a result, cancelled ones included.
	if err := conv.AppendExchange(calls, results); err != nil {
		return fmt.Errorf("failed to append tool exchange: %w", err)
	}

	t.result.Rounds++
	t.result.BatchIDs = append(t.result.BatchIDs, batchID)
	t.result.Results = append(t.result.Results, results...)

	if allDenied(results) {
		t.deniedStreak++
	} else {
		t.deniedStreak = 0
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("turn cancelled during round %d: %w", round, err)
	}

	t.round++
	c.metrics.RecordRelance()
	c.emit(types.NewRelanceEvent(t.round))
	return nil
}

// finish appends the final answer and closes the turn.
func (c *Controller) finish(span trace.Span, conv *history.Conversation, t *turn, state State, reason types.ErrorCode, content string) (*TurnResult, error) {
	if err := conv.Append(types.NewAssistantMessage(content)); err != nil {
		return nil, c.fail(span, metrics.OutcomeError, fmt.Errorf("failed to append final answer: %w", err))
	}

	t.result.State = state
	t.result.Reason = reason
	t.result.Content = content

	outcome := metrics.OutcomeFinal
	if state == StateForcedFinal {
		outcome = metrics.OutcomeForced
		span.SetAttributes(attribute.String("relance.forced_reason", string(reason)))
	}
	c.metrics.RecordTurn(outcome)
	span.SetAttributes(
		attribute.String("relance.state", state.String()),
		attribute.Int("relance.rounds", t.result.Rounds),
	)
	c.emit(types.NewTurnEndEvent(t.round, content))
	c.logger.Infof("Turn finished: %s after %d rounds, %d tool results", state, t.result.Rounds, len(t.result.Results))
	return t.result, nil
}

// fail records a turn-fatal error.
func (c *Controller) fail(span trace.Span, outcome string, err error) error {
	c.metrics.RecordTurn(outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.emit(types.NewErrorEvent(err))
	c.logger.Errorf("Turn failed: %v", err)
	return err
}

func (c *Controller) emit(ev *types.AgentEvent) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func allDenied(results []*types.ToolCallResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.IsAntiLoopDenial() {
			return false
		}
	}
	return true
}
