package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/entrhq/relance/pkg/agent/batch"
	"github.com/entrhq/relance/pkg/agent/executor"
	"github.com/entrhq/relance/pkg/agent/history"
	"github.com/entrhq/relance/pkg/agent/ledger"
	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/llm/modeltest"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/metrics"
	"github.com/entrhq/relance/pkg/types"
)

var testAuth = tools.AuthContext{Principal: "user-1"}

type harness struct {
	registry *tools.Registry
	ledger   *ledger.Ledger
	metrics  *metrics.Metrics
	spans    *tracetest.SpanRecorder
	tp       *sdktrace.TracerProvider
	executed atomic.Int32

	mu     sync.Mutex
	events []*types.AgentEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	registry, err := tools.NewRegistry(tools.WithRegistryLogger(logging.NewNopLogger("tools")))
	require.NoError(t, err)

	h := &harness{
		registry: registry,
		ledger:   ledger.New(ledger.WithTTL(time.Minute), ledger.WithLogger(logging.NewNopLogger("ledger"))),
		metrics:  metrics.New(prometheus.NewRegistry()),
		spans:    tracetest.NewSpanRecorder(),
	}
	h.tp = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	t.Cleanup(func() { _ = h.tp.Shutdown(context.Background()) })

	schema := tools.BaseToolSchema(map[string]interface{}{
		"name": map[string]interface{}{"type": "string"},
	}, []string{"name"})
	require.NoError(t, registry.RegisterFunc("create_folder", "Create a folder", schema,
		func(_ context.Context, args string, _ tools.AuthContext) (interface{}, error) {
			h.executed.Add(1)
			var in struct {
				Name string `json:"name"`
			}
			if err := tools.DecodeArguments(args, &in); err != nil {
				return nil, err
			}
			return map[string]string{"folder": in.Name}, nil
		}))
	return h
}

// controller wires a scheduler with no pause between chunks.
func (h *harness) controller(client *modeltest.Script, schedOpts []batch.Option, opts ...Option) *Controller {
	exec := executor.New(h.ledger, h.registry,
		executor.WithTimeout(time.Second),
		executor.WithLogger(logging.NewNopLogger("executor")),
		executor.WithTracerProvider(h.tp),
	)
	schedOpts = append([]batch.Option{
		batch.WithPause(0),
		batch.WithLogger(logging.NewNopLogger("batch")),
		batch.WithTracerProvider(h.tp),
	}, schedOpts...)
	sched := batch.New(exec, schedOpts...)

	opts = append([]Option{
		WithLogger(logging.NewNopLogger("agent")),
		WithMetrics(h.metrics),
		WithTracerProvider(h.tp),
		WithEventHandler(h.record),
	}, opts...)
	return New(client, h.registry, sched, opts...)
}

func (h *harness) record(ev *types.AgentEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *harness) eventsOf(typ types.AgentEventType) []*types.AgentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*types.AgentEvent
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func folderCall(id, name string) types.ToolInvocationRequest {
	return types.ToolInvocationRequest{ID: id, ToolName: "create_folder", ArgumentsJSON: fmt.Sprintf(`{"name":%q}`, name)}
}

func newConversation() *history.Conversation {
	return history.NewConversation(history.WithLogger(logging.NewNopLogger("history")))
}

func kinds(msgs []*types.Message) []types.MessageKind {
	out := make([]types.MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind()
	}
	return out
}

func TestRun_DirectAnswer(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(modeltest.Text("Hello! How can I help?"))
	conv := newConversation()

	result, err := h.controller(script, nil).Run(context.Background(), conv, "hi", testAuth)
	require.NoError(t, err)

	assert.Equal(t, StateFinalAnswer, result.State)
	assert.Equal(t, "Hello! How can I help?", result.Content)
	assert.Zero(t, result.Rounds)
	assert.Equal(t, []types.MessageKind{types.KindUser, types.KindAssistantText}, kinds(conv.Messages()))

	req := script.Requests()[0]
	assert.Equal(t, DefaultSystemPrompt, req.SystemPrompt)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "create_folder", req.Tools[0].Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeFinal)))
}

func TestRun_ToolRoundThenAnswer(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(
		modeltest.ToolCalls(folderCall("t1", "Test1"), folderCall("t2", "Test2")),
		modeltest.Text("Created Test1 and Test2."),
	)
	conv := newConversation()

	result, err := h.controller(script, nil).Run(context.Background(), conv, "make two folders", testAuth)
	require.NoError(t, err)

	assert.Equal(t, StateFinalAnswer, result.State)
	assert.Equal(t, 1, result.Rounds)
	require.Len(t, result.BatchIDs, 1)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "t1", result.Results[0].ToolCallID)
	assert.Equal(t, "t2", result.Results[1].ToolCallID)
	assert.EqualValues(t, 2, h.executed.Load())

	assert.Equal(t, []types.MessageKind{
		types.KindUser, types.KindAssistantToolCalls, types.KindToolResult, types.KindToolResult, types.KindAssistantText,
	}, kinds(conv.Messages()))
	assert.NoError(t, history.CheckPairing(conv.Messages()))

	// The relance sends the results back to the model.
	relance := script.Requests()[1]
	assert.Equal(t, []types.MessageKind{
		types.KindUser, types.KindAssistantToolCalls, types.KindToolResult, types.KindToolResult,
	}, kinds(relance.Messages))

	for _, ev := range h.eventsOf(types.EventTypeToolCall) {
		assert.Equal(t, 0, ev.Round)
	}
	relances := h.eventsOf(types.EventTypeRelance)
	require.Len(t, relances, 1)
	assert.Equal(t, 1, relances[0].Round)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RelanceRoundsTotal))
}

func TestRun_RelanceBudgetForcesFinal(t *testing.T) {
	h := newHarness(t)
	steps := make([]modeltest.Step, 0, 5)
	for i := 0; i < 5; i++ {
		steps = append(steps, modeltest.ToolCalls(folderCall(fmt.Sprintf("r%d", i), fmt.Sprintf("Folder%d", i))))
	}
	script := modeltest.NewScript(steps...)
	conv := newConversation()

	result, err := h.controller(script, nil, WithRelanceBudget(3)).Run(context.Background(), conv, "keep going", testAuth)
	require.NoError(t, err)

	assert.Equal(t, StateForcedFinal, result.State)
	assert.Equal(t, types.CodeRelanceBudgetExceeded, result.Reason)
	assert.Equal(t, 3, result.Rounds)
	assert.EqualValues(t, 3, h.executed.Load())
	assert.Contains(t, result.Content, "stopped after 3 rounds")

	// Round 4's request reached the model loop but was never executed.
	assert.Equal(t, 4, script.Calls())
	assert.Equal(t, 1, script.Remaining())
	assert.False(t, h.ledger.Seen("r3"))

	msgs := conv.Messages()
	assert.NoError(t, history.CheckPairing(msgs))
	last := msgs[len(msgs)-1]
	assert.Equal(t, types.KindAssistantText, last.Kind())
	assert.Equal(t, result.Content, last.Content)
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			assert.NotEqual(t, "r3", c.ID)
		}
	}

	forced := h.eventsOf(types.EventTypeForcedFinal)
	require.Len(t, forced, 1)
	assert.Equal(t, 3, forced[0].Round)
	assert.Equal(t, string(types.CodeRelanceBudgetExceeded), forced[0].Metadata["reason"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeForced)))
}

func TestRun_ZeroBudgetNeverExecutes(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(modeltest.ToolCalls(folderCall("z1", "Z")))

	result, err := h.controller(script, nil, WithRelanceBudget(0)).Run(context.Background(), newConversation(), "go", testAuth)
	require.NoError(t, err)
	assert.Equal(t, StateForcedFinal, result.State)
	assert.Zero(t, h.executed.Load())
}

func TestRun_AntiLoopBreaker(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(
		modeltest.ToolCalls(folderCall("a1", "Loop")),
		modeltest.ToolCalls(folderCall("a1", "Loop")), // replayed id, denied
		modeltest.ToolCalls(folderCall("a2", "Loop")), // breaker trips before this runs
		modeltest.Text("unreachable"),
	)
	conv := newConversation()

	result, err := h.controller(script, nil, WithAntiLoopRounds(1)).Run(context.Background(), conv, "loop", testAuth)
	require.NoError(t, err)

	assert.Equal(t, StateForcedFinal, result.State)
	assert.Equal(t, types.CodeAntiLoopExhausted, result.Reason)
	assert.Equal(t, 2, result.Rounds)
	assert.EqualValues(t, 1, h.executed.Load())
	require.Len(t, result.Results, 2)
	assert.Equal(t, types.CodeAntiLoopID, result.Results[1].Code())
	assert.NoError(t, history.CheckPairing(conv.Messages()))
}

func TestRun_DeniedCallsStillAnswered(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(
		modeltest.ToolCalls(folderCall("d1", "Dup")),
		modeltest.ToolCalls(folderCall("d2", "Dup")), // same signature, new batch
		modeltest.Text("The folder already exists."),
	)
	conv := newConversation()

	result, err := h.controller(script, nil).Run(context.Background(), conv, "dup", testAuth)
	require.NoError(t, err)

	assert.Equal(t, StateFinalAnswer, result.State)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, types.CodeAntiLoopSignature, result.Results[1].Code())
	assert.NotEqual(t, result.BatchIDs[0], result.BatchIDs[1])
	assert.NoError(t, history.CheckPairing(conv.Messages()))
}

func TestRun_RawJSONAnswerIsSummarized(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(
		modeltest.ToolCalls(folderCall("j1", "A")),
		modeltest.Text(`{"folder":"A"}`),
	)

	result, err := h.controller(script, nil).Run(context.Background(), newConversation(), "folder A", testAuth)
	require.NoError(t, err)
	assert.Equal(t, "Completed 1 action: create_folder.", result.Content)
}

func TestRun_ModelError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("provider down")
	script := modeltest.NewScript(modeltest.Fail(boom))
	conv := newConversation()

	result, err := h.controller(script, nil).Run(context.Background(), conv, "hi", testAuth)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []types.MessageKind{types.KindUser}, kinds(conv.Messages()))
	assert.Len(t, h.eventsOf(types.EventTypeError), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeError)))

	// The conversation stays usable for the next turn.
	script2 := modeltest.NewScript(modeltest.Text("back"))
	_, err = h.controller(script2, nil).Run(context.Background(), conv, "retry", testAuth)
	require.NoError(t, err)
}

func TestRun_CancelledMidBatchKeepsPairing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema := tools.BaseToolSchema(map[string]interface{}{}, nil)
	require.NoError(t, h.registry.RegisterFunc("abandon", "Cancels the session", schema,
		func(context.Context, string, tools.AuthContext) (interface{}, error) {
			cancel()
			return "ok", nil
		}))

	script := modeltest.NewScript(modeltest.ToolCalls(
		types.ToolInvocationRequest{ID: "c1", ToolName: "abandon"},
		folderCall("c2", "Never"),
	))
	conv := newConversation()

	ctrl := h.controller(script, []batch.Option{batch.WithMaxBatchSize(1), batch.WithPause(time.Hour)})
	result, err := ctrl.Run(ctx, conv, "go", testAuth)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	msgs := conv.Messages()
	assert.NoError(t, history.CheckPairing(msgs))
	require.Len(t, msgs, 4)
	assert.Equal(t, types.CodeCancelled, msgs[3].ToolResult.Code())
	assert.Zero(t, h.executed.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeCancelled)))
}

func TestRun_NilConversation(t *testing.T) {
	h := newHarness(t)
	_, err := h.controller(modeltest.NewScript(), nil).Run(context.Background(), nil, "hi", testAuth)
	assert.ErrorIs(t, err, ErrNilConversation)
}

func TestRun_HistoryIsBounded(t *testing.T) {
	h := newHarness(t)
	conv := newConversation()
	for i := 0; i < 10; i++ {
		require.NoError(t, conv.Append(types.NewUserMessage(fmt.Sprintf("old %d", i))))
		require.NoError(t, conv.Append(types.NewAssistantMessage("ok")))
	}
	script := modeltest.NewScript(modeltest.Text("fine"))

	_, err := h.controller(script, nil, WithMaxHistory(4)).Run(context.Background(), conv, "new", testAuth)
	require.NoError(t, err)

	sent := script.Requests()[0].Messages
	require.Len(t, sent, 4)
	assert.Equal(t, "new", sent[3].Content)
}

func TestRun_TurnSpan(t *testing.T) {
	h := newHarness(t)
	script := modeltest.NewScript(
		modeltest.ToolCalls(folderCall("s1", "S")),
		modeltest.Text("done"),
	)

	_, err := h.controller(script, nil).Run(context.Background(), newConversation(), "span", testAuth)
	require.NoError(t, err)

	var turn sdktrace.ReadOnlySpan
	names := map[string]int{}
	for _, s := range h.spans.Ended() {
		names[s.Name()]++
		if s.Name() == "relance.turn" {
			turn = s
		}
	}
	require.NotNil(t, turn)
	assert.Equal(t, 1, names["batch.chunk"])
	assert.Equal(t, 1, names["tool.execute"])

	attrs := map[string]interface{}{}
	for _, kv := range turn.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "final_answer", attrs["relance.state"])
	assert.EqualValues(t, 1, attrs["relance.rounds"])
}
