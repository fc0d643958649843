package modeltest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/relance/pkg/llm"
	"github.com/entrhq/relance/pkg/types"
)

var (
	_ llm.Client = (*Script)(nil)
	_ llm.Client = Func(nil)
)

func TestScript_ReplaysInOrder(t *testing.T) {
	call := types.ToolInvocationRequest{ID: "c1", ToolName: "create_folder", ArgumentsJSON: `{"name":"A"}`}
	s := NewScript(ToolCalls(call), Text("done"))
	ctx := context.Background()

	resp, err := s.Send(ctx, &llm.Request{Messages: []*types.Message{types.NewUserMessage("go")}})
	require.NoError(t, err)
	assert.Equal(t, []types.ToolInvocationRequest{call}, resp.ToolCalls)

	resp, err = s.Send(ctx, &llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, 0, s.Remaining())

	_, err = s.Send(ctx, &llm.Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 3, s.Calls())
}

func TestScript_RecordsSnapshots(t *testing.T) {
	s := NewScript(Text("a"))
	msgs := []*types.Message{types.NewUserMessage("one")}
	_, err := s.Send(context.Background(), &llm.Request{Messages: msgs})
	require.NoError(t, err)

	msgs = append(msgs, types.NewUserMessage("two"))
	_ = msgs

	reqs := s.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Messages, 1)
}

func TestScript_Fail(t *testing.T) {
	boom := errors.New("provider down")
	s := NewScript(Fail(boom))
	_, err := s.Send(context.Background(), &llm.Request{})
	assert.ErrorIs(t, err, boom)
}

func TestScript_CancelledContext(t *testing.T) {
	s := NewScript(Text("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Send(ctx, &llm.Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.Remaining())
}

func TestFunc(t *testing.T) {
	f := Func(func(_ context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: req.SystemPrompt}, nil
	})
	resp, err := f.Send(context.Background(), &llm.Request{SystemPrompt: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.Content)
	assert.Equal(t, "func", f.Model())
}
