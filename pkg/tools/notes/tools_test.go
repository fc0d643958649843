package notes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/relance/pkg/agent/executor"
	"github.com/entrhq/relance/pkg/agent/ledger"
	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/types"
)

var alice = tools.AuthContext{Principal: "alice"}

func newExecutor(t *testing.T) (*executor.Executor, *Service) {
	t.Helper()
	registry, err := tools.NewRegistry(tools.WithRegistryLogger(logging.NewNopLogger("tools")))
	require.NoError(t, err)

	svc := NewService()
	require.NoError(t, Register(registry, svc))
	assert.Equal(t, []string{"create_folder", "create_note", "list_notes"}, registry.Names())

	l := ledger.New(ledger.WithTTL(time.Minute), ledger.WithLogger(logging.NewNopLogger("ledger")))
	return executor.New(l, registry, executor.WithLogger(logging.NewNopLogger("executor"))), svc
}

func decode(t *testing.T, r *types.ToolCallResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Payload, &out))
	return out
}

func TestTools_CreateFolderThenNote(t *testing.T) {
	exec, svc := newExecutor(t)
	ctx := context.Background()

	folder := exec.Execute(ctx, types.ToolInvocationRequest{ID: "t1", ToolName: "create_folder", ArgumentsJSON: `{"name":"Test1"}`}, alice, "b1")
	require.True(t, folder.Success, folder.Content())
	folderID := decode(t, folder)["id"].(string)

	note := exec.Execute(ctx, types.ToolInvocationRequest{
		ID:            "t2",
		ToolName:      "create_note",
		ArgumentsJSON: `{"title":"Soup","content":"leek","folder_id":"` + folderID + `","tags":["food"]}`,
	}, alice, "b1")
	require.True(t, note.Success, note.Content())
	assert.Equal(t, folderID, decode(t, note)["folder_id"])
	assert.EqualValues(t, 1, decode(t, note)["total_notes"])

	list := exec.Execute(ctx, types.ToolInvocationRequest{ID: "t3", ToolName: "list_notes", ArgumentsJSON: `{"tag":"food"}`}, alice, "b1")
	require.True(t, list.Success, list.Content())
	assert.EqualValues(t, 1, decode(t, list)["count"])
	assert.Equal(t, 1, svc.Count("alice"))
}

func TestTools_SchemaRejectsBadArguments(t *testing.T) {
	exec, _ := newExecutor(t)

	tests := []struct {
		name string
		req  types.ToolInvocationRequest
	}{
		{"missing title", types.ToolInvocationRequest{ID: "s1", ToolName: "create_note", ArgumentsJSON: `{}`}},
		{"title wrong type", types.ToolInvocationRequest{ID: "s2", ToolName: "create_note", ArgumentsJSON: `{"title":5}`}},
		{"empty folder name", types.ToolInvocationRequest{ID: "s3", ToolName: "create_folder", ArgumentsJSON: `{"name":""}`}},
		{"limit too large", types.ToolInvocationRequest{ID: "s4", ToolName: "list_notes", ArgumentsJSON: `{"limit":1000}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := exec.Execute(context.Background(), tt.req, alice, "b")
			assert.Equal(t, types.CodeInvalidArguments, r.Code())
		})
	}
}

func TestTools_RequirePrincipal(t *testing.T) {
	exec, _ := newExecutor(t)

	r := exec.Execute(context.Background(), types.ToolInvocationRequest{ID: "p1", ToolName: "create_folder", ArgumentsJSON: `{"name":"X"}`}, tools.AuthContext{}, "b")
	assert.Equal(t, types.CodeExecutionError, r.Code())
	assert.Contains(t, r.Error.Message, "principal")
}

func TestTools_IdenticalCallsInOneBatch(t *testing.T) {
	exec, svc := newExecutor(t)
	args := `{"title":"Coincidence"}`

	a := exec.Execute(context.Background(), types.ToolInvocationRequest{ID: "i1", ToolName: "create_note", ArgumentsJSON: args}, alice, "same")
	b := exec.Execute(context.Background(), types.ToolInvocationRequest{ID: "i2", ToolName: "create_note", ArgumentsJSON: args}, alice, "same")
	assert.True(t, a.Success)
	assert.True(t, b.Success)
	assert.Equal(t, 2, svc.Count("alice"))

	c := exec.Execute(context.Background(), types.ToolInvocationRequest{ID: "i3", ToolName: "create_note", ArgumentsJSON: args}, alice, "other")
	assert.Equal(t, types.CodeAntiLoopSignature, c.Code())
	assert.Equal(t, 2, svc.Count("alice"))
}
