package notes

import (
	"context"
	"fmt"

	"github.com/entrhq/relance/pkg/agent/tools"
)

// Register adds every notes tool to registry.
func Register(registry *tools.Registry, svc *Service) error {
	for _, tool := range []tools.Tool{
		NewCreateNoteTool(svc),
		NewCreateFolderTool(svc),
		NewListNotesTool(svc),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	return nil
}

// CreateNoteTool creates a note.
type CreateNoteTool struct {
	svc *Service
}

// NewCreateNoteTool creates a new CreateNoteTool.
func NewCreateNoteTool(svc *Service) *CreateNoteTool {
	return &CreateNoteTool{svc: svc}
}

// Name returns the tool name.
func (t *CreateNoteTool) Name() string {
	return "create_note"
}

// Description returns the tool description.
func (t *CreateNoteTool) Description() string {
	return "Create a note with a title and optional content, folder and tags. Returns the new note id."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *CreateNoteTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Note title",
				"minLength":   1,
				"maxLength":   MaxTitleLength,
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Note body",
			},
			"folder_id": map[string]interface{}{
				"type":        "string",
				"description": "Id of the folder to file the note in, as returned by create_folder",
			},
			"tags": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Optional tags for organizing the note",
				"maxItems":    MaxTags,
			},
		},
		[]string{"title"},
	)
}

// Handle creates the note for the authenticated principal.
func (t *CreateNoteTool) Handle(ctx context.Context, argumentsJSON string, auth tools.AuthContext) (interface{}, error) {
	var input NoteInput
	if err := tools.DecodeArguments(argumentsJSON, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	note, err := t.svc.CreateNote(auth.Principal, input)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":          note.ID,
		"title":       note.Title,
		"folder_id":   note.FolderID,
		"total_notes": t.svc.Count(auth.Principal),
	}, nil
}

// CreateFolderTool creates a folder.
type CreateFolderTool struct {
	svc *Service
}

// NewCreateFolderTool creates a new CreateFolderTool.
func NewCreateFolderTool(svc *Service) *CreateFolderTool {
	return &CreateFolderTool{svc: svc}
}

// Name returns the tool name.
func (t *CreateFolderTool) Name() string {
	return "create_folder"
}

// Description returns the tool description.
func (t *CreateFolderTool) Description() string {
	return "Create a folder for organizing notes. Returns the new folder id."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *CreateFolderTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Folder name",
				"minLength":   1,
				"maxLength":   MaxTitleLength,
			},
		},
		[]string{"name"},
	)
}

// Handle creates the folder for the authenticated principal.
func (t *CreateFolderTool) Handle(ctx context.Context, argumentsJSON string, auth tools.AuthContext) (interface{}, error) {
	var input struct {
		Name string `json:"name"`
	}
	if err := tools.DecodeArguments(argumentsJSON, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	folder, err := t.svc.CreateFolder(auth.Principal, input.Name)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":   folder.ID,
		"name": folder.Name,
	}, nil
}

// ListNotesTool lists notes.
type ListNotesTool struct {
	svc *Service
}

// NewListNotesTool creates a new ListNotesTool.
func NewListNotesTool(svc *Service) *ListNotesTool {
	return &ListNotesTool{svc: svc}
}

// Name returns the tool name.
func (t *ListNotesTool) Name() string {
	return "list_notes"
}

// Description returns the tool description.
func (t *ListNotesTool) Description() string {
	return "List notes, most recently updated first, optionally filtered by folder, tag or text."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ListNotesTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"folder_id": map[string]interface{}{
				"type":        "string",
				"description": "Only list notes in this folder",
			},
			"tag": map[string]interface{}{
				"type":        "string",
				"description": "Only list notes with this tag",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Case-insensitive text to match in title or content",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of notes to return (default 20)",
				"minimum":     1,
				"maximum":     100,
			},
		},
		nil,
	)
}

// noteSummary is the list_notes view of a note; content is omitted.
type noteSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	FolderID string   `json:"folder_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Handle lists the authenticated principal's notes.
func (t *ListNotesTool) Handle(ctx context.Context, argumentsJSON string, auth tools.AuthContext) (interface{}, error) {
	var opts ListOptions
	if err := tools.DecodeArguments(argumentsJSON, &opts); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	found, err := t.svc.ListNotes(auth.Principal, opts)
	if err != nil {
		return nil, err
	}

	out := make([]noteSummary, 0, len(found))
	for _, n := range found {
		out = append(out, noteSummary{ID: n.ID, Title: n.Title, FolderID: n.FolderID, Tags: n.Tags})
	}
	return map[string]interface{}{
		"notes": out,
		"count": len(out),
	}, nil
}
