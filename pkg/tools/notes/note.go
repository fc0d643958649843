package notes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTitleLength is the maximum number of characters in a note title or folder name.
	MaxTitleLength = 200

	// MaxContentLength is the maximum number of characters in a note body.
	MaxContentLength = 20000

	// MaxTags is the maximum number of tags per note.
	MaxTags = 10

	noteIDPrefix   = "note_"
	folderIDPrefix = "folder_"
)

// Note is a user note, optionally filed in a folder.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	FolderID  string    `json:"folder_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Folder groups notes.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteInput holds the fields a caller may set when creating a note.
type NoteInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	FolderID string   `json:"folder_id"`
	Tags     []string `json:"tags"`
}

func newNoteID() string {
	return noteIDPrefix + uuid.NewString()
}

func newFolderID() string {
	return folderIDPrefix + uuid.NewString()
}

// ValidateTitle checks a note title or folder name.
func ValidateTitle(kind, title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%s exceeds maximum length of %d characters (got %d)", kind, MaxTitleLength, len(title))
	}
	return nil
}

// ValidateContent checks a note body. Empty bodies are allowed.
func ValidateContent(content string) error {
	if len(content) > MaxContentLength {
		return fmt.Errorf(
			"note content exceeds maximum length of %d characters (got %d). "+
				"Please shorten the content or split into multiple notes",
			MaxContentLength, len(content),
		)
	}
	return nil
}

// ValidateTags checks the tag list.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("note allows at most %d tags (got %d)", MaxTags, len(tags))
	}
	for i, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tag at position %d is empty", i)
		}
	}
	return nil
}

// normalizeTags trims whitespace and converts tags to lowercase for consistency
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	normalized := make([]string, len(tags))
	for i, tag := range tags {
		normalized[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	return normalized
}

// HasTag checks if the note has a specific tag (case-insensitive)
func (n *Note) HasTag(tag string) bool {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	for _, t := range n.Tags {
		if t == normalized {
			return true
		}
	}
	return false
}

// ContainsText checks if the title or content contains the query (case-insensitive)
func (n *Note) ContainsText(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(n.Title), q) ||
		strings.Contains(strings.ToLower(n.Content), q)
}
