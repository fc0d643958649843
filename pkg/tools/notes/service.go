// Package notes is an in-memory notes and folders service exposed to the
// model as tools: create_note, create_folder and list_notes.
//
// Every operation is scoped to the principal of the caller's auth context.
// Calls without a principal are rejected.
package notes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnauthenticated is returned when the caller has no principal.
	ErrUnauthenticated = errors.New("an authenticated principal is required")

	// ErrFolderNotFound is returned when a note targets an unknown folder.
	ErrFolderNotFound = errors.New("folder not found")
)

// Service stores notes and folders per owner. It is safe for concurrent use.
type Service struct {
	mu      sync.RWMutex
	notes   map[string]*Note
	folders map[string]*Folder
	now     func() time.Time
}

// NewService creates an empty service.
func NewService() *Service {
	return &Service{
		notes:   make(map[string]*Note),
		folders: make(map[string]*Folder),
		now:     time.Now,
	}
}

// CreateFolder adds a folder for owner. Folder names need not be unique.
func (s *Service) CreateFolder(owner, name string) (*Folder, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if err := ValidateTitle("folder name", name); err != nil {
		return nil, err
	}

	f := &Folder{ID: newFolderID(), OwnerID: owner, Name: name, CreatedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[f.ID] = f
	return f, nil
}

// CreateNote adds a note for owner. Notes with identical titles are allowed.
func (s *Service) CreateNote(owner string, in NoteInput) (*Note, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	title := strings.TrimSpace(in.Title)
	if err := ValidateTitle("note title", title); err != nil {
		return nil, err
	}
	if err := ValidateContent(in.Content); err != nil {
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.FolderID != "" {
		f, ok := s.folders[in.FolderID]
		if !ok || f.OwnerID != owner {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, in.FolderID)
		}
	}

	now := s.now()
	n := &Note{
		ID:        newNoteID(),
		OwnerID:   owner,
		FolderID:  in.FolderID,
		Title:     title,
		Content:   in.Content,
		Tags:      normalizeTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notes[n.ID] = n
	return n, nil
}

// ListOptions configures ListNotes.
type ListOptions struct {
	FolderID string `json:"folder_id"` // Only notes in this folder (optional)
	Tag      string `json:"tag"`       // Only notes with this tag (optional)
	Query    string `json:"query"`     // Case-insensitive match on title or content (optional)
	Limit    int    `json:"limit"`     // Maximum notes to return (default: 20)
}

// ListNotes returns owner's notes, most recently updated first.
func (s *Service) ListNotes(owner string, opts ListOptions) ([]*Note, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Note
	for _, n := range s.notes {
		if n.OwnerID != owner {
			continue
		}
		if opts.FolderID != "" && n.FolderID != opts.FolderID {
			continue
		}
		if opts.Tag != "" && !n.HasTag(opts.Tag) {
			continue
		}
		if !n.ContainsText(opts.Query) {
			continue
		}
		result = append(result, n)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	if len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Folders returns owner's folders sorted by name.
func (s *Service) Folders(owner string) []*Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Folder
	for _, f := range s.folders {
		if f.OwnerID == owner {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Count returns the number of notes stored for owner.
func (s *Service) Count(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, note := range s.notes {
		if note.OwnerID == owner {
			n++
		}
	}
	return n
}
