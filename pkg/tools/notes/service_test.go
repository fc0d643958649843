package notes

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFolder(t *testing.T) {
	s := NewService()

	f, err := s.CreateFolder("alice", "  Recipes ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.ID, folderIDPrefix))
	assert.Equal(t, "Recipes", f.Name)
	assert.Equal(t, "alice", f.OwnerID)

	_, err = s.CreateFolder("", "Recipes")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.CreateFolder("alice", "   ")
	assert.ErrorContains(t, err, "cannot be empty")

	// Duplicate names are allowed and get distinct ids.
	f2, err := s.CreateFolder("alice", "Recipes")
	require.NoError(t, err)
	assert.NotEqual(t, f.ID, f2.ID)
	assert.Len(t, s.Folders("alice"), 2)
	assert.Empty(t, s.Folders("bob"))
}

func TestCreateNote(t *testing.T) {
	tests := []struct {
		name     string
		owner    string
		input    NoteInput
		errorMsg string
	}{
		{name: "valid", owner: "alice", input: NoteInput{Title: "Soup", Tags: []string{" Food "}}},
		{name: "no owner", owner: "", input: NoteInput{Title: "Soup"}, errorMsg: "principal"},
		{name: "empty title", owner: "alice", input: NoteInput{Title: ""}, errorMsg: "note title cannot be empty"},
		{name: "long content", owner: "alice", input: NoteInput{Title: "x", Content: strings.Repeat("a", MaxContentLength+1)}, errorMsg: "exceeds maximum length"},
		{name: "empty tag", owner: "alice", input: NoteInput{Title: "x", Tags: []string{"ok", " "}}, errorMsg: "tag at position 1"},
		{name: "unknown folder", owner: "alice", input: NoteInput{Title: "x", FolderID: "folder_nope"}, errorMsg: "folder not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService()
			note, err := s.CreateNote(tt.owner, tt.input)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(note.ID, noteIDPrefix))
			assert.Equal(t, []string{"food"}, note.Tags)
		})
	}
}

func TestCreateNote_FolderOwnership(t *testing.T) {
	s := NewService()
	f, err := s.CreateFolder("alice", "Private")
	require.NoError(t, err)

	_, err = s.CreateNote("bob", NoteInput{Title: "sneaky", FolderID: f.ID})
	assert.ErrorIs(t, err, ErrFolderNotFound)

	n, err := s.CreateNote("alice", NoteInput{Title: "mine", FolderID: f.ID})
	require.NoError(t, err)
	assert.Equal(t, f.ID, n.FolderID)
}

func TestCreateNote_IdenticalTitles(t *testing.T) {
	s := NewService()
	a, err := s.CreateNote("alice", NoteInput{Title: "Todo"})
	require.NoError(t, err)
	b, err := s.CreateNote("alice", NoteInput{Title: "Todo"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Count("alice"))
}

func TestListNotes(t *testing.T) {
	s := NewService()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	f, err := s.CreateFolder("alice", "Kitchen")
	require.NoError(t, err)
	_, err = s.CreateNote("alice", NoteInput{Title: "Soup", Content: "leek", FolderID: f.ID, Tags: []string{"food"}})
	require.NoError(t, err)
	_, err = s.CreateNote("alice", NoteInput{Title: "Taxes", Tags: []string{"admin"}})
	require.NoError(t, err)
	_, err = s.CreateNote("alice", NoteInput{Title: "Bread", Content: "flour, LEEK optional", Tags: []string{"food"}})
	require.NoError(t, err)
	_, err = s.CreateNote("bob", NoteInput{Title: "Bob's soup"})
	require.NoError(t, err)

	titles := func(notes []*Note) []string {
		out := make([]string, len(notes))
		for i, n := range notes {
			out[i] = n.Title
		}
		return out
	}

	all, err := s.ListNotes("alice", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bread", "Taxes", "Soup"}, titles(all))

	byFolder, err := s.ListNotes("alice", ListOptions{FolderID: f.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Soup"}, titles(byFolder))

	byTag, err := s.ListNotes("alice", ListOptions{Tag: "FOOD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bread", "Soup"}, titles(byTag))

	byQuery, err := s.ListNotes("alice", ListOptions{Query: "leek"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bread", "Soup"}, titles(byQuery))

	limited, err := s.ListNotes("alice", ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bread"}, titles(limited))

	_, err = s.ListNotes("", ListOptions{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
