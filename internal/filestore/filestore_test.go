package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

func TestCreate_DerivesSlugAndTitle(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryProject, "My New Project!", "# My New Project!\n\nDetails.\n")
	require.NoError(t, err)
	assert.Equal(t, "project/my_new_project.md", mf.FilePath)
	assert.Equal(t, "My New Project!", mf.Title)
	assert.Equal(t, "my_new_project", mf.Slug)
	assert.Equal(t, types.CategoryProject, mf.Category)
}

func TestCreate_RejectsDuplicatePath(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Create(types.CategoryConcept, "Idea", "body")
	require.NoError(t, err)

	_, err = s.Create(types.CategoryConcept, "Idea", "other body")
	require.Error(t, err)
	assert.Equal(t, memerr.AlreadyExists, memerr.KindOf(err))
}

func TestCreate_RejectsInvalidCategory(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Create(types.Category("bogus"), "X", "body")
	require.Error(t, err)
	assert.Equal(t, memerr.InvalidArgument, memerr.KindOf(err))
}

func TestRead_NotFound(t *testing.T) {
	s := New(t.TempDir())
	_, _, err := s.Read("project/missing.md")
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

func TestRead_ComputesWordCountAndHash(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "# Idea\n\none two three\n")
	require.NoError(t, err)
	assert.Equal(t, 4, mf.WordCount)
	assert.NotEmpty(t, mf.ContentHash)

	reread, content, err := s.Read(mf.FilePath)
	require.NoError(t, err)
	assert.Equal(t, mf.ContentHash, reread.ContentHash)
	assert.Contains(t, string(content), "one two three")
}

func TestUpdate_AppendAndReplace(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "# Idea\n\nfirst\n")
	require.NoError(t, err)

	updated, err := s.Update(mf.FilePath, UpdateAppend, "second")
	require.NoError(t, err)
	_, content, _ := s.Read(updated.FilePath)
	assert.Contains(t, string(content), "first")
	assert.Contains(t, string(content), "second")

	replaced, err := s.Update(mf.FilePath, UpdateReplace, "only this")
	require.NoError(t, err)
	_, content, _ = s.Read(replaced.FilePath)
	assert.Equal(t, "only this", string(content))
}

func TestDelete_EmitsChangeEventAndRemovesFile(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "body")
	require.NoError(t, err)

	var events []types.ChangeEvent
	s.OnChange(func(ev types.ChangeEvent) { events = append(events, ev) })

	require.NoError(t, s.Delete(mf.FilePath))
	assert.False(t, s.Exists(mf.FilePath))
	require.Len(t, events, 1)
	assert.True(t, events[0].Deleted)
	assert.Equal(t, mf.FilePath, events[0].FilePath)
}

func TestMutate_RejectsConcurrentInterleavingBySerializing(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "base")
	require.NoError(t, err)

	_, err = s.Mutate(mf.FilePath, func(cur string) (string, error) {
		return cur + "-mutated", nil
	})
	require.NoError(t, err)

	_, content, err := s.Read(mf.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "base-mutated", string(content))
}

func TestMutate_PropagatesFnError(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "base")
	require.NoError(t, err)

	_, err = s.Mutate(mf.FilePath, func(string) (string, error) {
		return "", memerr.New(memerr.NotFound, "section not found")
	})
	require.Error(t, err)

	_, content, _ := s.Read(mf.FilePath)
	assert.Equal(t, "base", string(content))
}

func TestMove_RelocatesToNewCategory(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "body")
	require.NoError(t, err)

	moved, err := s.Move(mf.FilePath, types.CategoryProject)
	require.NoError(t, err)
	assert.Equal(t, "project/idea.md", moved.FilePath)
	assert.False(t, s.Exists(mf.FilePath))
	assert.True(t, s.Exists(moved.FilePath))
}

func TestCopy_LeavesSourceIntact(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Idea", "body")
	require.NoError(t, err)

	copied, err := s.Copy(mf.FilePath, types.CategoryProject, "Idea Copy")
	require.NoError(t, err)
	assert.True(t, s.Exists(mf.FilePath))
	assert.Equal(t, "project/idea_copy.md", copied.FilePath)
}

func TestRename_UpdatesSlugAndTitle(t *testing.T) {
	s := New(t.TempDir())
	mf, err := s.Create(types.CategoryConcept, "Old Title", "body")
	require.NoError(t, err)

	renamed, err := s.Rename(mf.FilePath, "New Title")
	require.NoError(t, err)
	assert.Equal(t, "concept/new_title.md", renamed.FilePath)
	assert.Equal(t, "New Title", renamed.Title)
}

func TestList_ReturnsFlatAndTree(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Create(types.CategoryConcept, "A", "body")
	require.NoError(t, err)
	_, err = s.Create(types.CategoryProject, "B", "body")
	require.NoError(t, err)

	flat, tree, err := s.List()
	require.NoError(t, err)
	assert.Len(t, flat, 2)
	assert.Len(t, tree[types.CategoryConcept], 1)
	assert.Len(t, tree[types.CategoryProject], 1)
}

func TestList_ExcludesMainSentinel(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Create(types.CategoryMain, "Memory", "# Memory\n")
	require.NoError(t, err)
	_, err = s.Create(types.CategoryConcept, "Idea", "body")
	require.NoError(t, err)

	flat, tree, err := s.List()
	require.NoError(t, err)
	require.Len(t, flat, 1)
	assert.Equal(t, "concept/idea.md", flat[0].FilePath)
	assert.Empty(t, tree[types.CategoryMain])
}

func TestEnsureRoot_CreatesCategoryDirectories(t *testing.T) {
	root := t.TempDir() + "/nested"
	s := New(root)
	require.NoError(t, s.EnsureRoot())
	assert.True(t, s.Exists("")) // root itself via Stat("") resolves to root dir
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello_world", Slugify("Hello, World!"))
	assert.Equal(t, "untitled", Slugify("###"))
}
