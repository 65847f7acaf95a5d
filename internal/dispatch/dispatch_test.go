package dispatch

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdmemory/internal/filestore"
	"mdmemory/internal/jsonindex"
	"mdmemory/internal/logging"
	"mdmemory/internal/memory"
	"mdmemory/internal/types"
)

func TestMain(m *testing.M) {
	logging.SetDefaultLogger(logging.NewNoOpLogger())
	os.Exit(m.Run())
}

// newTestDispatcher builds a file-only Dispatcher (no Search/Sync backend),
// mirroring cmd/server/main.go's build() with USE_DATABASE=false.
func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	root := t.TempDir()
	files := filestore.New(root)
	index := jsonindex.New(root)
	mgr := memory.New(files, index, noopEnqueuer{})
	require.NoError(t, mgr.Initialize(context.Background()))

	return &Dispatcher{
		FileStore: files,
		Index:     index,
		MemoryMgr: mgr,
	}
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(string) {}

// A batch files(create, [...]) call persists
// valid items and reports a per-item InvalidArgument for a bad category,
// without aborting the rest of the batch.
func TestFiles_BatchCreate_IsolatesPerItemFailure(t *testing.T) {
	d := newTestDispatcher(t)

	results := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\nAlpha.\n"},
		{Category: types.Category("bogus"), Title: "Bad", Content: "x"},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, "InvalidArgument", results[1].Error.Kind)

	path := results[0].Value.(FileResultValue).File.FilePath
	mf, _, err := d.FileStore.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 2, mf.WordCount)
}

func TestFiles_Read_RoundTripsContent(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryConcept, Title: "Round Trip", Content: "# Round Trip\n\nbody text\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	read := d.Files(context.Background(), FileRead, []FileItem{{FilePath: path}})
	require.True(t, read[0].OK)
}

// files(read) must surface tags set via tags(add): the File Store derives
// its record from file bytes alone, so the read path has to go through the
// Memory Manager's JSON Index overlay.
func TestFiles_Read_SurfacesTagsFromIndex(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\nAlpha.\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	add := d.Tags(context.Background(), TagAdd, []TagItem{{FilePath: path, Tags: []string{"x", "y"}}})
	require.True(t, add[0].OK)

	mf, _, err := d.MemoryMgr.Read(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, mf.Tags)

	read := d.Files(context.Background(), FileRead, []FileItem{{FilePath: path}})
	require.True(t, read[0].OK)
	val := read[0].Value.(struct {
		*types.MemoryFile
		Content string `json:"content"`
	})
	assert.ElementsMatch(t, []string{"x", "y"}, val.Tags)
}

func TestFiles_Rename_OldPathNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryConcept, Title: "Old Title", Content: "# Old Title\n\nbody\n"},
	})
	require.True(t, create[0].OK)
	oldPath := create[0].Value.(FileResultValue).File.FilePath

	rename := d.Files(context.Background(), FileRename, []FileItem{
		{FilePath: oldPath, NewTitle: "New Title"},
	})
	require.True(t, rename[0].OK)
	newPath := rename[0].Value.(FileResultValue).File.FilePath
	assert.NotEqual(t, oldPath, newPath)

	readOld := d.Files(context.Background(), FileRead, []FileItem{{FilePath: oldPath}})
	assert.False(t, readOld[0].OK)
	assert.Equal(t, "NotFound", readOld[0].Error.Kind)

	readNew := d.Files(context.Background(), FileRead, []FileItem{{FilePath: newPath}})
	assert.True(t, readNew[0].OK)
}

// find_replace edits rewrite file content in place.
func TestEdit_FindReplace_RewritesContent(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\nAlpha.\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	results := d.Edit(context.Background(), []EditOperation{
		{FilePath: path, EditType: EditFindReplace, Find: "Alpha", Replace: "Beta"},
	})
	require.True(t, results[0].OK)

	_, content, err := d.FileStore.Read(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Beta")
	assert.NotContains(t, string(content), "Alpha")
}

func TestEdit_FindReplace_EmptyFindIsInvalidArgument(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\nAlpha.\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	results := d.Edit(context.Background(), []EditOperation{
		{FilePath: path, EditType: EditFindReplace, Find: "", Replace: "x"},
	})
	require.False(t, results[0].OK)
	assert.Equal(t, "InvalidArgument", results[0].Error.Kind)
}

func TestEdit_Section_NotFoundWhenHeaderAbsent(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\nAlpha.\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	results := d.Edit(context.Background(), []EditOperation{
		{FilePath: path, EditType: EditSection, SectionHeader: "## Nope", Text: "body"},
	})
	require.False(t, results[0].OK)
	assert.Equal(t, "NotFound", results[0].Error.Kind)
}

// Tags are a set; add is idempotent and remove of
// an absent tag is a no-op success.
func TestTags_AddIsIdempotentAndGetReturnsSet(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\nAlpha.\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	add1 := d.Tags(context.Background(), TagAdd, []TagItem{{FilePath: path, Tags: []string{"x", "y"}}})
	require.True(t, add1[0].OK)
	add2 := d.Tags(context.Background(), TagAdd, []TagItem{{FilePath: path, Tags: []string{"x"}}})
	require.True(t, add2[0].OK)

	get := d.Tags(context.Background(), TagGet, []TagItem{{FilePath: path}})
	require.True(t, get[0].OK)
	assert.Equal(t, []string{"x", "y"}, get[0].Value.(TagResultValue).Tags)

	removeAbsent := d.Tags(context.Background(), TagRemove, []TagItem{{FilePath: path, Tags: []string{"z"}}})
	require.True(t, removeAbsent[0].OK)
	assert.Equal(t, []string{"x", "y"}, removeAbsent[0].Value.(TagResultValue).Tags)

	removeOne := d.Tags(context.Background(), TagRemove, []TagItem{{FilePath: path, Tags: []string{"x"}}})
	require.True(t, removeOne[0].OK)
	assert.Equal(t, []string{"y"}, removeOne[0].Value.(TagResultValue).Tags)
}

// Reset on a tree with files leaves only the base
// state, and a follow-up list reports zero files.
func TestMemory_Reset_LeavesBaseStateOnly(t *testing.T) {
	d := newTestDispatcher(t)
	for i := 0; i < 5; i++ {
		res := d.Files(context.Background(), FileCreate, []FileItem{
			{Category: types.CategoryConcept, Title: "Idea", Content: "body"},
		})
		require.True(t, res[0].OK)
	}

	reset := d.Memory(context.Background(), MemoryReset)
	require.True(t, reset[0].OK)

	list := d.List(context.Background(), []ListRequest{{Kind: ListFiles}})
	require.True(t, list[0].OK)
	assert.Equal(t, 0, list[0].Value.(ListFilesValue).Total)
}

func TestMain_Goal_AddCompleteMovesToCompletedSection(t *testing.T) {
	d := newTestDispatcher(t)

	add := d.Main(context.Background(), MainGoal, []MainItem{{Text: "Ship it", Action: string(GoalAdd)}})
	require.True(t, add[0].OK)

	_, content, err := d.FileStore.Read(types.MainFilePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "- Ship it")

	complete := d.Main(context.Background(), MainGoal, []MainItem{{Text: "Ship it", Action: string(GoalComplete)}})
	require.True(t, complete[0].OK)

	_, content2, err := d.FileStore.Read(types.MainFilePath)
	require.NoError(t, err)
	assert.Contains(t, string(content2), "completed")
}

func TestMain_Goal_CompleteAbsentEntryIsNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.Main(context.Background(), MainGoal, []MainItem{{Text: "Never added", Action: string(GoalComplete)}})
	require.False(t, results[0].OK)
	assert.Equal(t, "NotFound", results[0].Error.Kind)
}

func TestExtract_ReturnsSectionBody(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\n## Status\n\nOn track.\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	results := d.Extract(context.Background(), []ExtractRequest{{FilePath: path, SectionHeader: "## Status"}})
	require.True(t, results[0].OK)
	assert.Contains(t, results[0].Value.(ExtractResultValue).Content, "On track.")
}

// Search tools must surface StorageUnavailable, not panic, when the
// Dispatcher has no SearchEngine wired (file-only mode).
func TestSearch_FileOnlyMode_ReturnsStorageUnavailable(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.Search(context.Background(), []SearchQuery{{Query: "anything", SearchMode: types.SearchHybrid, Limit: UnsetLimit}})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, "StorageUnavailable", results[0].Error.Kind)
}

func TestList_Sections_ReturnsHeaderOutline(t *testing.T) {
	d := newTestDispatcher(t)
	create := d.Files(context.Background(), FileCreate, []FileItem{
		{Category: types.CategoryProject, Title: "P1", Content: "# P1\n\n## Status\n\nbody\n\n## Risks\n\nbody\n"},
	})
	require.True(t, create[0].OK)
	path := create[0].Value.(FileResultValue).File.FilePath

	results := d.List(context.Background(), []ListRequest{{Kind: ListSections, FilePath: path}})
	require.True(t, results[0].OK)
	outline := results[0].Value.(ListSectionsValue).Outline
	require.Len(t, outline, 3)
}

func TestHelp_ReturnsResultPerTopic(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.Help(context.Background(), "files")
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
}
