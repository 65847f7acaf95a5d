// Package mcpserver wires the nine dispatch tools and two browse resources
// to the MCP protocol surface via AddTool/AddResource registration.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"

	"mdmemory/internal/dispatch"
	"mdmemory/internal/filestore"
	"mdmemory/internal/mdsection"
	"mdmemory/internal/types"
)

// Build constructs an MCP server with all nine batch tools, the two
// memory:// resources, and the prompt templates registered against d.
func Build(name, version string, d *dispatch.Dispatcher) *server.Server {
	srv := mcp.NewServer(name, version)
	registerTools(srv, d)
	registerResources(srv, d)
	registerPrompts(srv, d)
	return srv
}

// batchResponse is the wire envelope every tool returns: the per-item
// results in input order plus summary counts so callers don't have to
// re-scan the array to learn whether anything failed.
type batchResponse struct {
	Results   []dispatch.Result `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

func respond(results []dispatch.Result) batchResponse {
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	return batchResponse{Results: results, Succeeded: len(results) - failed, Failed: failed}
}

func registerTools(srv *server.Server, d *dispatch.Dispatcher) {
	srv.AddTool(mcp.NewTool(
		"files",
		"Create, read, update, delete, move, copy, rename, or list markdown memory files. Takes op and an array of items; returns one result per item.",
		mcp.ObjectSchema("files tool parameters", map[string]interface{}{
			"op": mcp.StringParam("One of create, read, update, delete, move, copy, rename, list", true),
			"items": mcp.ArraySchema("Batch items; required fields depend on op", map[string]interface{}{
				"type": "object",
			}),
		}, []string{"op", "items"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		op, items, err := decodeOpItems[fileItemParams](params)
		if err != nil {
			return nil, err
		}
		batch := make([]dispatch.FileItem, len(items))
		for i, it := range items {
			batch[i] = it.toFileItem()
		}
		return respond(d.Files(ctx, dispatch.FileOp(op), batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"search",
		"Run one or more hybrid (vector + fulltext, RRF-fused) search queries against the memory tree.",
		mcp.ObjectSchema("search tool parameters", map[string]interface{}{
			"queries": mcp.ArraySchema("Search queries", map[string]interface{}{"type": "object"}),
		}, []string{"queries"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var queries []searchQueryParams
		if err := decodeParam(params, "queries", &queries); err != nil {
			return nil, err
		}
		batch := make([]dispatch.SearchQuery, len(queries))
		for i, q := range queries {
			batch[i] = q.toSearchQuery()
		}
		return respond(d.Search(ctx, batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"edit",
		"Apply section-replace, find/replace, or insert edits to existing memory files.",
		mcp.ObjectSchema("edit tool parameters", map[string]interface{}{
			"operations": mcp.ArraySchema("Edit operations", map[string]interface{}{"type": "object"}),
		}, []string{"operations"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var ops []editOpParams
		if err := decodeParam(params, "operations", &ops); err != nil {
			return nil, err
		}
		batch := make([]dispatch.EditOperation, len(ops))
		for i, op := range ops {
			batch[i] = op.toEditOperation()
		}
		return respond(d.Edit(ctx, batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"tags",
		"Add, remove, or get a file's tag set.",
		mcp.ObjectSchema("tags tool parameters", map[string]interface{}{
			"op": mcp.StringParam("One of add, remove, get", true),
			"items": mcp.ArraySchema("Batch items: {file_path, tags}", map[string]interface{}{
				"type": "object",
			}),
		}, []string{"op", "items"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		op, items, err := decodeOpItems[tagItemParams](params)
		if err != nil {
			return nil, err
		}
		batch := make([]dispatch.TagItem, len(items))
		for i, it := range items {
			batch[i] = dispatch.TagItem{FilePath: it.FilePath, Tags: it.Tags}
		}
		return respond(d.Tags(ctx, dispatch.TagOp(op), batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"main",
		"Append to main.md, or add/complete/remove entries in its Goals, Tasks, or Plans sections.",
		mcp.ObjectSchema("main tool parameters", map[string]interface{}{
			"op": mcp.StringParam("One of append, goal, task, plan", true),
			"items": mcp.ArraySchema("Batch items: {text, action?}", map[string]interface{}{
				"type": "object",
			}),
		}, []string{"op", "items"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		op, items, err := decodeOpItems[mainItemParams](params)
		if err != nil {
			return nil, err
		}
		batch := make([]dispatch.MainItem, len(items))
		for i, it := range items {
			batch[i] = dispatch.MainItem{Text: it.Text, Action: it.Action}
		}
		return respond(d.Main(ctx, dispatch.MainOp(op), batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"memory",
		"Initialize the memory tree (create main.md and files_index.json if absent) or reset it to base state.",
		mcp.ObjectSchema("memory tool parameters", map[string]interface{}{
			"op": mcp.StringParam("One of initialize, reset", true),
		}, []string{"op"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		op, _ := params["op"].(string)
		return respond(d.Memory(ctx, dispatch.MemoryOp(op))), nil
	}))

	srv.AddTool(mcp.NewTool(
		"extract",
		"Return the body of a named section from one or more files.",
		mcp.ObjectSchema("extract tool parameters", map[string]interface{}{
			"requests": mcp.ArraySchema("Requests: {file_path, section_header}", map[string]interface{}{
				"type": "object",
			}),
		}, []string{"requests"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var reqs []extractReqParams
		if err := decodeParam(params, "requests", &reqs); err != nil {
			return nil, err
		}
		batch := make([]dispatch.ExtractRequest, len(reqs))
		for i, r := range reqs {
			batch[i] = dispatch.ExtractRequest{FilePath: r.FilePath, SectionHeader: r.SectionHeader}
		}
		return respond(d.Extract(ctx, batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"list",
		"List all files (flat and category tree) or a single file's section outline.",
		mcp.ObjectSchema("list tool parameters", map[string]interface{}{
			"requests": mcp.ArraySchema("Requests: {kind, file_path?}", map[string]interface{}{
				"type": "object",
			}),
		}, []string{"requests"}),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var reqs []listReqParams
		if err := decodeParam(params, "requests", &reqs); err != nil {
			return nil, err
		}
		batch := make([]dispatch.ListRequest, len(reqs))
		for i, r := range reqs {
			batch[i] = dispatch.ListRequest{Kind: dispatch.ListKind(r.Kind), FilePath: r.FilePath}
		}
		return respond(d.List(ctx, batch)), nil
	}))

	srv.AddTool(mcp.NewTool(
		"help",
		"Return documentation for one of the nine tools, or an overview when topic is omitted.",
		mcp.ObjectSchema("help tool parameters", map[string]interface{}{
			"topic": mcp.StringParam("Tool name, or empty for the overview", false),
		}, nil),
	), mcp.ToolHandlerFunc(func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		topic, _ := params["topic"].(string)
		return respond(d.Help(ctx, topic)), nil
	}))
}

func registerResources(srv *server.Server, d *dispatch.Dispatcher) {
	srv.AddResource(
		mcp.NewResource("memory://main", "Main Memory File", "main.md in full", "text/markdown"),
		mcp.ResourceHandlerFunc(func(ctx context.Context, uri string) ([]protocol.Content, error) {
			_, content, err := d.FileStore.Read("main.md")
			if err != nil {
				return nil, err
			}
			return []protocol.Content{{Type: "text", Text: string(content)}}, nil
		}),
	)

	srv.AddResource(
		mcp.NewResource("memory://file/{path}", "Memory File", "An individual memory file's contents, by path", "text/markdown"),
		mcp.ResourceHandlerFunc(func(ctx context.Context, uri string) ([]protocol.Content, error) {
			path, err := filePathFromURI(uri)
			if err != nil {
				return nil, err
			}
			_, content, err := d.FileStore.Read(path)
			if err != nil {
				return nil, err
			}
			return []protocol.Content{{Type: "text", Text: string(content)}}, nil
		}),
	)
}

// promptTemplates are the four guidance prompts the server advertises.
// The instructional text itself is deliberately short; clients render it
// verbatim into their own context.
var promptTemplates = []struct {
	name        string
	description string
	args        []protocol.PromptArgument
	render      func(d *dispatch.Dispatcher, args map[string]interface{}) string
}{
	{
		name:        "remember_conversation",
		description: "Store the important points of a conversation as memory files",
		args: []protocol.PromptArgument{
			mcp.NewPromptArgument("summary", "What the conversation covered", true),
		},
		render: func(d *dispatch.Dispatcher, args map[string]interface{}) string {
			summary, _ := args["summary"].(string)
			return "Store this conversation in memory. Create a file in the " +
				"conversation category via files(create), tag it with the main " +
				"topics via tags(add), and update main.md's Tasks section if any " +
				"follow-ups came out of it.\n\nConversation summary:\n" + summary
		},
	},
	{
		name:        "recall_context",
		description: "Retrieve memory relevant to a topic before answering",
		args: []protocol.PromptArgument{
			mcp.NewPromptArgument("topic", "What to recall memory about", true),
		},
		render: func(d *dispatch.Dispatcher, args map[string]interface{}) string {
			topic, _ := args["topic"].(string)
			return "Before answering, run search([{query: \"" + topic + "\", " +
				"search_mode: \"hybrid\"}]) and read memory://main. Ground your " +
				"answer in what the memory tree already records about this topic."
		},
	},
	{
		name:        "memory_usage_guide",
		description: "How the nine memory tools fit together",
		render: func(d *dispatch.Dispatcher, args map[string]interface{}) string {
			results := d.Help(context.Background(), "")
			if len(results) == 1 && results[0].OK {
				if text, ok := results[0].Value.(string); ok {
					return text
				}
			}
			return "Use help() for tool documentation."
		},
	},
	{
		name:        "active_memory_usage",
		description: "Keep memory current while working",
		render: func(d *dispatch.Dispatcher, args map[string]interface{}) string {
			return "While working: record new facts with files(create) or " +
				"edit(), keep main.md's Goals/Tasks/Plans current with main(), " +
				"and search before assuming something isn't already recorded. " +
				"Writes report sync_pending; searches may lag a write until the " +
				"reconcile completes."
		},
	},
}

func registerPrompts(srv *server.Server, d *dispatch.Dispatcher) {
	for _, p := range promptTemplates {
		p := p
		srv.AddPrompt(
			mcp.NewPrompt(p.name, p.description, p.args),
			mcp.PromptHandlerFunc(func(ctx context.Context, args map[string]interface{}) ([]protocol.Content, error) {
				return []protocol.Content{{Type: "text", Text: p.render(d, args)}}, nil
			}),
		)
	}
}

const filePrefix = "memory://file/"

func filePathFromURI(uri string) (string, error) {
	if len(uri) <= len(filePrefix) || uri[:len(filePrefix)] != filePrefix {
		return "", fmt.Errorf("malformed memory://file/ uri: %s", uri)
	}
	return uri[len(filePrefix):], nil
}

// decodeParam re-marshals params[key] into out via JSON, the simplest way
// to turn an MCP tool call's map[string]interface{} payload into our typed
// batch item structs.
func decodeParam(params map[string]interface{}, key string, out interface{}) error {
	raw, ok := params[key]
	if !ok {
		return fmt.Errorf("missing required parameter %q", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode parameter %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode parameter %q: %w", key, err)
	}
	return nil
}

func decodeOpItems[T any](params map[string]interface{}) (string, []T, error) {
	op, _ := params["op"].(string)
	if op == "" {
		return "", nil, fmt.Errorf("missing required parameter %q", "op")
	}
	var items []T
	if err := decodeParam(params, "items", &items); err != nil {
		return "", nil, err
	}
	return op, items, nil
}

type fileItemParams struct {
	FilePath    string `json:"file_path"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	UpdateMode  string `json:"update_mode"`
	NewCategory string `json:"new_category"`
	NewTitle    string `json:"new_title"`
}

func (p fileItemParams) toFileItem() dispatch.FileItem {
	return dispatch.FileItem{
		FilePath:    p.FilePath,
		Category:    types.Category(p.Category),
		Title:       p.Title,
		Content:     p.Content,
		UpdateMode:  filestore.UpdateMode(p.UpdateMode),
		NewCategory: types.Category(p.NewCategory),
		NewTitle:    p.NewTitle,
	}
}

type searchQueryParams struct {
	Query          string   `json:"query"`
	SearchMode     string   `json:"search_mode"`
	Limit          *int     `json:"limit"`
	FilePath       string   `json:"file_path"`
	CategoryFilter []string `json:"category_filter"`
	TagFilter      []string `json:"tag_filter"`
}

// toSearchQuery distinguishes an omitted limit (use the configured default)
// from an explicit limit of 0 (return no hits), which a plain `int`
// field can't: both would otherwise decode to the Go zero value.
func (p searchQueryParams) toSearchQuery() dispatch.SearchQuery {
	cats := make([]types.Category, len(p.CategoryFilter))
	for i, c := range p.CategoryFilter {
		cats[i] = types.Category(c)
	}
	limit := dispatch.UnsetLimit
	if p.Limit != nil {
		limit = *p.Limit
	}
	return dispatch.SearchQuery{
		Query:          p.Query,
		SearchMode:     types.SearchMode(p.SearchMode),
		Limit:          limit,
		FilePath:       p.FilePath,
		CategoryFilter: cats,
		TagFilter:      p.TagFilter,
	}
}

type editOpParams struct {
	FilePath        string `json:"file_path"`
	EditType        string `json:"edit_type"`
	SectionHeader   string `json:"section_header"`
	SectionMode     string `json:"section_mode"`
	Find            string `json:"find"`
	Replace         string `json:"replace"`
	Regex           bool   `json:"regex"`
	MaxReplacements int    `json:"max_replacements"`
	Position        string `json:"position"`
	Marker          string `json:"marker"`
	Text            string `json:"text"`
}

func (p editOpParams) toEditOperation() dispatch.EditOperation {
	return dispatch.EditOperation{
		FilePath:        p.FilePath,
		EditType:        dispatch.EditType(p.EditType),
		SectionHeader:   p.SectionHeader,
		SectionMode:     mdsection.Mode(p.SectionMode),
		Find:            p.Find,
		Replace:         p.Replace,
		Regex:           p.Regex,
		MaxReplacements: p.MaxReplacements,
		Position:        mdsection.InsertPosition(p.Position),
		Marker:          p.Marker,
		Text:            p.Text,
	}
}

type tagItemParams struct {
	FilePath string   `json:"file_path"`
	Tags     []string `json:"tags"`
}

type mainItemParams struct {
	Text   string `json:"text"`
	Action string `json:"action"`
}

type extractReqParams struct {
	FilePath      string `json:"file_path"`
	SectionHeader string `json:"section_header"`
}

type listReqParams struct {
	Kind     string `json:"kind"`
	FilePath string `json:"file_path"`
}
