package dispatch

import "context"

// helpTopics holds the static documentation strings for help(topic?).
// "help" is treated as the default topic (an overview of all nine tools).
var helpTopics = map[string]string{
	"help": `Nine batch tools operate over the markdown memory tree:
files, search, edit, tags, main, memory, extract, list, help.
Each (except memory/help) accepts an array of items and returns an
array of results of equal length, in input order.`,

	"files": `files(op, items): op in {create, read, update, delete, move, copy, rename, list}.
create fails AlreadyExists if the derived path exists.
update supports modes replace|append|prepend.
move changes category, preserving slug; rename recomputes slug from a new title.`,

	"search": `search(queries): each query is {query, search_mode, limit, file_path?, category_filter?, tag_filter?}.
search_mode in {vector, fulltext, hybrid}; hybrid fuses rankings with Reciprocal Rank Fusion.
Empty query is InvalidArgument; no matches is an empty list, not an error.`,

	"edit": `edit(operations): each op has edit_type in {section, find_replace, insert}.
section replaces/appends/prepends a section body located by exact header text.
find_replace supports literal or regex matching; max_replacements=-1 means unlimited.
insert places text at start, end, or after_marker.`,

	"tags": `tags(op, items): op in {add, remove, get}. Tags are a set: add is idempotent,
removing an absent tag is a no-op success.`,

	"main": `main(op, items): op in {append, goal, task, plan}, each mutating a fixed
section of main.md. goal/task/plan actions: add, complete (moves the entry
to Completed Tasks with today's date), and remove.`,

	"memory": `memory(op): op in {initialize, reset}. initialize creates main.md and
files_index.json if absent. reset deletes every file except those two,
truncates the index store, and restores main.md's base template.`,

	"extract": `extract(requests): returns the body of a named section, located the
same way as edit(section).`,

	"list": `list(requests): kind in {files, sections}. files returns a flat list and
a category-keyed tree; sections returns the header outline of one file.`,
}

// Help returns the documentation string for topic, defaulting to the
// overview topic when topic is empty.
func (d *Dispatcher) Help(ctx context.Context, topic string) []Result {
	if topic == "" {
		topic = "help"
	}
	text, found := helpTopics[topic]
	if !found {
		return []Result{ok(helpTopics["help"])}
	}
	return []Result{ok(text)}
}
