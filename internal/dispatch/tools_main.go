package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mdmemory/internal/mdsection"
	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

// MainOp enumerates main(op, items) operations, each mutating a fixed
// section of main.md.
type MainOp string

const (
	MainAppend MainOp = "append"
	MainGoal   MainOp = "goal"
	MainTask   MainOp = "task"
	MainPlan   MainOp = "plan"
)

// GoalAction enumerates main(goal) sub-actions.
type GoalAction string

const (
	GoalAdd      GoalAction = "add"
	GoalComplete GoalAction = "complete"
	GoalRemove   GoalAction = "remove"
)

// PlanAction enumerates main(plan) sub-actions.
type PlanAction string

const (
	PlanAdd      PlanAction = "add"
	PlanComplete PlanAction = "complete"
)

// MainItem is one main() batch item; which fields apply depends on Op.
type MainItem struct {
	Text   string
	Action string // GoalAction or PlanAction, per Op
}

const (
	sectionGoals     = "## Goals"
	sectionTasks     = "## Tasks"
	sectionPlans     = "## Plans"
	sectionCompleted = "## Completed Tasks"
)

// Main executes op over items against main.md with bounded concurrency;
// concurrent edits are serialized by the File Store's per-path lock on
// main.md.
func (d *Dispatcher) Main(ctx context.Context, op MainOp, items []MainItem) []Result {
	return runBatch(ctx, "main", items, func(ctx context.Context, item MainItem) Result {
		return d.mainOne(op, item)
	})
}

func (d *Dispatcher) mainOne(op MainOp, item MainItem) Result {
	switch op {
	case MainAppend:
		return d.applyTransform(types.MainFilePath, func(content string) (string, error) {
			return mdsection.Insert(content, mdsection.End, "", item.Text)
		})

	case MainGoal:
		return d.mutateListSection(sectionGoals, GoalAction(item.Action), item.Text)

	case MainTask:
		return d.mutateListSection(sectionTasks, GoalAction(item.Action), item.Text)

	case MainPlan:
		return d.mutateListSection(sectionPlans, GoalAction(item.Action), item.Text)

	default:
		return fail(memerr.New(memerr.InvalidArgument, "unknown main op %q", op))
	}
}

// mutateListSection implements the shared add/complete/remove shape for
// the Goals, Tasks, and Plans sections: each entry is a "- " bullet line;
// complete moves the line to Completed Tasks annotated with today's date
// in ISO YYYY-MM-DD form.
func (d *Dispatcher) mutateListSection(section string, action GoalAction, text string) Result {
	return d.applyTransform(types.MainFilePath, func(content string) (string, error) {
		switch action {
		case GoalAdd, "":
			body, err := mdsection.Body(content, section)
			if err != nil {
				return "", err
			}
			newBody := strings.TrimRight(body, "\n") + "\n- " + text + "\n"
			if strings.TrimSpace(body) == "" {
				newBody = "- " + text + "\n"
			}
			return mdsection.Mutate(content, section, mdsection.Replace, newBody)

		case GoalRemove:
			body, err := mdsection.Body(content, section)
			if err != nil {
				return "", err
			}
			newBody := removeBulletLine(body, text)
			return mdsection.Mutate(content, section, mdsection.Replace, newBody)

		case GoalComplete:
			body, err := mdsection.Body(content, section)
			if err != nil {
				return "", err
			}
			if !hasBulletLine(body, text) {
				return "", memerr.New(memerr.NotFound, "entry not found in %s: %q", section, text)
			}
			remaining := removeBulletLine(body, text)
			updated, err := mdsection.Mutate(content, section, mdsection.Replace, remaining)
			if err != nil {
				return "", err
			}
			completedLine := fmt.Sprintf("- %s (completed %s)\n", text, time.Now().UTC().Format("2006-01-02"))
			completedBody, err := mdsection.Body(updated, sectionCompleted)
			if err != nil {
				return "", err
			}
			newCompleted := strings.TrimRight(completedBody, "\n") + "\n" + completedLine
			if strings.TrimSpace(completedBody) == "" {
				newCompleted = completedLine
			}
			return mdsection.Mutate(updated, sectionCompleted, mdsection.Replace, newCompleted)

		default:
			return "", memerr.New(memerr.InvalidArgument, "unknown action %q", action)
		}
	})
}

func bulletLines(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func hasBulletLine(body, text string) bool {
	want := "- " + text
	for _, line := range bulletLines(body) {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

func removeBulletLine(body, text string) string {
	want := "- " + text
	var out []string
	for _, line := range bulletLines(body) {
		if strings.TrimSpace(line) != want {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}
