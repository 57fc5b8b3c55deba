package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowforge/agentgraph/graph"
)

// Todo is one entry of the append-only todos state partition, backing
// the to-do tracking feature.
type Todo struct {
	ID        string
	Text      string
	Completed bool
}

type todoAddWrapper struct{ baseWrapper }

func newTodoAddFactory(_ graph.NodeDef, _ *Services) (Wrapper, error) {
	return &todoAddWrapper{baseWrapper{writes: []string{graph.FieldTodos}}}, nil
}

func (t *todoAddWrapper) Execute(_ context.Context, _ *graph.State, cfg map[string]any) graph.NodeResult {
	text, _ := cfg["text"].(string)
	if text == "" {
		return graph.Fail(fmt.Errorf("todo_add: missing config.text"))
	}
	todo := Todo{ID: uuid.NewString(), Text: text}
	return graph.Update(map[string]any{graph.FieldTodos: []any{todo}})
}

// TodoCompletion is an append-only completion record: todos is an
// append-only state partition, so completing a todo appends a new marker
// rather than rewriting a prior entry. Readers resolve a todo's current
// status by taking the latest record for its ID.
type TodoCompletion struct {
	TodoID    string
	Completed bool
}

type todoCompleteWrapper struct{ baseWrapper }

func newTodoCompleteFactory(_ graph.NodeDef, _ *Services) (Wrapper, error) {
	return &todoCompleteWrapper{baseWrapper{writes: []string{graph.FieldTodos}}}, nil
}

func (t *todoCompleteWrapper) Execute(_ context.Context, _ *graph.State, cfg map[string]any) graph.NodeResult {
	id, _ := cfg["todo_id"].(string)
	if id == "" {
		return graph.Fail(fmt.Errorf("todo_complete: missing config.todo_id"))
	}
	return graph.Update(map[string]any{graph.FieldTodos: []any{TodoCompletion{TodoID: id, Completed: true}}})
}
