package analyze

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SubTask is one independent analysis task, e.g. stack detection, port
// discovery, or secret scanning. Sub-tasks run concurrently and are joined
// with a wait-for-all barrier; any failure fails the whole analysis.
type SubTask struct {
	Name string
	Run  func(ctx context.Context, projectPath string) (*Analysis, error)
}

// FanOut runs all sub-tasks concurrently and combines their partial results.
type FanOut struct {
	tasks []SubTask
}

// NewFanOut creates a FanOut analyzer over the given sub-tasks.
func NewFanOut(tasks []SubTask) *FanOut {
	return &FanOut{tasks: tasks}
}

// Analyze dispatches all sub-tasks, waits for every one of them, and merges
// the partial analyses in task order. The rebuild flag is ignored here;
// caching is layered on by CachedAnalyzer.
func (f *FanOut) Analyze(ctx context.Context, projectPath string, rebuild bool) (*Analysis, error) {
	if len(f.tasks) == 0 {
		return nil, fmt.Errorf("no analysis sub-tasks configured")
	}

	partials := make([]*Analysis, len(f.tasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range f.tasks {
		i, task := i, task
		g.Go(func() error {
			partial, err := task.Run(gctx, projectPath)
			if err != nil {
				return fmt.Errorf("analysis task %q: %w", task.Name, err)
			}
			mu.Lock()
			partials[i] = partial
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := &Analysis{ProjectPath: projectPath}
	for _, p := range partials {
		if p != nil {
			merge(combined, p)
		}
	}
	if err := combined.Validate(); err != nil {
		return nil, err
	}
	return combined, nil
}
