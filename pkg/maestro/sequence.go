package maestro

import (
	"context"
	"fmt"
	"strings"

	"github.com/nebuai/maestro/pkg/maestro/store"
)

// RunSequence executes stored workflows back to back. The prompt feeds
// the first workflow; afterwards each run's joined outputs become the
// next run's prompt override. Returns one result per workflow, in order.
//
// A failing run aborts the sequence; the results of the completed runs
// are returned alongside the error.
func (e *Engine) RunSequence(ctx context.Context, st store.Store, names []string, prompt string, opts ...RunOption) ([]*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	current := prompt
	results := make([]*Result, 0, len(names))
	for _, name := range names {
		data, err := st.Load(name)
		if err != nil {
			return results, fmt.Errorf("load workflow %q: %w", name, err)
		}
		g, err := Parse(data)
		if err != nil {
			return results, fmt.Errorf("workflow %q: %w", name, err)
		}

		runOpts := append([]RunOption{
			WithPrompt(current),
			WithWorkflowName(name),
		}, opts...)
		res, err := e.Run(ctx, g, runOpts...)
		if err != nil {
			return results, fmt.Errorf("workflow %q: %w", name, err)
		}
		results = append(results, res)

		parts := make([]string, len(res.Outputs))
		for i, out := range res.Outputs {
			parts[i] = out.Content
		}
		current = strings.Join(parts, "\n\n---\n\n")
	}
	return results, nil
}
