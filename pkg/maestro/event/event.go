// Package event carries workflow run progress to UI subscribers.
//
// The engine publishes one event per observable step: run lifecycle, node
// lifecycle, streamed content chunks, and iteration progress. A UI (or the
// CLI) subscribes to the bus and renders events as they arrive; ordering is
// preserved per subscription.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies a run progress event.
type Type string

// Event types published by the engine.
const (
	TypeRunStarted   Type = "run.started"
	TypeRunFinished  Type = "run.finished"
	TypeRunFailed    Type = "run.failed"
	TypeNodeStarted  Type = "node.started"
	TypeNodeChunk    Type = "node.chunk"
	TypeNodeProgress Type = "node.progress"
	TypeNodeFinished Type = "node.finished"
	TypeRepair       Type = "graph.repaired"
)

// Event is one progress notification. Events are immutable once created.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Kind is the event type.
	Kind Type `json:"type"`
	// RunID identifies the workflow run that produced the event.
	RunID string `json:"run_id"`
	// NodeID is set for node-scoped events.
	NodeID string `json:"node_id,omitempty"`
	// NodeTitle is the display title of the node, when known.
	NodeTitle string `json:"node_title,omitempty"`
	// Content carries streamed text, progress labels, or error messages.
	Content string `json:"content,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time.
func New(kind Type, runID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}

// WithNode returns a copy of the event scoped to a node.
func (e Event) WithNode(nodeID, title string) Event {
	e.NodeID = nodeID
	e.NodeTitle = title
	return e
}

// WithContent returns a copy of the event carrying content.
func (e Event) WithContent(content string) Event {
	e.Content = content
	return e
}
