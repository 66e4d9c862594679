// Package maestro executes node-link LLM workflows.
//
// A workflow is a JSON document of nodes and links in node-link editor
// format. The engine compiles the document into an execution plan, orders
// the nodes topologically (repairing cycles instead of rejecting them),
// and runs each node against a local LLM backend. Run progress is
// published on an event bus so UIs can render streamed content live.
//
// The package also repairs and normalizes workflow documents: AutoCorrect
// gives dangling processing outputs a display sink, Enhance fills missing
// titles, colors, and property defaults from the node catalog, and
// Beautify lays nodes out in depth-ordered columns.
package maestro
