package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category groups node types for documentation and UI organization.
type Category string

// Known categories, in the order they appear in generated documentation.
const (
	CategoryInput         Category = "input"
	CategoryProcessing    Category = "processing"
	CategoryOutput        Category = "output"
	CategoryUtility       Category = "utility"
	CategoryVisualization Category = "visualization"
)

// categories lists all categories in documentation order.
var categories = []Category{
	CategoryInput,
	CategoryProcessing,
	CategoryOutput,
	CategoryUtility,
	CategoryVisualization,
}

// Slot describes an input or output connection point on a node type.
// It is purely descriptive; slots never hold runtime values.
type Slot struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Property describes a configurable property of a node type.
type Property struct {
	Name        string
	Type        string
	Description string
	// Default is the value applied when the property is omitted.
	// A nil Default means the property has no fallback and is required.
	Default     any
	Options     []string
	Placeholder string
}

// Definition is the complete, immutable description of a node type.
type Definition struct {
	Type        string
	Title       string
	Description string
	Category    Category
	Color       string
	Inputs      []Slot
	Outputs     []Slot
	Properties  []Property
	Examples    []string
	// PlannerHint tells the planner LLM when to use this node.
	PlannerHint string
}

// Option is one entry of the UI node-type selector.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Category string `json:"category"`
}

// NodeInfo is the registry's view of a graph node for validation.
// The graph model maps its nodes into this shape so the registry does not
// depend on the graph package.
type NodeInfo struct {
	ID         string
	Type       string
	Properties map[string]any
}

// Registry is a thread-safe catalog of node type definitions.
// It is populated once at startup and safe for concurrent reads by any
// number of workflow runs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Definition
	order   []string // registration order, for deterministic listings
}

// New creates an empty registry. Most callers want Builtin() instead.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Definition),
	}
}

// Register adds or overwrites a node type definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Type]; !exists {
		r.order = append(r.order, def.Type)
	}
	r.entries[def.Type] = def
}

// Get returns the definition for a node type and whether it exists.
func (r *Registry) Get(nodeType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entries[nodeType]
	return def, ok
}

// Has returns true if the node type is registered.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[nodeType]
	return ok
}

// Len returns the number of registered node types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Types returns all registered node types in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ByCategory returns the definitions of a category in registration order.
func (r *Registry) ByCategory(cat Category) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []Definition
	for _, t := range r.order {
		if def := r.entries[t]; def.Category == cat {
			defs = append(defs, def)
		}
	}
	return defs
}

// Documentation renders the node catalog as the text block injected into
// the planner's system prompt. The output is deterministic: categories in
// declaration order, nodes in registration order.
//
// The planner LLM only knows about slots and properties through this text,
// so renaming anything here changes what generated graphs can contain.
func (r *Registry) Documentation() string {
	var doc strings.Builder
	doc.WriteString("**NŒUDS DISPONIBLES :**\n\n")

	for _, cat := range categories {
		defs := r.ByCategory(cat)
		if len(defs) == 0 {
			continue
		}

		fmt.Fprintf(&doc, "**%s :**\n", strings.ToUpper(string(cat)))
		for _, def := range defs {
			fmt.Fprintf(&doc, "- `%s` : %s\n", def.Type, def.Description)

			if len(def.Inputs) > 0 {
				fmt.Fprintf(&doc, "  - Entrées : %s\n", slotList(def.Inputs))
			}
			if len(def.Outputs) > 0 {
				fmt.Fprintf(&doc, "  - Sorties : %s\n", slotList(def.Outputs))
			}
			// The model property is controlled by the run, not the planner.
			var props []string
			for _, p := range def.Properties {
				if p.Name != "model" {
					props = append(props, p.Name)
				}
			}
			if len(props) > 0 {
				fmt.Fprintf(&doc, "  - Propriétés configurables : %s\n", strings.Join(props, ", "))
			}
			if def.PlannerHint != "" {
				fmt.Fprintf(&doc, "  - Usage : %s\n", def.PlannerHint)
			}
			doc.WriteString("\n")
		}
	}

	return doc.String()
}

// slotList renders "name (type), name (type)" for documentation.
func slotList(slots []Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = fmt.Sprintf("%s (%s)", s.Name, s.Type)
	}
	return strings.Join(parts, ", ")
}

// InterfaceOptions returns selector entries for every node type, sorted by
// category then label.
func (r *Registry) InterfaceOptions() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()

	options := make([]Option, 0, len(r.entries))
	for _, t := range r.order {
		def := r.entries[t]
		options = append(options, Option{
			Value:    def.Type,
			Label:    def.Title,
			Category: string(def.Category),
		})
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].Category != options[j].Category {
			return options[i].Category < options[j].Category
		}
		return options[i].Label < options[j].Label
	})
	return options
}

// Validate checks graph nodes against the catalog and returns human-readable
// problems. An empty result means the nodes are structurally valid.
//
// Validation is advisory: callers log the problems and proceed best-effort.
func (r *Registry) Validate(nodes []NodeInfo) []string {
	var errs []string

	for _, node := range nodes {
		if node.Type == "" {
			errs = append(errs, fmt.Sprintf("nœud %s sans type", orUnknown(node.ID)))
			continue
		}

		def, ok := r.Get(node.Type)
		if !ok {
			errs = append(errs, fmt.Sprintf("type de nœud inconnu : %s", node.Type))
			continue
		}

		for _, prop := range def.Properties {
			if _, supplied := node.Properties[prop.Name]; !supplied && prop.Default == nil {
				errs = append(errs, fmt.Sprintf("propriété manquante '%s' dans nœud %s", prop.Name, node.Type))
			}
		}
	}

	return errs
}

func orUnknown(id string) string {
	if id == "" {
		return "inconnu"
	}
	return id
}
