// Package planner generates workflow documents from natural-language
// requests using an LLM, then repairs, validates, persists and runs them.
package planner

import (
	"strings"

	"github.com/nebuai/maestro/pkg/maestro/registry"
	"github.com/nebuai/maestro/pkg/maestro/template"
)

// Markers delimiting the node catalog section of the base system prompt.
// The catalog documentation is regenerated on every call so the prompt
// always matches the registry.
const (
	nodesMarker    = "**NŒUDS DISPONIBLES :**"
	examplesMarker = "**EXEMPLES DE PLANS :**"
)

// DefaultBasePrompt is the system prompt used when the caller supplies
// none. The section between the markers is replaced by the live catalog.
const DefaultBasePrompt = `Tu es Maestro, un générateur de plans de réponse structurés au format JSON node-link.
Ta seule sortie doit être un objet JSON avec les clés ` + "`nodes`" + ` et ` + "`links`" + `.

**NŒUDS DISPONIBLES :**

**EXEMPLES DE PLANS :**

Un plan minimal : un nœud text_input relié à un nœud llm_model, lui-même relié à un nœud text_output.

RÈGLES FINALES :
- Ne fournis AUCUN texte explicatif, AUCUNE balise <think>.
- Ta réponse doit commencer par { et se terminer par }.
- Format des liens : [link_id, source_node_id, source_output_slot, target_node_id, target_input_slot, "string"]
- Les slots de sortie/entrée commencent à 0
- IMPORTANT : Utilise {{SELECTED_MODEL}} comme valeur pour la propriété "model" de tous les nœuds llm_model`

// SystemPrompt assembles the planner's system prompt: the catalog
// documentation is injected between the section markers of the base
// prompt, or appended when the markers are absent.
func SystemPrompt(base string, reg *registry.Registry) string {
	doc := reg.Documentation()

	start := strings.Index(base, nodesMarker)
	end := strings.Index(base, examplesMarker)
	if start != -1 && end != -1 && start < end {
		return base[:start] + doc + "\n" + base[end:]
	}
	return base + "\n\n" + doc
}

// Complexity selects how detailed the generated plan should be.
type Complexity string

// Complexity tiers. The zero value adds no constraint.
const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complexe"
)

// constraint returns the plan-size paragraph prepended to the user prompt.
func (c Complexity) constraint() string {
	switch c {
	case ComplexitySimple:
		return "**CONTRAINTE DE COMPLEXITÉ : MODE SIMPLE**\n" +
			"Tu dois créer un plan de réponse contenant entre 3 et 6 parties principales.\n" +
			"Chaque partie sera traitée par un agent LLM dédié.\n" +
			"Structure recommandée : 3 grandes parties avec éventuellement 1-2 sous-parties chacune,\n" +
			"OU un plan linéaire avec 4-6 sections distinctes.\n" +
			"TOTAL D'AGENTS À CRÉER : entre 3 et 6\n\n"
	case ComplexityComplex:
		return "**CONTRAINTE DE COMPLEXITÉ : MODE COMPLEXE**\n" +
			"Tu dois créer un plan de réponse détaillé contenant entre 6 et 12 parties.\n" +
			"Chaque partie sera traitée par un agent LLM dédié.\n" +
			"Structure recommandée : 3-4 grandes parties avec plusieurs sous-parties détaillées,\n" +
			"OU un plan linéaire avec 8-12 sections distinctes.\n" +
			"TOTAL D'AGENTS À CRÉER : entre 6 et 12\n\n"
	default:
		return ""
	}
}

// jsonFormatInstruction is appended to every generation request. Local
// models drift into prose without it.
const jsonFormatInstruction = "\n\n**INSTRUCTION CRITIQUE DE FORMAT :**\n" +
	"Tu dois répondre UNIQUEMENT avec l'objet JSON, sans AUCUN texte avant ou après.\n" +
	"Ne commence PAS par des explications, des réflexions ou du texte.\n" +
	"Ne termine PAS par des commentaires ou des notes.\n" +
	"Ta réponse doit commencer par '{' et se terminer par '}'.\n" +
	"Si tu dois réfléchir ou planifier, fais-le mentalement mais ne l'écris PAS dans ta réponse.\n"

// UserPrompt builds the generation request sent as the user message.
// The {{SELECTED_MODEL}} sentinel resolves to the run's model; other
// placeholders (the {{in_N}} of example prompts) pass through untouched.
func UserPrompt(request string, complexity Complexity, model string) string {
	full := complexity.constraint() +
		"**DEMANDE DE L'UTILISATEUR :**\n" + request +
		jsonFormatInstruction
	return template.Expand(full, map[string]any{"SELECTED_MODEL": model})
}
