package registry

// Node type identifiers of the builtin catalog.
const (
	TypeTextInput    = "text_input"
	TypeLLMModel     = "llm_model"
	TypeTextOutput   = "text_output"
	TypeIterativeLLM = "iterative_llm"
)

// ModelSentinel is the model property value meaning "use the globally
// selected model". The planner prompt carries the same placeholder so
// generated graphs inherit the run's model unless they pin one explicitly.
const ModelSentinel = "{{SELECTED_MODEL}}"

// DefaultIterations is the iteration count of iterative_llm when the
// property is absent.
const DefaultIterations = 3

// Builtin returns a registry populated with the four builtin node types.
func Builtin() *Registry {
	r := New()

	r.Register(Definition{
		Type:        TypeTextInput,
		Title:       "Entrée Texte",
		Description: "Point de départ du workflow, contient le texte d'entrée de l'utilisateur",
		Category:    CategoryInput,
		Color:       "#3a5",
		Outputs: []Slot{
			{Name: "texte", Type: "string", Description: "Texte saisi par l'utilisateur", Required: true},
		},
		Properties: []Property{
			{Name: "value", Type: "string", Description: "Valeur par défaut", Default: "", Placeholder: "Texte d'entrée"},
		},
		Examples: []string{
			"Recevoir la demande initiale de l'utilisateur",
			"Stocker un prompt personnalisé",
		},
		PlannerHint: "Utilisez ce nœud comme point de départ unique. Il recevra automatiquement la demande de l'utilisateur.",
	})

	r.Register(Definition{
		Type:        TypeLLMModel,
		Title:       "Modèle LLM",
		Description: "Interroge un modèle de langage avec un prompt personnalisable pouvant accepter plusieurs entrées.",
		Category:    CategoryProcessing,
		Color:       "#a35",
		Inputs: []Slot{
			{Name: "in_1", Type: "string", Description: "Première entrée de texte"},
			{Name: "in_2", Type: "string", Description: "Deuxième entrée de texte"},
			{Name: "in_3", Type: "string", Description: "Troisième entrée de texte"},
			{Name: "in_4", Type: "string", Description: "Quatrième entrée de texte"},
		},
		Outputs: []Slot{
			{Name: "résultat", Type: "string", Description: "Réponse générée par le LLM", Required: true},
		},
		Properties: []Property{
			{Name: "model", Type: "string", Description: "Modèle à utiliser", Default: ModelSentinel, Placeholder: ModelSentinel},
			{
				Name:        "prompt",
				Type:        "string",
				Description: "Template de prompt (utilisez {{in_1}}, {{in_2}}... pour les entrées)",
				Default:     "Contexte 1: {{in_1}}\n\nContexte 2: {{in_2}}",
				Placeholder: "Analyser ceci: {{in_1}} en vous basant sur cela: {{in_2}}",
			},
		},
		Examples: []string{
			"Analyser un texte en se basant sur un autre",
			"Générer du contenu créatif à partir de plusieurs sources",
			"Traduire un document en respectant un glossaire fourni en seconde entrée",
		},
		PlannerHint: "Nœud principal multi-entrées. Personnalisez le prompt pour définir sa tâche. Utilisez les placeholders {{in_1}}, {{in_2}}, etc., pour injecter le contenu des différentes entrées dans votre prompt. Cela permet de donner plusieurs contextes distincts à l'agent.",
	})

	r.Register(Definition{
		Type:        TypeTextOutput,
		Title:       "Sortie Texte",
		Description: "Point de sortie du workflow, affiche le résultat final",
		Category:    CategoryOutput,
		Color:       "#53a",
		Inputs: []Slot{
			{Name: "texte", Type: "string", Description: "Texte à afficher", Required: true},
		},
		Examples: []string{
			"Afficher le résultat final",
			"Présenter une partie spécifique du traitement",
		},
		PlannerHint: "Utilisez pour définir ce qui sera affiché à l'utilisateur. Créez plusieurs nœuds de sortie pour organiser l'affichage.",
	})

	r.Register(Definition{
		Type:        TypeIterativeLLM,
		Title:       "LLM Itératif",
		Description: "Applique un LLM plusieurs fois de suite, chaque résultat devenant l'entrée du suivant",
		Category:    CategoryProcessing,
		Color:       "#a53",
		Inputs: []Slot{
			{Name: "prompt initial", Type: "string", Description: "Texte de départ pour les itérations", Required: true},
		},
		Outputs: []Slot{
			{Name: "résultat final", Type: "string", Description: "Résultat après toutes les itérations", Required: true},
		},
		Properties: []Property{
			{Name: "iterations", Type: "int", Description: "Nombre d'itérations", Default: DefaultIterations},
		},
		Examples: []string{
			"Affiner progressivement un texte",
			"Développer une idée par étapes",
			"Améliorer itérativement un contenu",
		},
		PlannerHint: "Utilisez pour des tâches nécessitant un raffinement progressif ou un développement par étapes.",
	})

	return r
}

// IsProcessing reports whether a node type is a processing node whose
// dangling outputs should receive synthesized text_output sinks.
func IsProcessing(nodeType string) bool {
	return nodeType == TypeLLMModel || nodeType == TypeIterativeLLM
}
