package planner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nebuai/maestro/pkg/maestro"
	"github.com/nebuai/maestro/pkg/maestro/errors"
	"github.com/nebuai/maestro/pkg/maestro/llm"
	"github.com/nebuai/maestro/pkg/maestro/registry"
	"github.com/nebuai/maestro/pkg/maestro/store"
)

// Planner turns a natural-language request into an executable workflow
// document. Generation is retried; the produced document goes through
// auto-correction, enhancement and validation before being saved and run.
type Planner struct {
	client   llm.Client
	engine   *maestro.Engine
	registry *registry.Registry
	store    store.Store
	logger   *slog.Logger

	basePrompt string
	retry      errors.RetryConfig
	beautify   bool
	now        func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// New creates a planner generating plans with client and running them on
// engine.
func New(client llm.Client, engine *maestro.Engine, opts ...Option) *Planner {
	p := &Planner{
		client:     client,
		engine:     engine,
		registry:   registry.Builtin(),
		basePrompt: DefaultBasePrompt,
		beautify:   true,
		now:        time.Now,
		retry: errors.NewRetryConfig(errors.WithRetryableFunc(func(err error) bool {
			return errors.IsRetryable(err) || errors.IsRegenerable(err)
		})),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithRegistry sets the node catalog documented in the system prompt and
// used for repair. Must match the engine's catalog.
func WithRegistry(r *registry.Registry) Option {
	return func(p *Planner) {
		if r != nil {
			p.registry = r
		}
	}
}

// WithStore makes the planner persist every generated document.
func WithStore(s store.Store) Option {
	return func(p *Planner) {
		p.store = s
	}
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithBasePrompt replaces the default system prompt. The catalog section
// between the standard markers is still regenerated from the registry.
func WithBasePrompt(base string) Option {
	return func(p *Planner) {
		if base != "" {
			p.basePrompt = base
		}
	}
}

// WithRetry sets the generation retry policy. The retryable check should
// opt regenerable failures in; plain transient-only retrying gives up on
// the first unparseable response.
func WithRetry(cfg errors.RetryConfig) Option {
	return func(p *Planner) {
		p.retry = cfg
	}
}

// WithoutBeautifier disables the final report-formatting LLM pass; the
// report text is then the raw outputs joined by separators.
func WithoutBeautifier() Option {
	return func(p *Planner) {
		p.beautify = false
	}
}

// Request describes one planning request.
type Request struct {
	// Prompt is the user's natural-language request.
	Prompt string
	// Model is the model used both to generate the plan and to run it.
	Model string
	// Complexity bounds the size of the generated plan. Optional.
	Complexity Complexity
}

// Report is the outcome of PlanAndRun.
type Report struct {
	// WorkflowName is the name the generated document was saved under.
	WorkflowName string
	// Result is the engine's run result.
	Result *maestro.Result
	// Text is the final report: beautified Markdown when the formatting
	// pass is enabled, joined raw outputs otherwise.
	Text string
}

// GenerationError is the terminal failure of plan generation: every
// attempt produced a response no workflow document could be extracted
// from. Excerpt carries the start of the last raw response for diagnosis.
type GenerationError struct {
	Attempts int
	Excerpt  string
	Err      error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("no valid plan after %d attempts: %v (last response excerpt: %q)",
		e.Attempts, e.Err, e.Excerpt)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Plan generates, repairs and persists a workflow document for the
// request. Returns the ready-to-run document and the name it was saved
// under. Validation problems are logged, never fatal.
func (p *Planner) Plan(ctx context.Context, req Request) (*maestro.WorkflowGraph, string, error) {
	system := SystemPrompt(p.basePrompt, p.registry)
	user := UserPrompt(req.Prompt, req.Complexity, req.Model)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}

	var lastRaw string
	res := errors.WithRetryContext(ctx, p.retry, func(ctx context.Context) (*maestro.WorkflowGraph, error) {
		resp, err := p.client.Chat(ctx, llm.ChatRequest{Model: req.Model, Messages: messages})
		if err != nil {
			return nil, err
		}
		lastRaw = resp.Content

		doc, err := ExtractDocument(resp.Content)
		if err != nil {
			return nil, err
		}
		g, err := maestro.Parse([]byte(doc))
		if err != nil {
			return nil, &errors.JSONParseError{Input: doc, Message: err.Error()}
		}
		if len(g.Nodes) == 0 {
			return nil, &errors.ValidationError{Field: "nodes", Message: "aucun nœud généré"}
		}
		return g, nil
	})
	if res.Err != nil {
		if errors.IsRegenerable(res.Err) {
			return nil, "", &GenerationError{
				Attempts: res.Attempts,
				Excerpt:  excerpt(lastRaw, 500),
				Err:      res.Err,
			}
		}
		return nil, "", res.Err
	}

	g := res.Value
	if added := maestro.AutoCorrect(g, p.registry, p.logger); added > 0 && p.logger != nil {
		p.logger.Info("generated plan corrected", slog.Int("sinks_added", added))
	}
	maestro.Enhance(g, p.registry)
	maestro.Beautify(g)

	if problems := maestro.Validate(g, p.registry); len(problems) > 0 && p.logger != nil {
		p.logger.Warn("generated plan has validation problems",
			slog.Int("count", len(problems)),
			slog.String("first", problems[0]))
	}

	name := documentName(req.Prompt, p.now())
	if p.store != nil {
		data, err := g.Serialize()
		if err != nil {
			return nil, "", fmt.Errorf("serialize generated plan: %w", err)
		}
		if err := p.store.Save(name, data); err != nil {
			return nil, "", fmt.Errorf("save generated plan: %w", err)
		}
	}

	if p.logger != nil {
		p.logger.Info("plan generated",
			slog.String("workflow", name),
			slog.Int("nodes", len(g.Nodes)),
			slog.Int("agents", len(g.NodesByType(registry.TypeLLMModel))))
	}
	return g, name, nil
}

// PlanAndRun generates a workflow for the request and executes it, the
// user's prompt feeding the plan's first text input. When the beautifier
// is enabled the collected outputs go through one more blocking LLM call
// producing the final Markdown report; a beautifier failure falls back to
// the joined raw outputs rather than failing the run.
func (p *Planner) PlanAndRun(ctx context.Context, req Request) (*Report, error) {
	g, name, err := p.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := p.engine.Run(ctx, g,
		maestro.WithPrompt(req.Prompt),
		maestro.WithModel(req.Model),
		maestro.WithWorkflowName(name))
	if err != nil {
		return nil, err
	}

	report := &Report{WorkflowName: name, Result: result}
	if !p.beautify {
		report.Text = JoinOutputs(result.Outputs)
		return report, nil
	}

	text, err := p.beautifyReport(ctx, req.Prompt, req.Model, result.Outputs)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("report formatting failed, using raw outputs",
				slog.String("error", err.Error()))
		}
		text = JoinOutputs(result.Outputs)
	}
	report.Text = text
	return report, nil
}

// beautifyReport folds the run's outputs into a formatting prompt and
// asks the model for a single coherent Markdown report.
func (p *Planner) beautifyReport(ctx context.Context, userPrompt, model string, outputs []maestro.Output) (string, error) {
	var raw strings.Builder
	for i, out := range outputs {
		fmt.Fprintf(&raw, "--- DÉBUT BLOC DE SORTIE DE L'AGENT #%d ---\n", i+1)
		fmt.Fprintf(&raw, "Titre/Rôle de l'agent: %s\n", out.SourceTitle)
		fmt.Fprintf(&raw, "Contenu brut produit:\n%s\n", out.Content)
		fmt.Fprintf(&raw, "--- FIN BLOC DE SORTIE DE L'AGENT #%d ---\n\n", i+1)
	}

	prompt := "Tu es un expert en présentation de rapports. Ta mission est de prendre une série de sorties brutes provenant de différents agents IA et de les formater en un seul document cohérent, clair et agréable à lire pour l'utilisateur final.\n\n" +
		fmt.Sprintf("La demande originale de l'utilisateur était : %q\n\n", userPrompt) +
		"Voici les sorties brutes que tu dois synthétiser et embellir :\n\n" +
		raw.String() +
		"Instructions pour la mise en forme :\n" +
		"1.  Crée un titre principal pour le rapport global.\n" +
		"2.  Pour CHAQUE bloc de sortie d'agent, crée une section distincte.\n" +
		"3.  Chaque section doit avoir un titre clair et concis basé sur le rôle de l'agent.\n" +
		"4.  Présente le contenu de chaque section de manière propre en utilisant la syntaxe Markdown.\n" +
		"5.  N'ajoute PAS de commentaires du type 'Voici le rapport' ou de dialogue. Produis uniquement le rapport formaté en Markdown.\n" +
		"6.  Assure-toi que la transition entre les sections est logique."

	resp, err := p.client.Chat(ctx, llm.ChatRequest{
		Model:    model,
		Messages: llm.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// JoinOutputs renders run outputs as plain text, separated by rules.
func JoinOutputs(outputs []maestro.Output) string {
	if len(outputs) == 0 {
		return "Aucun résultat final produit par les nœuds de sortie."
	}
	parts := make([]string, len(outputs))
	for i, out := range outputs {
		parts[i] = out.Content
	}
	return strings.Join(parts, "\n\n---\n\n")
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// documentName derives the saved document's name from the request:
// maestro_<timestamp>_<slug>.json.
func documentName(prompt string, now time.Time) string {
	runes := []rune(prompt)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	slug := slugPattern.ReplaceAllString(string(runes), "_")
	slug = strings.Trim(strings.ToLower(slug), "_")
	if slug == "" {
		slug = "plan"
	}
	return store.CanonicalName(fmt.Sprintf("%s_%s", now.Format("20060102-150405"), slug))
}

// excerpt truncates s for inclusion in an error message.
func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
