package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// Store is the persistence the router reads context from and mutates.
type Store interface {
	store.Messages
	store.Tasks
	store.Reminders
	store.Documents
	store.Insights
}

// Router classifies and executes requests.
type Router struct {
	pool   *inference.Pool
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithTracer sets the tracer for router spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// NewRouter creates a Router.
func NewRouter(pool *inference.Pool, st Store, opts ...Option) *Router {
	r := &Router{
		pool:   pool,
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/teslashibe/go-jarvis/pkg/agent"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "agent.router")
	return r
}

// Process routes req to one persona and returns its result. It never fails:
// errors become localized messages.
func (r *Router) Process(ctx context.Context, req Request) Result {
	indo := req.Profile.Indonesian()

	if r.pool.Len(ctx) == 0 {
		return Result{Kind: KindChat, Persona: PersonaUnknown, Text: msgNoKeys.in(indo)}
	}

	pc := r.promptContext(ctx, &req)

	type outcome struct {
		res     Result
		analyst *AnalystOutput
	}
	out, err := inference.Call(ctx, r.pool, func(ctx context.Context, m inference.Model) (outcome, error) {
		persona, err := r.classify(ctx, m, &req)
		if err != nil {
			return outcome{}, err
		}
		res, analyst, err := r.execute(ctx, m, persona, &req, pc)
		return outcome{res, analyst}, err
	})
	if err != nil {
		if errors.Is(err, inference.ErrNoKeys) {
			return Result{Kind: KindChat, Text: msgNoKeys.in(indo)}
		}
		r.logger.Error("request failed", "error", err)
		return Result{Kind: KindChat, Text: msgSystemError.in(indo)}
	}

	if out.analyst != nil {
		if err := r.mutate(ctx, req.uid(), out.analyst); err != nil {
			r.logger.Error("store mutation failed", "intent", out.analyst.Intent, "error", err)
			return Result{Kind: KindChat, Persona: PersonaAnalyst, Text: msgSystemError.in(indo)}
		}
	}
	return out.res
}

// Classify returns the effective persona for req using model m.
func (r *Router) Classify(ctx context.Context, m inference.Model, req Request) (Persona, error) {
	return r.classify(ctx, m, &req)
}

func (r *Router) classify(ctx context.Context, m inference.Model, req *Request) (Persona, error) {
	ctx, span := r.tracer.Start(ctx, "agent.classify")
	defer span.End()

	var c Classification
	if req.Image != nil {
		c.Agent = PersonaAnalyst
		if containsAny(req.Text, editKeywords) {
			c.Agent = PersonaCreative
		}
		c.Reasoning = "attachment heuristic"
	} else {
		resp, err := m.Generate(ctx, &inference.GenerateRequest{
			Prompt: routerPrompt(req.Profile.Indonesian(), req.Text),
			JSON:   true,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return PersonaUnknown, err
		}
		c = ParseClassification(resp.Text)
	}

	persona := Override(c.Agent, req.UseWebSearch)
	span.SetAttributes(
		attribute.String("classified", c.Agent.String()),
		attribute.String("persona", persona.String()),
	)
	r.logger.Debug("request classified",
		"classified", c.Agent.String(),
		"persona", persona.String(),
		"reasoning", c.Reasoning,
	)
	return persona, nil
}

func (r *Router) promptContext(ctx context.Context, req *Request) promptContext {
	pc := promptContext{
		Name:       "User",
		Honorific:  req.Profile.Honorific(),
		Indonesian: req.Profile.Indonesian(),
		Message:    req.Text,
	}
	if req.Profile != nil && req.Profile.Name != "" {
		pc.Name = req.Profile.Name
	}
	if req.ReplyTo != nil {
		pc.ReplyTo = req.ReplyTo.Content
	}

	uid := req.uid()
	if uid == "" || r.store == nil {
		return pc
	}
	if req.UseMemory {
		mem, err := store.LoadMemory(ctx, r.store, uid)
		if err != nil {
			r.logger.Warn("memory unavailable", "error", err)
		}
		pc.Memory = mem
	}
	if containsAny(req.Text, taskKeywords) {
		tasks, err := store.LoadTasks(ctx, r.store, uid)
		if err != nil {
			r.logger.Warn("tasks unavailable", "error", err)
			tasks = "Could not fetch tasks."
		}
		pc.Tasks = tasks
	}
	return pc
}

func (r *Router) execute(ctx context.Context, m inference.Model, p Persona, req *Request, pc promptContext) (Result, *AnalystOutput, error) {
	p = p.Effective()
	ctx, span := r.tracer.Start(ctx, "agent.execute", trace.WithAttributes(attribute.String("persona", p.String())))
	defer span.End()

	res, analyst, err := r.run(ctx, m, p, req, pc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, nil, err
	}
	res.Persona = p
	span.SetAttributes(attribute.String("kind", string(res.Kind)))
	return res, analyst, nil
}

func (r *Router) run(ctx context.Context, m inference.Model, p Persona, req *Request, pc promptContext) (Result, *AnalystOutput, error) {
	meta := appMetadata(pc.Indonesian)

	switch p {
	case PersonaDoctor:
		res, err := r.chat(ctx, m, doctorPrompt(meta, pc), fallbackDoctor)
		return res, nil, err
	case PersonaPsychologist:
		res, err := r.chat(ctx, m, psychologistPrompt(meta, pc), fallbackPsychologist)
		return res, nil, err
	case PersonaSocialite:
		res, err := r.chat(ctx, m, socialitePrompt(meta, pc), fallbackSocialite)
		return res, nil, err
	case PersonaLinguist:
		res, err := r.chat(ctx, m, linguistPrompt(meta, pc), fallbackLinguist)
		return res, nil, err
	case PersonaResearcher:
		res, err := r.research(ctx, m, meta, pc)
		return res, nil, err
	case PersonaArchivist:
		res, err := r.archive(ctx, m, meta, req, pc)
		return res, nil, err
	case PersonaCreative:
		res, err := r.create(ctx, m, req, pc.Indonesian)
		return res, nil, err
	default:
		return r.analyze(ctx, m, meta, req, pc)
	}
}

func (r *Router) chat(ctx context.Context, m inference.Model, prompt, fallback string) (Result, error) {
	resp, err := m.Generate(ctx, &inference.GenerateRequest{Prompt: prompt})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindChat, Text: orDefault(resp.Text, fallback)}, nil
}

func (r *Router) research(ctx context.Context, m inference.Model, meta string, pc promptContext) (Result, error) {
	resp, err := m.Generate(ctx, &inference.GenerateRequest{
		Prompt:    researcherPrompt(meta, pc),
		WebSearch: true,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Kind:    KindChat,
		Text:    orDefault(resp.Text, msgNoData.in(pc.Indonesian)),
		Sources: resp.Sources,
	}, nil
}

func (r *Router) archive(ctx context.Context, m inference.Model, meta string, req *Request, pc promptContext) (Result, error) {
	docs := req.DocumentContext
	if docs == "" && r.store != nil && req.uid() != "" {
		loaded, err := store.LoadDocuments(ctx, r.store, req.uid())
		if err != nil {
			r.logger.Warn("documents unavailable", "error", err)
		}
		docs = loaded
	}
	resp, err := m.Generate(ctx, &inference.GenerateRequest{Prompt: archivistPrompt(meta, docs, pc)})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindSearchDocs, Text: orDefault(resp.Text, fallbackArchivist)}, nil
}

func (r *Router) create(ctx context.Context, m inference.Model, req *Request, indo bool) (Result, error) {
	resp, err := m.Generate(ctx, &inference.GenerateRequest{
		Prompt: creativeIntentPrompt(req.Text),
		JSON:   true,
	})
	if err != nil {
		return Result{}, err
	}
	intent := parseCreativeIntent(resp.Text)
	prompt := orDefault(intent.Prompt, req.Text)

	if intent.Type == "edit" && req.Image != nil {
		img := *req.Image
		if img.MIMEType == "" {
			img.MIMEType = "image/jpeg"
		}
		edited, err := m.Generate(ctx, &inference.GenerateRequest{
			Model:  inference.ImageEditModel,
			Prompt: prompt + editDirective,
			Image:  &img,
		})
		if err != nil {
			return Result{}, err
		}
		res := Result{Kind: KindGenerateImage, Text: msgImageEdited.in(indo)}
		if edited.Image != nil {
			res.Image = edited.Image.Data
		}
		return res, nil
	}

	data, err := m.GenerateImage(ctx, inference.ImageGenModel, prompt)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindGenerateImage, Text: msgImageGenerated.in(indo), Image: data}, nil
}

func (r *Router) analyze(ctx context.Context, m inference.Model, meta string, req *Request, pc promptContext) (Result, *AnalystOutput, error) {
	resp, err := m.Generate(ctx, &inference.GenerateRequest{
		Prompt: analystPrompt(meta, pc),
		Image:  req.Image,
		JSON:   true,
	})
	if err != nil {
		return Result{}, nil, err
	}

	out := ParseAnalystOutput(resp.Text)
	res := Result{Kind: KindChat, Text: out.ChatResponse}
	switch out.Intent {
	case IntentCreateTask:
		res.Kind, res.Task = KindCreateTask, out.Task
	case IntentDeleteTask:
		res.Kind, res.Task = KindDeleteTask, out.Task
	case IntentCreateReminder:
		res.Kind, res.Reminder = KindCreateReminder, out.Reminder
	case IntentDeleteReminder:
		res.Kind, res.Reminder = KindDeleteReminder, out.Reminder
	default:
		return res, nil, nil
	}
	return res, &out, nil
}

// mutate performs the analyst's single store mutation.
func (r *Router) mutate(ctx context.Context, uid string, out *AnalystOutput) error {
	if r.store == nil || uid == "" {
		return nil
	}
	switch out.Intent {
	case IntentCreateTask:
		priority := store.Priority(strings.ToLower(out.Task.Priority))
		if priority == "" {
			priority = store.PriorityMedium
		}
		_, err := r.store.AddTask(ctx, uid, store.Task{
			Title:       out.Task.Title,
			Description: out.Task.Description,
			Priority:    priority,
			DueDate:     out.Task.DueDate,
		})
		return err
	case IntentDeleteTask:
		if out.Task.IDToDelete == "" {
			return nil
		}
		return r.store.DeleteTask(ctx, uid, out.Task.IDToDelete)
	case IntentCreateReminder:
		_, err := r.store.AddReminder(ctx, uid, store.Reminder{
			Title:    out.Reminder.Title,
			Datetime: out.Reminder.Datetime,
		})
		return err
	case IntentDeleteReminder:
		if out.Reminder.IDToDelete == "" {
			return nil
		}
		return r.store.DeleteReminder(ctx, uid, out.Reminder.IDToDelete)
	}
	return fmt.Errorf("agent: no mutation for intent %q", out.Intent)
}

// ChatTitle returns a short title for a conversation's first message.
func (r *Router) ChatTitle(ctx context.Context, message string) string {
	title, err := inference.Call(ctx, r.pool, func(ctx context.Context, m inference.Model) (string, error) {
		resp, err := m.Generate(ctx, &inference.GenerateRequest{Prompt: titlePrompt(message)})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Text), nil
	})
	if err != nil {
		r.logger.Debug("title generation failed", "error", err)
	}
	return orDefault(title, defaultTitle)
}

// ExtractText returns the text found in an image or scanned document, or ""
// on failure.
func (r *Router) ExtractText(ctx context.Context, img inference.Image) string {
	text, err := inference.Call(ctx, r.pool, func(ctx context.Context, m inference.Model) (string, error) {
		resp, err := m.Generate(ctx, &inference.GenerateRequest{Prompt: ocrPrompt, Image: &img})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	if err != nil {
		r.logger.Warn("text extraction failed", "error", err)
		return ""
	}
	return text
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
