// Package generator drafts outreach messages for a (person, trigger) pair
// through a text-generation provider.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
	"github.com/ignite/outreach-crm/internal/storage"
)

// DefaultTone is used when the model does not name one.
const DefaultTone = "professional"

// GenerationError reports a failed provider call. It is never retried.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator renders the prompt, calls the provider and parses the draft.
type Generator struct {
	provider Provider
	tpl      *liquid.Template
	store    storage.Store
	now      func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithStore archives every prompt/response pair to s.
func WithStore(s storage.Store) Option {
	return func(g *Generator) { g.store = s }
}

// WithTemplate replaces the built-in prompt template.
func WithTemplate(src string) Option {
	return func(g *Generator) {
		if tpl, err := engine.ParseString(src); err == nil {
			g.tpl = tpl
		} else {
			logger.Warn("[Generator] invalid prompt template, keeping built-in", "error", err)
		}
	}
}

// New returns a Generator backed by provider.
func New(provider Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		tpl:      defaultTemplate,
		store:    storage.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoadTemplate reads a prompt template override from path.
func LoadTemplate(path string) (Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt template: %w", err)
	}
	if _, err := engine.ParseString(string(data)); err != nil {
		return nil, fmt.Errorf("parsing prompt template %s: %w", path, err)
	}
	return WithTemplate(string(data)), nil
}

// transcript is the archived record of one generation.
type transcript struct {
	TriggerID int64                `json:"trigger_id"`
	PersonID  int64                `json:"person_id"`
	Provider  string               `json:"provider"`
	System    string               `json:"system"`
	Prompt    string               `json:"prompt"`
	Response  string               `json:"response,omitempty"`
	Error     string               `json:"error,omitempty"`
	Draft     *domain.OutreachDraft `json:"draft,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Draft produces an OutreachDraft. Provider failures come back as
// *GenerationError; malformed replies fall back to deterministic defaults.
func (g *Generator) Draft(ctx context.Context, person *domain.Person, trigger *domain.Trigger) (*domain.OutreachDraft, error) {
	prompt, err := g.render(person, trigger)
	if err != nil {
		return nil, err
	}

	raw, err := g.provider.Complete(ctx, systemPrompt, prompt)
	rec := transcript{
		TriggerID: trigger.ID,
		PersonID:  person.ID,
		Provider:  g.provider.Name(),
		System:    systemPrompt,
		Prompt:    prompt,
		Response:  raw,
		CreatedAt: g.now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
		g.archive(ctx, rec)
		return nil, &GenerationError{Provider: g.provider.Name(), Err: err}
	}

	draft := ParseDraft(raw, person, trigger)
	rec.Draft = draft
	g.archive(ctx, rec)
	return draft, nil
}

func (g *Generator) archive(ctx context.Context, rec transcript) {
	key := storage.TranscriptKey(rec.CreatedAt, rec.TriggerID)
	if err := g.store.Save(ctx, key, rec); err != nil {
		logger.Warn("[Generator] transcript archive failed", "key", key, "error", err)
	}
}

// reply is the JSON shape requested from the model.
type reply struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
	Tone    string `json:"tone"`
	Media   string `json:"media"`
}

// ParseDraft turns a raw model reply into a draft, filling every missing or
// invalid field with its default.
func ParseDraft(raw string, person *domain.Person, trigger *domain.Trigger) *domain.OutreachDraft {
	text := stripFences(raw)

	var r reply
	parsed := false
	if obj, ok := extractJSON(text); ok {
		parsed = json.Unmarshal([]byte(obj), &r) == nil
	}
	if !parsed {
		r = reply{Content: text}
	}

	d := &domain.OutreachDraft{
		Subject: strings.TrimSpace(r.Subject),
		Content: strings.TrimSpace(r.Content),
		Tone:    strings.TrimSpace(r.Tone),
		Media:   domain.MessageMedia(strings.ToLower(strings.TrimSpace(r.Media))),
	}
	if d.Subject == "" {
		d.Subject = fmt.Sprintf("Following up on %s", trigger.TriggerType)
	}
	if d.Tone == "" {
		d.Tone = DefaultTone
	}
	if !d.Media.Valid() {
		d.Media = domain.MediaEmail
	}
	if d.Content == "" {
		d.Content = fallbackContent(person, trigger)
	}
	return d
}

func fallbackContent(person *domain.Person, trigger *domain.Trigger) string {
	name := strings.TrimSpace(person.FirstName)
	if name == "" {
		name = "there"
	}
	if trigger.TriggerType == domain.TriggerBirthday {
		return fmt.Sprintf("Hi %s, happy birthday! Wishing you a great year ahead.", name)
	}
	about := strings.TrimSpace(trigger.Content)
	if about == "" {
		about = fmt.Sprintf("your recent %s", trigger.TriggerType)
	}
	return fmt.Sprintf("Hi %s, I came across %q and wanted to reach out. Would you be open to a quick chat?", name, about)
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{}") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
