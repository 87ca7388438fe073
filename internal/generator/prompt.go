package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach-crm/internal/domain"
)

const systemPrompt = `You write short, warm, specific B2B outreach messages. ` +
	`Reply with a single JSON object and nothing else.`

const defaultTemplateSource = `Draft an outreach message to the contact below, prompted by the event that follows.

Contact:
- Name: {{ person.name }}
{% if person.title %}- Title: {{ person.title }}
{% endif %}{% if person.company %}- Company: {{ person.company }}
{% endif %}{% if person.industry %}- Industry: {{ person.industry }}
{% endif %}{% if person.channels.size > 0 %}- Known channels: {{ person.channels | join: ", " }}
{% endif %}{% if person.details %}- Details: {{ person.details }}
{% endif %}{% if person.description %}- Notes: {{ person.description }}
{% endif %}
Event:
- Type: {{ trigger.type }}
- Summary: {{ trigger.content }}
{% if trigger.source %}- Source: {{ trigger.source }}
{% endif %}{% if trigger.url %}- Link: {{ trigger.url }}
{% endif %}
Pick the medium among the contact's known channels (email, linkedin, twitter or phone).
Respond with JSON only:
{"subject": "...", "content": "...", "tone": "...", "media": "email|linkedin|twitter|phone"}
`

var (
	engine          = liquid.NewEngine()
	defaultTemplate = mustParse(defaultTemplateSource)
)

func mustParse(src string) *liquid.Template {
	tpl, err := engine.ParseString(src)
	if err != nil {
		panic(fmt.Sprintf("generator: built-in template: %v", err))
	}
	return tpl
}

// opt maps empty strings to nil so liquid treats them as falsy.
func opt(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}

func bindings(person *domain.Person, trigger *domain.Trigger) liquid.Bindings {
	channels := person.Channels()
	names := make([]string, 0, len(channels))
	for k := range channels {
		names = append(names, k)
	}
	sort.Strings(names)
	known := make([]string, 0, len(names))
	for _, k := range names {
		known = append(known, k+" ("+channels[k]+")")
	}

	var industry string
	if person.Account != nil {
		industry = person.Account.Field
	}
	return liquid.Bindings{
		"person": map[string]any{
			"name":        person.FullName(),
			"first_name":  person.FirstName,
			"title":       opt(person.Title),
			"company":     opt(person.CompanyName()),
			"industry":    opt(industry),
			"channels":    known,
			"details":     opt(person.Details),
			"description": opt(person.Description),
		},
		"trigger": map[string]any{
			"type":    string(trigger.TriggerType),
			"content": trigger.Content,
			"source":  opt(trigger.Media),
			"url":     opt(trigger.URL),
		},
	}
}

func (g *Generator) render(person *domain.Person, trigger *domain.Trigger) (string, error) {
	out, err := g.tpl.RenderString(bindings(person, trigger))
	if err != nil {
		return "", fmt.Errorf("rendering prompt for trigger %d: %w", trigger.ID, err)
	}
	return out, nil
}
