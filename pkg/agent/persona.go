package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Persona is one of the specialist behaviors a request can be routed to.
type Persona int

const (
	// PersonaUnknown is a tag the classifier produced that matches no
	// persona. It executes as the analyst.
	PersonaUnknown Persona = iota
	PersonaResearcher
	PersonaArchivist
	PersonaCreative
	PersonaDoctor
	PersonaPsychologist
	PersonaSocialite
	PersonaLinguist
	PersonaAnalyst
)

var personaNames = map[Persona]string{
	PersonaUnknown:      "unknown",
	PersonaResearcher:   "researcher",
	PersonaArchivist:    "archivist",
	PersonaCreative:     "creative",
	PersonaDoctor:       "doctor",
	PersonaPsychologist: "psychologist",
	PersonaSocialite:    "socialite",
	PersonaLinguist:     "linguist",
	PersonaAnalyst:      "analyst",
}

// String returns the persona's wire tag.
func (p Persona) String() string {
	if s, ok := personaNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Persona) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Effective returns the persona that actually executes.
func (p Persona) Effective() Persona {
	if p == PersonaUnknown {
		return PersonaAnalyst
	}
	return p
}

// ParsePersona maps a classifier tag to a Persona. Matching ignores case and
// surrounding space; anything else is PersonaUnknown.
func ParsePersona(s string) Persona {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range personaNames {
		if p != PersonaUnknown && name == s {
			return p
		}
	}
	return PersonaUnknown
}

// Classification is the router's decision.
type Classification struct {
	Agent     Persona
	Reasoning string
}

var fenceRE = regexp.MustCompile("```(?:json)?\\s*")

// CleanJSON strips markdown fences and any prose around the outermost JSON
// object in a model reply.
func CleanJSON(text string) string {
	if text == "" {
		return ""
	}
	cleaned := fenceRE.ReplaceAllString(text, "")
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end != -1 && end > start {
		cleaned = cleaned[start : end+1]
	}
	return strings.TrimSpace(cleaned)
}

// ParseClassification decodes the router reply. Malformed output yields
// the analyst.
func ParseClassification(text string) Classification {
	var raw struct {
		Agent     string `json:"agent"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(CleanJSON(text)), &raw); err != nil || raw.Agent == "" {
		return Classification{Agent: PersonaAnalyst}
	}
	return Classification{Agent: ParsePersona(raw.Agent), Reasoning: raw.Reasoning}
}

// Intent is the analyst's requested side effect.
type Intent string

const (
	IntentChat           Intent = "chat"
	IntentCreateTask     Intent = "create_task"
	IntentDeleteTask     Intent = "delete_task"
	IntentCreateReminder Intent = "create_reminder"
	IntentDeleteReminder Intent = "delete_reminder"
)

func parseIntent(s string) Intent {
	switch i := Intent(strings.ToLower(strings.TrimSpace(s))); i {
	case IntentCreateTask, IntentDeleteTask, IntentCreateReminder, IntentDeleteReminder:
		return i
	}
	return IntentChat
}

// TaskData is the analyst's task payload.
type TaskData struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	IDToDelete  string `json:"id_to_delete,omitempty"`
}

// ReminderData is the analyst's reminder payload.
type ReminderData struct {
	Title      string `json:"title,omitempty"`
	Datetime   string `json:"datetime,omitempty"`
	IDToDelete string `json:"id_to_delete,omitempty"`
}

// AnalystOutput is the analyst's structured reply.
type AnalystOutput struct {
	Intent       Intent
	ChatResponse string
	Task         *TaskData
	Reminder     *ReminderData
}

// ParseAnalystOutput decodes the analyst reply. Unparseable output becomes a
// chat reply carrying the raw text; an unknown intent becomes chat.
func ParseAnalystOutput(text string) AnalystOutput {
	var raw struct {
		Intent       string        `json:"intent"`
		ChatResponse string        `json:"chatResponse"`
		TaskData     *TaskData     `json:"taskData"`
		ReminderData *ReminderData `json:"reminderData"`
	}
	if err := json.Unmarshal([]byte(CleanJSON(text)), &raw); err != nil {
		return AnalystOutput{Intent: IntentChat, ChatResponse: strings.TrimSpace(text)}
	}

	out := AnalystOutput{
		Intent:       parseIntent(raw.Intent),
		ChatResponse: raw.ChatResponse,
		Task:         raw.TaskData,
		Reminder:     raw.ReminderData,
	}
	// A mutation without its payload cannot be performed.
	switch out.Intent {
	case IntentCreateTask, IntentDeleteTask:
		if out.Task == nil {
			out.Intent = IntentChat
		}
	case IntentCreateReminder, IntentDeleteReminder:
		if out.Reminder == nil {
			out.Intent = IntentChat
		}
	}
	return out
}

// creativeIntent is the creative persona's sub-classification.
type creativeIntent struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

func parseCreativeIntent(text string) creativeIntent {
	var ci creativeIntent
	if err := json.Unmarshal([]byte(CleanJSON(text)), &ci); err != nil {
		return creativeIntent{Type: "generate"}
	}
	ci.Type = strings.ToLower(strings.TrimSpace(ci.Type))
	return ci
}
