// Package agent routes a natural-language request to exactly one specialist
// persona and executes it against the generative model.
//
// Routing has three steps. Requests with an image skip the classifier and
// use an edit-keyword heuristic. Other requests go through one classifier
// call whose output is parsed into a Persona. Finally an explicit web search
// request redirects everything except the creative, linguist and doctor
// personas to the researcher.
//
// The analyst is the only persona allowed to mutate tasks and reminders,
// and it performs at most one mutation per request.
package agent

import (
	"strings"

	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// Kind classifies the outcome of a request.
type Kind string

const (
	KindChat           Kind = "chat"
	KindCreateTask     Kind = "create_task"
	KindDeleteTask     Kind = "delete_task"
	KindCreateReminder Kind = "create_reminder"
	KindDeleteReminder Kind = "delete_reminder"
	KindSearchDocs     Kind = "search_docs"
	KindGenerateImage  Kind = "generate_image"
)

// Reply quotes an earlier message the user is responding to.
type Reply struct {
	ID      string
	Content string
}

// Request is a single routed request.
type Request struct {
	// Text is the user's message.
	Text string

	// Profile is the requesting user. A nil profile is treated as an
	// anonymous English speaker.
	Profile *store.Profile

	// Image is an optional attachment.
	Image *inference.Image

	UseMemory    bool
	IsAgentic    bool
	UseWebSearch bool

	// DocumentContext is the rendered archive for the archivist. When empty
	// the router loads it from the store.
	DocumentContext string

	ReplyTo *Reply
}

func (r *Request) uid() string {
	if r.Profile == nil {
		return ""
	}
	return r.Profile.UID
}

// Result is the normalized outcome of a request.
type Result struct {
	Kind    Kind
	Persona Persona
	Text    string

	// Image holds generated image bytes for the creative persona.
	Image []byte

	// Sources are grounding references from the researcher.
	Sources []inference.Source

	// Task and Reminder echo the analyst's mutation payload.
	Task     *TaskData
	Reminder *ReminderData
}

// Edit-intent keywords for requests with an attached image.
var editKeywords = []string{"edit", "change", "ubah"}

// Keywords that pull the task list into the prompt.
var taskKeywords = []string{"task", "todo", "list", "tugas", "alarm", "remind"}

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Override applies the web search redirect to a classified persona.
func Override(p Persona, useWebSearch bool) Persona {
	if !useWebSearch {
		return p
	}
	switch p {
	case PersonaCreative, PersonaLinguist, PersonaDoctor:
		return p
	}
	return PersonaResearcher
}
