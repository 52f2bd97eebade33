package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// scripted answers the router prompt with route and each persona prompt
// with a canned reply.
type scripted struct {
	mu      sync.Mutex
	route   string
	replies map[string]string
	prompts []string
	image   []byte
	sources []inference.Source
}

func (s *scripted) model() *inference.Mock {
	m := &inference.Mock{}
	m.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.GenerateResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.prompts = append(s.prompts, req.Prompt)

		if strings.Contains(req.Prompt, "ROLE: You are the ROUTER") {
			return &inference.GenerateResponse{Text: s.route}, nil
		}
		if req.Model == inference.ImageEditModel {
			return &inference.GenerateResponse{Image: &inference.Image{Data: s.image, MIMEType: "image/png"}}, nil
		}
		for marker, reply := range s.replies {
			if strings.Contains(req.Prompt, marker) {
				resp := &inference.GenerateResponse{Text: reply}
				if req.WebSearch {
					resp.Sources = s.sources
				}
				return resp, nil
			}
		}
		return &inference.GenerateResponse{}, nil
	}
	m.GenerateImageFunc = func(ctx context.Context, model, prompt string) ([]byte, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.prompts = append(s.prompts, "IMAGE:"+prompt)
		return s.image, nil
	}
	return m
}

func (s *scripted) sawPrompt(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prompts {
		if strings.Contains(p, sub) {
			return true
		}
	}
	return false
}

func newTestRouter(t *testing.T, m inference.Model, st Store) *Router {
	t.Helper()
	pool := inference.NewPool(inference.StaticKeys("k1"), inference.MockFactory(map[string]inference.Model{"k1": m}))
	return NewRouter(pool, st)
}

func english() *store.Profile {
	return &store.Profile{UID: "u1", Name: "Tony", Language: "en"}
}

func TestRouterPersonas(t *testing.T) {
	tests := []struct {
		name    string
		route   string
		search  bool
		persona Persona
		kind    Kind
		marker  string
	}{
		{"doctor", `{"agent":"doctor"}`, false, PersonaDoctor, KindChat, "You are the DOCTOR AGENT"},
		{"doctor keeps persona under search", `{"agent":"doctor"}`, true, PersonaDoctor, KindChat, "You are the DOCTOR AGENT"},
		{"psychologist", `{"agent":"psychologist"}`, false, PersonaPsychologist, KindChat, "You are the PSYCHOLOGIST AGENT"},
		{"socialite", `{"agent":"socialite"}`, false, PersonaSocialite, KindChat, "You are the SOCIALITE AGENT"},
		{"linguist", `{"agent":"linguist"}`, false, PersonaLinguist, KindChat, "You are the LINGUIST AGENT"},
		{"archivist", `{"agent":"archivist"}`, false, PersonaArchivist, KindSearchDocs, "You are the ARCHIVIST AGENT"},
		{"analyst forced to researcher", `{"agent":"analyst"}`, true, PersonaResearcher, KindChat, "You are the RESEARCHER AGENT"},
		{"malformed routes to analyst", `not json`, false, PersonaAnalyst, KindChat, "You are the ANALYST AGENT"},
		{"unknown executes analyst", `{"agent":"chef"}`, false, PersonaAnalyst, KindChat, "You are the ANALYST AGENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{
				route: tt.route,
				replies: map[string]string{
					"You are the DOCTOR AGENT":       "drink water",
					"You are the PSYCHOLOGIST AGENT": "I hear you",
					"You are the SOCIALITE AGENT":    "text her back",
					"You are the LINGUIST AGENT":     "halo",
					"You are the ARCHIVIST AGENT":    "your lease says 5th",
					"You are the RESEARCHER AGENT":   "it is sunny",
					"You are the ANALYST AGENT":      `{"intent":"chat","chatResponse":"sure"}`,
				},
			}
			r := newTestRouter(t, s.model(), store.NewMemory())

			res := r.Process(context.Background(), Request{Text: "hello", Profile: english(), UseWebSearch: tt.search})
			if res.Persona != tt.persona {
				t.Errorf("persona = %v, want %v", res.Persona, tt.persona)
			}
			if res.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", res.Kind, tt.kind)
			}
			if !s.sawPrompt(tt.marker) {
				t.Errorf("persona prompt %q never sent", tt.marker)
			}
			if res.Text == "" {
				t.Error("empty response text")
			}
		})
	}
}

func TestRouterResearcherSources(t *testing.T) {
	s := &scripted{
		route:   `{"agent":"researcher"}`,
		replies: map[string]string{"You are the RESEARCHER AGENT": "news"},
		sources: []inference.Source{{URI: "https://example.com", Title: "Example"}},
	}
	r := newTestRouter(t, s.model(), nil)

	res := r.Process(context.Background(), Request{Text: "latest news", Profile: english()})
	if len(res.Sources) != 1 || res.Sources[0].URI != "https://example.com" {
		t.Errorf("sources = %+v", res.Sources)
	}
}

func TestRouterEmptyReplyFallbacks(t *testing.T) {
	tests := []struct {
		route string
		want  string
		prof  *store.Profile
	}{
		{`{"agent":"doctor"}`, fallbackDoctor, english()},
		{`{"agent":"psychologist"}`, fallbackPsychologist, english()},
		{`{"agent":"socialite"}`, fallbackSocialite, english()},
		{`{"agent":"archivist"}`, fallbackArchivist, english()},
		{`{"agent":"researcher"}`, "Tidak ada data ditemukan.", &store.Profile{UID: "u1", Language: "id"}},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			s := &scripted{route: tt.route, replies: map[string]string{}}
			r := newTestRouter(t, s.model(), nil)
			if res := r.Process(context.Background(), Request{Text: "x", Profile: tt.prof}); res.Text != tt.want {
				t.Errorf("text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestRouterAttachmentHeuristic(t *testing.T) {
	img := &inference.Image{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}

	t.Run("edit keyword goes creative", func(t *testing.T) {
		s := &scripted{
			route:   `{"agent":"doctor"}`,
			replies: map[string]string{"Is this an image EDIT": `{"type":"edit","prompt":"add sunglasses"}`},
			image:   []byte("edited"),
		}
		r := newTestRouter(t, s.model(), nil)

		res := r.Process(context.Background(), Request{Text: "Please EDIT this photo", Profile: english(), Image: img})
		if res.Persona != PersonaCreative || res.Kind != KindGenerateImage {
			t.Fatalf("got %v/%v, want creative image", res.Persona, res.Kind)
		}
		if string(res.Image) != "edited" {
			t.Errorf("image = %q", res.Image)
		}
		if res.Text != msgImageEdited.en {
			t.Errorf("text = %q", res.Text)
		}
		if s.sawPrompt("ROLE: You are the ROUTER") {
			t.Error("classifier must be skipped for attachments")
		}
		if !s.sawPrompt("add sunglasses" + editDirective) {
			t.Error("edit directive not appended")
		}
	})

	t.Run("no keyword goes analyst", func(t *testing.T) {
		s := &scripted{
			replies: map[string]string{"You are the ANALYST AGENT": `{"intent":"chat","chatResponse":"a cat"}`},
		}
		r := newTestRouter(t, s.model(), nil)

		res := r.Process(context.Background(), Request{Text: "what is this", Profile: english(), Image: img})
		if res.Persona != PersonaAnalyst || res.Text != "a cat" {
			t.Errorf("got %v %q", res.Persona, res.Text)
		}
	})
}

func TestRouterCreativeGenerate(t *testing.T) {
	s := &scripted{
		route:   `{"agent":"creative"}`,
		replies: map[string]string{"Is this an image EDIT": `{"type":"edit","prompt":"a red fox"}`},
		image:   []byte("jpeg"),
	}
	r := newTestRouter(t, s.model(), nil)

	// Edit without an attachment falls back to generation.
	res := r.Process(context.Background(), Request{Text: "draw a fox", Profile: &store.Profile{Language: "id"}})
	if res.Kind != KindGenerateImage || string(res.Image) != "jpeg" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Text != "Gambar berhasil dibuat." {
		t.Errorf("text = %q", res.Text)
	}
	if !s.sawPrompt("IMAGE:a red fox") {
		t.Error("generation prompt not used")
	}
}

func TestRouterAnalystMutations(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	s := &scripted{
		route: `{"agent":"analyst"}`,
		replies: map[string]string{
			"You are the ANALYST AGENT": `{"intent":"create_task","chatResponse":"Added.","taskData":{"title":"Buy milk","priority":"HIGH"}}`,
		},
	}
	r := newTestRouter(t, s.model(), st)

	res := r.Process(ctx, Request{Text: "add buy milk to my todo", Profile: english()})
	if res.Kind != KindCreateTask || res.Text != "Added." {
		t.Fatalf("unexpected result: %+v", res)
	}
	tasks, _ := st.ListTasks(ctx, "u1")
	if len(tasks) != 1 || tasks[0].Title != "Buy milk" || tasks[0].Priority != store.PriorityHigh {
		t.Fatalf("tasks = %+v", tasks)
	}

	s.replies["You are the ANALYST AGENT"] = `{"intent":"delete_task","chatResponse":"Removed.","taskData":{"id_to_delete":"` + tasks[0].ID + `"}}`
	res = r.Process(ctx, Request{Text: "remove the milk task", Profile: english()})
	if res.Kind != KindDeleteTask {
		t.Fatalf("kind = %v", res.Kind)
	}
	if tasks, _ := st.ListTasks(ctx, "u1"); len(tasks) != 0 {
		t.Errorf("task not deleted: %+v", tasks)
	}

	s.replies["You are the ANALYST AGENT"] = `{"intent":"create_reminder","chatResponse":"Set.","reminderData":{"title":"Standup","datetime":"2025-01-02T09:00:00"}}`
	r.Process(ctx, Request{Text: "remind me about standup", Profile: english()})
	if reminders, _ := st.ListReminders(ctx, "u1"); len(reminders) != 1 {
		t.Errorf("reminders = %+v", reminders)
	}
}

func TestRouterContextBlock(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.AddTask(ctx, "u1", store.Task{Title: "File taxes", Priority: store.PriorityHigh})
	st.SaveInsight(ctx, "u1", "[MONITORING] Topic: Go")
	st.SaveMessage(ctx, "u1", &store.Message{ConversationID: store.PrimaryConversation, Role: store.RoleUser, Content: "I love Go"})

	s := &scripted{
		route:   `{"agent":"doctor"}`,
		replies: map[string]string{"You are the DOCTOR AGENT": "ok"},
	}
	r := newTestRouter(t, s.model(), st)

	r.Process(ctx, Request{
		Text:      "show my task list",
		Profile:   &store.Profile{UID: "u1", Name: "Pepper", Gender: "female", Language: "id"},
		UseMemory: true,
		ReplyTo:   &Reply{ID: "m1", Content: "earlier answer"},
	})

	for _, want := range []string{
		"USER: Pepper",
		"File taxes",
		"[MONITORING] Topic: Go",
		"USER: I love Go",
		`Address user as "Ma'am"`,
		"Bahasa Gaul",
		`CONTEXT: Reply to past message: "earlier answer"`,
		"CURRENT LANGUAGE: Bahasa Indonesia",
	} {
		if !s.sawPrompt(want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRouterTasksOnlyWithKeywords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.AddTask(ctx, "u1", store.Task{Title: "Secret errand"})

	s := &scripted{route: `{"agent":"doctor"}`, replies: map[string]string{"You are the DOCTOR AGENT": "ok"}}
	r := newTestRouter(t, s.model(), st)

	r.Process(ctx, Request{Text: "I have a headache", Profile: english()})
	if s.sawPrompt("Secret errand") {
		t.Error("tasks included without a task keyword")
	}
}

func TestRouterFailures(t *testing.T) {
	t.Run("no keys", func(t *testing.T) {
		pool := inference.NewPool(inference.StaticKeys(), inference.MockFactory(nil))
		r := NewRouter(pool, nil)
		res := r.Process(context.Background(), Request{Text: "hi", Profile: &store.Profile{Language: "id"}})
		if res.Text != msgNoKeys.id {
			t.Errorf("text = %q", res.Text)
		}
	})

	t.Run("all keys fail", func(t *testing.T) {
		pool := inference.NewPool(inference.StaticKeys("a", "b"), inference.MockFactory(map[string]inference.Model{
			"a": (&inference.Mock{}).WithError(errors.New("quota")),
			"b": (&inference.Mock{}).WithError(errors.New("quota")),
		}))
		r := NewRouter(pool, nil)
		res := r.Process(context.Background(), Request{Text: "hi", Profile: english()})
		if res.Text != msgSystemError.en || res.Kind != KindChat {
			t.Errorf("unexpected result: %+v", res)
		}
	})
}

func TestRouterHelpers(t *testing.T) {
	s := &scripted{replies: map[string]string{
		"Generate a 3-word title": "  Go Concurrency Tips \n",
		"Extract all text":        "INVOICE #42",
	}}
	r := newTestRouter(t, s.model(), nil)
	ctx := context.Background()

	if got := r.ChatTitle(ctx, "how do channels work"); got != "Go Concurrency Tips" {
		t.Errorf("ChatTitle = %q", got)
	}
	if got := r.ExtractText(ctx, inference.Image{Data: []byte{1}, MIMEType: "image/png"}); got != "INVOICE #42" {
		t.Errorf("ExtractText = %q", got)
	}

	failing := newTestRouter(t, (&inference.Mock{}).WithError(errors.New("down")), nil)
	if got := failing.ChatTitle(ctx, "x"); got != defaultTitle {
		t.Errorf("ChatTitle fallback = %q", got)
	}
	if got := failing.ExtractText(ctx, inference.Image{}); got != "" {
		t.Errorf("ExtractText fallback = %q", got)
	}
}
