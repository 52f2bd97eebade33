package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/clock"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

func newMonitorModel(topicJSON, news string) *inference.Mock {
	m := &inference.Mock{}
	m.GenerateFunc = func(ctx context.Context, req *inference.GenerateRequest) (*inference.GenerateResponse, error) {
		if req.JSON {
			return &inference.GenerateResponse{Text: topicJSON}, nil
		}
		return &inference.GenerateResponse{Text: news}, nil
	}
	return m
}

func newAgent(t *testing.T, model inference.Model, opts ...Option) (*Agent, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	pool := inference.NewPool(inference.StaticKeys("k1"), inference.MockFactory(map[string]inference.Model{"k1": model}))
	return New(pool, st, opts...), st
}

func seedHistory(t *testing.T, st *store.Memory, uid string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := st.SaveMessage(context.Background(), uid, &store.Message{
			ConversationID: store.PrimaryConversation,
			Role:           store.RoleUser,
			Content:        "tell me about electric cars",
		})
		if err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
}

func TestAnalyzeActivity(t *testing.T) {
	ctx := context.Background()

	t.Run("stores insight and returns notification", func(t *testing.T) {
		model := newMonitorModel("```json\n{\"topic\": \"Electric Vehicles\"}\n```", "Sales rose 20%. New models launched.")
		a, st := newAgent(t, model)
		seedHistory(t, st, "u1", 3)

		n, err := a.AnalyzeActivity(ctx, "u1")
		if err != nil {
			t.Fatalf("AnalyzeActivity: %v", err)
		}
		if n == nil {
			t.Fatal("expected a notification")
		}
		if n.Title != "New Intel: Electric Vehicles" || n.GeneratedContent != "Sales rose 20%. New models launched." {
			t.Errorf("notification = %+v", n)
		}
		if n.ID == "" || n.Type != "insight" {
			t.Errorf("notification id/type = %q/%q", n.ID, n.Type)
		}

		insights, _ := st.ListInsights(ctx, "u1", 10)
		if len(insights) != 1 || !strings.HasPrefix(insights[0].Content, "[MONITORING] Topic: Electric Vehicles. Found: ") {
			t.Errorf("insights = %+v", insights)
		}

		reqs := model.Requests()
		if len(reqs) != 2 || !reqs[1].WebSearch || !strings.Contains(reqs[1].Prompt, `"Electric Vehicles"`) {
			t.Errorf("requests = %+v", reqs)
		}
		if got := a.Notifications("u1"); len(got) != 1 || got[0].ID != n.ID {
			t.Errorf("Notifications() = %+v", got)
		}
	})

	t.Run("too little history", func(t *testing.T) {
		model := newMonitorModel(`{"topic": "x"}`, "news")
		a, st := newAgent(t, model)
		seedHistory(t, st, "u1", 2)

		n, err := a.AnalyzeActivity(ctx, "u1")
		if err != nil || n != nil {
			t.Errorf("AnalyzeActivity() = %v, %v; want nil, nil", n, err)
		}
		if len(model.Requests()) != 0 {
			t.Error("model called without enough history")
		}
	})

	t.Run("null topic", func(t *testing.T) {
		a, st := newAgent(t, newMonitorModel(`{"topic": null}`, "news"))
		seedHistory(t, st, "u1", 5)

		n, err := a.AnalyzeActivity(ctx, "u1")
		if err != nil || n != nil {
			t.Errorf("AnalyzeActivity() = %v, %v; want nil, nil", n, err)
		}
	})

	t.Run("malformed classifier output", func(t *testing.T) {
		a, st := newAgent(t, newMonitorModel("not json", "news"))
		seedHistory(t, st, "u1", 5)

		if n, err := a.AnalyzeActivity(ctx, "u1"); err != nil || n != nil {
			t.Errorf("AnalyzeActivity() = %v, %v; want nil, nil", n, err)
		}
	})

	t.Run("model failure", func(t *testing.T) {
		a, st := newAgent(t, (&inference.Mock{}).WithError(errors.New("quota")))
		seedHistory(t, st, "u1", 5)

		if _, err := a.AnalyzeActivity(ctx, "u1"); err == nil {
			t.Error("expected error")
		}
		if insights, _ := st.ListInsights(ctx, "u1", 10); len(insights) != 0 {
			t.Error("insight saved despite failure")
		}
	})
}

func TestDailyBriefingOncePerDay(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC))
	model := inference.NewMock("- Rain expected\n- Markets up")
	a, st := newAgent(t, model, WithClock(clk))

	p := &store.Profile{UID: "u1", City: "Jakarta", Country: "Indonesia"}

	wrote, err := a.DailyBriefing(ctx, p)
	if err != nil || !wrote {
		t.Fatalf("first DailyBriefing() = %v, %v", wrote, err)
	}
	if reqs := model.Requests(); !reqs[0].WebSearch || !strings.Contains(reqs[0].Prompt, "Jakarta, Indonesia") {
		t.Errorf("request = %+v", reqs[0])
	}

	clk.Advance(10 * time.Hour)
	if wrote, _ := a.DailyBriefing(ctx, p); wrote {
		t.Error("second briefing on the same day")
	}

	clk.Advance(8 * time.Hour)
	if wrote, _ := a.DailyBriefing(ctx, p); !wrote {
		t.Error("no briefing on the next day")
	}

	insights, _ := st.ListInsights(ctx, "u1", 10)
	if len(insights) != 2 || !strings.HasPrefix(insights[0].Content, "[DAILY BRIEFING] Jakarta, Indonesia: ") {
		t.Errorf("insights = %+v", insights)
	}
}

func TestDailyBriefingGlobalLocation(t *testing.T) {
	model := inference.NewMock("headlines")
	a, _ := newAgent(t, model)

	if _, err := a.DailyBriefing(context.Background(), &store.Profile{UID: "u1", City: "Paris"}); err != nil {
		t.Fatalf("DailyBriefing: %v", err)
	}
	if !strings.Contains(model.Requests()[0].Prompt, "for Global today") {
		t.Errorf("prompt = %q", model.Requests()[0].Prompt)
	}
}

func TestRunNotifies(t *testing.T) {
	model := newMonitorModel(`{"topic": "Mars missions"}`, "A lander touched down.")

	var mu sync.Mutex
	var got []Notification
	a, st := newAgent(t, model, WithNotify(func(uid string, n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	}))
	seedHistory(t, st, "u1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, "u1", 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no notification delivered")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if got[0].Title != "New Intel: Mars missions" {
		t.Errorf("notification = %+v", got[0])
	}
}
