// Package insight is the background monitoring agent. It periodically
// looks at what the user has been talking about, searches for fresh news
// on their top interest, and stores what it finds as long-term insights
// that feed the assistant's memory context.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-jarvis/pkg/agent"
	"github.com/teslashibe/go-jarvis/pkg/clock"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

const (
	// DefaultInterval is how often Run analyses activity.
	DefaultInterval = 10 * time.Minute

	// MinMessages is the history length below which there is nothing to
	// analyse.
	MinMessages = 3

	// maxNotifications caps the per-user notification list.
	maxNotifications = 50
)

// Notification tells the user the monitoring agent found something.
type Notification struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Type             string    `json:"type"`
	Importance       string    `json:"importance,omitempty"`
	GeneratedContent string    `json:"generated_content,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Store is the persistence the agent reads activity from and writes
// insights to.
type Store interface {
	store.Messages
	store.Insights
	store.Profiles
}

// Agent runs monitoring passes for users.
type Agent struct {
	pool   *inference.Pool
	store  Store
	clock  clock.Clock
	logger *slog.Logger
	notify func(uid string, n Notification)

	mu           sync.Mutex
	lastBriefing map[string]string
	notes        map[string][]Notification
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithClock sets the clock used for timestamps and briefing days.
func WithClock(c clock.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// WithNotify registers fn to receive every new notification.
func WithNotify(fn func(uid string, n Notification)) Option {
	return func(a *Agent) { a.notify = fn }
}

// New creates an Agent.
func New(pool *inference.Pool, st Store, opts ...Option) *Agent {
	a := &Agent{
		pool:         pool,
		store:        st,
		clock:        clock.New(),
		logger:       slog.Default(),
		lastBriefing: make(map[string]string),
		notes:        make(map[string][]Notification),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "insight.agent")
	return a
}

type finding struct {
	topic   string
	content string
}

// AnalyzeActivity picks the user's top interest from recent conversation,
// searches for news on it and stores the result. It returns nil without
// error when there is too little history or nothing worth reporting.
func (a *Agent) AnalyzeActivity(ctx context.Context, uid string) (*Notification, error) {
	history, err := a.store.History(ctx, uid, store.PrimaryConversation, store.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("insight: load history: %w", err)
	}
	if len(history) < MinMessages {
		return nil, nil
	}
	logs := make([]string, len(history))
	for i, m := range history {
		logs[i] = m.Content
	}

	found, err := inference.Call(ctx, a.pool, func(ctx context.Context, m inference.Model) (finding, error) {
		resp, err := m.Generate(ctx, &inference.GenerateRequest{
			Prompt: topicPrompt(strings.Join(logs, "\n")),
			JSON:   true,
		})
		if err != nil {
			return finding{}, err
		}
		topic := parseTopic(resp.Text)
		if topic == "" {
			return finding{}, nil
		}

		news, err := m.Generate(ctx, &inference.GenerateRequest{
			Prompt:    fmt.Sprintf("Search for latest news on: %q. Summarize in 2 sentences.", topic),
			WebSearch: true,
		})
		if err != nil {
			return finding{}, err
		}
		return finding{topic: topic, content: strings.TrimSpace(news.Text)}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("insight: analyse activity: %w", err)
	}
	if found.topic == "" || found.content == "" {
		return nil, nil
	}

	entry := fmt.Sprintf("[MONITORING] Topic: %s. Found: %s", found.topic, found.content)
	if err := a.store.SaveInsight(ctx, uid, entry); err != nil {
		return nil, fmt.Errorf("insight: save: %w", err)
	}

	n := Notification{
		ID:               uuid.NewString(),
		Title:            "New Intel: " + found.topic,
		Message:          fmt.Sprintf("I've found new information regarding %s.", found.topic),
		Type:             "insight",
		Importance:       "medium",
		GeneratedContent: found.content,
		Timestamp:        a.clock.Now(),
	}
	a.remember(uid, n)
	a.logger.Info("monitoring insight found", "uid", uid, "topic", found.topic)
	return &n, nil
}

// DailyBriefing stores a headlines and weather summary for the user's
// location, at most once per calendar day. It reports whether a briefing
// was written.
func (a *Agent) DailyBriefing(ctx context.Context, p *store.Profile) (bool, error) {
	if p == nil {
		return false, nil
	}
	today := a.clock.Now().Format(time.DateOnly)

	a.mu.Lock()
	done := a.lastBriefing[p.UID] == today
	a.mu.Unlock()
	if done {
		return false, nil
	}

	location := "Global"
	if p.City != "" && p.Country != "" {
		location = p.City + ", " + p.Country
	}

	text, err := inference.Call(ctx, a.pool, func(ctx context.Context, m inference.Model) (string, error) {
		resp, err := m.Generate(ctx, &inference.GenerateRequest{
			Prompt:    fmt.Sprintf("Find top breaking news headlines and weather for %s today. Summarize in 3 bullet points.", location),
			WebSearch: true,
		})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Text), nil
	})
	if err != nil {
		return false, fmt.Errorf("insight: daily briefing: %w", err)
	}
	if text == "" {
		return false, nil
	}

	if err := a.store.SaveInsight(ctx, p.UID, fmt.Sprintf("[DAILY BRIEFING] %s: %s", location, text)); err != nil {
		return false, fmt.Errorf("insight: save briefing: %w", err)
	}

	a.mu.Lock()
	a.lastBriefing[p.UID] = today
	a.mu.Unlock()
	a.logger.Info("daily briefing stored", "uid", p.UID, "location", location)
	return true, nil
}

// Run writes the daily briefing, then analyses activity every interval
// until ctx is done.
func (a *Agent) Run(ctx context.Context, uid string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if p, err := a.store.Profile(ctx, uid); err != nil {
		a.logger.Warn("profile unavailable, skipping briefing", "uid", uid, "error", err)
	} else if _, err := a.DailyBriefing(ctx, p); err != nil {
		a.logger.Warn("briefing failed", "uid", uid, "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.logger.Debug("running monitoring agent", "uid", uid)
			n, err := a.AnalyzeActivity(ctx, uid)
			if err != nil {
				a.logger.Warn("monitoring pass failed", "uid", uid, "error", err)
				continue
			}
			if n != nil && a.notify != nil {
				a.notify(uid, *n)
			}
		}
	}
}

// Notifications returns the user's notifications, newest first.
func (a *Agent) Notifications(uid string) []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Notification(nil), a.notes[uid]...)
}

func (a *Agent) remember(uid string, n Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	notes := append([]Notification{n}, a.notes[uid]...)
	if len(notes) > maxNotifications {
		notes = notes[:maxNotifications]
	}
	a.notes[uid] = notes
}

func topicPrompt(logs string) string {
	return fmt.Sprintf(`TASK: Analyze chat logs. Identify ONE top interest topic.
LOGS: %s
OUTPUT JSON: { "topic": "..." | null }`, logs)
}

// parseTopic reads the classifier output; anything malformed means no
// topic.
func parseTopic(text string) string {
	var out struct {
		Topic *string `json:"topic"`
	}
	if err := json.Unmarshal([]byte(agent.CleanJSON(text)), &out); err != nil || out.Topic == nil {
		return ""
	}
	return strings.TrimSpace(*out.Topic)
}
