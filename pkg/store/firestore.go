package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// FirestoreConfig configures the Firestore store.
type FirestoreConfig struct {
	// ProjectID is the Google Cloud project. Required.
	ProjectID string

	// CredentialsFile is an optional service-account JSON file. Empty uses
	// application default credentials.
	CredentialsFile string

	Logger *slog.Logger
}

// Firestore implements Store on Cloud Firestore. Documents live under
// users/{uid}/...
type Firestore struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewFirestore connects to Firestore.
func NewFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("store: firestore project id is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("store: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("store: parse credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: create firestore client: %w", err)
	}

	return &Firestore{
		client: client,
		logger: logger.With("component", "store.firestore", "project", cfg.ProjectID),
	}, nil
}

// Close releases the client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) user(uid string) *firestore.DocumentRef {
	return f.client.Collection("users").Doc(uid)
}

func (f *Firestore) col(uid, name string) *firestore.CollectionRef {
	return f.user(uid).Collection(name)
}

func notFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func each(iter *firestore.DocumentIterator, fn func(*firestore.DocumentSnapshot) error) error {
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// Firestore documents

type messageDoc struct {
	Role              string    `firestore:"role"`
	Content           string    `firestore:"content"`
	Timestamp         time.Time `firestore:"timestamp"`
	Attachment        string    `firestore:"attachment,omitempty"`
	GeneratedImage    string    `firestore:"generatedImage,omitempty"`
	ThinkingTimeMS    int64     `firestore:"thinkingTime,omitempty"`
	Sources           []Source  `firestore:"groundingMetadata,omitempty"`
	ReplyToID         string    `firestore:"replyToId,omitempty"`
	ReplyToContent    string    `firestore:"replyToContent,omitempty"`
	IsLiveInteraction bool      `firestore:"isLiveInteraction,omitempty"`
	DiscussionTopic   string    `firestore:"discussionTopic,omitempty"`
}

type conversationDoc struct {
	UserID      string    `firestore:"userId"`
	Title       string    `firestore:"title"`
	IsPrimary   bool      `firestore:"isPrimary"`
	UseMemory   bool      `firestore:"useMemory"`
	IsPinned    bool      `firestore:"isPinned"`
	IsTemporary bool      `firestore:"isTemporary"`
	IsDeleted   bool      `firestore:"isDeleted"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type taskDoc struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description,omitempty"`
	Priority    string    `firestore:"priority"`
	DueDate     string    `firestore:"dueDate,omitempty"`
	Completed   bool      `firestore:"completed"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type reminderDoc struct {
	Title     string    `firestore:"title"`
	Datetime  string    `firestore:"datetime"`
	Completed bool      `firestore:"completed"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type documentDoc struct {
	Title      string    `firestore:"title"`
	Type       string    `firestore:"type"`
	Content    string    `firestore:"content"`
	Tags       []string  `firestore:"tags,omitempty"`
	UploadedAt time.Time `firestore:"uploadedAt"`
}

type insightDoc struct {
	Content   string    `firestore:"content"`
	Timestamp time.Time `firestore:"timestamp"`
}

type profileDoc struct {
	UID       string    `firestore:"uid"`
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email,omitempty"`
	Country   string    `firestore:"country,omitempty"`
	City      string    `firestore:"city,omitempty"`
	Gender    string    `firestore:"gender,omitempty"`
	Language  string    `firestore:"language,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type settingsDoc struct {
	APIKeys []string `firestore:"apiKeys"`
}

// SaveMessage appends a message and bumps its conversation.
func (f *Firestore) SaveMessage(ctx context.Context, uid string, msg *Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("store: message without conversation")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	convo := f.col(uid, "conversations").Doc(msg.ConversationID)
	ref, _, err := convo.Collection("messages").Add(ctx, messageDoc{
		Role:              string(msg.Role),
		Content:           msg.Content,
		Timestamp:         msg.Timestamp,
		Attachment:        msg.Attachment,
		GeneratedImage:    msg.GeneratedImage,
		ThinkingTimeMS:    msg.ThinkingTime.Milliseconds(),
		Sources:           msg.Sources,
		ReplyToID:         msg.ReplyToID,
		ReplyToContent:    msg.ReplyToContent,
		IsLiveInteraction: msg.IsLiveInteraction,
		DiscussionTopic:   msg.DiscussionTopic,
	})
	if err != nil {
		return fmt.Errorf("store: save message: %w", err)
	}
	msg.ID = ref.ID

	_, err = convo.Set(ctx, map[string]interface{}{
		"updatedAt": firestore.ServerTimestamp,
		"isDeleted": false,
		"userId":    uid,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("store: touch conversation: %w", err)
	}
	return nil
}

// History returns up to limit messages in timestamp order.
func (f *Firestore) History(ctx context.Context, uid, conversationID string, limit int) ([]Message, error) {
	q := f.col(uid, "conversations").Doc(conversationID).Collection("messages").
		OrderBy("timestamp", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []Message
	err := each(q.Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		var d messageDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode message %s: %w", snap.Ref.ID, err)
		}
		out = append(out, Message{
			ID:                snap.Ref.ID,
			ConversationID:    conversationID,
			Role:              Role(d.Role),
			Content:           d.Content,
			Timestamp:         d.Timestamp,
			Attachment:        d.Attachment,
			GeneratedImage:    d.GeneratedImage,
			ThinkingTime:      time.Duration(d.ThinkingTimeMS) * time.Millisecond,
			Sources:           d.Sources,
			ReplyToID:         d.ReplyToID,
			ReplyToContent:    d.ReplyToContent,
			IsLiveInteraction: d.IsLiveInteraction,
			DiscussionTopic:   d.DiscussionTopic,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	return out, nil
}

// CreateConversation adds a non-primary conversation.
func (f *Firestore) CreateConversation(ctx context.Context, uid, title string, useMemory bool) (string, error) {
	now := time.Now()
	ref, _, err := f.col(uid, "conversations").Add(ctx, conversationDoc{
		UserID:    uid,
		Title:     title,
		UseMemory: useMemory,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("store: create conversation: %w", err)
	}
	return ref.ID, nil
}

// Conversation returns a conversation's metadata.
func (f *Firestore) Conversation(ctx context.Context, uid, id string) (*Conversation, error) {
	snap, err := f.col(uid, "conversations").Doc(id).Get(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	var d conversationDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("store: decode conversation: %w", err)
	}
	return &Conversation{
		ID:          id,
		Title:       d.Title,
		IsPrimary:   d.IsPrimary,
		UseMemory:   d.UseMemory,
		IsPinned:    d.IsPinned,
		IsTemporary: d.IsTemporary,
		IsDeleted:   d.IsDeleted,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// RenameConversation sets a conversation's title.
func (f *Firestore) RenameConversation(ctx context.Context, uid, id, title string) error {
	_, err := f.col(uid, "conversations").Doc(id).Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
	})
	if err != nil {
		return notFound(err)
	}
	return nil
}

// AddTask stores a pending task.
func (f *Firestore) AddTask(ctx context.Context, uid string, t Task) (Task, error) {
	t.Completed = false
	t.CreatedAt = time.Now()
	ref, _, err := f.col(uid, "tasks").Add(ctx, taskDoc{
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
	})
	if err != nil {
		return Task{}, fmt.Errorf("store: add task: %w", err)
	}
	t.ID = ref.ID
	return t, nil
}

// DeleteTask removes a task.
func (f *Firestore) DeleteTask(ctx context.Context, uid, id string) error {
	if _, err := f.col(uid, "tasks").Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("store: delete task: %w", notFound(err))
	}
	return nil
}

// ListTasks returns tasks, newest first.
func (f *Firestore) ListTasks(ctx context.Context, uid string) ([]Task, error) {
	var out []Task
	err := each(f.col(uid, "tasks").OrderBy("createdAt", firestore.Desc).Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		var d taskDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode task %s: %w", snap.Ref.ID, err)
		}
		out = append(out, Task{
			ID:          snap.Ref.ID,
			Title:       d.Title,
			Description: d.Description,
			Priority:    Priority(d.Priority),
			DueDate:     d.DueDate,
			Completed:   d.Completed,
			CreatedAt:   d.CreatedAt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return out, nil
}

// AddReminder stores an active reminder.
func (f *Firestore) AddReminder(ctx context.Context, uid string, r Reminder) (Reminder, error) {
	r.Completed = false
	r.CreatedAt = time.Now()
	ref, _, err := f.col(uid, "reminders").Add(ctx, reminderDoc{
		Title:     r.Title,
		Datetime:  r.Datetime,
		CreatedAt: r.CreatedAt,
	})
	if err != nil {
		return Reminder{}, fmt.Errorf("store: add reminder: %w", err)
	}
	r.ID = ref.ID
	return r, nil
}

// DeleteReminder removes a reminder.
func (f *Firestore) DeleteReminder(ctx context.Context, uid, id string) error {
	if _, err := f.col(uid, "reminders").Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("store: delete reminder: %w", notFound(err))
	}
	return nil
}

// ListReminders returns reminders ordered by datetime.
func (f *Firestore) ListReminders(ctx context.Context, uid string) ([]Reminder, error) {
	var out []Reminder
	err := each(f.col(uid, "reminders").OrderBy("datetime", firestore.Asc).Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		var d reminderDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode reminder %s: %w", snap.Ref.ID, err)
		}
		out = append(out, Reminder{
			ID:        snap.Ref.ID,
			Title:     d.Title,
			Datetime:  d.Datetime,
			Completed: d.Completed,
			CreatedAt: d.CreatedAt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list reminders: %w", err)
	}
	return out, nil
}

// SaveDocument stores a document.
func (f *Firestore) SaveDocument(ctx context.Context, uid string, d Document) (string, error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	ref, _, err := f.col(uid, "documents").Add(ctx, documentDoc{
		Title:      d.Title,
		Type:       d.Type,
		Content:    d.Content,
		Tags:       d.Tags,
		UploadedAt: d.UploadedAt,
	})
	if err != nil {
		return "", fmt.Errorf("store: save document: %w", err)
	}
	f.logger.Debug("document saved", "uid", uid, "doc_id", ref.ID, "chars", len(d.Content))
	return ref.ID, nil
}

// ListDocuments returns up to limit documents, newest first.
func (f *Firestore) ListDocuments(ctx context.Context, uid string, limit int) ([]Document, error) {
	q := f.col(uid, "documents").OrderBy("uploadedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Document
	err := each(q.Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		var d documentDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode document %s: %w", snap.Ref.ID, err)
		}
		out = append(out, Document{
			ID:         snap.Ref.ID,
			Title:      d.Title,
			Type:       d.Type,
			Content:    d.Content,
			Tags:       d.Tags,
			UploadedAt: d.UploadedAt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	return out, nil
}

// SaveInsight appends an insight.
func (f *Firestore) SaveInsight(ctx context.Context, uid, content string) error {
	_, _, err := f.col(uid, "insights").Add(ctx, insightDoc{Content: content, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("store: save insight: %w", err)
	}
	return nil
}

// ListInsights returns up to limit insights, newest first.
func (f *Firestore) ListInsights(ctx context.Context, uid string, limit int) ([]Insight, error) {
	q := f.col(uid, "insights").OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Insight
	err := each(q.Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		var d insightDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode insight %s: %w", snap.Ref.ID, err)
		}
		out = append(out, Insight{ID: snap.Ref.ID, Content: d.Content, Timestamp: d.Timestamp})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list insights: %w", err)
	}
	return out, nil
}

// Profile returns a user's profile.
func (f *Firestore) Profile(ctx context.Context, uid string) (*Profile, error) {
	snap, err := f.user(uid).Get(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("store: decode profile: %w", err)
	}
	return &Profile{
		UID:       uid,
		Name:      d.Name,
		Email:     d.Email,
		Country:   d.Country,
		City:      d.City,
		Gender:    d.Gender,
		Language:  d.Language,
		CreatedAt: d.CreatedAt,
	}, nil
}

// SaveProfile merges a profile and creates the primary conversation on
// first save.
func (f *Firestore) SaveProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.UID == "" {
		return fmt.Errorf("store: profile without uid")
	}
	data := map[string]interface{}{
		"uid":        p.UID,
		"name":       p.Name,
		"email":      p.Email,
		"lastActive": firestore.ServerTimestamp,
	}
	if p.Country != "" {
		data["country"] = p.Country
	}
	if p.City != "" {
		data["city"] = p.City
	}
	if p.Gender != "" {
		data["gender"] = p.Gender
	}
	if p.Language != "" {
		data["language"] = p.Language
	}
	if !p.CreatedAt.IsZero() {
		data["createdAt"] = p.CreatedAt
	}
	if _, err := f.user(p.UID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("store: save profile: %w", err)
	}

	primary := f.col(p.UID, "conversations").Doc(PrimaryConversation)
	if _, err := primary.Get(ctx); err != nil {
		if status.Code(err) != codes.NotFound {
			return fmt.Errorf("store: check primary conversation: %w", err)
		}
		now := time.Now()
		_, err = primary.Set(ctx, conversationDoc{
			UserID:    p.UID,
			Title:     "Primary Protocol",
			IsPrimary: true,
			UseMemory: true,
			IsPinned:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("store: create primary conversation: %w", err)
		}
	}
	return nil
}

// APIKeys returns the stored key list, or nil when none is saved.
func (f *Firestore) APIKeys(ctx context.Context, uid string) ([]string, error) {
	snap, err := f.col(uid, "settings").Doc("config").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load api keys: %w", err)
	}
	var d settingsDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("store: decode settings: %w", err)
	}
	return d.APIKeys, nil
}

// SaveAPIKeys replaces the stored key list.
func (f *Firestore) SaveAPIKeys(ctx context.Context, uid string, keys []string) error {
	_, err := f.col(uid, "settings").Doc("config").Set(ctx, map[string]interface{}{
		"apiKeys": keys,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("store: save api keys: %w", err)
	}
	return nil
}

var _ Store = (*Firestore)(nil)
