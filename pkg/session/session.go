// Package session runs one live voice conversation between a user and the
// assistant.
//
// A Session owns the audio devices, a sequence of live connection attempts,
// the silence monitor, tool delegation and transcript persistence. Each
// connection attempt gets a fresh live.Client; callbacks from superseded
// attempts are ignored by generation number. Abnormal closures go through
// a bounded Reconnector, and a manual close always wins.
//
// Example usage:
//
//	s, err := session.New(session.Deps{
//	    UserID: uid,
//	    Store:  st,
//	    Agent:  router,
//	    Source: mic,
//	    Sink:   speaker,
//	}, session.WithLiveOptions(live.WithAPIKey(key)))
//	if err != nil {
//	    return err
//	}
//	if err := s.Start(ctx, session.StartParams{Topic: topic}); err != nil {
//	    return err
//	}
//	<-s.Done()
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/audioio"
	"github.com/teslashibe/go-jarvis/pkg/clock"
	"github.com/teslashibe/go-jarvis/pkg/live"
	"github.com/teslashibe/go-jarvis/pkg/silence"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// Status is the externally visible session state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Reasons a session ended.
const (
	ReasonManual             = "manual"
	ReasonSilence            = "silence"
	ReasonUserDismissed      = "user_dismissed"
	ReasonDemoLimit          = "demo_limit"
	ReasonReconnectExhausted = "reconnect_exhausted"
	ReasonDevice             = "device_error"
	ReasonConfig             = "config_error"
)

// closePhrases end the session when heard in a completed user turn.
var closePhrases = []string{"no questions", "nothing", "tidak ada", "stop"}

// IsClosePhrase reports whether a user turn dismisses the assistant.
func IsClosePhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range closePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Store is the persistence a session reads context from and writes turns
// to.
type Store interface {
	store.Messages
	store.Tasks
	store.Reminders
	store.Insights
	store.Profiles
}

// Deps are the collaborators of a Session.
type Deps struct {
	UserID string

	// ConversationID receives the transcript. Empty uses the primary
	// conversation.
	ConversationID string

	// Profile is loaded from Store on Start when nil.
	Profile *store.Profile

	Store  Store
	Agent  Agent
	Source audioio.Source
	Sink   audioio.Sink
}

// StartParams carries the optional startup context for a fresh session.
type StartParams struct {
	// Topic is a monitoring topic to hand over, or live.IntroTopic.
	Topic string

	// Prompt is the notification preview the user just heard.
	Prompt string
}

// EventKind identifies what changed.
type EventKind string

const (
	EventStatus      EventKind = "status"
	EventTranscript  EventKind = "transcript"
	EventCountdown   EventKind = "countdown"
	EventAgentStatus EventKind = "agent_status"
	EventSpeaking    EventKind = "speaking"
)

// Event is delivered to listeners after each state change.
type Event struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`

	// Role and Text carry a transcript fragment for EventTranscript.
	Role store.Role `json:"role,omitempty"`
	Text string     `json:"text,omitempty"`
}

// Listener receives session events. It must not block.
type Listener func(Event)

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	Status            Status    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	MicOn             bool      `json:"mic_on"`
	AISpeaking        bool      `json:"ai_speaking"`
	ToolProcessing    bool      `json:"tool_processing"`
	Countdown         int       `json:"countdown"`
	AgentStatus       string    `json:"agent_status,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	Volume            float64   `json:"volume"`
	StartedAt         time.Time `json:"started_at"`
}

type toolBatch struct {
	gen   uint64
	calls []live.FunctionCall
}

// Session is one live voice conversation.
type Session struct {
	deps      Deps
	opts      *Options
	clock     clock.Clock
	logger    *slog.Logger
	monitor   *silence.Monitor
	queue     *audioio.PlaybackQueue
	tools     *ToolRunner
	reconnect *Reconnector
	writer    *turnWriter

	ctx    context.Context
	cancel context.CancelFunc
	toolCh chan toolBatch
	done   chan struct{}

	mu             sync.Mutex
	status         Status
	reason         string
	started        bool
	closing        bool
	tornDown       bool
	gen            uint64
	client         *live.Client
	params         StartParams
	profile        *store.Profile
	micOn          bool
	aiSpeaking     bool
	toolProcessing bool
	toolPending    int
	agentStatus    string
	countdown      int
	volume         float64
	startedAt      time.Time
	echoTimer      clock.Timer
	tickTimer      clock.Timer
	userText       strings.Builder
	modelText      strings.Builder
	transcript     strings.Builder
	listeners      map[int]Listener
	nextListener   int
}

// New creates a Session. Nothing is acquired until Start.
func New(deps Deps, opts ...Option) (*Session, error) {
	switch {
	case deps.UserID == "":
		return nil, ErrMissingUser
	case deps.Agent == nil:
		return nil, ErrMissingAgent
	case deps.Store == nil:
		return nil, ErrMissingStore
	case deps.Source == nil || deps.Sink == nil:
		return nil, ErrMissingAudio
	}
	if deps.ConversationID == "" {
		deps.ConversationID = store.PrimaryConversation
	}

	o := DefaultOptions()
	o.Apply(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	logger := o.Logger.With("component", "session", "uid", deps.UserID)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		deps:      deps,
		opts:      o,
		clock:     o.Clock,
		logger:    logger,
		monitor:   silence.New(o.Silence, o.Clock.Now()),
		queue:     audioio.NewPlaybackQueue(deps.Sink, o.Clock, logger),
		tools:     NewToolRunner(deps.Agent, o.ToolTimeout, o.Clock, logger, o.Tracer),
		reconnect: NewReconnector(o.ReconnectAttempts, o.ReconnectDelay, o.Clock),
		writer:    newTurnWriter(deps.Store, deps.UserID, deps.ConversationID, logger),
		ctx:       ctx,
		cancel:    cancel,
		toolCh:    make(chan toolBatch, 8),
		done:      make(chan struct{}),
		status:    StatusIdle,
		profile:   deps.Profile,
		listeners: make(map[int]Listener),
	}
	s.queue.OnDrained(s.onPlaybackDrained)
	return s, nil
}

// Start acquires the audio devices and opens the first connection. It
// returns once the setup frame is sent; connection failures after that are
// handled by reconnection. A device failure is returned as *DeviceError and
// leaves the session in StatusError. Cancelling ctx closes the session.
func (s *Session) Start(ctx context.Context, p StartParams) error {
	s.mu.Lock()
	switch {
	case s.closing:
		s.mu.Unlock()
		return ErrClosed
	case s.started:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.params = p
	s.status = StatusConnecting
	s.startedAt = s.clock.Now()
	s.micOn = true
	profile := s.profile
	s.mu.Unlock()
	s.emit(EventStatus, "", "")

	if profile == nil {
		var err error
		profile, err = s.deps.Store.Profile(ctx, s.deps.UserID)
		if err != nil {
			s.logger.Warn("profile unavailable, using defaults", "error", err)
			profile = &store.Profile{UID: s.deps.UserID}
		}
		s.mu.Lock()
		s.profile = profile
		s.mu.Unlock()
	}

	if err := s.deps.Sink.Start(s.ctx); err != nil {
		derr := &DeviceError{Device: "speaker", Err: err}
		s.fail(ReasonDevice, derr)
		return derr
	}
	if err := s.deps.Source.Start(s.ctx); err != nil {
		derr := &DeviceError{Device: "microphone", Err: err}
		s.fail(ReasonDevice, derr)
		return derr
	}

	go audioio.Capture(s.ctx, s.deps.Source, s.HandleFrame)
	go s.toolLoop()
	go s.watch(ctx)

	s.monitor.Reset(s.clock.Now())
	s.scheduleTick()

	s.logger.Info("starting live session", "topic", p.Topic, "has_prompt", p.Prompt != "")
	s.connect(false)
	return nil
}

// Close ends the session on the user's behalf. It is idempotent.
func (s *Session) Close() error {
	s.closeWith(ReasonManual)
	return nil
}

// Done is closed once the session has released its resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SetMic enables or disables the microphone.
func (s *Session) SetMic(on bool) {
	s.mu.Lock()
	s.micOn = on
	s.mu.Unlock()
	s.monitor.Touch(s.clock.Now())
	s.emit(EventStatus, "", "")
}

// Subscribe registers l for session events and returns a function that
// removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	attempts := s.reconnect.Attempts()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(attempts)
}

func (s *Session) snapshotLocked(attempts int) Snapshot {
	return Snapshot{
		Status:            s.status,
		Reason:            s.reason,
		MicOn:             s.micOn,
		AISpeaking:        s.aiSpeaking,
		ToolProcessing:    s.toolProcessing,
		Countdown:         s.countdown,
		AgentStatus:       s.agentStatus,
		ReconnectAttempts: attempts,
		Volume:            s.volume,
		StartedAt:         s.startedAt,
	}
}

// Transcript returns the local transcript log replayed on reconnect.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// HandleFrame processes one captured frame. Frames are dropped unless the
// session is connected, the mic is on, the AI is silent and no tool call
// is running.
func (s *Session) HandleFrame(f audioio.Frame) {
	s.mu.Lock()
	accept := s.status == StatusConnected && s.micOn && !s.aiSpeaking && !s.toolProcessing
	client := s.client
	s.mu.Unlock()
	if !accept || client == nil {
		return
	}

	rms := audioio.RMS(f.Samples)
	s.monitor.Observe(s.clock.Now(), rms)
	s.mu.Lock()
	s.volume = audioio.Volume(rms)
	s.mu.Unlock()

	pcm := audioio.FloatToPCM16(f.Samples)
	if f.SampleRate != 0 && f.SampleRate != audioio.CaptureSampleRate {
		pcm = audioio.Resample(pcm, f.SampleRate, audioio.CaptureSampleRate)
	}
	if err := client.SendAudio(pcm); err != nil && !live.IsNotConnected(err) {
		s.logger.Debug("failed to send audio", "error", err)
	}
}

// Tick runs one silence check and enforces the demo limit. Start arms a
// ticker that calls it every Options.TickInterval.
func (s *Session) Tick() {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	active := s.status == StatusConnected && s.micOn && !s.aiSpeaking && !s.toolProcessing
	demoOver := s.deps.UserID == DemoUser && s.opts.DemoLimit > 0 &&
		s.started && now.Sub(s.startedAt) >= s.opts.DemoLimit
	s.mu.Unlock()

	if demoOver {
		s.logger.Info("demo time limit reached")
		s.closeWith(ReasonDemoLimit)
		return
	}

	d := s.monitor.Tick(now, active)

	s.mu.Lock()
	changed := s.countdown != d.Countdown
	s.countdown = d.Countdown
	s.mu.Unlock()
	if changed {
		s.emit(EventCountdown, "", "")
	}
	if d.Close {
		s.logger.Info("closing after silence", "since", s.monitor.LastSpeechAt())
		s.closeWith(ReasonSilence)
	}
}

func (s *Session) scheduleTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.tickTimer = s.clock.AfterFunc(s.opts.TickInterval, func() {
		s.Tick()
		s.scheduleTick()
	})
}

func (s *Session) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.closeWith(ReasonManual)
	case <-s.done:
	}
}

// connect opens one connection attempt.
func (s *Session) connect(reconnect bool) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	params := s.instruction(reconnect)

	opts := append([]live.Option{live.WithLogger(s.logger)}, s.opts.Live...)
	client, err := live.NewClient(&attempt{s: s, gen: gen, reconnect: reconnect}, opts...)
	if err != nil {
		s.fail(ReasonConfig, err)
		return
	}

	s.mu.Lock()
	if s.closing || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.client = client
	s.mu.Unlock()

	setup := client.NewSetup(live.BuildInstruction(params), live.ConsultCoreSystem)
	if err := client.Open(s.ctx, setup); err != nil {
		s.logger.Warn("open failed", "reconnect", reconnect, "error", err)
	}
}

// instruction gathers the system instruction inputs for one attempt.
func (s *Session) instruction(reconnect bool) live.InstructionParams {
	s.mu.Lock()
	profile := s.profile
	params := s.params
	transcript := s.transcript.String()
	s.mu.Unlock()

	p := live.InstructionParams{
		Honorific:  profile.Honorific(),
		Indonesian: profile.Indonesian(),
		Reconnect:  reconnect,
	}
	if profile != nil {
		p.Name = profile.Name
	}

	memory, err := store.LoadMemory(s.ctx, s.deps.Store, s.deps.UserID)
	if err != nil {
		s.logger.Warn("memory context unavailable", "error", err)
	}
	tasks, err := store.LoadTasks(s.ctx, s.deps.Store, s.deps.UserID)
	if err != nil {
		s.logger.Warn("task context unavailable", "error", err)
	}
	p.Memory, p.Tasks = memory, tasks

	if reconnect {
		p.Transcript = transcript
	} else {
		p.Topic, p.Prompt = params.Topic, params.Prompt
	}
	return p
}

// attempt routes one client's callbacks into the session, tagged with the
// generation they belong to.
type attempt struct {
	s         *Session
	gen       uint64
	reconnect bool
}

func (a *attempt) OnOpen()                           { a.s.onOpen(a.gen, a.reconnect) }
func (a *attempt) OnMessage(msg *live.ServerMessage) { a.s.onMessage(a.gen, msg) }
func (a *attempt) OnClose(info live.CloseInfo)       { a.s.onClose(a.gen, info) }

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closing && gen == s.gen
}

func (s *Session) onOpen(gen uint64, reconnect bool) {
	s.mu.Lock()
	if s.closing || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnected
	client, topic := s.client, s.params.Topic
	s.mu.Unlock()

	s.reconnect.Reset()
	s.monitor.Reset(s.clock.Now())
	s.logger.Info("live session connected", "reconnect", reconnect)
	s.emit(EventStatus, "", "")

	if !reconnect && topic != "" {
		if err := client.SendText(live.StartNudge); err != nil {
			s.logger.Warn("failed to send start nudge", "error", err)
		}
	}
}

func (s *Session) onMessage(gen uint64, msg *live.ServerMessage) {
	if !s.current(gen) {
		return
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.appendTranscript(store.RoleUser, sc.InputTranscription.Text)
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.appendTranscript(store.RoleModel, sc.OutputTranscription.Text)
		}
		if sc.TurnComplete {
			s.completeTurn()
		}
		for _, blob := range sc.Audio() {
			s.playAudio(blob)
		}
		if sc.Interrupted {
			s.interrupt()
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		s.enqueueTools(gen, tc.FunctionCalls)
	}
	if c := msg.ToolCallCancellation; c != nil {
		s.logger.Debug("server cancelled tool calls", "ids", c.IDs)
	}
}

func (s *Session) appendTranscript(role store.Role, text string) {
	s.mu.Lock()
	if role == store.RoleUser {
		s.userText.WriteString(text)
	} else {
		s.modelText.WriteString(text)
	}
	s.mu.Unlock()
	s.emit(EventTranscript, role, text)
}

// completeTurn flushes both transcript buffers.
func (s *Session) completeTurn() {
	now := s.clock.Now()

	s.mu.Lock()
	user := strings.TrimSpace(s.userText.String())
	model := strings.TrimSpace(s.modelText.String())
	s.userText.Reset()
	s.modelText.Reset()
	if user != "" {
		fmt.Fprintf(&s.transcript, "\nUSER: %s", user)
	}
	if model != "" {
		fmt.Fprintf(&s.transcript, "\nJARVIS: %s", model)
	}
	s.mu.Unlock()

	s.writer.Enqueue(turn{user: user, model: model, at: now})
	if user != "" || model != "" {
		s.monitor.Touch(now)
	}
	if user != "" && IsClosePhrase(user) {
		s.logger.Info("user dismissed the session", "text", user)
		s.closeWith(ReasonUserDismissed)
	}
}

func (s *Session) playAudio(blob live.Blob) {
	rate, ok := audioio.ParsePCMMime(blob.MimeType, audioio.PlaybackSampleRate)
	if !ok {
		s.logger.Debug("ignoring non-PCM payload", "mime", blob.MimeType)
		return
	}
	samples, err := audioio.DecodeBase64(blob.Data)
	if err != nil {
		s.logger.Warn("bad audio payload", "error", err)
		return
	}
	if target := s.deps.Sink.Config().SampleRate; target > 0 && target != rate {
		samples = audioio.Resample(samples, rate, target)
		rate = target
	}

	s.mu.Lock()
	started := !s.aiSpeaking
	s.aiSpeaking = true
	if s.echoTimer != nil {
		s.echoTimer.Stop()
		s.echoTimer = nil
	}
	s.mu.Unlock()

	s.monitor.Touch(s.clock.Now())
	if started {
		s.emit(EventSpeaking, "", "")
	}
	if _, err := s.queue.Enqueue(s.ctx, audioio.AudioChunk{Samples: samples, SampleRate: rate}); err != nil {
		s.logger.Warn("playback enqueue failed", "error", err)
	}
}

func (s *Session) interrupt() {
	s.queue.Interrupt()

	s.mu.Lock()
	s.aiSpeaking = false
	if s.echoTimer != nil {
		s.echoTimer.Stop()
		s.echoTimer = nil
	}
	s.mu.Unlock()

	s.monitor.Touch(s.clock.Now())
	s.emit(EventSpeaking, "", "")
}

// onPlaybackDrained starts the echo settle delay once queued audio has
// finished, unless a tool call is still running.
func (s *Session) onPlaybackDrained() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolProcessing || s.closing {
		return
	}
	if s.echoTimer != nil {
		s.echoTimer.Stop()
	}
	s.echoTimer = s.clock.AfterFunc(s.opts.EchoSettle, s.echoSettled)
}

func (s *Session) echoSettled() {
	queued := s.queue.Len()

	s.mu.Lock()
	if s.toolProcessing || queued > 0 || !s.aiSpeaking {
		s.mu.Unlock()
		return
	}
	s.aiSpeaking = false
	s.echoTimer = nil
	s.mu.Unlock()

	s.monitor.Touch(s.clock.Now())
	s.emit(EventSpeaking, "", "")
}

func (s *Session) onClose(gen uint64, info live.CloseInfo) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	closing := s.closing
	s.mu.Unlock()

	if closing || !info.Abnormal {
		s.teardown(StatusDisconnected, ReasonManual)
		return
	}

	s.logger.Warn("live connection lost", "error", info.Err)
	n, ok := s.reconnect.Schedule(func() { s.connect(true) })
	if !ok {
		s.logger.Error("reconnect attempts exhausted", "attempts", n)
		s.teardown(StatusDisconnected, ReasonReconnectExhausted)
		return
	}

	s.queue.Interrupt()
	s.mu.Lock()
	s.status = StatusReconnecting
	s.aiSpeaking = false
	if s.echoTimer != nil {
		s.echoTimer.Stop()
		s.echoTimer = nil
	}
	s.mu.Unlock()

	s.logger.Info("reconnecting", "attempt", n, "delay", s.opts.ReconnectDelay)
	s.emit(EventStatus, "", "")
}

// closeWith is the single manual-close path shared by the user, the
// silence monitor, dismiss phrases and the demo limit.
func (s *Session) closeWith(reason string) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	if s.reason == "" {
		s.reason = reason
	}
	client := s.client
	s.mu.Unlock()

	s.logger.Info("closing live session", "reason", reason)
	s.reconnect.Stop()
	if client != nil {
		_ = client.Close()
	}
	s.teardown(StatusDisconnected, reason)
}

func (s *Session) fail(reason string, err error) {
	s.logger.Error("live session failed", "reason", reason, "error", err)
	s.teardown(StatusError, reason)
}

// teardown releases every resource and publishes the final status. Only
// the first call has an effect.
func (s *Session) teardown(status Status, reason string) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	s.closing = true
	s.status = status
	if s.reason == "" {
		s.reason = reason
	}
	s.aiSpeaking = false
	s.toolProcessing = false
	s.countdown = 0
	s.agentStatus = ""
	for _, t := range []clock.Timer{s.echoTimer, s.tickTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.echoTimer, s.tickTimer = nil, nil
	client := s.client
	s.mu.Unlock()

	s.reconnect.Stop()
	s.cancel()
	if client != nil {
		_ = client.Close()
	}

	s.queue.Interrupt()
	if err := s.deps.Source.Close(); err != nil {
		s.logger.Warn("failed to release microphone", "error", err)
	}
	if err := s.deps.Sink.Close(); err != nil {
		s.logger.Warn("failed to release speaker", "error", err)
	}
	s.writer.Close()

	s.logger.Info("live session ended", "status", status, "reason", s.Snapshot().Reason)
	close(s.done)
	s.emit(EventStatus, "", "")
}

func (s *Session) emit(kind EventKind, role store.Role, text string) {
	attempts := s.reconnect.Attempts()
	s.mu.Lock()
	snap := s.snapshotLocked(attempts)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	ev := Event{Kind: kind, Snapshot: snap, Role: role, Text: text}
	for _, l := range listeners {
		l(ev)
	}
}

// Agent status lines shown while a tool call runs.
var (
	agentConnecting = [2]string{"CONNECTING TO AGENT...", "MENGHUBUNGI AGEN..."}
	agentAcquired   = [2]string{"DATA ACQUIRED. REPLYING...", "DATA DITERIMA. MEMBALAS..."}
	agentFailed     = [2]string{"CONNECTION FAILED.", "KONEKSI GAGAL."}
)

func (s *Session) localize(msg [2]string) string {
	if s.profile.Indonesian() {
		return msg[1]
	}
	return msg[0]
}

// enqueueTools marks a tool call in flight and hands it to the tool
// goroutine, keeping inbound handling free for audio and interrupts.
func (s *Session) enqueueTools(gen uint64, calls []live.FunctionCall) {
	s.mu.Lock()
	s.toolProcessing = true
	s.toolPending++
	s.agentStatus = s.localize(agentConnecting)
	s.mu.Unlock()

	s.monitor.Touch(s.clock.Now())
	s.emit(EventAgentStatus, "", "")

	select {
	case s.toolCh <- toolBatch{gen: gen, calls: calls}:
	case <-s.ctx.Done():
	}
}

func (s *Session) toolLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case b := <-s.toolCh:
			s.runTools(b)
		}
	}
}

// runTools resolves a batch in array order, one call at a time.
func (s *Session) runTools(b toolBatch) {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()

	for i, call := range b.calls {
		out := s.tools.Run(s.ctx, call, profile)

		s.mu.Lock()
		if out.TimedOut || out.Failed {
			s.agentStatus = s.localize(agentFailed)
		} else {
			s.agentStatus = s.localize(agentAcquired)
		}
		client := s.client
		current := !s.closing && b.gen == s.gen
		s.mu.Unlock()
		s.emit(EventAgentStatus, "", "")

		if i == len(b.calls)-1 {
			s.clock.AfterFunc(s.opts.ToolSettle, s.toolSettled)
		}
		if !current || client == nil {
			s.logger.Debug("dropping tool response for closed connection", "call_id", call.ID)
			continue
		}
		if err := client.SendToolResponse(call.ID, call.Name, out.Result); err != nil {
			s.logger.Warn("failed to send tool response", "call_id", call.ID, "error", err)
		}
	}
}

// toolSettled releases the mic after the last pending tool batch.
func (s *Session) toolSettled() {
	queued := s.queue.Len()

	s.mu.Lock()
	if s.toolPending > 0 {
		s.toolPending--
	}
	if s.toolPending > 0 || s.tornDown {
		s.mu.Unlock()
		return
	}
	s.toolProcessing = false
	s.agentStatus = ""
	if queued == 0 {
		s.aiSpeaking = false
	}
	s.mu.Unlock()

	s.monitor.Touch(s.clock.Now())
	s.emit(EventAgentStatus, "", "")
}
