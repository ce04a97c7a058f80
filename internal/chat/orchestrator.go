package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/audio"
	"github.com/normanking/posteravatar/internal/avatar"
	"github.com/normanking/posteravatar/internal/bus"
)

// Orchestrator errors
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a request is already in flight")
	ErrNoNarration  = errors.New("no narration to replay")
)

// DefaultHistoryWindow is how many trailing entries are sent with each request.
const DefaultHistoryWindow = 10

// Options configures an Orchestrator. Client is required.
type Options struct {
	Client        Client
	Audio         audio.Loader // nil disables narration
	Bus           *bus.EventBus
	Logger        zerolog.Logger
	HistoryWindow int
	Now           func() time.Time
}

// Orchestrator owns the transcript, the in-flight request and the current narration.
// Observers run synchronously while the orchestrator's lock is held; they must not
// call back into it.
type Orchestrator struct {
	client Client
	audio  audio.Loader
	bus    *bus.EventBus
	logger zerolog.Logger
	window int
	now    func() time.Time

	mood *avatar.Controller

	mu           sync.Mutex
	state        State
	narration    audio.Narration
	narrationID  uint64
	onMood       func(avatar.Mood)
	onTranscript func(State)
}

// NewOrchestrator creates an orchestrator in the idle mood with an empty transcript.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	o := &Orchestrator{
		client: opts.Client,
		audio:  opts.Audio,
		bus:    opts.Bus,
		logger: opts.Logger.With().Str("component", "chat").Logger(),
		window: opts.HistoryWindow,
		now:    opts.Now,
		mood:   avatar.NewController(),
	}
	o.mood.SetMoodHandler(o.moodChanged)
	return o
}

// OnMood registers the mood observer.
func (o *Orchestrator) OnMood(fn func(avatar.Mood)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onMood = fn
}

// OnTranscript registers an observer called with a copy of the state after every change.
func (o *Orchestrator) OnTranscript(fn func(State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTranscript = fn
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Mood returns the current mood.
func (o *Orchestrator) Mood() avatar.Mood {
	return o.mood.Mood()
}

// SendMessage appends text as a user entry and issues one request. It blocks until the
// reply is handled. Request failures are recovered into the fallback entry and are not
// returned.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if o.state.InFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	o.dispatch(MessageSent{Entry: Entry{Role: RoleUser, Text: text, Timestamp: o.now()}})
	gen := o.state.Generation
	window := o.state.Window(o.window)
	o.mu.Unlock()

	o.publish(bus.EventTypeMessageSent, map[string]any{"text": text, "window": len(window)})

	reply, err := o.client.Send(ctx, toMessages(window))
	if err != nil {
		o.logger.Error().Err(err).Msg("chat request failed")
		o.mu.Lock()
		o.dispatch(RequestFailed{
			Generation: gen,
			Fallback:   Entry{Role: RoleAssistant, Text: FallbackReply, Timestamp: o.now()},
		})
		o.mu.Unlock()
		o.publish(bus.EventTypeRequestFailed, map[string]any{"error": err.Error()})
		return nil
	}

	audioURL := reply.AudioURL
	if o.audio == nil {
		audioURL = ""
	}

	o.mu.Lock()
	stale := gen != o.state.Generation
	o.dispatch(RequestSucceeded{
		Generation: gen,
		Reply:      Entry{Role: RoleAssistant, Text: reply.Message, Timestamp: o.now()},
		AudioURL:   audioURL,
	})
	o.mu.Unlock()

	if stale {
		o.logger.Debug().Msg("discarding reply from before clear")
		return nil
	}
	o.publish(bus.EventTypeRequestSucceeded, map[string]any{
		"message":  reply.Message,
		"hasAudio": audioURL != "",
	})

	if audioURL != "" {
		o.startNarration(ctx, gen, audioURL)
	}
	return nil
}

// startNarration loads url and plays it. Any failure commits the pending entry.
func (o *Orchestrator) startNarration(ctx context.Context, gen uint64, url string) {
	n, err := o.audio.Load(ctx, url)

	o.mu.Lock()
	if gen != o.state.Generation {
		o.mu.Unlock()
		if n != nil {
			_ = n.Close()
		}
		return
	}
	if err != nil {
		o.dispatch(NarrationFailed{})
		o.mu.Unlock()
		o.logger.Warn().Err(err).Msg("narration load failed")
		o.publish(bus.EventTypeNarrationFailed, map[string]any{"error": err.Error()})
		return
	}
	if o.narration != nil {
		_ = o.narration.Close()
	}
	o.narration = n
	o.mu.Unlock()

	o.play(n, NarrationStarted{})
}

// play starts n and raises started, or NarrationFailed if playback cannot begin.
func (o *Orchestrator) play(n audio.Narration, started Event) {
	o.mu.Lock()
	o.narrationID++
	id := o.narrationID
	o.mu.Unlock()

	if err := n.Play(func() { o.narrationFinished(id) }); err != nil {
		o.mu.Lock()
		if id == o.narrationID {
			o.dispatch(NarrationFailed{})
		}
		o.mu.Unlock()
		o.logger.Warn().Err(err).Msg("narration playback failed")
		o.publish(bus.EventTypeNarrationFailed, map[string]any{"error": err.Error()})
		return
	}

	o.mu.Lock()
	current := id == o.narrationID
	if current {
		o.dispatch(started)
	}
	o.mu.Unlock()
	if current {
		o.publish(bus.EventTypeNarrationStarted, nil)
	}
}

func (o *Orchestrator) narrationFinished(id uint64) {
	o.mu.Lock()
	if id != o.narrationID {
		o.mu.Unlock()
		return
	}
	o.dispatch(NarrationEnded{})
	o.mu.Unlock()
	o.publish(bus.EventTypeNarrationEnded, nil)
}

// NarrationEnded commits the pending entry, if any, and returns to idle.
func (o *Orchestrator) NarrationEnded() {
	o.mu.Lock()
	o.narrationID++
	o.dispatch(NarrationEnded{})
	o.mu.Unlock()
	o.publish(bus.EventTypeNarrationEnded, nil)
}

// Clear drops the transcript and pending entry, stops narration and returns to idle.
// An in-flight request is not cancelled; its reply is discarded when it arrives.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	o.narrationID++
	if o.narration != nil {
		_ = o.narration.Close()
		o.narration = nil
	}
	o.dispatch(Cleared{})
	o.mu.Unlock()
	o.publish(bus.EventTypeCleared, nil)
}

// ReplayNarration plays the last narration again from the start.
func (o *Orchestrator) ReplayNarration() error {
	o.mu.Lock()
	n := o.narration
	o.mu.Unlock()
	if n == nil {
		return ErrNoNarration
	}
	n.Pause()
	o.play(n, ReplayStarted{})
	return nil
}

// Close stops narration.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.narrationID++
	if o.narration == nil {
		return nil
	}
	err := o.narration.Close()
	o.narration = nil
	return err
}

// dispatch reduces ev into the state and notifies observers. Callers hold o.mu.
func (o *Orchestrator) dispatch(ev Event) {
	o.state = Reduce(o.state, ev)
	o.logger.Debug().
		Str("event", ev.eventName()).
		Int("transcript", len(o.state.Transcript)).
		Bool("pending", o.state.Pending != nil).
		Str("mood", string(o.state.Mood())).
		Msg("state updated")

	o.mood.Set(avatar.State{IsThinking: o.state.Thinking, IsTalking: o.state.Talking})

	snapshot := o.state.Clone()
	if o.onTranscript != nil {
		o.onTranscript(snapshot)
	}
	o.publish(bus.EventTypeTranscript, map[string]any{
		"transcript": snapshot.Transcript,
		"pending":    snapshot.Pending,
	})
}

// moodChanged runs under both o.mu and the mood controller's lock.
func (o *Orchestrator) moodChanged(m avatar.Mood) {
	if o.onMood != nil {
		o.onMood(m)
	}
	o.publish(bus.EventTypeMoodChanged, map[string]any{"mood": string(m)})
}

func (o *Orchestrator) publish(t bus.EventType, data map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(bus.Event{Type: t, Data: data})
}

func toMessages(entries []Entry) []Message {
	msgs := make([]Message, len(entries))
	for i, e := range entries {
		msgs[i] = Message{Role: string(e.Role), Content: e.Text}
	}
	return msgs
}
