package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/posteravatar/internal/audio"
	"github.com/normanking/posteravatar/internal/avatar"
	"github.com/normanking/posteravatar/internal/bus"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   [][]Message
	reply   Reply
	err     error
	release chan struct{} // when set, Send blocks until closed
	entered chan struct{}
}

func (c *fakeClient) Send(ctx context.Context, messages []Message) (Reply, error) {
	c.mu.Lock()
	c.calls = append(c.calls, messages)
	release, entered := c.release, c.entered
	c.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply, c.err
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeNarration struct {
	mu      sync.Mutex
	plays   int
	paused  int
	closed  bool
	playErr error
	onEnd   func()
}

func (n *fakeNarration) Play(onEnd func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.playErr != nil {
		return n.playErr
	}
	if n.closed {
		return audio.ErrClosed
	}
	n.plays++
	n.onEnd = onEnd
	return nil
}

func (n *fakeNarration) Pause() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused++
}

func (n *fakeNarration) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

// finish simulates the clip reaching its end.
func (n *fakeNarration) finish() {
	n.mu.Lock()
	fn := n.onEnd
	n.onEnd = nil
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeLoader struct {
	mu   sync.Mutex
	urls []string
	next *fakeNarration
	err  error
}

func (l *fakeLoader) Load(_ context.Context, url string) (audio.Narration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, url)
	if l.err != nil {
		return nil, l.err
	}
	n := l.next
	if n == nil {
		n = &fakeNarration{}
	}
	l.next = nil
	return n, nil
}

type moodLog struct {
	mu    sync.Mutex
	moods []avatar.Mood
}

func (m *moodLog) record(mood avatar.Mood) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moods = append(m.moods, mood)
}

func (m *moodLog) all() []avatar.Mood {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]avatar.Mood(nil), m.moods...)
}

func newTestOrchestrator(client Client, loader audio.Loader) (*Orchestrator, *moodLog) {
	o := NewOrchestrator(Options{
		Client: client,
		Audio:  loader,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return t0 },
	})
	log := &moodLog{}
	o.OnMood(log.record)
	return o, log
}

func TestSendMessage_NoAudio(t *testing.T) {
	client := &fakeClient{reply: Reply{Message: "Hi"}}
	o, moods := newTestOrchestrator(client, &fakeLoader{})

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))

	s := o.State()
	assert.Equal(t, []Entry{user("Hello"), assistant("Hi")}, s.Transcript)
	assert.Nil(t, s.Pending)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
	assert.Equal(t, []avatar.Mood{avatar.MoodThinking, avatar.MoodIdle}, moods.all())
	assert.Equal(t, [][]Message{{{Role: "user", Content: "Hello"}}}, client.calls)
}

func TestSendMessage_WithAudio(t *testing.T) {
	narr := &fakeNarration{}
	loader := &fakeLoader{next: narr}
	client := &fakeClient{reply: Reply{Message: "Hi", AudioURL: "data:audio/mp3;base64,AAA"}}
	o, moods := newTestOrchestrator(client, loader)

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))

	s := o.State()
	assert.Len(t, s.Transcript, 1)
	require.NotNil(t, s.Pending)
	assert.Equal(t, "Hi", s.Pending.Text)
	assert.Equal(t, avatar.MoodTalking, o.Mood())
	assert.Equal(t, []string{"data:audio/mp3;base64,AAA"}, loader.urls)
	assert.Equal(t, 1, narr.plays)

	narr.finish()
	s = o.State()
	assert.Len(t, s.Transcript, 2)
	assert.Nil(t, s.Pending)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
	assert.Equal(t, []avatar.Mood{avatar.MoodThinking, avatar.MoodTalking, avatar.MoodIdle}, moods.all())
}

func TestSendMessage_Guards(t *testing.T) {
	client := &fakeClient{
		reply:   Reply{Message: "Hi"},
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	o, _ := newTestOrchestrator(client, nil)

	assert.ErrorIs(t, o.SendMessage(context.Background(), "   "), ErrEmptyMessage)

	done := make(chan error, 1)
	go func() { done <- o.SendMessage(context.Background(), "first") }()
	<-client.entered

	assert.ErrorIs(t, o.SendMessage(context.Background(), "second"), ErrBusy)
	assert.Equal(t, avatar.MoodThinking, o.Mood())

	close(client.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, client.callCount())
	assert.Len(t, o.State().Transcript, 2)
}

func TestSendMessage_Failure(t *testing.T) {
	client := &fakeClient{err: errors.New("status=500")}
	o, _ := newTestOrchestrator(client, &fakeLoader{})

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))

	s := o.State()
	require.Len(t, s.Transcript, 2)
	assert.Equal(t, RoleAssistant, s.Transcript[1].Role)
	assert.Equal(t, FallbackReply, s.Transcript[1].Text)
	assert.False(t, s.InFlight)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
}

func TestSendMessage_HistoryWindow(t *testing.T) {
	client := &fakeClient{reply: Reply{Message: "ok"}}
	o, _ := newTestOrchestrator(client, nil)

	for i := 0; i < 6; i++ {
		require.NoError(t, o.SendMessage(context.Background(), "msg"))
	}
	last := client.calls[len(client.calls)-1]
	assert.Len(t, last, DefaultHistoryWindow)
	assert.Equal(t, "user", last[len(last)-1].Role)
	assert.Len(t, o.State().Transcript, 12)
}

func TestSendMessage_NarrationLoadFailure(t *testing.T) {
	loader := &fakeLoader{err: errors.New("bad audio")}
	client := &fakeClient{reply: Reply{Message: "Hi", AudioURL: "a.mp3"}}
	o, _ := newTestOrchestrator(client, loader)

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))
	s := o.State()
	assert.Len(t, s.Transcript, 2)
	assert.Nil(t, s.Pending)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
}

func TestSendMessage_NarrationPlayFailure(t *testing.T) {
	loader := &fakeLoader{next: &fakeNarration{playErr: errors.New("no device")}}
	client := &fakeClient{reply: Reply{Message: "Hi", AudioURL: "a.mp3"}}
	o, _ := newTestOrchestrator(client, loader)

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))
	assert.Len(t, o.State().Transcript, 2)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
}

func TestNarrationEnded_NoPending(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeClient{reply: Reply{Message: "Hi"}}, nil)
	require.NoError(t, o.SendMessage(context.Background(), "Hello"))

	o.NarrationEnded()
	o.NarrationEnded()
	assert.Len(t, o.State().Transcript, 2)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
}

func TestClear_WhilePending(t *testing.T) {
	narr := &fakeNarration{}
	client := &fakeClient{reply: Reply{Message: "Hi", AudioURL: "a.mp3"}}
	o, _ := newTestOrchestrator(client, &fakeLoader{next: narr})
	require.NoError(t, o.SendMessage(context.Background(), "Hello"))

	o.Clear()
	s := o.State()
	assert.Empty(t, s.Transcript)
	assert.Nil(t, s.Pending)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
	assert.True(t, narr.closed)

	// the old clip's end must not resurrect anything
	narr.finish()
	assert.Empty(t, o.State().Transcript)
	assert.ErrorIs(t, o.ReplayNarration(), ErrNoNarration)
}

func TestClear_StaleReplyDiscarded(t *testing.T) {
	loader := &fakeLoader{}
	client := &fakeClient{
		reply:   Reply{Message: "late", AudioURL: "a.mp3"},
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	o, _ := newTestOrchestrator(client, loader)

	done := make(chan error, 1)
	go func() { done <- o.SendMessage(context.Background(), "Hello") }()
	<-client.entered

	o.Clear()
	assert.Equal(t, avatar.MoodIdle, o.Mood())
	assert.ErrorIs(t, o.SendMessage(context.Background(), "again"), ErrBusy)

	close(client.release)
	require.NoError(t, <-done)

	s := o.State()
	assert.Empty(t, s.Transcript)
	assert.Nil(t, s.Pending)
	assert.False(t, s.InFlight)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
	assert.Empty(t, loader.urls, "stale narration is never loaded")
}

func TestReplayNarration(t *testing.T) {
	narr := &fakeNarration{}
	client := &fakeClient{reply: Reply{Message: "Hi", AudioURL: "a.mp3"}}
	o, moods := newTestOrchestrator(client, &fakeLoader{next: narr})

	assert.ErrorIs(t, o.ReplayNarration(), ErrNoNarration)

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))
	narr.finish()
	require.Len(t, o.State().Transcript, 2)

	require.NoError(t, o.ReplayNarration())
	assert.Equal(t, 2, narr.plays)
	assert.Equal(t, avatar.MoodTalking, o.Mood())
	assert.Equal(t, 1, client.callCount())

	narr.finish()
	assert.Len(t, o.State().Transcript, 2)
	assert.Equal(t, avatar.MoodIdle, o.Mood())
	assert.Equal(t, []avatar.Mood{
		avatar.MoodThinking, avatar.MoodTalking, avatar.MoodIdle,
		avatar.MoodTalking, avatar.MoodIdle,
	}, moods.all())
}

func TestOrchestrator_PublishesOnBus(t *testing.T) {
	eb := bus.NewEventBus()
	moods := make(chan string, 8)
	eb.Subscribe(bus.EventTypeMoodChanged, func(e bus.Event) {
		moods <- e.Data["mood"].(string)
	})

	o := NewOrchestrator(Options{
		Client: &fakeClient{reply: Reply{Message: "Hi"}},
		Bus:    eb,
		Logger: zerolog.Nop(),
	})
	var transcripts []State
	o.OnTranscript(func(s State) { transcripts = append(transcripts, s) })

	require.NoError(t, o.SendMessage(context.Background(), "Hello"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-moods:
			got[m] = true
		case <-time.After(time.Second):
			t.Fatal("mood event not published")
		}
	}
	assert.Equal(t, map[string]bool{"thinking": true, "idle": true}, got)
	require.Len(t, transcripts, 2)
	assert.Len(t, transcripts[1].Transcript, 2)
}
