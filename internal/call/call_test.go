package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/huddle/internal/apperr"
	"github.com/antoniostano/huddle/internal/auth"
	"github.com/antoniostano/huddle/internal/brain"
	"github.com/antoniostano/huddle/internal/meetings"
	"github.com/antoniostano/huddle/internal/paging"
	"github.com/antoniostano/huddle/internal/protocol"
	"github.com/antoniostano/huddle/internal/records"
	"github.com/antoniostano/huddle/internal/transcript"
	"github.com/antoniostano/huddle/internal/voice"
)

var (
	alice = auth.Identity{UserID: "alice"}
	bob   = auth.Identity{UserID: "bob"}
)

type fakeCompleter struct {
	mu    sync.Mutex
	reqs  []brain.Request
	reply string
	err   error
	gate  chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, req brain.Request) (brain.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return brain.Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return brain.Response{}, f.err
	}
	return brain.Response{Text: f.reply}, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeSynth struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, req voice.SpeechRequest) (voice.Audio, error) {
	f.calls.Add(1)
	if f.err != nil {
		return voice.Audio{}, f.err
	}
	return voice.Audio{Data: []byte(req.Text), Format: "mp3", ContentType: "audio/mpeg"}, nil
}

type fakePlayer struct {
	calls atomic.Int32
	err   error
}

func (f *fakePlayer) Play(context.Context, *AudioHandle) error {
	f.calls.Add(1)
	return f.err
}

type fakeFinalizer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeFinalizer) Finalize(_ context.Context, _ auth.Identity, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, meetingID)
	return f.err
}

func (f *fakeFinalizer) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fakeTransport struct {
	joinErr error
	ended   atomic.Int32
}

func (f *fakeTransport) Join(context.Context, Session) error { return f.joinErr }
func (f *fakeTransport) End(context.Context, Session) error {
	f.ended.Add(1)
	return nil
}

type harness struct {
	ctrl        *Controller
	store       *records.InMemoryStore
	meetings    *meetings.Service
	completer   *fakeCompleter
	synth       *fakeSynth
	player      *fakePlayer
	finalizer   *fakeFinalizer
	transport   *fakeTransport
	transcripts *transcript.InMemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st := records.NewInMemoryStore()
	require.NoError(t, st.InsertAgent(ctx, records.Agent{ID: "agent-1", UserID: alice.UserID, Name: "Coach", Instructions: "You are a patient coach."}))
	require.NoError(t, st.InsertMeeting(ctx, records.Meeting{ID: "m1", UserID: alice.UserID, AgentID: "agent-1", Name: "Standup", Status: records.StatusUpcoming}))
	require.NoError(t, st.InsertMeeting(ctx, records.Meeting{ID: "m-done", UserID: alice.UserID, AgentID: "agent-1", Name: "Old", Status: records.StatusCompleted}))

	h := &harness{
		store:       st,
		meetings:    meetings.NewService(st, paging.Bounds{Default: 10, Min: 1, Max: 100}, zerolog.Nop()),
		completer:   &fakeCompleter{reply: "Sounds **good** to me."},
		synth:       &fakeSynth{},
		player:      &fakePlayer{},
		finalizer:   &fakeFinalizer{},
		transport:   &fakeTransport{},
		transcripts: transcript.NewInMemoryStore(),
	}
	h.ctrl = NewController(Deps{
		Meetings:        h.meetings,
		Transport:       h.transport,
		Finalizer:       h.finalizer,
		Completer:       h.completer,
		Synthesizer:     h.synth,
		Player:          h.player,
		Transcript:      transcript.NewRecorder(h.transcripts),
		Log:             zerolog.Nop(),
		SystemPrompt:    "default prompt",
		ExternalTimeout: time.Second,
		PlaybackTimeout: time.Second,
	})
	return h
}

func (h *harness) activeCall(t *testing.T, meetingID string) Session {
	t.Helper()
	s, err := h.ctrl.Create(context.Background(), alice, meetingID)
	require.NoError(t, err)
	s, err = h.ctrl.Join(context.Background(), alice, s.ID)
	require.NoError(t, err)
	return s
}

func TestJoinAndLeaveDrivePhasesAndMeeting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.ctrl.Create(ctx, alice, "m1")
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, s.Phase)
	assert.Equal(t, AIIdle, s.AIStatus)

	s, err = h.ctrl.Join(ctx, alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, s.Phase)
	require.NotNil(t, s.JoinedAt)

	m, err := h.meetings.GetOne(ctx, alice, "m1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusActive, m.Status)

	_, err = h.ctrl.Join(ctx, alice, s.ID)
	assert.True(t, apperr.IsInvalidState(err))

	res, err := h.ctrl.Leave(ctx, alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, res.Session.Phase)
	assert.Equal(t, FinalizeTriggered, res.Outcome)
	assert.Equal(t, "/v1/meetings/m1/report", res.ReportURL)
	assert.Equal(t, []string{"m1"}, h.finalizer.triggered())
	assert.EqualValues(t, 1, h.transport.ended.Load())

	_, err = h.ctrl.Leave(ctx, alice, s.ID)
	assert.True(t, apperr.IsInvalidState(err))
	assert.Len(t, h.finalizer.triggered(), 1)
}

func TestLeaveFromLobbyIsInvalid(t *testing.T) {
	h := newHarness(t)
	s, err := h.ctrl.Create(context.Background(), alice, "")
	require.NoError(t, err)

	_, err = h.ctrl.Leave(context.Background(), alice, s.ID)
	assert.True(t, apperr.IsInvalidState(err))
	assert.Zero(t, h.transport.ended.Load())
}

func TestLeaveWithoutMeetingSkipsFinalization(t *testing.T) {
	h := newHarness(t)
	s := h.activeCall(t, "")

	res, err := h.ctrl.Leave(context.Background(), alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, FinalizeSkipped, res.Outcome)
	assert.Empty(t, res.ReportURL)
	assert.Empty(t, h.finalizer.triggered())
}

func TestLeaveSurfacesFinalizeFailureButEnds(t *testing.T) {
	h := newHarness(t)
	h.finalizer.err = apperr.External("finalize.trigger", "queue", 0, errors.New("queue down"))
	s := h.activeCall(t, "m1")

	res, err := h.ctrl.Leave(context.Background(), alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, FinalizeFailed, res.Outcome)
	assert.Contains(t, res.Detail, "queue down")
	assert.Equal(t, "/v1/meetings/m1/report", res.ReportURL)

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, got.Phase)
}

func TestCreateChecksMeeting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.Create(ctx, bob, "m1")
	assert.True(t, apperr.IsNotFound(err))

	_, err = h.ctrl.Create(ctx, alice, "m-done")
	assert.True(t, apperr.IsInvalidState(err))
}

func TestCallsAreOwnerScoped(t *testing.T) {
	h := newHarness(t)
	s := h.activeCall(t, "")

	_, err := h.ctrl.Get(bob, s.ID)
	assert.True(t, apperr.IsNotFound(err))
	_, err = h.ctrl.Submit(context.Background(), bob, s.ID, "hi")
	assert.True(t, apperr.IsNotFound(err))
	_, err = h.ctrl.Leave(context.Background(), bob, s.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestTransportJoinFailureStaysInLobby(t *testing.T) {
	h := newHarness(t)
	h.transport.joinErr = errors.New("no media")
	s, err := h.ctrl.Create(context.Background(), alice, "m1")
	require.NoError(t, err)

	_, err = h.ctrl.Join(context.Background(), alice, s.ID)
	assert.True(t, apperr.IsExternal(err))

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, got.Phase)
	m, err := h.meetings.GetOne(context.Background(), alice, "m1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusUpcoming, m.Status)

	h.transport.joinErr = nil
	_, err = h.ctrl.Join(context.Background(), alice, s.ID)
	require.NoError(t, err)
}

func TestSubmitRunsFullTurn(t *testing.T) {
	h := newHarness(t)
	s := h.activeCall(t, "m1")

	res, err := h.ctrl.Submit(context.Background(), alice, s.ID, "  how do I start?  ")
	require.NoError(t, err)
	assert.True(t, res.Submitted)
	assert.NotEmpty(t, res.TurnID)
	assert.Equal(t, "Sounds **good** to me.", res.Reply)
	assert.Equal(t, "audio/mpeg", res.ContentType)
	assert.Equal(t, []byte("Sounds good to me."), res.Audio)

	require.Equal(t, 1, h.completer.calls())
	req := h.completer.reqs[0]
	assert.Equal(t, "how do I start?", req.Input)
	assert.Equal(t, "You are a patient coach.", req.System)
	assert.Equal(t, brain.TaskReply, req.Task)

	assert.EqualValues(t, 1, h.player.calls.Load())
	assert.Zero(t, h.ctrl.Audio().Len(), "handle must be released after playback")

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, AIIdle, got.AIStatus)
	assert.Equal(t, 1, got.TurnCount)

	entries, err := h.transcripts.List(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, transcript.RoleUser, entries[0].Role)
	assert.Equal(t, transcript.RoleAssistant, entries[1].Role)
}

func TestSubmitWithoutMeetingUsesDefaultPrompt(t *testing.T) {
	h := newHarness(t)
	s := h.activeCall(t, "")

	_, err := h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	require.NoError(t, err)
	require.Equal(t, 1, h.completer.calls())
	assert.Equal(t, "default prompt", h.completer.reqs[0].System)
}

func TestSubmitBlankIsNoop(t *testing.T) {
	h := newHarness(t)
	s := h.activeCall(t, "")

	res, err := h.ctrl.Submit(context.Background(), alice, s.ID, " \n\t ")
	require.NoError(t, err)
	assert.False(t, res.Submitted)
	assert.Zero(t, h.completer.calls())
}

func TestSubmitRequiresActiveCall(t *testing.T) {
	h := newHarness(t)
	s, err := h.ctrl.Create(context.Background(), alice, "")
	require.NoError(t, err)

	_, err = h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	assert.True(t, apperr.IsInvalidState(err))

	_, err = h.ctrl.Join(context.Background(), alice, s.ID)
	require.NoError(t, err)
	_, err = h.ctrl.Leave(context.Background(), alice, s.ID)
	require.NoError(t, err)

	_, err = h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	assert.True(t, apperr.IsInvalidState(err))
	assert.Zero(t, h.completer.calls())
}

func TestSubmitIsSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.completer.gate = make(chan struct{})
	s := h.activeCall(t, "")

	first := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Submit(context.Background(), alice, s.ID, "first")
		first <- err
	}()
	require.Eventually(t, func() bool { return h.completer.calls() == 1 }, time.Second, 5*time.Millisecond)

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, AIThinking, got.AIStatus)

	res, err := h.ctrl.Submit(context.Background(), alice, s.ID, "second")
	require.NoError(t, err)
	assert.False(t, res.Submitted)

	close(h.completer.gate)
	require.NoError(t, <-first)
	assert.Equal(t, 1, h.completer.calls())

	got, err = h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, AIIdle, got.AIStatus)
}

func TestSubmitCompletionFailureResetsStatus(t *testing.T) {
	h := newHarness(t)
	h.completer.err = errors.New("model overloaded")
	s := h.activeCall(t, "m1")

	res, err := h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	assert.True(t, apperr.IsExternal(err))
	assert.True(t, res.Submitted)
	assert.Zero(t, h.synth.calls.Load())

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, AIIdle, got.AIStatus)

	entries, err := h.transcripts.List(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitCompletionTimeout(t *testing.T) {
	h := newHarness(t)
	h.completer.gate = make(chan struct{})
	h.ctrl.externalTimeout = 20 * time.Millisecond
	s := h.activeCall(t, "")

	_, err := h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	assert.True(t, apperr.IsExternal(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitSynthesisFailure(t *testing.T) {
	h := newHarness(t)
	h.synth.err = errors.New("tts down")
	s := h.activeCall(t, "")

	_, err := h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	assert.True(t, apperr.IsExternal(err))
	assert.Zero(t, h.player.calls.Load())

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, AIIdle, got.AIStatus)
}

func TestSubmitPlaybackFailureReleasesHandle(t *testing.T) {
	h := newHarness(t)
	h.player.err = errors.New("speaker unplugged")
	s := h.activeCall(t, "")

	res, err := h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	assert.True(t, apperr.IsPlayback(err))
	assert.NotEmpty(t, res.HandleID)
	assert.Zero(t, h.ctrl.Audio().Len())
	_, ok := h.ctrl.Audio().Get(s.ID, res.HandleID)
	assert.False(t, ok)

	got, err := h.ctrl.Get(alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, AIIdle, got.AIStatus)
}

func TestSubmitPublishesStatusSequence(t *testing.T) {
	h := newHarness(t)
	s := h.activeCall(t, "")
	events, cancel := h.ctrl.Sessions().Subscribe(s.ID)
	defer cancel()

	_, err := h.ctrl.Submit(context.Background(), alice, s.ID, "hello")
	require.NoError(t, err)

	var statuses []string
	var sawText bool
	for len(statuses) < 3 {
		select {
		case evt := <-events:
			switch m := evt.(type) {
			case protocol.AIStatus:
				statuses = append(statuses, m.Status)
			case protocol.AssistantText:
				sawText = true
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for status events, got %v", statuses)
		}
	}
	assert.Equal(t, []string{"thinking", "speaking", "idle"}, statuses)
	assert.True(t, sawText)
}

func TestJanitorEndsIdleCallsAndFinalizes(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	h.ctrl.Sessions().now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	active := h.activeCall(t, "m1")
	lobby, err := h.ctrl.Create(context.Background(), alice, "")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(h.ctrl.Sessions().InactivityTimeout())
	mu.Unlock()
	h.ctrl.Sessions().expireInactive()

	got, err := h.ctrl.Get(alice, active.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, got.Phase)
	got, err = h.ctrl.Get(alice, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, got.Phase)
	assert.Equal(t, []string{"m1"}, h.finalizer.triggered())

	mu.Lock()
	now = now.Add(h.ctrl.Sessions().InactivityTimeout())
	mu.Unlock()
	h.ctrl.Sessions().expireInactive()
	_, err = h.ctrl.Get(alice, active.ID)
	assert.True(t, apperr.IsNotFound(err))
}
