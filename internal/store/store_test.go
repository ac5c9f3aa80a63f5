package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func createAutomation(t *testing.T, s *Store, id string) *Automation {
	t.Helper()
	now := time.Now().UTC()
	a := &Automation{ID: id, Name: "AP intake", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateAutomation(a, blueprint.New(now)))
	return a
}

func TestAutomationCRUD(t *testing.T) {
	s := newTestStore(t)
	a := createAutomation(t, s, "abc12345")
	assert.Equal(t, 1, a.Version)

	got, err := s.GetAutomation("abc12345")
	require.NoError(t, err)
	assert.Equal(t, "AP intake", got.Name)
	assert.Equal(t, 1, got.Version)

	list, err := s.ListAutomations()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetAutomation("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBlueprintVersions(t *testing.T) {
	s := newTestStore(t)
	createAutomation(t, s, "bp123456")

	bp, version, err := s.GetBlueprint("bp123456")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Len(t, bp.Sections, len(blueprint.SectionKeys))
	assert.Empty(t, bp.Steps)

	next := blueprint.Apply(bp, &blueprint.Updates{
		Steps: []blueprint.Step{{ID: "receive", Title: "Receive invoice", Type: blueprint.StepTrigger}},
	}, time.Now().UTC())
	version, err = s.SaveBlueprint("bp123456", next)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	latest, version, err := s.GetBlueprint("bp123456")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	require.Len(t, latest.Steps, 1)
	assert.Equal(t, "receive", latest.Steps[0].ID)

	a, err := s.GetAutomation("bp123456")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Version)

	_, _, err = s.GetBlueprint("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.SaveBlueprint("missing", next)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMessagesAndEvents(t *testing.T) {
	s := newTestStore(t)
	createAutomation(t, s, "evt12345")
	now := time.Now().UTC()

	for _, m := range []*Message{
		{AutomationID: "evt12345", Role: blueprint.RoleUser, Content: "hello", CreatedAt: now},
		{AutomationID: "evt12345", Role: blueprint.RoleAssistant, Content: "hi", CreatedAt: now},
	} {
		require.NoError(t, s.AddMessage(m))
		assert.NotZero(t, m.ID)
	}
	msgs, err := s.GetMessages("evt12345")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []blueprint.Message{
		{Role: blueprint.RoleUser, Content: "hello"},
		{Role: blueprint.RoleAssistant, Content: "hi"},
	}, Conversation(msgs))

	ev := &Event{AutomationID: "evt12345", Type: EventPhase, Data: "discovery", CreatedAt: now}
	require.NoError(t, s.AddEvent(ev))
	events, err := s.GetEvents("evt12345", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "discovery", events[0].Data)

	events, err = s.GetEvents("evt12345", ev.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHandoffLookup(t *testing.T) {
	s := newTestStore(t)
	createAutomation(t, s, "hnd12345")
	now := time.Now().UTC()

	require.NoError(t, s.AddHandoff(&Handoff{
		AutomationID: "hnd12345",
		Repo:         "Acme/Builds",
		IssueNumber:  7,
		URL:          "https://github.com/acme/builds/issues/7",
		Version:      3,
		CreatedAt:    now,
	}))

	h, err := s.GetHandoffByIssue("acme/builds", 7)
	require.NoError(t, err)
	assert.Equal(t, "hnd12345", h.AutomationID)
	assert.Equal(t, 3, h.Version)

	_, err = s.GetHandoffByIssue("acme/builds", 8)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEventBusSubscribePublishUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus()
	sub := bus.Subscribe("a1")

	bus.Publish(&Event{AutomationID: "a1", Type: EventPhase, Data: "ok"})
	bus.Publish(&Event{AutomationID: "other", Type: EventPhase, Data: "elsewhere"})

	select {
	case got := <-sub.C:
		assert.Equal(t, "ok", got.Data)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("did not receive event")
	}
	assert.Empty(t, sub.C)

	bus.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)
	bus.Unsubscribe(sub)
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("a1", EventBlueprint, EventStatus)
	defer bus.Unsubscribe(sub)

	for _, typ := range []EventType{EventPhase, EventThinking, EventBlueprint, EventAssumption, EventStatus} {
		bus.Publish(&Event{AutomationID: "a1", Type: typ, Data: string(typ)})
	}

	require.Len(t, sub.C, 2)
	assert.Equal(t, EventBlueprint, (<-sub.C).Type)
	assert.Equal(t, EventStatus, (<-sub.C).Type)
	assert.True(t, sub.Wants(EventStatus))
	assert.False(t, sub.Wants(EventThinking))
}

func TestEventBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("a2")
	defer bus.Unsubscribe(sub)

	for i := 0; i < subscriptionBuffer; i++ {
		bus.Publish(&Event{AutomationID: "a2", Type: EventThinking, Data: "x"})
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(&Event{AutomationID: "a2", Type: EventThinking, Data: "overflow"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("publish blocked on full channel")
	}
	assert.Equal(t, int64(1), sub.Dropped())
	assert.Len(t, sub.C, subscriptionBuffer)
}
