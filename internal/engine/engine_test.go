package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speak2fill/speak2fill/internal/form"
	"github.com/speak2fill/speak2fill/internal/lang"
	"github.com/speak2fill/speak2fill/internal/store"
)

func newTestEngine(t *testing.T, fields []form.Field) (*Engine, *store.MemoryStore) {
	t.Helper()
	classifier, err := lang.Load()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	sess := form.NewSession("s1", "form.png", "en", fields, nil, 200, 100)
	require.NoError(t, st.Create(context.Background(), sess, nil))

	return New(st, classifier, nil), st
}

func twoFields() []form.Field {
	return []form.Field{
		{FieldID: "name", Label: "Name", BBox: form.BBox{10, 10, 100, 40}, InputMode: form.InputModeVoice, WriteLanguage: "en"},
		{FieldID: "phone", Label: "Phone", BBox: form.BBox{10, 50, 100, 80}, InputMode: form.InputModeVoice, WriteLanguage: "en"},
	}
}

func getSession(t *testing.T, st store.Store) *form.Session {
	t.Helper()
	s, err := st.Get(context.Background(), "s1")
	require.NoError(t, err)
	return s
}

// The walkthrough from the design discussion: START, value, confirm, skip,
// then poke the terminal state.
func TestChat_FullScenario(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	// START: ask for Name, no action.
	res, err := e.Chat(ctx, "s1", "", "")
	require.NoError(t, err)
	assert.Contains(t, res.AssistantText, "Name")
	assert.Nil(t, res.Action)

	// Value offered: await confirmation, guide action for Name.
	res, err = e.Chat(ctx, "s1", "Ravi", "")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "DRAW_GUIDE", res.Action.Type)
	assert.Equal(t, "Name", res.Action.FieldLabel)
	assert.Equal(t, "Ravi", res.Action.TextToWrite)
	assert.Equal(t, form.BBox{10, 10, 100, 40}, res.Action.BBox)
	assert.Equal(t, 200, res.Action.ImageWidth)
	assert.Equal(t, 100, res.Action.ImageHeight)

	s := getSession(t, st)
	assert.Equal(t, form.PhaseAwaitConfirmation, s.Phase)
	assert.Equal(t, "Ravi", s.FilledValues["name"])

	// Confirm: advance to Phone, no action.
	res, err = e.Chat(ctx, "s1", "done", "")
	require.NoError(t, err)
	assert.Contains(t, res.AssistantText, "Phone")
	assert.Nil(t, res.Action)

	s = getSession(t, st)
	assert.Equal(t, 1, s.Cursor)
	assert.Equal(t, form.PhaseAskInput, s.Phase)

	// Skip Phone: terminal, completion message, no action.
	res, err = e.Chat(ctx, "s1", "skip", "")
	require.NoError(t, err)
	assert.Nil(t, res.Action)
	completion := res.AssistantText

	s = getSession(t, st)
	assert.Equal(t, 2, s.Cursor)
	assert.True(t, s.Terminal())

	// Any further event returns the identical completion response and does
	// not touch the record.
	before := getSession(t, st)
	for _, msg := range []string{"anything", "done", "skip", ""} {
		res, err = e.Chat(ctx, "s1", msg, "")
		require.NoError(t, err)
		assert.Equal(t, completion, res.AssistantText)
		assert.Nil(t, res.Action)
	}
	after := getSession(t, st)
	assert.Equal(t, before.Cursor, after.Cursor)
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.FilledValues, after.FilledValues)
	assert.Equal(t, len(before.History), len(after.History))
}

func TestChat_ConfirmBeforeValueIsNudge(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	e.Chat(ctx, "s1", "", "")
	res, err := e.Chat(ctx, "s1", "done", "")
	require.NoError(t, err)

	// No value offered yet: must not skip the field.
	assert.Contains(t, res.AssistantText, "Name")
	assert.Nil(t, res.Action)
	s := getSession(t, st)
	assert.Equal(t, 0, s.Cursor)
	assert.Equal(t, form.PhaseAskInput, s.Phase)
}

func TestChat_EmptyUtteranceDoesNotTransition(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	res, err := e.Chat(ctx, "s1", "   ", "")
	require.NoError(t, err)
	assert.Contains(t, res.AssistantText, "Name")
	assert.Nil(t, res.Action)

	s := getSession(t, st)
	assert.Equal(t, form.PhaseAskInput, s.Phase)
	assert.Empty(t, s.FilledValues)
}

func TestChat_ExplicitEmptySpokenTextReprompts(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	res, err := e.Chat(ctx, "s1", "  ", string(EventUserSpoke))
	require.NoError(t, err)
	assert.Nil(t, res.Action)
	s := getSession(t, st)
	assert.Equal(t, form.PhaseAskInput, s.Phase)
	assert.Empty(t, s.FilledValues)
}

func TestChat_OverwritePendingValueBeforeConfirmation(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	e.Chat(ctx, "s1", "Rvai", "")
	res, err := e.Chat(ctx, "s1", "Ravi", "")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "Ravi", res.Action.TextToWrite)

	s := getSession(t, st)
	assert.Equal(t, "Ravi", s.FilledValues["name"])
	assert.Equal(t, form.PhaseAwaitConfirmation, s.Phase)
}

func TestChat_SkipWhileAwaitingConfirmationKeepsValue(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	e.Chat(ctx, "s1", "Ravi", "")
	res, err := e.Chat(ctx, "s1", "skip", "")
	require.NoError(t, err)
	assert.Contains(t, res.AssistantText, "Phone")

	s := getSession(t, st)
	assert.Equal(t, 1, s.Cursor)
	// Values are never removed once offered.
	assert.Equal(t, "Ravi", s.FilledValues["name"])
}

func TestChat_NumericFieldFiltersDigits(t *testing.T) {
	ctx := context.Background()
	fields := twoFields()
	fields[0].WriteLanguage = form.WriteLanguageNumeric
	e, st := newTestEngine(t, fields)

	res, err := e.Chat(ctx, "s1", "nine eight 9 8 7 6 5 4 3 2 1 0", "")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "9876543210", res.Action.TextToWrite)
	assert.Equal(t, "9876543210", getSession(t, st).FilledValues["name"])

	// Digits-only field with no digits in the utterance: re-prompt.
	e2, st2 := newTestEngine(t, fields)
	res, err = e2.Chat(ctx, "s1", "no numbers here", "")
	require.NoError(t, err)
	assert.Nil(t, res.Action)
	assert.Equal(t, form.PhaseAskInput, getSession(t, st2).Phase)
}

func TestChat_PlaceholderFieldGuidesWithoutValue(t *testing.T) {
	ctx := context.Background()
	fields := []form.Field{
		{FieldID: "sig", Label: "Signature", BBox: form.BBox{10, 10, 100, 40}, InputMode: form.InputModePlaceholder},
		{FieldID: "name", Label: "Name", BBox: form.BBox{10, 50, 100, 80}, InputMode: form.InputModeVoice},
	}
	e, st := newTestEngine(t, fields)

	// Entering a placeholder field emits the guide immediately; the empty
	// text_to_write marks "no committed text".
	res, err := e.Chat(ctx, "s1", "", "")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "Signature", res.Action.FieldLabel)
	assert.Equal(t, "", res.Action.TextToWrite)
	assert.Equal(t, form.PhaseAwaitConfirmation, getSession(t, st).Phase)

	// Free text on a placeholder field re-emits the guide, captures nothing.
	res, err = e.Chat(ctx, "s1", "hello there", "")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Empty(t, getSession(t, st).FilledValues)

	// Confirmation moves on to the voice field.
	res, err = e.Chat(ctx, "s1", "done", "")
	require.NoError(t, err)
	assert.Nil(t, res.Action)
	assert.Contains(t, res.AssistantText, "Name")
}

func TestChat_CursorNeverDecreasesOrOverruns(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	inputs := []string{"", "done", "Ravi", "done", "skip", "done", "skip", "more", ""}
	last := 0
	for _, msg := range inputs {
		_, err := e.Chat(ctx, "s1", msg, "")
		require.NoError(t, err)
		s := getSession(t, st)
		assert.GreaterOrEqual(t, s.Cursor, last)
		assert.LessOrEqual(t, s.Cursor, len(s.Fields))
		last = s.Cursor
	}
}

func TestChat_MalayalamControlPhrases(t *testing.T) {
	ctx := context.Background()
	classifier, err := lang.Load()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	sess := form.NewSession("s1", "form.png", "ml", twoFields(), nil, 200, 100)
	require.NoError(t, st.Create(ctx, sess, nil))
	e := New(st, classifier, nil)

	e.Chat(ctx, "s1", "രവി", "")
	s := getSession(t, st)
	require.Equal(t, form.PhaseAwaitConfirmation, s.Phase)
	assert.Equal(t, "രവി", s.FilledValues["name"])

	// "ചെയ്തു" is Malayalam for done.
	e.Chat(ctx, "s1", "ചെയ്തു", "")
	s = getSession(t, st)
	assert.Equal(t, 1, s.Cursor)
}

func TestChat_UnknownSessionAndEvent(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, twoFields())

	_, err := e.Chat(ctx, "missing", "hi", "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.Chat(ctx, "s1", "hi", "REWIND")
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestChat_HistoryRecordsTurns(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, twoFields())

	e.Chat(ctx, "s1", "", "")
	e.Chat(ctx, "s1", "Ravi", "")
	e.Chat(ctx, "s1", "done", "")

	s := getSession(t, st)
	var roles []string
	for _, turn := range s.History {
		roles = append(roles, turn.Role)
	}
	// START has no user text; the two spoken turns record both sides.
	assert.Equal(t, []string{"assistant", "user", "assistant", "user", "assistant"}, roles)
	assert.True(t, strings.Contains(s.History[2].Text, "Ravi"))
}

func TestChat_DeterministicForFixedRecordAndEvent(t *testing.T) {
	ctx := context.Background()

	run := func() Result {
		e, _ := newTestEngine(t, twoFields())
		e.Chat(ctx, "s1", "", "")
		res, err := e.Chat(ctx, "s1", "Ravi", "")
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.AssistantText, b.AssistantText)
	assert.Equal(t, a.Action, b.Action)
}
