package transcript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRedactsAndFormats(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryStore()
	rec := NewRecorder(st)

	require.NoError(t, rec.Record(ctx, "m1", "u1", RoleUser, "mail me at jane@example.com"))
	require.NoError(t, rec.Record(ctx, "m1", "u1", RoleAssistant, " Will do. "))
	require.NoError(t, rec.Record(ctx, "m1", "u1", RoleUser, "   "))
	require.NoError(t, rec.Record(ctx, "m2", "u1", RoleUser, "other meeting"))

	entries, err := st.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].PIIRedacted)
	assert.False(t, entries[1].PIIRedacted)

	text, err := rec.Text(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "User: mail me at [REDACTED_EMAIL]\nAI: Will do.", text)
}

func TestRecorderSkipsWithoutMeeting(t *testing.T) {
	st := NewInMemoryStore()
	require.NoError(t, NewRecorder(st).Record(context.Background(), "", "u1", RoleUser, "hello"))
	entries, err := st.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryStore()
	require.NoError(t, st.Append(ctx, Entry{MeetingID: "m1", Role: RoleUser, Content: "a"}))
	got, err := st.List(ctx, "m1")
	require.NoError(t, err)
	got[0].Content = "mutated"

	again, err := st.List(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Content)
}

func TestRecordExchangeKeepsOrder(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(NewInMemoryStore())
	require.NoError(t, rec.RecordExchange(ctx, "m1", "u1", "what's next?", "Lunch."))
	require.NoError(t, rec.RecordExchange(ctx, "m1", "u1", "and then?", "A nap."))

	text, err := rec.Text(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "User: what's next?\nAI: Lunch.\nUser: and then?\nAI: A nap.", text)
}
