package chatlog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weiawesome/chatter/internal/domain"
)

func chat(id, user, body string) domain.Entry {
	return domain.Entry{ID: id, Kind: domain.KindChat, Username: user, Body: body}
}

func TestAppendPreservesArrivalOrder(t *testing.T) {
	l := New()
	l.Append(chat("a", "alice", "first"))
	l.Append(domain.Entry{ID: "b", Kind: domain.KindPresenceJoin, Username: "bob"})
	l.Append(chat("c", "bob", "second"))

	entries := l.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "a", entries[0].ID)
	require.Equal(t, "b", entries[1].ID)
	require.Equal(t, "c", entries[2].ID)
}

func TestAppendKeepsDuplicateIDs(t *testing.T) {
	// A duplicate broadcast delivery yields two entries; the log does not
	// deduplicate by id.
	l := New()
	l.Append(chat("same", "alice", "hi"))
	l.Append(chat("same", "alice", "hi"))

	require.Equal(t, 2, l.Len())
}

func TestClear(t *testing.T) {
	l := New()
	l.Append(chat("a", "alice", "hi"))
	l.Clear()

	require.Equal(t, 0, l.Len())
	require.Empty(t, l.Entries())

	_, ok := l.At(0)
	require.False(t, ok)
}

func TestAt(t *testing.T) {
	l := New()
	l.Append(chat("a", "alice", "hi"))

	e, ok := l.At(0)
	require.True(t, ok)
	require.Equal(t, "a", e.ID)

	_, ok = l.At(1)
	require.False(t, ok)
	_, ok = l.At(-1)
	require.False(t, ok)
}

func TestSliceClamps(t *testing.T) {
	l := New()
	for _, id := range []string{"a", "b", "c"} {
		l.Append(chat(id, "alice", "m"))
	}

	require.Len(t, l.Slice(0, 3), 3)
	require.Len(t, l.Slice(1, 10), 2)
	require.Nil(t, l.Slice(2, 1))
	require.Nil(t, l.Slice(5, 9))

	s := l.Slice(-2, 2)
	require.Len(t, s, 2)
	require.Equal(t, "a", s[0].ID)
}
