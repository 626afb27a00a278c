package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"a", "A", "b"}))
	require.Equal(t, []string{"Billing", "vip"}, NormalizeTags([]string{" Billing ", "", "billing", "vip", "  "}))
	require.NotNil(t, NormalizeTags(nil))
}

func TestSameTagSet(t *testing.T) {
	t.Parallel()

	require.True(t, SameTagSet([]string{"a", "b"}, []string{"B", "a", "a"}))
	require.True(t, SameTagSet(nil, []string{" "}))
	require.False(t, SameTagSet([]string{"a"}, []string{"a", "b"}))
	require.False(t, SameTagSet([]string{"a", "c"}, []string{"a", "b"}))
}

func TestParseStatusAndPriority(t *testing.T) {
	t.Parallel()

	status, ok := ParseStatus(" resolved ")
	require.True(t, ok)
	require.Equal(t, TicketStatusResolved, status)

	_, ok = ParseStatus("archived")
	require.False(t, ok)

	priority, ok := ParsePriority("URGENT")
	require.True(t, ok)
	require.Equal(t, TicketPriorityUrgent, priority)

	_, ok = ParsePriority("")
	require.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := &Ticket{ID: "t1", Tags: []string{"a"}, Comments: []TicketComment{{Author: "x"}}}
	cp := orig.Clone()
	cp.Tags[0] = "b"
	cp.Comments[0].Author = "y"
	require.Equal(t, "a", orig.Tags[0])
	require.Equal(t, "x", orig.Comments[0].Author)
}

func TestCloneKeepsEmptyTagsNonNil(t *testing.T) {
	t.Parallel()

	for _, tags := range [][]string{nil, {}} {
		cp := (&Ticket{ID: "t1", Tags: tags}).Clone()
		require.NotNil(t, cp.Tags)
		require.Empty(t, cp.Tags)
	}
}

func TestReadModelSortKeyIsFixedWidth(t *testing.T) {
	t.Parallel()

	a := ReadModelSortKey(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "t1")
	b := ReadModelSortKey(time.Date(2024, 1, 2, 3, 4, 5, 123400, time.UTC), "t1")
	require.Equal(t, "2024-01-02T03:04:05.0000000Z|t1", a)
	require.Equal(t, "2024-01-02T03:04:05.0001234Z|t1", b)
	require.Less(t, a, b)

	row := NewTicketReadModel("t9")
	require.Equal(t, TicketStatusOpen, row.Status)
	require.Equal(t, TicketPriorityNormal, row.Priority)
}
