package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreate_ReusesExistingSessionForSameUser(t *testing.T) {
	m := New(5, time.Hour)

	s1, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	s2, ok := m.Create("u1", "Ana")
	require.True(t, ok)
	require.Equal(t, s1.ID, s2.ID)
}

func TestCreate_RejectsWhenAtCapacity(t *testing.T) {
	m := New(2, time.Hour)

	_, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	_, ok = m.Create("u2", "Ivan")
	require.True(t, ok)

	_, ok = m.Create("u3", "Marko")
	require.False(t, ok)
}

func TestGet_ReturnsNilForExpiredSession(t *testing.T) {
	m := New(5, 10*time.Millisecond)

	s, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	require.Nil(t, m.Get(s.ID))
}

func TestCreate_ExpiredSessionFreesCapacitySlot(t *testing.T) {
	m := New(1, 10*time.Millisecond)

	_, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = m.Create("u2", "Ivan")
	require.True(t, ok)
}

func TestRecordMessage_IncrementsCounterAndTouches(t *testing.T) {
	m := New(5, time.Hour)

	s, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	m.RecordMessage(s.ID)
	m.RecordMessage(s.ID)

	got := m.Get(s.ID)
	require.Equal(t, 2, got.MessageCount)
}

func TestRecordBooking_TracksProposedAndApproved(t *testing.T) {
	m := New(5, time.Hour)

	s, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	m.RecordBooking(s.ID, false)
	m.RecordBooking(s.ID, true)

	got := m.Get(s.ID)
	require.Equal(t, 2, got.BookingsPropose)
	require.Equal(t, 1, got.BookingsApprove)
}

func TestEnd_RemovesSessionImmediately(t *testing.T) {
	m := New(5, time.Hour)

	s, ok := m.Create("u1", "Ana")
	require.True(t, ok)

	m.End(s.ID)

	require.Nil(t, m.Get(s.ID))
	require.Nil(t, m.GetByUser("u1"))
}

func TestStats_ReflectsActiveSessionsAndCapacity(t *testing.T) {
	m := New(4, time.Hour)

	s, ok := m.Create("u1", "Ana")
	require.True(t, ok)
	m.RecordMessage(s.ID)

	stats := m.Stats()
	require.Equal(t, 1, stats.Active)
	require.Equal(t, 4, stats.Max)
	require.InDelta(t, 25.0, stats.CapacityPct, 0.001)
	require.Equal(t, 1, stats.TotalMessages)
}
