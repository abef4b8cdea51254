package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	received []any
}

func (f *fakeSender) Send(payload any) error {
	f.received = append(f.received, payload)
	return nil
}

func TestNotify_BroadcastReachesAllConnectedUsers(t *testing.T) {
	m := New(10)

	s1 := &fakeSender{}
	s2 := &fakeSender{}
	m.Register("u1", s1)
	m.Register("u2", s2)

	n := NewNotification(TypeInfo, "naslov", "poruka", "broadcast", "scheduler", nil, PriorityNormal)
	m.Notify(n)

	require.Len(t, s1.received, 1)
	require.Len(t, s2.received, 1)
}

func TestNotify_TargetedUserOnlyReachesThatUser(t *testing.T) {
	m := New(10)

	s1 := &fakeSender{}
	s2 := &fakeSender{}
	m.Register("u1", s1)
	m.Register("u2", s2)

	n := NewNotification(TypeBooking, "naslov", "poruka", "user:u1", "booking", nil, PriorityHigh)
	m.Notify(n)

	require.Len(t, s1.received, 1)
	require.Empty(t, s2.received)
}

func TestRegister_FlushesUnreadBacklog(t *testing.T) {
	m := New(10)

	m.Notify(NewNotification(TypeInfo, "prije", "spajanja", "user:u1", "x", nil, PriorityNormal))

	s1 := &fakeSender{}
	m.Register("u1", s1)

	require.Len(t, s1.received, 1)
}

func TestGetUnread_ExcludesReadNotifications(t *testing.T) {
	m := New(10)

	m.Notify(NewNotification(TypeInfo, "a", "a", "user:u1", "x", nil, PriorityNormal))
	m.Notify(NewNotification(TypeInfo, "b", "b", "user:u1", "x", nil, PriorityNormal))

	unread := m.GetUnread("u1")
	require.Len(t, unread, 2)

	require.True(t, m.MarkRead("u1", unread[0].ID))

	require.Len(t, m.GetUnread("u1"), 1)
}

func TestMarkAllRead_ClearsEveryUnread(t *testing.T) {
	m := New(10)

	m.Notify(NewNotification(TypeInfo, "a", "a", "user:u1", "x", nil, PriorityNormal))
	m.Notify(NewNotification(TypeInfo, "b", "b", "user:u1", "x", nil, PriorityNormal))

	n := m.MarkAllRead("u1")
	require.Equal(t, 2, n)
	require.Empty(t, m.GetUnread("u1"))
}

func TestTrimLocked_CapsStoredHistoryAtMaxPerUser(t *testing.T) {
	m := New(3)

	for i := 0; i < 5; i++ {
		m.Notify(NewNotification(TypeInfo, "x", "x", "user:u1", "x", nil, PriorityNormal))
	}

	require.Len(t, m.GetAll("u1", 0), 3)
}

func TestUnregister_StopsFurtherDelivery(t *testing.T) {
	m := New(10)

	s1 := &fakeSender{}
	m.Register("u1", s1)
	m.Unregister("u1", s1)

	m.Notify(NewNotification(TypeInfo, "x", "x", "user:u1", "x", nil, PriorityNormal))

	require.Empty(t, s1.received)
}

func TestStats_CountsConnectionsAndSent(t *testing.T) {
	m := New(10)

	s1 := &fakeSender{}
	m.Register("u1", s1)

	m.Notify(NewNotification(TypeInfo, "x", "x", "broadcast", "x", nil, PriorityNormal))

	stats := m.Stats()
	require.Equal(t, 1, stats.Sent)
	require.Equal(t, 1, stats.Broadcast)
	require.Equal(t, 1, stats.ConnectionCount)
}
