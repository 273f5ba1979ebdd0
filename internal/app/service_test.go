package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
	"github.com/AydenGen/podcast-together/internal/store"
)

type notifierRecorder struct {
	mu    sync.Mutex
	calls []core.RoomStatus
}

func (n *notifierRecorder) NotifyRoom(_ domain.RoomID, _ domain.ClientID, st core.RoomStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, st)
}

func (n *notifierRecorder) last() (core.RoomStatus, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return core.RoomStatus{}, false
	}
	return n.calls[len(n.calls)-1], true
}

func podcastContent() domain.ContentData {
	return domain.ContentData{InfoType: domain.ContentTypePodcast, AudioURL: "https://x/a.mp3"}
}

func newTestService() (*Service, *notifierRecorder, *int64) {
	now := int64(1_000_000)
	rec := &notifierRecorder{}
	svc := NewService(store.NewMemory(), rec)
	svc.Now = func() int64 { return now }
	return svc, rec, &now
}

func TestCreateValidatesContent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.ContentData{InfoType: "video", AudioURL: "https://x/a.mp3"}, "u1")
	assert.ErrorIs(t, err, core.ErrBadRequest)

	_, err = svc.Create(ctx, domain.ContentData{InfoType: domain.ContentTypePodcast}, "u1")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestCreateStartsPausedAtZero(t *testing.T) {
	svc, _, _ := newTestService()
	snap, err := svc.Create(context.Background(), podcastContent(), "u1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPaused, snap.PlayStatus)
	assert.Equal(t, domain.DefaultSpeedRate, snap.SpeedRate)
	assert.Zero(t, snap.ContentStamp)
	assert.Empty(t, snap.Participants)
	assert.Empty(t, snap.Operator)
}

func TestSingleOwnerRoomInvariant(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, podcastContent(), "u1")
	require.NoError(t, err)
	_, err = svc.Enter(ctx, first.RoomID, "Alice", "u1", "")
	require.NoError(t, err)

	second, err := svc.Create(ctx, podcastContent(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.RoomID, second.RoomID)

	old, err := svc.Store.Get(ctx, first.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeleted, old.OState)
	assert.Empty(t, old.Participants)

	// only the new room is live for this owner
	live, err := svc.Store.FindOwnedOK(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.RoomID, live.ID)
}

func TestEnterUnknownRoom(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Enter(context.Background(), "missing", "Alice", "u1", "")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestEnterDeletedAndExpiredRooms(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	snap, err := svc.Create(ctx, podcastContent(), "u1")
	require.NoError(t, err)

	r, err := svc.Store.Get(ctx, snap.RoomID)
	require.NoError(t, err)
	r.OState = domain.StateExpired
	require.NoError(t, svc.Store.Update(ctx, r))

	_, err = svc.Enter(ctx, snap.RoomID, "Alice", "u2", "")
	assert.ErrorIs(t, err, core.ErrRoomExpired)

	r, err = svc.Store.Get(ctx, snap.RoomID)
	require.NoError(t, err)
	r.OState = domain.StateDeleted
	require.NoError(t, svc.Store.Update(ctx, r))

	_, err = svc.Enter(ctx, snap.RoomID, "Alice", "u2", "")
	assert.ErrorIs(t, err, core.ErrRoomDeleted)
}

func TestEnterCapacityBoundary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)

	for i := 1; i <= domain.MaxParticipants; i++ {
		_, err := svc.Enter(ctx, snap.RoomID, fmt.Sprintf("n%d", i), domain.ClientID(fmt.Sprintf("u%d", i)), "")
		require.NoError(t, err, "participant %d should fit", i)
	}

	_, err = svc.Enter(ctx, snap.RoomID, "n16", "u16", "")
	assert.ErrorIs(t, err, core.ErrRoomFull)

	// an existing member still re-enters at capacity
	_, err = svc.Enter(ctx, snap.RoomID, "n1-again", "u1", "")
	assert.NoError(t, err)
}

func TestEnterGuestIDsPairwiseDistinct(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)

	seen := make(map[domain.GuestID]bool)
	for i := 1; i <= domain.MaxParticipants; i++ {
		got, err := svc.Enter(ctx, snap.RoomID, "n", domain.ClientID(fmt.Sprintf("u%d", i)), "")
		require.NoError(t, err)
		require.NotEmpty(t, got.GuestID)
		assert.False(t, seen[got.GuestID], "guest id %s duplicated", got.GuestID)
		seen[got.GuestID] = true
	}
}

func TestReEntryKeepsGuestID(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)

	first, err := svc.Enter(ctx, snap.RoomID, "Alice", "u1", "agent-a")
	require.NoError(t, err)

	*now += 60_000
	again, err := svc.Enter(ctx, snap.RoomID, "Alicia", "u1", "agent-b")
	require.NoError(t, err)

	assert.Equal(t, first.GuestID, again.GuestID)
	require.Len(t, again.Participants, 1)
	assert.Equal(t, "Alicia", again.Participants[0].NickName)
	assert.Greater(t, again.Participants[0].HeartbeatStamp, first.Participants[0].HeartbeatStamp)
}

func TestHeartbeatRequiresMembership(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)

	_, err = svc.Heartbeat(ctx, snap.RoomID, "stranger")
	assert.ErrorIs(t, err, core.ErrNotMember)
}

func TestHeartbeatRefreshesStamp(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)
	entered, err := svc.Enter(ctx, snap.RoomID, "Alice", "u1", "")
	require.NoError(t, err)

	*now += 15_000
	hb, err := svc.Heartbeat(ctx, snap.RoomID, "u1")
	require.NoError(t, err)
	require.Len(t, hb.Participants, 1)
	assert.Equal(t, *now, hb.Participants[0].HeartbeatStamp)
	assert.Greater(t, hb.Participants[0].HeartbeatStamp, entered.Participants[0].HeartbeatStamp)
}

func TestLeaveRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)

	// zero participants: no-op success
	assert.NoError(t, svc.Leave(ctx, snap.RoomID, "anyone"))

	_, err = svc.Enter(ctx, snap.RoomID, "Alice", "u1", "")
	require.NoError(t, err)
	_, err = svc.Enter(ctx, snap.RoomID, "Bob", "u2", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Leave(ctx, snap.RoomID, "stranger"), core.ErrNotMember)

	require.NoError(t, svc.Leave(ctx, snap.RoomID, "u1"))
	r, err := svc.Store.Get(ctx, snap.RoomID)
	require.NoError(t, err)
	require.Len(t, r.Participants, 1)
	assert.Equal(t, domain.ClientID("u2"), r.Participants[0].Nonce)
}

func TestSoloLeaveFreezesPlayhead(t *testing.T) {
	svc, rec, now := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)
	_, err = svc.Enter(ctx, snap.RoomID, "Alice", "u1", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetPlayer(ctx, snap.RoomID, "u1", PlayerState{
		PlayStatus:   domain.StatusPlaying,
		SpeedRate:    domain.DefaultSpeedRate,
		ContentStamp: 5000,
	}))

	*now += 10_000
	_, err = svc.Heartbeat(ctx, snap.RoomID, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Leave(ctx, snap.RoomID, "u1"))

	r, err := svc.Store.Get(ctx, snap.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, r.PlayStatus)
	assert.Equal(t, int64(15000), r.ContentStamp)
	assert.Empty(t, r.Participants)

	// remaining push listeners hear about the freeze
	st, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, domain.StatusPaused, st.PlayStatus)
	assert.Equal(t, int64(15000), st.ContentStamp)
}

func TestSetPlayerRequiresMembershipAndNotifies(t *testing.T) {
	svc, rec, _ := newTestService()
	ctx := context.Background()
	snap, err := svc.Create(ctx, podcastContent(), "owner")
	require.NoError(t, err)

	err = svc.SetPlayer(ctx, snap.RoomID, "stranger", PlayerState{PlayStatus: domain.StatusPlaying})
	assert.ErrorIs(t, err, core.ErrNotMember)

	entered, err := svc.Enter(ctx, snap.RoomID, "Alice", "u1", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetPlayer(ctx, snap.RoomID, "u1", PlayerState{
		PlayStatus:   domain.StatusPlaying,
		SpeedRate:    domain.DefaultSpeedRate,
		ContentStamp: 4200,
	}))

	st, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, domain.StatusPlaying, st.PlayStatus)
	assert.Equal(t, int64(4200), st.ContentStamp)
	assert.Equal(t, string(entered.GuestID), st.Operator)
}

// The full listen-together scenario: create, enter, start playback, poll,
// then the sole listener leaves and the play-head freezes where it was.
func TestEndToEndScenario(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, podcastContent(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, created.PlayStatus)
	assert.Zero(t, created.ContentStamp)

	entered, err := svc.Enter(ctx, created.RoomID, "Alice", "u1", "")
	require.NoError(t, err)
	assert.Zero(t, entered.ContentStamp)
	assert.Len(t, entered.Participants, 1)

	startAt := *now
	require.NoError(t, svc.SetPlayer(ctx, created.RoomID, "u1", PlayerState{
		PlayStatus:   domain.StatusPlaying,
		SpeedRate:    domain.DefaultSpeedRate,
		ContentStamp: 5000,
	}))

	*now = startAt + 10_000
	hb, err := svc.Heartbeat(ctx, created.RoomID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, hb.PlayStatus)

	// a second client reconciling this snapshot projects the play-head
	target := core.PositionAt(hb.PlayStatus, hb.ContentStamp, hb.OperateStamp, 1, *now)
	assert.Equal(t, int64(15000), target)

	require.NoError(t, svc.Leave(ctx, created.RoomID, "u1"))
	r, err := svc.Store.Get(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, r.PlayStatus)
	assert.Equal(t, int64(15000), r.ContentStamp)
	assert.Empty(t, r.Participants)
}
