// Package client implements the reconciliation engine that keeps a local
// playback engine within a drift tolerance of the room's authoritative
// state. One goroutine owns the engine; the polling heartbeat and the push
// channel both funnel their snapshots into that loop, so reconciliations
// never interleave.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/core"
	"github.com/AydenGen/podcast-together/internal/domain"
)

// SessionState tracks one room session from entry to teardown.
type SessionState int32

const (
	StateEntering SessionState = iota
	StateReady
	StateActive
	StateHandlingRemote
	StateClosed
)

type CloseReason string

const (
	ReasonLeft            CloseReason = "left"
	ReasonRoomExpired     CloseReason = "room expired"
	ReasonRoomGone        CloseReason = "room gone"
	ReasonNotMember       CloseReason = "not a member"
	ReasonRoomFull        CloseReason = "room full"
	ReasonHeartbeatBudget CloseReason = "heartbeat budget exceeded"
	ReasonError           CloseReason = "error"
)

// AutoplayPrompt asks the user how to recover from a blocked programmatic
// play: true means continue muted, false means unmute and play.
type AutoplayPrompt func(ctx context.Context) bool

type Config struct {
	HeartbeatPeriod  time.Duration // polling interval
	MaxHeartbeats    int           // session-lifetime cap on polls
	DriftTolerance   time.Duration // seek when local and projected diverge more
	CollectDelay     time.Duration // coalescing window for outbound reports
	SeekRecheckDelay time.Duration // some engines ignore a seek before the first frame
	PlayVerifyDelay  time.Duration // how long to wait before assuming autoplay was blocked
	EndGuard         time.Duration // suppress play with under this much content left
}

func (c *Config) withDefaults() {
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = 15 * time.Second
	}
	if c.MaxHeartbeats <= 0 {
		c.MaxHeartbeats = 960
	}
	if c.DriftTolerance <= 0 {
		c.DriftTolerance = 1800 * time.Millisecond
	}
	if c.CollectDelay <= 0 {
		c.CollectDelay = 300 * time.Millisecond
	}
	if c.SeekRecheckDelay <= 0 {
		c.SeekRecheckDelay = 600 * time.Millisecond
	}
	if c.PlayVerifyDelay <= 0 {
		c.PlayVerifyDelay = 1500 * time.Millisecond
	}
	if c.EndGuard <= 0 {
		c.EndGuard = time.Second
	}
}

// Engine owns one player, one bounded polling loop and one push
// subscription for a single room session. Wire the exported fields, then
// call Run; Run returns when the session closes.
type Engine struct {
	RoomID    domain.RoomID
	NickName  string
	CallerID  domain.ClientID
	Ops       Operator
	Dial      PushDialer
	NewPlayer PlayerFactory
	Prompt    AutoplayPrompt
	Conf      Config

	// OnParticipants observes membership snapshots; OnClosed observes the
	// terminal transition. Both optional, both called from engine goroutines.
	OnParticipants func([]core.ParticipantView)
	OnClosed       func(CloseReason)

	// Now returns epoch milliseconds; injectable for tests.
	Now func() int64

	state   atomic.Int32
	guestID atomic.Value // domain.GuestID

	player Player
	push   PushChannel
	cancel context.CancelFunc

	statusCh chan core.RoomStatus
	closeCh  chan CloseReason
	promptCh chan bool

	// loop-owned state, never touched outside the event loop
	ready         bool
	pendingStatus *core.RoomStatus
	hasLatest     bool
	latest        core.RoomStatus
	lastApplied   int64
	localStatus   domain.PlayStatus
	pending       pendingSet
	prompting     bool
	collectT      *time.Timer
	recheckT      *time.Timer
	verifyT       *time.Timer
}

func (e *Engine) State() SessionState {
	return SessionState(e.state.Load())
}

// GuestID reports the display id the room assigned to this session.
func (e *Engine) GuestID() domain.GuestID {
	if v := e.guestID.Load(); v != nil {
		return v.(domain.GuestID)
	}
	return ""
}

// Leave closes the session cleanly: timers stop, the push channel closes and
// the player is released before the LEAVE request goes out.
func (e *Engine) Leave() {
	e.requestClose(ReasonLeft)
}

// Run enters the room and drives the session until it closes. A clean leave
// returns nil; every other exit returns an error naming the reason.
func (e *Engine) Run(ctx context.Context) error {
	e.Conf.withDefaults()
	if e.Now == nil {
		e.Now = func() int64 { return time.Now().UnixMilli() }
	}
	e.statusCh = make(chan core.RoomStatus, 1)
	e.closeCh = make(chan CloseReason, 1)
	e.promptCh = make(chan bool, 1)
	e.pending = make(pendingSet)
	e.localStatus = domain.StatusPaused
	e.state.Store(int32(StateEntering))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancel = cancel

	snap, err := e.Ops.Enter(ctx, e.RoomID, e.NickName)
	if err != nil {
		e.state.Store(int32(StateClosed))
		e.closed(closeReasonFor(err))
		return fmt.Errorf("client: enter room: %w", err)
	}
	e.guestID.Store(snap.GuestID)
	log.Info().Str("module", "client").Str("room", string(e.RoomID)).Str("guest", string(snap.GuestID)).Msg("entered room")

	player, err := e.NewPlayer(snap.Content)
	if err != nil {
		e.state.Store(int32(StateClosed))
		e.closed(ReasonError)
		return fmt.Errorf("client: create player: %w", err)
	}
	e.player = player
	e.state.Store(int32(StateReady))

	push, err := e.Dial(ctx)
	if err != nil {
		e.player.Close()
		e.state.Store(int32(StateClosed))
		e.closed(ReasonError)
		return fmt.Errorf("client: dial push channel: %w", err)
	}
	e.push = push

	e.collectT = newStoppedTimer()
	e.recheckT = newStoppedTimer()
	e.verifyT = newStoppedTimer()

	go e.heartbeatLoop(ctx)
	go e.pushLoop(ctx)

	if e.OnParticipants != nil {
		e.OnParticipants(snap.Participants)
	}
	e.offerStatus(snap.Status())

	return e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.release()
			e.sendLeave()
			e.closed(ReasonLeft)
			return nil
		case reason := <-e.closeCh:
			e.release()
			if reason == ReasonLeft {
				e.sendLeave()
				e.closed(reason)
				return nil
			}
			e.closed(reason)
			return fmt.Errorf("client: session closed: %s", reason)
		case st := <-e.statusCh:
			e.reconcile(st)
		case ev := <-e.player.Events():
			e.onPlayerEvent(ctx, ev)
		case <-e.collectT.C:
			e.report()
		case <-e.recheckT.C:
			e.recheckSeek()
		case <-e.verifyT.C:
			e.verifyPlaying(ctx)
		case mute := <-e.promptCh:
			e.afterPrompt(mute)
		}
	}
}

// reconcile merges one authoritative snapshot into the local player. Both
// inbound channels end up here, one snapshot at a time.
func (e *Engine) reconcile(st core.RoomStatus) {
	if st.RoomID != e.RoomID {
		return // stale message from a previous session
	}
	if !e.ready {
		// same ordering rule as the live path: the slot only ever moves forward
		if e.pendingStatus == nil || st.OperateStamp >= e.pendingStatus.OperateStamp {
			cp := st
			e.pendingStatus = &cp
		}
		return
	}
	if e.hasLatest && st.OperateStamp < e.lastApplied {
		log.Debug().Str("module", "client").Int64("stamp", st.OperateStamp).Int64("applied", e.lastApplied).Msg("dropping out-of-order snapshot")
		return
	}
	e.latest = st
	e.hasLatest = true
	e.lastApplied = st.OperateStamp
	e.applyStatus(st)
}

func (e *Engine) applyStatus(st core.RoomStatus) {
	e.state.Store(int32(StateHandlingRemote))
	defer e.state.Store(int32(StateActive))

	target := e.targetPosition(st)
	if drift := target - e.player.Position(); abs64(drift) > e.Conf.DriftTolerance.Milliseconds() {
		e.pending.mark(changeSeek)
		e.player.Seek(target)
		e.recheckT.Reset(e.Conf.SeekRecheckDelay)
	}

	if rate := speedOf(st.SpeedRate); rate != e.player.Rate() {
		e.pending.mark(changeRate)
		e.player.SetRate(rate)
	}

	if st.PlayStatus == e.localStatus {
		return
	}
	if st.PlayStatus == domain.StatusPlaying {
		// starting a segment that ends almost immediately just flickers
		if dur := e.player.Duration(); dur > 0 && dur-target < e.Conf.EndGuard.Milliseconds() {
			return
		}
		if e.prompting {
			return
		}
		e.pending.mark(changePlay)
		if err := e.player.Play(); err != nil {
			e.pending.consume(changePlay)
			log.Warn().Err(err).Str("module", "client").Msg("play blocked")
		}
		e.verifyT.Reset(e.Conf.PlayVerifyDelay)
	} else {
		e.pending.mark(changePause)
		e.player.Pause()
	}
}

// targetPosition projects the snapshot's play-head to now and clamps it to
// the known duration.
func (e *Engine) targetPosition(st core.RoomStatus) int64 {
	target := core.PositionAt(st.PlayStatus, st.ContentStamp, st.OperateStamp, speedOf(st.SpeedRate), e.Now())
	if dur := e.player.Duration(); dur > 0 && target > dur {
		target = dur
	}
	if target < 0 {
		target = 0
	}
	return target
}

func (e *Engine) onPlayerEvent(ctx context.Context, ev PlayerEvent) {
	switch ev {
	case EventReady:
		if e.ready {
			return
		}
		e.ready = true
		e.state.Store(int32(StateActive))
		if e.pendingStatus != nil {
			st := *e.pendingStatus
			e.pendingStatus = nil
			e.reconcile(st)
		}
	case EventSeeked:
		if e.pending.consume(changeSeek) {
			return
		}
		e.scheduleCollect()
	case EventPlaying:
		e.localStatus = domain.StatusPlaying
		if e.pending.consume(changePlay) {
			return
		}
		e.scheduleCollect()
	case EventPaused:
		e.localStatus = domain.StatusPaused
		if e.pending.consume(changePause) {
			return
		}
		e.scheduleCollect()
	case EventRateChange:
		if e.pending.consume(changeRate) {
			return
		}
		e.scheduleCollect()
	}
}

// scheduleCollect debounces outbound reports so a burst of engine events
// produces one SET_PLAYER.
func (e *Engine) scheduleCollect() {
	e.collectT.Reset(e.Conf.CollectDelay)
}

func (e *Engine) report() {
	cmd := core.PushCommand{
		OperateType:  core.OpSetPlayer,
		RoomID:       e.RoomID,
		CallerID:     e.CallerID,
		ClientStamp:  e.Now(),
		PlayStatus:   e.localStatus,
		SpeedRate:    formatRate(e.player.Rate()),
		ContentStamp: e.player.Position(),
	}
	if err := e.push.Send(cmd); err != nil {
		log.Debug().Err(err).Str("module", "client").Msg("report send failed")
	}
}

// recheckSeek repeats the drift comparison after a short delay; iOS-style
// engines silently ignore a seek issued before the first frame is ready.
func (e *Engine) recheckSeek() {
	if !e.hasLatest {
		return
	}
	target := e.targetPosition(e.latest)
	if drift := target - e.player.Position(); abs64(drift) > e.Conf.DriftTolerance.Milliseconds() {
		e.pending.mark(changeSeek)
		e.player.Seek(target)
	}
}

// verifyPlaying fires after a remote play request: if the player is still
// paused the platform blocked autoplay, so ask the user.
func (e *Engine) verifyPlaying(ctx context.Context) {
	if !e.hasLatest || e.prompting || e.Prompt == nil {
		return
	}
	if e.latest.PlayStatus != domain.StatusPlaying || e.localStatus != domain.StatusPaused {
		return
	}
	e.prompting = true
	go func() {
		mute := e.Prompt(ctx)
		select {
		case e.promptCh <- mute:
		default:
		}
	}()
}

func (e *Engine) afterPrompt(mute bool) {
	e.prompting = false
	if mute {
		e.player.SetMuted(true)
	}
	if e.hasLatest {
		e.applyStatus(e.latest)
	}
}

func (e *Engine) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(e.Conf.HeartbeatPeriod)
	defer t.Stop()
	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			count++
			if count > e.Conf.MaxHeartbeats {
				log.Info().Str("module", "client").Int("beats", count-1).Msg("heartbeat budget exceeded")
				e.requestClose(ReasonHeartbeatBudget)
				return
			}
			snap, err := e.Ops.Heartbeat(ctx, e.RoomID, e.NickName)
			if err != nil {
				if reason, terminal := terminalReason(err); terminal {
					e.requestClose(reason)
					return
				}
				// transient transport failure, wait for the next poll
				log.Debug().Err(err).Str("module", "client").Msg("heartbeat failed")
				continue
			}
			if e.OnParticipants != nil {
				e.OnParticipants(snap.Participants)
			}
			e.offerStatus(snap.Status())
			e.firstSend()
		}
	}
}

func (e *Engine) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-e.push.Receive():
			if !ok {
				// the polling path keeps the session alive until the next
				// CONNECTED re-announces presence
				log.Warn().Str("module", "client").Msg("push channel dropped")
				return
			}
			switch env.ResponseType {
			case core.ResponseConnected:
				e.firstSend()
			case core.ResponseNewStatus:
				if env.RoomStatus != nil {
					e.offerStatus(*env.RoomStatus)
				}
			}
		}
	}
}

// offerStatus hands a snapshot to the event loop; a newer snapshot arriving
// while one is queued supersedes it.
func (e *Engine) offerStatus(st core.RoomStatus) {
	for {
		select {
		case e.statusCh <- st:
			return
		default:
			select {
			case <-e.statusCh:
			default:
			}
		}
	}
}

func (e *Engine) firstSend() {
	err := e.push.Send(core.PushCommand{
		OperateType: core.OpFirstSend,
		RoomID:      e.RoomID,
		CallerID:    e.CallerID,
		ClientStamp: e.Now(),
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "client").Msg("first send failed")
	}
}

func (e *Engine) requestClose(r CloseReason) {
	select {
	case e.closeCh <- r:
	default:
	}
}

// release tears the session down. It must run on every exit path: timers
// cancelled, push channel closed, player released.
func (e *Engine) release() {
	e.state.Store(int32(StateClosed))
	e.cancel()
	e.collectT.Stop()
	e.recheckT.Stop()
	e.verifyT.Stop()
	if e.push != nil {
		_ = e.push.Close()
	}
	if e.player != nil {
		e.player.Close()
	}
}

// sendLeave runs after release so no in-flight reconciliation can touch a
// disposed player.
func (e *Engine) sendLeave() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Ops.Leave(ctx, e.RoomID, e.NickName); err != nil {
		log.Debug().Err(err).Str("module", "client").Msg("leave request failed")
	}
}

func (e *Engine) closed(reason CloseReason) {
	log.Info().Str("module", "client").Str("room", string(e.RoomID)).Str("reason", string(reason)).Msg("session closed")
	if e.OnClosed != nil {
		e.OnClosed(reason)
	}
}

// terminalReason classifies an operation error: well-formed non-success
// codes end the session, anything else is transient.
func terminalReason(err error) (CloseReason, bool) {
	switch {
	case errors.Is(err, core.ErrRoomExpired):
		return ReasonRoomExpired, true
	case errors.Is(err, core.ErrRoomNotFound), errors.Is(err, core.ErrRoomDeleted):
		return ReasonRoomGone, true
	case errors.Is(err, core.ErrNotMember):
		return ReasonNotMember, true
	case errors.Is(err, core.ErrRoomFull):
		return ReasonRoomFull, true
	default:
		return "", false
	}
}

func closeReasonFor(err error) CloseReason {
	if reason, ok := terminalReason(err); ok {
		return reason
	}
	return ReasonError
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func speedOf(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 1
	}
	return f
}

func formatRate(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
