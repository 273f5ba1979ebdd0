package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/AydenGen/podcast-together/internal/adapters/http"
	"github.com/AydenGen/podcast-together/internal/core"
)

func fixedResponseServer(t *testing.T, body string) *Ops {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/room-operate", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(httpapi.HeaderClientID))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewOps(srv.URL, "u1")
}

// A success envelope with no data payload must surface as an error, never as
// a nil snapshot with a nil error.
func TestOpsRejectsSuccessWithoutSnapshot(t *testing.T) {
	o := fixedResponseServer(t, `{"code":"0000"}`)
	ctx := context.Background()

	snap, err := o.Enter(ctx, "r1", "Alice")
	require.Error(t, err)
	assert.Nil(t, snap)

	snap, err = o.Heartbeat(ctx, "r1", "Alice")
	require.Error(t, err)
	assert.Nil(t, snap)

	// LEAVE carries no payload, a bare success is fine there
	assert.NoError(t, o.Leave(ctx, "r1", "Alice"))
}

func TestOpsDecodesSnapshot(t *testing.T) {
	snap := core.RoomSnapshot{RoomID: "r1", PlayStatus: "PAUSED", SpeedRate: "1", GuestID: "guest-a"}
	raw, err := json.Marshal(httpapi.Envelope{Code: httpapi.CodeOK, Data: &snap})
	require.NoError(t, err)

	o := fixedResponseServer(t, string(raw))
	got, err := o.Enter(context.Background(), "r1", "Alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.RoomID, got.RoomID)
	assert.Equal(t, snap.GuestID, got.GuestID)
}

func TestOpsTranslatesWireCodes(t *testing.T) {
	o := fixedResponseServer(t, `{"code":"E4006"}`)
	_, err := o.Heartbeat(context.Background(), "r1", "Alice")
	assert.ErrorIs(t, err, core.ErrRoomExpired)

	o = fixedResponseServer(t, `{"code":"R0001"}`)
	_, err = o.Enter(context.Background(), "r1", "Alice")
	assert.ErrorIs(t, err, core.ErrRoomFull)
}
