package presence_test

import (
	"context"
	"testing"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/engine/presence"
	"github.com/arcchat/syncengine/internal/memstore"
	"github.com/arcchat/syncengine/types"
	"github.com/stretchr/testify/require"
)

// TestAssemble_InitialSyncOnlyReturnsOnlineUsers covers the
// online-only restriction on an initial sync.
func TestAssemble_InitialSyncOnlyReturnsOnlineUsers(t *testing.T) {
	pres := memstore.NewPresence()
	pres.SetState(collab.PresenceState{UserID: "@bob:test", Status: "online", LastActiveTS: 5})
	pres.SetState(collab.PresenceState{UserID: "@carol:test", Status: "offline"})

	res, err := presence.Assemble(context.Background(), pres, presence.Params{
		UserID:           "@alice:test",
		NewlyJoinedUsers: map[string]struct{}{"@bob:test": {}, "@carol:test": {}},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, "@bob:test", res.Events[0].Sender)
}

// TestAssemble_ExcludesRequestingUserFromExtras covers the extra_users
// expansion excluding the syncing user themselves.
func TestAssemble_ExcludesRequestingUserFromExtras(t *testing.T) {
	pres := memstore.NewPresence()
	pres.SetState(collab.PresenceState{UserID: "@alice:test", Status: "online"})

	res, err := presence.Assemble(context.Background(), pres, presence.Params{
		UserID:           "@alice:test",
		NewlyJoinedUsers: map[string]struct{}{"@alice:test": {}},
	})
	require.NoError(t, err)
	require.Empty(t, res.Events, "a user is never their own extra_users entry")
}

// TestAssemble_IncrementalUsesStatesSince covers the incremental
// branch, which is not restricted to online-only.
func TestAssemble_IncrementalUsesStatesSince(t *testing.T) {
	pres := memstore.NewPresence()
	pres.SetState(collab.PresenceState{UserID: "@bob:test", Status: "offline"})

	since := types.StreamPosition(5)
	res, err := presence.Assemble(context.Background(), pres, presence.Params{
		UserID:           "@alice:test",
		Since:            &since,
		NewlyJoinedUsers: map[string]struct{}{"@bob:test": {}},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, "@bob:test", res.Events[0].Sender)
}

// TestAssemble_IncrementalSurfacesExistingRoomMemberNotJustExtras
// covers spec §4.5: an incremental sync must deliver presence changes
// for every user sharing presence visibility with the syncer, not only
// users related to rooms newly joined this poll.
func TestAssemble_IncrementalSurfacesExistingRoomMemberNotJustExtras(t *testing.T) {
	pres := memstore.NewPresence()
	pres.SetContacts("@alice:test", []string{"@dave:test"})
	pres.SetState(collab.PresenceState{UserID: "@dave:test", Status: "unavailable"})

	since := types.StreamPosition(5)
	res, err := presence.Assemble(context.Background(), pres, presence.Params{
		UserID: "@alice:test",
		Since:  &since,
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1, "dave shares a room with alice but was never newly-joined this poll")
	require.Equal(t, "@dave:test", res.Events[0].Sender)
}
