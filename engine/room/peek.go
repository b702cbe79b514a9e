package room

import (
	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
)

// ApplyPeeks implements spec §4.4.c: rooms named in extras.peek that
// the resolver did not already produce a plan for (i.e. the user has
// no membership admitting them) become inline CANNOT_PEEK errors.
func ApplyPeeks(plans map[string]*Plan, peek collab.PeekExtras) map[string]*Plan {
	for roomID := range peek.RoomIDs {
		if _, admitted := plans[roomID]; admitted {
			continue
		}
		plans[roomID] = &Plan{RoomID: roomID, Kind: PlanError, ErrorCode: types.CannotPeek}
	}
	return plans
}
