package statedelta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestCompute_FullState(t *testing.T) {
	current := set("$create", "$name1")
	// full state: previous is empty, timelineStart == current
	got := Compute(current, current, nil, nil)
	assert.ElementsMatch(t, []string{"$create", "$name1"}, got)
}

func TestCompute_IncrementalNoChange(t *testing.T) {
	prev := set("$name1")
	current := set("$name1")
	got := Compute(current, current, prev, nil)
	assert.Empty(t, got)
}

func TestCompute_TimelineContainsSuppressesRepeat(t *testing.T) {
	prev := set("$name1")
	current := set("$name2")
	timelineContains := set("$name2")
	got := Compute(current, current, prev, timelineContains)
	assert.Empty(t, got, "state already visible via the timeline must not be repeated in the delta")
}

func TestCompute_ChangeNotInTimelineIsSent(t *testing.T) {
	prev := set("$t1")
	current := set("$t2")
	got := Compute(current, prev, prev, nil)
	assert.ElementsMatch(t, []string{"$t2"}, got)
}

// TestCompute_TrimmedChangeSurvivesWhenLaterInlineChangeIsSuppressed
// covers the bug this raw-ID-set rewrite fixes: a single (type,
// state_key) slot changing twice within the batch — once to an event
// trimmed out of the visible timeline (timelineStart), once more to an
// event delivered inline in the timeline (current, also present in
// timelineContains) — must still surface the trimmed change. A
// per-key-collapsed algorithm that picks "current wins" before
// filtering would compute current==timelineContains for that key and
// silently drop the one update the client would otherwise never learn
// about.
func TestCompute_TrimmedChangeSurvivesWhenLaterInlineChangeIsSuppressed(t *testing.T) {
	previous := set("$e50")
	timelineStart := set("$e60") // trimmed out of the delivered timeline
	current := set("$e70")       // inline state event inside the timeline
	timelineContains := set("$e70")

	got := Compute(current, timelineStart, previous, timelineContains)
	assert.ElementsMatch(t, []string{"$e60"}, got, "the trimmed intermediate change must still be delivered")
}
