package accountdata_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/arcchat/syncengine/engine/accountdata"
	"github.com/arcchat/syncengine/internal/memstore"
	"github.com/arcchat/syncengine/types"
	"github.com/stretchr/testify/require"
)

// TestAssemble_InitialSyncIncludesPushRules covers the always-include
// rule: an initial sync (since == nil) always carries push rules even
// though the fake account-data store has no push-rules entry at all.
func TestAssemble_InitialSyncIncludesPushRules(t *testing.T) {
	store := memstore.New()
	rules := memstore.PushRuleFormatter{Payload: []byte(`{"global":{}}`)}

	res, err := accountdata.Assemble(context.Background(), store, rules, "@alice:test", nil, false)
	require.NoError(t, err)

	found := false
	for _, ev := range res.Events {
		if ev.Type == "m.push_rules" {
			found = true
			require.JSONEq(t, `{"global":{}}`, string(ev.Content))
		}
	}
	require.True(t, found)
}

// TestAssemble_IncrementalWithoutChangeOmitsPushRules covers the
// opposite: an incremental sync with no recorded push-rules change
// must not re-send the (unchanged) rule set.
func TestAssemble_IncrementalWithoutChangeOmitsPushRules(t *testing.T) {
	store := memstore.New()
	rules := memstore.PushRuleFormatter{Payload: []byte(`{"global":{}}`)}

	since := types.StreamPosition(10)
	res, err := accountdata.Assemble(context.Background(), store, rules, "@alice:test", &since, false)
	require.NoError(t, err)

	for _, ev := range res.Events {
		require.NotEqual(t, "m.push_rules", ev.Type)
	}
}

// TestAssemble_IncrementalWithChangeIncludesPushRules covers the
// dedicated push-rules sub-stream change check.
func TestAssemble_IncrementalWithChangeIncludesPushRules(t *testing.T) {
	store := memstore.New()
	store.SetPushRulesVersion("@alice:test", 20)
	rules := memstore.PushRuleFormatter{Payload: []byte(`{"global":{}}`)}

	since := types.StreamPosition(10)
	res, err := accountdata.Assemble(context.Background(), store, rules, "@alice:test", &since, false)
	require.NoError(t, err)

	found := false
	for _, ev := range res.Events {
		if ev.Type == "m.push_rules" {
			found = true
		}
	}
	require.True(t, found)
}

// TestAssemble_GlobalAccountDataEventsSurfaced covers the plain
// passthrough of global account-data blobs.
func TestAssemble_GlobalAccountDataEventsSurfaced(t *testing.T) {
	store := memstore.New()
	store.SetGlobalAccountData("@alice:test", "m.direct", json.RawMessage(`{"@bob:test":["!a:test"]}`))
	rules := memstore.PushRuleFormatter{}

	res, err := accountdata.Assemble(context.Background(), store, rules, "@alice:test", nil, true)
	require.NoError(t, err)

	found := false
	for _, ev := range res.Events {
		if ev.Type == "m.direct" {
			found = true
			require.JSONEq(t, `{"@bob:test":["!a:test"]}`, string(ev.Content))
		}
	}
	require.True(t, found)
}
