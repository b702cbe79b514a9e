// Package accountdata implements the account-data + tags + push-rules
// assembler (spec §4.3): incremental vs full fetch, and the
// push-rule-changed inclusion rule.
package accountdata

import (
	"context"
	"encoding/json"

	"github.com/arcchat/syncengine/collab"
	"github.com/arcchat/syncengine/types"
	"github.com/tidwall/gjson"
)

const pushRulesType = "m.push_rules"

// Result is the assembler's output: the flat list of account-data
// events (global only) to place at the top level of the sync result.
// The per-room account data that GetAccountData returns is dropped:
// it is not surfaced in any room's JoinedResult.
type Result struct {
	Events []*types.Event
}

// Assemble implements spec §4.3.
func Assemble(ctx context.Context, store collab.Storage, rules collab.PushRuleFormatter, userID string, since *types.StreamPosition, fullState bool) (Result, error) {
	global, _, err := store.GetAccountData(ctx, userID, sinceArg(since, fullState))
	if err != nil {
		return Result{}, err
	}

	events := make([]*types.Event, 0, len(global)+1)
	for evType, content := range global {
		events = append(events, &types.Event{Type: evType, Content: content})
	}

	includePushRules := fullState || since == nil
	if !includePushRules {
		if raw, ok := global[pushRulesType]; ok {
			includePushRules = gjson.GetBytes(raw, "changed").Bool()
		} else {
			includePushRules = pushRulesChanged(ctx, store, userID, *since)
		}
	}
	if includePushRules {
		formatted, err := rules.FormatPushRulesForUser(ctx, userID)
		if err != nil {
			return Result{}, err
		}
		events = append(events, &types.Event{Type: pushRulesType, Content: json.RawMessage(formatted)})
	}

	return Result{Events: events}, nil
}

func sinceArg(since *types.StreamPosition, fullState bool) *types.StreamPosition {
	if fullState {
		return nil
	}
	return since
}

// pushRulesChanged checks whether the stored rule set changed since a
// cursor when the account-data fetch itself didn't surface a push-rule
// entry (e.g. because the store tracks rule changes on their own
// sub-stream rather than as an account-data blob).
func pushRulesChanged(ctx context.Context, store collab.Storage, userID string, since types.StreamPosition) bool {
	changed, err := store.PushRulesChangedSince(ctx, userID, since)
	if err != nil {
		return false
	}
	return changed
}
