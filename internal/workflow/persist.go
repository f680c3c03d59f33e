package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/service"
)

// Durable keys owned by the controller.
const (
	KeyDraft        = "draft"
	KeyClaimRecord  = "claim_record"
	KeyNotification = "notification"
	KeyClaimStatus  = "claim_status"
	KeyFinalized    = "finalized"
)

// claimKeys hold the facts of the claim in progress.
var claimKeys = []string{KeyDraft, KeyClaimRecord, KeyNotification, KeyClaimStatus}

// stateKeys are cleared together on finalize and reset.
var stateKeys = append(append([]string(nil), claimKeys...), KeyFinalized)

// finalizedClaim marks a payout that succeeded before local state was cleared.
// While it matches the current record, Finalize never calls the backend again.
type finalizedClaim struct {
	Receipt model.FinalizeReceipt `json:"receipt"`
	ClaimID string                `json:"claim_id"`
}

// saveJSON writes v under key as one value, so readers see all of it or none.
func saveJSON(ctx context.Context, store service.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

// loadJSON decodes key into v. It reports false when the key is absent.
func loadJSON(ctx context.Context, store service.Store, key string, v any) (bool, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", common.ErrDatabaseCorrupted, key, err)
	}
	return true, nil
}
