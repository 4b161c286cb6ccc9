package reconcile

import (
	"encoding/json"
	"fmt"
)

// Event types pushed by the server.
const (
	TypeMaterialsUpdated    = "materials_updated"
	TypeProfileViewRequest  = "profile_view_request"
	TypeProfileViewApproved = "profile_view_approved"
	TypeProfileViewRejected = "profile_view_rejected"
	TypeTransferCompleted   = "transfer_completed"
	TypeTransferRequest     = "transfer_request"
	TypeTransferStatus      = "transfer_status"
)

// Event is a push notification payload. Fields are populated per type;
// absent fields keep their zero values.
type Event struct {
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	RequestID      string  `json:"request_id"`
	RequesterID    int64   `json:"requester_id"`
	TargetID       int64   `json:"target_id"`
	TargetUserName string  `json:"target_user_name"`
	PhotoIDs       []int64 `json:"photo_ids"`
	OldPhotoIDs    []int64 `json:"old_photo_ids"`
	IsUpdate       bool    `json:"is_update"`
	TransferID     string  `json:"transfer_id"`
	Status         string  `json:"status"`
	PhotoID        int64   `json:"photo_id"`
	PhotoURL       string  `json:"photo_url"`
}

// ParseEvent decodes a push payload.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed push payload: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("push payload missing type")
	}
	return &ev, nil
}

// GrantChange classifies how an updated grant differs from its
// previous photo selection.
type GrantChange string

const (
	// GrantFullyRevoked: every previously visible photo was withdrawn.
	GrantFullyRevoked GrantChange = "fully_revoked"
	// GrantPartiallyRestricted: some photos withdrawn, none added.
	GrantPartiallyRestricted GrantChange = "partially_restricted"
	// GrantExpanded: photos added, none withdrawn.
	GrantExpanded GrantChange = "expanded"
	// GrantChanged: photos both added and withdrawn.
	GrantChanged GrantChange = "changed"
	// GrantUpdated: the selection is unchanged or only reordered.
	GrantUpdated GrantChange = "updated"
)

// ClassifyGrantDiff compares the previous and new photo selections of
// a grant. It is total: every input pair maps to exactly one class.
func ClassifyGrantDiff(oldIDs, newIDs []int64) GrantChange {
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	removed := 0
	for id := range oldSet {
		if _, ok := newSet[id]; !ok {
			removed++
		}
	}
	added := 0
	for id := range newSet {
		if _, ok := oldSet[id]; !ok {
			added++
		}
	}

	switch {
	case removed > 0 && len(newSet) == 0:
		return GrantFullyRevoked
	case removed > 0 && added == 0:
		return GrantPartiallyRestricted
	case added > 0 && removed == 0:
		return GrantExpanded
	case added > 0 && removed > 0:
		return GrantChanged
	default:
		return GrantUpdated
	}
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
