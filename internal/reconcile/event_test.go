package reconcile

import (
	"testing"
)

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"transfer_request","transfer_id":"t1","photo_id":3}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != TypeTransferRequest || ev.TransferID != "t1" || ev.PhotoID != 3 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseEventMalformed(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"type":`)); err == nil {
		t.Error("truncated JSON must be rejected")
	}
	if _, err := ParseEvent([]byte(`{"message":"hi"}`)); err == nil {
		t.Error("payload without a type must be rejected")
	}
}

func TestClassifyGrantDiff(t *testing.T) {
	tests := []struct {
		name string
		old  []int64
		new  []int64
		want GrantChange
	}{
		{"all withdrawn", []int64{1, 2}, nil, GrantFullyRevoked},
		{"some withdrawn", []int64{1, 2}, []int64{1}, GrantPartiallyRestricted},
		{"only added", []int64{1}, []int64{1, 2}, GrantExpanded},
		{"added from empty", nil, []int64{1}, GrantExpanded},
		{"added and withdrawn", []int64{1, 2}, []int64{2, 3}, GrantChanged},
		{"replaced entirely", []int64{1}, []int64{2}, GrantChanged},
		{"unchanged", []int64{1, 2}, []int64{1, 2}, GrantUpdated},
		{"reordered", []int64{1, 2}, []int64{2, 1}, GrantUpdated},
		{"duplicates collapse", []int64{1, 1, 2}, []int64{2, 2, 1}, GrantUpdated},
		{"both empty", nil, nil, GrantUpdated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyGrantDiff(tc.old, tc.new); got != tc.want {
				t.Errorf("ClassifyGrantDiff(%v, %v) = %q, want %q", tc.old, tc.new, got, tc.want)
			}
		})
	}
}
