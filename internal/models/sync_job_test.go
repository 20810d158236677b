package models

import "testing"

func TestSyncJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SyncJobStatus
		ok       bool
	}{
		{SyncPending, SyncRunning, true},
		{SyncPending, SyncCancelled, true},
		{SyncPending, SyncCompleted, false},
		{SyncPending, SyncFailed, true},
		{SyncRunning, SyncCompleted, true},
		{SyncRunning, SyncFailed, true},
		{SyncRunning, SyncCancelled, true},
		{SyncRunning, SyncPending, false},
		{SyncCompleted, SyncRunning, false},
		{SyncFailed, SyncRunning, false},
		{SyncCancelled, SyncRunning, false},
		{SyncCompleted, SyncFailed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestSyncJobStatusTerminal(t *testing.T) {
	for _, s := range []SyncJobStatus{SyncCompleted, SyncFailed, SyncCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []SyncJobStatus{SyncPending, SyncRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Office Supplies":    "office supplies",
		"  office  SUPPLIES ": "office supplies",
		"":                   "",
		"   ":                "",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConnectionID(t *testing.T) {
	if got := ConnectionID(ProviderXero, "org-1"); got != "xero_org-1" {
		t.Fatalf("unexpected connection id %q", got)
	}
}
