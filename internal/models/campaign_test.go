package models

import "testing"

func TestIsValidCampaignTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Lifecycle
		{CampaignStatusDraft, CampaignStatusScheduled, true},
		{CampaignStatusDraft, CampaignStatusActive, true},
		{CampaignStatusScheduled, CampaignStatusActive, true},
		{CampaignStatusActive, CampaignStatusPaused, true},
		{CampaignStatusPaused, CampaignStatusActive, true},
		{CampaignStatusActive, CampaignStatusCompleted, true},
		{CampaignStatusActive, CampaignStatusFailed, true},
		{CampaignStatusPaused, CampaignStatusFailed, true},

		// Cancellation
		{CampaignStatusDraft, CampaignStatusCancelled, true},
		{CampaignStatusScheduled, CampaignStatusCancelled, true},
		{CampaignStatusActive, CampaignStatusCancelled, true},
		{CampaignStatusPaused, CampaignStatusCancelled, true},

		// Invalid
		{CampaignStatusPaused, CampaignStatusPaused, false},
		{CampaignStatusDraft, CampaignStatusPaused, false},
		{CampaignStatusScheduled, CampaignStatusPaused, false},
		{CampaignStatusPaused, CampaignStatusCompleted, false},
		{CampaignStatusFailed, CampaignStatusActive, false},
		{CampaignStatusCompleted, CampaignStatusActive, false},
		{CampaignStatusCancelled, CampaignStatusActive, false},
		{"nonexistent", CampaignStatusActive, false},
		{CampaignStatusDraft, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidCampaignTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidCampaignTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTerminalCampaignStatuses(t *testing.T) {
	terminal := []string{CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled}
	for _, status := range terminal {
		if !IsTerminalCampaignStatus(status) {
			t.Errorf("status %q should be terminal", status)
		}
	}
	for _, status := range []string{CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusActive, CampaignStatusPaused} {
		if IsTerminalCampaignStatus(status) {
			t.Errorf("status %q should not be terminal", status)
		}
	}
	if IsTerminalCampaignStatus("nonexistent") {
		t.Error("unknown status must not be reported terminal")
	}
}

func TestSessionUsable(t *testing.T) {
	s := Session{Status: SessionStatusActive, SessionString: "s", APIID: 1, APIHash: "h"}
	if !s.IsActive() || !s.HasCredentials() {
		t.Fatal("expected active session with credentials")
	}
	s.APIHash = ""
	if s.HasCredentials() {
		t.Error("missing api hash must fail presence check")
	}
	s.Status = SessionStatusRevoked
	if s.IsActive() {
		t.Error("revoked session reported active")
	}
}
