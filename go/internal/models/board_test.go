package models

import "testing"

func TestDecodeBoardEnvelopeFillsMissingCollections(t *testing.T) {
	// A legacy payload with one category missing entirely and no team list.
	payload := []byte(`{"retroData":{"sprintName":"Sprint 12","items":{"went-well":[{"id":"a1","text":"shipped","votes":2}]}},"lastUpdated":1700000000000}`)

	env, err := DecodeBoardEnvelope(payload)
	if err != nil {
		t.Fatalf("DecodeBoardEnvelope() error = %v", err)
	}

	b := env.RetroData
	if b.SprintName != "Sprint 12" {
		t.Errorf("SprintName = %q", b.SprintName)
	}
	if got := b.ItemCount(CategoryWentWell); got != 1 {
		t.Errorf("went-well count = %d, want 1", got)
	}
	for _, c := range Categories() {
		if b.Items[c] == nil {
			t.Errorf("category %s left nil", c)
		}
	}
	if b.TeamMembers == nil {
		t.Error("TeamMembers left nil")
	}
	if b.Items[CategoryWentWell][0].Author != nil {
		t.Error("legacy item grew an author")
	}
}

func TestDecodeBoardRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeBoard([]byte(`{"items":`)); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBoard()
	b.Items[CategoryAction] = []Item{{ID: "x", Text: "follow up", Author: &Author{UserID: "u1"}}}
	b.TeamMembers = []string{"ana"}

	cp := b.Clone()
	cp.Items[CategoryAction][0].Text = "changed"
	cp.Items[CategoryAction][0].Author.UserID = "u2"
	cp.TeamMembers[0] = "bob"

	if b.Items[CategoryAction][0].Text != "follow up" {
		t.Error("clone shares item slice")
	}
	if b.Items[CategoryAction][0].Author.UserID != "u1" {
		t.Error("clone shares author pointer")
	}
	if b.TeamMembers[0] != "ana" {
		t.Error("clone shares team member slice")
	}
}

func TestDecodeTimerRecordClampsValues(t *testing.T) {
	rec, err := DecodeTimerRecord([]byte(`{"duration":0,"remaining":-5,"isRunning":true,"isPaused":true}`))
	if err != nil {
		t.Fatalf("DecodeTimerRecord() error = %v", err)
	}
	if rec.Duration != DefaultTimerMinutes {
		t.Errorf("Duration = %d, want %d", rec.Duration, DefaultTimerMinutes)
	}
	if rec.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", rec.Remaining)
	}
	if rec.IsRunning && rec.IsPaused {
		t.Error("isRunning and isPaused both true after decode")
	}
}

func TestDecodeRevealRecordLegacyShape(t *testing.T) {
	rec, err := DecodeRevealRecord([]byte(`{"isTextHidden":true}`))
	if err != nil {
		t.Fatalf("DecodeRevealRecord() error = %v", err)
	}
	if rec.HideMode != RevealModeAll {
		t.Errorf("HideMode = %q, want %q", rec.HideMode, RevealModeAll)
	}

	rec, err = DecodeRevealRecord([]byte(`{"isTextHidden":false,"hideMode":"others"}`))
	if err != nil {
		t.Fatalf("DecodeRevealRecord() error = %v", err)
	}
	if rec.HideMode != RevealModeOthers {
		t.Errorf("HideMode = %q, want %q", rec.HideMode, RevealModeOthers)
	}
}
