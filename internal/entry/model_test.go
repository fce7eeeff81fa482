package entry

import (
	"errors"
	"testing"
	"time"
)

func validEntry() Entry {
	return Entry{
		AthleteID:    "athlete-1",
		SupplementID: "supp-1",
		Amount:       500,
		Unit:         UnitMilligram,
		Timestamp:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr bool
	}{
		{"valid entry", func(e *Entry) {}, false},
		{"missing athlete", func(e *Entry) { e.AthleteID = "" }, true},
		{"missing supplement", func(e *Entry) { e.SupplementID = "" }, true},
		{"negative amount", func(e *Entry) { e.Amount = -1 }, true},
		{"zero amount allowed", func(e *Entry) { e.Amount = 0 }, false},
		{"unknown unit", func(e *Entry) { e.Unit = "barrels" }, true},
		{"empty unit", func(e *Entry) { e.Unit = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(&e)

			err := e.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("Validate() = %v, want ErrValidation wrap", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestUnit_Valid(t *testing.T) {
	for _, u := range []Unit{UnitMilligram, UnitGram, UnitMilliliter, UnitCapsules, UnitTablets} {
		if !u.Valid() {
			t.Errorf("Valid() = false for accepted unit %q", u)
		}
	}
	for _, u := range []Unit{"", "MG", "oz", "pills"} {
		if u.Valid() {
			t.Errorf("Valid() = true for rejected unit %q", u)
		}
	}
}

func TestAppendAudit_DoesNotMutateInput(t *testing.T) {
	first := AuditEvent{ID: "evt-1", Action: ActionCreate, UserID: "athlete-1"}
	trail := []AuditEvent{first}

	appended := AppendAudit(trail, AuditEvent{ID: "evt-2", Action: ActionUpdate, UserID: "athlete-1"})

	if len(trail) != 1 {
		t.Fatalf("input trail length = %d, want 1 (input must not be mutated)", len(trail))
	}
	if len(appended) != 2 {
		t.Fatalf("appended trail length = %d, want 2", len(appended))
	}
	if appended[0].ID != "evt-1" || appended[1].ID != "evt-2" {
		t.Errorf("appended trail order = [%s, %s], want [evt-1, evt-2]", appended[0].ID, appended[1].ID)
	}

	// Growing the new trail further must not write through into the old one.
	appended = AppendAudit(appended, AuditEvent{ID: "evt-3", Action: ActionVerify})
	if trail[0].ID != "evt-1" {
		t.Error("original trail modified by later append")
	}
}

func TestAppendAudit_PreservesOrder(t *testing.T) {
	var trail []AuditEvent
	for _, id := range []string{"a", "b", "c", "d"} {
		trail = AppendAudit(trail, AuditEvent{ID: id})
	}

	if len(trail) != 4 {
		t.Fatalf("trail length = %d, want 4", len(trail))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if trail[i].ID != want {
			t.Errorf("trail[%d].ID = %s, want %s", i, trail[i].ID, want)
		}
	}
}
