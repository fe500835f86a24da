package history

import (
	"testing"

	"github.com/wunderlabs-dev/wunderunner/internal/store"
)

func TestPromoteMarksSoftAtThreshold(t *testing.T) {
	h := NewFixHistory("/tmp/proj")
	h.Constraints = append(h.Constraints, Derive("c1", 1, "pin node version", "build failed on latest"))

	for i := 1; i <= SoftThreshold+2; i++ {
		h.Promote()
		c := h.Constraints[0]
		if c.SuccessCount != i {
			t.Fatalf("after %d promotions SuccessCount = %d", i, c.SuccessCount)
		}
		wantSoft := i >= SoftThreshold
		if gotSoft := c.Status == StatusSoft; gotSoft != wantSoft {
			t.Errorf("after %d promotions status = %s", i, c.Status)
		}
	}
}

func TestPromoteNeverRevertsToHard(t *testing.T) {
	h := NewFixHistory("/tmp/proj")
	c := Derive("c1", 1, "rule", "reason")
	c.SuccessCount = 5
	c.Status = StatusSoft
	h.Constraints = append(h.Constraints, c)

	h.Promote()
	if h.Constraints[0].Status != StatusSoft {
		t.Errorf("status = %s, want soft", h.Constraints[0].Status)
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name       string
		existing   *Constraint
		violated   bool
		wantCount  int
		wantStatus ConstraintStatus
		wantTotal  int
	}{
		{
			name:     "new constraint appended",
			violated: false,
			wantCount: 0, wantStatus: StatusHard, wantTotal: 2,
		},
		{
			name:     "violated resets established constraint",
			existing: &Constraint{ID: "old", Rule: "use WORKDIR /app", SuccessCount: 4, Status: StatusSoft},
			violated: true,
			wantCount: 0, wantStatus: StatusHard, wantTotal: 1,
		},
		{
			name:     "non-violated keeps established constraint",
			existing: &Constraint{ID: "old", Rule: "use WORKDIR /app", SuccessCount: 2, Status: StatusHard},
			violated: false,
			wantCount: 2, wantStatus: StatusHard, wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFixHistory("/tmp/proj")
			if tt.existing != nil {
				h.Constraints = append(h.Constraints, *tt.existing)
			} else {
				h.Constraints = append(h.Constraints, Derive("other", 1, "unrelated rule", ""))
			}

			h.Reconcile(Derive("new", 3, "use WORKDIR /app", "fixes build"), tt.violated)

			if len(h.Constraints) != tt.wantTotal {
				t.Fatalf("constraints = %d, want %d", len(h.Constraints), tt.wantTotal)
			}
			var got *Constraint
			for i := range h.Constraints {
				if h.Constraints[i].Rule == "use WORKDIR /app" {
					got = &h.Constraints[i]
				}
			}
			if got == nil {
				t.Fatal("constraint with candidate rule not found")
			}
			if got.SuccessCount != tt.wantCount {
				t.Errorf("SuccessCount = %d, want %d", got.SuccessCount, tt.wantCount)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestSeenSuccessfulFix(t *testing.T) {
	h := NewFixHistory("/tmp/proj")
	h.RecordAttempt(FixAttempt{Attempt: 1, ErrorKind: "BuildError", ErrorMessage: "missing script: build", Success: true})
	h.RecordAttempt(FixAttempt{Attempt: 2, ErrorKind: "StartError", ErrorMessage: "port in use", Success: false})

	if !h.SeenSuccessfulFix("BuildError", "missing script: build") {
		t.Error("expected successful fix to be found")
	}
	if h.SeenSuccessfulFix("StartError", "port in use") {
		t.Error("failed attempt should not count as a successful fix")
	}
	if h.SeenSuccessfulFix("BuildError", "other message") {
		t.Error("different message should not match")
	}
}

func TestHardSoftPartition(t *testing.T) {
	h := NewFixHistory("/tmp/proj")
	hard := Derive("h", 1, "hard rule", "")
	soft := Derive("s", 1, "soft rule", "")
	soft.Status = StatusSoft
	h.Constraints = append(h.Constraints, hard, soft)

	if got := h.HardConstraints(); len(got) != 1 || got[0].Rule != "hard rule" {
		t.Errorf("HardConstraints = %+v", got)
	}
	if got := h.SoftConstraints(); len(got) != 1 || got[0].Rule != "soft rule" {
		t.Errorf("SoftConstraints = %+v", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(store.NewStore(dir))

	// Load with no file yet returns an empty history.
	h, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.Project != dir || len(h.Constraints) != 0 {
		t.Fatalf("unexpected empty history: %+v", h)
	}

	_, err = s.Update(func(h *FixHistory) {
		h.Constraints = append(h.Constraints, Derive("c1", 1, "rule", "reason"))
		h.RecordAttempt(FixAttempt{Attempt: 1, Phase: "BUILD", ErrorKind: "BuildError", ErrorMessage: "boom"})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := s.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Constraints) != 1 || reloaded.Constraints[0].Rule != "rule" {
		t.Errorf("constraints not persisted: %+v", reloaded.Constraints)
	}
	if len(reloaded.Attempts) != 1 || reloaded.Attempts[0].ErrorKind != "BuildError" {
		t.Errorf("attempts not persisted: %+v", reloaded.Attempts)
	}
}
