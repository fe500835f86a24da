package history

import (
	"time"
)

// ConstraintStatus is the trust level of a constraint.
type ConstraintStatus string

const (
	// StatusHard marks a constraint that must always be honored.
	StatusHard ConstraintStatus = "hard"
	// StatusSoft marks a proven-stable constraint that may be negotiated
	// if it conflicts with a new requirement.
	StatusSoft ConstraintStatus = "soft"
)

// SoftThreshold is the number of consecutive successful builds after which
// a hard constraint is considered proven and relaxes to soft.
const SoftThreshold = 3

// Constraint is a persisted rule distilled from a fix that was confirmed to
// work. It starts hard and relaxes to soft once it has survived
// SoftThreshold successful builds; a violation resets it to hard.
type Constraint struct {
	ID           string           `json:"id"`
	Rule         string           `json:"rule"`
	Reason       string           `json:"reason"`
	FromAttempt  int              `json:"from_attempt"`
	SuccessCount int              `json:"success_count"`
	Status       ConstraintStatus `json:"status"`
}

// FixAttempt records one repair attempt for the exhaustion check.
type FixAttempt struct {
	Attempt      int    `json:"attempt"`
	Phase        string `json:"phase"`
	ErrorKind    string `json:"error_kind"`
	ErrorMessage string `json:"error_message"`
	Diagnosis    string `json:"diagnosis"`
	Success      bool   `json:"success"`
}

// FixHistory is the per-project log of fix attempts and active constraints.
type FixHistory struct {
	Project     string       `json:"project"`
	CreatedAt   string       `json:"created_at"`
	Attempts    []FixAttempt `json:"attempts"`
	Constraints []Constraint `json:"constraints"`
}

// NewFixHistory creates an empty history for a project.
func NewFixHistory(project string) *FixHistory {
	return &FixHistory{
		Project:     project,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Attempts:    []FixAttempt{},
		Constraints: []Constraint{},
	}
}

// Derive builds a new hard constraint from a confirmed fix.
func Derive(id string, attempt int, rule string, reason string) Constraint {
	return Constraint{
		ID:          id,
		Rule:        rule,
		Reason:      reason,
		FromAttempt: attempt,
		Status:      StatusHard,
	}
}

// Promote increments the success count of every active constraint after a
// successful build. A constraint whose count first reaches SoftThreshold is
// marked soft; the transition is one-way until a violation resets it.
func (h *FixHistory) Promote() {
	for i := range h.Constraints {
		c := &h.Constraints[i]
		c.SuccessCount++
		if c.Status == StatusHard && c.SuccessCount >= SoftThreshold {
			c.Status = StatusSoft
		}
	}
}

// Reconcile merges a candidate constraint into the history. If a constraint
// with the same rule already exists and was violated, it is replaced with a
// reset hard constraint. If it exists and was not violated, the established
// constraint wins over the fresh candidate. Otherwise the candidate is
// appended.
func (h *FixHistory) Reconcile(candidate Constraint, violated bool) {
	for i := range h.Constraints {
		if h.Constraints[i].Rule != candidate.Rule {
			continue
		}
		if violated {
			candidate.SuccessCount = 0
			candidate.Status = StatusHard
			h.Constraints[i] = candidate
		}
		return
	}
	h.Constraints = append(h.Constraints, candidate)
}

// RecordAttempt appends a fix attempt to the log.
func (h *FixHistory) RecordAttempt(a FixAttempt) {
	h.Attempts = append(h.Attempts, a)
}

// SeenSuccessfulFix reports whether a successful fix was already recorded for
// the given error. A recurrence of such an error means the fix's constraint
// was violated.
func (h *FixHistory) SeenSuccessfulFix(errorKind, errorMessage string) bool {
	for _, a := range h.Attempts {
		if a.Success && a.ErrorKind == errorKind && a.ErrorMessage == errorMessage {
			return true
		}
	}
	return false
}

// HardConstraints returns the active hard constraints.
func (h *FixHistory) HardConstraints() []Constraint {
	var out []Constraint
	for _, c := range h.Constraints {
		if c.Status == StatusHard {
			out = append(out, c)
		}
	}
	return out
}

// SoftConstraints returns the active soft constraints.
func (h *FixHistory) SoftConstraints() []Constraint {
	var out []Constraint
	for _, c := range h.Constraints {
		if c.Status == StatusSoft {
			out = append(out, c)
		}
	}
	return out
}
