// Package dispatch runs a backend for a classified intent under a per-intent
// time budget.
package dispatch

import (
	"fmt"
	"time"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

// Budgets maps each intent to the longest a backend call may run.
type Budgets map[domain.Intent]time.Duration

// DefaultBudgets returns the production budget table.
func DefaultBudgets() Budgets {
	return Budgets{
		domain.IntentSchoolRecommendation: 300 * time.Second,
		domain.IntentStudentInfo:          120 * time.Second,
		domain.IntentGeneralQA:            90 * time.Second,
	}
}

// Validate checks that every intent has exactly one positive budget and
// that no unknown intent is present.
func (b Budgets) Validate() error {
	for _, intent := range domain.AllIntents() {
		d, ok := b[intent]
		if !ok {
			return fmt.Errorf("missing execution budget for %s", intent)
		}
		if d <= 0 {
			return fmt.Errorf("execution budget for %s must be > 0, got %s", intent, d)
		}
	}
	for intent := range b {
		if !intent.Valid() {
			return fmt.Errorf("execution budget for unknown intent %q", intent)
		}
	}
	return nil
}
