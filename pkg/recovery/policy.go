// Package recovery holds the pure decision logic mapping step failures to a
// recovery strategy and a list of compensating actions. It owns no state and
// performs no I/O; the engine interprets the plans it produces.
package recovery

import (
	"strings"

	"github.com/adyngom/nano-agent/pkg/models"
)

// Plan is the outcome of classifying a failure: the strategy to follow and
// the compensating actions to apply to shared state before the retry.
type Plan struct {
	Strategy models.RecoveryStrategy
	Actions  []models.Action
}

// classPatterns maps substrings found in executor error messages to an error
// class. Matching is case-insensitive; the first matching class wins, and
// classes are probed in a fixed order so classification is deterministic.
var classPatterns = []struct {
	class    models.ErrorClass
	patterns []string
}{
	{models.ValidationError, []string{"validation", "invalid", "malformed"}},
	{models.TimeoutError, []string{"timeout", "timed out", "deadline exceeded"}},
	{models.DependencyError, []string{"dependency", "prerequisite", "missing"}},
}

// Classify maps a raw error message to an error class. It never fails:
// unmatched messages classify as UnknownError.
func Classify(errorDetail string) models.ErrorClass {
	lower := strings.ToLower(errorDetail)
	for _, entry := range classPatterns {
		for _, p := range entry.patterns {
			if strings.Contains(lower, p) {
				return entry.class
			}
		}
	}
	return models.UnknownError
}

// PlanFor returns the recovery plan for an error class. Every class has a
// valid plan; UnknownError gets a best-effort checkpoint restore with no
// compensating actions.
func PlanFor(class models.ErrorClass) Plan {
	switch class {
	case models.ValidationError:
		return Plan{
			Strategy: models.CheckpointRecovery,
			Actions:  []models.Action{models.RevalidateInputAction, models.NormalizeInputAction},
		}
	case models.TimeoutError:
		return Plan{
			Strategy: models.RetryWithFallback,
			Actions:  []models.Action{models.SwitchFallbackAction, models.ReduceScopeAction},
		}
	case models.DependencyError:
		return Plan{
			Strategy: models.CompensatingAction,
			Actions:  []models.Action{models.RegenerateDependencyAction, models.ValidatePrerequisitesAction},
		}
	default:
		return Plan{Strategy: models.CheckpointRecovery}
	}
}
