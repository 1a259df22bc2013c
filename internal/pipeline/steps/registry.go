// Package steps defines the ordered progress steps of a research run, their
// advertised percentages and the steps each one depends on.
package steps

import (
	"fmt"
	"sync"

	"github.com/jonathan/interview-prep/internal/types"
)

// Phases
const (
	PhaseStart      = "start"
	PhaseGather     = "gather"
	PhaseSynthesize = "synthesize"
	PhasePersist    = "persist"
	PhaseComplete   = "complete"
)

// StepDefinition defines metadata for a progress step
type StepDefinition struct {
	Name         string
	Phase        string
	Percentage   int
	Dependencies []string
}

// StepRegistry holds all step definitions, keyed by the step label written to the job record
var StepRegistry = map[string]StepDefinition{
	types.StepInitializing: {
		Name:       types.StepInitializing,
		Phase:      PhaseStart,
		Percentage: 5,
	},
	types.StepGathering: {
		Name:         types.StepGathering,
		Phase:        PhaseGather,
		Percentage:   10,
		Dependencies: []string{types.StepInitializing},
	},
	types.StepSavingRaw: {
		Name:         types.StepSavingRaw,
		Phase:        PhaseGather,
		Percentage:   45,
		Dependencies: []string{types.StepGathering},
	},
	types.StepSynthesizing: {
		Name:         types.StepSynthesizing,
		Phase:        PhaseSynthesize,
		Percentage:   50,
		Dependencies: []string{types.StepSavingRaw},
	},
	types.StepFinalizing: {
		Name:         types.StepFinalizing,
		Phase:        PhasePersist,
		Percentage:   80,
		Dependencies: []string{types.StepSynthesizing},
	},
	types.StepDone: {
		Name:         types.StepDone,
		Phase:        PhaseComplete,
		Percentage:   100,
		Dependencies: []string{types.StepFinalizing},
	},
}

// Percentage returns the advertised percentage for a step, or 0 for unknown steps.
func Percentage(step string) int {
	return StepRegistry[step].Percentage
}

// GatheringPercentage interpolates between GATHERING and SAVING_RAW_DATA as gatherers finish.
func GatheringPercentage(finished, total int) int {
	lo, hi := Percentage(types.StepGathering), Percentage(types.StepSavingRaw)
	if total <= 0 || finished <= 0 {
		return lo
	}
	if finished >= total {
		return hi - 5
	}
	return lo + (hi-5-lo)*finished/total
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s entered before %v", e.Step, e.MissingDependencies)
}

// Tracker records the steps a run has entered and rejects out of order steps.
type Tracker struct {
	mu      sync.Mutex
	entered map[string]bool
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entered: make(map[string]bool)}
}

// Enter marks step as entered once all of its dependencies have been.
func (t *Tracker) Enter(step string) error {
	def, ok := StepRegistry[step]
	if !ok {
		return fmt.Errorf("unknown step: %s", step)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var missing []string
	for _, dep := range def.Dependencies {
		if !t.entered[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Step: step, MissingDependencies: missing}
	}
	t.entered[step] = true
	return nil
}

// Entered reports whether step has been entered.
func (t *Tracker) Entered(step string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entered[step]
}
