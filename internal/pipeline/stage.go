package pipeline

import "github.com/jonathan/context-crystal/internal/types"

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Stage    types.Stage
	Label    string
	Progress float64
	Next     types.Stage
}

// StageRegistry holds every stage definition. Work stages are listed in
// WorkStages; StageFailed has no successor.
var StageRegistry = map[types.Stage]StageDefinition{
	types.StageInitializing: {
		Stage:    types.StageInitializing,
		Label:    "Queued",
		Progress: 0.0,
		Next:     types.StageExtraction,
	},
	types.StageExtraction: {
		Stage:    types.StageExtraction,
		Label:    "Extracting conversation",
		Progress: 0.2,
		Next:     types.StageCompression,
	},
	types.StageCompression: {
		Stage:    types.StageCompression,
		Label:    "Compressing facts",
		Progress: 0.4,
		Next:     types.StageVerification,
	},
	types.StageVerification: {
		Stage:    types.StageVerification,
		Label:    "Verifying grounding",
		Progress: 0.6,
		Next:     types.StageOptimization,
	},
	types.StageOptimization: {
		Stage:    types.StageOptimization,
		Label:    "Assembling prompt",
		Progress: 0.8,
		Next:     types.StageCompleted,
	},
	types.StageCompleted: {
		Stage:    types.StageCompleted,
		Label:    "Completed",
		Progress: 1.0,
	},
	types.StageFailed: {
		Stage: types.StageFailed,
		Label: "Failed",
	},
}

// WorkStages lists the stages that run a component, in order
var WorkStages = []types.Stage{
	types.StageExtraction,
	types.StageCompression,
	types.StageVerification,
	types.StageOptimization,
}

// Transition validates a stage change. Stages advance one step at a time;
// any non-terminal stage may move to failed; completed and failed are final.
func Transition(from, to types.Stage) error {
	def, ok := StageRegistry[from]
	if !ok {
		return &TransitionError{From: from, To: to, Message: "unknown stage"}
	}
	if _, ok := StageRegistry[to]; !ok {
		return &TransitionError{From: from, To: to, Message: "unknown stage"}
	}
	if IsTerminal(from) {
		return &TransitionError{From: from, To: to, Message: "stage is terminal"}
	}
	if to == types.StageFailed || to == def.Next {
		return nil
	}
	return &TransitionError{From: from, To: to, Message: "stages are not adjacent"}
}

// IsTerminal reports whether no transition leaves stage
func IsTerminal(stage types.Stage) bool {
	return stage == types.StageCompleted || stage == types.StageFailed
}

// Project maps a stage onto the coarse external status
func Project(stage types.Stage) types.ProcessingStatus {
	switch stage {
	case types.StageInitializing:
		return types.ProcessingPending
	case types.StageCompleted:
		return types.ProcessingCompleted
	case types.StageFailed:
		return types.ProcessingFailed
	default:
		return types.ProcessingActive
	}
}

// Label returns the human label of a stage
func Label(stage types.Stage) string {
	return StageRegistry[stage].Label
}
