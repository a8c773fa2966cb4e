// Package workflow drives a single WorkflowItem through its stages: a fixed
// state machine with single-writer advisory-lock discipline, a stage
// sequencer that delegates stage bodies to the quota manager, AI adapter,
// and fact mapper, retry/backoff on failure, and a distinguished
// quota-exceeded suspension state that preserves partial progress
// (spec.md §4.F). Grounded on original_source/app/core/workflow.py's
// WorkflowStateMachine/WorkflowEngine for the state shape and on tarsy's
// pkg/queue/worker.go control-flow idiom: stage bodies return a typed
// outcome rather than raising exceptions.
package workflow

import "github.com/labelsquor/squorcore/pkg/models"

// transitions is the fixed state transition table (spec.md §4.F). A
// transition not listed here is rejected.
var transitions = map[models.WorkflowState]map[models.WorkflowState]bool{
	models.WorkflowStateCreated: set(models.WorkflowStateQueued, models.WorkflowStateCancelled),
	models.WorkflowStateQueued: set(
		models.WorkflowStateProcessing, models.WorkflowStateCancelled, models.WorkflowStateSuspended,
	),
	models.WorkflowStateProcessing: set(
		models.WorkflowStateCompleted, models.WorkflowStateFailed, models.WorkflowStateWaiting,
		models.WorkflowStateSuspended, models.WorkflowStateQuotaExceeded, models.WorkflowStatePartiallyProcessed,
		models.WorkflowStateCancelled,
	),
	models.WorkflowStateWaiting: set(
		models.WorkflowStateProcessing, models.WorkflowStateFailed, models.WorkflowStateCancelled,
	),
	models.WorkflowStateFailed: set(
		models.WorkflowStateRetrying, models.WorkflowStateCancelled, models.WorkflowStateSuspended,
	),
	models.WorkflowStateRetrying: set(
		models.WorkflowStateQueued, models.WorkflowStateFailed, models.WorkflowStateCancelled,
	),
	models.WorkflowStateSuspended: set(models.WorkflowStateQueued, models.WorkflowStateCancelled),
	models.WorkflowStateQuotaExceeded: set(
		models.WorkflowStateQueued, models.WorkflowStateCancelled, models.WorkflowStateSuspended,
	),
	models.WorkflowStatePartiallyProcessed: set(
		models.WorkflowStateQueued, models.WorkflowStateProcessing, models.WorkflowStateCancelled,
	),
	models.WorkflowStateCompleted: {},
	models.WorkflowStateCancelled: {},
}

func set(states ...models.WorkflowState) map[models.WorkflowState]bool {
	m := make(map[models.WorkflowState]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// CanTransition reports whether moving from one state directly to another is
// allowed by the fixed transition table.
func CanTransition(from, to models.WorkflowState) bool {
	return transitions[from][to]
}

// IsTerminal reports whether a state has no outgoing transitions.
func IsTerminal(state models.WorkflowState) bool {
	return state == models.WorkflowStateCompleted || state == models.WorkflowStateCancelled
}

// IsActive reports whether a state represents a workflow currently being
// worked on by a worker.
func IsActive(state models.WorkflowState) bool {
	return state == models.WorkflowStateProcessing || state == models.WorkflowStateWaiting
}

// CanRetry reports whether a manual or automatic retry may be issued from
// this state.
func CanRetry(state models.WorkflowState) bool {
	return state == models.WorkflowStateFailed
}

// stageOrder is the fixed stage sequence a workflow item advances through.
// IMAGE_FETCH is intentionally absent: images are consumed by URL, never
// downloaded by the core (spec.md §4.F).
var stageOrder = []models.WorkflowStage{
	models.StageDiscovery,
	models.StageEnrichment,
	models.StageDataMapping,
	models.StageScoring,
	models.StageIndexing,
	models.StageNotification,
}

// stageIndex returns stage's position in stageOrder, or -1 if stage is not
// recognized (callers start discovery in that case).
func stageIndex(stage models.WorkflowStage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}
