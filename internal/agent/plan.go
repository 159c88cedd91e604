package agent

import "github.com/kestrelai/agentrt/pkg/models"

// StepType names the kind of work one PlanStep represents.
type StepType string

const (
	StepChat          StepType = "chat"
	StepToolExecution StepType = "tool_execution"
	StepReflection    StepType = "reflection"
	StepCompletion    StepType = "completion"
	StepPlanning      StepType = "planning"
)

// Priority ranks a PlanStep's importance to the executor.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityNormal   Priority = "normal"
	PriorityOptional Priority = "optional"
)

// PlanStep is one unit of work consumed by a single executor call.
type PlanStep struct {
	Type StepType

	// SeedMessage, when set, is appended before the step executes (e.g. a
	// reflector correction).
	SeedMessage *models.Message

	// ExpectedTools names tools the heuristic planner believes this step
	// should exercise.
	ExpectedTools []string

	Priority Priority
}

// Plan is an ordered, FIFO step list recomputed by the planner after every
// step.
type Plan struct {
	Steps         []PlanStep
	Strategy      string
	EstimatedCost int
}

// ProviderUsed identifies which provider+model produced a StepResult.
type ProviderUsed struct {
	ID    string
	Model string
}

// StepResult is what one executor call returns.
type StepResult struct {
	Delta        []models.Message
	IsComplete   bool
	Metrics      RunMetrics
	Error        error
	ProviderUsed *ProviderUsed

	// Attempts records every provider tried during a chat step, in order,
	// including failed racers and circuit-open rejections; a racer that also
	// succeeds after the winner is not recorded (debug.providerHistory).
	Attempts []ProviderAttempt
}

// ReflectionResult is what the Reflector returns for one assistant delta.
type ReflectionResult struct {
	ShouldRetry      bool
	CorrectedMessage *models.Message
	Feedback         string
	Confidence       float64
}
