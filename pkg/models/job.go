package models

import "time"

// JobState is the lifecycle state of a generation job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateRetrying  JobState = "retrying"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether the state admits no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// BackendChoice selects which generation backend a job runs against.
type BackendChoice string

const (
	BackendPrimary BackendChoice = "primary"
	BackendMock    BackendChoice = "mock"
)

// LoRAEntry is one (lora_name, strength) pair in a job's ordered LoRA stack.
type LoRAEntry struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// SamplerParams holds the sampling parameters for a generation job.
type SamplerParams struct {
	Steps     int     `json:"steps,omitempty"`
	CFG       float64 `json:"cfg,omitempty"`
	Seed      int64   `json:"seed"`
	Sampler   string  `json:"sampler,omitempty"`
	Scheduler string  `json:"scheduler,omitempty"`
}

// Job is a unit of generation work.
type Job struct {
	ID              int64         `json:"id"`
	OwnerUserID     int64         `json:"owner_user_id"`
	Prompt          string        `json:"prompt"`
	NegativePrompt  string        `json:"negative_prompt,omitempty"`
	CheckpointName  string        `json:"checkpoint_model"`
	LoRAs           []LoRAEntry   `json:"lora_models,omitempty"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	BatchSize       int           `json:"batch_size"`
	SamplerParams   SamplerParams `json:"sampler_params"`
	Backend         BackendChoice `json:"backend"`
	State           JobState      `json:"state"`
	Retries         int           `json:"retries"`
	ExternalPromptID string       `json:"external_prompt_id,omitempty"`
	ErrorMessage    string        `json:"error,omitempty"`
	ContentID       *int64        `json:"content_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// JobSpec is the validated, not-yet-persisted input to Submit.
type JobSpec struct {
	OwnerUserID    int64         `json:"owner_user_id,omitempty"`
	Prompt         string        `json:"prompt"`
	NegativePrompt string        `json:"negative_prompt,omitempty"`
	CheckpointName string        `json:"checkpoint_model,omitempty"`
	LoRAs          []LoRAEntry   `json:"lora_models,omitempty"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	BatchSize      int           `json:"batch_size,omitempty"`
	SamplerParams  SamplerParams `json:"sampler_params"`
	Backend        BackendChoice `json:"backend,omitempty"`
}

// allowedTransitions is a map from the current state to the set of states
// it may move to.
var allowedTransitions = map[JobState]map[JobState]bool{
	JobStatePending: {
		JobStateRunning:   true,
		JobStateCancelled: true,
	},
	JobStateRunning: {
		JobStateRetrying:  true,
		JobStateCompleted: true,
		JobStateFailed:    true,
		JobStateCancelled: true,
	},
	JobStateRetrying: {
		JobStateRunning:   true,
		JobStateFailed:    true,
		JobStateCancelled: true,
	},
}

// CanTransition reports whether from -> to is an allowed edge in the job
// state machine. Terminal states never admit a transition.
func CanTransition(from, to JobState) bool {
	if from.IsTerminal() {
		return false
	}
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
