package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// LoRAStackJSON persists a job's ordered (lora_name, strength) entries as a
// jsonb array, preserving insertion order unlike JSONBMap.
type LoRAStackJSON []LoRAEntryModel

// LoRAEntryModel is the persisted shape of one LoRA stack entry.
type LoRAEntryModel struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// Value implements driver.Valuer.
func (l LoRAStackJSON) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *LoRAStackJSON) Scan(value interface{}) error {
	if value == nil {
		*l = LoRAStackJSON{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil
	}
	if len(b) == 0 {
		*l = LoRAStackJSON{}
		return nil
	}
	return json.Unmarshal(b, l)
}

// JobModel is the persisted representation of a generation job.
type JobModel struct {
	bun.BaseModel `bun:"table:generation_jobs,alias:gj"`

	ID               int64      `bun:"id,pk,autoincrement" json:"id"`
	OwnerUserID      int64      `bun:"owner_user_id,notnull" json:"owner_user_id"`
	Prompt           string     `bun:"prompt,notnull" json:"prompt"`
	NegativePrompt   string     `bun:"negative_prompt" json:"negative_prompt,omitempty"`
	CheckpointName   string     `bun:"checkpoint_name,notnull" json:"checkpoint_model"`
	LoRAs            LoRAStackJSON `bun:"loras,type:jsonb,default:'[]'" json:"-"`
	Width            int        `bun:"width,notnull" json:"width"`
	Height           int        `bun:"height,notnull" json:"height"`
	BatchSize        int        `bun:"batch_size,notnull,default:1" json:"batch_size"`
	Steps            int        `bun:"steps" json:"steps,omitempty"`
	CFG              float64    `bun:"cfg" json:"cfg,omitempty"`
	Seed             int64      `bun:"seed,notnull" json:"seed"`
	Sampler          string     `bun:"sampler" json:"sampler,omitempty"`
	Scheduler        string     `bun:"scheduler" json:"scheduler,omitempty"`
	Backend          string     `bun:"backend,notnull,default:'primary'" json:"backend" validate:"required,oneof=primary mock"`
	State            string     `bun:"state,notnull,default:'pending'" json:"state" validate:"required,oneof=pending running retrying completed failed cancelled"`
	Retries          int        `bun:"retries,notnull,default:0" json:"retries"`
	ExternalPromptID string     `bun:"external_prompt_id" json:"external_prompt_id,omitempty"`
	ErrorMessage     string     `bun:"error_message" json:"error,omitempty"`
	ContentID        *int64     `bun:"content_id" json:"content_id,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	StartedAt        *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// BeforeInsert stamps created/updated timestamps, matching the donor
// ExecutionModel hook convention.
func (j *JobModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.LoRAs == nil {
		j.LoRAs = LoRAStackJSON{}
	}
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (j *JobModel) BeforeUpdate(ctx interface{}) error {
	j.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether the persisted state is terminal.
func (j *JobModel) IsTerminal() bool {
	switch j.State {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}
