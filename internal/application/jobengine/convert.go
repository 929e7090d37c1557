package jobengine

import (
	storagemodels "github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/pkg/models"
)

func toDomain(row *storagemodels.JobModel) *models.Job {
	loras := make([]models.LoRAEntry, len(row.LoRAs))
	for i, l := range row.LoRAs {
		loras[i] = models.LoRAEntry{Name: l.Name, Strength: l.Strength}
	}
	return &models.Job{
		ID:             row.ID,
		OwnerUserID:    row.OwnerUserID,
		Prompt:         row.Prompt,
		NegativePrompt: row.NegativePrompt,
		CheckpointName: row.CheckpointName,
		LoRAs:          loras,
		Width:          row.Width,
		Height:         row.Height,
		BatchSize:      row.BatchSize,
		SamplerParams: models.SamplerParams{
			Steps:     row.Steps,
			CFG:       row.CFG,
			Seed:      row.Seed,
			Sampler:   row.Sampler,
			Scheduler: row.Scheduler,
		},
		Backend:          models.BackendChoice(row.Backend),
		State:            models.JobState(row.State),
		Retries:          row.Retries,
		ExternalPromptID: row.ExternalPromptID,
		ErrorMessage:     row.ErrorMessage,
		ContentID:        row.ContentID,
		CreatedAt:        row.CreatedAt,
		StartedAt:        row.StartedAt,
		CompletedAt:      row.CompletedAt,
	}
}

func toStorage(spec models.JobSpec) *storagemodels.JobModel {
	loras := make(storagemodels.LoRAStackJSON, len(spec.LoRAs))
	for i, l := range spec.LoRAs {
		loras[i] = storagemodels.LoRAEntryModel{Name: l.Name, Strength: l.Strength}
	}
	return &storagemodels.JobModel{
		OwnerUserID:    spec.OwnerUserID,
		Prompt:         spec.Prompt,
		NegativePrompt: spec.NegativePrompt,
		CheckpointName: spec.CheckpointName,
		LoRAs:          loras,
		Width:          spec.Width,
		Height:         spec.Height,
		BatchSize:      spec.BatchSize,
		Steps:          spec.SamplerParams.Steps,
		CFG:            spec.SamplerParams.CFG,
		Seed:           spec.SamplerParams.Seed,
		Sampler:        spec.SamplerParams.Sampler,
		Scheduler:      spec.SamplerParams.Scheduler,
		Backend:        string(spec.Backend),
		State:          string(models.JobStatePending),
	}
}
