// Package materializer implements the output materializer: it turns a completed job's backend output descriptors
// into a content row plus tag links.
package materializer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pixforge/genflow/internal/application/backend"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
	"github.com/pixforge/genflow/pkg/apierr"
)

// Materializer turns backend output descriptors into a persisted content row.
type Materializer struct {
	content repository.ContentRepository
	cfg     config.StorageConfig
}

// New creates a Materializer.
func New(content repository.ContentRepository, cfg config.StorageConfig) *Materializer {
	return &Materializer{content: content, cfg: cfg}
}

// Input carries everything the materializer needs for one completed job.
type Input struct {
	JobID         int64
	UserID        int64
	Prompt        string
	Backend       backend.Choice
	BackendClient backend.Client
	Descriptors   []backend.OutputDescriptor
	TagIDs        []string
}

// Materialize resolves the first output descriptor to a readable file,
// organizes or references it per backend policy, and inserts the content
// row plus its tag links.
func (m *Materializer) Materialize(ctx context.Context, in Input) (int64, error) {
	if len(in.Descriptors) == 0 {
		return 0, apierr.OutputMissing("backend reported no output files")
	}

	primary := in.Descriptors[0]
	alternates := in.Descriptors[1:]

	primaryPath, err := m.resolvePath(in, primary)
	if err != nil {
		return 0, apierr.OutputMissing(err.Error())
	}

	altPaths := make(models.JSONBMap, len(alternates))
	for i, d := range alternates {
		p, err := m.resolvePath(in, d)
		if err != nil {
			// Alternates are best-effort; only the primary file is required.
			continue
		}
		altPaths[fmt.Sprintf("alt_%d", i)] = p
	}

	row := &models.ContentModel{
		Source:          "items",
		ContentType:     "image",
		PrimaryFilePath: primaryPath,
		AltPaths:        altPaths,
		Prompt:          in.Prompt,
		CreatorID:       in.UserID,
	}

	contentID, err := m.content.InsertItem(ctx, row)
	if err != nil {
		return 0, fmt.Errorf("failed to insert content row: %w", err)
	}

	if err := m.content.LinkTags(ctx, contentID, "items", in.TagIDs); err != nil {
		return 0, fmt.Errorf("failed to link tags: %w", err)
	}

	return contentID, nil
}

// resolvePath normalizes a backend-relative descriptor and, for the Primary
// backend, copies it into a user/date-partitioned directory; for the Mock
// backend it is referenced in place to keep fixtures intact.
func (m *Materializer) resolvePath(in Input, d backend.OutputDescriptor) (string, error) {
	src, err := safeJoin(in.BackendClient.OutputDir(), d.Subfolder, d.Filename)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("output file not readable: %w", err)
	}

	if in.Backend == backend.ChoiceMock {
		return src, nil
	}

	now := time.Now().UTC()
	destDir := filepath.Join(m.cfg.BaseDir, "generations",
		fmt.Sprintf("%d", in.UserID),
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(d.Filename))
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("failed to copy output file: %w", err)
	}
	return dest, nil
}

// safeJoin joins base/subfolder/filename and rejects any result that
// normalizes outside of base, guarding against ".." traversal in filenames
// the backend reports.
func safeJoin(base, subfolder, filename string) (string, error) {
	joined := filepath.Join(base, subfolder, filename)
	cleanBase := filepath.Clean(base)
	cleanJoined := filepath.Clean(joined)
	if cleanJoined != cleanBase && !strings.HasPrefix(cleanJoined, cleanBase+string(os.PathSeparator)) {
		return "", fmt.Errorf("output path escapes backend output directory: %q", filename)
	}
	return cleanJoined, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
