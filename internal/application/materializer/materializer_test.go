package materializer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixforge/genflow/internal/application/backend"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/storage/models"
)

type fakeContentRepository struct {
	rows    map[int64]*models.ContentModel
	links   map[int64][]string
	next    int64
	failure error
}

func newFakeContentRepository() *fakeContentRepository {
	return &fakeContentRepository{rows: make(map[int64]*models.ContentModel), links: make(map[int64][]string)}
}

func (f *fakeContentRepository) InsertItem(ctx context.Context, row *models.ContentModel) (int64, error) {
	if f.failure != nil {
		return 0, f.failure
	}
	f.next++
	row.ID = f.next
	f.rows[row.ID] = row
	return row.ID, nil
}

func (f *fakeContentRepository) LinkTags(ctx context.Context, contentID int64, source string, tagIDs []string) error {
	f.links[contentID] = tagIDs
	return nil
}

func (f *fakeContentRepository) FindByID(ctx context.Context, id int64, source string) (*models.ContentModel, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return row, nil
}

func (f *fakeContentRepository) Gallery(ctx context.Context, q repository.GalleryQuery) (*repository.GalleryPage, error) {
	return &repository.GalleryPage{}, nil
}

func (f *fakeContentRepository) ResolveTagIDs(ctx context.Context, names []string) ([]string, error) {
	return names, nil
}

var _ repository.ContentRepository = (*fakeContentRepository)(nil)

func TestMaterializer_Materialize_NoDescriptors(t *testing.T) {
	m := New(newFakeContentRepository(), config.StorageConfig{BaseDir: t.TempDir()})
	_, err := m.Materialize(context.Background(), Input{})
	if err == nil {
		t.Fatalf("Materialize with no descriptors should have failed")
	}
}

func TestMaterializer_Materialize_MockBackendReferencesInPlace(t *testing.T) {
	outputDir := t.TempDir()
	fixture := filepath.Join(outputDir, "fixture.png")
	if err := os.WriteFile(fixture, []byte("fake-png"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	content := newFakeContentRepository()
	m := New(content, config.StorageConfig{BaseDir: t.TempDir()})

	client := backend.NewMockClient(backend.Entry{OutputDir: outputDir})
	contentID, err := m.Materialize(context.Background(), Input{
		JobID:         1,
		UserID:        9,
		Prompt:        "a fox in the snow",
		Backend:       backend.ChoiceMock,
		BackendClient: client,
		Descriptors: []backend.OutputDescriptor{
			{Filename: "fixture.png", Type: "output"},
		},
		TagIDs: []string{"tag-1"},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	row := content.rows[contentID]
	if row == nil {
		t.Fatalf("no content row inserted for id %d", contentID)
	}
	if row.PrimaryFilePath != fixture {
		t.Errorf("PrimaryFilePath = %q, want the fixture referenced in place (%q)", row.PrimaryFilePath, fixture)
	}
	if row.CreatorID != 9 {
		t.Errorf("CreatorID = %d, want 9", row.CreatorID)
	}
	if len(content.links[contentID]) != 1 {
		t.Errorf("got %d linked tags, want 1", len(content.links[contentID]))
	}
}

func TestMaterializer_Materialize_PrimaryBackendCopiesFile(t *testing.T) {
	outputDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outputDir, "out.png"), []byte("render"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	content := newFakeContentRepository()
	baseDir := t.TempDir()
	m := New(content, config.StorageConfig{BaseDir: baseDir})
	client := backend.NewHTTPClient(backend.Entry{OutputDir: outputDir})

	contentID, err := m.Materialize(context.Background(), Input{
		UserID:        3,
		Backend:       backend.ChoicePrimary,
		BackendClient: client,
		Descriptors:   []backend.OutputDescriptor{{Filename: "out.png", Type: "output"}},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	row := content.rows[contentID]
	if row.PrimaryFilePath == filepath.Join(outputDir, "out.png") {
		t.Errorf("PrimaryFilePath points at the source fixture, want a copy under the base dir")
	}
	if _, err := os.Stat(row.PrimaryFilePath); err != nil {
		t.Errorf("copied output file not readable: %v", err)
	}
}

func TestMaterializer_Materialize_DescriptorEscapingOutputDirFails(t *testing.T) {
	outputDir := t.TempDir()
	content := newFakeContentRepository()
	m := New(content, config.StorageConfig{BaseDir: t.TempDir()})
	client := backend.NewMockClient(backend.Entry{OutputDir: outputDir})

	_, err := m.Materialize(context.Background(), Input{
		Backend:       backend.ChoiceMock,
		BackendClient: client,
		Descriptors:   []backend.OutputDescriptor{{Filename: "../../etc/passwd", Type: "output"}},
	})
	if err == nil {
		t.Fatalf("Materialize with a path-traversing filename should have failed")
	}
}
