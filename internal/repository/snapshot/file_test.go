package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.json"))

	anchors, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, anchors)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns the same anchors.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "anchors.json")
	repo := NewFileRepository(file)

	want := []telemetry.AnchorLocation{
		{AnchorID: "4818", X: 0.65, Y: 2.49, Z: 2.1},
		{AnchorID: "4819", X: 1, Y: 2, Z: 3},
		{AnchorID: "4820", X: -2, Y: 0, Z: 1.25},
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Overwrite with an empty set.
	require.NoError(t, repo.Save(context.Background(), nil))

	got, err = repo.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = os.Stat(file + ".tmp")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFileRepository_Corrupt reports undecodable files.
func TestFileRepository_Corrupt(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "anchors.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o600))

	_, err := NewFileRepository(file).Load(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(file, []byte(`{"anchors":[{"anchor_id":1}]}`), 0o600))

	_, err = NewFileRepository(file).Load(context.Background())
	require.Error(t, err)
}
