package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/wire"
)

// Repository defines persistence operations for the anchor set.
type Repository interface {
	Load(ctx context.Context) ([]telemetry.AnchorLocation, error)
	Save(ctx context.Context, anchors []telemetry.AnchorLocation) error
}

// FileRepository keeps the anchor set in a JSON file.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// mu serializes access to the file.
	mu sync.Mutex
}

// ErrNotFound is returned when the snapshot file does not exist yet.
var ErrNotFound = errors.New("snapshot not found")

const filePermissions = 0o600

// NewFileRepository creates a repository that reads and writes JSON at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the anchor set from disk.
func (r *FileRepository) Load(_ context.Context) ([]telemetry.AnchorLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var doc structpb.Struct
	if err = protojson.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}

	anchors, err := wire.AnchorsFromDocument(&doc)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}

	return anchors, nil
}

// Save writes the anchor set through a temporary file and a rename, so a
// crash leaves either the old or the new snapshot.
func (r *FileRepository) Save(_ context.Context, anchors []telemetry.AnchorLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(wire.AnchorsDocument(anchors))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, filePermissions); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	return nil
}
