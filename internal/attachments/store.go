package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirStorer returns a Storer that lays attachments out under dir using
// each metadata's destination key layout. The resulting tree mirrors the
// bucket structure, so it can be synced to object storage as-is.
func DirStorer(dir string, backend *UploadBackend) Storer {
	return func(ctx context.Context, meta Metadata, data []byte) error {
		if strings.Contains(meta.Origin, "..") {
			return fmt.Errorf("refusing origin with path traversal: %s", meta.Origin)
		}
		key := backend.Key(meta.Origin)
		path := filepath.Join(dir, filepath.FromSlash(key))

		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return fmt.Errorf("creating attachment directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil { // #nosec G306 - attachments are public content
			return fmt.Errorf("writing attachment %s: %w", key, err)
		}
		return nil
	}
}
