package attachments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend counts Preprocess calls to verify memoization.
type countingBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *countingBackend) Preprocess(origin string) Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return Metadata{Origin: origin, Destination: "dest:" + origin}
}

func TestRegistryMemoizesByOrigin(t *testing.T) {
	backend := &countingBackend{}
	r := NewRegistry(backend)

	first := r.Register("/uploads/h/a.png")
	second := r.Register("/uploads/h/a.png")

	assert.Equal(t, first, second, "same origin must yield identical metadata")
	assert.Equal(t, 1, backend.calls, "backend must be consulted once per origin")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDrainOrder(t *testing.T) {
	r := NewRegistry(&countingBackend{})

	r.Register("/uploads/1/a.png")
	r.Register("/uploads/2/b.png")
	r.Register("/uploads/1/a.png") // duplicate, must not reorder
	r.Register("/uploads/3/c.png")

	drained := r.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "/uploads/1/a.png", drained[0].Origin)
	assert.Equal(t, "/uploads/2/b.png", drained[1].Origin)
	assert.Equal(t, "/uploads/3/c.png", drained[2].Origin)
}

// TestRegistryConcurrentRegister verifies the insert-if-absent section
// holds up under parallel registration of the same origin.
func TestRegistryConcurrentRegister(t *testing.T) {
	backend := &countingBackend{}
	r := NewRegistry(backend)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("/uploads/h/shared.png")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, backend.calls, "exactly one registration must compute metadata")
}

func TestPassthroughBackend(t *testing.T) {
	b := &PassthroughBackend{
		SourceHost:  "https://gitlab.example.com/",
		ProjectPath: "group/project",
	}

	meta := b.Preprocess("/uploads/0a1b/shot.png")
	assert.Equal(t, "https://gitlab.example.com/group/project/uploads/0a1b/shot.png", meta.Destination)
	assert.Equal(t, "image/png", meta.MimeType)
}

func TestUploadBackendKey(t *testing.T) {
	b := &UploadBackend{BaseURL: "https://bucket.example.com", Prefix: "group/project"}

	key := b.Key("/uploads/0a1b/shot.png")
	assert.True(t, strings.HasPrefix(key, "group/project/"), "key %q must carry the prefix", key)
	assert.True(t, strings.HasSuffix(key, "/shot.png"), "key %q must preserve the basename", key)

	// Content addressing: same origin, same key; different origin,
	// different key even with the same basename.
	assert.Equal(t, key, b.Key("/uploads/0a1b/shot.png"))
	assert.NotEqual(t, key, b.Key("/uploads/ffff/shot.png"))

	meta := b.Preprocess("/uploads/0a1b/shot.png")
	assert.Equal(t, "https://bucket.example.com/"+key, meta.Destination)
}

func TestUploadBackendNoPrefix(t *testing.T) {
	b := &UploadBackend{BaseURL: "https://bucket.example.com"}
	key := b.Key("/uploads/0a1b/shot.png")
	assert.False(t, strings.HasPrefix(key, "/"), "key %q must not start with a slash", key)
	assert.True(t, strings.HasSuffix(key, "/shot.png"))
}

func TestTransfer(t *testing.T) {
	items := []Metadata{
		{Origin: "/uploads/1/a.png", Destination: "d/a"},
		{Origin: "/uploads/2/b.png", Destination: "d/b"},
		{Origin: "/uploads/3/missing.png", Destination: "d/c"},
	}

	var mu sync.Mutex
	stored := map[string]int{}

	fetch := func(ctx context.Context, origin string) ([]byte, error) {
		if strings.Contains(origin, "missing") {
			return nil, fmt.Errorf("404")
		}
		return []byte("0123456789"), nil
	}
	store := func(ctx context.Context, meta Metadata, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		stored[meta.Origin] = len(data)
		return nil
	}

	stats, err := Transfer(context.Background(), items, fetch, store, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Transferred)
	assert.Equal(t, 1, stats.Failed, "a missing attachment is counted, not fatal")
	assert.Equal(t, int64(20), stats.Bytes)
	assert.Len(t, stored, 2)
}

func TestDirStorer(t *testing.T) {
	dir := t.TempDir()
	backend := &UploadBackend{BaseURL: "https://bucket.example.com"}
	store := DirStorer(dir, backend)

	meta := backend.Preprocess("/uploads/0a1b/shot.png")
	require.NoError(t, store(context.Background(), meta, []byte("png bytes")))

	err := store(context.Background(), Metadata{Origin: "/uploads/../etc/passwd"}, []byte("nope"))
	assert.Error(t, err, "path traversal origins must be refused")
}
