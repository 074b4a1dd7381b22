package render

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/observability"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/storage"
)

type fakeCounter struct {
	count int
	err   error
}

func (f *fakeCounter) PageCount(context.Context, string) (int, error) {
	return f.count, f.err
}

type fakeRenderer struct {
	failPages map[int]bool
	delay     time.Duration

	active  int32
	maxSeen int32
	calls   int32
}

func (f *fakeRenderer) RenderPage(_ context.Context, _ string, page int, outPath string) error {
	atomic.AddInt32(&f.calls, 1)

	cur := atomic.AddInt32(&f.active, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.active, -1)

	if f.failPages[page] {
		return fmt.Errorf("renderer crashed on page %d", page)
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("<svg>page %d</svg>", page)), 0o644)
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("missing object %s", key)
	}
	return data, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func TestOrchestrator_RendersAllPagesInOrder(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator(&fakeCounter{count: 5}, &fakeRenderer{}, store, observability.Nop(), 2)

	out, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	assert.Equal(t, 5, out.PageCount)
	require.Len(t, out.Pages, 5)
	for i, page := range out.Pages {
		assert.Equal(t, i+1, page.PageNumber)
		assert.Equal(t, fmt.Sprintf("mem://pages/user-1/doc-1/page-%d.svg", i+1), page.AssetURL)
	}
}

func TestOrchestrator_BoundsConcurrency(t *testing.T) {
	renderer := &fakeRenderer{delay: 10 * time.Millisecond}
	o := NewOrchestrator(&fakeCounter{count: 9}, renderer, newMemStore(), observability.Nop(), 3)

	_, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	assert.Equal(t, int32(9), renderer.calls)
	assert.LessOrEqual(t, renderer.maxSeen, int32(3))
}

func TestOrchestrator_SkipsFailedPages(t *testing.T) {
	renderer := &fakeRenderer{failPages: map[int]bool{2: true}}
	o := NewOrchestrator(&fakeCounter{count: 3}, renderer, newMemStore(), observability.Nop(), 2)

	out, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	assert.Equal(t, 3, out.PageCount)
	require.Len(t, out.Pages, 2)
	assert.Equal(t, 1, out.Pages[0].PageNumber)
	assert.Equal(t, 3, out.Pages[1].PageNumber)
}

func TestOrchestrator_ThumbnailFromFirstRenderedPage(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{failPages: map[int]bool{1: true}}
	o := NewOrchestrator(&fakeCounter{count: 3}, renderer, store, observability.Nop(), 2)

	out, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	assert.Equal(t, "mem://thumbnails/user-1/doc-1.svg", out.ThumbnailURL)
	assert.Equal(t, storage.ThumbnailKindSVG, out.ThumbnailKind)

	// Page 1 failed, so the thumbnail carries page 2's content.
	thumb, err := store.Get(context.Background(), "thumbnails/user-1/doc-1.svg")
	require.NoError(t, err)
	assert.Equal(t, []byte("<svg>page 2</svg>"), thumb)
}

func TestOrchestrator_ZeroPages(t *testing.T) {
	renderer := &fakeRenderer{failPages: map[int]bool{1: true}}
	o := NewOrchestrator(&fakeCounter{count: 0}, renderer, newMemStore(), observability.Nop(), 2)

	out, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	assert.Equal(t, 0, out.PageCount)
	assert.Empty(t, out.Pages)
	assert.Empty(t, out.ThumbnailURL)
}

func TestOrchestrator_InspectorFailureStillDerivesThumbnail(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{}
	o := NewOrchestrator(&fakeCounter{err: fmt.Errorf("not a pdf")}, renderer, store, observability.Nop(), 2)

	out, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	// No page renders without a count, but the first page is still
	// rendered on its own for the thumbnail.
	assert.Equal(t, 0, out.PageCount)
	assert.Empty(t, out.Pages)
	assert.Equal(t, "mem://thumbnails/user-1/doc-1.svg", out.ThumbnailURL)
	assert.Equal(t, storage.ThumbnailKindSVG, out.ThumbnailKind)
	assert.Equal(t, int32(1), renderer.calls)

	thumb, err := store.Get(context.Background(), "thumbnails/user-1/doc-1.svg")
	require.NoError(t, err)
	assert.Equal(t, []byte("<svg>page 1</svg>"), thumb)
}

func TestOrchestrator_AllPagesFail(t *testing.T) {
	renderer := &fakeRenderer{failPages: map[int]bool{1: true, 2: true}}
	o := NewOrchestrator(&fakeCounter{count: 2}, renderer, newMemStore(), observability.Nop(), 2)

	out, err := o.RenderDocument(context.Background(), "user-1", "doc-1", "/tmp/in.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, out.PageCount)
	assert.Empty(t, out.Pages)
	assert.Empty(t, out.ThumbnailURL)
}

func TestParsePageCount(t *testing.T) {
	n, err := parsePageCount(" 12\n")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parsePageCount("not a number")
	assert.Error(t, err)

	_, err = parsePageCount("-1")
	assert.Error(t, err)
}

func TestDefaultWidth(t *testing.T) {
	w := defaultWidth()
	assert.GreaterOrEqual(t, w, 2)
	assert.LessOrEqual(t, w, 8)
}
