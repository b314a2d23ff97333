package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mediagraph/internal/cachestore"
	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/hasher"
	"github.com/vk/mediagraph/internal/inmemorycache"
	"github.com/vk/mediagraph/internal/transform"
	"github.com/vk/mediagraph/internal/workerpool"
)

func testDeps(t *testing.T, ops *transform.Registry) *Deps {
	t.Helper()
	deps := &Deps{
		Hasher: hasher.NewSHA256(),
		Cache:  inmemorycache.New(),
	}
	if ops != nil {
		pool := workerpool.New(context.Background(), 2, ops)
		t.Cleanup(pool.Terminate)
		deps.Pool = pool
	}
	return deps
}

// countingTextOps registers the uppercase transform under its usual name
// with an invocation counter, to prove cache hits skip recomputation.
func countingTextOps(t *testing.T, calls *atomic.Int32) *transform.Registry {
	t.Helper()
	r := transform.NewRegistry()
	require.NoError(t, r.Register(transform.OpTextUppercase, func(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
		calls.Add(1)
		return transform.TextUppercase(ctx, payload, params)
	}))
	return r
}

func textResult(s string) *graph.Result {
	return &graph.Result{Items: []graph.Item{{Kind: graph.KindText, Text: s}}}
}

func textRequest(node *graph.Node, upstream string) Request {
	return Request{Node: node, Inputs: map[string]*graph.Result{"input": textResult(upstream)}}
}

func TestIdempotenceSecondCallHitsCache(t *testing.T) {
	var calls atomic.Int32
	ops := countingTextOps(t, &calls)
	deps := testDeps(t, nil)
	proc, err := NewText(transform.OpTextUppercase, ops)
	require.NoError(t, err)

	node := &graph.Node{ID: "n1", Type: transform.OpTextUppercase, Title: "Upper", Config: map[string]any{}}
	ctx := context.Background()

	first := proc.Process(ctx, deps, textRequest(node, "hello"))
	require.True(t, first.Success, first.Error)
	assert.Equal(t, "HELLO", first.NewResult.First().Text)
	assert.Equal(t, int32(1), calls.Load())

	// Committed result applied back, as the editor store would.
	node.Result = first.NewResult

	second := proc.Process(ctx, deps, textRequest(node, "hello"))
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "HELLO", second.NewResult.First().Text)
	assert.Equal(t, int32(1), calls.Load(), "second call must be a cache hit")
}

func TestConfigChangeMissesCache(t *testing.T) {
	ops := transform.Default()
	deps := testDeps(t, nil)
	proc, err := NewText(transform.OpTextTemplate, ops)
	require.NoError(t, err)
	ctx := context.Background()

	node := &graph.Node{ID: "n1", Type: transform.OpTextTemplate, Config: map[string]any{"template": "a {input}"}}
	first := proc.Process(ctx, deps, textRequest(node, "x"))
	require.True(t, first.Success, first.Error)
	assert.Equal(t, "a x", first.NewResult.First().Text)
	node.Result = first.NewResult

	node.Config = map[string]any{"template": "b {input}"}
	second := proc.Process(ctx, deps, textRequest(node, "x"))
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "b x", second.NewResult.First().Text)
}

func TestCacheHitTouchesAgeAndFiresCallback(t *testing.T) {
	var calls atomic.Int32
	ops := countingTextOps(t, &calls)
	deps := testDeps(t, nil)
	var hits []string
	deps.OnCacheHit = func(nodeID string, entry *cachestore.Entry) {
		hits = append(hits, nodeID)
	}
	proc, err := NewText(transform.OpTextUppercase, ops)
	require.NoError(t, err)
	ctx := context.Background()

	node := &graph.Node{ID: "n1", Type: transform.OpTextUppercase, Config: map[string]any{}}
	outcome := proc.Process(ctx, deps, textRequest(node, "hi"))
	require.True(t, outcome.Success, outcome.Error)
	node.Result = outcome.NewResult

	// Backdate the entry so the touch is observable.
	entry, err := deps.Cache.GetForNode(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	entry.Age = 1
	require.NoError(t, deps.Cache.Put(ctx, *entry))

	outcome = proc.Process(ctx, deps, textRequest(node, "hi"))
	require.True(t, outcome.Success, outcome.Error)
	assert.Equal(t, []string{"n1"}, hits)

	touched, err := deps.Cache.GetForNode(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, touched)
	assert.Greater(t, touched.Age, int64(1))
}

func TestMissingInputClearsStaleCache(t *testing.T) {
	deps := testDeps(t, nil)
	proc, err := NewText(transform.OpTextUppercase, transform.Default())
	require.NoError(t, err)
	ctx := context.Background()

	// Stale entry from before the upstream edge was removed.
	require.NoError(t, deps.Cache.Put(ctx, cachestore.Entry{ID: "n1", Hash: "c", InputHash: "h", Result: textResult("old")}))

	node := &graph.Node{ID: "n1", Type: transform.OpTextUppercase, Config: map[string]any{}}
	outcome := proc.Process(ctx, deps, Request{Node: node, Inputs: nil})
	require.False(t, outcome.Success)
	assert.Equal(t, "no input", outcome.Error)

	entry, err := deps.Cache.GetForNode(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, entry, "stale entry must not survive the broken connection")
}

func TestCancelledContextFailsFast(t *testing.T) {
	var calls atomic.Int32
	ops := countingTextOps(t, &calls)
	deps := testDeps(t, nil)
	proc, err := NewText(transform.OpTextUppercase, ops)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	node := &graph.Node{ID: "n1", Type: transform.OpTextUppercase, Config: map[string]any{}}
	outcome := proc.Process(ctx, deps, textRequest(node, "hi"))
	require.False(t, outcome.Success)
	assert.Equal(t, int32(0), calls.Load(), "no work after cancellation")
}

func TestInlineEditedResultInvalidatesChainedKey(t *testing.T) {
	var calls atomic.Int32
	ops := countingTextOps(t, &calls)
	deps := testDeps(t, nil)
	proc, err := NewText(transform.OpTextUppercase, ops)
	require.NoError(t, err)
	ctx := context.Background()

	node := &graph.Node{ID: "n1", Type: transform.OpTextUppercase, Config: map[string]any{}}
	outcome := proc.Process(ctx, deps, textRequest(node, "hi"))
	require.True(t, outcome.Success, outcome.Error)
	require.Equal(t, int32(1), calls.Load())

	// User edits the committed text inline; same upstream, same config.
	node.Result = textResult("edited by hand")

	outcome = proc.Process(ctx, deps, textRequest(node, "hi"))
	require.True(t, outcome.Success, outcome.Error)
	assert.Equal(t, int32(2), calls.Load(), "drifted result must force a recompute")
}

func TestTransformErrorBecomesFailureOutcome(t *testing.T) {
	deps := testDeps(t, nil)
	proc, err := NewText(transform.OpTextTemplate, transform.Default())
	require.NoError(t, err)

	// template parameter missing
	node := &graph.Node{ID: "n1", Type: transform.OpTextTemplate, Config: map[string]any{}}
	outcome := proc.Process(context.Background(), deps, textRequest(node, "x"))
	require.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "template")

	entry, err := deps.Cache.GetForNode(context.Background(), "n1")
	require.NoError(t, err)
	assert.Nil(t, entry, "failed compute must leave the cache untouched")
}

func TestSourceProcessor(t *testing.T) {
	deps := testDeps(t, nil)
	proc := NewSource()
	ctx := context.Background()

	t.Run("text config", func(t *testing.T) {
		node := &graph.Node{ID: "s1", Type: TypeSource, Config: map[string]any{"text": "prompt"}}
		outcome := proc.Process(ctx, deps, Request{Node: node})
		require.True(t, outcome.Success, outcome.Error)
		assert.Equal(t, "prompt", outcome.NewResult.First().Text)
	})

	t.Run("file config", func(t *testing.T) {
		node := &graph.Node{ID: "s2", Type: TypeSource, Config: map[string]any{
			"file": map[string]any{"id": "f-1", "name": "cat.png"},
			"data": "data:image/png;base64,AAAA",
		}}
		outcome := proc.Process(ctx, deps, Request{Node: node})
		require.True(t, outcome.Success, outcome.Error)
		item := outcome.NewResult.First()
		require.NotNil(t, item.File)
		assert.Equal(t, "f-1", item.File.ID)
	})

	t.Run("empty config fails", func(t *testing.T) {
		node := &graph.Node{ID: "s3", Type: TypeSource, Config: map[string]any{}}
		outcome := proc.Process(ctx, deps, Request{Node: node})
		assert.False(t, outcome.Success)
	})
}

func testImageDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return encodeDataURL("image/png", buf.Bytes())
}

func TestImageResizeScenario(t *testing.T) {
	var poolCalls atomic.Int32
	ops := transform.NewRegistry()
	require.NoError(t, ops.Register(transform.OpImageResize, func(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
		poolCalls.Add(1)
		return transform.ImageResize(ctx, payload, params)
	}))
	deps := testDeps(t, ops)
	proc := NewImage(transform.OpImageResize)
	ctx := context.Background()

	upstream := &graph.Result{Items: []graph.Item{{Kind: graph.KindImage, Data: testImageDataURL(t, 20, 20)}}}
	node := &graph.Node{ID: "r1", Type: transform.OpImageResize, Config: map[string]any{"width": float64(100)}}
	req := Request{Node: node, Inputs: map[string]*graph.Result{"image": upstream}}

	// First process: miss, compute, store.
	first := proc.Process(ctx, deps, req)
	require.True(t, first.Success, first.Error)
	mime, data, err := decodeDataURL(first.NewResult.First().Data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	require.Equal(t, int32(1), poolCalls.Load())

	// Second process with unchanged config and upstream: pure cache hit.
	second := proc.Process(ctx, deps, req)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, int32(1), poolCalls.Load(), "no recompute on hit")
}

func TestImageRejectsNonImageUpstream(t *testing.T) {
	deps := testDeps(t, transform.Default())
	proc := NewImage(transform.OpImageBlur)

	node := &graph.Node{ID: "b1", Type: transform.OpImageBlur, Config: map[string]any{"size": float64(2)}}
	outcome := proc.Process(context.Background(), deps, textRequest(node, "not an image"))
	require.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "not an image")
}

func TestDataURLRoundTrip(t *testing.T) {
	mime, data, err := decodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", encodeDataURL(mime, data))

	_, _, err = decodeDataURL("not-a-data-url")
	require.Error(t, err)
	_, _, err = decodeDataURL("data:image/png,plain")
	require.Error(t, err)
}
