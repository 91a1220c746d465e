package qrcache

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingEncoder(calls *atomic.Int64) Encoder {
	return func(value string, opts Options) ([]byte, error) {
		calls.Add(1)
		return []byte(value), nil
	}
}

func TestGetOrCreate_HitIsIdentical(t *testing.T) {
	var calls atomic.Int64
	c := NewWithEncoder(countingEncoder(&calls))
	opts := Options{Size: 300, BgColor: "#fff", FgColor: "#000000", Level: "m"}

	first, err := c.GetOrCreate("abc123", opts)
	require.NoError(t, err)
	second, err := c.GetOrCreate("abc123", opts)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, Stats{Entries: 1, Hits: 1, Misses: 1}, c.Stats())
}

func TestGetOrCreate_EquivalentOptionsShareEntry(t *testing.T) {
	var calls atomic.Int64
	c := NewWithEncoder(countingEncoder(&calls))

	a, err := c.GetOrCreate("v", Options{Size: 299.6, BgColor: "#FFFFFF", FgColor: "", Level: ""})
	require.NoError(t, err)
	b, err := c.GetOrCreate("v", Options{Size: 300.2, BgColor: "fff", FgColor: "#000", Level: "M"})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetOrCreate_DifferentSizeMisses(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
	}{
		{"in range", 300, 400},
		{"both below the encode minimum", 20, 40},
		{"both above the encode maximum", 3000, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			c := NewWithEncoder(countingEncoder(&calls))

			a, err := c.GetOrCreate("abc123", Options{Size: tt.a})
			require.NoError(t, err)
			b, err := c.GetOrCreate("abc123", Options{Size: tt.b})
			require.NoError(t, err)

			assert.NotSame(t, a, b)
			assert.NotEqual(t, a.Key, b.Key)
			assert.EqualValues(t, 2, calls.Load())
			assert.Equal(t, Stats{Entries: 2, Misses: 2}, c.Stats())
		})
	}
}

func TestGetOrCreate_EncodedSizeIsClamped(t *testing.T) {
	c := New()
	small, err := c.GetOrCreate("abc123", Options{Size: 20})
	require.NoError(t, err)
	assert.Equal(t, minSize, small.Size)

	img, err := png.Decode(bytes.NewReader(small.PNG))
	require.NoError(t, err)
	assert.Equal(t, minSize, img.Bounds().Dx())
}

func TestGetOrCreate_Errors(t *testing.T) {
	c := NewWithEncoder(func(string, Options) ([]byte, error) { return nil, errors.New("boom") })

	_, err := c.GetOrCreate("   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = c.GetOrCreate("x", Options{})
	assert.ErrorContains(t, err, "boom")
	assert.Zero(t, c.Stats().Entries)
	assert.EqualValues(t, 2, c.Stats().Errors)
}

func TestGetOrCreate_ConcurrentSingleEncode(t *testing.T) {
	var calls atomic.Int64
	c := NewWithEncoder(countingEncoder(&calls))

	var wg sync.WaitGroup
	results := make([]*Image, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			img, err := c.GetOrCreate("same", Options{Size: 200})
			assert.NoError(t, err)
			results[i] = img
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, img := range results {
		assert.Same(t, results[0], img)
	}
}

func TestPrewarm(t *testing.T) {
	var calls atomic.Int64
	c := NewWithEncoder(countingEncoder(&calls))

	requests := []Request{
		{Value: "a", Options: Options{Size: 200}},
		{Value: "b", Options: Options{Size: 200}},
		{Value: "a", Options: Options{Size: 200}},
		{Value: "", Options: Options{Size: 200}},
		{Value: "a", Options: Options{Size: 300}},
	}
	require.NoError(t, c.Prewarm(context.Background(), requests, 2))
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 3, c.Stats().Entries)

	c.Clear()
	assert.Zero(t, c.Stats().Entries)
}

func TestPrewarm_Canceled(t *testing.T) {
	c := NewWithEncoder(func(v string, _ Options) ([]byte, error) { return []byte(v), nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Prewarm(ctx, []Request{{Value: "a"}, {Value: "b"}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG("https://example.com/r/abc123", Options{Size: 256, FgColor: "#123456", Level: "H", IncludeMargin: true})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestKey_Canonical(t *testing.T) {
	assert.Equal(t,
		`{"value":"v","size":300,"bgColor":"#ffffff","fgColor":"#000000","level":"M","margin":false}`,
		Key("v", Options{Size: 300}))
	assert.NotEqual(t, Key("v", Options{Size: 300}), Key("v", Options{Size: 300, IncludeMargin: true}))
	// sizes round to whole pixels but are not clamped
	assert.Equal(t, Key("v", Options{Size: 63.6}), Key("v", Options{Size: 64}))
	assert.NotEqual(t, Key("v", Options{Size: 1}), Key("v", Options{Size: 64}))
}
