package generation

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     string
	mediaRef string
	err      error
	calls    int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, prompt string, duration time.Duration) (string, error) {
	s.calls++
	return s.mediaRef, s.err
}

func TestFallback_FirstProviderWins(t *testing.T) {
	a := &stubProvider{name: "a", mediaRef: "media-a"}
	b := &stubProvider{name: "b", mediaRef: "media-b"}
	f := NewFallback(log.New(io.Discard, "", 0), a, b)

	ref, err := f.Generate(context.Background(), "lofi beats", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "media-a", ref)
	assert.Equal(t, 0, b.calls, "second provider is not consulted on success")
}

func TestFallback_FallsThroughOnFailure(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("quota exceeded")}
	b := &stubProvider{name: "b", mediaRef: "media-b"}
	f := NewFallback(log.New(io.Discard, "", 0), a, b)

	ref, err := f.Generate(context.Background(), "jazz", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "media-b", ref)
	assert.Equal(t, 1, a.calls)
}

func TestFallback_AllProvidersFail(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b", err: errors.New("also down")}
	f := NewFallback(log.New(io.Discard, "", 0), a, b)

	_, err := f.Generate(context.Background(), "metal", 30*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 providers failed")
	assert.ErrorContains(t, err, "also down")
}

func TestFallback_NoProviders(t *testing.T) {
	f := NewFallback(log.New(io.Discard, "", 0))
	_, err := f.Generate(context.Background(), "anything", time.Second)
	assert.Error(t, err)
}
