package generation

import (
	"context"
	"time"
)

// Provider generates a music clip for a prompt and returns a reference to
// the produced media.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, duration time.Duration) (string, error)
}
