package generation

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Fallback tries providers in order and returns the first successful
// result. Provider failures are logged and the next provider is tried.
type Fallback struct {
	providers []Provider
	logger    *log.Logger
}

func NewFallback(logger *log.Logger, providers ...Provider) *Fallback {
	return &Fallback{providers: providers, logger: logger}
}

func (f *Fallback) Name() string {
	return "fallback"
}

func (f *Fallback) Generate(ctx context.Context, prompt string, duration time.Duration) (string, error) {
	if len(f.providers) == 0 {
		return "", fmt.Errorf("no generation providers configured")
	}

	var lastErr error
	for _, p := range f.providers {
		mediaRef, err := p.Generate(ctx, prompt, duration)
		if err == nil {
			return mediaRef, nil
		}
		f.logger.Printf("provider %s failed, trying next: %v", p.Name(), err)
		lastErr = err
	}
	return "", fmt.Errorf("all %d providers failed: %w", len(f.providers), lastErr)
}
