package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The process edges below stand in for real platform integrations: replies
// go to the log, generation mints a local media reference, and on-chain
// verification reports nothing received. Swap them for real clients by
// passing different implementations to app.NewContainer.

type loggingSocialClient struct {
	logger *log.Logger
}

func (c *loggingSocialClient) Reply(ctx context.Context, postID, text string) error {
	c.logger.Printf("reply to %s: %s", postID, text)
	return nil
}

func (c *loggingSocialClient) ReplyWithMedia(ctx context.Context, postID, text, mediaRef string) error {
	c.logger.Printf("reply to %s with media %s: %s", postID, mediaRef, text)
	return nil
}

type loggingGenerationProvider struct {
	logger *log.Logger
}

func (p *loggingGenerationProvider) Name() string { return "local" }

func (p *loggingGenerationProvider) Generate(ctx context.Context, prompt string, duration time.Duration) (string, error) {
	ref := fmt.Sprintf("local://clips/%s.mp4", uuid.NewString())
	p.logger.Printf("generated %s clip %s for prompt %q", duration, ref, prompt)
	return ref, nil
}

type nullChainVerifier struct{}

func (nullChainVerifier) VerifyProof(ctx context.Context, proof, address string, amount decimal.Decimal) (bool, error) {
	return false, nil
}

func (nullChainVerifier) BalanceDelta(ctx context.Context, address string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
