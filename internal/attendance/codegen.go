package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"classroll/internal/metrics"
)

// CodeAlphabet leaves out characters that are easy to misread (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 10
)

// CodeGenerator draws short codes and reserves them through a caller-supplied function.
type CodeGenerator struct {
	Length      int
	MaxAttempts int
	// draw returns one candidate; replaced in tests.
	draw func(n int) (string, error)
}

// NewCodeGenerator returns a generator; non-positive arguments select the defaults.
func NewCodeGenerator(length, maxAttempts int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &CodeGenerator{Length: length, MaxAttempts: maxAttempts, draw: randomCode}
}

// Generate draws candidates until reserve accepts one. reserve must be atomic and report
// ErrCodeTaken on collision; other errors abort generation.
func (g *CodeGenerator) Generate(ctx context.Context, reserve func(ctx context.Context, code string) error) (string, error) {
	for attempt := 1; attempt <= g.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.draw(g.Length)
		if err != nil {
			return "", fmt.Errorf("draw code: %w", err)
		}
		err = reserve(ctx, code)
		if err == nil {
			metrics.CodeAttempts.Observe(float64(attempt))
			return code, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return "", err
		}
	}
	metrics.CodeAttempts.Observe(float64(g.MaxAttempts))
	return "", fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, g.MaxAttempts)
}

func randomCode(n int) (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = CodeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
