package ai

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used by the gpt-4.1 model family.
const DefaultEncoding = "o200k_base"

// TokenCounter converts text into quota units.
//
// The tiktoken encoding is loaded on first use. When it cannot be loaded the
// counter falls back to an estimate of one token per 3.5 characters, which
// errs on the side of over-counting for English prose.
type TokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	logger   *slog.Logger
}

// NewTokenCounter returns a counter backed by the named tiktoken encoding.
// An empty name selects DefaultEncoding.
func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TokenCounter{
		encoding: encoding,
		logger:   slog.Default().With("component", "token-counter"),
	}
}

// NewEstimatingTokenCounter returns a counter that never loads an encoding.
func NewEstimatingTokenCounter() *TokenCounter {
	c := &TokenCounter{logger: slog.Default().With("component", "token-counter")}
	c.once.Do(func() {})
	return c
}

func (c *TokenCounter) load() {
	if c.encoding == "" {
		return
	}
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		c.logger.Warn("tokenizer unavailable, estimating token counts", "encoding", c.encoding, "err", err)
		return
	}
	c.enc = enc
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// Units returns the quota units for a call carrying texts: the total token
// count plus ten percent, rounded up.
func (c *TokenCounter) Units(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return UnitsForTokens(total)
}

// UnitsForTokens applies the ten percent headroom to a raw token count.
func UnitsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return (tokens*11 + 9) / 10
}

func estimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	return (runes*2 + 6) / 7
}
