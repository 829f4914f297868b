package chunker

import (
	"strings"

	"go.uber.org/zap"
)

// charsPerToken is the empirical scale applied to token-denominated sizes
// when falling back to character-wise chunking.
const charsPerToken = 4

// Tokenizer encodes text to token IDs and back. The chunker treats any
// error from either direction as "tokenizer unavailable" and falls back
// to character offsets.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
}

// Config tunes the sliding window, both values in tokens.
type Config struct {
	Size    int
	Overlap int
}

// Chunker splits extracted text into overlapping segments. Output is
// deterministic for identical input and config, and Chunk never fails:
// a broken tokenizer degrades to character-wise splitting.
type Chunker struct {
	cfg    Config
	tok    Tokenizer
	logger *zap.Logger
}

// New builds a Chunker. tok may be nil, in which case only the
// character-wise strategy is used. Overlap is clamped below Size so the
// window always advances.
func New(cfg Config, tok Tokenizer, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Size <= 0 {
		cfg.Size = 800
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.Size {
		logger.Warn("chunk overlap >= chunk size, clamping",
			zap.Int("size", cfg.Size),
			zap.Int("overlap", cfg.Overlap))
		cfg.Overlap = cfg.Size - 1
	}
	return &Chunker{cfg: cfg, tok: tok, logger: logger}
}

// Chunk returns the ordered sequence of non-empty segments for text.
// Whitespace-only input yields nil.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if c.tok != nil {
		chunks, err := c.chunkTokenwise(text)
		if err == nil {
			return chunks
		}
		c.logger.Warn("token-wise chunking failed, falling back to character-wise",
			zap.Error(err))
	}

	return c.chunkCharwise(text)
}

func (c *Chunker) chunkTokenwise(text string) ([]string, error) {
	tokens, err := c.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	n := len(tokens)
	if n == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.cfg.Size
		if end > n {
			end = n
		}
		piece, err := c.tok.Decode(tokens[start:end])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, piece)
		if end >= n {
			break
		}
		start = end - c.cfg.Overlap
	}
	return chunks, nil
}

func (c *Chunker) chunkCharwise(text string) []string {
	sizeChars := c.cfg.Size * charsPerToken
	overlapChars := c.cfg.Overlap * charsPerToken

	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := start + sizeChars
		if end > n {
			end = n
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= n {
			break
		}
		start = end - overlapChars
	}
	return chunks
}
