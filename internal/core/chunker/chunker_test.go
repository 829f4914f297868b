package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// runeTokenizer maps every rune to one token, which makes token window
// boundaries exact and easy to assert against.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) ([]int, error) {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens, nil
}

func (runeTokenizer) Decode(tokens []int) (string, error) {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes), nil
}

type brokenTokenizer struct{}

func (brokenTokenizer) Encode(string) ([]int, error) { return nil, errors.New("encoding data missing") }
func (brokenTokenizer) Decode([]int) (string, error) { return "", errors.New("encoding data missing") }

func expectedWindows(n, size, overlap int) int {
	if n <= size {
		return 1
	}
	step := size - overlap
	return 1 + (n-size+step-1)/step
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(Config{Size: 10, Overlap: 2}, runeTokenizer{}, zap.NewNop())

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkTokenwiseWindows(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		size    int
		overlap int
	}{
		{"single window", 5, 10, 2},
		{"exact fit", 10, 10, 2},
		{"two windows", 15, 10, 2},
		{"many windows", 100, 10, 3},
		{"spec scenario", 5000, 800, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.n)
			c := New(Config{Size: tt.size, Overlap: tt.overlap}, runeTokenizer{}, zap.NewNop())

			chunks := c.Chunk(text)
			require.Len(t, chunks, expectedWindows(tt.n, tt.size, tt.overlap))

			for _, ch := range chunks {
				assert.NotEmpty(t, ch)
				assert.LessOrEqual(t, len([]rune(ch)), tt.size)
			}
		})
	}
}

func TestChunkTokenwiseOverlap(t *testing.T) {
	// Distinct runes so window contents identify their positions.
	runes := make([]rune, 30)
	for i := range runes {
		runes[i] = rune('A' + i)
	}
	text := string(runes)

	c := New(Config{Size: 10, Overlap: 4}, runeTokenizer{}, zap.NewNop())
	chunks := c.Chunk(text)
	require.Len(t, chunks, expectedWindows(30, 10, 4))

	// Consecutive windows share exactly the overlap region.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		assert.Equal(t, string(prev[len(prev)-4:]), string(cur[:4]))
	}

	// Dropping each window's leading overlap reconstructs the input.
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, ch := range chunks[1:] {
		b.WriteString(string([]rune(ch)[4:]))
	}
	assert.Equal(t, text, b.String())
}

func TestChunkCharwiseFallback(t *testing.T) {
	// size=5 tokens scales to 20 chars, overlap=1 token to 4 chars.
	c := New(Config{Size: 5, Overlap: 1}, brokenTokenizer{}, zap.NewNop())

	text := strings.Repeat("x", 50)
	chunks := c.Chunk(text)
	require.Len(t, chunks, expectedWindows(50, 20, 4))
	for _, ch := range chunks {
		assert.NotEmpty(t, ch)
		assert.LessOrEqual(t, len(ch), 20)
	}
}

func TestChunkCharwiseTrimsWindows(t *testing.T) {
	c := New(Config{Size: 2, Overlap: 0}, nil, zap.NewNop())

	// Middle window is all whitespace and must be dropped.
	text := "abcdefgh" + strings.Repeat(" ", 8) + "ijklmnop"
	chunks := c.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "abcdefgh", chunks[0])
	assert.Equal(t, "ijklmnop", chunks[1])
}

func TestChunkNonEmptyForNonEmptyInput(t *testing.T) {
	for _, tok := range []Tokenizer{nil, runeTokenizer{}, brokenTokenizer{}} {
		c := New(Config{Size: 100, Overlap: 10}, tok, zap.NewNop())
		assert.NotEmpty(t, c.Chunk("Hello world. This is a test."))
	}
}

func TestNewClampsOverlap(t *testing.T) {
	c := New(Config{Size: 10, Overlap: 25}, runeTokenizer{}, zap.NewNop())

	// Must terminate and cover the input even with a degenerate config.
	chunks := c.Chunk(strings.Repeat("z", 40))
	assert.NotEmpty(t, chunks)
}
