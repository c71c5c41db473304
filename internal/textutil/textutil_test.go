package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Run("splits on punctuation and lowercases", func(t *testing.T) {
		assert.Equal(t, []string{"breaking", "markets", "fall", "5"}, Tokenize("Breaking: Markets fall 5%!"))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Tokenize(""))
		assert.Empty(t, Tokenize("  ... !!"))
	})
}

func TestJaccard(t *testing.T) {
	t.Run("identical sets", func(t *testing.T) {
		assert.Equal(t, 1.0, JaccardWords("markets fall today", "markets fall today"))
	})

	t.Run("disjoint sets", func(t *testing.T) {
		assert.Equal(t, 0.0, JaccardWords("markets fall", "cats purr"))
	})

	t.Run("both empty are identical", func(t *testing.T) {
		assert.Equal(t, 1.0, JaccardWords("", ""))
	})

	t.Run("one empty", func(t *testing.T) {
		assert.Equal(t, 0.0, JaccardWords("markets", ""))
	})

	t.Run("partial overlap", func(t *testing.T) {
		// {a,b,c} vs {b,c,d}: 2 shared of 4 total.
		assert.InDelta(t, 0.5, JaccardWords("alpha beta gamma", "beta gamma delta"), 1e-9)
	})
}

func TestExtractKeywords(t *testing.T) {
	t.Run("frequency ranked", func(t *testing.T) {
		text := "election results election votes counted votes election"
		got := ExtractKeywords(text, 3)
		assert.Equal(t, []string{"election", "votes", "results"}, got)
	})

	t.Run("skips stopwords and short words", func(t *testing.T) {
		got := ExtractKeywords("the cat is on a big mat", 10)
		assert.NotContains(t, got, "the")
		assert.NotContains(t, got, "cat") // too short
		assert.Contains(t, got, "big")
		assert.Contains(t, got, "mat")
	})

	t.Run("ties broken by first occurrence", func(t *testing.T) {
		got := ExtractKeywords("zebra apple zebra apple", 2)
		assert.Equal(t, []string{"zebra", "apple"}, got)
	})

	t.Run("zero limit", func(t *testing.T) {
		assert.Nil(t, ExtractKeywords("anything here", 0))
	})
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("the"))
	assert.False(t, IsStopword("election"))
}
