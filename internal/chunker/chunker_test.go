package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyDocument(t *testing.T) {
	s := NewSplitter(1000, 200)

	_, err := s.Split(nil)
	require.ErrorIs(t, err, ErrEmptyDocument)

	_, err = s.Split([]Page{{Number: 1, Text: "   \n\n  "}})
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestSplitSingleSmallPage(t *testing.T) {
	s := NewSplitter(1000, 200)

	chunks, err := s.Split([]Page{{Number: 1, Text: "Paris is the capital of France."}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Paris is the capital of France.", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].Total)
}

func TestSplitOrdinalsAreDense(t *testing.T) {
	s := NewSplitter(50, 10)
	pages := []Page{
		{Number: 1, Text: "alpha bravo charlie delta.\n\nsecond paragraph here with words.\n\nthird block of text closes it."},
		{Number: 2, Text: "fourth paragraph on the next page.\n\nfifth one to finish."},
	}

	chunks, err := s.Split(pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, len(chunks), c.Total)
	}
}

func TestSplitKeepsPageMarkers(t *testing.T) {
	s := NewSplitter(1000, 200)
	pages := []Page{
		{Number: 1, Text: "first page text"},
		{Number: 2, Text: "second page text"},
	}

	chunks, err := s.Split(pages)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
}

func TestSplitRespectsWindowSize(t *testing.T) {
	s := NewSplitter(30, 10)
	text := "one two three four five six seven eight nine ten"

	chunks, err := s.Split([]Page{{Number: 1, Text: text}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 30, "chunk %q exceeds the window", c.Text)
	}
}

func TestSplitCoversAllWords(t *testing.T) {
	s := NewSplitter(30, 10)
	text := "one two three four five six seven eight nine ten"

	chunks, err := s.Split([]Page{{Number: 1, Text: text}})
	require.NoError(t, err)

	var all strings.Builder
	for _, c := range chunks {
		all.WriteString(c.Text)
		all.WriteString(" ")
	}
	for _, word := range strings.Fields(text) {
		assert.Contains(t, all.String(), word)
	}
}

func TestSplitOverlapsConsecutiveWindows(t *testing.T) {
	s := NewSplitter(30, 10)
	text := "one two three four five six seven eight nine ten"

	chunks, err := s.Split([]Page{{Number: 1, Text: text}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		words := strings.Fields(chunks[i].Text)
		last := words[len(words)-1]
		assert.Contains(t, chunks[i+1].Text, last,
			"chunk %d should share its tail with chunk %d", i, i+1)
	}
}

func TestSplitOversizedAtomicUnit(t *testing.T) {
	s := NewSplitter(1000, 200)
	text := strings.Repeat("x", 2500)

	chunks, err := s.Split([]Page{{Number: 1, Text: text}})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1000)
	}
}

func TestSplitParagraphBoundariesPreferred(t *testing.T) {
	s := NewSplitter(50, 10)
	text := "alpha bravo charlie delta.\n\nsecond paragraph here with words.\n\nthird block of text closes it."

	chunks, err := s.Split([]Page{{Number: 1, Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha bravo charlie delta.", chunks[0].Text)
	assert.Equal(t, "second paragraph here with words.", chunks[1].Text)
	assert.Equal(t, "third block of text closes it.", chunks[2].Text)
}
