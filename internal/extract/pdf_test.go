package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output   []byte
	err      error
	lastName string
	lastArgs []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.lastName = name
	f.lastArgs = args
	return f.output, f.err
}

func TestPages(t *testing.T) {
	runner := &fakeRunner{output: []byte("first page text\fsecond page text\f")}
	e := NewExtractorWithRunner(runner)

	pages, err := e.Pages(context.Background(), "/tmp/doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, "pdftotext", runner.lastName)
	assert.Equal(t, []string{"-enc", "UTF-8", "/tmp/doc.pdf", "-"}, runner.lastArgs)

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "first page text", pages[0].Text)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, "second page text", pages[1].Text)
}

func TestPagesSkipsBlankPages(t *testing.T) {
	runner := &fakeRunner{output: []byte("first\f  \n\fthird\f")}
	e := NewExtractorWithRunner(runner)

	pages, err := e.Pages(context.Background(), "/tmp/doc.pdf")
	require.NoError(t, err)

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 3, pages[1].Number, "page numbers track position, not count")
}

func TestPagesToolFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	e := NewExtractorWithRunner(runner)

	_, err := e.Pages(context.Background(), "/tmp/broken.pdf")
	require.ErrorIs(t, err, ErrUnreadableDocument)
}

func TestPagesNoText(t *testing.T) {
	runner := &fakeRunner{output: []byte("\f\f  \n")}
	e := NewExtractorWithRunner(runner)

	_, err := e.Pages(context.Background(), "/tmp/scanned.pdf")
	require.ErrorIs(t, err, ErrUnreadableDocument)
}
