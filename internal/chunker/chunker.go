package chunker

import (
	"errors"
	"strings"
)

// ErrEmptyDocument is returned when no chunks can be produced from the input,
// which typically means a corrupted or image-only source.
var ErrEmptyDocument = errors.New("document produced no text chunks")

// Page is one page of extracted document text with its page marker.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded slice of document text carrying its lineage metadata:
// the source page, its 0-based position and the document's total chunk count.
type Chunk struct {
	Text  string
	Page  int
	Index int
	Total int
}

// Splitter splits document text into overlapping windows. It tries a layered
// separator policy (paragraph, then line, then word, then character) so that
// chunks break at the most natural boundary available, and keeps a fixed
// overlap between consecutive windows so information spanning a boundary is
// not lost.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// Split chunks the ordered pages of a document. Every chunk keeps the page it
// came from, and Index/Total are dense over the whole document.
func (s *Splitter) Split(pages []Page) ([]Chunk, error) {
	var chunks []Chunk
	for _, page := range pages {
		for _, piece := range s.splitText(page.Text, s.separators) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			chunks = append(chunks, Chunk{Text: piece, Page: page.Number})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
	}
	return chunks, nil
}

// splitText splits on the first separator present in the text, merges the
// resulting parts back into windows of at most chunkSize, and recurses with
// the finer separators for any part that is still too large on its own.
func (s *Splitter) splitText(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, sep)
	}

	var final []string
	var good []string
	for _, part := range splits {
		if len(part) < s.chunkSize {
			good = append(good, part)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, part)
		} else {
			final = append(final, s.splitText(part, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good, sep)...)
	}
	return final
}

// mergeSplits greedily packs parts into windows of at most chunkSize, then
// carries a tail of at most chunkOverlap characters into the next window.
func (s *Splitter) mergeSplits(splits []string, sep string) []string {
	var docs []string
	var current []string
	total := 0

	sepLen := len(sep)
	for _, part := range splits {
		partLen := len(part)
		if total+partLen+len(current)*sepLen > s.chunkSize && len(current) > 0 {
			if doc := joinSplits(current, sep); doc != "" {
				docs = append(docs, doc)
			}
			// Drop leading parts until the retained tail fits the overlap
			// budget and leaves room for the incoming part.
			for total > s.chunkOverlap || (total+partLen+len(current)*sepLen > s.chunkSize && total > 0) {
				total -= len(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		current = append(current, part)
		total += partLen
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := joinSplits(current, sep); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinSplits(parts []string, sep string) string {
	return strings.TrimSpace(strings.Join(parts, sep))
}
