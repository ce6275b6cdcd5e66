// Package text turns cleaned document text into overlapping windows, the
// unit of embedding and retrieval.
package text

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"docbrain/internal/fault"
)

// Chunk is the atomic retrievable unit. StartPos/EndPos exactly bound Text
// within the text passed to Chunker.Chunk, so Text == input[StartPos:EndPos]
// always holds. Chunks are immutable once produced; re-ingestion overwrites
// whole records by ID.
type Chunk struct {
	ID            string
	Text          string
	SourceURL     string
	StartPos      int
	EndPos        int
	SequenceIndex int
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	controlRe    = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// CleanText collapses runs of whitespace and strips control characters.
// Chunk offsets index the cleaned text, so callers must clean before
// chunking and keep the cleaned form if they want to resolve offsets later.
func CleanText(s string) string {
	s = controlRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ChunkID derives a deterministic id from the source url and start offset.
// Re-chunking the same page with the same parameters yields identical ids,
// which is what makes ingestion an idempotent overwrite. The id is a UUID
// so it can double as the vector store object id.
func ChunkID(sourceURL string, startPos int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL+"#"+strconv.Itoa(startPos))).String()
}

type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the windowing parameters up front; a bad pair would
// otherwise loop forever or produce garbage offsets.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fault.New(fault.KindConfig, "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fault.New(fault.KindConfig, "chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text into windows of at most the configured size, with the
// configured overlap shared between consecutive windows. A window prefers to
// end on a sentence boundary when one exists past the halfway point; it falls
// back to a hard character cut. Empty or whitespace-only input yields a nil
// slice, not an error.
func (c *Chunker) Chunk(sourceURL, text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	seq := 0

	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else if cut, ok := c.sentenceCut(text, start, end); ok {
			end = cut
		}

		chunks = append(chunks, Chunk{
			ID:            ChunkID(sourceURL, start),
			Text:          text[start:end],
			SourceURL:     sourceURL,
			StartPos:      start,
			EndPos:        end,
			SequenceIndex: seq,
		})
		seq++

		if end >= len(text) {
			break
		}
		start = end - c.overlap
	}

	return chunks
}

// sentenceCut scans back from the window limit for a sentence terminator.
// A boundary is only usable when it lies past the halfway point of the
// window and the next window would still advance beyond the current start.
func (c *Chunker) sentenceCut(text string, start, end int) (int, bool) {
	half := start + c.size/2
	for i := end - 1; i > half; i-- {
		if !isSentenceEnd(text[i]) {
			continue
		}
		cut := i + 1
		if cut-c.overlap > start {
			return cut, true
		}
		return 0, false
	}
	return 0, false
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
