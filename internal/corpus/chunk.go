package corpus

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultChunkSize is used when no positive size is configured
const DefaultChunkSize = 1500

// Chunk is an indexable piece of a document
type Chunk struct {
	ID       string // <path>#<n>
	Text     string
	Metadata map[string]string
}

// ChunkDocuments splits every document into chunks of at most maxSize bytes.
// Chunk metadata carries the document metadata plus "source" and "chunk".
func ChunkDocuments(docs []Document, maxSize int) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range SplitText(doc.Text, maxSize) {
			md := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				md[k] = v
			}
			md["source"] = doc.Path
			md["chunk"] = strconv.Itoa(i)

			chunks = append(chunks, Chunk{
				ID:       fmt.Sprintf("%s#%d", doc.Path, i),
				Text:     text,
				Metadata: md,
			})
		}
	}
	return chunks
}

// SplitText packs paragraphs into pieces of at most maxSize bytes.
// Oversized paragraphs are split by sentence, then by word.
func SplitText(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}

	var pieces []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
	}

	add := func(part, sep string) {
		if current.Len() > 0 && current.Len()+len(sep)+len(part) > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxSize {
			add(para, "\n\n")
			continue
		}

		flush()
		for _, sentence := range splitSentences(para) {
			if len(sentence) <= maxSize {
				add(sentence, " ")
				continue
			}
			for _, word := range strings.Fields(sentence) {
				add(word, " ")
			}
		}
		flush()
	}
	flush()

	return pieces
}

// splitSentences splits text after '.', '!' or '?' followed by whitespace
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
