package retrieval

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// SplitText cuts text into overlapping chunks of roughly size runes,
// preferring to break at whitespace near the boundary. Blank chunks are
// dropped.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}

	runes := []rune(text)
	var chunks []string
	step := size - overlap

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		cut := end
		if end < len(runes) {
			// walk back to the nearest whitespace so words stay intact
			for i := end; i > start+step; i-- {
				if isSpace(runes[i-1]) {
					cut = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if cut >= len(runes) {
			break
		}
	}
	return chunks
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
