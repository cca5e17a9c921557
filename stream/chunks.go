// Package stream replays an already-complete answer incrementally, giving a
// typing illusion without holding a connection open. Chunking is pure and
// deterministic; pacing is configurable and its jitter injectable so chunk
// arrival is testable without timing flakiness.
package stream

import "strings"

// terminal punctuation marking sentence-like chunk boundaries.
const terminators = ".!?"

// Chunks splits text into sentence-like chunks on terminal punctuation,
// keeping the punctuation with its chunk. Text without any terminator comes
// back as a single chunk. Whitespace-only input yields no chunks.
func Chunks(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	for _, r := range trimmed {
		current.WriteRune(r)
		if strings.ContainsRune(terminators, r) {
			if chunk := strings.TrimSpace(current.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			current.Reset()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		chunks = append(chunks, tail)
	}

	if len(chunks) == 0 {
		return []string{trimmed}
	}
	return chunks
}
