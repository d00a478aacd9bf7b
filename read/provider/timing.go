package provider

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/segment"
)

// Chunk is one streamed piece of a synthesized utterance: the text it
// covers and the measured duration of its audio.
type Chunk struct {
	Text     string
	Duration time.Duration
}

// TimingsForChunks derives per-word timings for an utterance synthesized in
// chunks. Each chunk's position in the full text is located by exact
// substring search (falling back to a first-word search), and the chunk's
// duration is split across its words proportionally to character length.
// Chunks are processed in order against a running clock, so the resulting
// timings are non-overlapping and monotonically increasing.
func TimingsForChunks(full string, chunks []Chunk) []read.WordTiming {
	seg := segment.New()
	var timings []read.WordTiming

	clock := time.Duration(0)
	searchFrom := 0
	for _, ch := range chunks {
		base := locateChunk(full, ch.Text, searchFrom, seg)
		words := seg.WordsWithPositions(ch.Text)
		totalChars := 0
		for _, w := range words {
			totalChars += len(w.Text)
		}
		if totalChars == 0 {
			clock += ch.Duration
			continue
		}

		for _, w := range words {
			dur := time.Duration(float64(ch.Duration) * float64(len(w.Text)) / float64(totalChars))
			timings = append(timings, read.WordTiming{
				Word:       w.Text,
				CharIndex:  base + w.Offset,
				CharLength: len(w.Text),
				Start:      clock,
				End:        clock + dur,
			})
			clock += dur
		}
		searchFrom = base + len(ch.Text)
		if searchFrom > len(full) {
			searchFrom = len(full)
		}
	}
	return timings
}

// locateChunk finds where a chunk's text sits in the full utterance.
func locateChunk(full, chunk string, from int, seg *segment.Segmenter) int {
	if from > len(full) {
		from = len(full)
	}
	if pos := strings.Index(full[from:], chunk); pos >= 0 {
		return from + pos
	}
	// Fall back to the chunk's first word.
	if words := seg.WordsWithPositions(chunk); len(words) > 0 {
		if pos := strings.Index(full[from:], words[0].Text); pos >= 0 {
			return from + pos
		}
	}
	log.Debug("chunk not located in utterance", "from", from, "chunk", chunk)
	return from
}

// EstimateTimings spreads evenly paced timings over text at a target rate,
// for backends that report no boundaries of their own.
func EstimateTimings(text string, wordsPerMinute float64) []read.WordTiming {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 150
	}
	words := segment.New().WordsWithPositions(text)
	if len(words) == 0 {
		return nil
	}
	total := time.Duration(float64(len(words)) / wordsPerMinute * float64(time.Minute))
	return TimingsForChunks(text, []Chunk{{Text: text, Duration: total}})
}

// timingIndexAt returns the index of the first timing covering or after a
// character offset, for resuming boundaries mid-utterance.
func timingIndexAt(timings []read.WordTiming, charIndex int) int {
	for i, t := range timings {
		if t.CharIndex+t.CharLength > charIndex {
			return i
		}
	}
	return len(timings)
}

// timingIndexAtTime returns the index of the first timing ending after the
// given playback offset.
func timingIndexAtTime(timings []read.WordTiming, at time.Duration) int {
	for i, t := range timings {
		if t.End > at {
			return i
		}
	}
	return len(timings)
}
