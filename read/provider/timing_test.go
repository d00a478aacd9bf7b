package provider

import (
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/readsync/read"
)

func TestTimingsForChunksProportionalAllocation(t *testing.T) {
	full := "Hello world, again"
	timings := TimingsForChunks(full, []Chunk{
		{Text: "Hello world,", Duration: time.Second},
		{Text: "again", Duration: 500 * time.Millisecond},
	})

	if len(timings) != 3 {
		t.Fatalf("got %d timings, want 3", len(timings))
	}

	// "Hello" and "world" are equal length, so they split the first
	// chunk's second evenly.
	if timings[0].Word != "Hello" || timings[0].End-timings[0].Start != 500*time.Millisecond {
		t.Errorf("first word = %q dur %v, want Hello 500ms", timings[0].Word, timings[0].End-timings[0].Start)
	}
	if timings[1].Word != "world" || timings[1].Start != 500*time.Millisecond {
		t.Errorf("second word = %q start %v, want world at 500ms", timings[1].Word, timings[1].Start)
	}
	if timings[2].Word != "again" || timings[2].Start != time.Second {
		t.Errorf("third word = %q start %v, want again at 1s", timings[2].Word, timings[2].Start)
	}
}

func TestTimingsForChunksCharIndexes(t *testing.T) {
	full := "The quick brown fox jumps."
	timings := TimingsForChunks(full, []Chunk{
		{Text: "The quick brown", Duration: time.Second},
		{Text: "fox jumps.", Duration: time.Second},
	})

	for _, tm := range timings {
		got := full[tm.CharIndex : tm.CharIndex+tm.CharLength]
		if got != tm.Word {
			t.Errorf("timing for %q points at %q (index %d)", tm.Word, got, tm.CharIndex)
		}
	}
}

func TestTimingsForChunksRepeatedText(t *testing.T) {
	full := "go go go"
	timings := TimingsForChunks(full, []Chunk{
		{Text: "go", Duration: 100 * time.Millisecond},
		{Text: "go", Duration: 100 * time.Millisecond},
		{Text: "go", Duration: 100 * time.Millisecond},
	})

	if len(timings) != 3 {
		t.Fatalf("got %d timings, want 3", len(timings))
	}
	want := []int{0, 3, 6}
	for i, tm := range timings {
		if tm.CharIndex != want[i] {
			t.Errorf("occurrence %d at char %d, want %d", i, tm.CharIndex, want[i])
		}
	}
}

func TestTimingsMonotonic(t *testing.T) {
	full := "One, two, three, four and five."
	var chunks []Chunk
	for _, part := range strings.SplitAfter(full, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			chunks = append(chunks, Chunk{Text: part, Duration: 250 * time.Millisecond})
		}
	}

	timings := TimingsForChunks(full, chunks)
	if len(timings) == 0 {
		t.Fatal("no timings produced")
	}
	for i := 1; i < len(timings); i++ {
		if timings[i].Start < timings[i-1].End {
			t.Errorf("timing %d starts at %v before previous end %v",
				i, timings[i].Start, timings[i-1].End)
		}
	}
}

func TestEstimateTimings(t *testing.T) {
	timings := EstimateTimings("alpha beta gamma delta", 240)
	if len(timings) != 4 {
		t.Fatalf("got %d timings, want 4", len(timings))
	}
	// 4 words at 240 wpm is one second of estimated speech.
	last := timings[len(timings)-1]
	if last.End < 900*time.Millisecond || last.End > 1100*time.Millisecond {
		t.Errorf("estimated total %v, want about 1s", last.End)
	}
}

func TestEstimateTimingsEmpty(t *testing.T) {
	if got := EstimateTimings("", 150); got != nil {
		t.Errorf("EstimateTimings(\"\") = %v, want nil", got)
	}
}

func TestTimingIndexAt(t *testing.T) {
	timings := []read.WordTiming{
		{Word: "one", CharIndex: 0, CharLength: 3},
		{Word: "two", CharIndex: 4, CharLength: 3},
		{Word: "three", CharIndex: 8, CharLength: 5},
	}

	tests := []struct {
		charIndex int
		want      int
	}{
		{0, 0},
		{2, 0},
		{4, 1},
		{5, 1},
		{8, 2},
		{12, 2},
		{50, 3},
	}
	for _, tt := range tests {
		if got := timingIndexAt(timings, tt.charIndex); got != tt.want {
			t.Errorf("timingIndexAt(%d) = %d, want %d", tt.charIndex, got, tt.want)
		}
	}
}

func TestTimingIndexAtTime(t *testing.T) {
	timings := []read.WordTiming{
		{Word: "one", Start: 0, End: 200 * time.Millisecond},
		{Word: "two", Start: 200 * time.Millisecond, End: 450 * time.Millisecond},
		{Word: "three", Start: 450 * time.Millisecond, End: 700 * time.Millisecond},
	}

	tests := []struct {
		at   time.Duration
		want int
	}{
		{0, 0},
		{100 * time.Millisecond, 0},
		{200 * time.Millisecond, 1},
		{600 * time.Millisecond, 2},
		{time.Second, 3},
	}
	for _, tt := range tests {
		if got := timingIndexAtTime(timings, tt.at); got != tt.want {
			t.Errorf("timingIndexAtTime(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
}
