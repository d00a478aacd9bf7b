package audio

import (
	"math"
	"testing"
	"time"
)

// sine builds a 16-bit mono PCM buffer with a 440Hz tone.
func sine(sampleRate int, d time.Duration) []byte {
	n := int(float64(sampleRate) * d.Seconds())
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		pcm[i*2] = byte(uint16(v))
		pcm[i*2+1] = byte(uint16(v) >> 8)
	}
	return pcm
}

func TestResampleIdentity(t *testing.T) {
	pcm := sine(22050, 50*time.Millisecond)
	out := Resample(pcm, 22050, 22050)
	if len(out) != len(pcm) {
		t.Errorf("identity resample changed length: %d -> %d", len(pcm), len(out))
	}
}

func TestResamplePreservesDuration(t *testing.T) {
	rates := []int{22050, 24000, 16000}
	for _, from := range rates {
		pcm := sine(from, 200*time.Millisecond)
		out := Resample(pcm, from, 48000)

		want := DurationOf(pcm, from)
		got := DurationOf(out, 48000)
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		if diff > time.Millisecond {
			t.Errorf("rate %d: duration %v after resample, want %v", from, got, want)
		}
	}
}

func TestResampleAmplitudeBounded(t *testing.T) {
	pcm := sine(24000, 100*time.Millisecond)
	out := Resample(pcm, 24000, 48000)

	// Linear interpolation never exceeds the input's peak.
	for i := 0; i+1 < len(out); i += 2 {
		v := int16(uint16(out[i]) | uint16(out[i+1])<<8)
		if v > 10000 || v < -10000 {
			t.Fatalf("sample %d out of input range: %d", i/2, v)
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	if out := Resample(nil, 22050, 48000); len(out) != 0 {
		t.Errorf("empty input produced %d bytes", len(out))
	}
}

func TestOffsetBytesClampsAndAligns(t *testing.T) {
	pcm := make([]byte, 1000)

	if off := OffsetBytes(pcm, 22050, -time.Second); off != 0 {
		t.Errorf("negative elapsed offset = %d", off)
	}
	if off := OffsetBytes(pcm, 22050, time.Hour); off != 1000 {
		t.Errorf("past-end offset = %d, want 1000", off)
	}
	off := OffsetBytes(pcm, 22050, 7*time.Millisecond)
	if off%2 != 0 {
		t.Errorf("offset %d not sample aligned", off)
	}
}
