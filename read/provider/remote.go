package provider

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/audio"
)

// remoteChunkLimit is the longest text one request may carry. Longer
// utterances are split on word boundaries and stitched back together.
const remoteChunkLimit = 200

// RemoteConfig configures the HTTP synthesis backend.
type RemoteConfig struct {
	// Endpoint receives GET requests with q, lang and speed parameters and
	// responds with MP3 audio.
	Endpoint string
	Language string
	// RequestsPerSecond throttles the endpoint; defaults to 2.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// remoteSynth synthesizes through an HTTP service returning MP3. Each text
// chunk's decoded duration anchors the word timings, so boundaries stay
// accurate even though the service reports none.
type remoteSynth struct {
	cfg     RemoteConfig
	client  *http.Client
	limiter *rate.Limiter

	sr int // sample rate of the first decoded chunk
}

// NewRemote returns a provider backed by an HTTP MP3 synthesis service.
func NewRemote(cfg RemoteConfig) (Provider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("remote endpoint not configured")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	synth := &remoteSynth{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		sr:      24000,
	}
	return newBufferProvider(synth, audio.NewOtoPlayer()), nil
}

func (s *remoteSynth) id() string { return "remote" }

func (s *remoteSynth) sampleRate() int { return s.sr }

func (s *remoteSynth) voices() []read.Voice {
	return []read.Voice{{ID: s.cfg.Language, Name: s.cfg.Language, Language: s.cfg.Language}}
}

func (s *remoteSynth) capabilities() read.Capabilities {
	return read.Capabilities{Streaming: false, Offline: false}
}

func (s *remoteSynth) synthesize(ctx context.Context, text string, opts Options) ([]byte, []read.WordTiming, error) {
	var pcm []byte
	var chunks []Chunk
	for _, part := range splitByLength(text, remoteChunkLimit) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		data, sr, err := s.fetch(ctx, part, opts)
		if err != nil {
			return nil, nil, err
		}
		s.sr = sr
		pcm = append(pcm, data...)
		chunks = append(chunks, Chunk{Text: part, Duration: audio.DurationOf(data, sr)})
	}
	return pcm, TimingsForChunks(text, chunks), nil
}

// fetch requests one chunk and decodes the MP3 response to 16-bit mono PCM.
func (s *remoteSynth) fetch(ctx context.Context, text string, opts Options) ([]byte, int, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("lang", s.voiceOr(opts.Voice))
	q.Set("speed", fmt.Sprintf("%.2f", opts.Speed))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("remote synthesis: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("remote synthesis: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("remote synthesis: %w", err)
	}
	return decodeMP3(body)
}

func (s *remoteSynth) voiceOr(voice string) string {
	if voice != "" {
		return voice
	}
	return s.cfg.Language
}

func (s *remoteSynth) close() error { return nil }

// decodeMP3 decodes MP3 bytes to 16-bit mono PCM, downmixing the decoder's
// stereo output.
func decodeMP3(data []byte) ([]byte, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decoding mp3: %w", err)
	}

	stereo, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding mp3: %w", err)
	}

	// The decoder always emits interleaved 16-bit stereo frames.
	mono := make([]byte, 0, len(stereo)/2)
	for i := 0; i+3 < len(stereo); i += 4 {
		l := int16(binary.LittleEndian.Uint16(stereo[i:]))
		r := int16(binary.LittleEndian.Uint16(stereo[i+2:]))
		m := int16((int32(l) + int32(r)) / 2)
		mono = binary.LittleEndian.AppendUint16(mono, uint16(m))
	}
	return mono, dec.SampleRate(), nil
}

// splitByLength splits text into pieces no longer than limit, breaking at
// word boundaries where possible.
func splitByLength(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && text[cut] != ' ' {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		parts = append(parts, text[:cut])
		for cut < len(text) && text[cut] == ' ' {
			cut++
		}
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
