package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/audio"
)

// PiperConfig configures the local piper backend.
type PiperConfig struct {
	BinaryPath     string // Path to the piper binary; searched for if empty
	ModelPath      string // Path to the .onnx voice model
	ModelURL       string // Downloaded to DataDir when ModelPath is missing
	DataDir        string // Where downloaded models live
	SampleRate     int    // Model output rate; defaults to 22050
	RequestTimeout time.Duration
}

// piperSynth synthesizes speech locally through the piper binary. The text
// is synthesized clause by clause so each clause's measured audio length
// anchors the word timings.
type piperSynth struct {
	cfg      PiperConfig
	progress func(read.ProgressEvent)
	model    string // resolved model path
}

// NewPiper returns a provider backed by a local piper process. The voice
// model is downloaded on first synthesis if missing.
func NewPiper(cfg PiperConfig) (Provider, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = findPiperBinary()
		if cfg.BinaryPath == "" {
			return nil, errors.New("piper binary not found")
		}
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("piper binary not accessible: %w", err)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	synth := &piperSynth{cfg: cfg}
	p := newBufferProvider(synth, audio.NewOtoPlayer())
	synth.progress = p.emitProgress
	return p, nil
}

func (s *piperSynth) id() string { return "piper" }

func (s *piperSynth) sampleRate() int { return s.cfg.SampleRate }

func (s *piperSynth) voices() []read.Voice {
	name := "default"
	if s.cfg.ModelPath != "" {
		name = strings.TrimSuffix(filepath.Base(s.cfg.ModelPath), filepath.Ext(s.cfg.ModelPath))
	}
	return []read.Voice{{ID: name, Name: name, Language: "en-US"}}
}

func (s *piperSynth) capabilities() read.Capabilities {
	return read.Capabilities{Streaming: false, Offline: true}
}

func (s *piperSynth) synthesize(ctx context.Context, text string, opts Options) ([]byte, []read.WordTiming, error) {
	model, err := s.ensureModel(ctx)
	if err != nil {
		return nil, nil, err
	}

	var pcm []byte
	var chunks []Chunk
	for _, clause := range splitClauses(text) {
		data, err := s.run(ctx, model, clause, opts.Speed)
		if err != nil {
			return nil, nil, err
		}
		pcm = append(pcm, data...)
		chunks = append(chunks, Chunk{
			Text:     clause,
			Duration: audio.DurationOf(data, s.cfg.SampleRate),
		})
	}
	return pcm, TimingsForChunks(text, chunks), nil
}

// run invokes one fresh piper process for a clause. A fresh process per
// request avoids a hung process poisoning every later synthesis.
func (s *piperSynth) run(ctx context.Context, model, clause string, speed float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	args := []string{"--model", model, "--output-raw"}
	if speed > 0 && speed != 1.0 {
		// Piper's length scale is the inverse of the rate multiplier.
		args = append(args, "--length-scale", fmt.Sprintf("%.2f", 1.0/speed))
	}

	cmd := exec.CommandContext(ctx, s.cfg.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(clause + "\n")
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if line := lastLine(errBuf.String()); line != "" {
			return nil, fmt.Errorf("piper: %s: %w", line, err)
		}
		return nil, fmt.Errorf("piper: %w", err)
	}
	if out.Len() == 0 {
		return nil, errors.New("piper produced no audio")
	}
	return out.Bytes(), nil
}

// ensureModel resolves the voice model path, downloading it on first use.
func (s *piperSynth) ensureModel(ctx context.Context) (string, error) {
	if s.model != "" {
		return s.model, nil
	}
	if s.cfg.ModelPath != "" {
		if _, err := os.Stat(s.cfg.ModelPath); err == nil {
			s.model = s.cfg.ModelPath
			return s.model, nil
		}
	}
	if s.cfg.ModelURL == "" {
		return "", fmt.Errorf("voice model not found: %s", s.cfg.ModelPath)
	}

	dest := filepath.Join(s.cfg.DataDir, filepath.Base(s.cfg.ModelURL))
	if _, err := os.Stat(dest); err == nil {
		s.model = dest
		return dest, nil
	}
	if err := s.download(ctx, s.cfg.ModelURL, dest); err != nil {
		return "", err
	}
	s.model = dest
	return dest, nil
}

// download fetches a voice model, reporting progress to the host.
func (s *piperSynth) download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading voice model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading voice model: %s", resp.Status)
	}

	log.Info("downloading voice model",
		"url", url, "size", humanize.Bytes(uint64(max(resp.ContentLength, 0))))

	// Write to a temp file and rename so a torn download never passes for
	// a model.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".model-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	counter := &progressWriter{
		total: resp.ContentLength,
		emit: func(done, total int64) {
			if s.progress != nil {
				s.progress(read.ProgressEvent{
					Provider: "piper", Step: "download-model", Done: done, Total: total,
				})
			}
		},
	}
	if _, err := io.Copy(io.MultiWriter(tmp, counter), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("downloading voice model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	log.Info("voice model ready", "path", dest, "size", humanize.Bytes(uint64(counter.done)))
	return nil
}

func (s *piperSynth) close() error { return nil }

// progressWriter counts bytes and emits throttled progress callbacks.
type progressWriter struct {
	done     int64
	total    int64
	lastEmit time.Time
	emit     func(done, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.done += int64(len(p))
	if time.Since(w.lastEmit) > 200*time.Millisecond || w.done == w.total {
		w.lastEmit = time.Now()
		w.emit(w.done, w.total)
	}
	return len(p), nil
}

// splitClauses breaks text at clause punctuation so each piece gets its own
// measured audio duration. The punctuation stays with its clause.
func splitClauses(text string) []string {
	var clauses []string
	start := 0
	for i, r := range text {
		switch r {
		case ',', ';', ':', '.', '!', '?':
			clause := strings.TrimSpace(text[start : i+1])
			if clause != "" {
				clauses = append(clauses, clause)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		clauses = append(clauses, tail)
	}
	if len(clauses) == 0 {
		return []string{text}
	}
	return clauses
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

// findPiperBinary looks for piper in the PATH and common install spots.
func findPiperBinary() string {
	locations := []string{"piper", "/usr/local/bin/piper", "/usr/bin/piper"}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".local", "bin", "piper"))
	}
	for _, loc := range locations {
		if path, err := exec.LookPath(loc); err == nil {
			return path
		}
	}
	return ""
}
