// Package recog adapts a local Vosk model and the system microphone to the
// speak-along recognizer contract.
package recog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"

	"github.com/dgnsrekt/readsync/read/speakalong"
)

const (
	captureRate     = 16000
	captureChannels = 1
	// A session that hears nothing for this long ends with ErrNoSpeech so
	// the matcher can restart it quietly.
	silenceWindow = 20 * time.Second
)

// Config configures the recognizer.
type Config struct {
	ModelPath string
}

// Recognizer owns the Vosk model and opens microphone sessions against it.
type Recognizer struct {
	cfg Config

	mu    sync.Mutex
	model *vosk.VoskModel
}

// New creates a recognizer. The model loads lazily on the first session so
// start-up stays cheap when follow-along mode is never used.
func New(cfg Config) *Recognizer {
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) loadModel() (*vosk.VoskModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != nil {
		return r.model, nil
	}
	if _, err := os.Stat(r.cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w at %s", speakalong.ErrUnsupported, ErrNoModel, r.cfg.ModelPath)
	}

	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(r.cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", speakalong.ErrUnsupported, err)
	}
	r.model = model
	return model, nil
}

// Listen opens a microphone capture session feeding the Vosk recognizer.
func (r *Recognizer) Listen(ctx context.Context) (speakalong.Session, error) {
	model, err := r.loadModel()
	if err != nil {
		return nil, err
	}

	rec, err := vosk.NewRecognizer(model, float64(captureRate))
	if err != nil {
		return nil, fmt.Errorf("creating recognizer: %w", err)
	}
	rec.SetWords(1)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		rec.Free()
		return nil, fmt.Errorf("%w: %v", speakalong.ErrPermissionDenied, err)
	}

	s := &session{
		rec:     rec,
		mctx:    mctx,
		results: make(chan speakalong.Result, 16),
		frames:  make(chan []byte, 32),
		stopped: make(chan struct{}),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = captureChannels
	devCfg.SampleRate = captureRate

	device, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			frame := make([]byte, len(input))
			copy(frame, input)
			select {
			case s.frames <- frame:
			default:
				// Recognition is behind; dropping a frame beats blocking
				// the audio callback.
			}
		},
	})
	if err != nil {
		mctx.Uninit()
		rec.Free()
		return nil, fmt.Errorf("%w: %v", speakalong.ErrPermissionDenied, err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: %v", speakalong.ErrPermissionDenied, err)
	}

	go s.decode(ctx)
	return s, nil
}

// Close frees the model.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

// session is one live capture+decode stream.
type session struct {
	rec    *vosk.VoskRecognizer
	mctx   *malgo.AllocatedContext
	device *malgo.Device

	results chan speakalong.Result
	frames  chan []byte

	once    sync.Once
	stopped chan struct{}

	mu  sync.Mutex
	err error
}

func (s *session) Results() <-chan speakalong.Result { return s.results }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) Stop() {
	s.once.Do(func() { close(s.stopped) })
}

// voskResult is the JSON shape Vosk returns for both partial and final
// results.
type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// decode feeds captured frames to Vosk and publishes transcripts.
func (s *session) decode(ctx context.Context) {
	defer s.teardown()
	defer close(s.results)

	lastSpeech := time.Now()
	lastPartial := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case frame := <-s.frames:
			if s.rec.AcceptWaveform(frame) != 0 {
				var res voskResult
				if err := json.Unmarshal([]byte(s.rec.Result()), &res); err != nil {
					log.Debug("unparseable recognition result", "err", err)
					continue
				}
				if res.Text != "" {
					lastSpeech = time.Now()
					lastPartial = ""
					s.publish(ctx, speakalong.Result{Text: res.Text, Final: true})
				}
				continue
			}

			var res voskResult
			if err := json.Unmarshal([]byte(s.rec.PartialResult()), &res); err != nil {
				continue
			}
			if res.Partial != "" && res.Partial != lastPartial {
				lastSpeech = time.Now()
				lastPartial = res.Partial
				s.publish(ctx, speakalong.Result{Text: res.Partial})
			}
			if time.Since(lastSpeech) > silenceWindow {
				s.fail(speakalong.ErrNoSpeech)
				return
			}
		}
	}
}

func (s *session) publish(ctx context.Context, res speakalong.Result) {
	select {
	case s.results <- res:
	case <-ctx.Done():
	case <-s.stopped:
	}
}

func (s *session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *session) teardown() {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		s.mctx.Uninit()
		s.mctx = nil
	}
	if s.rec != nil {
		s.rec.Free()
		s.rec = nil
	}
}

var _ speakalong.Recognizer = (*Recognizer)(nil)

// ErrNoModel helps callers distinguish a missing model from other setup
// failures when deciding whether to offer follow-along mode at all.
var ErrNoModel = errors.New("recognition model not installed")
