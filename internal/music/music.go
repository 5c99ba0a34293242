// Package music plays the script's audio asset alongside light playback.
// Audio is best-effort: failures are reported and lights run on.
package music

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Player is the pluggable audio interface the playback engine drives.
type Player interface {
	// Play starts path at the given offset into the track and returns
	// once audio is rolling.
	Play(path string, offset time.Duration) error
	Stop()
	Position() time.Duration
}

// BeepPlayer renders audio through the default output device.
type BeepPlayer struct {
	mu       sync.Mutex
	stream   beep.StreamSeekCloser
	format   beep.Format
	initOnce sync.Once
	initErr  error
}

func NewBeepPlayer() *BeepPlayer {
	return &BeepPlayer{}
}

func (p *BeepPlayer) Play(path string, offset time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".wav":
		stream, format, err = wav.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decode audio: %w", err)
	}

	p.initOnce.Do(func() {
		p.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if p.initErr != nil {
		stream.Close()
		return fmt.Errorf("audio output: %w", p.initErr)
	}

	if offset > 0 {
		if err := stream.Seek(format.SampleRate.N(offset)); err != nil {
			stream.Close()
			return fmt.Errorf("seek audio: %w", err)
		}
	}

	p.mu.Lock()
	if p.stream != nil {
		speaker.Clear()
		p.stream.Close()
	}
	p.stream = stream
	p.format = format
	p.mu.Unlock()

	speaker.Play(stream)
	return nil
}

func (p *BeepPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return
	}
	speaker.Clear()
	p.stream.Close()
	p.stream = nil
}

func (p *BeepPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return 0
	}
	speaker.Lock()
	n := p.stream.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(n)
}

// Resolve locates the script's audio asset under the script directory. A
// bare file name is searched in dir; an absolute path is used as given.
func Resolve(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("music file %q not found in %s", name, dir)
	}
	return path, nil
}
