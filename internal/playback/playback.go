// Package playback drives the controller along a generated schedule in real
// time, against a monotonic clock, with optional music alongside.
package playback

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/picolume/lightscript/internal/device"
	"github.com/picolume/lightscript/internal/metrics"
	"github.com/picolume/lightscript/internal/music"
	"github.com/picolume/lightscript/internal/schedule"
	"github.com/picolume/lightscript/internal/script"
	"github.com/picolume/lightscript/internal/status"
)

// idleTickHz bounds how often the time callback fires while waiting between
// events.
const idleTickHz = 20

// TimeFunc receives the current schedule time from the worker goroutine.
type TimeFunc func(t float64)

// EndFunc is invoked exactly once when a playback worker exits.
type EndFunc func()

// Options tune the engine.
type Options struct {
	SerialBaud  int
	DialTimeout time.Duration
	Tick        time.Duration // sleep granularity; clamped to 50ms
}

// Engine owns the controller link and the background worker. The script and
// schedule are borrowed and must stay immutable while the worker runs.
type Engine struct {
	mu     sync.Mutex
	dev    *device.Device
	scr    *script.Script
	sched  *schedule.Schedule
	rep    *status.Reporter
	player music.Player

	scriptDir string
	opts      Options

	timeCB TimeFunc
	endCB  EndFunc

	running    atomic.Bool
	pleaseStop atomic.Bool
	done       chan struct{}
}

func New(rep *status.Reporter, player music.Player, opts Options) *Engine {
	if opts.Tick <= 0 || opts.Tick > 50*time.Millisecond {
		opts.Tick = 50 * time.Millisecond
	}
	return &Engine{rep: rep, player: player, opts: opts}
}

// OpenDevice connects to the controller named by name (serial path, "usb",
// or host[:port]).
func (e *Engine) OpenDevice(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dev != nil {
		return fmt.Errorf("device already open")
	}
	dev, err := device.Open(name, device.Options{
		SerialBaud:  e.opts.SerialBaud,
		DialTimeout: e.opts.DialTimeout,
	})
	if err != nil {
		e.rep.Errorf("Could not open device %s: %v", name, err)
		return err
	}
	e.dev = dev
	return nil
}

// AttachDevice installs an already-open controller link, for embedders
// bringing their own transport.
func (e *Engine) AttachDevice(dev *device.Device) {
	e.mu.Lock()
	e.dev = dev
	e.mu.Unlock()
}

// CloseDevice drops the controller link. The worker must be idle.
func (e *Engine) CloseDevice() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dev != nil {
		e.dev.Close()
		e.dev = nil
	}
}

// Device exposes the open link for passthrough operations (version, DFU,
// env). Nil when disconnected.
func (e *Engine) Device() *device.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev
}

// CheckVersion queries controller firmware over the open link.
func (e *Engine) CheckVersion() (string, error) {
	dev := e.Device()
	if dev == nil {
		return "", fmt.Errorf("device not open")
	}
	return dev.CheckVersion()
}

// ResetToDFU reboots the controller into its firmware loader.
func (e *Engine) ResetToDFU() error {
	dev := e.Device()
	if dev == nil {
		return fmt.Errorf("device not open")
	}
	return dev.ResetToDFU()
}

// EnvSet writes a controller environment variable.
func (e *Engine) EnvSet(name, value string) error {
	dev := e.Device()
	if dev == nil {
		return fmt.Errorf("device not open")
	}
	return dev.EnvSet(name, value)
}

// EnvGet reads a controller environment variable.
func (e *Engine) EnvGet(name string) (string, error) {
	dev := e.Device()
	if dev == nil {
		return "", fmt.Errorf("device not open")
	}
	return dev.EnvGet(name)
}

// EnvList lists the controller environment as "name=value" lines.
func (e *Engine) EnvList() ([]string, error) {
	dev := e.Device()
	if dev == nil {
		return nil, fmt.Errorf("device not open")
	}
	return dev.EnvList()
}

// EnvEraseAll clears the controller environment.
func (e *Engine) EnvEraseAll() error {
	dev := e.Device()
	if dev == nil {
		return fmt.Errorf("device not open")
	}
	return dev.EnvEraseAll()
}

// Init captures the script and schedule for the next playback.
func (e *Engine) Init(scr *script.Script, sched *schedule.Schedule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scr = scr
	e.sched = sched
}

// InitDevice uploads the channel map and substrip definitions before
// dispatch starts.
func (e *Engine) InitDevice() error {
	e.mu.Lock()
	dev, scr := e.dev, e.scr
	e.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("device not open")
	}
	if scr == nil {
		return fmt.Errorf("no script loaded")
	}
	return dev.UploadConfig(scr)
}

// SetDir sets the search root for music assets.
func (e *Engine) SetDir(dir string) {
	e.mu.Lock()
	e.scriptDir = dir
	e.mu.Unlock()
}

// SetTimeCallback registers the tick callback. It is invoked from the
// worker goroutine.
func (e *Engine) SetTimeCallback(fn TimeFunc) {
	e.mu.Lock()
	e.timeCB = fn
	e.mu.Unlock()
}

// SetEndCallback registers the end-of-playback callback. It is invoked from
// the worker goroutine, exactly once per playback.
func (e *Engine) SetEndCallback(fn EndFunc) {
	e.mu.Lock()
	e.endCB = fn
	e.mu.Unlock()
}

// Start launches the playback worker. Fails while a playback is already
// running.
func (e *Engine) Start(withMusic bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scr == nil || e.sched == nil {
		return fmt.Errorf("no schedule loaded")
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("playback already running")
	}
	e.pleaseStop.Store(false)
	e.done = make(chan struct{})
	go e.run(withMusic, e.scr, e.sched, e.done)
	return nil
}

// Interrupt requests a cooperative stop. The worker observes it at every
// loop head and every sleep wakeup.
func (e *Engine) Interrupt() {
	e.pleaseStop.Store(true)
}

// Wait blocks until the worker exits. Safe to call when idle.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// Running reports whether a playback worker is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

func (e *Engine) run(withMusic bool, scr *script.Script, sched *schedule.Schedule, done chan struct{}) {
	epoch := time.Now()
	metrics.PlaybacksActive.Set(1)

	musicStarted := e.startMusic(withMusic, scr)

	e.playEvents(epoch, sched)

	if musicStarted {
		e.player.Stop()
	}
	e.allOff(scr)

	metrics.PlaybacksActive.Set(0)
	metrics.PlaybackSeconds.Add(time.Since(epoch).Seconds())

	e.mu.Lock()
	endCB := e.endCB
	e.mu.Unlock()
	e.running.Store(false)
	close(done)
	if endCB != nil {
		endCB()
	}
}

// playEvents walks the schedule in order, sleeping in small slices so stop
// requests are observed promptly.
func (e *Engine) playEvents(epoch time.Time, sched *schedule.Schedule) {
	e.mu.Lock()
	dev, timeCB := e.dev, e.timeCB
	e.mu.Unlock()

	idle := rate.NewLimiter(rate.Limit(idleTickHz), 1)
	recs := sched.Records()
	for k := range recs {
		rec := &recs[k]
		for {
			if e.pleaseStop.Load() {
				return
			}
			now := time.Since(epoch).Seconds()
			remain := time.Duration((rec.Time - now) * float64(time.Second))
			if remain <= 0 {
				break
			}
			if remain > e.opts.Tick {
				remain = e.opts.Tick
			}
			time.Sleep(remain)
			if timeCB != nil && idle.Allow() {
				timeCB(time.Since(epoch).Seconds())
			}
		}
		if e.pleaseStop.Load() {
			return
		}
		if rec.Comment != "" {
			e.rep.Printf("%s", rec.Comment)
		} else if dev != nil {
			err := dev.Fire(device.FireCmd{
				Animation:  rec.Animation,
				Mask:       rec.Mask,
				Palette:    rec.Palette,
				Speed:      rec.Speed,
				Brightness: rec.Brightness,
				Direction:  rec.Direction,
				Option:     rec.Option,
			})
			if err != nil {
				metrics.DeviceWriteErrors.Inc()
				e.rep.Errorf("Device write failed at %0.2f: %v", rec.Time, err)
			} else {
				metrics.DeviceWrites.Inc()
			}
		}
		if timeCB != nil {
			timeCB(rec.Time)
		}
	}
}

// startMusic launches the audio task synchronized to the playback epoch.
// Audio failures are reported and light dispatch continues.
func (e *Engine) startMusic(withMusic bool, scr *script.Script) bool {
	if !withMusic || scr.Music == "" || e.player == nil {
		return false
	}
	e.mu.Lock()
	dir := e.scriptDir
	e.mu.Unlock()
	path, err := music.Resolve(dir, scr.Music)
	if err != nil {
		e.rep.Errorf("Music: %v", err)
		return false
	}
	if desc := music.Describe(path); desc != "" {
		e.rep.Printf("Playing: %s", desc)
	}
	if err := e.player.Play(path, 0); err != nil {
		e.rep.Errorf("Music: %v", err)
		return false
	}
	return true
}

// allOff blanks the installation when the worker exits: the script's idle
// animation across every strip when one is named, a plain off otherwise.
func (e *Engine) allOff(scr *script.Script) {
	e.mu.Lock()
	dev := e.dev
	e.mu.Unlock()
	if dev == nil {
		return
	}
	if scr.IdleAnim != "" {
		if v, ok := scr.Anims.Find(scr.IdleAnim); ok {
			var mask script.StripMask
			for i := range scr.VStrips {
				mask.Set(i)
			}
			if err := dev.Fire(device.FireCmd{Animation: v, Mask: mask}); err != nil {
				log.Printf("playback: idle animation: %v", err)
			}
			return
		}
	}
	if err := dev.AllOff(); err != nil {
		log.Printf("playback: all off: %v", err)
	}
}
