// Package api is the stable facade over the compilation pipeline and the
// playback engine. Functions return 0 on success and negative codes on
// failure, mirroring what the IDE front end expects.
package api

import (
	"errors"

	"github.com/picolume/lightscript/internal/config"
	"github.com/picolume/lightscript/internal/devstore"
	"github.com/picolume/lightscript/internal/lexer"
	"github.com/picolume/lightscript/internal/metrics"
	"github.com/picolume/lightscript/internal/music"
	"github.com/picolume/lightscript/internal/parser"
	"github.com/picolume/lightscript/internal/playback"
	"github.com/picolume/lightscript/internal/schedule"
	"github.com/picolume/lightscript/internal/script"
	"github.com/picolume/lightscript/internal/status"
)

// Return codes.
const (
	OK          = 0
	ErrBadArgs  = -1 // uninitialized context or bad arguments
	ErrDevice   = -2 // file or device open failure
	ErrParse    = -3 // parse failure
	ErrSchedule = -4 // schedule generation failure
)

// Context owns one compile + playback session: token stream, script,
// schedule, engine, and the device/run history store. API calls are
// single-writer; callers serialize access externally.
type Context struct {
	rep    *status.Reporter
	ts     *lexer.Stream
	scr    *script.Script
	sched  *schedule.Schedule
	engine *playback.Engine
	store  *devstore.Store
	cfg    *config.Config

	deviceName string
	scriptDir  string
	errorLine  int
	userEndCB  func()
	runID      string
}

// NewContext builds a context from cfg. A nil cfg loads from environment.
func NewContext(cfg *config.Config) *Context {
	if cfg == nil {
		cfg = config.Load()
	}
	rep := status.NewReporter(nil)
	ctx := &Context{
		rep:       rep,
		ts:        lexer.NewStream(rep),
		scr:       script.New(),
		cfg:       cfg,
		scriptDir: cfg.ScriptDir,
	}
	ctx.sched = schedule.New(rep)
	ctx.engine = playback.New(rep, music.NewBeepPlayer(), playback.Options{
		SerialBaud:  cfg.SerialBaud,
		DialTimeout: cfg.ConnectTimeout,
		Tick:        cfg.TickInterval,
	})
	ctx.engine.SetDir(ctx.scriptDir)
	ctx.engine.SetEndCallback(ctx.playbackEnded)
	if cfg.StorePath != "" {
		store, err := devstore.Open(cfg.StorePath)
		if err != nil {
			rep.Errorf("History store: %v", err)
		} else {
			ctx.store = store
		}
	}
	ctx.deviceName = cfg.Device
	return ctx
}

// SetStatusCallback routes status lines to the UI.
func (c *Context) SetStatusCallback(fn status.Func) {
	c.rep.SetFunc(fn)
}

// SetTimeCallback registers the playback tick callback. Invoked from the
// worker goroutine.
func (c *Context) SetTimeCallback(fn playback.TimeFunc) {
	c.engine.SetTimeCallback(fn)
}

// SetPlaybackEndCallback registers the end-of-playback callback. Invoked
// from the worker goroutine, once per playback.
func (c *Context) SetPlaybackEndCallback(fn func()) {
	c.userEndCB = fn
}

func (c *Context) playbackEnded() {
	if c.runID != "" {
		c.store.EndRun(c.runID)
		c.runID = ""
	}
	if c.userEndCB != nil {
		c.userEndCB()
	}
}

// SetDevice names the controller to connect to: a serial device path,
// "usb", or host[:port].
func (c *Context) SetDevice(name string) int {
	if name == "" {
		return ErrBadArgs
	}
	c.deviceName = name
	return OK
}

// SetScriptDirectory sets the search root for music assets.
func (c *Context) SetScriptDirectory(dir string) {
	c.scriptDir = dir
	c.engine.SetDir(dir)
}

// GetErrorLine returns the 1-based line of the most recent parse or
// schedule error, 0 if none.
func (c *Context) GetErrorLine() int {
	return c.errorLine
}

// Reset drops the token stream, script, and schedule so new sources can be
// compiled.
func (c *Context) Reset() int {
	c.ts.Reset()
	c.scr.Reset()
	c.sched.Reset()
	c.errorLine = 0
	c.rep.Printf("Reset.")
	return OK
}

// TokenizeFile lexes a file (config or script) into the shared stream.
func (c *Context) TokenizeFile(path string) int {
	if path == "" {
		return ErrBadArgs
	}
	c.rep.Printf("Loading file: %s", path)
	toks, err := lexer.ScanFile(path)
	if err != nil {
		return c.fail(err, ErrDevice)
	}
	c.ts.Add(toks)
	return OK
}

// TokenizeString lexes script text into the shared stream.
func (c *Context) TokenizeString(text string) int {
	toks, err := lexer.ScanString(text)
	if err != nil {
		return c.fail(err, ErrParse)
	}
	c.ts.Add(toks)
	return OK
}

// ParseScript parses the buffered tokens and generates the schedule.
func (c *Context) ParseScript() int {
	c.rep.Printf("Parsing script files")
	if err := parser.New(c.ts, c.scr).Parse(); err != nil {
		metrics.ParseErrors.Inc()
		return c.fail(err, ErrParse)
	}
	c.rep.Printf("Parsed file.")
	if err := c.sched.Generate(c.scr); err != nil {
		metrics.ParseErrors.Inc()
		return c.fail(err, ErrSchedule)
	}
	metrics.ScheduleRecords.Add(float64(c.sched.Size()))
	c.rep.Printf("Schedule generated.")
	return OK
}

// fail records the error line and maps the error to a return code.
func (c *Context) fail(err error, fallback int) int {
	var serr *status.Error
	if errors.As(err, &serr) {
		c.errorLine = serr.Line
		switch serr.Kind {
		case status.KindIO:
			return ErrDevice
		case status.KindLex, status.KindParse, status.KindSemantic:
			return ErrParse
		case status.KindSchedule:
			return ErrSchedule
		}
	}
	return fallback
}

// Connect opens the controller named by SetDevice.
func (c *Context) Connect() int {
	if c.deviceName == "" {
		return ErrBadArgs
	}
	if err := c.engine.OpenDevice(c.deviceName); err != nil {
		return ErrDevice
	}
	fw, err := c.engine.CheckVersion()
	if err == nil {
		c.rep.Printf("Controller firmware: %s", fw)
		if prev, perr := c.store.LastFirmware(c.deviceName); perr == nil && prev != "" && prev != fw {
			c.rep.Printf("Firmware changed since last connect (was %s)", prev)
		}
	}
	if err := c.store.RecordConnect(c.deviceName, fw); err != nil {
		c.rep.Errorf("History store: %v", err)
	}
	c.rep.Printf("Connected.")
	return OK
}

// Disconnect drops the controller link. Playback must be stopped first.
func (c *Context) Disconnect() int {
	if c.engine.Running() {
		c.rep.Errorf("Stop playback before disconnecting")
		return ErrBadArgs
	}
	c.engine.CloseDevice()
	c.rep.Printf("Disconnected.")
	return OK
}

// PlaybackStart uploads the strip config and launches the worker,
// optionally with music.
func (c *Context) PlaybackStart(withMusic bool) int {
	c.engine.SetDir(c.scriptDir)
	c.engine.Init(c.scr, c.sched)
	if c.engine.Device() != nil {
		if err := c.engine.InitDevice(); err != nil {
			c.rep.Errorf("Device init failed: %v", err)
			return ErrDevice
		}
	}
	runID, err := c.store.BeginRun(c.deviceName, c.sched.Size(), withMusic)
	if err != nil {
		c.rep.Errorf("History store: %v", err)
	}
	c.runID = runID
	if err := c.engine.Start(withMusic); err != nil {
		c.rep.Errorf("Playback start failed: %v", err)
		return ErrParse
	}
	c.rep.Printf("Playback started.")
	return OK
}

// PlaybackStop interrupts the worker and waits for it to exit.
func (c *Context) PlaybackStop() {
	c.engine.Interrupt()
	c.engine.Wait()
	c.rep.Printf("Playback stopped.")
}

// PlaybackWait blocks until the worker exits on its own.
func (c *Context) PlaybackWait() {
	c.engine.Wait()
}

// LastFirmware reports the firmware most recently seen on device, "" when
// no history is on record.
func (c *Context) LastFirmware(device string) (string, error) {
	return c.store.LastFirmware(device)
}

// RunCount reports how many playback runs are on record for device.
func (c *Context) RunCount(device string) (int, error) {
	return c.store.RunCount(device)
}

// PrintSchedule emits the generated schedule through Status.
func (c *Context) PrintSchedule() {
	c.sched.Print(c.scr, c.rep)
}

// Script exposes the parsed program (read-only).
func (c *Context) Script() *script.Script { return c.scr }

// Schedule exposes the generated schedule (read-only).
func (c *Context) Schedule() *schedule.Schedule { return c.sched }

// Engine exposes the playback engine for device passthrough operations.
func (c *Context) Engine() *playback.Engine { return c.engine }

// Shutdown stops playback, disconnects, and releases the history store.
func (c *Context) Shutdown() {
	if c.engine.Running() {
		c.PlaybackStop()
	}
	c.engine.CloseDevice()
	if c.store != nil {
		c.store.Close()
	}
	c.rep.Printf("Shutdown.")
}
