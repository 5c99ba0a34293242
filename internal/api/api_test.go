package api

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/picolume/lightscript/internal/config"
)

const minimalSrc = `
physical { pstrip p1 channel 0 type 1 start 0 100; }
virtual { vstrip s1 [ p1 (0, 50) ]; vstrip s2 [ p1 (50, 50) ]; }
defanim blink 1
do from 0 as blink on [s1];
`

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx := NewContext(&config.Config{
		ScriptDir:    t.TempDir(),
		TickInterval: 5 * time.Millisecond,
	})
	t.Cleanup(ctx.Shutdown)
	return ctx
}

func TestCompilePipeline(t *testing.T) {
	ctx := newTestContext(t)
	if rc := ctx.TokenizeString(minimalSrc); rc != OK {
		t.Fatalf("tokenize: %d", rc)
	}
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatalf("parse: %d", rc)
	}
	if n := ctx.Schedule().Size(); n != 1 {
		t.Errorf("schedule size: %d", n)
	}
	if line := ctx.GetErrorLine(); line != 0 {
		t.Errorf("error line: %d", line)
	}
}

func TestParseErrorCodeAndLine(t *testing.T) {
	ctx := newTestContext(t)
	ctx.TokenizeString("do from 0 as blink\ncascade from 1;")
	if rc := ctx.ParseScript(); rc != ErrParse {
		t.Fatalf("rc: %d", rc)
	}
	if line := ctx.GetErrorLine(); line != 2 {
		t.Errorf("error line: %d", line)
	}
}

func TestScheduleErrorCodeAndLine(t *testing.T) {
	ctx := newTestContext(t)
	ctx.TokenizeString("defanim blink 1\ndo from 0 as missing on [s1];")
	if rc := ctx.ParseScript(); rc != ErrSchedule {
		t.Fatalf("rc: %d", rc)
	}
	if line := ctx.GetErrorLine(); line != 2 {
		t.Errorf("error line: %d", line)
	}
}

func TestLexErrorIsParseCode(t *testing.T) {
	ctx := newTestContext(t)
	if rc := ctx.TokenizeString("do @ from"); rc != ErrParse {
		t.Fatalf("rc: %d", rc)
	}
	if line := ctx.GetErrorLine(); line != 1 {
		t.Errorf("error line: %d", line)
	}
}

func TestTokenizeMissingFile(t *testing.T) {
	ctx := newTestContext(t)
	if rc := ctx.TokenizeFile(filepath.Join(t.TempDir(), "nope.ls2")); rc != ErrDevice {
		t.Fatalf("rc: %d", rc)
	}
}

func TestResetThenReparseIsIdentical(t *testing.T) {
	ctx := newTestContext(t)
	ctx.TokenizeString(minimalSrc)
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("first parse failed")
	}
	first := append([]float64(nil), recordTimes(ctx)...)

	if rc := ctx.Reset(); rc != OK {
		t.Fatal("reset failed")
	}
	if n := ctx.Schedule().Size(); n != 0 {
		t.Fatalf("size after reset: %d", n)
	}
	ctx.TokenizeString(minimalSrc)
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("second parse failed")
	}
	second := recordTimes(ctx)
	if len(first) != len(second) {
		t.Fatalf("sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("record %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func recordTimes(ctx *Context) []float64 {
	out := make([]float64, ctx.Schedule().Size())
	for i := range out {
		out[i] = ctx.Schedule().At(i).Time
	}
	return out
}

func TestFileAndStringTokenizeEquivalent(t *testing.T) {
	ctx := newTestContext(t)
	path := filepath.Join(t.TempDir(), "show.ls2")
	if err := os.WriteFile(path, []byte(minimalSrc), 0644); err != nil {
		t.Fatal(err)
	}
	if rc := ctx.TokenizeFile(path); rc != OK {
		t.Fatal("tokenize file failed")
	}
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("parse failed")
	}
	fromFile := append([]float64(nil), recordTimes(ctx)...)

	ctx.Reset()
	ctx.TokenizeString(minimalSrc)
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("parse failed")
	}
	fromString := recordTimes(ctx)
	if len(fromFile) != len(fromString) {
		t.Fatalf("sizes differ: %d vs %d", len(fromFile), len(fromString))
	}
	for i := range fromFile {
		if fromFile[i] != fromString[i] {
			t.Errorf("record %d: %v vs %v", i, fromFile[i], fromString[i])
		}
	}
}

func TestConcatenatedConfigAndScript(t *testing.T) {
	ctx := newTestContext(t)
	// Config pass defines the strips and animations, script pass uses them.
	ctx.TokenizeString(`
physical { pstrip p1 channel 0 type 1 start 0 100; }
virtual { vstrip s1 [ p1 (0, 50) ]; }
defanim blink 1
`)
	ctx.TokenizeString(`do from 0 to 2 count 3 as blink on [s1];`)
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("parse failed")
	}
	if n := ctx.Schedule().Size(); n != 3 {
		t.Errorf("size: %d", n)
	}
}

func TestSetDeviceValidation(t *testing.T) {
	ctx := newTestContext(t)
	if rc := ctx.SetDevice(""); rc != ErrBadArgs {
		t.Errorf("empty device: %d", rc)
	}
	if rc := ctx.SetDevice("192.168.1.40"); rc != OK {
		t.Errorf("set device: %d", rc)
	}
}

func TestConnectWithoutDeviceName(t *testing.T) {
	ctx := newTestContext(t)
	if rc := ctx.Connect(); rc != ErrBadArgs {
		t.Errorf("rc: %d", rc)
	}
}

func TestPlaybackWithoutDevice(t *testing.T) {
	ctx := newTestContext(t)
	ctx.TokenizeString(minimalSrc)
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("parse failed")
	}
	var mu sync.Mutex
	ended := 0
	ctx.SetPlaybackEndCallback(func() {
		mu.Lock()
		ended++
		mu.Unlock()
	})
	if rc := ctx.PlaybackStart(false); rc != OK {
		t.Fatalf("start: %d", rc)
	}
	ctx.PlaybackWait()
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := ended
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("end callback count: %d", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHistoryPassthroughsWithoutStore(t *testing.T) {
	ctx := newTestContext(t)
	fw, err := ctx.LastFirmware("/dev/ttyACM0")
	if err != nil || fw != "" {
		t.Errorf("firmware: %q %v", fw, err)
	}
	n, err := ctx.RunCount("/dev/ttyACM0")
	if err != nil || n != 0 {
		t.Errorf("runs: %d %v", n, err)
	}
}

func TestRunCountTracksPlaybacks(t *testing.T) {
	dir := t.TempDir()
	ctx := NewContext(&config.Config{
		ScriptDir:    dir,
		StorePath:    filepath.Join(dir, "history.db"),
		TickInterval: 5 * time.Millisecond,
	})
	t.Cleanup(ctx.Shutdown)
	ctx.SetDevice("192.168.1.40")

	ctx.TokenizeString(minimalSrc)
	if rc := ctx.ParseScript(); rc != OK {
		t.Fatal("parse failed")
	}
	done := make(chan struct{})
	ctx.SetPlaybackEndCallback(func() { close(done) })
	if rc := ctx.PlaybackStart(false); rc != OK {
		t.Fatalf("start: %d", rc)
	}
	ctx.PlaybackWait()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("end callback not fired")
	}

	n, err := ctx.RunCount("192.168.1.40")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("run count: %d", n)
	}
	fw, err := ctx.LastFirmware("192.168.1.40")
	if err != nil || fw != "" {
		t.Errorf("firmware without connect: %q %v", fw, err)
	}
}

func TestDefaultContextLifecycle(t *testing.T) {
	if rc := Init(); rc != OK {
		t.Fatalf("init: %d", rc)
	}
	defer Shutdown()
	if rc := TokenizeString("defanim blink 1\ndo from 0 as blink;"); rc != OK {
		t.Fatal("tokenize failed")
	}
	if rc := ParseScript(); rc != OK {
		t.Fatal("parse failed")
	}
	if rc := Reset(); rc != OK {
		t.Fatal("reset failed")
	}
	if GetErrorLine() != 0 {
		t.Error("error line after reset")
	}
}
