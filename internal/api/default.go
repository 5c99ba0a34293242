package api

import (
	"github.com/picolume/lightscript/internal/playback"
	"github.com/picolume/lightscript/internal/status"
)

// std is the default context behind the package-level functions, which
// mirror the single-session C-style surface the IDE binds to.
var std *Context

// Init performs once-only initialization of the default context.
func Init() int {
	if std == nil {
		std = NewContext(nil)
	}
	return OK
}

// Default returns the default context, nil before Init.
func Default() *Context { return std }

func Reset() int {
	if std == nil {
		return ErrBadArgs
	}
	return std.Reset()
}

func Shutdown() {
	if std == nil {
		return
	}
	std.Shutdown()
	std = nil
}

func SetStatusCallback(fn status.Func) {
	if std != nil {
		std.SetStatusCallback(fn)
	}
}

func SetTimeCallback(fn playback.TimeFunc) {
	if std != nil {
		std.SetTimeCallback(fn)
	}
}

func SetPlaybackEndCallback(fn func()) {
	if std != nil {
		std.SetPlaybackEndCallback(fn)
	}
}

func SetDevice(name string) int {
	if std == nil {
		return ErrBadArgs
	}
	return std.SetDevice(name)
}

func SetScriptDirectory(dir string) {
	if std != nil {
		std.SetScriptDirectory(dir)
	}
}

func TokenizeFile(path string) int {
	if std == nil {
		return ErrBadArgs
	}
	return std.TokenizeFile(path)
}

func TokenizeString(text string) int {
	if std == nil {
		return ErrBadArgs
	}
	return std.TokenizeString(text)
}

func ParseScript() int {
	if std == nil {
		return ErrBadArgs
	}
	return std.ParseScript()
}

func GetErrorLine() int {
	if std == nil {
		return 0
	}
	return std.GetErrorLine()
}

func Connect() int {
	if std == nil {
		return ErrBadArgs
	}
	return std.Connect()
}

func Disconnect() int {
	if std == nil {
		return OK
	}
	return std.Disconnect()
}

func PlaybackStart(withMusic bool) int {
	if std == nil {
		return ErrBadArgs
	}
	return std.PlaybackStart(withMusic)
}

func PlaybackStop() {
	if std != nil {
		std.PlaybackStop()
	}
}

func PlaybackWait() {
	if std != nil {
		std.PlaybackWait()
	}
}
