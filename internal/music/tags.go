package music

import (
	"os"

	"github.com/tmthrgd/id3v2"
)

// Describe reads the track's ID3 title and artist for status display.
// Returns "" when the file has no usable tag.
func Describe(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	frames, err := id3v2.Scan(f)
	if err != nil {
		return ""
	}
	title := frameText(frames, id3v2.FrameTIT2)
	artist := frameText(frames, id3v2.FrameTPE1)
	switch {
	case title != "" && artist != "":
		return title + " - " + artist
	case title != "":
		return title
	default:
		return ""
	}
}

func frameText(frames id3v2.Frames, id id3v2.FrameID) string {
	f := frames.Lookup(id)
	if f == nil {
		return ""
	}
	s, err := f.Text()
	if err != nil {
		return ""
	}
	return s
}
