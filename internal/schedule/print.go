package schedule

import (
	"fmt"

	"github.com/picolume/lightscript/internal/script"
	"github.com/picolume/lightscript/internal/status"
)

// Print emits the schedule as a table through Status, one line per record.
// This feeds the IDE's schedule view.
func (s *Schedule) Print(scr *script.Script, rep *status.Reporter) {
	for i := range s.recs {
		rep.Printf("%s", formatRecord(scr, &s.recs[i]))
	}
}

func formatRecord(scr *script.Script, rec *Record) string {
	ts := fmtTime(rec.Time)
	if rec.Comment != "" {
		return fmt.Sprintf("Time %8s | Line %3d | %s", ts, rec.Line, rec.Comment)
	}

	anim, ok := scr.Anims.FindVal(rec.Animation)
	if !ok {
		anim = fmt.Sprintf("%d", rec.Animation)
	}

	color, ok := scr.Colors.FindVal(rec.Palette)
	if !ok {
		if rec.Palette&script.ColorFlag != 0 {
			color = fmt.Sprintf("color 0x%06X", rec.Palette&0x00FFFFFF)
		} else {
			color = fmt.Sprintf("palette %2d", rec.Palette)
		}
	}

	dir := 'F'
	if rec.Direction != 0 {
		dir = 'R'
	}
	pal := 'P'
	if rec.Palette&script.ColorFlag != 0 {
		pal = ' '
	}
	return fmt.Sprintf("Time %8s | Line %3d | %-15.15s %c | speed %5d | option %5d | %-14.14s %c | strips %s",
		ts, rec.Line, anim, dir, rec.Speed, rec.Option, color, pal, maskStr(&rec.Mask))
}

func fmtTime(t float64) string {
	minutes := int(t / 60.0)
	seconds := t - float64(minutes)*60.0
	return fmt.Sprintf("%2d:%05.2f", minutes, seconds)
}

const maskDigits = "123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maskStr renders strips 0..30 as a 31-character field, highest id first,
// dots for unset strips.
func maskStr(m *script.StripMask) string {
	const n = 31
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		if m.Test(i) {
			buf[n-1-i] = maskDigits[i]
		} else {
			buf[n-1-i] = '.'
		}
	}
	return string(buf)
}
