// Package schedule lowers a parsed script into the flat, time-ordered event
// list the playback engine dispatches.
package schedule

import (
	"fmt"
	"sort"

	"github.com/picolume/lightscript/internal/script"
	"github.com/picolume/lightscript/internal/status"
)

// maxNestLevel bounds strip-list expansion so self-referencing lists fail
// instead of recursing forever.
const maxNestLevel = 8

// Record is one fully-resolved playback event. Time is seconds since the
// playback epoch. Comment records carry text and no animation.
type Record struct {
	Time       float64
	Line       int
	Comment    string
	Animation  int
	Speed      int
	Brightness int
	// Palette holds a palette index, or a literal RGB color when
	// script.ColorFlag is set.
	Palette   int
	Direction int
	Option    int
	Mask      script.StripMask
}

// Schedule is the stable time-sorted record list. Immutable once Generate
// returns nil, until Reset.
type Schedule struct {
	recs      []Record
	scr       *script.Script
	rep       *status.Reporter
	nestLevel int
}

func New(rep *status.Reporter) *Schedule {
	return &Schedule{rep: rep}
}

func (s *Schedule) Size() int { return len(s.recs) }

func (s *Schedule) At(i int) *Record { return &s.recs[i] }

// Records returns the sorted record slice. Callers must not mutate it while
// playback runs.
func (s *Schedule) Records() []Record { return s.recs }

// Reset discards all records.
func (s *Schedule) Reset() {
	s.recs = nil
}

// Generate lowers scr's command list into the schedule. On error the partial
// schedule is discarded and the error carries the offending source line.
func (s *Schedule) Generate(scr *script.Script) error {
	s.scr = scr
	s.recs = nil
	for _, cmd := range scr.Commands {
		if err := s.insert(0.0, cmd); err != nil {
			s.recs = nil
			return err
		}
	}
	// Bulk generation, then one stable sort: ties keep lowering order.
	sort.SliceStable(s.recs, func(i, j int) bool {
		return s.recs[i].Time < s.recs[j].Time
	})
	return nil
}

func (s *Schedule) insert(baseTime float64, c *script.Command) error {
	switch c.Type {
	case script.CmdCascade:
		return s.insertCascade(baseTime, c)
	case script.CmdDo:
		return s.insertDo(baseTime, c)
	case script.CmdMacro:
		return s.insertMacro(baseTime, c)
	case script.CmdComment:
		return s.insertComment(baseTime, c)
	}
	return nil
}

// newRecord fills the fields shared by every lowering of c.
func (s *Schedule) newRecord(baseTime float64, c *script.Command) Record {
	rec := Record{
		Time:       baseTime + c.From,
		Line:       c.Line,
		Speed:      c.Speed,
		Brightness: c.Brightness,
		Option:     c.Option,
	}
	if c.Reverse {
		rec.Direction = 1
	}
	return rec
}

// insertDo spreads count records evenly across [from, to], both endpoints
// included. A count of one lands on from.
func (s *Schedule) insertDo(baseTime float64, c *script.Command) error {
	deltaTime := c.To - c.From
	for i := 0; i < c.Count; i++ {
		t := 0.0
		if c.Count > 1 {
			t = deltaTime * float64(i) / float64(c.Count-1)
		}
		rec := s.newRecord(baseTime+t, c)
		if c.Strips != nil {
			s.nestLevel = 0
			if err := s.stripMask(c, c.Strips, &rec.Mask); err != nil {
				return err
			}
		}
		if err := s.setAnimation(c, &rec); err != nil {
			return err
		}
		if err := s.setColor(c, &rec); err != nil {
			return err
		}
		s.recs = append(s.recs, rec)
	}
	return nil
}

// insertCascade staggers one record per resolved strip, delay apart, in
// strip-list order.
func (s *Schedule) insertCascade(baseTime float64, c *script.Command) error {
	vec, err := s.stripVec(c, c.Strips)
	if err != nil {
		return err
	}
	for i, id := range vec {
		rec := s.newRecord(baseTime, c)
		if err := s.setAnimation(c, &rec); err != nil {
			return err
		}
		if err := s.setColor(c, &rec); err != nil {
			return err
		}
		rec.Mask.Set(id)
		rec.Time += c.Delay * float64(i)
		s.recs = append(s.recs, rec)
	}
	return nil
}

func (s *Schedule) insertComment(baseTime float64, c *script.Command) error {
	rec := s.newRecord(baseTime, c)
	rec.Comment = c.Comment
	s.recs = append(s.recs, rec)
	return nil
}

// insertMacro expands the named macro's body with the invocation's from as
// the base time, so nested macros compose additively.
func (s *Schedule) insertMacro(baseTime float64, c *script.Command) error {
	m, ok := s.scr.Macros.Find(c.MacroName)
	if !ok {
		return s.errf(c.Line, "Macro not defined: '%s'", c.MacroName)
	}
	for _, mc := range m.Body {
		if err := s.insert(baseTime+c.From, mc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schedule) setAnimation(c *script.Command, rec *Record) error {
	v, ok := s.scr.Anims.Find(c.Animation)
	if !ok {
		return s.errf(c.Line, "Could not find animation '%s', is it defined in your config file?", c.Animation)
	}
	rec.Animation = v
	return nil
}

func (s *Schedule) setColor(c *script.Command, rec *Record) error {
	if c.ColorIdent != "" {
		v, ok := s.scr.Colors.Find(c.ColorIdent)
		if !ok {
			return s.errf(c.Line, "Color not found: '%s'", c.ColorIdent)
		}
		rec.Palette = v
		return nil
	}
	rec.Palette = c.Palette
	return nil
}

// stripMask resolves an id list into a strip bitmask, flattening nested
// strip lists depth-first.
func (s *Schedule) stripMask(c *script.Command, ids []string, mask *script.StripMask) error {
	if s.nestLevel == 0 {
		mask.Clear()
	}
	s.nestLevel++
	defer func() { s.nestLevel-- }()

	for _, id := range ids {
		if sublist, ok := s.scr.StripLists.Find(id); ok {
			// Exactly maxNestLevel levels of containment are legal;
			// only going past that is an error.
			if s.nestLevel > maxNestLevel {
				return s.errf(c.Line, "Strip lists nested too deep, are you putting a list in itself?")
			}
			if err := s.stripMask(c, sublist, mask); err != nil {
				return err
			}
		} else if v := s.scr.FindVStrip(id); v >= 0 {
			mask.Set(v)
		} else {
			return s.errf(c.Line, "Could not find strip name: '%s'", id)
		}
	}
	return nil
}

// stripVec resolves an id list into an ordered strip-id vector for cascade,
// preserving list order through nested expansion.
func (s *Schedule) stripVec(c *script.Command, ids []string) ([]int, error) {
	s.nestLevel = 0
	var vec []int
	if err := s.stripVec1(c, ids, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (s *Schedule) stripVec1(c *script.Command, ids []string, vec *[]int) error {
	s.nestLevel++
	defer func() { s.nestLevel-- }()

	for _, id := range ids {
		if sublist, ok := s.scr.StripLists.Find(id); ok {
			// Same bound as stripMask: more than maxNestLevel levels
			// of containment is an error.
			if s.nestLevel > maxNestLevel {
				return s.errf(c.Line, "Strip lists nested too deep, are you putting a list in itself?")
			}
			if err := s.stripVec1(c, sublist, vec); err != nil {
				return err
			}
		} else if v := s.scr.FindVStrip(id); v >= 0 {
			*vec = append(*vec, v)
		} else {
			return s.errf(c.Line, "Could not find strip name: '%s'", id)
		}
	}
	return nil
}

func (s *Schedule) errf(line int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	s.rep.Errorf("[Line %d]: %s", line, msg)
	return &status.Error{Kind: status.KindSchedule, Line: line, Msg: msg}
}
