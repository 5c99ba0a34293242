// Package parser builds the script model from the token stream with a
// single-pass recursive descent, one-token predict sets, no backtracking.
package parser

import (
	"github.com/picolume/lightscript/internal/lexer"
	"github.com/picolume/lightscript/internal/script"
)

// Parser populates a Script from a Stream. Errors propagate as
// status.Error values carrying the offending line.
type Parser struct {
	ts  *lexer.Stream
	scr *script.Script
}

func New(ts *lexer.Stream, scr *script.Script) *Parser {
	return &Parser{ts: ts, scr: scr}
}

// CurrentLine is the line of the token the parser is stopped at.
func (p *Parser) CurrentLine() int { return p.ts.CurrentLine() }

// Parse consumes the whole stream, handling top-level directives and
// commands in any order.
func (p *Parser) Parse() error {
	for {
		switch p.ts.Current() {
		case lexer.TokEOF:
			return nil
		case lexer.TokPhysical:
			if err := p.parsePhysicalStrips(); err != nil {
				return err
			}
		case lexer.TokVirtual:
			if err := p.parseVirtualStrips(); err != nil {
				return err
			}
		case lexer.TokDefanim:
			if err := p.parseDefAnim(); err != nil {
				return err
			}
		case lexer.TokDefstrip:
			if err := p.parseDefStrip(); err != nil {
				return err
			}
		case lexer.TokColor:
			if err := p.parseColorDef(); err != nil {
				return err
			}
		case lexer.TokPalette:
			if err := p.parsePaletteDef(); err != nil {
				return err
			}
		case lexer.TokDefmacro:
			if err := p.parseDefMacro(); err != nil {
				return err
			}
		case lexer.TokMusic:
			if err := p.parseMusic(); err != nil {
				return err
			}
		case lexer.TokIdle:
			if err := p.parseIdle(); err != nil {
				return err
			}
		case lexer.TokDo, lexer.TokCascade, lexer.TokMacro, lexer.TokComment:
			cmd, err := p.parseScriptCmd()
			if err != nil {
				return err
			}
			p.scr.Commands = append(p.scr.Commands, cmd)
		default:
			return p.ts.Errorf("Unexpected '%s' at top level", p.ts.Current())
		}
	}
}

/*
 * Declarations
 */

func (p *Parser) parsePhysicalStrips() error {
	p.ts.Advance() // physical
	if err := p.ts.Match(lexer.TokLBrace); err != nil {
		return err
	}
	for p.ts.Current() == lexer.TokPstrip {
		if err := p.parseOnePhysicalStrip(); err != nil {
			return err
		}
	}
	return p.ts.Match(lexer.TokRBrace)
}

// pstrip <name> channel <int> type <int> start <int> <int> ;
func (p *Parser) parseOnePhysicalStrip() error {
	line := p.ts.CurrentLine()
	p.ts.Advance() // pstrip
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	if _, dup := p.scr.FindPStrip(name); dup {
		return p.ts.SemanticErrorf(line, "Physical strip '%s' is already defined", name)
	}
	if err := p.ts.Match(lexer.TokChannel); err != nil {
		return err
	}
	channel, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokType); err != nil {
		return err
	}
	typ, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokStart); err != nil {
		return err
	}
	start, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	length, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokSemicolon); err != nil {
		return err
	}
	p.scr.PStrips = append(p.scr.PStrips, script.PStrip{
		Name:    name,
		Channel: channel,
		Type:    typ,
		Start:   start,
		Length:  length,
	})
	return nil
}

func (p *Parser) parseVirtualStrips() error {
	p.ts.Advance() // virtual
	if err := p.ts.Match(lexer.TokLBrace); err != nil {
		return err
	}
	for p.ts.Current() == lexer.TokVstrip {
		if err := p.parseOneVirtualStrip(); err != nil {
			return err
		}
	}
	return p.ts.Match(lexer.TokRBrace)
}

// vstrip <name> [ <substrip> , ... ] ;
func (p *Parser) parseOneVirtualStrip() error {
	line := p.ts.CurrentLine()
	p.ts.Advance() // vstrip
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	if p.scr.FindVStrip(name) >= 0 {
		return p.ts.SemanticErrorf(line, "Virtual strip '%s' is already defined", name)
	}
	if len(p.scr.VStrips) >= script.MaxVStrips {
		return p.ts.SemanticErrorf(line, "Too many virtual strips (max %d)", script.MaxVStrips)
	}
	if err := p.ts.Match(lexer.TokLBracket); err != nil {
		return err
	}
	vs := script.VStrip{Name: name}
	for {
		sub, err := p.parseOneSubstrip()
		if err != nil {
			return err
		}
		vs.Substrips = append(vs.Substrips, sub)
		if p.ts.Current() != lexer.TokComma {
			break
		}
		p.ts.Advance()
	}
	if err := p.ts.Match(lexer.TokRBracket); err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokSemicolon); err != nil {
		return err
	}
	p.scr.VStrips = append(p.scr.VStrips, vs)
	return nil
}

// <pstrip-name> ( <start> , <length> [, reverse] )
func (p *Parser) parseOneSubstrip() (script.Substrip, error) {
	line := p.ts.CurrentLine()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return script.Substrip{}, err
	}
	ps, ok := p.scr.FindPStrip(name)
	if !ok {
		return script.Substrip{}, p.ts.SemanticErrorf(line, "Could not find physical strip: '%s'", name)
	}
	if err := p.ts.Match(lexer.TokLParen); err != nil {
		return script.Substrip{}, err
	}
	start, err := p.ts.MatchInt()
	if err != nil {
		return script.Substrip{}, err
	}
	if err := p.ts.Match(lexer.TokComma); err != nil {
		return script.Substrip{}, err
	}
	length, err := p.ts.MatchInt()
	if err != nil {
		return script.Substrip{}, err
	}
	reverse := false
	if p.ts.Current() == lexer.TokComma {
		p.ts.Advance()
		if err := p.ts.Match(lexer.TokReverse); err != nil {
			return script.Substrip{}, err
		}
		reverse = true
	}
	if err := p.ts.Match(lexer.TokRParen); err != nil {
		return script.Substrip{}, err
	}
	if start+length > ps.Length {
		return script.Substrip{}, p.ts.SemanticErrorf(line, "Substrip %d..%d exceeds '%s' length %d", start, start+length, name, ps.Length)
	}
	field, err := script.EncodeSubstrip(start, length, reverse)
	if err != nil {
		return script.Substrip{}, p.ts.SemanticErrorf(line, "%v", err)
	}
	return script.Substrip{PStrip: name, Field: field}, nil
}

// defanim <name> <int>
func (p *Parser) parseDefAnim() error {
	line := p.ts.CurrentLine()
	p.ts.Advance()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	val, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	if err := p.scr.Anims.Define(name, val); err != nil {
		return p.ts.SemanticErrorf(line, "Animation %v", err)
	}
	return nil
}

// defstrip <name> [ <id-list> ]
func (p *Parser) parseDefStrip() error {
	line := p.ts.CurrentLine()
	p.ts.Advance()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokLBracket); err != nil {
		return err
	}
	ids, err := p.parseIDList()
	if err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokRBracket); err != nil {
		return err
	}
	if err := p.scr.StripLists.Define(name, ids); err != nil {
		return p.ts.SemanticErrorf(line, "%v", err)
	}
	return nil
}

// color <name> <hexliteral>
func (p *Parser) parseColorDef() error {
	line := p.ts.CurrentLine()
	p.ts.Advance()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	val, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	if err := p.scr.Colors.Define(name, val|script.ColorFlag); err != nil {
		return p.ts.SemanticErrorf(line, "Color %v", err)
	}
	return nil
}

// palette <name> <int>
func (p *Parser) parsePaletteDef() error {
	line := p.ts.CurrentLine()
	p.ts.Advance()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	val, err := p.ts.MatchInt()
	if err != nil {
		return err
	}
	if err := p.scr.Colors.Define(name, val); err != nil {
		return p.ts.SemanticErrorf(line, "Palette %v", err)
	}
	return nil
}

// defmacro <name> ( <param-list>? ) { <command-list> }
func (p *Parser) parseDefMacro() error {
	line := p.ts.CurrentLine()
	p.ts.Advance()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokLParen); err != nil {
		return err
	}
	var params []string
	if p.ts.Current() == lexer.TokIdent {
		params, err = p.parseIDList()
		if err != nil {
			return err
		}
	}
	if err := p.ts.Match(lexer.TokRParen); err != nil {
		return err
	}
	if err := p.ts.Match(lexer.TokLBrace); err != nil {
		return err
	}
	var body []*script.Command
	for p.ts.Predict(lexer.TokDo, lexer.TokCascade, lexer.TokMacro, lexer.TokComment) {
		cmd, err := p.parseScriptCmd()
		if err != nil {
			return err
		}
		body = append(body, cmd)
	}
	if err := p.ts.Match(lexer.TokRBrace); err != nil {
		return err
	}
	if err := p.scr.Macros.Define(name, params, body); err != nil {
		return p.ts.SemanticErrorf(line, "%v", err)
	}
	return nil
}

// music "file"
func (p *Parser) parseMusic() error {
	p.ts.Advance()
	name, err := p.ts.MatchString()
	if err != nil {
		return err
	}
	p.scr.Music = name
	return nil
}

// idle <anim-name>
func (p *Parser) parseIdle() error {
	p.ts.Advance()
	name, err := p.ts.MatchIdent()
	if err != nil {
		return err
	}
	p.scr.IdleAnim = name
	return nil
}

/*
 * Commands
 */

// parseScriptCmd handles `do`, `cascade`, `macro <name>` and
// `comment "text"` with the shared from/to/count/on/as/option tail.
func (p *Parser) parseScriptCmd() (*script.Command, error) {
	cmd := &script.Command{Line: p.ts.CurrentLine(), Count: 1}

	switch p.ts.Current() {
	case lexer.TokDo:
		cmd.Type = script.CmdDo
		p.ts.Advance()
	case lexer.TokCascade:
		cmd.Type = script.CmdCascade
		p.ts.Advance()
	case lexer.TokMacro:
		cmd.Type = script.CmdMacro
		p.ts.Advance()
		name, err := p.ts.MatchIdent()
		if err != nil {
			return nil, err
		}
		cmd.MacroName = name
		if p.ts.Current() == lexer.TokLParen {
			return nil, p.ts.Errorf("Macro arguments are not supported")
		}
	case lexer.TokComment:
		cmd.Type = script.CmdComment
		p.ts.Advance()
		text, err := p.ts.MatchString()
		if err != nil {
			return nil, err
		}
		cmd.Comment = text
	default:
		return nil, p.ts.Errorf("Expected one of %s but found '%s'",
			lexer.SetStr(lexer.TokDo, lexer.TokCascade, lexer.TokMacro, lexer.TokComment), p.ts.Current())
	}

	if err := p.ts.Match(lexer.TokFrom); err != nil {
		return nil, err
	}
	from, err := p.ts.MatchFloat()
	if err != nil {
		return nil, err
	}
	cmd.From = from
	cmd.To = from

	if p.ts.Current() == lexer.TokTo {
		p.ts.Advance()
		to, err := p.ts.MatchFloat()
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, p.ts.SemanticErrorf(cmd.Line, "'to' time %g is before 'from' time %g", to, from)
		}
		cmd.To = to
	}
	if p.ts.Current() == lexer.TokCount {
		p.ts.Advance()
		n, err := p.ts.MatchInt()
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, p.ts.SemanticErrorf(cmd.Line, "'count' must be at least 1")
		}
		cmd.Count = n
	}
	if p.ts.Current() == lexer.TokOn {
		p.ts.Advance()
		ids, err := p.parseIDRef()
		if err != nil {
			return nil, err
		}
		cmd.Strips = ids
	}
	if p.ts.Current() == lexer.TokAs {
		p.ts.Advance()
		name, err := p.ts.MatchIdent()
		if err != nil {
			return nil, err
		}
		cmd.Animation = name
	}
	if err := p.parseOptionList(cmd); err != nil {
		return nil, err
	}
	if err := p.ts.Match(lexer.TokSemicolon); err != nil {
		return nil, err
	}
	return cmd, nil
}

// parseIDRef handles `on` operands: a single identifier or a bracketed list.
func (p *Parser) parseIDRef() ([]string, error) {
	if p.ts.Current() == lexer.TokLBracket {
		p.ts.Advance()
		ids, err := p.parseIDList()
		if err != nil {
			return nil, err
		}
		if err := p.ts.Match(lexer.TokRBracket); err != nil {
			return nil, err
		}
		return ids, nil
	}
	id, err := p.ts.MatchIdent()
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func (p *Parser) parseIDList() ([]string, error) {
	var ids []string
	for {
		id, err := p.ts.MatchIdent()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if p.ts.Current() != lexer.TokComma {
			return ids, nil
		}
		p.ts.Advance()
	}
}

var optionSet = []lexer.Kind{
	lexer.TokSpeed, lexer.TokBrightness, lexer.TokPalette,
	lexer.TokColor, lexer.TokOption, lexer.TokReverse, lexer.TokAt,
}

func (p *Parser) parseOptionList(cmd *script.Command) error {
	seen := map[lexer.Kind]bool{}
	for p.ts.Predict(optionSet...) {
		k := p.ts.Current()
		if seen[k] {
			return p.ts.Errorf("Option '%s' given more than once", k)
		}
		seen[k] = true
		if err := p.parseOption(cmd, k); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseOption(cmd *script.Command, k lexer.Kind) error {
	p.ts.Advance()
	switch k {
	case lexer.TokSpeed:
		v, err := p.ts.MatchInt()
		if err != nil {
			return err
		}
		cmd.Speed = v
	case lexer.TokBrightness:
		v, err := p.ts.MatchInt()
		if err != nil {
			return err
		}
		cmd.Brightness = v
	case lexer.TokPalette:
		// palette <name> defers to the color table; palette <int> is a
		// bare palette index.
		if p.ts.Current() == lexer.TokIdent {
			name, err := p.ts.MatchIdent()
			if err != nil {
				return err
			}
			cmd.ColorIdent = name
		} else {
			v, err := p.ts.MatchInt()
			if err != nil {
				return err
			}
			cmd.Palette = v
		}
	case lexer.TokColor:
		// color <name> defers to the color table; color <hex> is a
		// literal RGB value.
		if p.ts.Current() == lexer.TokIdent {
			name, err := p.ts.MatchIdent()
			if err != nil {
				return err
			}
			cmd.ColorIdent = name
		} else {
			v, err := p.ts.MatchInt()
			if err != nil {
				return err
			}
			cmd.Palette = v | script.ColorFlag
		}
	case lexer.TokOption:
		v, err := p.ts.MatchInt()
		if err != nil {
			return err
		}
		cmd.Option = v
	case lexer.TokReverse:
		cmd.Reverse = true
	case lexer.TokAt:
		v, err := p.ts.MatchFloat()
		if err != nil {
			return err
		}
		cmd.Delay = v
	}
	return nil
}
