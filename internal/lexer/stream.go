package lexer

import (
	"fmt"
	"strings"

	"github.com/picolume/lightscript/internal/status"
)

// Stream buffers tokens from one or more lex passes so config files and the
// user script concatenate into a single parse input. Past end of buffer the
// stream reads as end-of-file.
type Stream struct {
	toks      []Token
	head      int
	errorLine int
	rep       *status.Reporter
}

func NewStream(rep *status.Reporter) *Stream {
	return &Stream{rep: rep}
}

// Reset rewinds and drops all buffered tokens.
func (ts *Stream) Reset() {
	ts.toks = nil
	ts.head = 0
	ts.errorLine = 0
}

// Add appends tokens from one lex pass.
func (ts *Stream) Add(toks []Token) {
	ts.toks = append(ts.toks, toks...)
}

// Len reports the number of buffered tokens.
func (ts *Stream) Len() int { return len(ts.toks) }

// Tokens returns the buffered tokens.
func (ts *Stream) Tokens() []Token { return ts.toks }

// ErrorLine is the line recorded by the most recent Errorf, 0 if none.
func (ts *Stream) ErrorLine() int { return ts.errorLine }

// Current peeks at the next token's kind without consuming it.
func (ts *Stream) Current() Kind {
	if ts.head >= len(ts.toks) {
		return TokEOF
	}
	return ts.toks[ts.head].Kind
}

// CurrentLine is the source line of the next token, 0 at end of stream.
func (ts *Stream) CurrentLine() int {
	if ts.head >= len(ts.toks) {
		return 0
	}
	return ts.toks[ts.head].Line
}

// CurrentFile is the file tag of the next token.
func (ts *Stream) CurrentFile() string {
	if ts.head >= len(ts.toks) {
		return ""
	}
	return ts.toks[ts.head].File
}

func (ts *Stream) cur() Token {
	return ts.toks[ts.head]
}

// Advance consumes the next token and returns its kind.
func (ts *Stream) Advance() Kind {
	if ts.head >= len(ts.toks) {
		return TokEOF
	}
	k := ts.toks[ts.head].Kind
	ts.head++
	return k
}

// Match consumes the next token if it has kind k, else reports a parse error.
func (ts *Stream) Match(k Kind) error {
	if ts.Current() == k {
		ts.Advance()
		return nil
	}
	return ts.Errorf("Expected '%s' but found '%s'", k, ts.Current())
}

// MatchIdent consumes an identifier and returns its text.
func (ts *Stream) MatchIdent() (string, error) {
	if ts.Current() == TokIdent {
		s := ts.cur().Str
		ts.Advance()
		return s, nil
	}
	return "", ts.Errorf("Expected identifier, but found '%s'", ts.Current())
}

// MatchString consumes a string literal and returns its text.
func (ts *Stream) MatchString() (string, error) {
	if ts.Current() == TokString {
		s := ts.cur().Str
		ts.Advance()
		return s, nil
	}
	return "", ts.Errorf("Expected string, but found '%s'", ts.Current())
}

// MatchInt consumes a numeric token, truncating to int.
func (ts *Stream) MatchInt() (int, error) {
	if ts.Current() == TokFloat {
		v := int(ts.cur().Float)
		ts.Advance()
		return v, nil
	}
	return 0, ts.Errorf("Expected number but found '%s'", ts.Current())
}

// MatchFloat consumes a numeric token.
func (ts *Stream) MatchFloat() (float64, error) {
	if ts.Current() == TokFloat {
		v := ts.cur().Float
		ts.Advance()
		return v, nil
	}
	return 0, ts.Errorf("Expected floating-point-value but found '%s'", ts.Current())
}

// Predict reports whether the next token is in set.
func (ts *Stream) Predict(set ...Kind) bool {
	cur := ts.Current()
	for _, k := range set {
		if cur == k {
			return true
		}
	}
	return false
}

// SetStr renders a predict set for error messages.
func SetStr(set ...Kind) string {
	names := make([]string, len(set))
	for i, k := range set {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// Errorf records the current line, emits the message through Status, and
// returns the parse error for the caller to propagate.
func (ts *Stream) Errorf(format string, args ...any) error {
	line := ts.CurrentLine()
	msg := fmt.Sprintf(format, args...)
	ts.errorLine = line
	ts.rep.Errorf("[%s:Line %d] %s", ts.CurrentFile(), line, msg)
	return &status.Error{Kind: status.KindParse, Line: line, Msg: msg}
}

// SemanticErrorf is like Errorf for errors attached to an already-consumed
// construct; line comes from the caller, not the stream cursor.
func (ts *Stream) SemanticErrorf(line int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	ts.errorLine = line
	ts.rep.Errorf("[Line %d]: %s", line, msg)
	return &status.Error{Kind: status.KindSemantic, Line: line, Msg: msg}
}
