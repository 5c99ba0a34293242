package lexer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/picolume/lightscript/internal/status"
)

// ScanFile lexes a script or config file. The returned tokens carry path as
// their file tag.
func ScanFile(path string) ([]Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &status.Error{Kind: status.KindIO, Msg: fmt.Sprintf("could not open %s: %v", path, err)}
	}
	defer f.Close()
	return Scan(f, path)
}

// ScanString lexes in-memory script text. Tokens are tagged with the file
// name "script", matching what the editor hands us.
func ScanString(text string) ([]Token, error) {
	return Scan(strings.NewReader(text), "script")
}

// Scan lexes r to EOF. The token slice never includes the trailing EOF
// token; the stream synthesizes one.
func Scan(r io.Reader, filename string) ([]Token, error) {
	s := &scanner{r: bufio.NewReader(r), file: filename, line: 1}
	var toks []Token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokEOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

type scanner struct {
	r    *bufio.Reader
	file string
	line int
}

func (s *scanner) errf(format string, args ...any) error {
	return &status.Error{Kind: status.KindLex, Line: s.line, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) next() (Token, error) {
	for {
		c, _, err := s.r.ReadRune()
		if err == io.EOF {
			return Token{Kind: TokEOF, File: s.file, Line: s.line}, nil
		}
		if err != nil {
			return Token{}, s.errf("read: %v", err)
		}

		switch {
		case c == '\n':
			s.line++
			continue
		case c == ' ' || c == '\t' || c == '\r':
			continue
		case c == '/':
			// Line comment: // to end of line.
			c2, _, err := s.r.ReadRune()
			if err == nil && c2 == '/' {
				s.skipLine()
				continue
			}
			if err == nil {
				s.r.UnreadRune()
			}
			return Token{}, s.errf("unexpected character '/'")
		case c == '#':
			s.skipLine()
			continue
		case c == '[':
			return s.punct(TokLBracket), nil
		case c == ']':
			return s.punct(TokRBracket), nil
		case c == '{':
			return s.punct(TokLBrace), nil
		case c == '}':
			return s.punct(TokRBrace), nil
		case c == '(':
			return s.punct(TokLParen), nil
		case c == ')':
			return s.punct(TokRParen), nil
		case c == ',':
			return s.punct(TokComma), nil
		case c == ';':
			return s.punct(TokSemicolon), nil
		case c == '"':
			return s.scanString()
		case c >= '0' && c <= '9':
			return s.scanNumber(c)
		case c == '.':
			return s.scanNumber(c)
		case isIdentStart(c):
			return s.scanIdent(c)
		default:
			return Token{}, s.errf("unexpected character %q", c)
		}
	}
}

func (s *scanner) punct(k Kind) Token {
	return Token{Kind: k, File: s.file, Line: s.line}
}

func (s *scanner) skipLine() {
	for {
		c, _, err := s.r.ReadRune()
		if err != nil {
			return
		}
		if c == '\n' {
			s.line++
			return
		}
	}
}

func (s *scanner) scanString() (Token, error) {
	line := s.line
	var sb strings.Builder
	for {
		c, _, err := s.r.ReadRune()
		if err != nil {
			return Token{}, s.errf("unterminated string")
		}
		switch c {
		case '"':
			return Token{Kind: TokString, Str: sb.String(), File: s.file, Line: line}, nil
		case '\n':
			return Token{}, s.errf("unterminated string")
		case '\\':
			e, _, err := s.r.ReadRune()
			if err != nil {
				return Token{}, s.errf("unterminated string")
			}
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				return Token{}, s.errf("bad string escape '\\%c'", e)
			}
		default:
			sb.WriteRune(c)
		}
	}
}

// scanNumber lexes decimal and float literals, plus 0x hex literals which
// lex as TokFloat carrying the integer value (colors are written in hex).
func (s *scanner) scanNumber(first rune) (Token, error) {
	line := s.line
	var sb strings.Builder
	sb.WriteRune(first)

	if first == '0' {
		if c, _, err := s.r.ReadRune(); err == nil {
			if c == 'x' || c == 'X' {
				return s.scanHex(line)
			}
			s.r.UnreadRune()
		}
	}

	for {
		c, _, err := s.r.ReadRune()
		if err != nil {
			break
		}
		if (c >= '0' && c <= '9') || c == '.' {
			sb.WriteRune(c)
			continue
		}
		s.r.UnreadRune()
		break
	}
	f, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil {
		return Token{}, s.errf("bad number '%s'", sb.String())
	}
	return Token{Kind: TokFloat, Float: f, File: s.file, Line: line}, nil
}

func (s *scanner) scanHex(line int) (Token, error) {
	var sb strings.Builder
	for {
		c, _, err := s.r.ReadRune()
		if err != nil {
			break
		}
		if isHexDigit(c) {
			sb.WriteRune(c)
			continue
		}
		s.r.UnreadRune()
		break
	}
	if sb.Len() == 0 {
		return Token{}, s.errf("bad hex literal")
	}
	v, err := strconv.ParseUint(sb.String(), 16, 32)
	if err != nil {
		return Token{}, s.errf("bad hex literal '0x%s'", sb.String())
	}
	return Token{Kind: TokFloat, Float: float64(v), File: s.file, Line: line}, nil
}

func (s *scanner) scanIdent(first rune) (Token, error) {
	line := s.line
	var sb strings.Builder
	sb.WriteRune(first)
	for {
		c, _, err := s.r.ReadRune()
		if err != nil {
			break
		}
		if isIdentStart(c) || (c >= '0' && c <= '9') {
			sb.WriteRune(c)
			continue
		}
		s.r.UnreadRune()
		break
	}
	word := sb.String()
	if k, ok := keywords[word]; ok {
		return Token{Kind: k, File: s.file, Line: line}, nil
	}
	return Token{Kind: TokIdent, Str: word, File: s.file, Line: line}, nil
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
