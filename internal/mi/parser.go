package mi

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const promptText = "(gdb)"

// Parser turns output lines into Records. The zero value decodes C strings
// as UTF-8.
type Parser struct {
	decoder *encoding.Decoder
}

// NewParser returns a parser that decodes C string bytes from the named
// IANA character set, for example "ISO-8859-1". An empty name or "UTF-8"
// selects UTF-8.
func NewParser(charset string) (*Parser, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return &Parser{}, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("lookup charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", charset)
	}
	if enc == unicode.UTF8 {
		return &Parser{}, nil
	}
	return &Parser{decoder: enc.NewDecoder()}, nil
}

var defaultParser = &Parser{}

// ParseRecord parses one output line with UTF-8 decoding.
func ParseRecord(line string) (*Record, error) {
	return defaultParser.Parse(line)
}

// Parse parses one output line. The line terminator must already be
// removed. Lines that do not follow the MI grammar are returned as raw
// records without error. A malformed result or async record yields an
// error together with a partial record carrying its kind and token.
func (p *Parser) Parse(line string) (*Record, error) {
	rec := &Record{Kind: KindRaw, Text: line, Line: line}

	if strings.TrimRight(line, " ") == promptText {
		rec.Kind = KindPrompt
		rec.Text = ""
		return rec, nil
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == len(line) {
		return rec, nil
	}

	var kind Kind
	switch line[i] {
	case '^':
		kind = KindResult
	case '*':
		kind = KindExec
	case '+':
		kind = KindStatus
	case '=':
		kind = KindNotify
	case '~':
		kind = KindConsole
	case '@':
		kind = KindTarget
	case '&':
		kind = KindLog
	default:
		return rec, nil
	}

	if kind.IsStream() {
		if i != 0 {
			return rec, nil
		}
		b, end, err := unquoteBytes(line, 1)
		if err != nil || end != len(line) {
			// Not a well-formed stream record; pass it through untouched.
			return rec, nil
		}
		rec.Kind = kind
		rec.Text = p.decode(b)
		return rec, nil
	}

	if i > 0 {
		tok, err := strconv.Atoi(line[:i])
		if err != nil {
			rec.Kind = kind
			rec.Text = ""
			return rec, &SyntaxError{Line: line, Offset: 0, Msg: "token out of range"}
		}
		rec.Token = tok
		rec.HasToken = true
	}
	rec.Kind = kind
	rec.Text = ""

	s := &scanner{line: line, pos: i + 1, p: p}
	start := s.pos
	for s.pos < len(line) && line[s.pos] != ',' {
		s.pos++
	}
	rec.Class = line[start:s.pos]
	if rec.Class == "" {
		return rec, s.errorf("missing record class")
	}
	for s.pos < len(line) {
		if !s.consume(',') {
			return rec, s.errorf("expected ','")
		}
		r, err := s.result()
		if err != nil {
			return rec, err
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, nil
}

func (p *Parser) decode(b []byte) string {
	if p.decoder == nil {
		if utf8.Valid(b) {
			return string(b)
		}
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	out, err := p.decoder.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

type scanner struct {
	line string
	pos  int
	p    *Parser
}

func (s *scanner) errorf(format string, args ...any) error {
	return &SyntaxError{Line: s.line, Offset: s.pos, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) peek() byte {
	if s.pos < len(s.line) {
		return s.line[s.pos]
	}
	return 0
}

func (s *scanner) consume(c byte) bool {
	if s.peek() == c {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) result() (Result, error) {
	start := s.pos
	for s.pos < len(s.line) && s.line[s.pos] != '=' {
		switch s.line[s.pos] {
		case ',', '{', '}', '[', ']', '"':
			return Result{}, s.errorf("expected '=' after name")
		}
		s.pos++
	}
	name := s.line[start:s.pos]
	if name == "" {
		return Result{}, s.errorf("empty result name")
	}
	if !s.consume('=') {
		return Result{}, s.errorf("expected '='")
	}
	v, err := s.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (s *scanner) value() (Value, error) {
	switch s.peek() {
	case '"':
		b, end, err := unquoteBytes(s.line, s.pos)
		if err != nil {
			return nil, err
		}
		s.pos = end
		return Const(s.p.decode(b)), nil
	case '{':
		return s.tuple()
	case '[':
		return s.list()
	default:
		return nil, s.errorf("expected value")
	}
}

func (s *scanner) tuple() (Value, error) {
	s.pos++
	t := Tuple{}
	if s.consume('}') {
		return t, nil
	}
	for {
		r, err := s.result()
		if err != nil {
			return nil, err
		}
		t = append(t, r)
		if s.consume('}') {
			return t, nil
		}
		if !s.consume(',') {
			return nil, s.errorf("expected ',' or '}'")
		}
	}
}

func (s *scanner) list() (Value, error) {
	s.pos++
	l := List{}
	if s.consume(']') {
		return l, nil
	}
	named := false
	switch s.peek() {
	case '"', '{', '[':
	default:
		named = true
	}
	for {
		if named {
			r, err := s.result()
			if err != nil {
				return nil, err
			}
			l.Results = append(l.Results, r)
		} else {
			v, err := s.value()
			if err != nil {
				return nil, err
			}
			l.Values = append(l.Values, v)
		}
		if s.consume(']') {
			return l, nil
		}
		if !s.consume(',') {
			return nil, s.errorf("expected ',' or ']'")
		}
	}
}
