package mi

import (
	"strings"
	"unicode"

	"github.com/dshills/dbgcore/internal/dmcontext"
)

// Command is an MI command waiting to be sent.
type Command struct {
	// Verb is the operation, for example "-break-insert". For a raw
	// command it is the CLI command name, for example "info".
	Verb string

	// Options precede the parameter marker.
	Options []string

	// Params follow the "--" marker.
	Params []string

	// Context targets the command at a thread or stack frame. Nil means
	// whatever the debugger currently has selected.
	Context dmcontext.Context

	// Raw marks a CLI command. Raw commands are sent without a correlation
	// token and without the "--" marker, and no result record is expected.
	Raw bool
}

// NewCommand creates an MI command with the given parameters.
func NewCommand(verb string, params ...string) *Command {
	return &Command{Verb: verb, Params: params}
}

// NewRawCommand creates a CLI command sent verbatim.
func NewRawCommand(verb string, args ...string) *Command {
	return &Command{Verb: verb, Params: args, Raw: true}
}

// WithOptions returns c with opts appended to its options.
func (c *Command) WithOptions(opts ...string) *Command {
	c.Options = append(c.Options, opts...)
	return c
}

// WithContext returns c targeted at ctx.
func (c *Command) WithContext(ctx dmcontext.Context) *Command {
	c.Context = ctx
	return c
}

// Clone returns a copy whose slices can be modified independently.
func (c *Command) Clone() *Command {
	out := *c
	out.Options = append([]string(nil), c.Options...)
	out.Params = append([]string(nil), c.Params...)
	return &out
}

// Encode serializes the command without correlation token or line
// terminator. It fails when the command cannot be represented on a single
// line.
func (c *Command) Encode() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(c.Verb)
	for _, opt := range c.Options {
		sb.WriteByte(' ')
		sb.WriteString(quoteArg(opt))
	}
	if len(c.Params) > 0 {
		if !c.Raw {
			sb.WriteString(" --")
		}
		for _, p := range c.Params {
			sb.WriteByte(' ')
			sb.WriteString(quoteArg(p))
		}
	}
	return sb.String(), nil
}

// String returns the encoded command, or the verb if it cannot be encoded.
func (c *Command) String() string {
	s, err := c.Encode()
	if err != nil {
		return c.Verb
	}
	return s
}

func (c *Command) validate() error {
	switch {
	case c.Verb == "":
		return &EncodeError{Reason: "empty verb"}
	case strings.ContainsAny(c.Verb, " \t\r\n\x00\"\\"):
		return &EncodeError{Verb: c.Verb, Reason: "verb contains whitespace or special characters"}
	case !c.Raw && !strings.HasPrefix(c.Verb, "-"):
		return &EncodeError{Verb: c.Verb, Reason: "MI verb must start with '-'"}
	}
	for _, tok := range c.Options {
		if err := validateArg(c.Verb, tok); err != nil {
			return err
		}
	}
	for _, tok := range c.Params {
		if err := validateArg(c.Verb, tok); err != nil {
			return err
		}
	}
	return nil
}

func validateArg(verb, tok string) error {
	if strings.ContainsAny(tok, "\r\n\x00") {
		return &EncodeError{Verb: verb, Token: tok, Reason: "line terminators and NUL cannot be sent"}
	}
	return nil
}

// needsQuoting reports whether tok must be quoted on the wire.
func needsQuoting(tok string) bool {
	if tok == "" {
		return true
	}
	for _, r := range tok {
		if r == '"' || r == '\\' || unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// quoteArg quotes tok if required. An empty token is sent as "" so that it
// survives the round trip.
func quoteArg(tok string) string {
	if !needsQuoting(tok) {
		return tok
	}
	var sb strings.Builder
	sb.Grow(len(tok) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(tok); i++ {
		if tok[i] == '"' || tok[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(tok[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
