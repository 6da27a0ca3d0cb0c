package mi

import (
	"strings"
)

// SplitArgs splits an encoded command line into its tokens, undoing the
// quoting applied by Encode. The "--" marker is returned as a token.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inTok   bool
		inQuote bool
	)

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case inQuote && ch == '\\':
			if i+1 >= len(line) {
				return nil, &SyntaxError{Line: line, Offset: i, Msg: "dangling escape"}
			}
			i++
			cur.WriteByte(line[i])
		case inQuote && ch == '"':
			inQuote = false
		case inQuote:
			cur.WriteByte(ch)
		case ch == '"':
			inQuote = true
			inTok = true
		case ch == ' ' || ch == '\t':
			if inTok {
				args = append(args, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteByte(ch)
			inTok = true
		}
	}

	if inQuote {
		return nil, &SyntaxError{Line: line, Offset: len(line), Msg: "unterminated quote"}
	}
	if inTok {
		args = append(args, cur.String())
	}
	return args, nil
}

// ParseCommand parses an encoded MI command line back into a Command. A
// line whose verb does not start with '-' is parsed as a raw command.
func ParseCommand(line string) (*Command, error) {
	args, err := SplitArgs(line)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, &SyntaxError{Line: line, Msg: "empty command"}
	}

	cmd := &Command{Verb: args[0]}
	if !strings.HasPrefix(cmd.Verb, "-") {
		cmd.Raw = true
		cmd.Params = args[1:]
		return cmd, nil
	}

	rest := args[1:]
	for i, a := range rest {
		if a == "--" {
			cmd.Options = rest[:i]
			cmd.Params = rest[i+1:]
			return cmd, nil
		}
	}
	cmd.Options = rest
	return cmd, nil
}
