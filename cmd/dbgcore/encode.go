package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dshills/dbgcore/internal/mi"
)

func newEncodeCmd() *cobra.Command {
	var (
		raw   bool
		token int
	)
	cmd := &cobra.Command{
		Use:   "encode <verb> [options...] [-- params...]",
		Short: "Print the MI line for a command",
		Example: `  dbgcore encode -- -break-insert -- "my file.c:12"
  dbgcore encode --token 5 -- -data-evaluate-expression -- 'a == "x"'
  dbgcore encode --raw info sharedlibrary`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := encodeArgs(args, cmd.ArgsLenAtDash(), raw)
			line, err := c.Encode()
			if err != nil {
				return err
			}
			if token > 0 && !c.Raw {
				line = strconv.Itoa(token) + line
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "encode a CLI command without MI quoting")
	cmd.Flags().IntVar(&token, "token", 0, "prefix the line with a correlation token")
	return cmd
}

// encodeArgs builds a command from positional arguments. cobra strips the
// first "--" and reports its position as dash; a leading "--" only keeps
// verbs starting with '-' from being parsed as flags, so the parameter
// marker is then the next literal "--".
func encodeArgs(args []string, dash int, raw bool) *mi.Command {
	if raw {
		return mi.NewRawCommand(args[0], args[1:]...)
	}

	c := &mi.Command{Verb: args[0]}
	rest := args[1:]
	if dash > 0 {
		c.Options = rest[:dash-1]
		c.Params = rest[dash-1:]
		return c
	}
	for i, a := range rest {
		if a == "--" {
			c.Options = rest[:i]
			c.Params = rest[i+1:]
			return c
		}
	}
	c.Options = rest
	return c
}
