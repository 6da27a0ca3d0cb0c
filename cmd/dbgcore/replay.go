package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/mi"
	"github.com/dshills/dbgcore/internal/script"
)

type replayOptions struct {
	filter  string
	charset string
	color   bool
	compact bool
}

func newReplayCmd(flags *globalFlags) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Parse a recorded MI transcript and print its records as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := flags.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if opts.filter == "" {
				opts.filter = cfg.Script.Filter
			}
			if opts.charset == "" {
				opts.charset = cfg.Session.Charset
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return replay(in, cmd.OutOrStdout(), opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Lua script defining filter(record)")
	cmd.Flags().StringVar(&opts.charset, "charset", "", "charset of octal escapes in C strings")
	cmd.Flags().BoolVar(&opts.color, "color", false, "colorize the JSON output")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "print one record per line")
	return cmd
}

func replay(in io.Reader, out io.Writer, opts *replayOptions, logger *zap.Logger) error {
	parser, err := mi.NewParser(opts.charset)
	if err != nil {
		return err
	}

	var filter *script.Filter
	if opts.filter != "" {
		filter, err = script.LoadFilter(opts.filter, script.WithLogger(logger))
		if err != nil {
			return err
		}
		defer filter.Close()
	}

	var bad int
	handler := mi.RecordHandlerFunc(func(rec *mi.Record, err error) {
		if err != nil {
			bad++
			logger.Warn("unparsable line", zap.Error(err))
			return
		}
		if filter != nil {
			ok, err := filter.Match(rec)
			if err != nil {
				logger.Warn("filter failed", zap.Error(err))
			}
			if !ok && err == nil {
				return
			}
		}
		fmt.Fprint(out, formatJSON(rec.JSON(), opts.compact, opts.color))
	})

	d := mi.NewDemux(handler, mi.WithParser(parser))
	if _, err := d.ReadFrom(in); err != nil {
		return err
	}
	if bad > 0 {
		logger.Info("replay finished with errors", zap.Int("unparsable", bad))
	}
	return nil
}

func compactJSON(doc string) string {
	return string(pretty.Ugly([]byte(doc)))
}

func formatJSON(doc string, compact, color bool) string {
	b := []byte(doc)
	if compact {
		b = append(pretty.Ugly(b), '\n')
	} else {
		b = pretty.Pretty(b)
	}
	if color {
		b = pretty.Color(b, nil)
	}
	return string(b)
}
