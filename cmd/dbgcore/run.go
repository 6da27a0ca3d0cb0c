package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/config"
	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/metrics"
	"github.com/dshills/dbgcore/internal/mi"
	"github.com/dshills/dbgcore/internal/runctl"
	"github.com/dshills/dbgcore/internal/script"
	"github.com/dshills/dbgcore/internal/session"
	"github.com/dshills/dbgcore/internal/transport"
)

type runOptions struct {
	gdb         string
	address     string
	metricsAddr string
	dialect     string
	filter      string
	trace       bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags] [-- program [args...]]",
		Short: "Start a debugger session and execute MI commands read from stdin",
		Long: `run starts GDB (or connects to one listening on --address), performs
the startup handshake and then executes one command per line of standard
input. Results and async events are printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			opts.apply(cfg)
			logger, err := flags.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, cfg, args, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&opts.gdb, "gdb", "", "path of the gdb executable")
	cmd.Flags().StringVar(&opts.address, "address", "", "connect to an MI server at host:port instead of starting gdb")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.dialect, "dialect", "", "MI dialect name or \"auto\"")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Lua script selecting the async events to print")
	cmd.Flags().BoolVar(&opts.trace, "trace-mi", false, "log every MI line at debug level")
	return cmd
}

func (o *runOptions) apply(cfg *config.Config) {
	if o.gdb != "" {
		cfg.GDB.Path = o.gdb
	}
	if o.address != "" {
		cfg.GDB.Address = o.address
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.dialect != "" {
		cfg.Session.Dialect = o.dialect
	}
	if o.filter != "" {
		cfg.Script.Filter = o.filter
	}
	if o.trace {
		cfg.Log.TraceMI = true
	}
}

func runSession(ctx context.Context, cfg *config.Config, program []string, in io.Reader, stdout io.Writer, logger *zap.Logger) error {
	out := &syncWriter{w: stdout}

	tr, err := openTransport(ctx, cfg, program, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	rec := metrics.NewRecorder(reg, cfg.Metrics.Namespace)

	events, closeFilter, err := eventPrinter(cfg, out, logger)
	if err != nil {
		_ = tr.Close()
		return err
	}
	defer closeFilter()

	s := session.New(tr,
		session.WithConfig(cfg.SessionConfig()),
		session.WithLogger(logger),
		session.WithCommandListener(rec),
		session.WithEventProcessor(events),
		session.WithConsole(out),
	)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Session.ShutdownTimeout.Std()+time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := rec.WatchDispatcher(s.Dispatcher()); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() { _ = srv.Close() }()
	}

	if err := s.Start(ctx); err != nil {
		return err
	}
	if err := s.Dispatcher().Do(ctx, func() {
		s.RunControl().AddListener(func(ev runctl.Event) {
			var key string
			if ev.Context != nil {
				key = ev.Context.Key()
			}
			logger.Info("run control",
				zap.Stringer("event", ev.Kind),
				zap.String("context", key),
				zap.String("reason", ev.Reason))
		})
		logger.Info("session ready",
			zap.String("id", s.ID()),
			zap.Stringer("version", s.Version()),
			zap.Strings("features", s.Features()))
	}); err != nil {
		return err
	}

	return execLines(ctx, s, in, out, logger)
}

func openTransport(ctx context.Context, cfg *config.Config, program []string, logger *zap.Logger) (transport.Transport, error) {
	if cfg.GDB.Address != "" {
		return transport.Dial(ctx, "tcp", cfg.GDB.Address)
	}

	args := append([]string{}, cfg.GDB.Args...)
	args = append(args, "--interpreter="+interpreter(cfg.Session.Dialect))
	if len(program) > 0 {
		args = append(args, "--args")
		args = append(args, program...)
	}
	cmd := exec.Command(cfg.GDB.Path, args...)
	return transport.NewStdio(cmd,
		transport.WithExitGrace(cfg.GDB.ExitGrace.Std()),
		transport.WithStderrLogger(logger))
}

// interpreter maps a dialect name to gdb's --interpreter value. "mi"
// selects the newest MI version the debugger supports.
func interpreter(dialect string) string {
	if dialect == "" || dialect == session.DialectAuto {
		return "mi"
	}
	d, err := control.NewDialectRegistry().Create(dialect)
	if err != nil {
		return "mi"
	}
	return d.Interpreter
}

// eventPrinter returns the processor printing async records, wrapped in
// the configured Lua filter.
func eventPrinter(cfg *config.Config, out *syncWriter, logger *zap.Logger) (control.EventProcessor, func(), error) {
	var p control.EventProcessor = control.EventProcessorFunc(func(rec *mi.Record) {
		if rec.Kind.IsAsync() {
			out.println(compactJSON(rec.JSON()))
		}
	})
	if cfg.Script.Filter == "" {
		return p, func() {}, nil
	}
	f, err := script.LoadFilter(cfg.Script.Filter, script.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return f.Processor(p), func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// execLines runs one command per input line until EOF, cancellation or
// the debugger going away.
func execLines(ctx context.Context, s *session.Session, in io.Reader, out *syncWriter, logger *zap.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			if err := s.Wait(ctx); err != nil {
				logger.Info("debugger exited", zap.Error(err))
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			c, err := mi.ParseCommand(line)
			if err != nil {
				logger.Warn("bad command", zap.String("line", line), zap.Error(err))
				continue
			}
			res, err := s.Exec(ctx, c)
			switch {
			case err != nil:
				out.println(fmt.Sprintf("error: %v", err))
			case res != nil && res.Result != nil:
				out.println(compactJSON(res.Result.JSON()))
			}
		}
	}
}
