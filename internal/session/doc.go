// Package session assembles one debugger connection: the dispatcher that
// owns all session state, the command correlator, the transport goroutines
// and the session-scoped services.
//
// A Session is created over a transport and started, which runs the
// startup sequence against GDB:
//
//	s := session.New(tr, session.WithConfig(cfg), session.WithLogger(logger))
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Shutdown(context.Background())
//
//	out, err := s.Exec(ctx, mi.NewCommand("-break-insert", "main"))
//
// Startup queries the GDB version, picks the protocol dialect, lists the
// debugger's features and runs the configured init commands. A failing
// init command rolls back the ones before it.
package session
