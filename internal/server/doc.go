// Package server runs the network side of wsgate: a Listener that accepts
// TCP connections and turns them into registered WebSocket sessions, and a
// NetworkManager that owns the listener, the session registry and every
// session goroutine.
//
// # Tick model
//
// Sessions never run handlers on their I/O goroutines. Inbound frames are
// queued per session, and the application calls HandleIncomingMessages once
// per tick to drain every queue on a single goroutine:
//
//	ops, _ := server.ServerOperations(logger)
//	nm := server.New(server.Config{Port: 8080, Workers: 1, Listen: true}, ops,
//	    server.WithLogger(logger))
//	if err := nm.Run(ctx); err != nil {
//	    return err
//	}
//	defer nm.Finish(shutdownCtx)
//
//	ticks := tick.NewManager(50*time.Millisecond, logger)
//	ticks.Add("handleIncomingMessages", func() { nm.HandleIncomingMessages() })
//	ticks.Run(ctx)
//
// # Opcodes
//
// ServerOperations wires PING (echo), DATA_REQUEST (CSV analysis, answered
// with DATA_RESPONSE) and DATA_RESPONSE (logged). ClientOperations handles
// the replies a client expects: echoed PINGs, DATA_RESPONSE and the periodic
// SERVER_STATUS broadcast.
//
// # Status endpoint
//
// StatusRouter exposes /healthz, /sessions and /metrics through a chi router.
// StartStatusServer serves it on a separate address.
package server
