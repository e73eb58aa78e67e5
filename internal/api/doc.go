// Package api provides the HTTP ops API and WebSocket event stream of the
// plantcare service.
//
// It exposes greenhouse state, device configuration, operator commands and
// the reconciler's job table:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Every route except /health requires a bearer token minted by
// "plantcare token". WebSocket clients may instead present a single-use
// ticket obtained from POST /ws-ticket.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
