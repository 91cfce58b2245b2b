// Package server exposes the interpreter over HTTP so programs can be run
// remotely and their output followed from a browser or the CLI.
//
// Each submitted run executes on the server and its events are recorded to
// an NDJSON log in the data directory. Clients read the log from any
// sequence number, so a dropped connection resumes where it left off.
//
// # Endpoints
//
//   - POST /auth - Password authentication, returns a bearer token
//   - GET /runs - List runs and their status
//   - POST /runs - Start a run from {"source", "input"}, returns {"id"}
//   - GET /runs/{id}/events - Events from ?from_seq=N; ?wait=1 long-polls
//   - POST /runs/{id}/cancel - Request cooperative cancellation
//   - GET /runs/{id}/ws - Websocket event stream; accepts cancel commands
//   - GET / - Serve the embedded web playground
//
// # Authentication
//
// The server uses password-based authentication with argon2id hashing.
// Clients POST their password to /auth and receive a token that must be
// included in subsequent requests via the Authorization header. The
// websocket endpoint also accepts it as the token query parameter.
// Repeated failures from one address are rate limited, and so are run
// submissions.
package server
