// Package health serves the operational probes on the metrics listener.
//
//   - /live always answers 200 while the process runs.
//   - /ready runs the registered checks (the store ping in practice) and
//     answers 503 if any fails or the server is draining.
//   - /health returns the same checks with uptime for humans.
package health
