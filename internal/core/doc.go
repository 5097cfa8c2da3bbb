// Package core wires the process together: it loads and watches config,
// opens the job store, builds the executor registry, and runs the scheduler
// under a supervisor.
//
// The executor registry routes job payloads by kind. The built-ins publish
// trigger events on the bus and log them; a host embedding this package
// registers richer handlers (chat delivery, agent turns) before Start.
package core
