// Package process implements the lifecycle controller for external target
// processes: state inference (running / suspended / not found) and the
// pause, resume, kill and launch transitions.
//
// Suspension itself is delegated to an external suspend utility
// (PsSuspend.exe by default). The controller only supervises that call and
// infers the resulting state from live OS thread data on every query; nothing
// is cached, because the utility or other tools may change a process's state
// at any time.
//
// IsSuspended is a heuristic. A process whose every thread reports a
// "suspended" wait reason is treated as suspended, which cannot always be
// distinguished from a process blocked on an unrelated primitive that reports
// the same wait reason. Callers should treat the result as best-effort.
package process
