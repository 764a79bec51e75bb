// Package loop drives an agent session through repeated turns.
//
// Each iteration sends a prompt, waits for the session to go idle (retrying
// failed turns with backoff), settles the turn's verdict from the status
// tool and decides whether to stop or continue:
//   - complete or blocked ends the run
//   - progress or an unreadable status continues with a plain prompt
//   - no status at all continues with an escalating reminder
//
// Helpers for the final report (ResultFor, CountMisses, TrailingMisses) are
// exported for the CLI's headless output.
package loop
