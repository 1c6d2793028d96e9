package supervisor

import "github.com/jonboulle/clockwork"

// Clock is the time source behind the shutdown timer. Tests inject
// clockwork.NewFakeClock() so the 5-second graceful/forced shutdown
// race is deterministic instead of depending on a real sleep.
// Per-connection idle timeouts use the connection's own read deadline
// instead, since a fake clock cannot interrupt a blocked read.
type Clock = clockwork.Clock
