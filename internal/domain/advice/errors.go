package advice

import "errors"

// ErrInvalidContext indicates a context the engine cannot analyse at all
// (nil, unknown decision type, unknown funnel stage).
var ErrInvalidContext = errors.New("invalid advice context")

// ErrNoAdvisors indicates a convene against an empty registry. This is the
// one orchestrator-fatal condition; everything advisor-local degrades
// instead.
var ErrNoAdvisors = errors.New("no advisors registered")
