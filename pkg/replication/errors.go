package replication

import "fmt"

// assertf panics with a formatted message. Invariant violations are
// programming or protocol errors by peers; silent recovery risks state
// divergence across the group, so they abort the goroutine driving this
// replica rather than attempt to continue.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("replication: invariant violated: "+format, args...))
	}
}
