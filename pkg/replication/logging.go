package replication

import "go.uber.org/zap"

// logFields prefixes every structured log line emitted by a Replica with
// its gpid, current status, and ballot.
func (r *Replica) logFields(extra ...interface{}) []interface{} {
	fields := []interface{}{
		"gpid", r.gpidVal.String(),
		"status", r.status().String(),
		"ballot", int64(r.ballot()),
	}
	return append(fields, extra...)
}

func newNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
