package replication

import "github.com/liexusong/rdsn-go/pkg/replicapb"

// removeNode removes endpoint from seq if present, preserving the order of
// the remaining elements, and reports whether a removal occurred.
func removeNode(endpoint replicapb.Endpoint, seq []replicapb.Endpoint) ([]replicapb.Endpoint, bool) {
	for i, e := range seq {
		if e == endpoint {
			out := make([]replicapb.Endpoint, 0, len(seq)-1)
			out = append(out, seq[:i]...)
			out = append(out, seq[i+1:]...)
			return out, true
		}
	}
	return seq, false
}

func containsEndpoint(seq []replicapb.Endpoint, endpoint replicapb.Endpoint) bool {
	for _, e := range seq {
		if e == endpoint {
			return true
		}
	}
	return false
}

func endpointSlicesEqual(a, b []replicapb.Endpoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// configMatchesMembership reports whether the identity-bearing fields of a
// proposed configuration (gpid, app type, primary, secondaries) agree with
// the locally known membership.
func configMatchesMembership(proposed, local *replicapb.PartitionConfiguration) bool {
	return proposed.GPID == local.GPID &&
		proposed.AppType == local.AppType &&
		proposed.Primary == local.Primary &&
		endpointSlicesEqual(proposed.Secondaries, local.Secondaries)
}

// assertDisjointNodeSets enforces that a configuration names every node in
// at most one role: the primary is neither a secondary nor a drop-out, and
// no node is both.
func assertDisjointNodeSets(config *replicapb.PartitionConfiguration) {
	if !config.Primary.IsInvalid() {
		assertf(!containsEndpoint(config.Secondaries, config.Primary),
			"configuration lists primary %v among secondaries", config.Primary)
		assertf(!containsEndpoint(config.DropOuts, config.Primary),
			"configuration lists primary %v among drop-outs", config.Primary)
	}
	for _, s := range config.Secondaries {
		assertf(!containsEndpoint(config.DropOuts, s),
			"configuration lists %v as both secondary and drop-out", s)
	}
}

// projectReplicaConfiguration computes the per-replica view of a
// PartitionConfiguration for a given node:
//
//	PRIMARY              if node == config.Primary
//	SECONDARY             if node ∈ config.Secondaries
//	POTENTIAL_SECONDARY  if node ∈ config.DropOuts AND the replica is
//	                     locally known to be learning
//	INACTIVE              otherwise
func projectReplicaConfiguration(
	config *replicapb.PartitionConfiguration, node replicapb.Endpoint, isLearning bool,
) replicapb.ReplicaConfiguration {
	rc := replicapb.ReplicaConfiguration{GPID: config.GPID, Ballot: config.Ballot}
	switch {
	case config.Primary == node:
		rc.Status = replicapb.StatusPrimary
	case containsEndpoint(config.Secondaries, node):
		rc.Status = replicapb.StatusSecondary
	case containsEndpoint(config.DropOuts, node) && isLearning:
		rc.Status = replicapb.StatusPotentialSecondary
	default:
		rc.Status = replicapb.StatusInactive
	}
	return rc
}
