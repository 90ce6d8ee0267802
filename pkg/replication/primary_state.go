package replication

import (
	"math/rand"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// RemoteLearnerState is primary-side bookkeeping for a single node that is
// learning towards becoming a secondary.
type RemoteLearnerState struct {
	// PrepareStartDecree is the decree at which the learner's prepare
	// window begins; invalidDecree until the learner subsystem sets it.
	PrepareStartDecree int64
	// Signature correlates this learner session across RPCs.
	Signature int64
	// TimeoutTask is an opaque handle to a scheduled timeout, owned by the
	// learner subsystem; nil means no timeout is currently scheduled.
	TimeoutTask interface{}
}

const invalidDecree int64 = -1

func newRemoteLearnerState(signatureSource *rand.Rand) *RemoteLearnerState {
	return &RemoteLearnerState{
		PrepareStartDecree: invalidDecree,
		Signature:          signatureSource.Int63(),
	}
}

// primaryState is the bookkeeping held only while this replica's status is
// PRIMARY. It is created on transition to PRIMARY and destroyed on
// transition from PRIMARY. The outstanding reconfiguration RPC handle lives
// on Replica itself (see reconfig_client.go), not here, since an
// ASSIGN_PRIMARY proposal issues one before a primaryState exists.
type primaryState struct {
	membership replicapb.PartitionConfiguration
	learners   map[replicapb.Endpoint]*RemoteLearnerState
	statuses   map[replicapb.Endpoint]replicapb.Status
	rng        *rand.Rand
}

func newPrimaryState(membership replicapb.PartitionConfiguration, rng *rand.Rand) *primaryState {
	ps := &primaryState{
		membership: membership,
		learners:   make(map[replicapb.Endpoint]*RemoteLearnerState),
		statuses:   make(map[replicapb.Endpoint]replicapb.Status),
		rng:        rng,
	}
	if !ps.membership.Primary.IsInvalid() {
		ps.statuses[ps.membership.Primary] = replicapb.StatusPrimary
	}
	for _, s := range ps.membership.Secondaries {
		ps.statuses[s] = replicapb.StatusSecondary
	}
	return ps
}

// cleanup releases the learner and status bookkeeping ahead of this
// primaryState being discarded. ballotChanged distinguishes a
// ballot-changing PRIMARY exit from the same-ballot dip into INACTIVE that
// pauses two-phase commit during a reconfiguration; both are handled
// identically today.
func (ps *primaryState) cleanup(ballotChanged bool) {
	for node := range ps.learners {
		delete(ps.learners, node)
	}
	for node := range ps.statuses {
		delete(ps.statuses, node)
	}
}

// resetMembership replaces the locally tracked authoritative configuration.
// It is invoked whenever an incoming configuration carries a ballot bump or
// changes this replica's own projected status, so that subsequent proposal
// handling compares against the freshest view. lostPrimary records whether
// the new configuration's primary is no longer this replica; it carries no
// behavior here, since the transition table separately handles destroying
// this primaryState when this replica leaves PRIMARY.
func (ps *primaryState) resetMembership(config *replicapb.PartitionConfiguration, lostPrimary bool) {
	ps.membership = *config.Copy()
}
