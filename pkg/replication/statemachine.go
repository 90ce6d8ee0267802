package replication

import "github.com/liexusong/rdsn-go/pkg/replicapb"

// UpdateConfiguration is the entry point for any incoming authoritative
// PartitionConfiguration (a proposal carrying a ballot bump, a periodic
// sync from the meta-server, or a reconfiguration reply): it projects the
// replica's own role out of the group-wide view and applies it locally.
func (r *Replica) UpdateConfiguration(config *replicapb.PartitionConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateConfigurationLocked(config)
}

func (r *Replica) updateConfigurationLocked(config *replicapb.PartitionConfiguration) {
	assertf(config.Ballot >= r.config.Ballot,
		"update_configuration: incoming ballot %d < local ballot %d", config.Ballot, r.config.Ballot)
	assertDisjointNodeSets(config)

	rc := projectReplicaConfiguration(config, r.self, r.isLearning)

	if config.Ballot > r.config.Ballot || r.config.Status != rc.Status {
		lostPrimary := config.Primary != r.self
		if r.primary != nil {
			r.primary.resetMembership(config, lostPrimary)
		}
	}

	r.lastConfig = config.Copy()
	r.updateLocalConfigurationLocked(rc)
}

// OnConfigurationSync applies a configuration pushed by periodic
// meta-server gossip, dropping it silently if it is stale.
func (r *Replica) OnConfigurationSync(config *replicapb.PartitionConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if config.Ballot < r.config.Ballot {
		r.logger.Debugw("dropping stale configuration sync", r.logFields("incoming_ballot", int64(config.Ballot))...)
		return
	}
	r.updateConfigurationLocked(config)
}

// OnRemove applies a removal notification from the current primary: the
// replica is told to go INACTIVE at a ballot at or above its own. A stale
// request (lower ballot) is dropped; anything else must carry INACTIVE, or
// the caller violated the protocol.
func (r *Replica) OnRemove(rc replicapb.ReplicaConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rc.Ballot < r.config.Ballot {
		r.logger.Debugw("dropping stale remove notification", r.logFields("incoming_ballot", int64(rc.Ballot))...)
		return
	}
	assertf(rc.Status == replicapb.StatusInactive, "on_remove: expected INACTIVE, got %s", rc.Status)
	r.updateLocalConfigurationLocked(rc)
}

// HandleLocalFailure moves the replica to ERROR at the current ballot,
// used by the host when local storage or the write path fails. ERROR is
// sticky, and the resulting notification carries isClosing=true so the
// host begins teardown.
func (r *Replica) HandleLocalFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateLocalConfigurationWithNoBallotChangeLocked(replicapb.StatusError)
}

// updateLocalConfigurationWithNoBallotChangeLocked moves the replica to a
// new status while leaving the ballot untouched, used by the
// reconfiguration client to pause two-phase commit (by entering INACTIVE)
// ahead of issuing an RPC.
func (r *Replica) updateLocalConfigurationWithNoBallotChangeLocked(status replicapb.Status) {
	if r.config.Status == status {
		return
	}
	r.updateLocalConfigurationLocked(replicapb.ReplicaConfiguration{
		GPID:   r.gpidVal,
		Ballot: r.config.Ballot,
		Status: status,
	})
}

// updateLocalConfigurationLocked is the heart of the role state machine:
// it validates the requested ReplicaConfiguration, rejects the handful of
// forbidden transitions, runs the transition's action, and notifies the
// host.
func (r *Replica) updateLocalConfigurationLocked(rc replicapb.ReplicaConfiguration) {
	assertf(rc.Ballot >= r.config.Ballot,
		"update_local_configuration: incoming ballot %d < local ballot %d", rc.Ballot, r.config.Ballot)
	assertf(rc.GPID == r.gpidVal, "update_local_configuration: gpid mismatch")

	old := r.config
	if old.Status == rc.Status && old.Ballot == rc.Ballot {
		return
	}

	// ERROR is sticky: only an explicit reset outside this component may
	// leave it. The attempt is rejected, not fatal, since it typically means
	// the meta-server has not yet observed the failure.
	if old.Status == replicapb.StatusError &&
		(rc.Status == replicapb.StatusSecondary || rc.Status == replicapb.StatusPrimary || rc.Status == replicapb.StatusInactive) {
		r.logger.Debugw("rejecting transition out of ERROR",
			r.logFields("attempted_status", rc.Status.String())...)
		return
	}
	if old.Status == replicapb.StatusPrimary && rc.Status == replicapb.StatusPotentialSecondary {
		assertf(false, "update_local_configuration: PRIMARY -> POTENTIAL_SECONDARY is forbidden")
	}
	if old.Status == replicapb.StatusPotentialSecondary && rc.Status == replicapb.StatusPrimary {
		assertf(false, "update_local_configuration: POTENTIAL_SECONDARY -> PRIMARY is forbidden")
	}

	// A potential secondary may not abandon learning mid-flight; the learner
	// substate refuses a non-forced cleanup and the caller retries later.
	if old.Status == replicapb.StatusPotentialSecondary &&
		(rc.Status == replicapb.StatusInactive || rc.Status == replicapb.StatusError) {
		if r.potentialSecondary != nil && !r.potentialSecondary.Cleanup(false) {
			r.logger.Debugw("rejecting POTENTIAL_SECONDARY exit: still learning",
				r.logFields("attempted_status", rc.Status.String())...)
			return
		}
	}

	if r.prepareList != nil {
		assertf(r.prepareList.MaxDecree() >= r.prepareList.LastCommittedDecree(),
			"update_local_configuration: max prepared decree %d behind committed decree %d",
			r.prepareList.MaxDecree(), r.prepareList.LastCommittedDecree())
	}

	r.config = rc
	r.lastConfigChangeTimeMs = nowMs()

	r.runTransitionAction(old, rc)

	// While a reconfiguration is in flight the replica sits in INACTIVE with
	// two-phase commit paused; the exchange reads as one transition from the
	// pre-reconfiguration status to whatever the reply projects, so the
	// closing decision is made against that status rather than the
	// intermediate INACTIVE.
	oldStatus := old.Status
	if r.reconfig != nil && old.Status == replicapb.StatusInactive {
		oldStatus = r.reconfig.fromStatus
	}

	if oldStatus != rc.Status {
		r.logger.Infow("status changed", r.logFields("from", oldStatus.String(), "to", rc.Status.String())...)
		isClosing := rc.Status == replicapb.StatusError ||
			(rc.Status == replicapb.StatusInactive && rc.Ballot > old.Ballot)
		if r.host != nil {
			r.host.NotifyReplicaStateUpdate(rc, isClosing)
			if isClosing {
				r.host.BeginCloseReplica()
			}
		}
	} else if r.host != nil {
		r.host.NotifyReplicaStateUpdate(rc, false)
	}

	// A transition that leaves INACTIVE, or bumps the ballot underneath a
	// pending reconfiguration, invalidates the outstanding RPC; its retry
	// loop stops on the next attempt.
	if r.reconfig != nil && (rc.Status != replicapb.StatusInactive || rc.Ballot > old.Ballot) {
		r.reconfig.cancel()
		r.reconfig = nil
	}
}

// runTransitionAction executes the per-edge action of the role transition
// table, then creates or destroys primaryState as required.
func (r *Replica) runTransitionAction(old, rc replicapb.ReplicaConfiguration) {
	from, to := old.Status, rc.Status
	switch from {
	case replicapb.StatusPrimary:
		r.cleanupPreparingMutations()
		switch to {
		case replicapb.StatusPrimary:
			r.replayPrepareListLocked()
			return
		case replicapb.StatusSecondary, replicapb.StatusInactive, replicapb.StatusError:
			if r.primary != nil {
				r.primary.cleanup(rc.Ballot != old.Ballot)
				r.primary = nil
			}
			return
		}
	case replicapb.StatusSecondary:
		switch to {
		case replicapb.StatusPrimary:
			r.createPrimaryStateLocked()
			r.initGroupCheck()
			r.replayPrepareListLocked()
		}
		return
	case replicapb.StatusPotentialSecondary:
		switch to {
		case replicapb.StatusSecondary:
			if r.prepareList != nil {
				r.prepareList.Truncate(r.localLastCommittedDecreeLocked())
			}
			if r.potentialSecondary != nil {
				r.potentialSecondary.Cleanup(true)
			}
		case replicapb.StatusInactive, replicapb.StatusError:
			if r.prepareList != nil {
				r.prepareList.Reset(r.localLastCommittedDecreeLocked())
			}
			if r.potentialSecondary != nil {
				r.potentialSecondary.Cleanup(true)
			}
		}
		return
	case replicapb.StatusInactive:
		switch to {
		case replicapb.StatusPrimary:
			r.createPrimaryStateLocked()
			r.initGroupCheck()
			r.replayPrepareListLocked()
		}
		return
	case replicapb.StatusError:
		return
	}
}

func (r *Replica) createPrimaryStateLocked() {
	var membership replicapb.PartitionConfiguration
	if r.lastConfig != nil {
		membership = *r.lastConfig.Copy()
	} else {
		membership = replicapb.PartitionConfiguration{GPID: r.gpidVal, Ballot: r.config.Ballot, Primary: r.self}
	}
	r.primary = newPrimaryState(membership, r.opts.RandSource)
}

// replayPrepareListLocked re-initializes every prepared-but-not-committed
// decree in the prepare list after this replica (re)gains PRIMARY. A decree
// with no surviving entry is re-proposed as an empty placeholder mutation so
// the window stays gap-free. The mutation contents are opaque to this
// component; InitPrepare is the prepare list's own hook to re-enter its
// pipeline for that decree.
func (r *Replica) replayPrepareListLocked() {
	if r.prepareList == nil {
		return
	}
	last := r.prepareList.LastCommittedDecree()
	max := r.prepareList.MaxDecree()
	for d := last + 1; d <= max; d++ {
		m := Mutation{Decree: d}
		if existing, ok := r.prepareList.GetMutationByDecree(d); ok {
			m.Updates = existing.Updates
			m.ClientRequests = existing.ClientRequests
		}
		r.prepareList.InitPrepare(m)
	}
}
