package replication

import (
	"context"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// OnConfigProposal handles an incoming ConfigurationUpdateRequest from the
// meta-server: stale proposals are dropped, a ballot-ahead proposal is
// applied to the local state machine first, and the proposal's type is then
// dispatched to the matching handler.
func (r *Replica) OnConfigProposal(proposal *replicapb.ConfigurationUpdateRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if proposal.Config.Ballot < r.config.Ballot {
		r.logger.Debugw("dropping stale config proposal",
			r.logFields("proposal_type", proposal.Type.String(), "incoming_ballot", int64(proposal.Config.Ballot))...)
		return
	}
	if proposal.Config.Ballot > r.config.Ballot {
		r.updateConfigurationLocked(proposal.Config)
	}

	switch proposal.Type {
	case replicapb.ConfigTypeAssignPrimary:
		r.assignPrimaryLocked(proposal)
	case replicapb.ConfigTypeAddSecondary:
		r.addPotentialSecondaryLocked(proposal)
	case replicapb.ConfigTypeDowngradeToSecondary:
		r.downgradeToSecondaryOnPrimaryLocked(proposal)
	case replicapb.ConfigTypeDowngradeToInactive:
		r.downgradeToInactiveOnPrimaryLocked(proposal)
	case replicapb.ConfigTypeRemove:
		r.removeOnPrimaryLocked(proposal)
	default:
		assertf(false, "on_config_proposal: unexpected proposal type %s", proposal.Type)
	}
}

// assignPrimaryLocked handles ASSIGN_PRIMARY: the meta-server is asking
// this replica, addressed by name, to become PRIMARY.
func (r *Replica) assignPrimaryLocked(proposal *replicapb.ConfigurationUpdateRequest) {
	assertf(proposal.Node == r.self, "assign_primary: proposal addressed to %v, not self %v", proposal.Node, r.self)

	if r.config.Status == replicapb.StatusPrimary {
		r.logger.Warnw("assign_primary: already primary", r.logFields()...)
		return
	}

	cfg := proposal.Config.Copy()
	cfg.Primary = r.self
	cfg.Secondaries, _ = removeNode(r.self, cfg.Secondaries)
	cfg.DropOuts, _ = removeNode(r.self, cfg.DropOuts)

	r.updateConfigurationOnMetaServerLocked(replicapb.ConfigTypeAssignPrimary, proposal.Node, cfg)
}

// addPotentialSecondaryLocked handles ADD_SECONDARY: the primary is told to
// start bringing up a new learner. Duplicate proposals for a node already
// known as a member or learner are dropped.
func (r *Replica) addPotentialSecondaryLocked(proposal *replicapb.ConfigurationUpdateRequest) {
	if proposal.Config.Ballot != r.config.Ballot || r.config.Status != replicapb.StatusPrimary || r.primary == nil {
		return
	}
	if !configMatchesMembership(proposal.Config, &r.primary.membership) {
		return
	}
	node := proposal.Node
	if node == r.primary.membership.Primary || containsEndpoint(r.primary.membership.Secondaries, node) {
		return
	}
	if _, exists := r.primary.learners[node]; exists {
		return
	}

	learner := newRemoteLearnerState(r.primary.rng)
	r.primary.learners[node] = learner
	r.primary.statuses[node] = replicapb.StatusPotentialSecondary

	rc := projectReplicaConfiguration(&r.primary.membership, node, true)
	rc.Status = replicapb.StatusPotentialSecondary
	req := &replicapb.GroupCheckRequest{
		AppType:             r.primary.membership.AppType,
		Node:                node,
		Config:              rc,
		LastCommittedDecree: r.primary.membership.LastCommittedDecree,
		LearnerSignature:    learner.Signature,
	}

	if r.metaClient == nil {
		return
	}
	client := r.metaClient
	timeout := r.opts.CoordinatorRPCCallTimeout
	logger := r.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := client.LearnAddLearner(ctx, node, req); err != nil {
			logger.Warnw("RPC_LEARN_ADD_LEARNER failed", "node", node.String(), "error", err)
		}
	}()
}

// downgradeToSecondaryOnPrimaryLocked handles DOWNGRADE_TO_SECONDARY: the
// current primary steps down into the secondaries list, leaving the group
// without a primary until the meta-server assigns a new one.
func (r *Replica) downgradeToSecondaryOnPrimaryLocked(proposal *replicapb.ConfigurationUpdateRequest) {
	if !r.primaryProposalPreconditionsLocked(proposal) {
		return
	}
	if proposal.Node != proposal.Config.Primary {
		return
	}
	cfg := proposal.Config.Copy()
	cfg.Primary = replicapb.InvalidEndpoint
	cfg.Secondaries = append(cfg.Secondaries, proposal.Node)
	r.updateConfigurationOnMetaServerLocked(replicapb.ConfigTypeDowngradeToSecondary, proposal.Node, cfg)
}

// downgradeToInactiveOnPrimaryLocked handles DOWNGRADE_TO_INACTIVE: a
// primary or secondary is demoted to INACTIVE and recorded as a drop-out.
func (r *Replica) downgradeToInactiveOnPrimaryLocked(proposal *replicapb.ConfigurationUpdateRequest) {
	if !r.primaryProposalPreconditionsLocked(proposal) {
		return
	}
	cfg := proposal.Config.Copy()
	if proposal.Node == cfg.Primary {
		cfg.Primary = replicapb.InvalidEndpoint
	} else {
		var ok bool
		cfg.Secondaries, ok = removeNode(proposal.Node, cfg.Secondaries)
		assertf(ok, "downgrade_to_inactive_on_primary: node %v not found among secondaries", proposal.Node)
	}
	cfg.DropOuts = append(cfg.DropOuts, proposal.Node)
	r.updateConfigurationOnMetaServerLocked(replicapb.ConfigTypeDowngradeToInactive, proposal.Node, cfg)
}

// removeOnPrimaryLocked handles REMOVE: a node is fully evicted from the
// group, regardless of which role it last held. A potential secondary is
// tracked in DropOuts rather than Secondaries, hence the asymmetric lookup.
func (r *Replica) removeOnPrimaryLocked(proposal *replicapb.ConfigurationUpdateRequest) {
	if !r.primaryProposalPreconditionsLocked(proposal) {
		return
	}
	status, known := r.primary.statuses[proposal.Node]
	if !known {
		return
	}

	cfg := proposal.Config.Copy()
	switch status {
	case replicapb.StatusPrimary:
		assertf(cfg.Primary == proposal.Node, "remove_on_primary: node %v is not the configured primary", proposal.Node)
		cfg.Primary = replicapb.InvalidEndpoint
	case replicapb.StatusSecondary:
		var ok bool
		cfg.Secondaries, ok = removeNode(proposal.Node, cfg.Secondaries)
		assertf(ok, "remove_on_primary: node %v not found among secondaries", proposal.Node)
	case replicapb.StatusPotentialSecondary:
		var ok bool
		cfg.DropOuts, ok = removeNode(proposal.Node, cfg.DropOuts)
		assertf(ok, "remove_on_primary: node %v not found among drop-outs", proposal.Node)
	default:
		return
	}
	delete(r.primary.learners, proposal.Node)
	delete(r.primary.statuses, proposal.Node)

	r.updateConfigurationOnMetaServerLocked(replicapb.ConfigTypeRemove, proposal.Node, cfg)
}

// UpgradeToSecondaryOnPrimary is invoked by the learner subsystem once a
// potential secondary has caught up enough to be promoted, independent of
// any meta-server proposal.
func (r *Replica) UpgradeToSecondaryOnPrimary(node replicapb.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.Status != replicapb.StatusPrimary || r.primary == nil {
		return
	}
	if _, learning := r.primary.learners[node]; !learning {
		return
	}
	cfg := r.primary.membership.Copy()
	cfg.DropOuts, _ = removeNode(node, cfg.DropOuts)
	cfg.Secondaries = append(cfg.Secondaries, node)

	r.updateConfigurationOnMetaServerLocked(replicapb.ConfigTypeUpgradeToSecondary, node, cfg)
}

// primaryProposalPreconditionsLocked checks the shared preconditions for
// downgrade/remove proposals: matching ballot, this replica is PRIMARY, and
// the proposal's identity-bearing fields agree with the locally known
// membership.
func (r *Replica) primaryProposalPreconditionsLocked(proposal *replicapb.ConfigurationUpdateRequest) bool {
	if proposal.Config.Ballot != r.config.Ballot || r.config.Status != replicapb.StatusPrimary || r.primary == nil {
		return false
	}
	return configMatchesMembership(proposal.Config, &r.primary.membership)
}
