package replication

import (
	"bytes"
	"context"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
	"github.com/liexusong/rdsn-go/pkg/wirebuf"
)

// reconfigurationTask is the handle for the at-most-one outstanding
// meta-server reconfiguration RPC. It lives on Replica directly, not inside
// primaryState, because an ASSIGN_PRIMARY proposal issues one before this
// replica has a primaryState of its own.
type reconfigurationTask struct {
	cancel          context.CancelFunc
	requestSnapshot []byte

	// fromStatus is the local status before two-phase commit was paused for
	// this reconfiguration. The whole exchange reads as one transition from
	// fromStatus to whatever the reply's configuration projects, so the
	// state machine consults it when deciding whether the final transition
	// changed status (and whether the replica is closing).
	fromStatus replicapb.Status
}

// updateConfigurationOnMetaServerLocked builds and dispatches a
// RPC_CM_UPDATE_PARTITION_CONFIGURATION request for the given proposed next
// configuration. The caller has already mutated newConfig into the desired
// next membership (e.g. the ASSIGN_PRIMARY handler inserting itself as
// primary); this function stamps the decree, bumps the ballot, disables
// two-phase commit locally, and starts the retry loop.
func (r *Replica) updateConfigurationOnMetaServerLocked(
	typ replicapb.ConfigurationType, node replicapb.Endpoint, newConfig *replicapb.PartitionConfiguration,
) {
	newConfig.LastCommittedDecree = r.localLastCommittedDecreeLocked()

	fromStatus := r.config.Status

	if typ != replicapb.ConfigTypeAssignPrimary {
		assertf(r.config.Status == replicapb.StatusPrimary,
			"update_configuration_on_meta_server: not primary for type %s", typ)
		assertf(r.primary != nil && newConfig.Ballot == r.primary.membership.Ballot,
			"update_configuration_on_meta_server: ballot mismatch against local primary membership")
	}

	// Disable two-phase commit for the duration of the reconfiguration by
	// entering INACTIVE locally; this applies uniformly to every proposal
	// type, including ASSIGN_PRIMARY (a no-op when already INACTIVE).
	r.updateLocalConfigurationWithNoBallotChangeLocked(replicapb.StatusInactive)

	req := &replicapb.ConfigurationUpdateRequest{
		Type:   typ,
		Node:   node,
		Config: newConfig.Copy(),
	}
	req.Config.Ballot = newConfig.Ballot + 1

	if r.reconfig != nil {
		r.reconfig.cancel()
		r.reconfig = nil
	}

	w := wirebuf.NewWriter(128)
	req.Config.Encode(w)

	ctx, cancel := context.WithCancel(context.Background())
	task := &reconfigurationTask{cancel: cancel, requestSnapshot: w.Bytes(), fromStatus: fromStatus}
	r.reconfig = task

	go r.runReconfigurationRPC(ctx, task, req)
}

// runReconfigurationRPC issues the request, feeds the outcome to onReply,
// and keeps retrying the identical request until onReply says to stop.
// Transient RPC failures retry indefinitely while the replica stays
// INACTIVE and connected to a meta-server.
func (r *Replica) runReconfigurationRPC(
	ctx context.Context, task *reconfigurationTask, req *replicapb.ConfigurationUpdateRequest,
) {
	for {
		w := wirebuf.NewWriter(128)
		req.Config.Encode(w)
		assertf(bytes.Equal(w.Bytes(), task.requestSnapshot),
			"reconfiguration request mutated between retries")

		var contact replicapb.Endpoint
		if r.liveness != nil {
			contact = r.liveness.CurrentServerContact()
		}

		callCtx, cancel := context.WithTimeout(ctx, r.opts.CoordinatorRPCCallTimeout)
		var (
			resp *replicapb.ConfigurationUpdateResponse
			err  error
		)
		if r.metaClient != nil {
			resp, err = r.metaClient.UpdatePartitionConfiguration(callCtx, contact, req)
		}
		cancel()

		if !r.onReply(task, err, req, resp) {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// onReply applies the outcome of one RPC_CM_UPDATE_PARTITION_CONFIGURATION
// attempt and reports whether the caller should retry.
func (r *Replica) onReply(
	task *reconfigurationTask, err error,
	req *replicapb.ConfigurationUpdateRequest, resp *replicapb.ConfigurationUpdateResponse,
) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reconfig != task {
		return false
	}
	if r.config.Status != replicapb.StatusInactive {
		return false
	}
	if r.liveness != nil && !r.liveness.IsConnected() {
		return false
	}

	if err != nil {
		r.logger.Warnw("meta-server RPC failed, retrying",
			r.logFields("proposal_type", req.Type.String(), "error", err)...)
		return true
	}

	if resp.Config.Ballot < r.config.Ballot {
		r.logger.Debugw("dropping stale reconfiguration reply", r.logFields()...)
		r.reconfig = nil
		return false
	}

	// A rejected reconfiguration still carries the meta-server's
	// authoritative view of the group; only the identity asserts and the
	// removal notification are conditional on acceptance. The reply's
	// configuration is applied either way.
	if resp.Err == replicapb.ErrSuccess {
		assertf(resp.Config.GPID == req.Config.GPID, "on_reply: gpid mismatch")
		assertf(resp.Config.AppType == req.Config.AppType, "on_reply: app_type mismatch")
		assertf(resp.Config.Primary == req.Config.Primary, "on_reply: primary mismatch")
		assertf(endpointSlicesEqual(resp.Config.Secondaries, req.Config.Secondaries), "on_reply: secondaries mismatch")

		if req.Type == replicapb.ConfigTypeRemove && req.Node != r.self && r.metaClient != nil {
			rc := projectReplicaConfiguration(resp.Config, req.Node, false)
			node := req.Node
			client := r.metaClient
			timeout := r.opts.CoordinatorRPCCallTimeout
			logger := r.logger
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := client.RemoveReplica(ctx, node, rc); err != nil {
					logger.Warnw("RPC_REMOVE_REPLICA failed", "node", node.String(), "error", err)
				}
			}()
		}
	} else {
		r.logger.Warnw("meta-server rejected reconfiguration",
			r.logFields("proposal_type", req.Type.String(), "meta_error", resp.Err)...)
	}

	// The task stays in place while the reply's configuration is applied so
	// the transition can read fromStatus; the ballot bump in the reply
	// retires it inside updateLocalConfigurationLocked.
	r.updateConfigurationLocked(resp.Config)
	if r.reconfig == task {
		r.reconfig = nil
	}
	return false
}
