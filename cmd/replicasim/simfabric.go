package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// simFabric is a deterministic, in-process stand-in for the meta-server and
// the transport layer, used to drive a Replica end-to-end without a real
// gRPC round-trip. It implements replication.MetaServerClient,
// replication.LivenessMonitor, and replication.HostStub all at once, since
// this harness is the only "neighboring subsystem" in the simulation.
type simFabric struct {
	mu      sync.Mutex
	logger  *zap.SugaredLogger
	current *replicapb.PartitionConfiguration

	learnerCalls []replicapb.Endpoint
	removeCalls  []replicapb.Endpoint
	closed       bool
}

func newSimFabric(logger *zap.SugaredLogger, initial *replicapb.PartitionConfiguration) *simFabric {
	return &simFabric{logger: logger, current: initial.Copy()}
}

// UpdatePartitionConfiguration plays the role of the meta-server: it accepts
// the proposed configuration outright and hands it back unchanged, ballot
// included (the replica has already bumped it), since this harness has no
// competing proposers.
func (f *simFabric) UpdatePartitionConfiguration(
	_ context.Context, _ replicapb.Endpoint, req *replicapb.ConfigurationUpdateRequest,
) (*replicapb.ConfigurationUpdateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = req.Config.Copy()
	f.logger.Infow("meta-server accepted reconfiguration",
		"type", req.Type.String(), "node", req.Node.String(), "ballot", int64(f.current.Ballot))
	return &replicapb.ConfigurationUpdateResponse{Err: replicapb.ErrSuccess, Config: f.current.Copy()}, nil
}

func (f *simFabric) LearnAddLearner(_ context.Context, node replicapb.Endpoint, _ *replicapb.GroupCheckRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.learnerCalls = append(f.learnerCalls, node)
	f.logger.Infow("learner notified", "node", node.String())
	return nil
}

func (f *simFabric) RemoveReplica(_ context.Context, node replicapb.Endpoint, _ replicapb.ReplicaConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, node)
	f.logger.Infow("removed replica notified", "node", node.String())
	return nil
}

func (f *simFabric) CurrentServerContact() replicapb.Endpoint {
	return replicapb.Endpoint{Host: "sim-meta", Port: 1}
}

func (f *simFabric) Servers() []replicapb.Endpoint {
	return []replicapb.Endpoint{f.CurrentServerContact()}
}

func (f *simFabric) IsConnected() bool { return true }

func (f *simFabric) NotifyReplicaStateUpdate(config replicapb.ReplicaConfiguration, isClosing bool) {
	f.logger.Infow("replica state update", "status", config.Status.String(), "ballot", int64(config.Ballot), "is_closing", isClosing)
}

func (f *simFabric) BeginCloseReplica() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.logger.Infow("replica close requested")
}
