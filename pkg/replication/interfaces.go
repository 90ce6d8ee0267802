package replication

import (
	"context"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// HostStub is the replica/stub object that embeds this component. It owns
// the lifecycle of the Replica and is notified of every successful
// transition.
type HostStub interface {
	// NotifyReplicaStateUpdate fires on every successful transition,
	// including no-op ballot updates.
	NotifyReplicaStateUpdate(config replicapb.ReplicaConfiguration, isClosing bool)
	// BeginCloseReplica requests graceful teardown; called when a
	// transition's isClosing is true.
	BeginCloseReplica()
}

// LivenessMonitor is the source of meta-server addresses and the
// connectivity gate for the reconfiguration client's retry loop.
type LivenessMonitor interface {
	CurrentServerContact() replicapb.Endpoint
	Servers() []replicapb.Endpoint
	IsConnected() bool
}

// MetaServerClient issues the outbound RPCs to the meta-server cluster and
// to peer replicas. Implementations are expected to retry transport-level
// failures internally (e.g. reconnect); the reconfiguration client handles
// retry-the-same-request-on-error at a higher level.
type MetaServerClient interface {
	// UpdatePartitionConfiguration issues RPC_CM_UPDATE_PARTITION_CONFIGURATION
	// against the given contact address.
	UpdatePartitionConfiguration(
		ctx context.Context,
		contact replicapb.Endpoint,
		req *replicapb.ConfigurationUpdateRequest,
	) (*replicapb.ConfigurationUpdateResponse, error)

	// LearnAddLearner issues RPC_LEARN_ADD_LEARNER to a learner node.
	LearnAddLearner(ctx context.Context, node replicapb.Endpoint, req *replicapb.GroupCheckRequest) error

	// RemoveReplica issues RPC_REMOVE_REPLICA to a node being dropped from
	// the group.
	RemoveReplica(ctx context.Context, node replicapb.Endpoint, rc replicapb.ReplicaConfiguration) error
}

// PrepareList abstracts the mutation prepare list: the in-memory window of
// proposed mutations awaiting commit. Its ordering algorithm is a black box
// to this component; only the interface is pinned.
type PrepareList interface {
	MaxDecree() int64
	LastCommittedDecree() int64
	GetMutationByDecree(decree int64) (Mutation, bool)
	Truncate(decree int64)
	Reset(decree int64)
	InitPrepare(m Mutation)
}

// Mutation is an opaque entry in the prepare list. Only the fields the
// state machine's replay logic touches are modeled here.
type Mutation struct {
	Decree         int64
	Updates        []byte
	ClientRequests []byte
}

// App abstracts the replicated application/state machine underneath the
// prepare list.
type App interface {
	LastCommittedDecree() int64
	LastDurableDecree() int64
}

// PotentialSecondaryStates models the local learner substate. Cleanup
// returns false (refusing the transition) when the replica is still
// actively learning and force is false.
type PotentialSecondaryStates interface {
	Cleanup(force bool) bool
}
