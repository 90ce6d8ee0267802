package replication

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// Options configures a Replica.
type Options struct {
	CoordinatorRPCCallTimeout time.Duration
	Logger                    *zap.SugaredLogger
	RandSource                *rand.Rand
}

// Option mutates Options. See WithLogger, WithCoordinatorRPCCallTimeout.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		CoordinatorRPCCallTimeout: 10 * time.Second,
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithCoordinatorRPCCallTimeout bounds a single meta-server RPC attempt;
// the reconfiguration client retries indefinitely across attempts
// regardless of this value.
func WithCoordinatorRPCCallTimeout(d time.Duration) Option {
	return func(o *Options) { o.CoordinatorRPCCallTimeout = d }
}

// WithRandSource fixes the source of learner-signature randomness, for
// deterministic tests.
func WithRandSource(r *rand.Rand) Option {
	return func(o *Options) { o.RandSource = r }
}

func applyOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = newNopLogger()
	}
	if o.RandSource == nil {
		o.RandSource = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Replica drives the per-partition role state machine: it owns the
// authoritative local view of the group membership, receives
// reconfiguration proposals, and coordinates the resulting transitions.
// One Replica exists per gpid the process hosts; all access is expected to
// come from a single logical execution context per partition, and mu exists
// to make that contract hold for RPC callback goroutines rather than to
// allow genuine concurrent mutation.
type Replica struct {
	mu sync.Mutex

	self    replicapb.Endpoint
	gpidVal replicapb.GPID
	appType string

	config                 replicapb.ReplicaConfiguration
	lastConfigChangeTimeMs int64
	lastConfig             *replicapb.PartitionConfiguration

	isLearning bool
	primary    *primaryState

	reconfig *reconfigurationTask

	prepareList        PrepareList
	app                App
	potentialSecondary PotentialSecondaryStates
	host               HostStub
	liveness           LivenessMonitor
	metaClient         MetaServerClient

	logger *zap.SugaredLogger
	opts   Options
}

// NewReplica constructs a Replica in INACTIVE status at ballot 0, the
// state every replica starts from before any configuration has been
// learned.
func NewReplica(
	self replicapb.Endpoint,
	gpid replicapb.GPID,
	appType string,
	host HostStub,
	liveness LivenessMonitor,
	metaClient MetaServerClient,
	opts ...Option,
) *Replica {
	o := applyOptions(opts)
	r := &Replica{
		self:    self,
		gpidVal: gpid,
		appType: appType,
		config: replicapb.ReplicaConfiguration{
			GPID:   gpid,
			Ballot: 0,
			Status: replicapb.StatusInactive,
		},
		host:       host,
		liveness:   liveness,
		metaClient: metaClient,
		logger:     o.Logger,
		opts:       o,
	}
	return r
}

// SetPrepareList wires the mutation prepare list collaborator.
func (r *Replica) SetPrepareList(pl PrepareList) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepareList = pl
}

// SetApp wires the replicated application collaborator.
func (r *Replica) SetApp(app App) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.app = app
}

// SetPotentialSecondaryStates wires the learner-side collaborator.
func (r *Replica) SetPotentialSecondaryStates(ps PotentialSecondaryStates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.potentialSecondary = ps
}

// SetLearning records whether this replica is currently pulling state from
// the primary. The projection in membership.go consults this to
// distinguish POTENTIAL_SECONDARY from INACTIVE for a node listed in
// DropOuts.
func (r *Replica) SetLearning(learning bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isLearning = learning
}

// GPID returns this replica's partition identifier.
func (r *Replica) GPID() replicapb.GPID {
	return r.gpidVal
}

// Self returns this replica's own endpoint.
func (r *Replica) Self() replicapb.Endpoint {
	return r.self
}

func (r *Replica) status() replicapb.Status {
	return r.config.Status
}

func (r *Replica) ballot() replicapb.Ballot {
	return r.config.Ballot
}

// Status returns the current local status.
func (r *Replica) Status() replicapb.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status()
}

// Ballot returns the current local ballot.
func (r *Replica) Ballot() replicapb.Ballot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ballot()
}

// LocalConfiguration returns a copy of the current local ReplicaConfiguration.
func (r *Replica) LocalConfiguration() replicapb.ReplicaConfiguration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

func (r *Replica) localLastCommittedDecreeLocked() int64 {
	if r.app != nil {
		return r.app.LastCommittedDecree()
	}
	return 0
}

// cleanupPreparingMutations is a hook point for discarding any locally
// preparing (uncommitted) mutations ahead of a status transition. The
// prepare list owns its internal ordering and discard policy; it is a black
// box here, so there is nothing to call.
func (r *Replica) cleanupPreparingMutations() {}

// initGroupCheck is a hook point for starting the periodic group-check
// protocol against secondaries, a neighboring subsystem whose internals
// live outside this component; dispatcher.go constructs GroupCheckRequest
// for the learner path, and nothing in this component depends on the
// periodic check firing.
func (r *Replica) initGroupCheck() {}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
