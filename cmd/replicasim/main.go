// Command replicasim drives a single replication.Replica through a
// bootstrap-to-primary and add-secondary sequence against an in-process
// simFabric, without a real meta-server or network. It is a deterministic
// smoke test a reader can run to see the role state machine move.
package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
	"github.com/liexusong/rdsn-go/pkg/replication"
)

func main() {
	zl, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	self := replicapb.Endpoint{Host: "127.0.0.1", Port: 34801}
	secondary := replicapb.Endpoint{Host: "127.0.0.1", Port: 34802}
	gpid := replicapb.GPID{AppID: 1, PartitionIdx: 0}

	initial := &replicapb.PartitionConfiguration{
		GPID:    gpid,
		AppType: "simple_kv",
		Ballot:  1,
	}

	fabric := newSimFabric(logger, initial)

	r := replication.NewReplica(self, gpid, "simple_kv", fabric, fabric, fabric,
		replication.WithLogger(logger),
		replication.WithCoordinatorRPCCallTimeout(2*time.Second),
	)

	pl := newFakePrepareList()
	r.SetPrepareList(pl)
	r.SetApp(&fakeApp{prepareList: pl})
	r.SetPotentialSecondaryStates(fakePotentialSecondaryStates{})

	logger.Infow("bootstrapping to primary", "gpid", gpid.String())
	r.OnConfigProposal(&replicapb.ConfigurationUpdateRequest{
		Type:   replicapb.ConfigTypeAssignPrimary,
		Node:   self,
		Config: initial,
	})

	waitForReconfiguration(r)
	logger.Infow("reached status", "status", r.Status().String(), "ballot", int64(r.Ballot()))

	logger.Infow("adding a potential secondary", "node", secondary.String())
	r.OnConfigProposal(&replicapb.ConfigurationUpdateRequest{
		Type: replicapb.ConfigTypeAddSecondary,
		Node: secondary,
		Config: &replicapb.PartitionConfiguration{
			GPID:    gpid,
			AppType: "simple_kv",
			Ballot:  r.Ballot(),
			Primary: self,
		},
	})

	time.Sleep(50 * time.Millisecond)
	logger.Infow("simulation complete", "final_status", r.Status().String(), "final_ballot", int64(r.Ballot()))
}

// waitForReconfiguration polls until the asynchronous reconfiguration RPC
// launched by the ASSIGN_PRIMARY proposal has been applied. A real host would
// be driven entirely by NotifyReplicaStateUpdate callbacks; this harness
// just needs a deterministic point to read the result back.
func waitForReconfiguration(r *replication.Replica) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Status() == replicapb.StatusPrimary {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
