package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

func TestRemoveNode(t *testing.T) {
	a := replicapb.Endpoint{Host: "a", Port: 1}
	b := replicapb.Endpoint{Host: "b", Port: 1}
	c := replicapb.Endpoint{Host: "c", Port: 1}

	seq := []replicapb.Endpoint{a, b, c}

	out, ok := removeNode(b, seq)
	require.True(t, ok)
	require.Equal(t, []replicapb.Endpoint{a, c}, out)

	out, ok = removeNode(b, out)
	require.False(t, ok)
	require.Equal(t, []replicapb.Endpoint{a, c}, out)

	out, ok = removeNode(a, []replicapb.Endpoint{a})
	require.True(t, ok)
	require.Empty(t, out)

	_, ok = removeNode(a, nil)
	require.False(t, ok)
}

func TestConfigMatchesMembership(t *testing.T) {
	base := groupConfig(2, selfAddr, nodeB)
	require.True(t, configMatchesMembership(base.Copy(), base))

	differentBallot := base.Copy()
	differentBallot.Ballot = 9
	require.True(t, configMatchesMembership(differentBallot, base),
		"ballot is not an identity field; it is checked separately")

	differentPrimary := base.Copy()
	differentPrimary.Primary = nodeC
	require.False(t, configMatchesMembership(differentPrimary, base))

	reordered := base.Copy()
	reordered.Secondaries = []replicapb.Endpoint{nodeC, nodeB}
	require.False(t, configMatchesMembership(reordered, base))

	differentApp := base.Copy()
	differentApp.AppType = "other"
	require.False(t, configMatchesMembership(differentApp, base))
}

func TestProjectReplicaConfiguration(t *testing.T) {
	cfg := groupConfig(3, selfAddr, nodeB)
	cfg.DropOuts = []replicapb.Endpoint{nodeC}

	tests := []struct {
		name     string
		node     replicapb.Endpoint
		learning bool
		want     replicapb.Status
	}{
		{"primary", selfAddr, false, replicapb.StatusPrimary},
		{"secondary", nodeB, false, replicapb.StatusSecondary},
		{"dropout learning", nodeC, true, replicapb.StatusPotentialSecondary},
		{"dropout not learning", nodeC, false, replicapb.StatusInactive},
		{"stranger", replicapb.Endpoint{Host: "x", Port: 9}, true, replicapb.StatusInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc := projectReplicaConfiguration(cfg, tc.node, tc.learning)
			require.Equal(t, tc.want, rc.Status)
			require.Equal(t, cfg.GPID, rc.GPID)
			require.Equal(t, cfg.Ballot, rc.Ballot)
		})
	}
}

func TestAssertDisjointNodeSets(t *testing.T) {
	good := groupConfig(1, selfAddr, nodeB)
	good.DropOuts = []replicapb.Endpoint{nodeC}
	require.NotPanics(t, func() { assertDisjointNodeSets(good) })

	primaryAsSecondary := groupConfig(1, selfAddr, selfAddr)
	require.Panics(t, func() { assertDisjointNodeSets(primaryAsSecondary) })

	overlap := groupConfig(1, selfAddr, nodeB)
	overlap.DropOuts = []replicapb.Endpoint{nodeB}
	require.Panics(t, func() { assertDisjointNodeSets(overlap) })
}

func TestProjectionIsStable(t *testing.T) {
	cfg := groupConfig(5, selfAddr, nodeB, nodeC)
	first := projectReplicaConfiguration(cfg, nodeB, false)
	second := projectReplicaConfiguration(cfg, nodeB, false)
	require.Equal(t, first, second)
}
