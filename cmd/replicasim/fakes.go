package main

import "github.com/liexusong/rdsn-go/pkg/replication"

// fakePrepareList is a minimal in-memory PrepareList good enough to drive
// prepare-list replay and the truncate/reset transition actions in a
// simulation; a real implementation would carry the mutation-ordering
// pipeline.
type fakePrepareList struct {
	lastCommitted int64
	mutations     map[int64]replication.Mutation
}

func newFakePrepareList() *fakePrepareList {
	return &fakePrepareList{mutations: make(map[int64]replication.Mutation)}
}

func (p *fakePrepareList) MaxDecree() int64 {
	max := p.lastCommitted
	for d := range p.mutations {
		if d > max {
			max = d
		}
	}
	return max
}

func (p *fakePrepareList) LastCommittedDecree() int64 { return p.lastCommitted }

func (p *fakePrepareList) GetMutationByDecree(decree int64) (replication.Mutation, bool) {
	m, ok := p.mutations[decree]
	return m, ok
}

func (p *fakePrepareList) Truncate(decree int64) {
	p.lastCommitted = decree
	for d := range p.mutations {
		if d <= decree {
			delete(p.mutations, d)
		}
	}
}

func (p *fakePrepareList) Reset(decree int64) {
	p.lastCommitted = decree
	p.mutations = make(map[int64]replication.Mutation)
}

func (p *fakePrepareList) InitPrepare(m replication.Mutation) {
	p.mutations[m.Decree] = m
}

// fakeApp is a minimal App whose committed/durable decrees track the
// prepare list's truncation point.
type fakeApp struct {
	prepareList *fakePrepareList
}

func (a *fakeApp) LastCommittedDecree() int64 { return a.prepareList.lastCommitted }
func (a *fakeApp) LastDurableDecree() int64   { return a.prepareList.lastCommitted }

// fakePotentialSecondaryStates always allows the transition out of
// POTENTIAL_SECONDARY; a real learner subsystem would refuse while an
// active learn round is in flight.
type fakePotentialSecondaryStates struct{}

func (fakePotentialSecondaryStates) Cleanup(force bool) bool { return true }
