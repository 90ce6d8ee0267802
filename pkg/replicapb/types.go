// Package replicapb holds the wire-shaped value types shared between the
// replica's role state machine and the meta-server: ballots, endpoints,
// partition/replica configurations, and the configuration-update request
// and response messages.
package replicapb

import (
	"fmt"

	"github.com/liexusong/rdsn-go/pkg/wirebuf"
	"go.uber.org/zap/zapcore"
)

// Ballot is a monotonically increasing per-partition epoch. Higher ballot
// always wins.
type Ballot int64

// GPID identifies a partition group (app id + partition index) and never
// changes for a given replica.
type GPID struct {
	AppID        int32
	PartitionIdx int32
}

func (g GPID) String() string {
	return fmt.Sprintf("%d.%d", g.AppID, g.PartitionIdx)
}

func (g GPID) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddInt32("app_id", g.AppID)
	e.AddInt32("partition_index", g.PartitionIdx)
	return nil
}

// Endpoint is a (host, port) pair identifying a replica server.
type Endpoint struct {
	Host string
	Port uint16
}

// InvalidEndpoint is the sentinel denoting "no primary" / "no node".
var InvalidEndpoint = Endpoint{}

func (e Endpoint) IsInvalid() bool { return e == InvalidEndpoint }

func (e Endpoint) String() string {
	if e.IsInvalid() {
		return "invalid"
	}
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", e.Host)
	enc.AddUint16("port", e.Port)
	return nil
}

type endpointArray []Endpoint

func (a endpointArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, e := range a {
		if err := enc.AppendObject(e); err != nil {
			return err
		}
	}
	return nil
}

// Status is one of the five states of the role state machine.
type Status int

const (
	StatusInactive Status = iota
	StatusPrimary
	StatusSecondary
	StatusPotentialSecondary
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPrimary:
		return "PRIMARY"
	case StatusSecondary:
		return "SECONDARY"
	case StatusPotentialSecondary:
		return "POTENTIAL_SECONDARY"
	case StatusInactive:
		return "INACTIVE"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ConfigurationType classifies a meta-server reconfiguration proposal.
type ConfigurationType int

const (
	ConfigTypeAssignPrimary ConfigurationType = iota
	ConfigTypeAddSecondary
	ConfigTypeUpgradeToSecondary
	ConfigTypeDowngradeToSecondary
	ConfigTypeDowngradeToInactive
	ConfigTypeRemove
)

func (t ConfigurationType) String() string {
	switch t {
	case ConfigTypeAssignPrimary:
		return "ASSIGN_PRIMARY"
	case ConfigTypeAddSecondary:
		return "ADD_SECONDARY"
	case ConfigTypeUpgradeToSecondary:
		return "UPGRADE_TO_SECONDARY"
	case ConfigTypeDowngradeToSecondary:
		return "DOWNGRADE_TO_SECONDARY"
	case ConfigTypeDowngradeToInactive:
		return "DOWNGRADE_TO_INACTIVE"
	case ConfigTypeRemove:
		return "REMOVE"
	default:
		return fmt.Sprintf("ConfigurationType(%d)", int(t))
	}
}

// ErrorCode is the meta-server's reply status.
type ErrorCode int

const (
	ErrSuccess ErrorCode = iota
	ErrInvalidState
	ErrObjectNotFound
	ErrTryAgain
)

// PartitionConfiguration is the full group view of a partition, as held and
// exchanged between replicas and the meta-server.
type PartitionConfiguration struct {
	GPID                GPID
	AppType             string
	Ballot              Ballot
	Primary             Endpoint
	Secondaries         []Endpoint
	DropOuts            []Endpoint
	LastCommittedDecree int64
}

// Copy returns a deep copy.
func (c *PartitionConfiguration) Copy() *PartitionConfiguration {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Secondaries = append([]Endpoint(nil), c.Secondaries...)
	cp.DropOuts = append([]Endpoint(nil), c.DropOuts...)
	return &cp
}

func (c *PartitionConfiguration) MarshalLogObject(e zapcore.ObjectEncoder) error {
	if c == nil {
		return nil
	}
	e.AddString("gpid", c.GPID.String())
	e.AddString("app_type", c.AppType)
	e.AddInt64("ballot", int64(c.Ballot))
	_ = e.AddObject("primary", c.Primary)
	_ = e.AddArray("secondaries", endpointArray(c.Secondaries))
	_ = e.AddArray("drop_outs", endpointArray(c.DropOuts))
	e.AddInt64("last_committed_decree", c.LastCommittedDecree)
	return nil
}

// Encode serializes the configuration with the placeholder-capable wire
// encoder (see pkg/wirebuf), used by the reconfiguration client to snapshot
// the exact bytes of an in-flight request so retries resend an identical
// payload.
func (c *PartitionConfiguration) Encode(w *wirebuf.Writer) {
	w.WriteInt64(int64(c.GPID.AppID))
	w.WriteInt64(int64(c.GPID.PartitionIdx))
	w.WriteString(c.AppType)
	w.WriteInt64(int64(c.Ballot))
	w.WriteString(c.Primary.Host)
	w.WriteUint16(c.Primary.Port)
	ph := w.ReservePlaceholder()
	for _, e := range c.Secondaries {
		w.WriteString(e.Host)
		w.WriteUint16(e.Port)
	}
	w.Patch(ph)
	ph2 := w.ReservePlaceholder()
	for _, e := range c.DropOuts {
		w.WriteString(e.Host)
		w.WriteUint16(e.Port)
	}
	w.Patch(ph2)
	w.WriteInt64(c.LastCommittedDecree)
}

// DecodePartitionConfiguration is the inverse of Encode.
func DecodePartitionConfiguration(r *wirebuf.Reader) (*PartitionConfiguration, error) {
	c := &PartitionConfiguration{}
	appID, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	partIdx, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	c.GPID = GPID{AppID: int32(appID), PartitionIdx: int32(partIdx)}
	if c.AppType, err = r.ReadString(); err != nil {
		return nil, err
	}
	ballot, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	c.Ballot = Ballot(ballot)
	if c.Primary.Host, err = r.ReadString(); err != nil {
		return nil, err
	}
	if c.Primary.Port, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	secLen, err := r.ReadPlaceholder()
	if err != nil {
		return nil, err
	}
	secEnd := r.Remaining() - int(secLen)
	for r.Remaining() > secEnd {
		var e Endpoint
		if e.Host, err = r.ReadString(); err != nil {
			return nil, err
		}
		if e.Port, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		c.Secondaries = append(c.Secondaries, e)
	}
	dropLen, err := r.ReadPlaceholder()
	if err != nil {
		return nil, err
	}
	dropEnd := r.Remaining() - int(dropLen)
	for r.Remaining() > dropEnd {
		var e Endpoint
		if e.Host, err = r.ReadString(); err != nil {
			return nil, err
		}
		if e.Port, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		c.DropOuts = append(c.DropOuts, e)
	}
	if c.LastCommittedDecree, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReplicaConfiguration is the per-replica projection of a
// PartitionConfiguration: gpid, ballot, and the locally-applicable status.
type ReplicaConfiguration struct {
	GPID   GPID
	Ballot Ballot
	Status Status
}

func (r ReplicaConfiguration) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("gpid", r.GPID.String())
	e.AddInt64("ballot", int64(r.Ballot))
	e.AddString("status", r.Status.String())
	return nil
}

// ConfigurationUpdateRequest is a reconfiguration proposal, sent either
// meta-server -> replica (an incoming proposal) or replica -> meta-server
// (the RPC that requests a reconfiguration).
type ConfigurationUpdateRequest struct {
	Type   ConfigurationType
	Node   Endpoint
	Config *PartitionConfiguration
}

func (r *ConfigurationUpdateRequest) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("type", r.Type.String())
	_ = e.AddObject("node", r.Node)
	_ = e.AddObject("config", r.Config)
	return nil
}

// ConfigurationUpdateResponse is the meta-server's authoritative reply.
type ConfigurationUpdateResponse struct {
	Err    ErrorCode
	Config *PartitionConfiguration
}

// GroupCheckRequest is sent to a learner as part of RPC_LEARN_ADD_LEARNER /
// periodic group-check gossip.
type GroupCheckRequest struct {
	AppType             string
	Node                Endpoint
	Config              ReplicaConfiguration
	LastCommittedDecree int64
	LearnerSignature    int64
}
