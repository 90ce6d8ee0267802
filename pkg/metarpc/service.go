// Package metarpc hand-writes the gRPC service surface for the
// replication control plane: RPC_CM_UPDATE_PARTITION_CONFIGURATION against
// the meta-server, and RPC_LEARN_ADD_LEARNER / RPC_REMOVE_REPLICA against
// peer replicas. There are no protoc-generated types: method bodies are
// plain Go structs from pkg/replicapb, carried over pkg/msgpackcodec
// instead of protobuf.
package metarpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// Ack is the empty acknowledgement returned by the fire-and-forget learner
// and removal RPCs.
type Ack struct{}

const (
	metaServiceName    = "rdsn.meta.MetaService"
	replicaServiceName = "rdsn.replica.ReplicaService"

	methodUpdatePartitionConfiguration = "UpdatePartitionConfiguration"
	methodLearnAddLearner              = "LearnAddLearner"
	methodRemoveReplica                = "RemoveReplica"
)

// MetaServer is implemented by a meta-server process to answer
// RPC_CM_UPDATE_PARTITION_CONFIGURATION.
type MetaServer interface {
	UpdatePartitionConfiguration(
		ctx context.Context, req *replicapb.ConfigurationUpdateRequest,
	) (*replicapb.ConfigurationUpdateResponse, error)
}

// ReplicaServer is implemented by a replica process to answer the two
// peer-addressed RPCs a primary issues against it.
type ReplicaServer interface {
	LearnAddLearner(ctx context.Context, req *replicapb.GroupCheckRequest) (*Ack, error)
	RemoveReplica(ctx context.Context, req *replicapb.ReplicaConfiguration) (*Ack, error)
}

func updatePartitionConfigurationHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	req := new(replicapb.ConfigurationUpdateRequest)
	req.Config = &replicapb.PartitionConfiguration{}
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetaServer).UpdatePartitionConfiguration(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: metaServiceName + "/" + methodUpdatePartitionConfiguration}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetaServer).UpdatePartitionConfiguration(ctx, req.(*replicapb.ConfigurationUpdateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// MetaServiceDesc is registered against a *grpc.Server with
// RegisterMetaServer.
var MetaServiceDesc = grpc.ServiceDesc{
	ServiceName: metaServiceName,
	HandlerType: (*MetaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodUpdatePartitionConfiguration, Handler: updatePartitionConfigurationHandler},
	},
}

// RegisterMetaServer wires srv into s under MetaServiceDesc.
func RegisterMetaServer(s *grpc.Server, srv MetaServer) {
	s.RegisterService(&MetaServiceDesc, srv)
}

func learnAddLearnerHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	req := new(replicapb.GroupCheckRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).LearnAddLearner(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: replicaServiceName + "/" + methodLearnAddLearner}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplicaServer).LearnAddLearner(ctx, req.(*replicapb.GroupCheckRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func removeReplicaHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	req := new(replicapb.ReplicaConfiguration)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).RemoveReplica(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: replicaServiceName + "/" + methodRemoveReplica}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplicaServer).RemoveReplica(ctx, req.(*replicapb.ReplicaConfiguration))
	}
	return interceptor(ctx, req, info, handler)
}

// ReplicaServiceDesc is registered against a *grpc.Server with
// RegisterReplicaServer.
var ReplicaServiceDesc = grpc.ServiceDesc{
	ServiceName: replicaServiceName,
	HandlerType: (*ReplicaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodLearnAddLearner, Handler: learnAddLearnerHandler},
		{MethodName: methodRemoveReplica, Handler: removeReplicaHandler},
	},
}

// RegisterReplicaServer wires srv into s under ReplicaServiceDesc.
func RegisterReplicaServer(s *grpc.Server, srv ReplicaServer) {
	s.RegisterService(&ReplicaServiceDesc, srv)
}
