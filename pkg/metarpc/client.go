package metarpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/liexusong/rdsn-go/pkg/msgpackcodec"
	"github.com/liexusong/rdsn-go/pkg/replicapb"
)

// Client is a gRPC transport for both the meta-server RPCs and the
// peer-to-peer replica RPCs: lazily dialed per-endpoint connections,
// reconnected on transport-level failure, guarded by a single RWMutex.
type Client struct {
	mu    sync.RWMutex
	conns map[replicapb.Endpoint]*grpc.ClientConn

	servers    []replicapb.Endpoint
	contactIdx int
}

// NewClient returns a Client that will contact the given meta-server
// addresses, in order: CurrentServerContact starts at the first one and
// moves to the next each time AdvanceContact is called.
func NewClient(servers []replicapb.Endpoint) *Client {
	return &Client{
		conns:   make(map[replicapb.Endpoint]*grpc.ClientConn),
		servers: append([]replicapb.Endpoint(nil), servers...),
	}
}

func dialAddr(e replicapb.Endpoint) string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (c *Client) connectLocked(e replicapb.Endpoint) error {
	if _, ok := c.conns[e]; ok {
		return nil
	}
	conn, err := grpc.Dial(dialAddr(e), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	c.conns[e] = conn
	return nil
}

func (c *Client) disconnectLocked(e replicapb.Endpoint) {
	if conn, ok := c.conns[e]; ok {
		delete(c.conns, e)
		conn.Close()
	}
}

// tryClient runs fn against a connection to e, reconnecting once and
// retrying if the transport reports the connection unavailable. Beyond
// that single reconnect-and-retry, further retry policy is the caller's
// (the reconfiguration client retries the whole RPC indefinitely; see
// pkg/replication's runReconfigurationRPC).
func (c *Client) tryClient(e replicapb.Endpoint, fn func(conn *grpc.ClientConn) error) error {
	if e.IsInvalid() {
		return ErrNoServersConfigured
	}
	c.mu.RLock()
	conn, ok := c.conns[e]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		if conn, ok = c.conns[e]; !ok {
			if err := c.connectLocked(e); err != nil {
				c.mu.Unlock()
				return err
			}
			conn = c.conns[e]
		}
		c.mu.Unlock()
	}

	err := fn(conn)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.Unavailable {
		return err
	}

	c.mu.Lock()
	c.disconnectLocked(e)
	reconnectErr := c.connectLocked(e)
	c.mu.Unlock()
	if reconnectErr != nil {
		return reconnectErr
	}

	c.mu.RLock()
	conn = c.conns[e]
	c.mu.RUnlock()
	return fn(conn)
}

// UpdatePartitionConfiguration implements replication.MetaServerClient.
func (c *Client) UpdatePartitionConfiguration(
	ctx context.Context, contact replicapb.Endpoint, req *replicapb.ConfigurationUpdateRequest,
) (*replicapb.ConfigurationUpdateResponse, error) {
	resp := &replicapb.ConfigurationUpdateResponse{Config: &replicapb.PartitionConfiguration{}}
	err := c.tryClient(contact, func(conn *grpc.ClientConn) error {
		return conn.Invoke(ctx, fullMethod(metaServiceName, methodUpdatePartitionConfiguration), req, resp,
			grpc.CallContentSubtype(msgpackcodec.Name))
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// LearnAddLearner implements replication.MetaServerClient.
func (c *Client) LearnAddLearner(ctx context.Context, node replicapb.Endpoint, req *replicapb.GroupCheckRequest) error {
	ack := &Ack{}
	return c.tryClient(node, func(conn *grpc.ClientConn) error {
		return conn.Invoke(ctx, fullMethod(replicaServiceName, methodLearnAddLearner), req, ack,
			grpc.CallContentSubtype(msgpackcodec.Name))
	})
}

// RemoveReplica implements replication.MetaServerClient.
func (c *Client) RemoveReplica(ctx context.Context, node replicapb.Endpoint, rc replicapb.ReplicaConfiguration) error {
	ack := &Ack{}
	return c.tryClient(node, func(conn *grpc.ClientConn) error {
		return conn.Invoke(ctx, fullMethod(replicaServiceName, methodRemoveReplica), &rc, ack,
			grpc.CallContentSubtype(msgpackcodec.Name))
	})
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// CurrentServerContact implements replication.LivenessMonitor: it returns
// the meta-server address currently believed reachable, rotating forward
// whenever AdvanceContact is called after a failed RPC.
func (c *Client) CurrentServerContact() replicapb.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.servers) == 0 {
		return replicapb.InvalidEndpoint
	}
	return c.servers[c.contactIdx%len(c.servers)]
}

// Servers implements replication.LivenessMonitor.
func (c *Client) Servers() []replicapb.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]replicapb.Endpoint(nil), c.servers...)
}

// AdvanceContact rotates CurrentServerContact to the next configured
// meta-server, used after a failed attempt against the current one.
func (c *Client) AdvanceContact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.servers) == 0 {
		return
	}
	c.contactIdx = (c.contactIdx + 1) % len(c.servers)
}

// IsConnected implements replication.LivenessMonitor: it reports whether at
// least one pooled connection (to a meta-server or to a peer replica) has not
// been shut down. A Client that
// has never attempted a connection reports connected, since
// runReconfigurationRPC should still make a first attempt.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.conns) == 0 {
		return true
	}
	for _, conn := range c.conns {
		if conn.GetState().String() != "SHUTDOWN" {
			return true
		}
	}
	return false
}

// ErrNoServersConfigured is returned when an RPC is attempted against the
// invalid endpoint, i.e. no meta-server address is configured or the
// contact list is empty.
var ErrNoServersConfigured = errors.New("metarpc: no meta-server addresses configured")
