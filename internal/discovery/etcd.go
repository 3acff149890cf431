package discovery

import (
	"context"
	"fmt"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const (
	dialTimeout = 5 * time.Second
	leaseTTL    = 30 // seconds; refreshed by the keep-alive stream
)

// Etcd registers the local node under a shared prefix and reads the
// other registrations back as seeds. The registration rides a lease, so
// a node that dies without leaving drops out of discovery on its own.
type Etcd struct {
	cli     *clientv3.Client
	prefix  string
	nodeKey string
	leaseID clientv3.LeaseID
	logger  *zap.Logger
}

// NewEtcd connects to the given endpoints and scopes all keys under
// /<cluster>/nodes/.
func NewEtcd(endpoints []string, cluster string, logger *zap.Logger) (*Etcd, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to etcd: %w", err)
	}
	return &Etcd{
		cli:    cli,
		prefix: path.Join("/", cluster, "nodes") + "/",
		logger: logger,
	}, nil
}

// Register publishes id -> addr under the cluster prefix on a leased
// key and keeps the lease alive in the background until Close.
func (e *Etcd) Register(ctx context.Context, id, addr string) error {
	lease, err := e.cli.Grant(ctx, leaseTTL)
	if err != nil {
		return fmt.Errorf("granting lease: %w", err)
	}
	e.leaseID = lease.ID
	e.nodeKey = e.prefix + id

	if _, err := e.cli.Put(ctx, e.nodeKey, addr, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registering node: %w", err)
	}

	keepAlive, err := e.cli.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("starting lease keep-alive: %w", err)
	}
	go func() {
		for range keepAlive {
		}
		e.logger.Warn("etcd lease keep-alive stream closed")
	}()

	e.logger.Info("registered in etcd",
		zap.String("key", e.nodeKey),
		zap.String("addr", addr))
	return nil
}

// Seeds lists every registered node address except our own key.
func (e *Etcd) Seeds(ctx context.Context) ([]string, error) {
	resp, err := e.cli.Get(ctx, e.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	seeds := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if string(kv.Key) == e.nodeKey {
			continue
		}
		seeds = append(seeds, string(kv.Value))
	}
	return seeds, nil
}

// Close revokes the registration lease and closes the client. The key
// disappears immediately instead of waiting out the TTL.
func (e *Etcd) Close() error {
	if e.leaseID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if _, err := e.cli.Revoke(ctx, e.leaseID); err != nil {
			e.logger.Warn("revoking etcd lease", zap.Error(err))
		}
	}
	return e.cli.Close()
}
