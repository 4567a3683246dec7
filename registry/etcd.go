package registry

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const keyPrefix = "/ocpp/"

// Etcd keeps endpoints in etcd as
//
//	Key:   /ocpp/{service}/{escaped url}
//	Value: JSON-encoded Endpoint
//
// attached to a lease, so a crashed central system disappears once its TTL runs out.
type Etcd struct {
	client *clientv3.Client
	logger *zap.Logger

	mu         sync.Mutex
	keepAlives map[string]context.CancelFunc // key -> stops lease renewal
}

func NewEtcd(endpoints []string, logger *zap.Logger) (*Etcd, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	return &Etcd{client: c, logger: logger, keepAlives: make(map[string]context.CancelFunc)}, nil
}

func servicePrefix(service string) string {
	return keyPrefix + service + "/"
}

func endpointKey(service, rawURL string) string {
	return servicePrefix(service) + url.PathEscape(rawURL)
}

func (r *Etcd) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	key := endpointKey(service, ep.URL)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	// Renewal must outlive the registering request.
	kctx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kctx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keep alive %s: %w", key, err)
	}
	r.mu.Lock()
	if prev, ok := r.keepAlives[key]; ok {
		prev()
	}
	r.keepAlives[key] = cancel
	r.mu.Unlock()

	go func() {
		for range ch {
		}
		r.logger.Debug("lease renewal stopped", zap.String("key", key))
	}()
	return nil
}

func (r *Etcd) Deregister(ctx context.Context, service, rawURL string) error {
	key := endpointKey(service, rawURL)
	r.mu.Lock()
	if cancel, ok := r.keepAlives[key]; ok {
		cancel()
		delete(r.keepAlives, key)
	}
	r.mu.Unlock()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *Etcd) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.logger.Warn("skipping malformed endpoint", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Watch re-reads the whole prefix on every change rather than applying individual events.
func (r *Etcd) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		defer close(ch)
		for wresp := range r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix()) {
			if err := wresp.Err(); err != nil {
				r.logger.Warn("watch interrupted", zap.String("service", service), zap.Error(err))
				continue
			}
			eps, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Warn("rediscover failed", zap.String("service", service), zap.Error(err))
				continue
			}
			publish(ch, eps)
		}
	}()
	return ch
}

func (r *Etcd) Close() error {
	r.mu.Lock()
	for key, cancel := range r.keepAlives {
		cancel()
		delete(r.keepAlives, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
