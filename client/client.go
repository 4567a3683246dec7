// Package client connects a charge point to a central system found through a registry.
package client

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"ocpp-rpc/loadbalance"
	"ocpp-rpc/registry"
	"ocpp-rpc/router"
	"ocpp-rpc/session"
	"ocpp-rpc/transport"
)

type Options struct {
	ChargePointID string
	// Service is the name central system endpoints are registered under.
	Service string
	Dial    transport.DialOptions
	Session []session.Option
	Logger  *zap.Logger
}

type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	opts     Options
	logger   *zap.Logger
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		registry: reg,
		balancer: bal,
		opts:     opts,
		logger:   logger.With(zap.String("chargePointId", opts.ChargePointID)),
	}
}

// Connect discovers the central system endpoints, dials the one the balancer picks and returns a
// session that answers inbound calls with r. When a dial fails the endpoint is dropped and the
// balancer picks again among the rest. The caller runs the session.
func (c *Client) Connect(ctx context.Context, r *router.Router) (*session.Session, registry.Endpoint, error) {
	endpoints, err := c.registry.Discover(ctx, c.opts.Service)
	if err != nil {
		return nil, registry.Endpoint{}, err
	}

	var errs *multierror.Error
	for len(endpoints) > 0 {
		ep, err := c.balancer.Pick(c.opts.ChargePointID, endpoints)
		if err != nil {
			return nil, registry.Endpoint{}, err
		}
		ws, err := transport.DialWebSocket(ctx, EndpointURL(ep, c.opts.ChargePointID), c.opts.Dial)
		if err == nil {
			c.logger.Info("connected", zap.String("endpoint", ep.URL), zap.String("subprotocol", ws.Subprotocol()))
			opts := append([]session.Option{session.WithLogger(c.logger)}, c.opts.Session...)
			return session.New(ws, r, opts...), ep, nil
		}
		c.logger.Warn("dial failed", zap.String("endpoint", ep.URL), zap.Error(err))
		errs = multierror.Append(errs, err)
		if ctx.Err() != nil {
			break
		}
		endpoints = slices.DeleteFunc(slices.Clone(endpoints), func(e registry.Endpoint) bool { return e.URL == ep.URL })
	}
	if errs == nil {
		return nil, registry.Endpoint{}, fmt.Errorf("%s: %w", c.opts.Service, registry.ErrNoEndpoints)
	}
	return nil, registry.Endpoint{}, fmt.Errorf("connect %s: %w", c.opts.Service, errs.ErrorOrNil())
}

// EndpointURL appends the charge point id as the last path segment of the endpoint URL.
func EndpointURL(ep registry.Endpoint, chargePointID string) string {
	return strings.TrimSuffix(ep.URL, "/") + "/" + url.PathEscape(chargePointID)
}
