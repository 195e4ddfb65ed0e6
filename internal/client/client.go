// Package client wires the session, the request gateway, the notification
// stream and the local feed into one signed-in client.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/feed"
	"github.com/katatrina/schoolhub-BE/internal/gateway"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/realtime"
	"github.com/katatrina/schoolhub-BE/internal/session"
	"github.com/katatrina/schoolhub-BE/internal/util"
	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

type Client struct {
	Authority  *session.Authority
	Gateway    *gateway.Gateway
	API        *feed.APIClient
	Store      *feed.Store
	Poller     *feed.Poller
	Supervisor *realtime.Supervisor

	http *resty.Client
}

type options struct {
	onChange     func([]notification.Notification)
	onPersistent func(error)
	httpClient   *http.Client
	jitter       func(time.Duration) time.Duration
}

type Option func(*options)

// OnFeedChange receives the merged feed after every change.
func OnFeedChange(fn func([]notification.Notification)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// OnPersistentDisconnect is told when the stream gives up reconnecting.
func OnPersistentDisconnect(fn func(error)) Option {
	return func(o *options) {
		o.onPersistent = fn
	}
}

// WithHTTPClient sets the client used for the websocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(o *options) {
		o.jitter = fn
	}
}

func New(config util.ClientConfig, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	httpClient := resty.New().
		SetBaseURL(config.APIBaseURL).
		SetTimeout(config.RequestTimeout).
		SetHeader("Accept", "application/json")

	authority := session.NewAuthority(session.NewHTTPBackend(httpClient), session.WithRefreshTimeout(config.RequestTimeout))
	gw := gateway.New(httpClient, authority)
	api := feed.NewAPIClient(gw)

	storeOpts := []feed.Option{}
	if o.onChange != nil {
		storeOpts = append(storeOpts, feed.WithOnChange(o.onChange))
	}
	store := feed.NewStore(storeOpts...)

	poller, err := feed.NewPoller(api, store,
		feed.WithPollInterval(config.PollInterval),
		feed.WithPageSize(config.PageSize),
	)
	if err != nil {
		httpClient.Close()
		return nil, err
	}

	backoff := realtime.Backoff{
		Base:   config.ReconnectBaseDelay,
		Max:    config.ReconnectMaxDelay,
		Factor: realtime.DefaultFactor,
		Jitter: o.jitter,
	}
	onPersistent := o.onPersistent
	if onPersistent == nil {
		onPersistent = func(err error) {
			log.Error().Err(err).Msg("notification stream is down, showing pulled notifications only")
		}
	}
	supervisor := realtime.NewSupervisor(
		&realtime.WebsocketDialer{URL: config.StreamURL, HTTPClient: o.httpClient},
		authority,
		store,
		realtime.WithBackoff(backoff),
		realtime.WithMaxAttempts(config.ReconnectMaxAttempts),
		realtime.OnOpen(poller.PullNow),
		realtime.OnPersistentDisconnect(onPersistent),
	)

	authority.Subscribe(supervisor)
	authority.Subscribe(session.ListenerFuncs{
		OnStarted: func(session.Session) { poller.PullNow() },
		// The feed is empty before the logout returns and before any
		// later session is announced.
		OnEnded: func(error) { store.Clear() },
	})

	return &Client{
		Authority:  authority,
		Gateway:    gw,
		API:        api,
		Store:      store,
		Poller:     poller,
		Supervisor: supervisor,
		http:       httpClient,
	}, nil
}

// Run drives the feed and the poller until ctx is done, then tears the
// client down.
func (c *Client) Run(ctx context.Context) error {
	storeDone := make(chan struct{})
	go func() {
		c.Store.Run(ctx)
		close(storeDone)
	}()

	if err := c.Poller.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Authority.Logout(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to log out")
	}
	c.Supervisor.Close()
	if err := c.Poller.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to stop poller")
	}
	<-storeDone
	return c.http.Close()
}

func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	return c.Authority.Login(ctx, email, password)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Authority.Logout(ctx)
}

// MarkRead marks the notification read on the server, then locally.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if err := c.API.MarkRead(ctx, id); err != nil {
		return err
	}
	return c.Store.MarkRead(id)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	if _, err := c.API.MarkAllRead(ctx); err != nil {
		return err
	}
	return c.Store.MarkAllRead()
}

// Dismiss removes the notification from this user's feed.
func (c *Client) Dismiss(ctx context.Context, id string) error {
	if err := c.API.Dismiss(ctx, id); err != nil {
		return err
	}
	return c.Store.Remove(id)
}
