// Package native is the native side of the Calq bridge: it owns the session (actor id,
// identification, global properties), persists it, and queues actions for delivery through
// posthog-go, which does the batching, retry and network transport.
package native

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/posthog/posthog-go"

	"calqbridge/internal/logger"
	"calqbridge/internal/services/calq"
)

// Reserved property names for revenue actions.
const (
	PropertySaleCurrency = "$sale_currency"
	PropertySaleValue    = "$sale_value"
)

var (
	ErrSessionNotStarted = errors.New("native client has not been initialised")
	ErrAlreadyIdentified = errors.New("session is already identified as a different actor")
	ErrNotIdentified     = errors.New("profile requires an identified user")
	ErrInvalidProperties = errors.New("properties are not a JSON object")
)

// enqueuer is the part of posthog.Client the native client needs.
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

type enqueuerFactory func(writeKey string, config posthog.Config) (enqueuer, error)

func newPostHog(writeKey string, config posthog.Config) (enqueuer, error) {
	client, err := posthog.NewWithConfig(writeKey, config)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Snapshot is the success payload every operation returns.
type Snapshot struct {
	Actor      string `json:"actor"`
	Identified bool   `json:"identified"`
}

// Client implements calq.NativeTransport. Operations are serialised; the session is saved
// to the store after every change.
type Client struct {
	config  *Config
	store   SessionStore
	logger  *logger.Logger
	factory enqueuerFactory

	mu      sync.Mutex
	posthog enqueuer
	session *Session
}

var _ calq.NativeTransport = (*Client)(nil)

// NewClient creates a client; nothing is sent until Init. A nil config uses
// DefaultConfig and a nil store keeps sessions in memory.
func NewClient(config *Config, store SessionStore, log *logger.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logger.New("calq-native")
	}
	return &Client{
		config:  config,
		store:   store,
		logger:  log,
		factory: newPostHog,
	}
}

func (c *Client) posthogConfig() posthog.Config {
	return posthog.Config{
		Endpoint:  c.config.PostHogHost,
		Interval:  c.config.FlushInterval,
		BatchSize: c.config.BatchSize,
		Verbose:   c.config.Verbose,
		Logger:    c.logger,
		Callback:  &deliveryCallback{logger: c.logger},
	}
}

// Init opens a posthog client for writeKey and restores that key's saved session, or
// starts an anonymous one. Initialising again with the same key keeps the current state.
func (c *Client) Init(ctx context.Context, writeKey string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.posthog != nil && c.session != nil && c.session.WriteKey == writeKey {
		return c.snapshot()
	}

	session, err := c.store.Load(ctx, writeKey)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		session = newAnonymousSession(writeKey)
		if err := c.store.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to save new session: %w", err)
		}
		c.logger.Infof("started anonymous session %s", session.ActorID)
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	default:
		c.logger.Infof("restored session %s", session.ActorID)
	}

	client, err := c.factory(writeKey, c.posthogConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	if c.posthog != nil {
		if err := c.posthog.Close(); err != nil {
			c.logger.Warnf("closing previous PostHog client: %v", err)
		}
	}
	c.posthog = client
	c.session = session

	return c.snapshot()
}

// Track queues action for the current actor. Global properties are included; explicit
// properties win on conflicts.
func (c *Client) Track(ctx context.Context, action, properties string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}
	props, err := c.actionProperties(properties)
	if err != nil {
		return nil, err
	}
	if err := c.capture(action, props); err != nil {
		return nil, err
	}
	return c.snapshot()
}

// TrackSale queues a revenue action; amount may be negative.
func (c *Client) TrackSale(ctx context.Context, action, properties, currency string, amount float64) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}
	props, err := c.actionProperties(properties)
	if err != nil {
		return nil, err
	}
	props[PropertySaleCurrency] = currency
	props[PropertySaleValue] = amount

	if err := c.capture(action, props); err != nil {
		return nil, err
	}
	return c.snapshot()
}

// SetGlobalProperty stores property for all later actions and persists it.
func (c *Client) SetGlobalProperty(ctx context.Context, property, value string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}

	next := c.session.clone()
	next.GlobalProperties[property] = value
	if err := c.commit(ctx, next); err != nil {
		return nil, err
	}
	return c.snapshot()
}

// Identify links the anonymous actor to actor. Repeating the identified actor is a no-op;
// naming a different actor once identified fails with ErrAlreadyIdentified. The session is
// saved before the alias is queued, so a failed save never reaches PostHog.
func (c *Client) Identify(ctx context.Context, actor string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}
	if c.session.Identified {
		if c.session.ActorID == actor {
			return c.snapshot()
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyIdentified, c.session.ActorID)
	}

	previous := c.session
	anonymous := previous.ActorID
	next := previous.clone()
	next.ActorID = actor
	next.Identified = true
	if err := c.commit(ctx, next); err != nil {
		return nil, err
	}

	if actor != anonymous {
		if err := c.posthog.Enqueue(posthog.Alias{DistinctId: actor, Alias: anonymous}); err != nil {
			if rerr := c.store.Save(ctx, previous); rerr != nil {
				c.logger.Errorf("restoring anonymous session %s: %v", anonymous, rerr)
			}
			c.session = previous
			return nil, fmt.Errorf("failed to alias actor: %w", err)
		}
	}

	c.logger.Infof("identified %s as %s", anonymous, actor)
	return c.snapshot()
}

// Profile sets person properties on the identified user.
func (c *Client) Profile(ctx context.Context, properties string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}
	if !c.session.Identified {
		return nil, ErrNotIdentified
	}
	props, err := decodeProperties(properties)
	if err != nil {
		return nil, err
	}

	err = c.posthog.Enqueue(posthog.Identify{
		DistinctId: c.session.ActorID,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set profile: %w", err)
	}
	return c.snapshot()
}

// Clear drops the identity and global properties and starts a new anonymous actor.
func (c *Client) Clear(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}

	if err := c.commit(ctx, newAnonymousSession(c.session.WriteKey)); err != nil {
		return nil, err
	}
	return c.snapshot()
}

// Flush sends everything queued now. posthog-go only drains on Close, so the current
// client is closed and replaced with a fresh one using the same settings.
func (c *Client) Flush(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.started(); err != nil {
		return nil, err
	}

	if err := c.posthog.Close(); err != nil {
		c.logger.Warnf("flush: closing PostHog client: %v", err)
	}
	client, err := c.factory(c.session.WriteKey, c.posthogConfig())
	if err != nil {
		c.posthog = nil
		return nil, fmt.Errorf("failed to reopen PostHog client: %w", err)
	}
	c.posthog = client
	return c.snapshot()
}

// Close drains and releases the posthog client. The client must be initialised again
// before further use.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.posthog == nil {
		return nil
	}
	err := c.posthog.Close()
	c.posthog = nil
	return err
}

// Session returns a copy of the current session, or nil before Init.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	return c.session.clone()
}

func (c *Client) started() error {
	if c.posthog == nil || c.session == nil {
		return ErrSessionNotStarted
	}
	return nil
}

// commit persists next and makes it current only if the save succeeded.
func (c *Client) commit(ctx context.Context, next *Session) error {
	if err := c.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	c.session = next
	return nil
}

func (c *Client) actionProperties(properties string) (posthog.Properties, error) {
	explicit, err := decodeProperties(properties)
	if err != nil {
		return nil, err
	}

	props := posthog.NewProperties()
	for k, v := range c.session.GlobalProperties {
		props[k] = v
	}
	for k, v := range explicit {
		props[k] = v
	}
	return props, nil
}

func (c *Client) capture(action string, props posthog.Properties) error {
	err := c.posthog.Enqueue(posthog.Capture{
		DistinctId: c.session.ActorID,
		Event:      action,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("failed to queue action %q: %w", action, err)
	}
	c.logger.Debug("queued action", map[string]interface{}{
		"action": action,
		"actor":  c.session.ActorID,
	})
	return nil
}

func (c *Client) snapshot() (json.RawMessage, error) {
	return json.Marshal(Snapshot{Actor: c.session.ActorID, Identified: c.session.Identified})
}

// decodeProperties parses a JSON object, keeping numbers exact. Empty input is {}.
func decodeProperties(properties string) (posthog.Properties, error) {
	props := posthog.NewProperties()
	if properties == "" {
		return props, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(properties)))
	dec.UseNumber()
	var decoded map[string]interface{}
	if err := dec.Decode(&decoded); err != nil || decoded == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProperties, properties)
	}
	for k, v := range decoded {
		props[k] = v
	}
	return props, nil
}

// deliveryCallback reports the outcome of each posthog-go delivery.
type deliveryCallback struct {
	logger *logger.Logger
}

func (d *deliveryCallback) Success(msg posthog.APIMessage) {
	d.logger.Debug("delivered", msg)
}

func (d *deliveryCallback) Failure(msg posthog.APIMessage, err error) {
	d.logger.Errorf("delivery failed: %v", err)
}
