package hibiki

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"git.sr.ht/~emka/hibiki/irc"
)

const (
	reconnectInterval = 6 * time.Second
	reconnectMax      = 1 * time.Minute
)

// NetworkContext is one managed connection to one network. Its id doubles as
// the display name and is unique across the manager for its whole lifetime.
type NetworkContext struct {
	id       string
	identity string // dedup key: casemapped nick @ host
	config   NetworkConfig

	engine *irc.Engine
	ignore *IgnoreList

	pending bool // a Connect call is dialing
	wanted  bool // the reconnect loop should keep this connection up
	downs   chan struct{}
}

func (c *NetworkContext) ID() string            { return c.id }
func (c *NetworkContext) Name() string          { return c.config.Name }
func (c *NetworkContext) Engine() *irc.Engine   { return c.engine }
func (c *NetworkContext) Ignore() *IgnoreList   { return c.ignore }
func (c *NetworkContext) Connected() bool       { return c.engine.Connected() }
func (c *NetworkContext) Config() NetworkConfig { return c.config }

// Manager owns the set of network connections of the client. It deduplicates
// connects by identity, supervises reconnection and fans engine events out to
// its subscribers tagged with the context id.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*NetworkContext
	active   string

	sts       STSStore
	registrar ReconnectRegistrar
	hooks     ScriptHooks
	dialer    func(config NetworkConfig) irc.DialFunc
	debug     func(id, format string, args ...interface{})

	nextSub   int
	eventSubs map[int]func(id string, ev irc.Event)
}

// ManagerOptions carries the manager's collaborators; zero values get
// reasonable defaults.
type ManagerOptions struct {
	STS       STSStore
	Registrar ReconnectRegistrar
	Hooks     ScriptHooks
	Debug     func(id, format string, args ...interface{})

	// Dialer overrides how connections are opened. Nil dials the network
	// honoring stored STS policies.
	Dialer func(config NetworkConfig) irc.DialFunc
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Registrar == nil {
		opts.Registrar = NewTimerRegistrar()
	}
	if opts.Hooks == nil {
		opts.Hooks = NopScriptHooks{}
	}
	return &Manager{
		contexts:  map[string]*NetworkContext{},
		sts:       opts.STS,
		registrar: opts.Registrar,
		hooks:     opts.Hooks,
		dialer:    opts.Dialer,
		debug:     opts.Debug,
		eventSubs: map[int]func(string, irc.Event){},
	}
}

// OnEvent registers a callback for events from every context. The returned
// function cancels the registration.
func (m *Manager) OnEvent(fn func(id string, ev irc.Event)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.eventSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.eventSubs, id)
	}
}

func (m *Manager) emit(id string, ev irc.Event) {
	m.mu.Lock()
	subs := make([]func(string, irc.Event), 0, len(m.eventSubs))
	for _, fn := range m.eventSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(id, ev)
	}
}

func identityKey(config *NetworkConfig) string {
	return irc.CasemapRFC1459(config.Nick) + "@" + config.Host()
}

// Connect establishes a connection for the given network configuration and
// returns the context id.
//
// Concurrent connects for the same identity collapse into the in-flight one
// and return its id. Connecting an identity whose context is established gets
// a new context with the lowest unused " (N)" id suffix; a disconnected
// context is reused under its original id. A failed first dial leaves no
// context behind. Note that the collapse only covers the dial window: once a
// context is established, every further Connect for its identity is taken as
// a deliberate request for a sibling, concurrent or not.
func (m *Manager) Connect(ctx context.Context, config NetworkConfig) (string, error) {
	if config.Addr == "" {
		return "", errors.New("address is required")
	}
	if config.Nick == "" {
		return "", errors.New("nickname is required")
	}
	if config.Name == "" {
		config.Name = config.Host()
	}

	identity := identityKey(&config)

	m.mu.Lock()
	for _, c := range m.contexts {
		if c.identity != identity {
			continue
		}
		if c.pending {
			// a connect for this identity is already underway; collapse
			// into it instead of racing a second connection
			id := c.id
			m.mu.Unlock()
			return id, nil
		}
		if c.wanted || c.engine.Connected() {
			// an established context gets a disambiguated sibling instead
			continue
		}
		// disconnected context: reuse it instead of growing the table
		c.pending = true
		m.mu.Unlock()
		return m.dial(ctx, c, true)
	}

	c := &NetworkContext{
		id:       m.disambiguate(config.Name),
		identity: identity,
		config:   config,
		ignore:   NewIgnoreList(config.Ignore),
		pending:  true,
		downs:    make(chan struct{}, 1),
	}
	engine, err := m.buildEngine(c)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	c.engine = engine
	m.contexts[c.id] = c
	if m.active == "" {
		m.active = c.id
	}
	m.mu.Unlock()

	m.wireEngine(c)
	return m.dial(ctx, c, false)
}

// disambiguate returns name if unused, else the name with the lowest unused
// " (N)" suffix, starting at 1. Caller must hold mu.
func (m *Manager) disambiguate(name string) string {
	if _, ok := m.contexts[name]; !ok {
		return name
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s (%d)", name, n)
		if _, ok := m.contexts[id]; !ok {
			return id
		}
	}
}

func (m *Manager) buildEngine(c *NetworkContext) (*irc.Engine, error) {
	config := c.config

	var auth irc.SASLClient
	if config.SASLExternal {
		auth = &irc.SASLExternal{}
	} else if config.SASLUser != "" {
		auth = &irc.SASLPlain{
			Username: config.SASLUser,
			Password: config.SASLPassword,
		}
	}

	var cert *tls.Certificate
	if config.ClientCert != "" {
		loaded, err := tls.LoadX509KeyPair(config.ClientCert, config.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("error loading client certificate: %v", err)
		}
		cert = &loaded
	}

	dial := m.dialFunc(&config, cert)
	if m.dialer != nil {
		dial = m.dialer(config)
	}

	password := ""
	if config.Password != nil {
		password = *config.Password
	}

	id := c.id
	var debug func(format string, args ...interface{})
	if m.debug != nil {
		debug = func(format string, args ...interface{}) {
			m.debug(id, format, args...)
		}
	}

	params := irc.EngineParams{
		Host:     config.Host(),
		Nickname: config.Nick,
		Username: config.User,
		Realname: config.Real,
		Password: password,
		Auth:     auth,
		Dial:     dial,
		Debug:    debug,
	}
	engine := irc.NewEngine(params)
	engine.SetIgnoreFunc(c.ignore.Match)
	return engine, nil
}

// dialFunc resolves the dial target at connect time so that a stored STS
// policy upgrades the connection even after the first session.
func (m *Manager) dialFunc(config *NetworkConfig, cert *tls.Certificate) irc.DialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		addr, useTLS := config.Addr, config.TLS
		if m.sts != nil {
			if policy, ok := m.sts.Get(config.Host()); ok {
				useTLS = true
				if policy.Port != "" {
					addr = net.JoinHostPort(config.Host(), policy.Port)
				}
			}
		}
		return irc.Dialer(addr, useTLS, config.TLSSkipVerify, cert)(ctx)
	}
}

func (m *Manager) wireEngine(c *NetworkContext) {
	id := c.id
	c.engine.OnConnectionChange(func(connected bool) {
		if !connected {
			m.hooks.OnDisconnect(id)
			select {
			case c.downs <- struct{}{}:
			default:
			}
		}
	})
	c.engine.OnEvent(func(ev irc.Event) {
		switch ev := ev.(type) {
		case irc.RegisteredEvent:
			for _, channel := range c.config.Channels {
				c.engine.Join(channel, "")
			}
		case irc.STSPolicyEvent:
			if m.sts != nil {
				if err := m.sts.Put(ev.Host, ev.Policy); err != nil && m.debug != nil {
					m.debug(id, "sts store: %v", err)
				}
			}
		case irc.ReconnectRequestEvent:
			c.engine.Disconnect()
		}
		m.hooks.OnEvent(id, ev)
		m.emit(id, ev)
	})
}

// dial performs the synchronous first dial of a Connect call and starts the
// supervision loop on success.
func (m *Manager) dial(ctx context.Context, c *NetworkContext, reused bool) (string, error) {
	err := c.engine.Connect(ctx)

	m.mu.Lock()
	c.pending = false
	if err != nil {
		if !reused {
			delete(m.contexts, c.id)
			if m.active == c.id {
				m.active = ""
			}
		}
		m.mu.Unlock()
		return "", err
	}
	c.wanted = true
	m.mu.Unlock()

	go m.supervise(c)
	return c.id, nil
}

func (m *Manager) wants(c *NetworkContext) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.wanted
}

// supervise reconnects a context after connection loss, with a linearly
// growing delay. It exits once the context is no longer wanted.
func (m *Manager) supervise(c *NetworkContext) {
	for {
		<-c.downs
		if !m.wants(c) {
			return
		}
		delay := reconnectInterval
		for {
			m.sleep(delay)
			if !m.wants(c) {
				return
			}
			if err := c.engine.Connect(context.Background()); err != nil {
				m.emit(c.id, irc.ErrorEvent{
					Severity: irc.SeverityWarn,
					Code:     "CONNECT",
					Message:  err.Error(),
				})
				if delay < reconnectMax {
					delay += reconnectInterval
				}
				continue
			}
			break
		}
	}
}

func (m *Manager) sleep(delay time.Duration) {
	wake := make(chan struct{})
	cancel := m.registrar.Schedule(delay, func() { close(wake) })
	defer cancel()
	<-wake
}

// Disconnect stops the reconnect loop and closes the connection. The context
// stays in the table and can be connected again.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	c, ok := m.contexts[id]
	if ok {
		c.wanted = false
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown context %q", id)
	}
	c.engine.Disconnect()
	return nil
}

// Remove disconnects a context and drops it from the table.
func (m *Manager) Remove(id string) error {
	if err := m.Disconnect(id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.contexts, id)
	if m.active == id {
		m.active = ""
	}
	m.mu.Unlock()
	return nil
}

// DisconnectAll closes every connection and empties the context table, for
// app shutdown or network loss.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	contexts := make([]*NetworkContext, 0, len(m.contexts))
	for _, c := range m.contexts {
		c.wanted = false
		contexts = append(contexts, c)
	}
	m.contexts = map[string]*NetworkContext{}
	m.active = ""
	m.mu.Unlock()
	for _, c := range contexts {
		c.engine.Disconnect()
	}
}

// Context looks up a context by id.
func (m *Manager) Context(id string) (*NetworkContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[id]
	return c, ok
}

// Contexts lists the context ids in sorted order.
func (m *Manager) Contexts() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// SetActive marks the context the UI currently displays.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contexts[id]; !ok {
		return fmt.Errorf("unknown context %q", id)
	}
	m.active = id
	return nil
}

// Active returns the id of the active context, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != ""
}

// HandleInput routes one line of user input to the engine of a context.
func (m *Manager) HandleInput(id, buffer, content string) error {
	m.mu.Lock()
	c, ok := m.contexts[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown context %q", id)
	}
	c.engine.HandleInput(buffer, content)
	return nil
}
