package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// DialFunc opens the transport connection to the server. Injecting it keeps
// the engine testable against in-memory pipes.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Keepalive timing: a PING goes out after keepAlive of silence, and the
// connection is reset when nothing arrives for keepAlive+maxRTT.
var (
	keepAlive = 30 * time.Second
	maxRTT    = 10 * time.Second
)

// EngineParams defines how to connect and register with an IRC server.
type EngineParams struct {
	Host     string // server hostname, for TLS and STS bookkeeping
	Nickname string
	Username string
	Realname string
	Password string // server PASS, not SASL
	Auth     SASLClient

	Dial  DialFunc
	Debug func(format string, args ...interface{}) // optional protocol trace sink
}

// Dialer builds the default DialFunc for an address: a direct or
// SOCKS-proxied (from the environment) TCP connection, optionally wrapped in
// TLS with an optional client certificate.
func Dialer(addr string, useTLS, insecureSkipVerify bool, cert *tls.Certificate) DialFunc {
	colonIdx := strings.LastIndexByte(addr, ':')
	bracketIdx := strings.LastIndexByte(addr, ']')
	if colonIdx <= bracketIdx {
		// either colonIdx < 0, or the last colon is before a ']' (end
		// of IPv6 address). -> missing port
		if useTLS {
			addr += ":6697"
		} else {
			addr += ":6667"
		}
	}

	return func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		dialer := &net.Dialer{
			Timeout: 10 * time.Second,
		}
		conn, err := proxy.FromEnvironmentUsing(dialer).(proxy.ContextDialer).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connect: %v", err)
		}

		if useTLS {
			host, _, _ := net.SplitHostPort(addr) // should succeed since the dial did.
			cfg := &tls.Config{
				ServerName:         host,
				InsecureSkipVerify: insecureSkipVerify,
				NextProtos:         []string{"irc"},
			}
			if cert != nil {
				cfg.Certificates = []tls.Certificate{*cert}
			}
			tlsConn := tls.Client(conn, cfg)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("tls handshake: %v", err)
			}
			conn = tlsConn
		}

		return conn, nil
	}
}

type channelMember struct {
	nick string // display-cased nick
	user ChannelUser
}

// channelState is the engine's view of one joined channel.
type channelState struct {
	name    string // display-cased channel name
	members map[string]channelMember
	topic   TopicInfo
	synced  bool // NAMES received since join
}

// Engine owns one connection to one IRC network: framing, parsing, dispatch,
// capability negotiation, channel state and outbound throttling. All engine
// state is private; handlers and callers go through accessors.
type Engine struct {
	params EngineParams

	mu        sync.Mutex
	conn      net.Conn
	out       chan Message
	connected bool

	registered bool
	nick       string
	nickCf     string
	user       string
	host       string
	account    string

	negotiator *capNegotiator
	batches    *BatchManager
	registry   *registry
	framer     LineFramer

	// ISUPPORT features
	casemap       func(string) string
	chantypes     string
	chanmodes     [4]string
	prefixSymbols string
	prefixModes   string
	linelen       int
	monitor       bool
	whox          bool

	channels map[string]*channelState // keyed by casemapped name
	monitors map[string]struct{}      // nicks we monitor, keyed by casemapped nick

	ignored func(prefix *Prefix) bool

	nextSub      int
	eventSubs    map[int]func(Event)
	connSubs     map[int]func(bool)
	userListSubs map[int]func(channel string, users []string)
}

// NewEngine prepares an engine for the given connection parameters. No
// network activity happens until Connect.
func NewEngine(params EngineParams) *Engine {
	e := &Engine{
		params:       params,
		nick:         params.Nickname,
		nickCf:       CasemapRFC1459(params.Nickname),
		user:         params.Username,
		batches:      NewBatchManager(),
		registry:     newRegistry(),
		channels:     map[string]*channelState{},
		monitors:     map[string]struct{}{},
		eventSubs:    map[int]func(Event){},
		connSubs:     map[int]func(bool){},
		userListSubs: map[int]func(channel string, users []string){},
	}
	e.negotiator = newCapNegotiator(params.Auth, e.Send)
	e.negotiator.onEnd = func() {
		e.Send("CAP", "END")
	}
	e.negotiator.onSTS = func(policy STSPolicy) {
		e.Emit(STSPolicyEvent{Host: params.Host, Policy: policy})
	}
	e.resetFeatures()
	return e
}

// SetIgnoreFunc installs the predicate consulted for incoming messages.
// Messages whose sender matches are dropped before dispatch to subscribers.
func (e *Engine) SetIgnoreFunc(ignored func(prefix *Prefix) bool) {
	e.mu.Lock()
	e.ignored = ignored
	e.mu.Unlock()
}

func (e *Engine) resetFeatures() {
	e.casemap = CasemapRFC1459
	e.chantypes = "#&"
	e.chanmodes = [4]string{"beI", "k", "l", "imnst"}
	e.prefixSymbols = "@+"
	e.prefixModes = "ov"
	e.linelen = 512
	e.monitor = false
	e.whox = false
}

// Connect dials the server and starts the read and write loops. Calling
// Connect on an already connected engine is an error; a disconnected engine
// can be reused.
func (e *Engine) Connect(ctx context.Context) error {
	if e.params.Dial == nil {
		return errors.New("no dialer configured")
	}

	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		return errors.New("already connected")
	}
	e.mu.Unlock()

	conn, err := e.params.Dial(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		conn.Close()
		return errors.New("already connected")
	}
	e.conn = conn
	e.connected = true
	e.registered = false
	e.nick = e.params.Nickname
	e.nickCf = CasemapRFC1459(e.params.Nickname)
	e.account = ""
	e.host = ""
	e.channels = map[string]*channelState{}
	e.monitors = map[string]struct{}{}
	e.negotiator.reset(e.params.Auth)
	e.batches.Reset()
	e.framer = LineFramer{}
	e.resetFeatures()
	out := make(chan Message, 64)
	e.out = out
	e.mu.Unlock()

	last := &atomic.Value{}
	last.Store(time.Now())
	go e.readLoop(conn, last)
	go e.writeLoop(conn, out, last)

	e.Send("CAP", "LS", "302")
	if e.params.Password != "" {
		e.Send("PASS", e.params.Password)
	}
	e.Send("NICK", e.params.Nickname)
	e.Send("USER", e.params.Username, "0", "*", e.params.Realname)

	e.notifyConnection(true)
	return nil
}

// Disconnect closes the connection. In-flight negotiation and open batches
// are abandoned; completion events for them are never emitted.
func (e *Engine) Disconnect() {
	e.CloseConnection()
}

// Connected reports whether the transport connection is up.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// readLoop frames, parses and dispatches inbound traffic. It owns all
// dispatch: handlers run on this goroutine, so per-connection event order is
// the server's send order.
func (e *Engine) readLoop(conn net.Conn, last *atomic.Value) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			// inbound traffic counts as liveness, even when we never write
			now := time.Now()
			last.Store(now)
			conn.SetReadDeadline(now.Add(keepAlive + maxRTT))
			for _, line := range e.framer.Push(buf[:n]) {
				line = strings.ToValidUTF8(line, string([]rune{unicode.ReplacementChar}))
				e.Debugf("IN  %s", line)
				msg, err := ParseMessage(line)
				if err != nil {
					continue
				}
				playback := false
				if ref, ok := msg.Tags["batch"]; ok {
					playback = e.batches.AddMessage(ref)
				}
				e.registry.dispatch(e, msg, playback)
			}
		}
		if err != nil {
			break
		}
	}
	e.connectionLost(conn)
}

// writeLoop serializes outbound messages with a token-bucket throttle and
// keeps the connection alive with PINGs when traffic is idle.
func (e *Engine) writeLoop(conn net.Conn, out <-chan Message, last *atomic.Value) {
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 16)
	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case msg, ok := <-out:
			if !ok {
				conn.Close()
				return
			}
			if e.HasCapability("labeled-response") && wantsLabel(msg.Command) {
				msg = msg.WithTag("label", uuid.NewString())
			}
			_ = limiter.Wait(context.Background())
			last.Store(time.Now())
			e.Debugf("OUT %s", redactMessage(msg).String())
			if _, err := fmt.Fprintf(conn, "%s\r\n", msg.String()); err != nil {
				conn.Close()
				return
			}
		case <-t.C:
			now := time.Now()
			if last.Load().(time.Time).Add(keepAlive).After(now) {
				continue
			}
			if last.Load().(time.Time).Add(keepAlive + maxRTT).Before(now) {
				// probably back from sleep, reset connection
				conn.Close()
				return
			}
			last.Store(now)
			if _, err := fmt.Fprint(conn, "PING _\r\n"); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// wantsLabel reports whether outbound command should carry a label tag.
// Registration and keepalive traffic stays unlabeled.
func wantsLabel(command string) bool {
	switch command {
	case "PING", "PONG", "AUTHENTICATE", "CAP", "PASS", "NICK", "USER", "QUIT":
		return false
	}
	return true
}

// redactMessage strips credentials from a message before it reaches the
// debug trace.
func redactMessage(msg Message) Message {
	const placeholder = "<removed>"
	d := msg
	if msg.Command == "PASS" && len(d.Params) >= 1 {
		d.Params = append([]string{placeholder}, d.Params[1:]...)
	} else if msg.Command == "OPER" && len(d.Params) >= 2 {
		d.Params = append([]string{d.Params[0], placeholder}, d.Params[2:]...)
	} else if msg.Command == "AUTHENTICATE" && len(d.Params) >= 1 {
		switch d.Params[0] {
		case "*", "PLAIN", "EXTERNAL":
		default:
			d.Params = append([]string{placeholder}, d.Params[1:]...)
		}
	} else if msg.Command == "REGISTER" && len(d.Params) >= 3 {
		d.Params = append(append([]string{}, d.Params[:2]...), placeholder)
	}
	return d
}

func (e *Engine) connectionLost(conn net.Conn) {
	conn.Close()

	e.mu.Lock()
	if e.conn != conn {
		e.mu.Unlock()
		return
	}
	e.conn = nil
	e.connected = false
	e.registered = false
	close(e.out)
	e.out = nil
	e.negotiator.reset(e.params.Auth)
	e.batches.Reset()
	discarded := e.framer.Close()
	e.mu.Unlock()

	if discarded {
		e.Debugf("dropped unterminated trailing bytes on close")
	}
	e.notifyConnection(false)
}

// subscriptions

// OnEvent registers a callback for engine events, invoked on the read loop
// goroutine in protocol order. The returned function cancels the
// registration.
func (e *Engine) OnEvent(fn func(Event)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.eventSubs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.eventSubs, id)
	}
}

// OnConnectionChange registers a callback invoked with true after a
// successful dial and false when the connection is lost or closed.
func (e *Engine) OnConnectionChange(fn func(connected bool)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.connSubs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.connSubs, id)
	}
}

// OnUserListChange registers a callback invoked with a channel name and its
// current member list whenever that list changes.
func (e *Engine) OnUserListChange(fn func(channel string, users []string)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.userListSubs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.userListSubs, id)
	}
}

// Emit delivers an event to all event subscribers.
func (e *Engine) Emit(ev Event) {
	e.mu.Lock()
	subs := make([]func(Event), 0, len(e.eventSubs))
	for _, fn := range e.eventSubs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (e *Engine) notifyConnection(connected bool) {
	e.mu.Lock()
	subs := make([]func(bool), 0, len(e.connSubs))
	for _, fn := range e.connSubs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(connected)
	}
}

func (e *Engine) notifyUserList(channel string) {
	e.mu.Lock()
	subs := make([]func(string, []string), 0, len(e.userListSubs))
	for _, fn := range e.userListSubs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	users := e.ChannelUsers(channel)
	for _, fn := range subs {
		fn(channel, users)
	}
}

// output

// Send enqueues one outbound message built from a command and its
// parameters. Sending on a disconnected engine is a silent no-op.
func (e *Engine) Send(command string, params ...string) {
	e.enqueue(NewMessage(command, params...))
}

// SendRaw enqueues one outbound message verbatim.
func (e *Engine) SendRaw(line string) {
	e.enqueue(NewRawMessage(line))
}

// Join asks the server to join a channel, with an optional key.
func (e *Engine) Join(channel, key string) {
	if key != "" {
		e.Send("JOIN", channel, key)
		return
	}
	e.Send("JOIN", channel)
}

// Part leaves a channel, with an optional reason.
func (e *Engine) Part(channel, reason string) {
	if reason != "" {
		e.Send("PART", channel, reason)
		return
	}
	e.Send("PART", channel)
}

// MonitorAdd asks the server for online/offline notifications about target.
// The request is only sent when the server advertises MONITOR support.
func (e *Engine) MonitorAdd(target string) {
	e.mu.Lock()
	cf := e.casemap(target)
	_, known := e.monitors[cf]
	if !known {
		e.monitors[cf] = struct{}{}
	}
	send := !known && e.monitor
	e.mu.Unlock()
	if send {
		e.Send("MONITOR", "+", target)
	}
}

// MonitorRemove stops monitoring target.
func (e *Engine) MonitorRemove(target string) {
	e.mu.Lock()
	cf := e.casemap(target)
	_, known := e.monitors[cf]
	delete(e.monitors, cf)
	send := known && e.monitor
	e.mu.Unlock()
	if send {
		e.Send("MONITOR", "-", target)
	}
}

// Monitors lists the monitored nicks, casemapped.
func (e *Engine) Monitors() []string {
	e.mu.Lock()
	targets := make([]string, 0, len(e.monitors))
	for cf := range e.monitors {
		targets = append(targets, cf)
	}
	e.mu.Unlock()
	sort.Strings(targets)
	return targets
}

func (e *Engine) enqueue(msg Message) {
	e.mu.Lock()
	out := e.out
	e.mu.Unlock()
	if out == nil {
		return
	}
	defer func() {
		// the write loop may close out concurrently with a late send
		recover()
	}()
	out <- msg
}

// CloseConnection tears down the transport. State cleanup happens on the
// read loop exit path.
func (e *Engine) CloseConnection() {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Debugf forwards a protocol trace line to the configured debug sink.
func (e *Engine) Debugf(format string, args ...interface{}) {
	if e.params.Debug != nil {
		e.params.Debug(format, args...)
	}
}

// introspection

// Nick is the current nickname, which may differ from the configured one
// after collision fallback or a NICK change.
func (e *Engine) Nick() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nick
}

// Account is the authenticated account name, or "" when not logged in.
func (e *Engine) Account() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account
}

func (e *Engine) IsMe(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.casemap(name) == e.nickCf
}

func (e *Engine) IsChannel(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(name) > 0 && strings.IndexByte(e.chantypes, name[0]) >= 0
}

func (e *Engine) Casemap(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.casemap(name)
}

func (e *Engine) Registered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registered
}

// HasCapability reports whether the given capability has been negotiated
// successfully.
func (e *Engine) HasCapability(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.negotiator.has(name)
}

// SASLAuthenticating reports whether a SASL exchange is in flight.
func (e *Engine) SASLAuthenticating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.negotiator.authenticating
}

func (e *Engine) Negotiator() *capNegotiator {
	return e.negotiator
}

func (e *Engine) Batches() *BatchManager {
	return e.batches
}

func (e *Engine) MembershipModes() (modes, symbols string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefixModes, e.prefixSymbols
}

func (e *Engine) whoxEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.whox
}

// maxTextLen bounds the text portion of an outbound PRIVMSG/NOTICE to target
// so the line fits the server's LINELEN after prefix expansion. The host
// falls back to the widest IPv4 form when not yet known.
func (e *Engine) maxTextLen(target string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hostLen := len(e.host)
	if hostLen == 0 {
		hostLen = len("255.255.255.255")
	}
	max := e.linelen - len(":!@ PRIVMSG  :\r\n") - len(e.nick) - len(e.user) - hostLen - len(target)
	if max < 1 {
		max = 1
	}
	return max
}

func (e *Engine) ChannelModeTypes() [4]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chanmodes
}

func (e *Engine) IsIgnored(prefix *Prefix) bool {
	e.mu.Lock()
	ignored := e.ignored
	e.mu.Unlock()
	return ignored != nil && ignored(prefix)
}

// self state

func (e *Engine) SetRegistered(nick string) {
	e.mu.Lock()
	e.registered = true
	e.nick = nick
	e.nickCf = e.casemap(nick)
	e.mu.Unlock()
}

func (e *Engine) SetSelfNick(nick string) {
	e.mu.Lock()
	e.nick = nick
	e.nickCf = e.casemap(nick)
	e.mu.Unlock()
}

func (e *Engine) SetAccount(account string) {
	e.mu.Lock()
	e.account = account
	e.mu.Unlock()
}

func (e *Engine) SetUserHost(user, host string) {
	e.mu.Lock()
	if user != "" {
		e.user = user
	}
	if host != "" {
		e.host = host
	}
	e.mu.Unlock()
}

// ApplyISupport folds an RPL_ISUPPORT parameter list into the feature state.
// A leading "-" on a token resets that feature to its default.
func (e *Engine) ApplyISupport(features []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, feature := range features {
		if strings.HasPrefix(feature, "-") {
			// negation resets to defaults; rare enough to handle coarsely
			key := feature[1:]
			switch key {
			case "CASEMAPPING":
				e.casemap = CasemapRFC1459
			case "CHANTYPES":
				e.chantypes = "#&"
			case "PREFIX":
				e.prefixModes, e.prefixSymbols = "ov", "@+"
			case "LINELEN":
				e.linelen = 512
			case "MONITOR":
				e.monitor = false
			case "WHOX":
				e.whox = false
			}
			continue
		}
		key, value := feature, ""
		if i := strings.IndexByte(feature, '='); i >= 0 {
			key, value = feature[:i], feature[i+1:]
		}
		switch key {
		case "CASEMAPPING":
			switch value {
			case "ascii":
				e.casemap = CasemapASCII
			default:
				e.casemap = CasemapRFC1459
			}
			e.nickCf = e.casemap(e.nick)
		case "CHANTYPES":
			e.chantypes = value
		case "CHANMODES":
			parts := strings.SplitN(value, ",", 5)
			for i := 0; i < len(parts) && i < 4; i++ {
				e.chanmodes[i] = parts[i]
			}
		case "PREFIX":
			if i := strings.IndexByte(value, ')'); strings.HasPrefix(value, "(") && i >= 0 && len(value[i+1:]) == i-1 {
				e.prefixModes = value[1:i]
				e.prefixSymbols = value[i+1:]
			}
		case "LINELEN":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				e.linelen = n
			}
		case "MONITOR":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				e.monitor = true
			}
		case "WHOX":
			e.whox = true
		}
	}
}

// channel state

func (e *Engine) channel(name string) *channelState {
	return e.channels[e.casemap(name)]
}

func (e *Engine) EnsureChannel(channel string) {
	e.mu.Lock()
	cf := e.casemap(channel)
	if _, ok := e.channels[cf]; !ok {
		e.channels[cf] = &channelState{
			name:    channel,
			members: map[string]channelMember{},
		}
	}
	e.mu.Unlock()
}

func (e *Engine) DropChannel(channel string) {
	e.mu.Lock()
	delete(e.channels, e.casemap(channel))
	e.mu.Unlock()
}

// MigrateChannel moves the state of former under the new channel name,
// preserving members and topic. It reports false when former is unknown or
// the names are the same channel.
func (e *Engine) MigrateChannel(former, channel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	formerCf := e.casemap(former)
	cf := e.casemap(channel)
	c, ok := e.channels[formerCf]
	if !ok {
		return false
	}
	if formerCf == cf {
		c.name = channel
		return false
	}
	delete(e.channels, formerCf)
	c.name = channel
	e.channels[cf] = c
	return true
}

func (e *Engine) ChannelJoined(channel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel(channel) != nil
}

func (e *Engine) ChannelSynced(channel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.channel(channel)
	return c != nil && c.synced
}

func (e *Engine) SetChannelSynced(channel string) {
	e.mu.Lock()
	if c := e.channel(channel); c != nil {
		c.synced = true
	}
	e.mu.Unlock()
}

// Channels lists the joined channels with their display-cased names.
func (e *Engine) Channels() []string {
	e.mu.Lock()
	names := make([]string, 0, len(e.channels))
	for _, c := range e.channels {
		names = append(names, c.name)
	}
	e.mu.Unlock()
	sort.Strings(names)
	return names
}

// ChannelUsers lists the members of a channel with their display-cased
// nicks.
func (e *Engine) ChannelUsers(channel string) []string {
	e.mu.Lock()
	c := e.channel(channel)
	var nicks []string
	if c != nil {
		nicks = make([]string, 0, len(c.members))
		for _, m := range c.members {
			nicks = append(nicks, m.nick)
		}
	}
	e.mu.Unlock()
	sort.Strings(nicks)
	return nicks
}

func (e *Engine) ChannelUser(channel, nick string) (ChannelUser, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.channel(channel)
	if c == nil {
		return ChannelUser{}, false
	}
	m, ok := c.members[e.casemap(nick)]
	return m.user, ok
}

func (e *Engine) SetChannelUser(channel, nick string, user ChannelUser) {
	e.mu.Lock()
	c := e.channel(channel)
	name := ""
	if c != nil {
		c.members[e.casemap(nick)] = channelMember{nick: nick, user: user}
		name = c.name
	}
	e.mu.Unlock()
	if name != "" {
		e.notifyUserList(name)
	}
}

func (e *Engine) DeleteChannelUser(channel, nick string) {
	e.mu.Lock()
	c := e.channel(channel)
	name := ""
	if c != nil {
		delete(c.members, e.casemap(nick))
		name = c.name
	}
	e.mu.Unlock()
	if name != "" {
		e.notifyUserList(name)
	}
}

// ChannelsWithUser lists the joined channels that have nick as a member.
func (e *Engine) ChannelsWithUser(nick string) []string {
	e.mu.Lock()
	cf := e.casemap(nick)
	var names []string
	for _, c := range e.channels {
		if _, ok := c.members[cf]; ok {
			names = append(names, c.name)
		}
	}
	e.mu.Unlock()
	sort.Strings(names)
	return names
}

// RenameUser re-keys a member in every channel after a NICK change.
func (e *Engine) RenameUser(former, nick string) {
	e.mu.Lock()
	formerCf := e.casemap(former)
	cf := e.casemap(nick)
	var changed []string
	for _, c := range e.channels {
		m, ok := c.members[formerCf]
		if !ok {
			continue
		}
		delete(c.members, formerCf)
		m.nick = nick
		c.members[cf] = m
		changed = append(changed, c.name)
	}
	e.mu.Unlock()
	for _, name := range changed {
		e.notifyUserList(name)
	}
}

func (e *Engine) Topic(channel string) TopicInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.channel(channel); c != nil {
		return c.topic
	}
	return TopicInfo{}
}

func (e *Engine) SetTopic(channel string, topic TopicInfo) {
	e.mu.Lock()
	if c := e.channel(channel); c != nil {
		c.topic = topic
	}
	e.mu.Unlock()
}
