package hibiki

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~emka/hibiki/irc"
)

// fakeConn is an in-memory net.Conn fed by the test. Reads block until data
// is served or the connection is closed; writes are captured.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) serve(line string) {
	select {
	case c.in <- []byte(line + "\r\n"):
	case <-c.closed:
	}
}

func (c *fakeConn) wrote(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Contains(string(c.written), line+"\r\n")
}

func (c *fakeConn) Read(b []byte) (int, error) {
	select {
	case data := <-c.in:
		return copy(b, data), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeConn) Write(b []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, b...)
	c.mu.Unlock()
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// testDialer hands out fakeConns, optionally slowly or failing.
type testDialer struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	conns []*fakeConn
}

func (d *testDialer) dial(config NetworkConfig) irc.DialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.err != nil {
			return nil, d.err
		}
		c := newFakeConn()
		d.conns = append(d.conns, c)
		return c, nil
	}
}

func (d *testDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *testDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// promptRegistrar wakes sleepers immediately and records requested delays.
type promptRegistrar struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *promptRegistrar) Schedule(delay time.Duration, wake func()) (cancel func()) {
	r.mu.Lock()
	r.delays = append(r.delays, delay)
	r.mu.Unlock()
	go wake()
	return func() {}
}

func (r *promptRegistrar) requested() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testConfig() NetworkConfig {
	return NetworkConfig{
		Name: "net",
		Addr: "irc.example.org:6697",
		Nick: "me",
		User: "me",
		Real: "Me",
	}
}

func TestConnectValidation(t *testing.T) {
	m := NewManager(ManagerOptions{Dialer: (&testDialer{}).dial})
	_, err := m.Connect(context.Background(), NetworkConfig{Nick: "me"})
	assert.Error(t, err)
	_, err = m.Connect(context.Background(), NetworkConfig{Addr: "irc.example.org"})
	assert.Error(t, err)
	assert.Empty(t, m.Contexts())
}

func TestConnectCollapsesConcurrentDials(t *testing.T) {
	d := &testDialer{delay: 200 * time.Millisecond}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	const n = 12
	start := make(chan struct{})
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ids[i], errs[i] = m.Connect(context.Background(), testConfig())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "net", ids[i])
	}
	assert.Equal(t, []string{"net"}, m.Contexts())
	assert.Equal(t, 1, d.count())
}

func TestConnectEstablishedGetsSibling(t *testing.T) {
	d := &testDialer{}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	id1, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "net", id1)

	id2, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "net (1)", id2)

	id3, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "net (2)", id3)

	assert.Equal(t, []string{"net", "net (1)", "net (2)"}, m.Contexts())
}

func TestConnectReusesDisconnectedContext(t *testing.T) {
	d := &testDialer{}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(id))

	c, ok := m.Context(id)
	require.True(t, ok)
	require.Eventually(t, func() bool { return !c.Connected() }, 5*time.Second, 10*time.Millisecond)

	again, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, []string{"net"}, m.Contexts())
	assert.Equal(t, 2, d.count())
}

func TestConnectFailedDialLeavesNoContext(t *testing.T) {
	d := &testDialer{err: errors.New("no route to host")}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	_, err := m.Connect(context.Background(), testConfig())
	assert.Error(t, err)
	assert.Empty(t, m.Contexts())

	// the identity is connectable again once dialing works
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "net", id)
}

func TestSupervisorReconnects(t *testing.T) {
	d := &testDialer{}
	r := &promptRegistrar{}
	m := NewManager(ManagerOptions{Dialer: d.dial, Registrar: r})

	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)

	// the server drops the connection
	d.conn(0).Close()

	require.Eventually(t, func() bool { return d.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	c, _ := m.Context(id)
	require.Eventually(t, func() bool { return c.Connected() }, 5*time.Second, 10*time.Millisecond)

	delays := r.requested()
	require.NotEmpty(t, delays)
	assert.Equal(t, 6*time.Second, delays[0])
}

func TestReconnectBackoffGrows(t *testing.T) {
	d := &testDialer{}
	r := &promptRegistrar{}
	m := NewManager(ManagerOptions{Dialer: d.dial, Registrar: r})

	_, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)

	// every redial fails until the fourth attempt
	d.mu.Lock()
	d.err = errors.New("still down")
	d.mu.Unlock()
	d.conn(0).Close()

	require.Eventually(t, func() bool { return len(r.requested()) >= 3 }, 5*time.Second, 10*time.Millisecond)
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()

	require.Eventually(t, func() bool { return d.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	delays := r.requested()
	assert.Equal(t, 6*time.Second, delays[0])
	assert.Equal(t, 12*time.Second, delays[1])
	assert.Equal(t, 18*time.Second, delays[2])
}

func TestDisconnectStopsSupervision(t *testing.T) {
	d := &testDialer{}
	r := &promptRegistrar{}
	m := NewManager(ManagerOptions{Dialer: d.dial, Registrar: r})

	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(id))

	c, _ := m.Context(id)
	require.Eventually(t, func() bool { return !c.Connected() }, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, r.requested(), "an intentional disconnect is not retried")
	assert.Equal(t, 1, d.count())

	assert.Error(t, m.Disconnect("missing"))
}

func TestManagerEventsTaggedWithContextID(t *testing.T) {
	d := &testDialer{}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	type tagged struct {
		id string
		ev irc.Event
	}
	events := make(chan tagged, 16)
	m.OnEvent(func(id string, ev irc.Event) {
		events <- tagged{id, ev}
	})

	config := testConfig()
	config.Channels = []string{"#chan"}
	id, err := m.Connect(context.Background(), config)
	require.NoError(t, err)

	d.conn(0).serve(":srv 001 me :Welcome")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-events:
			assert.Equal(t, id, got.id)
			if _, ok := got.ev.(irc.RegisteredEvent); !ok {
				continue
			}
		case <-deadline:
			t.Fatal("no RegisteredEvent observed")
		}
		break
	}

	// configured channels are joined on registration
	require.Eventually(t, func() bool {
		return d.conn(0).wrote("JOIN :#chan")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManagerActiveAndRemove(t *testing.T) {
	d := &testDialer{}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, id, active, "the first context becomes active")

	assert.Error(t, m.SetActive("missing"))
	require.NoError(t, m.SetActive(id))

	require.NoError(t, m.Remove(id))
	assert.Empty(t, m.Contexts())
	_, ok = m.Active()
	assert.False(t, ok)

	assert.Error(t, m.HandleInput(id, "", "/motd"))
}

func TestManagerHandleInput(t *testing.T) {
	d := &testDialer{}
	m := NewManager(ManagerOptions{Dialer: d.dial})

	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)

	require.NoError(t, m.HandleInput(id, "", "/motd"))
	require.Eventually(t, func() bool {
		return d.conn(0).wrote("MOTD")
	}, 5*time.Second, 10*time.Millisecond)
}

type recordingHooks struct {
	mu           sync.Mutex
	eventIDs     []string
	disconnected []string
}

func (h *recordingHooks) OnEvent(id string, ev irc.Event) {
	h.mu.Lock()
	h.eventIDs = append(h.eventIDs, id)
	h.mu.Unlock()
}

func (h *recordingHooks) OnDisconnect(id string) {
	h.mu.Lock()
	h.disconnected = append(h.disconnected, id)
	h.mu.Unlock()
}

func (h *recordingHooks) sawEvent(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, got := range h.eventIDs {
		if got == id {
			return true
		}
	}
	return false
}

func (h *recordingHooks) sawDisconnect(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, got := range h.disconnected {
		if got == id {
			return true
		}
	}
	return false
}

func TestManagerScriptHooks(t *testing.T) {
	d := &testDialer{}
	h := &recordingHooks{}
	m := NewManager(ManagerOptions{Dialer: d.dial, Hooks: h})

	id, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)

	d.conn(0).serve(":srv 001 me :Welcome")
	require.Eventually(t, func() bool {
		return h.sawEvent(id)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Disconnect(id))
	require.Eventually(t, func() bool {
		return h.sawDisconnect(id)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDisconnectAllClearsContexts(t *testing.T) {
	d := &testDialer{}
	r := &promptRegistrar{}
	m := NewManager(ManagerOptions{Dialer: d.dial, Registrar: r})

	_, err := m.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	other := testConfig()
	other.Name = "other"
	other.Nick = "me2"
	_, err = m.Connect(context.Background(), other)
	require.NoError(t, err)
	require.Len(t, m.Contexts(), 2)

	m.DisconnectAll()
	assert.Empty(t, m.Contexts())
	_, ok := m.Active()
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, r.requested(), "dropped contexts are not retried")
	assert.Equal(t, 2, d.count())
}
