package irc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyISupport(t *testing.T) {
	e := NewEngine(EngineParams{Nickname: "me[x]"})

	// rfc1459 casemapping folds []\~ onto {}|^
	assert.True(t, e.IsMe("me{x}"))

	e.ApplyISupport([]string{"CASEMAPPING=ascii"})
	assert.False(t, e.IsMe("me{x}"))
	assert.True(t, e.IsMe("ME[X]"))

	e.ApplyISupport([]string{"-CASEMAPPING"})
	assert.Equal(t, "me{x}", e.Casemap("me[x]"))

	e.ApplyISupport([]string{"PREFIX=(qaohv)~&@%+", "CHANTYPES=#", "CHANMODES=eIbq,k,flj,imnpst"})
	modes, symbols := e.MembershipModes()
	assert.Equal(t, "qaohv", modes)
	assert.Equal(t, "~&@%+", symbols)
	assert.True(t, e.IsChannel("#chan"))
	assert.False(t, e.IsChannel("&chan"))
	assert.Equal(t, [4]string{"eIbq", "k", "flj", "imnpst"}, e.ChannelModeTypes())

	// malformed PREFIX values are ignored
	e.ApplyISupport([]string{"PREFIX=(qaohv)@+"})
	modes, symbols = e.MembershipModes()
	assert.Equal(t, "qaohv", modes)
	assert.Equal(t, "~&@%+", symbols)

	e.ApplyISupport([]string{"-PREFIX", "-CHANTYPES"})
	modes, symbols = e.MembershipModes()
	assert.Equal(t, "ov", modes)
	assert.Equal(t, "@+", symbols)
	assert.True(t, e.IsChannel("&chan"))
}

func TestMigrateChannel(t *testing.T) {
	e := NewEngine(EngineParams{Nickname: "me"})
	e.EnsureChannel("#old")
	e.SetChannelUser("#old", "alice", ChannelUser{Membership: "@"})
	e.SetTopic("#old", TopicInfo{Topic: "t"})

	assert.False(t, e.MigrateChannel("#unknown", "#new"))

	// a display-case change of the same channel is not a migration
	assert.False(t, e.MigrateChannel("#old", "#OLD"))
	assert.Equal(t, []string{"#OLD"}, e.Channels())

	assert.True(t, e.MigrateChannel("#old", "#new"))
	assert.False(t, e.ChannelJoined("#old"))
	user, ok := e.ChannelUser("#new", "alice")
	require.True(t, ok)
	assert.Equal(t, "@", user.Membership)
	assert.Equal(t, "t", e.Topic("#new").Topic)
}

func TestRenameUserAcrossChannels(t *testing.T) {
	e := NewEngine(EngineParams{Nickname: "me"})
	e.EnsureChannel("#a")
	e.EnsureChannel("#b")
	e.SetChannelUser("#a", "alice", ChannelUser{Membership: "@"})
	e.SetChannelUser("#b", "alice", ChannelUser{})

	var changed []string
	e.OnUserListChange(func(channel string, users []string) {
		changed = append(changed, channel)
		assert.Contains(t, users, "alicia")
	})

	e.RenameUser("alice", "alicia")
	assert.ElementsMatch(t, []string{"#a", "#b"}, e.ChannelsWithUser("alicia"))
	assert.Empty(t, e.ChannelsWithUser("alice"))
	assert.ElementsMatch(t, []string{"#a", "#b"}, changed)

	user, ok := e.ChannelUser("#a", "ALICIA")
	require.True(t, ok)
	assert.Equal(t, "@", user.Membership)
}

func TestEventSubscriptionCancel(t *testing.T) {
	e := NewEngine(EngineParams{Nickname: "me"})
	n := 0
	cancel := e.OnEvent(func(Event) { n++ })
	e.Emit(BeepEvent{})
	cancel()
	e.Emit(BeepEvent{})
	assert.Equal(t, 1, n)
}

func TestSendWhileDisconnected(t *testing.T) {
	e := NewEngine(EngineParams{Nickname: "me"})
	assert.NotPanics(t, func() {
		e.Send("PRIVMSG", "#chan", "hello")
		e.SendRaw("PING x")
	})
}

// scriptedServer answers the registration burst of an engine on the far side
// of a pipe.
func scriptedServer(t *testing.T, conn net.Conn, caps string) {
	t.Helper()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		msg, err := ParseMessage(strings.TrimRight(line, "\r\n"))
		if err != nil {
			continue
		}
		switch msg.Command {
		case "CAP":
			switch msg.Params[0] {
			case "LS":
				fmt.Fprintf(conn, ":srv CAP * LS :%s\r\n", caps)
			case "REQ":
				fmt.Fprintf(conn, ":srv CAP * ACK :%s\r\n", msg.Params[1])
			case "END":
				fmt.Fprintf(conn, ":srv 001 me :Welcome\r\n")
			}
		case "QUIT":
			conn.Close()
			return
		}
	}
}

func TestEngineRegistration(t *testing.T) {
	client, server := net.Pipe()
	go scriptedServer(t, server, "server-time message-tags sasl")

	e := NewEngine(EngineParams{
		Nickname: "me",
		Username: "me",
		Realname: "Me",
		Dial: func(ctx context.Context) (net.Conn, error) {
			return client, nil
		},
	})

	registered := make(chan struct{})
	e.OnEvent(func(ev Event) {
		if _, ok := ev.(RegisteredEvent); ok {
			close(registered)
		}
	})

	require.NoError(t, e.Connect(context.Background()))
	defer e.Disconnect()

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("registration did not complete")
	}

	assert.True(t, e.Registered())
	assert.True(t, e.HasCapability("server-time"))
	assert.True(t, e.HasCapability("message-tags"))
	// sasl was advertised but no credentials were configured
	assert.False(t, e.HasCapability("sasl"))
	assert.False(t, e.SASLAuthenticating())

	assert.Error(t, e.Connect(context.Background()), "connecting twice is an error")
}

func TestEngineConnectionLoss(t *testing.T) {
	client, server := net.Pipe()
	go scriptedServer(t, server, "server-time")

	e := NewEngine(EngineParams{
		Nickname: "me",
		Username: "me",
		Realname: "Me",
		Dial: func(ctx context.Context) (net.Conn, error) {
			return client, nil
		},
	})

	down := make(chan struct{})
	e.OnConnectionChange(func(connected bool) {
		if !connected {
			close(down)
		}
	})

	require.NoError(t, e.Connect(context.Background()))
	server.Close()

	select {
	case <-down:
	case <-time.After(5 * time.Second):
		t.Fatal("connection loss was not observed")
	}
	assert.False(t, e.Connected())
	assert.False(t, e.Registered())

	// a disconnected engine stays safe to send on
	assert.NotPanics(t, func() { e.Send("PING", "x") })
}

func TestEngineDialFailure(t *testing.T) {
	e := NewEngine(EngineParams{
		Nickname: "me",
		Dial: func(ctx context.Context) (net.Conn, error) {
			return nil, fmt.Errorf("no route to host")
		},
	})
	assert.Error(t, e.Connect(context.Background()))
	assert.False(t, e.Connected())
}

func TestJoinPartHelpers(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.Join("#chan", "")
	e.Join("#secret", "hunter2")
	e.Part("#chan", "")
	e.Part("#chan", "bye for now")
	assert.Equal(t, []string{
		"JOIN :#chan",
		"JOIN #secret :hunter2",
		"PART :#chan",
		"PART #chan :bye for now",
	}, sent())
}

func TestKeepaliveInboundOnlyTraffic(t *testing.T) {
	oldKeepAlive, oldMaxRTT := keepAlive, maxRTT
	keepAlive, maxRTT = 200*time.Millisecond, 200*time.Millisecond
	defer func() { keepAlive, maxRTT = oldKeepAlive, oldMaxRTT }()

	client, server := net.Pipe()
	go func() {
		// swallow the registration burst and any keepalive pings
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	e := NewEngine(EngineParams{
		Nickname: "me",
		Username: "me",
		Realname: "Me",
		Dial: func(ctx context.Context) (net.Conn, error) {
			return client, nil
		},
	})

	down := make(chan struct{})
	e.OnConnectionChange(func(connected bool) {
		if !connected {
			close(down)
		}
	})
	require.NoError(t, e.Connect(context.Background()))

	// a server that only talks to us, never answering pings, stays up
	for i := 0; i < 12; i++ {
		select {
		case <-down:
			t.Fatal("connection with inbound traffic was torn down")
		case <-time.After(50 * time.Millisecond):
		}
		fmt.Fprintf(server, ":srv NOTICE me :tick\r\n")
	}

	// once it goes quiet, the read deadline tears the connection down
	select {
	case <-down:
	case <-time.After(5 * time.Second):
		t.Fatal("idle connection was not torn down")
	}
	assert.False(t, e.Connected())
}
