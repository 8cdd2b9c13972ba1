package irc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInputEngine builds an engine with a captive outbound queue and an event
// recorder, without any network connection.
func newInputEngine() (e *Engine, sent func() []string, events *[]Event) {
	e = NewEngine(EngineParams{Nickname: "me", Username: "me", Realname: "me"})
	e.out = make(chan Message, 64)
	evs := &[]Event{}
	e.OnEvent(func(ev Event) { *evs = append(*evs, ev) })
	sent = func() []string {
		var lines []string
		for {
			select {
			case msg := <-e.out:
				lines = append(lines, msg.String())
			default:
				return lines
			}
		}
	}
	return e, sent, evs
}

func inputErrors(events []Event) []string {
	var msgs []string
	for _, ev := range events {
		if err, ok := ev.(ErrorEvent); ok && err.Code == "INPUT" {
			msgs = append(msgs, err.Message)
		}
	}
	return msgs
}

func TestParseInputCommand(t *testing.T) {
	for _, c := range []struct {
		input     string
		command   string
		args      string
		isCommand bool
	}{
		{"hello there", "", "hello there", false},
		{"/msg bob hi", "MSG", "bob hi", true},
		{"/quit", "QUIT", "", true},
		{"/QuIt  now", "QUIT", "now", true},
		{"//hello", "", "/hello", false},
		{"/", "", "", true},
	} {
		command, args, isCommand := parseInputCommand(c.input)
		assert.Equal(t, c.command, command, "input %q", c.input)
		assert.Equal(t, c.args, args, "input %q", c.input)
		assert.Equal(t, c.isCommand, isCommand, "input %q", c.input)
	}
}

func TestFieldsN(t *testing.T) {
	assert.Equal(t, []string{"a", "b c d"}, fieldsN("a b c d", 2))
	assert.Equal(t, []string{"a b c"}, fieldsN(" a b c ", 1))
	assert.Equal(t, []string{"a", "b", "c"}, fieldsN("a  b   c", maxArgsInfinite))
	assert.Nil(t, fieldsN("", 3))
	assert.Nil(t, fieldsN("a b", 0))
}

func TestInputPlainText(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("#chan", "hello everyone")
	assert.Equal(t, []string{"PRIVMSG #chan :hello everyone"}, sent())

	// no echo-message: a local echo event is emitted
	require.Len(t, *events, 1)
	echo := (*events)[0].(MessageEvent)
	assert.Equal(t, "me", echo.User)
	assert.Equal(t, "#chan", echo.Target)
	assert.Equal(t, "hello everyone", echo.Content)
}

func TestInputPlainTextEchoMessage(t *testing.T) {
	e, sent, events := newInputEngine()
	e.negotiator.available["echo-message"] = ""
	e.negotiator.enabled["echo-message"] = struct{}{}
	e.HandleInput("#chan", "hello")
	assert.Equal(t, []string{"PRIVMSG #chan :hello"}, sent())
	assert.Empty(t, *events, "the server echoes the message back")
}

func TestInputServerBufferRejectsText(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("", "hello")
	assert.Empty(t, sent())
	require.Len(t, inputErrors(*events), 1)
}

func TestInputDoubleSlashEscape(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("#chan", "//slashed message")
	assert.Equal(t, []string{"PRIVMSG #chan :/slashed message"}, sent())
}

func TestInputLoneSlash(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("#chan", "/")
	assert.Empty(t, sent())
	assert.Len(t, inputErrors(*events), 1)
}

func TestInputUnknownCommandPassthrough(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("#chan", "/CHATHISTORY LATEST #chan * 50")
	assert.Equal(t, []string{"CHATHISTORY LATEST #chan * 50"}, sent())
	require.Len(t, *events, 1)
	ev := (*events)[0].(ServerCommandEvent)
	assert.Equal(t, "CHATHISTORY", ev.Command)
	assert.Equal(t, "LATEST #chan * 50", ev.Args)
}

func TestInputUsageError(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("#chan", "/msg bob")
	assert.Empty(t, sent())
	errs := inputErrors(*events)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "usage: MSG")
}

func TestInputMsgAndNotice(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("", "/msg bob hello there")
	assert.Equal(t, []string{"PRIVMSG bob :hello there"}, sent())

	e.HandleInput("", "/notice bob heads up")
	assert.Equal(t, []string{"NOTICE bob :heads up"}, sent())
}

func TestInputMe(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("#chan", "/me waves to everyone")
	assert.Equal(t, []string{"PRIVMSG #chan :\x01ACTION waves to everyone\x01"}, sent())

	e.HandleInput("", "/me waves")
	assert.Empty(t, sent())
	assert.NotEmpty(t, inputErrors(*events))
}

func TestInputPart(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("#chan", "/part")
	assert.Equal(t, []string{"PART :#chan"}, sent())

	e.HandleInput("#chan", "/part #other gone fishing")
	assert.Equal(t, []string{"PART #other :gone fishing"}, sent())

	e.HandleInput("#chan", "/part because reasons")
	assert.Equal(t, []string{"PART #chan :because reasons"}, sent())
}

func TestInputPartOutsideChannel(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("bob", "/part")
	assert.Empty(t, sent())
	errs := inputErrors(*events)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "channel")
}

func TestInputAwayBack(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("", "/away out to lunch")
	assert.Equal(t, []string{"AWAY :out to lunch"}, sent())

	// a bare /away clears the away status
	e.HandleInput("", "/away")
	assert.Equal(t, []string{"AWAY"}, sent())

	e.HandleInput("", "/back")
	assert.Equal(t, []string{"AWAY"}, sent())
}

func TestInputBanAndKickban(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("#chan", "/ban troll")
	assert.Equal(t, []string{"MODE #chan +b :troll!*@*"}, sent())

	e.HandleInput("#chan", "/unban *!*@evil.example")
	assert.Equal(t, []string{"MODE #chan -b :*!*@evil.example"}, sent())

	e.HandleInput("#chan", "/kickban troll flooding")
	assert.Equal(t, []string{
		"MODE #chan +b :troll!*@*",
		"KICK #chan troll :flooding",
	}, sent())
}

func TestInputMembershipCommands(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("#chan", "/op alice bob")
	assert.Equal(t, []string{"MODE #chan +oo alice :bob"}, sent())

	e.HandleInput("#chan", "/devoice carol")
	assert.Equal(t, []string{"MODE #chan -v :carol"}, sent())

	e2, sent2, events := newInputEngine()
	e2.HandleInput("", "/op alice")
	assert.Empty(t, sent2())
	assert.NotEmpty(t, inputErrors(*events))
}

func TestInputMode(t *testing.T) {
	e, sent, _ := newInputEngine()
	// flags without a target are applied to the buffer channel
	e.HandleInput("#chan", "/mode +m")
	assert.Equal(t, []string{"MODE #chan :+m"}, sent())

	// outside a channel, flags target the user
	e.HandleInput("", "/mode +i")
	assert.Equal(t, []string{"MODE me :+i"}, sent())

	e.HandleInput("", "/mode #other +k secret")
	assert.Equal(t, []string{"MODE #other +k :secret"}, sent())
}

func TestInputNick(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("", "/nick newnick")
	assert.Equal(t, []string{"NICK :newnick"}, sent())

	e.HandleInput("", "/nick bad nick!")
	assert.Empty(t, sent())
	assert.NotEmpty(t, inputErrors(*events))
}

func TestInputQuote(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("", "/quote CHATHISTORY BEFORE * timestamp=now 10")
	assert.Equal(t, []string{"CHATHISTORY BEFORE * timestamp=now 10"}, sent())
}

func TestInputRegister(t *testing.T) {
	// without the capability the command is refused before anything is sent
	e, sent, events := newInputEngine()
	e.HandleInput("", "/register me@example.com hunter2")
	assert.Empty(t, sent())
	errs := inputErrors(*events)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not supported")

	e, sent, events = newInputEngine()
	e.negotiator.available["draft/account-registration"] = ""
	e.negotiator.enabled["draft/account-registration"] = struct{}{}

	e.HandleInput("", "/register me@example.com hunter2")
	assert.Equal(t, []string{"REGISTER * me@example.com :hunter2"}, sent())

	e.HandleInput("", "/register myacct me@example.com hunter2")
	assert.Equal(t, []string{"REGISTER myacct me@example.com :hunter2"}, sent())

	e.HandleInput("", "/register lonearg")
	assert.Empty(t, sent())
	assert.NotEmpty(t, inputErrors(*events))
}

func TestInputReconnect(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("", "/reconnect")
	assert.Empty(t, sent())
	require.Len(t, *events, 1)
	assert.IsType(t, ReconnectRequestEvent{}, (*events)[0])
}

func TestInputClearClose(t *testing.T) {
	e, sent, events := newInputEngine()
	e.HandleInput("#chan", "/clear")
	require.Len(t, *events, 1)
	assert.Equal(t, "#chan", (*events)[0].(ClearTabEvent).Target)

	e.EnsureChannel("#chan")
	e.HandleInput("#chan", "/close")
	assert.Equal(t, []string{"PART :#chan"}, sent())
	assert.Equal(t, "#chan", (*events)[1].(CloseTabEvent).Target)

	// closing a conversation buffer does not part anything
	e.HandleInput("bob", "/close")
	assert.Empty(t, sent())
}

func TestInputBroadcast(t *testing.T) {
	e, sent, events := newInputEngine()
	e.EnsureChannel("#a")
	e.EnsureChannel("#b")
	e.HandleInput("", "/amsg hello all")
	assert.Equal(t, []string{
		"PRIVMSG #a :hello all",
		"PRIVMSG #b :hello all",
	}, sent())
	require.Len(t, *events, 1)
	ev := (*events)[0].(BroadcastEvent)
	assert.Equal(t, "AMSG", ev.Command)
	assert.Equal(t, "hello all", ev.Content)
}

func TestInputWhois(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("bob", "/whois")
	assert.Equal(t, []string{"WHOIS :bob"}, sent())

	e.HandleInput("#chan", "/whois alice")
	assert.Equal(t, []string{"WHOIS :alice"}, sent())

	e2, sent2, events := newInputEngine()
	e2.HandleInput("#chan", "/whois")
	assert.Empty(t, sent2())
	assert.NotEmpty(t, inputErrors(*events))
}

func TestInputPassthroughCommands(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("", "/motd")
	assert.Equal(t, []string{"MOTD"}, sent())

	e.HandleInput("", "/oper admin secret")
	assert.Equal(t, []string{"OPER admin :secret"}, sent())

	e.HandleInput("", "/kill spammer flooding the network")
	assert.Equal(t, []string{"KILL spammer :flooding the network"}, sent())

	e.HandleInput("", "/wallops maintenance in five minutes")
	assert.Equal(t, []string{"WALLOPS :maintenance in five minutes"}, sent())
}

func TestInputTopic(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("#chan", "/topic")
	assert.Equal(t, []string{"TOPIC :#chan"}, sent())

	e.HandleInput("#chan", "/topic the new topic")
	assert.Equal(t, []string{"TOPIC #chan :the new topic"}, sent())
}

func TestInputWho(t *testing.T) {
	e, sent, _ := newInputEngine()
	e.HandleInput("", "/who #chan")
	assert.Equal(t, []string{"WHO :#chan"}, sent())

	// with WHOX support the query asks for the fields we track
	e.ApplyISupport([]string{"WHOX"})
	e.HandleInput("", "/who #chan")
	assert.Equal(t, []string{"WHO #chan :%uhnf"}, sent())
}

func TestInputMonitor(t *testing.T) {
	e, sent, _ := newInputEngine()
	// without server support the target is remembered but nothing is sent
	e.HandleInput("", "/monitor + Alice")
	assert.Empty(t, sent())
	assert.Equal(t, []string{"alice"}, e.Monitors())

	e.ApplyISupport([]string{"MONITOR=100"})
	e.HandleInput("", "/monitor + Bob")
	assert.Equal(t, []string{"MONITOR + :Bob"}, sent())

	// adding the same target twice sends nothing
	e.HandleInput("", "/monitor + bob")
	assert.Empty(t, sent())

	e.HandleInput("", "/monitor - Bob")
	assert.Equal(t, []string{"MONITOR - :Bob"}, sent())
	assert.Equal(t, []string{"alice"}, e.Monitors())

	e2, sent2, events := newInputEngine()
	e2.HandleInput("", "/monitor ? nick")
	assert.Empty(t, sent2())
	assert.NotEmpty(t, inputErrors(*events))
}

func TestSendTextSplitsLongMessages(t *testing.T) {
	e, sent, events := newInputEngine()
	e.ApplyISupport([]string{"LINELEN=80"})

	// nick "me", user "me", unknown host: 40 bytes of text fit per line
	e.SendText("#chan", strings.Repeat("a", 100))
	assert.Equal(t, []string{
		"PRIVMSG #chan :" + strings.Repeat("a", 40),
		"PRIVMSG #chan :" + strings.Repeat("a", 40),
		"PRIVMSG #chan :" + strings.Repeat("a", 20),
	}, sent())

	// one local echo per line
	require.Len(t, *events, 3)
	assert.Equal(t, strings.Repeat("a", 20), (*events)[2].(MessageEvent).Content)
}

func TestSplitChunks(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitChunks("hello", 10))
	assert.Equal(t, []string{"ab", "cd", "e"}, splitChunks("abcde", 2))
	// runes are never cut in half
	assert.Equal(t, []string{"a", "é"}, splitChunks("aé", 2))
}

func TestRedactMessage(t *testing.T) {
	assert.Equal(t, "PASS :<removed>", redactMessage(NewMessage("PASS", "secret")).String())
	assert.Equal(t, "OPER admin :<removed>", redactMessage(NewMessage("OPER", "admin", "secret")).String())
	assert.Equal(t, "AUTHENTICATE :<removed>", redactMessage(NewMessage("AUTHENTICATE", "base64creds")).String())
	assert.Equal(t, "AUTHENTICATE :PLAIN", redactMessage(NewMessage("AUTHENTICATE", "PLAIN")).String())
	assert.Equal(t, "REGISTER * a@b :<removed>", redactMessage(NewMessage("REGISTER", "*", "a@b", "secret")).String())
	assert.Equal(t, "PRIVMSG #chan :hi", redactMessage(NewMessage("PRIVMSG", "#chan", "hi")).String())
}
