package irc

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const maxArgsInfinite = -1

// inputCommand is one slash command of the input handler. A nil Handle
// passes the command and its arguments through to the server verbatim.
type inputCommand struct {
	MinArgs int
	MaxArgs int
	Usage   string
	Desc    string
	Handle  func(e *Engine, buffer string, args []string) error
}

type inputCommandSet map[string]*inputCommand

var inputCommands inputCommandSet

func init() {
	inputCommands = inputCommandSet{
		"AME": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<message>",
			Desc:    "send an action to all joined channels",
			Handle:  commandDoAme,
		},
		"AMSG": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<message>",
			Desc:    "send a message to all joined channels",
			Handle:  commandDoAmsg,
		},
		"ANOTICE": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<message>",
			Desc:    "send a notice to all joined channels",
			Handle:  commandDoAnotice,
		},
		"AWAY": {
			MaxArgs: 1,
			Usage:   "[message]",
			Desc:    "mark yourself as away; no message marks you as back",
			Handle:  commandDoAway,
		},
		"BACK": {
			Desc:   "mark yourself as back from being away",
			Handle: commandDoBack,
		},
		"BAN": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<nick>",
			Desc:    "ban a user from the current channel",
			Handle:  commandDoBan,
		},
		"CLEAR": {
			Desc:   "clear the current buffer",
			Handle: commandDoClear,
		},
		"CLOSE": {
			Desc:   "close the current buffer, parting the channel if joined",
			Handle: commandDoClose,
		},
		"DEOP": {
			MinArgs: 1,
			MaxArgs: maxArgsInfinite,
			Usage:   "<nicks...>",
			Desc:    "remove operator status in the current channel",
			Handle:  commandDoDeop,
		},
		"DEVOICE": {
			MinArgs: 1,
			MaxArgs: maxArgsInfinite,
			Usage:   "<nicks...>",
			Desc:    "remove voice in the current channel",
			Handle:  commandDoDevoice,
		},
		"DISCONNECT": {
			Desc:   "disconnect from the server",
			Handle: commandDoDisconnect,
		},
		"INVITE": {
			MinArgs: 1,
			MaxArgs: 2,
			Usage:   "<nick> [channel]",
			Desc:    "invite a user to a channel",
			Handle:  commandDoInvite,
		},
		"JOIN": {
			MinArgs: 1,
			MaxArgs: 2,
			Usage:   "<channels> [keys]",
			Desc:    "join a channel",
			Handle:  commandDoJoin,
		},
		"KICK": {
			MinArgs: 1,
			MaxArgs: 2,
			Usage:   "<nick> [reason]",
			Desc:    "kick a user from the current channel",
			Handle:  commandDoKick,
		},
		"KICKBAN": {
			MinArgs: 1,
			MaxArgs: 2,
			Usage:   "<nick> [reason]",
			Desc:    "ban then kick a user from the current channel",
			Handle:  commandDoKickban,
		},
		"ME": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<message>",
			Desc:    "send an action to the current buffer",
			Handle:  commandDoMe,
		},
		"MODE": {
			MaxArgs: maxArgsInfinite,
			Usage:   "[<nick/channel>] [<flags>] [args]",
			Desc:    "change channel or user modes",
			Handle:  commandDoMode,
		},
		"MONITOR": {
			MinArgs: 2,
			MaxArgs: 2,
			Usage:   "+|- <nick>",
			Desc:    "receive online/offline notifications about a user",
			Handle:  commandDoMonitor,
		},
		"MSG": {
			MinArgs: 2,
			MaxArgs: 2,
			Usage:   "<target> <message>",
			Desc:    "send a message to the given target",
			Handle:  commandDoMsg,
		},
		"NICK": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<nickname>",
			Desc:    "change your nickname",
			Handle:  commandDoNick,
		},
		"NOTICE": {
			MinArgs: 2,
			MaxArgs: 2,
			Usage:   "<target> <message>",
			Desc:    "send a notice to the given target",
			Handle:  commandDoNotice,
		},
		"OP": {
			MinArgs: 1,
			MaxArgs: maxArgsInfinite,
			Usage:   "<nicks...>",
			Desc:    "give operator status in the current channel",
			Handle:  commandDoOp,
		},
		"PART": {
			MaxArgs: 2,
			Usage:   "[channel] [reason]",
			Desc:    "part a channel",
			Handle:  commandDoPart,
		},
		"QUIT": {
			MaxArgs: 1,
			Usage:   "[reason]",
			Desc:    "quit the server",
			Handle:  commandDoQuit,
		},
		"QUOTE": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<raw line>",
			Desc:    "send a raw protocol line to the server",
			Handle:  commandDoQuote,
		},
		"RECONNECT": {
			Desc:   "reconnect to the server",
			Handle: commandDoReconnect,
		},
		"REGISTER": {
			MinArgs: 2,
			MaxArgs: 3,
			Usage:   "[account] <email> <password>",
			Desc:    "register an account with the server",
			Handle:  commandDoRegister,
		},
		"SETNAME": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<realname>",
			Desc:    "change your realname",
			Handle:  commandDoSetname,
		},
		"TOPIC": {
			MaxArgs: 1,
			Usage:   "[topic]",
			Desc:    "show or set the topic of the current channel",
			Handle:  commandDoTopic,
		},
		"UNBAN": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<nick>",
			Desc:    "unban a user from the current channel",
			Handle:  commandDoUnban,
		},
		"VOICE": {
			MinArgs: 1,
			MaxArgs: maxArgsInfinite,
			Usage:   "<nicks...>",
			Desc:    "give voice in the current channel",
			Handle:  commandDoVoice,
		},
		"WHO": {
			MaxArgs: 1,
			Usage:   "[mask]",
			Desc:    "show information about users matching a mask",
			Handle:  commandDoWho,
		},
		"WHOIS": {
			MaxArgs: 1,
			Usage:   "[nick]",
			Desc:    "show information about a user",
			Handle:  commandDoWhois,
		},
		"WHOWAS": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<nick>",
			Desc:    "show information about a user who has left",
			Handle:  commandDoWhowas,
		},

		// simple passthrough commands
		"ADMIN":   {MaxArgs: 1, Desc: "show server administrator info"},
		"KILL":    {MinArgs: 1, MaxArgs: 2, Usage: "<nick> [reason]", Desc: "forcibly disconnect a user from the server"},
		"INFO":    {Desc: "show server info"},
		"LINKS":   {Desc: "show the servers of the network"},
		"LIST":    {MaxArgs: 1, Usage: "[filter]", Desc: "list channels"},
		"LUSERS":  {Desc: "show server user statistics"},
		"MOTD":    {Desc: "show the message of the day (MOTD)"},
		"NAMES":   {MaxArgs: 1, Usage: "[channel]", Desc: "show the member list of a channel"},
		"OPER":    {MinArgs: 2, MaxArgs: 2, Usage: "<username> <password>", Desc: "log in to an operator account"},
		"PING":    {MaxArgs: 1, Desc: "ping the server"},
		"STATS":   {MaxArgs: maxArgsInfinite, Desc: "show server statistics"},
		"TIME":    {MaxArgs: 1, Desc: "show the server local time"},
		"TRACE":   {MaxArgs: 1, Desc: "trace the route to a server or user"},
		"VERSION": {MaxArgs: 1, Desc: "show the server software version"},
		"WALLOPS": {MinArgs: 1, MaxArgs: 1, Usage: "<message>", Desc: "broadcast a message to all operators"},
	}
}

// HandleInput interprets one line of user input for the given buffer: plain
// text becomes a message to the buffer, a leading slash selects a command.
// Misuse never reaches the server; it degrades to a local error event.
func (e *Engine) HandleInput(buffer, content string) {
	if content == "" {
		return
	}

	cmdName, rawArgs, isCommand := parseInputCommand(content)
	if !isCommand {
		if buffer == "" {
			e.emitInputError("cannot send messages to a server buffer")
			return
		}
		e.SendText(buffer, rawArgs)
		return
	}
	if cmdName == "" {
		e.emitInputError("lone slash at the beginning")
		return
	}

	cmd, ok := inputCommands[cmdName]
	if !ok {
		// unknown commands pass through verbatim
		if rawArgs != "" {
			e.SendRaw(fmt.Sprintf("%s %s", cmdName, rawArgs))
		} else {
			e.SendRaw(cmdName)
		}
		e.Emit(ServerCommandEvent{Command: cmdName, Args: rawArgs})
		return
	}

	var args []string
	if rawArgs != "" && cmd.MaxArgs != 0 {
		args = fieldsN(rawArgs, cmd.MaxArgs)
	}
	if len(args) < cmd.MinArgs {
		e.emitInputError(fmt.Sprintf("usage: %s %s", cmdName, cmd.Usage))
		return
	}

	if cmd.Handle == nil {
		e.Send(cmdName, args...)
		return
	}
	if err := cmd.Handle(e, buffer, args); err != nil {
		e.emitInputError(err.Error())
	}
}

func (e *Engine) emitInputError(text string) {
	e.Emit(ErrorEvent{
		Severity: SeverityFail,
		Code:     "INPUT",
		Message:  text,
	})
}

// SendText sends a plain message to a target, split so each line fits the
// server's LINELEN, emitting a local echo event per line when the server
// will not echo them back.
func (e *Engine) SendText(target, content string) {
	echo := !e.HasCapability("echo-message")
	for _, chunk := range splitChunks(content, e.maxTextLen(target)) {
		e.Send("PRIVMSG", target, chunk)
		if echo {
			e.Emit(MessageEvent{
				User:            e.Nick(),
				Target:          target,
				TargetIsChannel: e.IsChannel(target),
				Command:         "PRIVMSG",
				Content:         chunk,
				Time:            time.Now().UTC(),
			})
		}
	}
}

// splitChunks cuts content into pieces of at most maxLen bytes, never
// breaking a rune apart.
func splitChunks(content string, maxLen int) []string {
	var chunks []string
	for len(content) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	return append(chunks, content)
}

func currentChannel(e *Engine, buffer string) (string, error) {
	if !e.IsChannel(buffer) {
		return "", fmt.Errorf("this command must be executed from a channel")
	}
	return buffer, nil
}

func commandDoMsg(e *Engine, _ string, args []string) error {
	e.SendText(args[0], args[1])
	return nil
}

func commandDoNotice(e *Engine, _ string, args []string) error {
	e.Send("NOTICE", args[0], args[1])
	if !e.HasCapability("echo-message") {
		e.Emit(MessageEvent{
			User:            e.Nick(),
			Target:          args[0],
			TargetIsChannel: e.IsChannel(args[0]),
			Command:         "NOTICE",
			Content:         args[1],
			Time:            time.Now().UTC(),
		})
	}
	return nil
}

func commandDoMe(e *Engine, buffer string, args []string) error {
	if buffer == "" {
		return fmt.Errorf("cannot send messages to a server buffer")
	}
	e.SendText(buffer, fmt.Sprintf("\x01ACTION %s\x01", args[0]))
	return nil
}

func commandDoAmsg(e *Engine, _ string, args []string) error {
	for _, channel := range e.Channels() {
		e.Send("PRIVMSG", channel, args[0])
	}
	e.Emit(BroadcastEvent{Command: "AMSG", Content: args[0]})
	return nil
}

func commandDoAme(e *Engine, _ string, args []string) error {
	content := fmt.Sprintf("\x01ACTION %s\x01", args[0])
	for _, channel := range e.Channels() {
		e.Send("PRIVMSG", channel, content)
	}
	e.Emit(BroadcastEvent{Command: "AME", Content: args[0]})
	return nil
}

func commandDoAnotice(e *Engine, _ string, args []string) error {
	for _, channel := range e.Channels() {
		e.Send("NOTICE", channel, args[0])
	}
	e.Emit(BroadcastEvent{Command: "ANOTICE", Content: args[0]})
	return nil
}

func commandDoJoin(e *Engine, _ string, args []string) error {
	e.Send("JOIN", args...)
	return nil
}

func commandDoPart(e *Engine, buffer string, args []string) error {
	channel := buffer
	reason := ""
	if len(args) > 0 && e.IsChannel(args[0]) {
		channel = args[0]
		reason = strings.Join(args[1:], " ")
	} else {
		reason = strings.Join(args, " ")
	}
	if !e.IsChannel(channel) {
		return fmt.Errorf("this command must be executed from a channel, or be given a channel name")
	}
	e.Part(channel, reason)
	return nil
}

func commandDoQuit(e *Engine, _ string, args []string) error {
	e.Send("QUIT", args...)
	return nil
}

func commandDoQuote(e *Engine, _ string, args []string) error {
	e.SendRaw(args[0])
	return nil
}

func commandDoNick(e *Engine, _ string, args []string) error {
	if strings.ContainsAny(args[0], " :@!*?") {
		return fmt.Errorf("invalid nickname")
	}
	e.Send("NICK", args[0])
	return nil
}

func commandDoSetname(e *Engine, _ string, args []string) error {
	e.Send("SETNAME", args[0])
	return nil
}

func commandDoMode(e *Engine, buffer string, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "+") || strings.HasPrefix(args[0], "-") {
		// no target given, infer the buffer or self
		target := buffer
		if !e.IsChannel(target) {
			target = e.Nick()
		}
		args = append([]string{target}, args...)
	}
	e.Send("MODE", args...)
	return nil
}

func commandDoTopic(e *Engine, buffer string, args []string) error {
	channel, err := currentChannel(e, buffer)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		e.Send("TOPIC", channel)
	} else {
		e.Send("TOPIC", channel, args[0])
	}
	return nil
}

func commandDoKick(e *Engine, buffer string, args []string) error {
	channel, err := currentChannel(e, buffer)
	if err != nil {
		return err
	}
	params := append([]string{channel}, args...)
	e.Send("KICK", params...)
	return nil
}

func banMask(nick string) string {
	if strings.ContainsAny(nick, "!@*") {
		return nick
	}
	return nick + "!*@*"
}

func commandDoBan(e *Engine, buffer string, args []string) error {
	channel, err := currentChannel(e, buffer)
	if err != nil {
		return err
	}
	e.Send("MODE", channel, "+b", banMask(args[0]))
	return nil
}

func commandDoUnban(e *Engine, buffer string, args []string) error {
	channel, err := currentChannel(e, buffer)
	if err != nil {
		return err
	}
	e.Send("MODE", channel, "-b", banMask(args[0]))
	return nil
}

func commandDoKickban(e *Engine, buffer string, args []string) error {
	channel, err := currentChannel(e, buffer)
	if err != nil {
		return err
	}
	e.Send("MODE", channel, "+b", banMask(args[0]))
	params := append([]string{channel}, args...)
	e.Send("KICK", params...)
	return nil
}

func membershipChange(e *Engine, buffer string, args []string, flag string) error {
	channel, err := currentChannel(e, buffer)
	if err != nil {
		return err
	}
	flags := strings.Repeat(flag[1:], len(args))
	params := append([]string{channel, string(flag[0]) + flags}, args...)
	e.Send("MODE", params...)
	return nil
}

func commandDoOp(e *Engine, buffer string, args []string) error {
	return membershipChange(e, buffer, args, "+o")
}

func commandDoDeop(e *Engine, buffer string, args []string) error {
	return membershipChange(e, buffer, args, "-o")
}

func commandDoVoice(e *Engine, buffer string, args []string) error {
	return membershipChange(e, buffer, args, "+v")
}

func commandDoDevoice(e *Engine, buffer string, args []string) error {
	return membershipChange(e, buffer, args, "-v")
}

func commandDoInvite(e *Engine, buffer string, args []string) error {
	channel := buffer
	if len(args) > 1 {
		channel = args[1]
	}
	if !e.IsChannel(channel) {
		return fmt.Errorf("this command must be executed from a channel, or be given a channel name")
	}
	e.Send("INVITE", args[0], channel)
	return nil
}

// commandDoAway marks the user as away; a bare /away clears the away status.
func commandDoAway(e *Engine, _ string, args []string) error {
	e.Send("AWAY", args...)
	return nil
}

func commandDoBack(e *Engine, _ string, args []string) error {
	e.Send("AWAY")
	return nil
}

func commandDoWhois(e *Engine, buffer string, args []string) error {
	nick := buffer
	if len(args) > 0 {
		nick = args[0]
	}
	if nick == "" || e.IsChannel(nick) {
		return fmt.Errorf("usage: WHOIS [nick]")
	}
	e.Send("WHOIS", nick)
	return nil
}

func commandDoMonitor(e *Engine, _ string, args []string) error {
	switch args[0] {
	case "+":
		e.MonitorAdd(args[1])
	case "-":
		e.MonitorRemove(args[1])
	default:
		return fmt.Errorf("usage: MONITOR +|- <nick>")
	}
	return nil
}

func commandDoWhowas(e *Engine, _ string, args []string) error {
	e.Send("WHOWAS", args[0])
	return nil
}

func commandDoWho(e *Engine, buffer string, args []string) error {
	mask := buffer
	if len(args) > 0 {
		mask = args[0]
	}
	if mask == "" {
		return fmt.Errorf("usage: WHO [mask]")
	}
	if e.whoxEnabled() {
		e.Send("WHO", mask, "%uhnf")
	} else {
		e.Send("WHO", mask)
	}
	return nil
}

// commandDoRegister registers an account through draft/account-registration.
// With two arguments the server derives the account from the current nick.
func commandDoRegister(e *Engine, _ string, args []string) error {
	if !e.Negotiator().has("draft/account-registration") {
		return fmt.Errorf("account registration is not supported by this server")
	}
	if len(args) == 2 {
		e.Send("REGISTER", "*", args[0], args[1])
	} else {
		e.Send("REGISTER", args[0], args[1], args[2])
	}
	return nil
}

func commandDoReconnect(e *Engine, _ string, args []string) error {
	e.Emit(ReconnectRequestEvent{})
	return nil
}

func commandDoDisconnect(e *Engine, _ string, args []string) error {
	e.Disconnect()
	return nil
}

func commandDoClear(e *Engine, buffer string, args []string) error {
	e.Emit(ClearTabEvent{Target: buffer})
	return nil
}

func commandDoClose(e *Engine, buffer string, args []string) error {
	if e.IsChannel(buffer) && e.ChannelJoined(buffer) {
		e.Send("PART", buffer)
	}
	e.Emit(CloseTabEvent{Target: buffer})
	return nil
}

// fieldsN is strings.Fields with an upper bound: the last field receives the
// rest of the input verbatim.
func fieldsN(s string, n int) []string {
	s = strings.TrimSpace(s)
	if s == "" || n == 0 {
		return nil
	}
	if n == 1 {
		return []string{s}
	}
	var a []string
	na := 0
	fieldStart := 0
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	fieldStart = i
	for i < len(s) {
		if s[i] != ' ' {
			i++
			continue
		}
		a = append(a, s[fieldStart:i])
		na++
		i++
		for i < len(s) && s[i] == ' ' {
			i++
		}
		fieldStart = i
		if n != maxArgsInfinite && na+1 >= n {
			a = append(a, s[fieldStart:])
			return a
		}
	}
	if fieldStart < len(s) {
		a = append(a, s[fieldStart:])
	}
	return a
}

// parseInputCommand splits "/cmd args" input. A doubled slash escapes a
// message starting with a literal slash.
func parseInputCommand(s string) (command, args string, isCommand bool) {
	if len(s) == 0 || s[0] != '/' {
		return "", s, false
	}
	if len(s) > 1 && s[1] == '/' {
		// input starts with two slashes
		return "", s[1:], false
	}

	i := strings.IndexByte(s, ' ')
	if i < 0 {
		i = len(s)
	}

	return strings.ToUpper(s[1:i]), strings.TrimLeft(s[i:], " "), true
}
