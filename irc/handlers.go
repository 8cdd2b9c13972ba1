package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChannelUser is the per-channel record of a channel member.
type ChannelUser struct {
	Membership string // membership prefix symbols, highest first
}

// TopicInfo is a channel topic with its setter metadata.
type TopicInfo struct {
	Topic string
	Who   string
	At    time.Time
}

// HandlerContext is the surface a command handler works against. All state
// mutation goes through these accessors, never through direct field access,
// so handler logic is testable against a fake context.
type HandlerContext interface {
	// connection introspection
	Nick() string
	IsMe(name string) bool
	IsChannel(name string) bool
	Casemap(name string) string
	Registered() bool
	HasCapability(name string) bool

	// protocol sub-machines
	Negotiator() *capNegotiator
	Batches() *BatchManager

	// ISUPPORT-derived feature views
	MembershipModes() (modes, symbols string)
	ChannelModeTypes() [4]string

	// channel state accessors
	EnsureChannel(channel string)
	DropChannel(channel string)
	MigrateChannel(former, channel string) bool
	ChannelJoined(channel string) bool
	ChannelSynced(channel string) bool
	SetChannelSynced(channel string)
	ChannelUsers(channel string) []string
	ChannelUser(channel, nick string) (ChannelUser, bool)
	SetChannelUser(channel, nick string, user ChannelUser)
	DeleteChannelUser(channel, nick string)
	ChannelsWithUser(nick string) []string
	RenameUser(former, nick string)
	Topic(channel string) TopicInfo
	SetTopic(channel string, topic TopicInfo)

	// self state
	SetRegistered(nick string)
	SetSelfNick(nick string)
	SetAccount(account string)
	SetUserHost(user, host string)
	ApplyISupport(features []string)

	// collaborators
	IsIgnored(prefix *Prefix) bool

	// emission and output
	Emit(ev Event)
	Send(command string, params ...string)
	SendRaw(line string)
	CloseConnection()
	Debugf(format string, args ...interface{})
}

// handlerFunc processes one inbound command. playback is true when the
// message was delivered inside a recognized history/playback batch. A
// returned error never crosses the dispatch boundary; it is logged and the
// line is dropped.
type handlerFunc func(ctx HandlerContext, msg Message, playback bool) error

// registry is the flat dispatch table mapping a command name to its handler.
type registry struct {
	handlers map[string]handlerFunc
}

// register binds a handler to a command name. Registering a command twice
// overwrites the previous handler: last registration wins. Exactly one
// handler serves a command at any time.
func (r *registry) register(command string, h handlerFunc) {
	r.handlers[strings.ToUpper(command)] = h
}

// dispatch routes one parsed message. Handler errors degrade to a debug log
// entry: one malformed server line must not crash the connection or block
// subsequent lines.
func (r *registry) dispatch(ctx HandlerContext, msg Message, playback bool) {
	h, ok := r.handlers[msg.Command]
	if !ok {
		dispatchUnhandled(ctx, msg)
		return
	}
	if err := h(ctx, msg, playback); err != nil {
		ctx.Debugf("%s handler: %v", msg.Command, err)
	}
}

// dispatchUnhandled covers commands without a registered handler: numeric
// replies fold into info/error events by severity, anything else is surfaced
// raw.
func dispatchUnhandled(ctx HandlerContext, msg Message) {
	if msg.IsReply() {
		if len(msg.Params) < 2 {
			return
		}
		text := strings.Join(msg.Params[1:], " ")
		if ReplySeverity(msg.Command) == SeverityFail {
			ctx.Emit(ErrorEvent{
				Severity: SeverityFail,
				Code:     msg.Command,
				Message:  text,
			})
		} else {
			ctx.Emit(InfoEvent{Message: text, Time: msg.TimeOrNow()})
		}
		return
	}
	ctx.Emit(RawEvent{Line: msg.String(), Time: msg.TimeOrNow()})
}

// newRegistry builds the default dispatch table, grouped by concern.
func newRegistry() *registry {
	r := &registry{handlers: map[string]handlerFunc{}}
	registerRegistrationHandlers(r)
	registerUserStateHandlers(r)
	registerChannelHandlers(r)
	registerMessageHandlers(r)
	registerBatchHandlers(r)
	registerRenameHandlers(r)
	registerQueryHandlers(r)
	registerServerInfoHandlers(r)
	registerStatusHandlers(r)
	return r
}

// eventTime is the timestamp of a message: the server-time tag when the
// capability is enabled, the local clock otherwise.
func eventTime(ctx HandlerContext, msg *Message) time.Time {
	if ctx.HasCapability("server-time") {
		return msg.TimeOrNow()
	}
	return time.Now().UTC()
}

func prefixName(msg *Message) string {
	if msg.Prefix == nil {
		return ""
	}
	return msg.Prefix.Name
}

// registration and capability negotiation

func registerRegistrationHandlers(r *registry) {
	r.register("CAP", handleCap)
	r.register("AUTHENTICATE", handleAuthenticate)
	r.register("PING", handlePing)
	r.register("PONG", handleSilence) // keepalive replies carry no information
	r.register("ERROR", handleServerError)
	r.register("REGISTER", handleRegisterReply)
	r.register("VERIFY", handleRegisterReply)
	r.register("FAIL", handleStandardReply)
	r.register("WARN", handleStandardReply)
	r.register("NOTE", handleStandardReply)
	r.register(rplWelcome, handleWelcome)
	r.register(rplIsupport, handleISupport)
	r.register(errNicknameinuse, handleNickInUse)
	r.register(rplLoggedin, handleLoggedIn)
	r.register(rplSaslsuccess, handleSaslSuccess)
	for _, code := range []string{errNicklocked, errSaslfail, errSasltoolong, errSaslaborted, errSaslalready, rplSaslmechs} {
		r.register(code, handleSaslFail)
	}
}

func handleCap(ctx HandlerContext, msg Message, _ bool) error {
	var subcommand, caps string
	if err := msg.ParseParams(nil, &subcommand); err != nil {
		return err
	}
	// multi-line LS/LIST bursts carry a "*" continuation marker
	more := false
	if len(msg.Params) > 3 && msg.Params[2] == "*" {
		more = true
		caps = msg.Params[3]
	} else if len(msg.Params) > 2 {
		caps = msg.Params[2]
	}

	n := ctx.Negotiator()
	switch strings.ToUpper(subcommand) {
	case "LS":
		n.handleLS(caps, more)
	case "ACK":
		n.handleACK(caps)
	case "NAK":
		n.handleNAK(caps)
	case "NEW":
		n.handleNEW(caps)
	case "DEL":
		n.handleDEL(caps)
	default:
		ctx.Debugf("unknown CAP subcommand %q", subcommand)
	}
	return nil
}

func handleAuthenticate(ctx HandlerContext, msg Message, _ bool) error {
	n := ctx.Negotiator()
	if n.auth == nil || !n.authenticating {
		return nil
	}

	var challenge string
	if err := msg.ParseParams(&challenge); err != nil {
		return err
	}

	res, err := n.auth.Respond(challenge)
	if err != nil {
		ctx.Send("AUTHENTICATE", "*")
		return nil
	}
	for _, chunk := range saslChunks(res) {
		ctx.Send("AUTHENTICATE", chunk)
	}
	return nil
}

func handlePing(ctx HandlerContext, msg Message, _ bool) error {
	var payload string
	if err := msg.ParseParams(&payload); err != nil {
		return err
	}
	ctx.Send("PONG", payload)
	return nil
}

func handleServerError(ctx HandlerContext, msg Message, _ bool) error {
	reason := strings.Join(msg.Params, " ")
	ctx.Emit(ErrorEvent{
		Severity: SeverityFail,
		Code:     "ERROR",
		Message:  reason,
	})
	ctx.CloseConnection()
	return nil
}

func handleWelcome(ctx HandlerContext, msg Message, _ bool) error {
	var nick string
	if err := msg.ParseParams(&nick); err != nil {
		return err
	}
	if !ctx.Registered() {
		ctx.SetRegistered(nick)
		ctx.Emit(RegisteredEvent{})
	}
	return nil
}

func handleISupport(ctx HandlerContext, msg Message, _ bool) error {
	if len(msg.Params) < 3 {
		return msg.errNotEnoughParams(3)
	}
	ctx.ApplyISupport(msg.Params[1 : len(msg.Params)-1])
	return nil
}

func handleNickInUse(ctx HandlerContext, msg Message, _ bool) error {
	if ctx.Registered() {
		return handleStandardNumericError(ctx, msg)
	}
	var nick string
	if err := msg.ParseParams(nil, &nick); err != nil {
		return err
	}
	ctx.Send("NICK", nick+"_")
	return nil
}

func handleLoggedIn(ctx HandlerContext, msg Message, _ bool) error {
	var nuh, account string
	if err := msg.ParseParams(nil, &nuh, &account); err != nil {
		return err
	}
	ctx.SetAccount(account)
	if prefix := ParsePrefix(nuh); prefix != nil {
		ctx.SetUserHost(prefix.User, prefix.Host)
	}
	return nil
}

func handleSaslSuccess(ctx HandlerContext, msg Message, _ bool) error {
	ctx.Negotiator().saslFinished()
	return nil
}

func handleSaslFail(ctx HandlerContext, msg Message, _ bool) error {
	ctx.Negotiator().saslFinished()
	ctx.Emit(ErrorEvent{
		Severity: SeverityFail,
		Code:     msg.Command,
		Message:  fmt.Sprintf("Authentication failed: %s", strings.Join(msg.Params[1:], " ")),
	})
	return nil
}

// handleRegisterReply dispatches on the first parameter of a REGISTER or
// VERIFY reply (draft/account-registration).
func handleRegisterReply(ctx HandlerContext, msg Message, _ bool) error {
	var subcommand string
	if err := msg.ParseParams(&subcommand); err != nil {
		return err
	}
	var account, detail string
	if len(msg.Params) > 1 {
		account = msg.Params[1]
	}
	if len(msg.Params) > 2 {
		detail = msg.Params[len(msg.Params)-1]
	}

	switch strings.ToUpper(subcommand) {
	case registerSuccess:
		ctx.Emit(InfoEvent{
			Message: fmt.Sprintf("Account %s registered: %s", account, detail),
			Time:    eventTime(ctx, &msg),
		})
		ctx.Emit(AccountRegisteredEvent{Account: account, Detail: detail})
	case registerVerificationRequired:
		ctx.Emit(InfoEvent{
			Message: fmt.Sprintf("Account %s requires verification: %s", account, detail),
			Time:    eventTime(ctx, &msg),
		})
		ctx.Emit(AccountVerificationRequiredEvent{Account: account, Detail: detail})
	default:
		// not an error: unknown subcommands surface raw
		ctx.Emit(RawEvent{Line: msg.String(), Time: eventTime(ctx, &msg)})
	}
	return nil
}

func handleStandardReply(ctx HandlerContext, msg Message, _ bool) error {
	var code string
	if err := msg.ParseParams(nil, &code); err != nil {
		return err
	}
	var severity Severity
	switch msg.Command {
	case "FAIL":
		severity = SeverityFail
	case "WARN":
		severity = SeverityWarn
	default:
		severity = SeverityNote
	}
	ctx.Emit(ErrorEvent{
		Severity: severity,
		Code:     code,
		Message:  strings.Join(msg.Params[2:], " "),
	})
	return nil
}

func handleStandardNumericError(ctx HandlerContext, msg Message) error {
	if len(msg.Params) < 2 {
		return msg.errNotEnoughParams(2)
	}
	ctx.Emit(ErrorEvent{
		Severity: ReplySeverity(msg.Command),
		Code:     msg.Command,
		Message:  strings.Join(msg.Params[1:], " "),
	})
	return nil
}

// user state

func registerUserStateHandlers(r *registry) {
	r.register("NICK", handleNick)
	r.register("QUIT", handleQuit)
	r.register("SETNAME", handleSetname)
}

func handleNick(ctx HandlerContext, msg Message, playback bool) error {
	var nick string
	if err := msg.ParseParams(&nick); err != nil {
		return err
	}
	former := prefixName(&msg)
	t := eventTime(ctx, &msg)

	if playback {
		ctx.Emit(UserNickEvent{User: nick, FormerNick: former, Time: t})
		return nil
	}

	ctx.RenameUser(former, nick)
	if ctx.IsMe(former) {
		ctx.SetSelfNick(nick)
		ctx.Emit(SelfNickEvent{FormerNick: former})
		return nil
	}
	ctx.Emit(UserNickEvent{User: nick, FormerNick: former, Time: t})
	return nil
}

func handleQuit(ctx HandlerContext, msg Message, playback bool) error {
	nick := prefixName(&msg)
	var reason string
	if len(msg.Params) > 0 {
		reason = msg.Params[0]
	}
	t := eventTime(ctx, &msg)

	if playback {
		ctx.Emit(UserQuitEvent{User: nick, Reason: reason, Time: t})
		return nil
	}

	channels := ctx.ChannelsWithUser(nick)
	for _, channel := range channels {
		ctx.DeleteChannelUser(channel, nick)
	}
	ctx.Emit(UserQuitEvent{User: nick, Channels: channels, Reason: reason, Time: t})
	return nil
}

func handleSetname(ctx HandlerContext, msg Message, _ bool) error {
	nick := prefixName(&msg)
	var realname string
	if len(msg.Params) > 0 {
		realname = decodeRealname(msg.Params[0])
	}
	ctx.Emit(InfoEvent{
		Message: fmt.Sprintf("%s changed realname to: %s", nick, realname),
		Time:    eventTime(ctx, &msg),
	})
	ctx.Emit(SetnameEvent{User: nick, Realname: realname})
	return nil
}

// channel membership and state

func registerChannelHandlers(r *registry) {
	r.register("JOIN", handleJoin)
	r.register("PART", handlePart)
	r.register("KICK", handleKick)
	r.register("MODE", handleMode)
	r.register("TOPIC", handleTopic)
	r.register("INVITE", handleInvite)
	r.register(rplTopic, handleTopicReply)
	r.register(rplNotopic, handleNoTopicReply)
	r.register(rplTopicwhotime, handleTopicWhoTime)
	r.register(rplNamreply, handleNamesReply)
	r.register(rplEndofnames, handleEndOfNames)
	r.register(rplInviting, handleInvitingReply)
}

func handleJoin(ctx HandlerContext, msg Message, playback bool) error {
	var channel string
	if err := msg.ParseParams(&channel); err != nil {
		return err
	}
	nick := prefixName(&msg)
	t := eventTime(ctx, &msg)

	if playback {
		ctx.Emit(UserJoinEvent{User: nick, Channel: channel, Time: t})
		return nil
	}

	if ctx.IsMe(nick) {
		ctx.EnsureChannel(channel)
		if ctx.HasCapability("away-notify") {
			// the user list only stays accurate if the server pushes
			// away updates
			ctx.Send("WHO", channel)
		}
		return nil
	}
	if ctx.ChannelJoined(channel) {
		ctx.SetChannelUser(channel, nick, ChannelUser{})
		ctx.Emit(UserJoinEvent{User: nick, Channel: channel, Time: t})
	}
	return nil
}

func handlePart(ctx HandlerContext, msg Message, playback bool) error {
	var channel string
	if err := msg.ParseParams(&channel); err != nil {
		return err
	}
	var reason string
	if len(msg.Params) > 1 {
		reason = msg.Params[1]
	}
	nick := prefixName(&msg)
	t := eventTime(ctx, &msg)

	if playback {
		ctx.Emit(UserPartEvent{User: nick, Channel: channel, Reason: reason, Time: t})
		return nil
	}

	if ctx.IsMe(nick) {
		if ctx.ChannelJoined(channel) {
			ctx.DropChannel(channel)
			ctx.Emit(SelfPartEvent{Channel: channel})
		}
		return nil
	}
	if _, ok := ctx.ChannelUser(channel, nick); ok {
		ctx.DeleteChannelUser(channel, nick)
		ctx.Emit(UserPartEvent{User: nick, Channel: channel, Reason: reason, Time: t})
	}
	return nil
}

func handleKick(ctx HandlerContext, msg Message, playback bool) error {
	var channel, nick string
	if err := msg.ParseParams(&channel, &nick); err != nil {
		return err
	}
	var reason string
	if len(msg.Params) > 2 {
		reason = msg.Params[2]
	}
	by := prefixName(&msg)
	t := eventTime(ctx, &msg)

	if playback {
		ctx.Emit(UserKickEvent{User: nick, By: by, Channel: channel, Reason: reason, Time: t})
		return nil
	}

	if ctx.IsMe(nick) {
		if ctx.ChannelJoined(channel) {
			ctx.DropChannel(channel)
			ctx.Emit(SelfPartEvent{Channel: channel})
		}
		return nil
	}
	if _, ok := ctx.ChannelUser(channel, nick); ok {
		ctx.DeleteChannelUser(channel, nick)
		ctx.Emit(UserKickEvent{User: nick, By: by, Channel: channel, Reason: reason, Time: t})
	}
	return nil
}

func handleMode(ctx HandlerContext, msg Message, playback bool) error {
	var target string
	if err := msg.ParseParams(&target, nil); err != nil {
		return err
	}
	mode := strings.Join(msg.Params[1:], " ")
	t := eventTime(ctx, &msg)

	if playback || !ctx.IsChannel(target) || !ctx.ChannelJoined(target) {
		ctx.Emit(ModeChangeEvent{Channel: target, Mode: mode, Time: t})
		return nil
	}

	modes, symbols := ctx.MembershipModes()
	changes, err := ParseChannelMode(msg.Params[1], msg.Params[2:], ctx.ChannelModeTypes(), modes)
	if err != nil {
		return err
	}
	for _, change := range changes {
		i := strings.IndexByte(modes, change.Mode)
		if i < 0 {
			continue
		}
		user, ok := ctx.ChannelUser(target, change.Param)
		if !ok {
			continue
		}
		symbol := symbols[i]
		membership := strings.ReplaceAll(user.Membership, string(symbol), "")
		if change.Enable {
			membership = insertMembership(membership, symbol, symbols)
		}
		user.Membership = membership
		ctx.SetChannelUser(target, change.Param, user)
	}
	ctx.Emit(ModeChangeEvent{Channel: target, Mode: mode, Time: t})
	return nil
}

// insertMembership keeps membership symbols sorted by power level, highest
// first, according to the ISUPPORT prefix symbol order.
func insertMembership(membership string, symbol byte, symbols string) string {
	rank := strings.IndexByte(symbols, symbol)
	for i := 0; i < len(membership); i++ {
		if strings.IndexByte(symbols, membership[i]) > rank {
			return membership[:i] + string(symbol) + membership[i:]
		}
	}
	return membership + string(symbol)
}

func handleTopic(ctx HandlerContext, msg Message, playback bool) error {
	var channel, topic string
	if err := msg.ParseParams(&channel, &topic); err != nil {
		return err
	}
	who := prefixName(&msg)
	t := eventTime(ctx, &msg)

	if !playback && ctx.ChannelJoined(channel) {
		ctx.SetTopic(channel, TopicInfo{Topic: topic, Who: who, At: t})
	}
	ctx.Emit(TopicChangeEvent{Channel: channel, Topic: topic, Who: who, Time: t})
	return nil
}

func handleInvite(ctx HandlerContext, msg Message, _ bool) error {
	var nick, channel string
	if err := msg.ParseParams(&nick, &channel); err != nil {
		return err
	}
	ctx.Emit(InviteEvent{Inviter: prefixName(&msg), Invitee: nick, Channel: channel})
	return nil
}

func handleInvitingReply(ctx HandlerContext, msg Message, _ bool) error {
	var nick, channel string
	if err := msg.ParseParams(nil, &nick, &channel); err != nil {
		return err
	}
	ctx.Emit(InviteEvent{Inviter: ctx.Nick(), Invitee: nick, Channel: channel})
	return nil
}

func handleTopicReply(ctx HandlerContext, msg Message, _ bool) error {
	var channel, topic string
	if err := msg.ParseParams(nil, &channel, &topic); err != nil {
		return err
	}
	if ctx.ChannelJoined(channel) {
		info := ctx.Topic(channel)
		info.Topic = topic
		ctx.SetTopic(channel, info)
	}
	return nil
}

func handleNoTopicReply(ctx HandlerContext, msg Message, _ bool) error {
	var channel string
	if err := msg.ParseParams(nil, &channel); err != nil {
		return err
	}
	if ctx.ChannelJoined(channel) {
		ctx.SetTopic(channel, TopicInfo{})
	}
	return nil
}

func handleTopicWhoTime(ctx HandlerContext, msg Message, _ bool) error {
	var channel, who, whenText string
	if err := msg.ParseParams(nil, &channel, &who, &whenText); err != nil {
		return err
	}
	if !ctx.ChannelJoined(channel) {
		return nil
	}
	info := ctx.Topic(channel)
	if prefix := ParsePrefix(who); prefix != nil {
		info.Who = prefix.Name
	}
	// ignore the parse error, who is still worth keeping
	when, _ := strconv.ParseInt(whenText, 10, 64)
	info.At = time.Unix(when, 0)
	ctx.SetTopic(channel, info)
	return nil
}

func handleNamesReply(ctx HandlerContext, msg Message, _ bool) error {
	var channel, names string
	if err := msg.ParseParams(nil, nil, &channel, &names); err != nil {
		return err
	}
	if !ctx.ChannelJoined(channel) {
		return nil
	}
	_, symbols := ctx.MembershipModes()
	for _, name := range ParseNameReply(names, symbols) {
		ctx.SetChannelUser(channel, name.Prefix.Name, ChannelUser{Membership: name.PowerLevel})
	}
	return nil
}

func handleEndOfNames(ctx HandlerContext, msg Message, _ bool) error {
	var channel string
	if err := msg.ParseParams(nil, &channel); err != nil {
		return err
	}
	if ctx.ChannelJoined(channel) && !ctx.ChannelSynced(channel) {
		ctx.SetChannelSynced(channel)
		ctx.Emit(SelfJoinEvent{Channel: channel, Topic: ctx.Topic(channel).Topic})
	}
	return nil
}

// messages

func registerMessageHandlers(r *registry) {
	r.register("PRIVMSG", handlePrivmsg)
	r.register("NOTICE", handlePrivmsg)
	r.register("TAGMSG", handleTagmsg)
}

func handlePrivmsg(ctx HandlerContext, msg Message, playback bool) error {
	if !ctx.Registered() && msg.Command == "NOTICE" {
		return nil
	}
	var target, content string
	if err := msg.ParseParams(&target, &content); err != nil {
		return err
	}
	if ctx.IsIgnored(msg.Prefix) {
		return nil
	}
	nick := prefixName(&msg)
	t := eventTime(ctx, &msg)

	if command, params, ok := parseCTCP(content); ok && command != "ACTION" {
		if command == "DCC" && msg.Command == "PRIVMSG" {
			if offer, ok := parseDCCOffer(params); ok {
				offer.User = nick
				offer.Time = t
				ctx.Emit(offer)
				return nil
			}
		}
		ctx.Emit(CTCPEvent{User: nick, Target: target, Command: command, Params: params, Time: t})
		return nil
	}

	if strings.ContainsRune(content, 0x07) {
		ctx.Emit(BeepEvent{})
	}

	ctx.Emit(MessageEvent{
		User:            nick,
		Target:          target,
		TargetIsChannel: ctx.IsChannel(target),
		Command:         msg.Command,
		Content:         content,
		Intent:          msg.Tags["+draft/intent"],
		Playback:        playback,
		Time:            t,
	})
	return nil
}

func handleTagmsg(ctx HandlerContext, msg Message, playback bool) error {
	// client tags only; nothing to display
	return nil
}

// batches

func registerBatchHandlers(r *registry) {
	r.register("BATCH", handleBatch)
}

func handleBatch(ctx HandlerContext, msg Message, _ bool) error {
	var ref string
	if err := msg.ParseParams(&ref); err != nil {
		return err
	}
	if len(ref) < 2 {
		return fmt.Errorf("malformed batch reference %q", ref)
	}
	start := ref[0] == '+'
	if !start && ref[0] != '-' {
		return fmt.Errorf("malformed batch reference %q", ref)
	}
	ref = ref[1:]

	if start {
		var name string
		if err := msg.ParseParams(nil, &name); err != nil {
			return err
		}
		ctx.Batches().Open(ref, name, msg.Params[2:])
		return nil
	}
	if ev := ctx.Batches().Close(ref); ev != nil {
		ctx.Emit(ev)
	}
	return nil
}

// channel rename (draft/channel-rename)

func registerRenameHandlers(r *registry) {
	r.register("RENAME", handleRename)
}

func handleRename(ctx HandlerContext, msg Message, _ bool) error {
	// malformed-server-input policy: fewer than two params is a no-op
	if len(msg.Params) < 2 {
		return nil
	}
	former, channel := msg.Params[0], msg.Params[1]
	var reason string
	if len(msg.Params) > 2 {
		reason = msg.Params[2]
	}

	ctx.MigrateChannel(former, channel)

	text := fmt.Sprintf("%s is now known as %s", former, channel)
	if reason != "" {
		text += fmt.Sprintf(" (%s)", reason)
	}
	ctx.Emit(InfoEvent{Message: text, Time: eventTime(ctx, &msg)})
	ctx.Emit(ChannelRenamedEvent{Former: former, Channel: channel, Reason: reason})
	return nil
}

// whois/whowas/who queries

func registerQueryHandlers(r *registry) {
	r.register(rplWhoreply, handleWhoReply)
	r.register(rplWhospecialreply, handleWhoReply)
	r.register(rplEndofwho, handleSilence)
	r.register(rplWhoisuser, handleWhoisUser)
	r.register(rplWhowasuser, handleWhowasUser)
	r.register(rplWhoisserver, handleWhoisServer)
	r.register(rplWhoisoperator, handleWhoisGeneric)
	r.register(rplWhoischannels, handleWhoisChannels)
	r.register(rplWhoisidle, handleWhoisIdle)
	r.register(rplWhoisaccount, handleWhoisAccount)
	r.register(rplWhoissecure, handleWhoisGeneric)
	r.register(rplEndofwhois, handleSilence)
	r.register(rplEndofwhowas, handleSilence)
}

func handleSilence(ctx HandlerContext, msg Message, _ bool) error {
	return nil
}

func handleWhoReply(ctx HandlerContext, msg Message, _ bool) error {
	var nick, host, username string
	var err error
	if msg.Command == rplWhoreply {
		err = msg.ParseParams(nil, nil, &username, &host, nil, &nick)
	} else {
		err = msg.ParseParams(nil, &username, &host, &nick)
	}
	if err != nil {
		return err
	}
	if ctx.IsMe(nick) {
		ctx.SetUserHost(username, host)
	}
	return nil
}

func handleWhoisUser(ctx HandlerContext, msg Message, _ bool) error {
	var nick, username, host, realname string
	if err := msg.ParseParams(nil, &nick, &username, &host, nil, &realname); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "User",
		Message: fmt.Sprintf("%s is %s!%s@%s; realname: %s", nick, nick, username, host, realname),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleWhowasUser(ctx HandlerContext, msg Message, _ bool) error {
	var nick, username, host, realname string
	if err := msg.ParseParams(nil, &nick, &username, &host, nil, &realname); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "User",
		Message: fmt.Sprintf("%s was %s!%s@%s; realname: %s", nick, nick, username, host, realname),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleWhoisServer(ctx HandlerContext, msg Message, _ bool) error {
	var nick, server, info string
	if err := msg.ParseParams(nil, &nick, &server, &info); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "User",
		Message: fmt.Sprintf("%s is connected via %s (%s)", nick, server, info),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleWhoisGeneric(ctx HandlerContext, msg Message, _ bool) error {
	var nick, text string
	if err := msg.ParseParams(nil, &nick, &text); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "User",
		Message: fmt.Sprintf("%s %s", nick, text),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleWhoisChannels(ctx HandlerContext, msg Message, _ bool) error {
	var nick, channels string
	if err := msg.ParseParams(nil, &nick, &channels); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "User",
		Message: fmt.Sprintf("%s is on channels: %s", nick, channels),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleWhoisIdle(ctx HandlerContext, msg Message, _ bool) error {
	var nick, idleText, signonText string
	if err := msg.ParseParams(nil, &nick, &idleText, &signonText); err != nil {
		return err
	}
	idleSeconds, err := strconv.ParseInt(idleText, 10, 64)
	if err != nil {
		return err
	}
	signon, err := strconv.ParseInt(signonText, 10, 64)
	if err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix: "User",
		Message: fmt.Sprintf("%s has been idle for %s (signed on %s)", nick,
			time.Duration(idleSeconds)*time.Second, time.Unix(signon, 0).UTC().Format(time.RFC1123)),
		Time: eventTime(ctx, &msg),
	})
	return nil
}

func handleWhoisAccount(ctx HandlerContext, msg Message, _ bool) error {
	var nick, account string
	if err := msg.ParseParams(nil, &nick, &account); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "User",
		Message: fmt.Sprintf("%s is authenticated as %s", nick, account),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

// server information

func registerServerInfoHandlers(r *registry) {
	r.register(rplMyinfo, handleMyInfo)
	for _, code := range []string{rplYourhost, rplCreated, rplMotdstart, rplEndofmotd, errNomotd,
		rplHostHidden, rplListstart, rplAdminme, rplEndoflinks, rplEndofbanlist, rplEndofinfo} {
		r.register(code, handleSilence)
	}
	r.register(rplMotd, handleMotd)
	r.register(rplInfo, handleServerInfoLine)
	r.register(rplVersion, handleVersionReply)
	r.register(rplTime, handleTimeReply)
	r.register(rplLinks, handleLinksReply)
	for _, code := range []string{rplLuserclient, rplLuserop, rplLuserunknown, rplLuserchannels,
		rplLuserme, rplLocalusers, rplGlobalusers} {
		r.register(code, handleStatsLine)
	}
	for _, code := range []string{rplAdminloc1, rplAdminloc2, rplAdminemail} {
		r.register(code, handleAdminLine)
	}
	r.register(rplList, handleListReply)
	r.register(rplListend, handleSilence)
	r.register(rplChannelmodeis, handleChannelModeIs)
	r.register(rplBanlist, handleBanList)
	r.register(rplYoureoper, handleYoureOper)
}

func handleMyInfo(ctx HandlerContext, msg Message, _ bool) error {
	// servername and version; engine state only needs the registered nick
	return nil
}

func handleMotd(ctx HandlerContext, msg Message, _ bool) error {
	if len(msg.Params) < 2 {
		return msg.errNotEnoughParams(2)
	}
	ctx.Emit(InfoEvent{Prefix: "MotD", Message: msg.Params[len(msg.Params)-1], Time: eventTime(ctx, &msg)})
	return nil
}

func handleServerInfoLine(ctx HandlerContext, msg Message, _ bool) error {
	var text string
	if err := msg.ParseParams(nil, &text); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{Prefix: "Info", Message: text, Time: eventTime(ctx, &msg)})
	return nil
}

func handleVersionReply(ctx HandlerContext, msg Message, _ bool) error {
	var version string
	if err := msg.ParseParams(nil, &version); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{Message: fmt.Sprintf("The server is running %s", version), Time: eventTime(ctx, &msg)})
	return nil
}

func handleTimeReply(ctx HandlerContext, msg Message, _ bool) error {
	if len(msg.Params) < 2 {
		return msg.errNotEnoughParams(2)
	}
	ctx.Emit(InfoEvent{
		Message: fmt.Sprintf("Server local time: %s", msg.Params[len(msg.Params)-1]),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleLinksReply(ctx HandlerContext, msg Message, _ bool) error {
	var server, info string
	if err := msg.ParseParams(nil, &server, nil, &info); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "Link",
		Message: fmt.Sprintf("%s (%s)", server, info),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleStatsLine(ctx HandlerContext, msg Message, _ bool) error {
	if len(msg.Params) < 2 {
		return msg.errNotEnoughParams(2)
	}
	ctx.Emit(InfoEvent{
		Prefix:  "Stats",
		Message: msg.Params[len(msg.Params)-1],
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleAdminLine(ctx HandlerContext, msg Message, _ bool) error {
	if len(msg.Params) < 2 {
		return msg.errNotEnoughParams(2)
	}
	ctx.Emit(InfoEvent{
		Prefix:  "Admin",
		Message: msg.Params[len(msg.Params)-1],
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleListReply(ctx HandlerContext, msg Message, _ bool) error {
	var channel, count, topic string
	if err := msg.ParseParams(nil, &channel, &count, &topic); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "List",
		Message: fmt.Sprintf("%s (%s users): %s", channel, count, topic),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleChannelModeIs(ctx HandlerContext, msg Message, _ bool) error {
	var channel string
	if err := msg.ParseParams(nil, &channel); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Message: fmt.Sprintf("%s has modes %s", channel, strings.Join(msg.Params[2:], " ")),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleBanList(ctx HandlerContext, msg Message, _ bool) error {
	var channel, mask string
	if err := msg.ParseParams(nil, &channel, &mask); err != nil {
		return err
	}
	ctx.Emit(InfoEvent{
		Prefix:  "Ban",
		Message: fmt.Sprintf("%s has %s banned", channel, mask),
		Time:    eventTime(ctx, &msg),
	})
	return nil
}

func handleYoureOper(ctx HandlerContext, msg Message, _ bool) error {
	if len(msg.Params) < 2 {
		return msg.errNotEnoughParams(2)
	}
	ctx.Emit(InfoEvent{Message: msg.Params[len(msg.Params)-1], Time: eventTime(ctx, &msg)})
	return nil
}

// user status

func registerStatusHandlers(r *registry) {
	r.register("AWAY", handleAway)
	r.register("ACCOUNT", handleAccountNotify)
	r.register("CHGHOST", handleSilence)
	r.register(rplAway, handleSilence)
	r.register(rplUnaway, handleUnaway)
	r.register(rplNowaway, handleNowAway)
	r.register(errMonlistisfull, handleSilence)
}

func handleAway(ctx HandlerContext, msg Message, _ bool) error {
	// away-notify traffic is passed through generically
	ctx.Emit(RawEvent{Line: msg.String(), Time: eventTime(ctx, &msg)})
	return nil
}

func handleAccountNotify(ctx HandlerContext, msg Message, _ bool) error {
	// account-notify traffic is passed through generically
	ctx.Emit(RawEvent{Line: msg.String(), Time: eventTime(ctx, &msg)})
	return nil
}

func handleUnaway(ctx HandlerContext, msg Message, _ bool) error {
	ctx.Emit(InfoEvent{Message: "You are no longer marked as away", Time: eventTime(ctx, &msg)})
	return nil
}

func handleNowAway(ctx HandlerContext, msg Message, _ bool) error {
	ctx.Emit(InfoEvent{Message: "You are now marked as away", Time: eventTime(ctx, &msg)})
	return nil
}
