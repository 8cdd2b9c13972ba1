package irc

import (
	"time"
)

// Severity qualifies an ErrorEvent.
type Severity int

const (
	SeverityNote Severity = iota
	SeverityWarn
	SeverityFail
)

// Event is a protocol-level event emitted by the engine to its subscribers.
//
// The set of events is closed: every concrete type lives in this file and
// carries a typed payload. Events are constructed by a command handler from a
// parsed line, emitted once and immutable thereafter.
type Event interface {
	event()
}

// RegisteredEvent is emitted once connection registration completes (on the
// first ISUPPORT reply).
type RegisteredEvent struct{}

// MessageEvent is an incoming PRIVMSG or NOTICE.
type MessageEvent struct {
	User            string
	Target          string
	TargetIsChannel bool
	Command         string // PRIVMSG or NOTICE
	Content         string
	Intent          string // +draft/intent tag, if present
	Playback        bool   // delivered inside a recognized history/playback batch
	Time            time.Time
}

// CTCPEvent is an incoming CTCP query or reply that is not an ACTION.
type CTCPEvent struct {
	User    string
	Target  string
	Command string
	Params  string
	Time    time.Time
}

// DCCOfferEvent is a parsed DCC SEND or DCC CHAT offer. Transfers themselves
// are handled outside the engine.
type DCCOfferEvent struct {
	User     string
	Kind     string // SEND or CHAT
	Argument string // filename for SEND, protocol for CHAT
	Host     string
	Port     int
	Size     int64 // bytes, 0 if not announced
	Time     time.Time
}

type UserJoinEvent struct {
	User    string
	Channel string
	Time    time.Time
}

type SelfJoinEvent struct {
	Channel string
	Topic   string
}

type UserPartEvent struct {
	User    string
	Channel string
	Reason  string
	Time    time.Time
}

type SelfPartEvent struct {
	Channel string
}

type UserKickEvent struct {
	User    string // the user who was kicked
	By      string
	Channel string
	Reason  string
	Time    time.Time
}

type UserQuitEvent struct {
	User     string
	Channels []string
	Reason   string
	Time     time.Time
}

type UserNickEvent struct {
	User       string
	FormerNick string
	Time       time.Time
}

type SelfNickEvent struct {
	FormerNick string
}

type TopicChangeEvent struct {
	Channel string
	Topic   string
	Who     string
	Time    time.Time
}

type ModeChangeEvent struct {
	Channel string
	Mode    string
	Time    time.Time
}

type InviteEvent struct {
	Inviter string
	Invitee string
	Channel string
}

// SetnameEvent is emitted when a user changes their realname.
type SetnameEvent struct {
	User     string
	Realname string
}

// ChannelRenamedEvent is emitted for a draft/channel-rename RENAME.
type ChannelRenamedEvent struct {
	Former  string
	Channel string
	Reason  string
}

// AccountRegisteredEvent is the success reply of draft/account-registration.
type AccountRegisteredEvent struct {
	Account string
	Detail  string
}

// AccountVerificationRequiredEvent is the verification-pending reply of
// draft/account-registration.
type AccountVerificationRequiredEvent struct {
	Account string
	Detail  string
}

// ChatHistoryEndEvent is emitted when a chathistory batch closes.
type ChatHistoryEndEvent struct {
	Ref      string
	Target   string
	Messages int
}

// EventPlaybackEndEvent is emitted when a history batch closes.
type EventPlaybackEndEvent struct {
	Ref      string
	Target   string
	Messages int
}

// BouncerPlaybackEndEvent is emitted when a znc.in/playback batch closes.
type BouncerPlaybackEndEvent struct {
	Ref      string
	Target   string
	Messages int
}

// STSPolicyEvent is emitted when the server advertises an STS policy.
type STSPolicyEvent struct {
	Host   string
	Policy STSPolicy
}

// InfoEvent is a miscellaneous informational server reply.
type InfoEvent struct {
	Prefix  string
	Message string
	Time    time.Time
}

// ErrorEvent is a server failure reply or a locally generated error, such as
// user command misuse. It is delivered through the same stream as ordinary
// traffic, never as a panic or an error return visible to the UI.
type ErrorEvent struct {
	Severity Severity
	Code     string
	Message  string
}

// RawEvent is a line that no handler recognized, surfaced for display.
type RawEvent struct {
	Line string
	Time time.Time
}

// ServerCommandEvent is emitted when an unrecognized /command is passed
// through to the server as raw text.
type ServerCommandEvent struct {
	Command string
	Args    string
}

// ReconnectRequestEvent is emitted by /reconnect; acting on it is the
// connection supervisor's job.
type ReconnectRequestEvent struct{}

// ClearTabEvent requests that the UI clear the given buffer.
type ClearTabEvent struct {
	Target string
}

// CloseTabEvent requests that the UI close the given buffer.
type CloseTabEvent struct {
	Target string
}

// BroadcastEvent is emitted after /amsg, /ame or /anotice fan a message out
// to every joined channel.
type BroadcastEvent struct {
	Command string // AMSG, AME or ANOTICE
	Content string
}

// BeepEvent requests an audible notification.
type BeepEvent struct{}

func (RegisteredEvent) event()                   {}
func (MessageEvent) event()                      {}
func (CTCPEvent) event()                         {}
func (DCCOfferEvent) event()                     {}
func (UserJoinEvent) event()                     {}
func (SelfJoinEvent) event()                     {}
func (UserPartEvent) event()                     {}
func (SelfPartEvent) event()                     {}
func (UserKickEvent) event()                     {}
func (UserQuitEvent) event()                     {}
func (UserNickEvent) event()                     {}
func (SelfNickEvent) event()                     {}
func (TopicChangeEvent) event()                  {}
func (ModeChangeEvent) event()                   {}
func (InviteEvent) event()                       {}
func (SetnameEvent) event()                      {}
func (ChannelRenamedEvent) event()               {}
func (AccountRegisteredEvent) event()            {}
func (AccountVerificationRequiredEvent) event()  {}
func (ChatHistoryEndEvent) event()               {}
func (EventPlaybackEndEvent) event()             {}
func (BouncerPlaybackEndEvent) event()           {}
func (STSPolicyEvent) event()                    {}
func (InfoEvent) event()                         {}
func (ErrorEvent) event()                        {}
func (RawEvent) event()                          {}
func (ServerCommandEvent) event()                {}
func (ReconnectRequestEvent) event()             {}
func (ClearTabEvent) event()                     {}
func (CloseTabEvent) event()                     {}
func (BroadcastEvent) event()                    {}
func (BeepEvent) event()                         {}
