package irc

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errEmptyMessage = errors.New("empty message")

// CasemapASCII of name is the canonical representation of name according to
// the ascii casemapping.
func CasemapASCII(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// CasemapRFC1459 of name is the canonical representation of name according to
// the rfc-1459 casemapping.
func CasemapRFC1459(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case 'A' <= r && r <= 'Z':
			r += 'a' - 'A'
		case r == '[':
			r = '{'
		case r == ']':
			r = '}'
		case r == '\\':
			r = '|'
		case r == '~':
			r = '^'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// word returns the first word of s and the rest of s.
func word(s string) (word, rest string) {
	split := strings.SplitN(s, " ", 2)
	if len(split) < 2 {
		word = split[0]
		rest = ""
	} else {
		word = split[0]
		rest = split[1]
	}
	return
}

// tagEscape returns the value of '\c' given c, as defined by the message-tags
// specification.
func tagEscape(c rune) (escape rune) {
	switch c {
	case ':':
		escape = ';'
	case 's':
		escape = ' '
	case 'r':
		escape = '\r'
	case 'n':
		escape = '\n'
	default:
		// invalid escape, the backslash is dropped
		escape = c
	}
	return
}

// unescapeTagValue removes escape sequences of a message tag value.
func unescapeTagValue(escaped string) string {
	if !strings.ContainsRune(escaped, '\\') {
		return escaped
	}
	var sb strings.Builder
	sb.Grow(len(escaped))
	escape := false
	for _, c := range escaped {
		if c == '\\' && !escape {
			escape = true
			continue
		}
		if escape {
			sb.WriteRune(tagEscape(c))
			escape = false
		} else {
			sb.WriteRune(c)
		}
	}
	// a trailing lone backslash is dropped
	return sb.String()
}

// escapeTagValue encodes a message tag value for the wire.
func escapeTagValue(unescaped string) string {
	var sb strings.Builder
	sb.Grow(len(unescaped) * 2)
	for _, c := range unescaped {
		switch c {
		case ';':
			sb.WriteRune('\\')
			sb.WriteRune(':')
		case ' ':
			sb.WriteRune('\\')
			sb.WriteRune('s')
		case '\r':
			sb.WriteRune('\\')
			sb.WriteRune('r')
		case '\n':
			sb.WriteRune('\\')
			sb.WriteRune('n')
		case '\\':
			sb.WriteRune('\\')
			sb.WriteRune('\\')
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

func parseTags(s string) (tags map[string]string) {
	tags = map[string]string{}
	for _, item := range strings.Split(s, ";") {
		if item == "" || item == "=" || item == "+" || item == "+=" {
			continue
		}
		kv := strings.SplitN(item, "=", 2)
		if len(kv) < 2 {
			tags[kv[0]] = ""
		} else {
			tags[kv[0]] = unescapeTagValue(kv[1])
		}
	}
	return
}

func formatTags(tags map[string]string) string {
	var sb strings.Builder
	for k, v := range tags {
		if sb.Len() != 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(k)
		if v != "" {
			sb.WriteByte('=')
			sb.WriteString(escapeTagValue(v))
		}
	}
	return sb.String()
}

// Prefix is the prefix of an IRC message, either a nick!user@host source or a
// server name.
type Prefix struct {
	Name string
	User string
	Host string
}

// ParsePrefix parses a "nick!user@host" combination (or a prefix) from the
// given string.
func ParsePrefix(s string) (p *Prefix) {
	if s == "" {
		return nil
	}

	p = &Prefix{}

	spl0 := strings.Split(s, "@")
	if 1 < len(spl0) {
		p.Host = spl0[1]
	}

	spl1 := strings.Split(spl0[0], "!")
	if 1 < len(spl1) {
		p.User = spl1[1]
	}

	p.Name = spl1[0]

	return
}

// Copy makes a copy of the prefix, but doesn't copy the internal strings.
func (p *Prefix) Copy() *Prefix {
	if p == nil {
		return nil
	}
	res := &Prefix{}
	*res = *p
	return res
}

// String returns the "nick!user@host" representation of the prefix.
func (p *Prefix) String() string {
	if p == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(p.Name)
	if p.User != "" {
		sb.WriteRune('!')
		sb.WriteString(p.User)
	}
	if p.Host != "" {
		sb.WriteRune('@')
		sb.WriteString(p.Host)
	}
	return sb.String()
}

// Message is the representation of an IRC message.
type Message struct {
	Tags    map[string]string
	Prefix  *Prefix
	Command string
	Params  []string

	raw string // non-empty for raw passthrough lines, see NewRawMessage.
}

// NewMessage makes a new message from the given command and parameters.
func NewMessage(command string, params ...string) Message {
	return Message{Command: command, Params: params}
}

// NewRawMessage makes a message that is written to the wire verbatim, without
// any formatting. The line must not contain CR or LF.
func NewRawMessage(line string) Message {
	return Message{raw: line}
}

// WithTag returns a copy of the message with the given tag set.
func (msg Message) WithTag(key, value string) Message {
	tags := make(map[string]string, len(msg.Tags)+1)
	for k, v := range msg.Tags {
		tags[k] = v
	}
	tags[key] = value
	msg.Tags = tags
	return msg
}

// ParseMessage parses the message from the given string, which must be
// trimmed of "\r\n" beforehand.
func ParseMessage(line string) (msg Message, err error) {
	line = strings.TrimLeft(line, " ")
	if line == "" {
		err = errEmptyMessage
		return
	}

	if line[0] == '@' {
		var tags string
		tags, line = word(line[1:])
		msg.Tags = parseTags(tags)
	}

	line = strings.TrimLeft(line, " ")
	if line == "" {
		err = errEmptyMessage
		return
	}

	if line[0] == ':' {
		var prefix string
		prefix, line = word(line[1:])
		msg.Prefix = ParsePrefix(prefix)
	}

	line = strings.TrimLeft(line, " ")
	if line == "" {
		err = errEmptyMessage
		return
	}

	msg.Command, line = word(line)
	msg.Command = strings.ToUpper(msg.Command)

	msg.Params = make([]string, 0, 15)
	for line != "" {
		if line[0] == ':' {
			msg.Params = append(msg.Params, line[1:])
			break
		}

		var param string
		param, line = word(line)
		msg.Params = append(msg.Params, param)
	}

	return
}

// IsReply reports whether the message command is a numeric reply.
func (msg *Message) IsReply() bool {
	if len(msg.Command) != 3 {
		return false
	}
	for i := 0; i < len(msg.Command); i++ {
		if msg.Command[i] < '0' || '9' < msg.Command[i] {
			return false
		}
	}
	return true
}

// String returns the wire representation of the message, without "\r\n". The
// final parameter is always written as a trailing parameter.
func (msg Message) String() string {
	if msg.raw != "" {
		return msg.raw
	}

	var sb strings.Builder

	if len(msg.Tags) != 0 {
		sb.WriteRune('@')
		sb.WriteString(formatTags(msg.Tags))
		sb.WriteRune(' ')
	}
	if msg.Prefix != nil {
		sb.WriteRune(':')
		sb.WriteString(msg.Prefix.String())
		sb.WriteRune(' ')
	}
	sb.WriteString(msg.Command)

	if len(msg.Params) != 0 {
		for _, param := range msg.Params[:len(msg.Params)-1] {
			sb.WriteRune(' ')
			sb.WriteString(param)
		}
		sb.WriteString(" :")
		sb.WriteString(msg.Params[len(msg.Params)-1])
	}

	return sb.String()
}

func (msg *Message) errNotEnoughParams(expected int) error {
	return fmt.Errorf("expected at least %d params, got %d", expected, len(msg.Params))
}

// ParseParams extracts the message parameters into the given string pointers,
// by position. A nil pointer skips its position. It returns an error when the
// message has fewer parameters than pointers.
func (msg *Message) ParseParams(params ...*string) error {
	if len(msg.Params) < len(params) {
		return msg.errNotEnoughParams(len(params))
	}
	for i := range params {
		if params[i] != nil {
			*params[i] = msg.Params[i]
		}
	}
	return nil
}

// Time returns the time when the message has been sent, if present.
func (msg *Message) Time() (t time.Time, ok bool) {
	tag, ok := msg.Tags["time"]
	if !ok {
		return time.Time{}, false
	}
	return parseTimestamp(tag)
}

// TimeOrNow returns the time when the message has been sent, or time.Now()
// if absent or malformed.
func (msg *Message) TimeOrNow() time.Time {
	if t, ok := msg.Time(); ok {
		return t
	}
	return time.Now().UTC()
}

// parseTimestamp parses a server-time timestamp ("2006-01-02T15:04:05.000Z").
func parseTimestamp(timestamp string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02T15:04:05.000Z", timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}

// Cap is a capability token in a CAP message.
type Cap struct {
	Name   string
	Value  string
	Enable bool
}

// ParseCaps parses the last argument (capability list) of a CAP message.
func ParseCaps(caps string) (diff []Cap) {
	for _, c := range strings.Split(caps, " ") {
		if c == "" || c == "-" || c == "=" || c == "-=" {
			continue
		}

		var item Cap

		if strings.HasPrefix(c, "-") {
			item.Enable = false
			c = c[1:]
		} else {
			item.Enable = true
		}

		kv := strings.SplitN(c, "=", 2)
		item.Name = strings.ToLower(kv[0])
		if len(kv) > 1 {
			item.Value = kv[1]
		}

		diff = append(diff, item)
	}
	return
}

// Name is a member name in a NAMES reply.
type Name struct {
	PowerLevel string
	Prefix     *Prefix
}

// ParseNameReply parses the last argument of a RPL_NAMREPLY, according to the
// membership prefix symbols advertised in ISUPPORT.
func ParseNameReply(trailing string, prefixes string) (names []Name) {
	for _, word := range strings.Split(trailing, " ") {
		if word == "" {
			continue
		}

		name := strings.TrimLeft(word, prefixes)
		names = append(names, Name{
			PowerLevel: word[:len(word)-len(name)],
			Prefix:     ParsePrefix(name),
		})
	}
	return
}

// ModeChange is a single mode change of a channel MODE message.
type ModeChange struct {
	Enable bool
	Mode   byte
	Param  string
}

// ParseChannelMode parses a channel MODE change according to the CHANMODES
// and membership modes advertised in ISUPPORT.
func ParseChannelMode(flags string, params []string, chanmodes [4]string, membershipModes string) ([]ModeChange, error) {
	var changes []ModeChange
	enable := true
	for i := 0; i < len(flags); i++ {
		m := flags[i]
		switch m {
		case '+':
			enable = true
		case '-':
			enable = false
		default:
			change := ModeChange{Enable: enable, Mode: m}
			var consume bool
			switch {
			case strings.IndexByte(membershipModes, m) >= 0:
				consume = true
			case strings.IndexByte(chanmodes[0], m) >= 0: // type A: list modes
				consume = true
			case strings.IndexByte(chanmodes[1], m) >= 0: // type B: always a param
				consume = true
			case strings.IndexByte(chanmodes[2], m) >= 0: // type C: param when set
				consume = enable
			default: // type D: no param
				consume = false
			}
			if consume {
				if len(params) == 0 {
					return nil, fmt.Errorf("missing parameter for mode %q", string(m))
				}
				change.Param = params[0]
				params = params[1:]
			}
			changes = append(changes, change)
		}
	}
	return changes, nil
}
