package irc

import (
	"encoding/base64"
	"strconv"
	"strings"
	"unicode/utf8"
)

// parseCTCP splits a "\x01COMMAND params\x01" message body. ok is false when
// the body is not a CTCP query.
func parseCTCP(content string) (command, params string, ok bool) {
	if len(content) < 2 || content[0] != 0x01 {
		return "", "", false
	}
	content = content[1:]
	if i := strings.IndexByte(content, 0x01); i >= 0 {
		content = content[:i]
	}
	command, params = word(content)
	if command == "" {
		return "", "", false
	}
	return strings.ToUpper(command), params, true
}

// parseDCCOffer parses the argument of a CTCP DCC query:
//
//	DCC SEND <filename> <ip> <port> [size]
//	DCC CHAT chat <ip> <port>
//
// Only the offer is parsed; the transfer itself is out of the engine's hands.
func parseDCCOffer(params string) (offer DCCOfferEvent, ok bool) {
	fields := splitDCCFields(params)
	if len(fields) < 4 {
		return offer, false
	}

	offer.Kind = strings.ToUpper(fields[0])
	switch offer.Kind {
	case "SEND", "CHAT":
	default:
		return offer, false
	}
	offer.Argument = fields[1]

	offer.Host = decodeDCCAddr(fields[2])
	port, err := strconv.Atoi(fields[3])
	if err != nil || port < 0 || port > 0xffff {
		return offer, false
	}
	offer.Port = port

	if offer.Kind == "SEND" && len(fields) >= 5 {
		if size, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
			offer.Size = size
		}
	}
	return offer, true
}

// splitDCCFields splits DCC arguments, honoring a quoted filename that may
// contain spaces.
func splitDCCFields(s string) []string {
	var fields []string
	for s != "" {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			break
		}
		if s[0] == '"' {
			if i := strings.IndexByte(s[1:], '"'); i >= 0 {
				fields = append(fields, s[1:i+1])
				s = s[i+2:]
				continue
			}
		}
		var f string
		f, s = word(s)
		fields = append(fields, f)
	}
	return fields
}

// decodeDCCAddr turns the legacy decimal IPv4 representation into dotted
// form; other representations pass through.
func decodeDCCAddr(s string) string {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return s
	}
	return strconv.FormatUint(n>>24&0xff, 10) + "." +
		strconv.FormatUint(n>>16&0xff, 10) + "." +
		strconv.FormatUint(n>>8&0xff, 10) + "." +
		strconv.FormatUint(n&0xff, 10)
}

// decodeRealname recovers realnames that some bouncers deliver as base64: the
// parameter is decoded when it round-trips cleanly to printable UTF-8, and
// passed through unchanged otherwise.
func decodeRealname(s string) string {
	if s == "" || len(s)%4 != 0 {
		return s
	}
	decoded, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil || len(decoded) == 0 || !utf8.Valid(decoded) {
		return s
	}
	for _, b := range decoded {
		if b < 0x20 || b == 0x7f {
			return s
		}
	}
	return string(decoded)
}
