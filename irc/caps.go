package irc

import (
	"strconv"
	"strings"
	"time"
)

// SupportedCapabilities is the set of capabilities requested by the engine
// when the server advertises them.
var SupportedCapabilities = map[string]bool{
	"account-notify":   true,
	"away-notify":      true,
	"batch":            true,
	"cap-notify":       true,
	"echo-message":     true,
	"invite-notify":    true,
	"labeled-response": true,
	"message-tags":     true,
	"multi-prefix":     true,
	"sasl":             true,
	"server-time":      true,
	"setname":          true,
	"standard-replies": true,

	"draft/account-registration": true,
	"draft/channel-rename":       true,
	"draft/chathistory":          true,
	"draft/event-playback":       true,
	"znc.in/playback":            true,
}

type capState int

const (
	capIdle capState = iota
	capAwaitingAck // REQ sent, waiting for ACK/NAK
	capSASLPending // SASL exchange running before CAP END
)

// capNegotiator drives CAP LS/ACK/NAK/NEW/DEL, tracks the available and
// enabled capability sets, and starts SASL (re-)authentication when
// capabilities change.
//
// Invariant: enabled is always a subset of available.
type capNegotiator struct {
	available map[string]string
	enabled   map[string]struct{}
	state     capState

	auth           SASLClient // nil when no SASL credentials are configured
	authenticating bool

	pendingReqs int      // REQs awaiting ACK/NAK during registration
	pendingLS   []string // wanted caps gathered across a multi-line LS burst

	send  func(command string, params ...string)
	onEnd func() // ends registration-time negotiation (CAP END)
	onSTS func(policy STSPolicy)
}

func newCapNegotiator(auth SASLClient, send func(command string, params ...string)) *capNegotiator {
	return &capNegotiator{
		available: map[string]string{},
		enabled:   map[string]struct{}{},
		auth:      auth,
		send:      send,
	}
}

func (n *capNegotiator) has(name string) bool {
	_, ok := n.enabled[name]
	return ok
}

func (n *capNegotiator) value(name string) string {
	return n.available[name]
}

// reset drops all negotiation state; the next connection starts fresh.
func (n *capNegotiator) reset(auth SASLClient) {
	n.available = map[string]string{}
	n.enabled = map[string]struct{}{}
	n.state = capIdle
	n.auth = auth
	n.authenticating = false
	n.pendingReqs = 0
	n.pendingLS = nil
}

// wants reports whether the engine should request the advertised capability.
func (n *capNegotiator) wants(name string) bool {
	if !SupportedCapabilities[name] {
		return false
	}
	if name == "sasl" && n.auth == nil {
		return false
	}
	if _, ok := n.enabled[name]; ok {
		return false
	}
	return true
}

// handleLS records an LS burst. more is true for all but the last line of a
// multi-line LS; the REQ is sent once the burst is complete.
func (n *capNegotiator) handleLS(caps string, more bool) {
	for _, c := range ParseCaps(caps) {
		n.available[c.Name] = c.Value
		if c.Name == "sts" && n.onSTS != nil {
			if policy, ok := parseSTSPolicy(c.Value); ok {
				n.onSTS(policy)
			}
		}
		if n.wants(c.Name) {
			n.pendingLS = append(n.pendingLS, c.Name)
		}
	}
	if more {
		return
	}
	reqs := n.pendingLS
	n.pendingLS = nil
	if len(reqs) > 0 {
		n.send("CAP", "REQ", strings.Join(reqs, " "))
		n.pendingReqs++
		n.state = capAwaitingAck
	} else {
		// nothing to request, registration can proceed
		n.finish()
	}
}

// handleACK updates the enabled set and starts SASL when it was requested.
func (n *capNegotiator) handleACK(caps string) {
	sasl := false
	for _, c := range ParseCaps(caps) {
		if c.Enable {
			if _, ok := n.available[c.Name]; !ok {
				// keep enabled a subset of available
				n.available[c.Name] = ""
			}
			n.enabled[c.Name] = struct{}{}
		} else {
			delete(n.enabled, c.Name)
		}
		if c.Name == "sasl" && c.Enable {
			sasl = true
		}
	}
	if n.pendingReqs > 0 {
		n.pendingReqs--
	}

	if sasl && n.auth != nil && !n.authenticating {
		n.authenticating = true
		n.state = capSASLPending
		n.send("AUTHENTICATE", n.auth.Handshake())
		return
	}
	if n.state == capAwaitingAck && n.pendingReqs == 0 {
		n.finish()
	}
}

// handleNAK gives up on the rejected capabilities; registration proceeds.
func (n *capNegotiator) handleNAK(caps string) {
	if n.pendingReqs > 0 {
		n.pendingReqs--
	}
	if n.state == capAwaitingAck && n.pendingReqs == 0 {
		n.finish()
	}
}

// handleNEW adds newly announced capabilities. A new "sasl" with configured
// credentials triggers re-authentication (credential rotation after a
// services restart), unless an exchange is already running.
func (n *capNegotiator) handleNEW(caps string) {
	var reqs []string
	for _, c := range ParseCaps(caps) {
		n.available[c.Name] = c.Value
		if c.Name == "sasl" {
			if n.auth != nil && !n.authenticating {
				n.send("CAP", "REQ", "sasl")
			}
			continue
		}
		if n.wants(c.Name) {
			reqs = append(reqs, c.Name)
		}
	}
	if len(reqs) > 0 {
		n.send("CAP", "REQ", strings.Join(reqs, " "))
	}
}

// handleDEL removes capabilities from both sets.
func (n *capNegotiator) handleDEL(caps string) {
	for _, c := range ParseCaps(caps) {
		delete(n.available, c.Name)
		delete(n.enabled, c.Name)
	}
}

// saslFinished is called on a terminal SASL reply (success or failure).
func (n *capNegotiator) saslFinished() {
	n.authenticating = false
	if n.state == capSASLPending {
		n.finish()
	}
}

func (n *capNegotiator) finish() {
	n.state = capIdle
	if n.onEnd != nil {
		end := n.onEnd
		n.onEnd = nil
		end()
	}
}

// STSPolicy is a strict-transport-security policy advertised by the server.
type STSPolicy struct {
	Duration time.Duration `yaml:"duration"`
	Port     string        `yaml:"port"`
	Preload  bool          `yaml:"preload"`
}

// parseSTSPolicy parses the value of the "sts" capability
// ("duration=...,port=...,preload").
func parseSTSPolicy(value string) (policy STSPolicy, ok bool) {
	for _, item := range strings.Split(value, ",") {
		kv := strings.SplitN(item, "=", 2)
		switch kv[0] {
		case "duration":
			if len(kv) < 2 {
				continue
			}
			seconds, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				continue
			}
			policy.Duration = time.Duration(seconds) * time.Second
			ok = true
		case "port":
			if len(kv) < 2 {
				continue
			}
			policy.Port = kv[1]
		case "preload":
			policy.Preload = true
		}
	}
	return policy, ok
}
