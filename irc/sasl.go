package irc

import (
	"bytes"
	"encoding/base64"
	"errors"
)

// SASLClient is a single SASL authentication exchange over AUTHENTICATE.
type SASLClient interface {
	// Handshake returns the mechanism name to request.
	Handshake() (mech string)
	// Respond computes the response to a server challenge. An error aborts
	// the exchange with "AUTHENTICATE *".
	Respond(challenge string) (res string, err error)
}

// SASLPlain authenticates with an account name and a password.
type SASLPlain struct {
	Username string
	Password string
}

func (auth *SASLPlain) Handshake() (mech string) {
	return "PLAIN"
}

func (auth *SASLPlain) Respond(challenge string) (res string, err error) {
	if challenge != "+" {
		return "", errors.New("unexpected challenge")
	}

	user := []byte(auth.Username)
	pass := []byte(auth.Password)
	payload := bytes.Join([][]byte{user, user, pass}, []byte{0})
	return base64.StdEncoding.EncodeToString(payload), nil
}

// SASLExternal authenticates with the TLS client certificate presented
// during the handshake. The response carries no payload.
type SASLExternal struct{}

func (SASLExternal) Handshake() (mech string) {
	return "EXTERNAL"
}

func (SASLExternal) Respond(challenge string) (res string, err error) {
	if challenge != "+" {
		return "", errors.New("unexpected challenge")
	}
	return "+", nil
}

// saslChunkLen is the maximum AUTHENTICATE parameter length; longer responses
// are split and terminated with a "+" chunk.
const saslChunkLen = 400

// saslChunks splits a SASL response into AUTHENTICATE parameters.
func saslChunks(res string) []string {
	if res == "" {
		return []string{"+"}
	}
	var chunks []string
	for len(res) > saslChunkLen {
		chunks = append(chunks, res[:saslChunkLen])
		res = res[saslChunkLen:]
	}
	chunks = append(chunks, res)
	if len(chunks[len(chunks)-1]) == saslChunkLen {
		chunks = append(chunks, "+")
	}
	return chunks
}
