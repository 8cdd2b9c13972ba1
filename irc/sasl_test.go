package irc

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSASLPlain(t *testing.T) {
	auth := &SASLPlain{Username: "user", Password: "pass"}
	assert.Equal(t, "PLAIN", auth.Handshake())

	res, err := auth.Respond("+")
	require.NoError(t, err)
	payload, err := base64.StdEncoding.DecodeString(res)
	require.NoError(t, err)
	assert.Equal(t, "user\x00user\x00pass", string(payload))

	_, err = auth.Respond("unexpected")
	assert.Error(t, err)
}

func TestSASLExternal(t *testing.T) {
	auth := SASLExternal{}
	assert.Equal(t, "EXTERNAL", auth.Handshake())

	res, err := auth.Respond("+")
	require.NoError(t, err)
	assert.Equal(t, "+", res)
}

func TestSASLChunks(t *testing.T) {
	assert.Equal(t, []string{"+"}, saslChunks(""))
	assert.Equal(t, []string{"abc"}, saslChunks("abc"))

	// exactly one chunk gets an empty continuation marker
	exact := strings.Repeat("a", 400)
	assert.Equal(t, []string{exact, "+"}, saslChunks(exact))

	long := strings.Repeat("a", 401)
	assert.Equal(t, []string{exact, "a"}, saslChunks(long))

	double := strings.Repeat("a", 800)
	assert.Equal(t, []string{exact, exact, "+"}, saslChunks(double))
}
