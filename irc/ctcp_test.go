package irc

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCTCP(t *testing.T) {
	command, params, ok := parseCTCP("\x01VERSION\x01")
	require.True(t, ok)
	assert.Equal(t, "VERSION", command)
	assert.Equal(t, "", params)

	command, params, ok = parseCTCP("\x01ping 12345\x01")
	require.True(t, ok)
	assert.Equal(t, "PING", command)
	assert.Equal(t, "12345", params)

	// a missing closing delimiter is tolerated
	command, _, ok = parseCTCP("\x01ACTION waves")
	require.True(t, ok)
	assert.Equal(t, "ACTION", command)

	_, _, ok = parseCTCP("plain message")
	assert.False(t, ok)
	_, _, ok = parseCTCP("\x01\x01")
	assert.False(t, ok)
}

func TestParseDCCOffer(t *testing.T) {
	offer, ok := parseDCCOffer("SEND file.tar.gz 3232235777 5000 1048576")
	require.True(t, ok)
	assert.Equal(t, "SEND", offer.Kind)
	assert.Equal(t, "file.tar.gz", offer.Argument)
	assert.Equal(t, "192.168.1.1", offer.Host)
	assert.Equal(t, 5000, offer.Port)
	assert.Equal(t, int64(1048576), offer.Size)

	offer, ok = parseDCCOffer(`SEND "my file.txt" 2130706433 1234`)
	require.True(t, ok)
	assert.Equal(t, "my file.txt", offer.Argument)
	assert.Equal(t, "127.0.0.1", offer.Host)
	assert.Equal(t, int64(0), offer.Size)

	offer, ok = parseDCCOffer("CHAT chat 2130706433 6000")
	require.True(t, ok)
	assert.Equal(t, "CHAT", offer.Kind)

	// non-numeric addresses pass through
	offer, ok = parseDCCOffer("SEND file example.org 6000")
	require.True(t, ok)
	assert.Equal(t, "example.org", offer.Host)

	_, ok = parseDCCOffer("RESUME file 0 0")
	assert.False(t, ok)
	_, ok = parseDCCOffer("SEND file 2130706433 notaport")
	assert.False(t, ok)
	_, ok = parseDCCOffer("SEND file 2130706433 99999")
	assert.False(t, ok)
	_, ok = parseDCCOffer("SEND")
	assert.False(t, ok)
}

func TestDecodeRealname(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("Real Name"))
	assert.Equal(t, "Real Name", decodeRealname(encoded))

	// plain realnames pass through
	assert.Equal(t, "John Doe", decodeRealname("John Doe"))
	assert.Equal(t, "", decodeRealname(""))
	assert.Equal(t, "1234", decodeRealname("1234"))

	// valid base64 of control bytes stays undecoded
	control := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, control, decodeRealname(control))
}
