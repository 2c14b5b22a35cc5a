package ldapwire

import (
	"bytes"
	"io"
	"testing"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/stretchr/testify/require"

	"github.com/majewsky-labs/lloadd/internal/ldaptag"
)

func encodeUnbindEnvelope(t *testing.T, messageID int64) []byte {
	t.Helper()
	envelope := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
	envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, messageID, "MessageID"))
	body := ber.Encode(ber.ClassApplication, ber.TypePrimitive, ber.Tag(ldaptag.UnbindRequest), nil, "UnbindRequest")
	envelope.AppendChild(body)
	return envelope.Bytes()
}

func TestReadMessageDecodesEnvelope(t *testing.T) {
	raw := encodeUnbindEnvelope(t, 7)

	msg, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, int64(7), msg.MessageID)
	require.Equal(t, ldaptag.UnbindRequest, msg.Tag)
	require.Nil(t, msg.Controls)
}

func TestReadMessageEOFOnCleanClose(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestWriteMessageRewritesMessageIDOnly(t *testing.T) {
	raw := encodeUnbindEnvelope(t, 1)
	msg, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, 42, msg))

	rewritten, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(42), rewritten.MessageID)
	require.Equal(t, ldaptag.UnbindRequest, rewritten.Tag)
}

func TestRewriteDoesNotMutateOriginal(t *testing.T) {
	raw := encodeUnbindEnvelope(t, 3)
	msg, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	clone := msg.Rewrite(99)
	require.Equal(t, int64(3), msg.MessageID)
	require.Equal(t, int64(99), clone.MessageID)
	require.Same(t, msg.Body, clone.Body)
}
