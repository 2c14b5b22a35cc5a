// Package ldapwire reads and writes the outer LDAPMessage envelope
// (SEQUENCE{messageID, protocolOp, controls}) without decoding the
// protocolOp body or controls, so the proxy core can rewrite the
// message ID and forward everything else opaque.
package ldapwire

import (
	"fmt"
	"io"

	ber "github.com/go-asn1-ber/asn1-ber"

	"github.com/majewsky-labs/lloadd/internal/ldaperr"
	"github.com/majewsky-labs/lloadd/internal/ldaptag"
)

// Message is a decoded LDAPMessage envelope. Body and Controls keep their
// original encoded bytes so re-encoding never has to understand the
// protocolOp's inner structure, mirroring operation_init's ber_skip_element
// pass over the request body.
type Message struct {
	// MessageID is the wire messageID, as sent by the peer.
	MessageID int64

	// Tag is the BER application tag of the protocolOp, identifying the
	// operation kind.
	Tag ldaptag.Tag

	// Body holds the fully re-encodable protocolOp packet, untouched.
	Body *ber.Packet

	// Controls holds the optional [0] controls packet, or nil if absent.
	Controls *ber.Packet
}

// ReadMessage reads one LDAPMessage envelope from r. It returns io.EOF
// (unwrapped) when the peer closes the connection cleanly between
// messages.
func ReadMessage(r io.Reader) (*Message, error) {
	packet, err := ber.ReadPacket(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("ldapwire: read envelope: %w", err)
	}
	return decodeEnvelope(packet)
}

func decodeEnvelope(packet *ber.Packet) (*Message, error) {
	if len(packet.Children) < 2 {
		return nil, fmt.Errorf("ldapwire: envelope has %d children, want at least 2: %w", len(packet.Children), ldaperr.ErrCodec)
	}

	idPacket := packet.Children[0]
	msgID, ok := idPacket.Value.(int64)
	if !ok {
		// asn1-ber decodes small integers into int depending on path; normalize.
		switch v := idPacket.Value.(type) {
		case int:
			msgID = int64(v)
		case uint64:
			msgID = int64(v)
		default:
			return nil, fmt.Errorf("ldapwire: messageID is not an integer (%T): %w", idPacket.Value, ldaperr.ErrCodec)
		}
	}

	body := packet.Children[1]
	tag := ldaptag.Tag(body.Tag)

	var controls *ber.Packet
	if len(packet.Children) > 2 {
		controls = packet.Children[2]
	}

	return &Message{
		MessageID: msgID,
		Tag:       tag,
		Body:      body,
		Controls:  controls,
	}, nil
}

// WriteMessage re-encodes msg with messageID substituted for the original
// one and writes it to w. The body and controls packets are appended
// verbatim, reproducing nicolar-ldap-proxy's AppendChild(ber.DecodePacket(...))
// pass-through pattern so the proxy never has to understand protocolOp
// internals to forward them correctly.
func WriteMessage(w io.Writer, messageID int64, msg *Message) error {
	envelope := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
	envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, messageID, "MessageID"))
	envelope.AppendChild(msg.Body)
	if msg.Controls != nil {
		envelope.AppendChild(msg.Controls)
	}

	_, err := w.Write(envelope.Bytes())
	if err != nil {
		return fmt.Errorf("ldapwire: write envelope: %w", err)
	}
	return nil
}

// Rewrite returns a shallow copy of msg with MessageID replaced. Body and
// Controls are shared, not cloned: callers must not mutate them.
func (m *Message) Rewrite(messageID int64) *Message {
	clone := *m
	clone.MessageID = messageID
	return &clone
}
