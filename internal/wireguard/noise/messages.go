package noise

import "encoding/binary"

const (
	MessageInitiationType = 1
	MessageResponseType   = 2
	MessageTransportType  = 4

	messageInitiationSize = 1 + 3 + 4 + 32 + 32 + 16 + 12 + 16 + 16 + 16
	messageResponseSize   = 1 + 3 + 4 + 4 + 32 + 16 + 16 + 16

	rekeyAfterMessages  = uint64(1) << 60
	RejectAfterMessages = (uint64(1) << 64) - (uint64(1) << 13) - 1
)

// MessageInitiation is the first Noise_IKpsk2 message, sent by the tunnel
// that initiates a session.
type MessageInitiation struct {
	senderIndex uint32
	ephemeral   PublicKey
	static      [KeyLen + 16]byte
	timestamp   [12 + 16]byte
	mac1        [16]byte
	mac2        [16]byte
}

func (m *MessageInitiation) Marshal() []byte {
	buf := make([]byte, 0, messageInitiationSize)
	buf = append(buf, MessageInitiationType, 0, 0, 0)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], m.senderIndex)
	buf = append(buf, idx[:]...)
	buf = append(buf, m.ephemeral[:]...)
	buf = append(buf, m.static[:]...)
	buf = append(buf, m.timestamp[:]...)
	buf = append(buf, m.mac1[:]...)
	buf = append(buf, m.mac2[:]...)
	return buf
}

func (m *MessageInitiation) SenderIndex() uint32 { return m.senderIndex }
func (m *MessageInitiation) Ephemeral() PublicKey { return m.ephemeral }

func UnmarshalInitiation(b []byte) (*MessageInitiation, bool) {
	if len(b) != messageInitiationSize || b[0] != MessageInitiationType {
		return nil, false
	}
	m := &MessageInitiation{}
	m.senderIndex = binary.LittleEndian.Uint32(b[4:8])
	copy(m.ephemeral[:], b[8:40])
	copy(m.static[:], b[40:88])
	copy(m.timestamp[:], b[88:116])
	copy(m.mac1[:], b[116:132])
	copy(m.mac2[:], b[132:148])
	return m, true
}

// MessageResponse is the second message, sent by the responding tunnel.
type MessageResponse struct {
	senderIndex   uint32
	receiverIndex uint32
	ephemeral     PublicKey
	empty         [16]byte
	mac1          [16]byte
	mac2          [16]byte
}

func (m *MessageResponse) Marshal() []byte {
	buf := make([]byte, 0, messageResponseSize)
	buf = append(buf, MessageResponseType, 0, 0, 0)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], m.senderIndex)
	buf = append(buf, idx[:]...)
	binary.LittleEndian.PutUint32(idx[:], m.receiverIndex)
	buf = append(buf, idx[:]...)
	buf = append(buf, m.ephemeral[:]...)
	buf = append(buf, m.empty[:]...)
	buf = append(buf, m.mac1[:]...)
	buf = append(buf, m.mac2[:]...)
	return buf
}

func (m *MessageResponse) SenderIndex() uint32   { return m.senderIndex }
func (m *MessageResponse) ReceiverIndex() uint32 { return m.receiverIndex }

func UnmarshalResponse(b []byte) (*MessageResponse, bool) {
	if len(b) != messageResponseSize || b[0] != MessageResponseType {
		return nil, false
	}
	m := &MessageResponse{}
	m.senderIndex = binary.LittleEndian.Uint32(b[4:8])
	m.receiverIndex = binary.LittleEndian.Uint32(b[8:12])
	copy(m.ephemeral[:], b[12:44])
	copy(m.empty[:], b[44:60])
	copy(m.mac1[:], b[60:76])
	copy(m.mac2[:], b[76:92])
	return m, true
}

// TransportHeaderSize is the fixed prefix ahead of the AEAD-sealed payload
// in a data message: type(4, only first byte used) + receiver index(4) +
// counter(8).
const TransportHeaderSize = 16

func MarshalTransportHeader(buf []byte, receiverIndex uint32, counter uint64) {
	buf[0] = MessageTransportType
	buf[1], buf[2], buf[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[4:8], receiverIndex)
	binary.LittleEndian.PutUint64(buf[8:16], counter)
}

func ParseTransportHeader(b []byte) (receiverIndex uint32, counter uint64, ok bool) {
	if len(b) < TransportHeaderSize || b[0] != MessageTransportType {
		return 0, 0, false
	}
	receiverIndex = binary.LittleEndian.Uint32(b[4:8])
	counter = binary.LittleEndian.Uint64(b[8:16])
	return receiverIndex, counter, true
}

// PacketType peeks at the first byte of a UDP datagram to classify it
// without fully parsing.
func PacketType(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
