package socketio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Engine.IO packet types, sent as the first byte of every websocket frame.
const (
	eioOpen    byte = '0'
	eioClose   byte = '1'
	eioPing    byte = '2'
	eioPong    byte = '3'
	eioMessage byte = '4'
	eioUpgrade byte = '5'
	eioNoop    byte = '6'
)

// PacketType is a Socket.IO packet type, carried inside an Engine.IO
// message packet.
type PacketType byte

const (
	PacketConnect     PacketType = '0'
	PacketDisconnect  PacketType = '1'
	PacketEvent       PacketType = '2'
	PacketAck         PacketType = '3'
	PacketError       PacketType = '4'
	PacketBinaryEvent PacketType = '5'
	PacketBinaryAck   PacketType = '6'
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "connect"
	case PacketDisconnect:
		return "disconnect"
	case PacketEvent:
		return "event"
	case PacketAck:
		return "ack"
	case PacketError:
		return "error"
	case PacketBinaryEvent:
		return "binary_event"
	case PacketBinaryAck:
		return "binary_ack"
	}
	return fmt.Sprintf("unknown(%q)", byte(t))
}

var errShortPacket = errors.New("socketio: empty packet")

// Packet is a decoded Socket.IO packet.  ID is -1 when the packet carries
// no ack id.
type Packet struct {
	Type        PacketType
	Namespace   string
	ID          int
	Attachments int
	Data        []byte
}

// decodePacket parses the Socket.IO layer of an Engine.IO message:
//
//	<type>[<attachments>-][/<namespace>,][<ack id>][<json data>]
func decodePacket(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, errShortPacket
	}
	p := Packet{Type: PacketType(b[0]), ID: -1, Namespace: "/"}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return Packet{}, errors.Errorf("socketio: unknown packet type %q", b[0])
	}
	rest := b[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		dash := bytes.IndexByte(rest, '-')
		if dash < 1 {
			return Packet{}, errors.New("socketio: binary packet without attachment count")
		}
		n, err := strconv.Atoi(string(rest[:dash]))
		if err != nil {
			return Packet{}, errors.Wrap(err, "socketio: attachment count")
		}
		p.Attachments = n
		rest = rest[dash+1:]
	}

	if len(rest) > 0 && rest[0] == '/' {
		comma := bytes.IndexByte(rest, ',')
		if comma < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:comma])
			rest = rest[comma+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return Packet{}, errors.Wrap(err, "socketio: ack id")
		}
		p.ID = id
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		p.Data = rest
	}
	return p, nil
}

// encodePacket is the inverse of decodePacket for the packets a client
// sends.  Binary packets are not supported.
func encodePacket(p Packet) []byte {
	var buf bytes.Buffer
	buf.WriteByte(eioMessage)
	buf.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		buf.WriteString(p.Namespace)
		if p.ID >= 0 || len(p.Data) > 0 {
			buf.WriteByte(',')
		}
	}
	if p.ID >= 0 {
		buf.WriteString(strconv.Itoa(p.ID))
	}
	buf.Write(p.Data)
	return buf.Bytes()
}

// Event is a Socket.IO EVENT packet: a name and its JSON arguments.
type Event struct {
	Namespace string
	Name      string
	Args      []json.RawMessage
}

// Payload returns the first argument, or nil when there is none.
func (e Event) Payload() json.RawMessage {
	if len(e.Args) == 0 {
		return nil
	}
	return e.Args[0]
}

func decodeEvent(p Packet) (Event, error) {
	if !gjson.ValidBytes(p.Data) {
		return Event{}, errors.New("socketio: event data is not valid json")
	}
	arr := gjson.ParseBytes(p.Data)
	if !arr.IsArray() {
		return Event{}, errors.New("socketio: event data is not an array")
	}
	elems := arr.Array()
	if len(elems) == 0 || elems[0].Type != gjson.String {
		return Event{}, errors.New("socketio: event has no name")
	}
	evt := Event{Namespace: p.Namespace, Name: elems[0].Str}
	for _, a := range elems[1:] {
		evt.Args = append(evt.Args, json.RawMessage(a.Raw))
	}
	return evt, nil
}

// handshake is the body of the Engine.IO open packet.
type handshake struct {
	SID          string
	PingInterval time.Duration
	PingTimeout  time.Duration
}

func decodeHandshake(b []byte) (handshake, error) {
	if !gjson.ValidBytes(b) {
		return handshake{}, errors.New("socketio: open packet is not valid json")
	}
	res := gjson.ParseBytes(b)
	hs := handshake{
		SID:          res.Get("sid").String(),
		PingInterval: time.Duration(res.Get("pingInterval").Int()) * time.Millisecond,
		PingTimeout:  time.Duration(res.Get("pingTimeout").Int()) * time.Millisecond,
	}
	if hs.SID == "" {
		return handshake{}, errors.New("socketio: open packet has no sid")
	}
	if hs.PingInterval <= 0 {
		hs.PingInterval = 25 * time.Second
	}
	if hs.PingTimeout <= 0 {
		hs.PingTimeout = 20 * time.Second
	}
	return hs, nil
}
