package amq

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nanachan-bot/nanachan/tpool"
)

// EngineType is an Engine.IO v4 packet type.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// SocketType is a Socket.IO v5 packet type, carried in Engine.IO messages.
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
)

// Packet is a decoded text packet.
type Packet struct {
	Engine EngineType
	// Socket is set for EngineMessage packets.
	Socket SocketType
	// ID is the ack ID, or -1 if there is none.
	ID int
	// Event is the event name of SocketEvent packets.
	Event string
	// Args are the event arguments of SocketEvent and SocketAck packets.
	Args []jsontext.Value
	// Data is the payload of other packets that carry one, such as
	// EngineOpen and SocketConnect.
	Data jsontext.Value
}

// Open is the payload of an EngineOpen packet.
type Open struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

var errEmpty = errors.New("empty packet")

// Decode parses a text packet.
func Decode(b []byte) (Packet, error) {
	p := Packet{ID: -1}
	if len(b) == 0 {
		return p, errEmpty
	}
	p.Engine = EngineType(b[0])
	b = b[1:]
	switch p.Engine {
	case EngineOpen, EngineClose, EnginePing, EnginePong, EngineUpgrade, EngineNoop:
		if len(b) != 0 {
			p.Data = jsontext.Value(b)
		}
		return p, nil
	case EngineMessage: // handled below
	default:
		return p, fmt.Errorf("unknown engine packet type %q", p.Engine)
	}
	if len(b) == 0 {
		return p, errors.New("empty socket packet")
	}
	p.Socket = SocketType(b[0])
	b = b[1:]
	// Namespace, if not the default.
	if len(b) > 0 && b[0] == '/' {
		i := bytes.IndexByte(b, ',')
		if i < 0 {
			b = nil
		} else {
			b = b[i+1:]
		}
	}
	// Ack ID.
	i := 0
	for i < len(b) && '0' <= b[i] && b[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(string(b[:i]))
		if err != nil {
			return p, fmt.Errorf("bad ack id: %w", err)
		}
		p.ID = id
		b = b[i:]
	}
	switch p.Socket {
	case SocketConnect, SocketDisconnect, SocketConnectError:
		if len(b) != 0 {
			p.Data = jsontext.Value(b)
		}
		return p, nil
	case SocketEvent, SocketAck:
		var args []jsontext.Value
		if err := json.Unmarshal(b, &args); err != nil {
			return p, fmt.Errorf("couldn't decode event arguments: %w", err)
		}
		if p.Socket == SocketEvent {
			if len(args) == 0 {
				return p, errors.New("event has no name")
			}
			if err := json.Unmarshal(args[0], &p.Event); err != nil {
				return p, fmt.Errorf("couldn't decode event name: %w", err)
			}
			args = args[1:]
		}
		p.Args = args
		return p, nil
	default:
		return p, fmt.Errorf("unknown socket packet type %q", p.Socket)
	}
}

var buffers = tpool.Pool[*bytes.Buffer]{New: func() *bytes.Buffer { return new(bytes.Buffer) }}

// Encode formats a packet as text.
func Encode(p *Packet) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)
	buf.Reset()
	buf.WriteByte(byte(p.Engine))
	if p.Engine != EngineMessage {
		buf.Write(p.Data)
		return bytes.Clone(buf.Bytes()), nil
	}
	buf.WriteByte(byte(p.Socket))
	if p.ID >= 0 {
		buf.WriteString(strconv.Itoa(p.ID))
	}
	switch p.Socket {
	case SocketEvent:
		name, err := json.Marshal(p.Event)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('[')
		buf.Write(name)
		for _, a := range p.Args {
			buf.WriteByte(',')
			buf.Write(a)
		}
		buf.WriteByte(']')
	case SocketAck:
		buf.WriteByte('[')
		for i, a := range p.Args {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(a)
		}
		buf.WriteByte(']')
	default:
		buf.Write(p.Data)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Event creates an event packet with JSON-encoded arguments.
func Event(name string, args ...any) (*Packet, error) {
	p := &Packet{Engine: EngineMessage, Socket: SocketEvent, ID: -1, Event: name}
	for _, a := range args {
		b, err := json.Marshal(a, json.Deterministic(true))
		if err != nil {
			return nil, fmt.Errorf("couldn't encode %s argument: %w", name, err)
		}
		p.Args = append(p.Args, b)
	}
	return p, nil
}
