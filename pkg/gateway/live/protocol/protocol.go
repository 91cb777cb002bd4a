package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Event type tags as they appear on the wire. The client sends
// audio/text/interrupt/ping/config; the server sends
// audio/text/interrupted/error/ready/pong.
const (
	TypeAudio       = "audio"
	TypeText        = "text"
	TypeInterrupt   = "interrupt"
	TypePing        = "ping"
	TypeConfig      = "config"
	TypeInterrupted = "interrupted"
	TypeError       = "error"
	TypeReady       = "ready"
	TypePong        = "pong"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unknownType(typ string) *DecodeError {
	return &DecodeError{Code: "unknown_type", Message: fmt.Sprintf("Unknown message type: %s", typ)}
}

// Event is one message exchanged with the client, discriminated by the
// wire-level "type" field.
type Event interface {
	EventType() string
}

// Audio carries a chunk of raw audio bytes; base64 on the wire.
type Audio struct {
	Data     []byte
	MIMEType string
}

// Text carries a text chunk in either direction.
type Text struct {
	Text string
}

// Interrupt asks the upstream session to end the current activity.
type Interrupt struct{}

type Ping struct{}

type Pong struct{}

// Interrupted tells the client that buffered output it has not played
// yet is stale and should be discarded.
type Interrupted struct{}

type Error struct {
	Message string
}

// Ready signals that the upstream session is established and relay
// traffic may flow.
type Ready struct {
	Model string
}

// Config is the optional first client frame overriding session defaults.
// Empty fields mean "keep the default".
type Config struct {
	SystemInstruction  string
	ResponseModalities []string
	Model              string
}

func (Audio) EventType() string       { return TypeAudio }
func (Text) EventType() string        { return TypeText }
func (Interrupt) EventType() string   { return TypeInterrupt }
func (Ping) EventType() string        { return TypePing }
func (Pong) EventType() string        { return TypePong }
func (Interrupted) EventType() string { return TypeInterrupted }
func (Error) EventType() string       { return TypeError }
func (Ready) EventType() string       { return TypeReady }
func (Config) EventType() string      { return TypeConfig }

type audioWire struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MIMEType string `json:"mime_type,omitempty"`
}

type textWire struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type tagOnlyWire struct {
	Type string `json:"type"`
}

type errorWire struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type readyWire struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

type configWire struct {
	Type               string   `json:"type"`
	SystemInstruction  string   `json:"system_instruction,omitempty"`
	ResponseModalities []string `json:"response_modalities,omitempty"`
	Model              string   `json:"model,omitempty"`
}

// Encode serializes an event to its wire form.
func Encode(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case Audio:
		return json.Marshal(audioWire{
			Type:     TypeAudio,
			Data:     base64.StdEncoding.EncodeToString(ev.Data),
			MIMEType: ev.MIMEType,
		})
	case Text:
		return json.Marshal(textWire{Type: TypeText, Text: ev.Text})
	case Interrupt:
		return json.Marshal(tagOnlyWire{Type: TypeInterrupt})
	case Ping:
		return json.Marshal(tagOnlyWire{Type: TypePing})
	case Pong:
		return json.Marshal(tagOnlyWire{Type: TypePong})
	case Interrupted:
		return json.Marshal(tagOnlyWire{Type: TypeInterrupted})
	case Error:
		return json.Marshal(errorWire{Type: TypeError, Message: ev.Message})
	case Ready:
		return json.Marshal(readyWire{Type: TypeReady, Model: ev.Model})
	case Config:
		return json.Marshal(configWire{
			Type:               TypeConfig,
			SystemInstruction:  ev.SystemInstruction,
			ResponseModalities: ev.ResponseModalities,
			Model:              ev.Model,
		})
	default:
		return nil, fmt.Errorf("protocol: unencodable event %T", e)
	}
}

// Decode parses a wire frame into an Event. An unrecognized type tag
// yields a *DecodeError whose Message is meant to be relayed to the
// client verbatim; the session is expected to keep running.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeAudio:
		var msg audioWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return nil, badRequest("audio.data is not valid base64", "data")
		}
		return Audio{Data: raw, MIMEType: msg.MIMEType}, nil
	case TypeText:
		var msg textWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text frame", "")
		}
		return Text{Text: msg.Text}, nil
	case TypeInterrupt:
		return Interrupt{}, nil
	case TypePing:
		return Ping{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeInterrupted:
		return Interrupted{}, nil
	case TypeError:
		var msg errorWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid error frame", "")
		}
		return Error{Message: msg.Message}, nil
	case TypeReady:
		var msg readyWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid ready frame", "")
		}
		return Ready{Model: msg.Model}, nil
	case TypeConfig:
		var msg configWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid config frame", "")
		}
		return Config{
			SystemInstruction:  msg.SystemInstruction,
			ResponseModalities: msg.ResponseModalities,
			Model:              msg.Model,
		}, nil
	default:
		return nil, unknownType(typ)
	}
}
