package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a command variant.
type Kind string

const (
	// KindNop is the only variant today; it carries the raw line and does nothing.
	KindNop Kind = "nop"
)

// Command is one parsed client request. Values are immutable once built.
type Command struct {
	Kind Kind `json:"kind"`
	// Nop is set when Kind is KindNop.
	Nop *Nop `json:"nop,omitempty"`
	// Raw is the unparsed line as received from the client.
	Raw string `json:"-"`
	// Source identifies the connection the line arrived on.
	Source string `json:"-"`
}

// Nop is a command that performs no action.
type Nop struct {
	Extras *string `json:"extras,omitempty"`
}

// String renders a short description for logs.
func (c Command) String() string {
	switch c.Kind {
	case KindNop:
		if c.Nop != nil && c.Nop.Extras != nil {
			return fmt.Sprintf("nop(%q)", *c.Nop.Extras)
		}
		return "nop"
	default:
		return string(c.Kind)
	}
}

// Parser turns a received line into a Command.
type Parser interface {
	Parse(line string) (Command, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(line string) (Command, error)

// Parse calls f(line).
func (f ParserFunc) Parse(line string) (Command, error) { return f(line) }

// NopParser is the placeholder parser: every line becomes a Nop holding the
// line as its extras.
type NopParser struct{}

// Parse never fails.
func (NopParser) Parse(line string) (Command, error) {
	extras := line
	return Command{Kind: KindNop, Nop: &Nop{Extras: &extras}, Raw: line}, nil
}

// ErrInvalidJSON is returned when a JSON-encoded command cannot be decoded.
var ErrInvalidJSON = errors.New("json parser error")

// FromJSON decodes a JSON-encoded command such as {"kind":"nop","nop":{"extras":"x"}}.
func FromJSON(data string) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	switch cmd.Kind {
	case KindNop:
		if cmd.Nop == nil {
			cmd.Nop = &Nop{}
		}
	default:
		return Command{}, fmt.Errorf("%w: unknown command kind %q", ErrInvalidJSON, cmd.Kind)
	}
	cmd.Raw = data
	return cmd, nil
}
