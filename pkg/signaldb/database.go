// Package signaldb loads CAN signal definitions and decodes frame payloads into
// physical values.
package signaldb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.einride.tech/can/pkg/dbc"
)

// idMask strips the extended-frame flag DBC files carry in bit 31
const idMask = 0x1FFFFFFF

// maxStandardID is the largest 11-bit frame id
const maxStandardID = 0x7FF

// independentSignals is the pseudo message Vector tools use for unassigned signals
const independentSignals = "VECTOR__INDEPENDENT_SIG_MSG"

// Database is a loaded set of message definitions keyed by frame id
type Database struct {
	name     string
	messages map[messageKey]*Message
	order    []*Message
}

// messageKey keeps a standard and an extended message with the same id apart
type messageKey struct {
	id       uint32
	extended bool
}

func keyOf(id dbc.MessageID) messageKey {
	return messageKey{id: uint32(id) & idMask, extended: uint32(id)&^idMask != 0}
}

// Message describes one CAN frame layout
type Message struct {
	ID       uint32    `json:"id"`
	Extended bool      `json:"extended"`
	Name     string    `json:"name"`
	Size     int       `json:"size"`
	Sender   string    `json:"sender,omitempty"`
	Signals  []*Signal `json:"signals"`

	multiplexer *Signal
}

// LoadFile reads and parses the DBC file at path
func LoadFile(path string) (*Database, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-specified DBC file
	if err != nil {
		return nil, fmt.Errorf("failed to read DBC file: %w", err)
	}
	return Load(filepath.Base(path), data)
}

// Load parses DBC source. name is only used in error positions.
func Load(name string, data []byte) (*Database, error) {
	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("failed to parse DBC: %w", err)
	}

	db := &Database{
		name:     name,
		messages: make(map[messageKey]*Message),
	}

	// Messages first, value tables may reference any of them
	for _, def := range p.Defs() {
		md, ok := def.(*dbc.MessageDef)
		if !ok || string(md.Name) == independentSignals {
			continue
		}
		msg := newMessage(md)
		key := keyOf(md.MessageID)
		if prev, exists := db.messages[key]; exists {
			// Later definitions win
			for i, m := range db.order {
				if m == prev {
					db.order[i] = msg
				}
			}
		} else {
			db.order = append(db.order, msg)
		}
		db.messages[key] = msg
	}

	for _, def := range p.Defs() {
		switch d := def.(type) {
		case *dbc.ValueDescriptionsDef:
			if d.ObjectType != dbc.ObjectTypeSignal {
				continue
			}
			sig := db.signal(d.MessageID, d.SignalName)
			if sig == nil {
				continue
			}
			sig.Choices = make(map[int64]string, len(d.ValueDescriptions))
			for _, vd := range d.ValueDescriptions {
				sig.Choices[int64(vd.Value)] = vd.Description
			}
		case *dbc.SignalValueTypeDef:
			sig := db.signal(d.MessageID, d.SignalName)
			if sig == nil {
				continue
			}
			switch d.SignalValueType {
			case dbc.SignalValueTypeFloat32:
				sig.ValueType = ValueFloat32
			case dbc.SignalValueTypeFloat64:
				sig.ValueType = ValueFloat64
			default:
				sig.ValueType = ValueInteger
			}
		}
	}

	return db, nil
}

func newMessage(md *dbc.MessageDef) *Message {
	msg := &Message{
		ID:       uint32(md.MessageID) & idMask,
		Extended: uint32(md.MessageID)&^idMask != 0,
		Name:     string(md.Name),
		Size:     int(md.Size),
		Sender:   string(md.Transmitter),
	}

	for _, sd := range md.Signals {
		sig := &Signal{
			Name:          string(sd.Name),
			StartBit:      uint(sd.StartBit),
			Length:        uint(sd.Size),
			BigEndian:     sd.IsBigEndian,
			Signed:        sd.IsSigned,
			Factor:        sd.Factor,
			Offset:        sd.Offset,
			Minimum:       sd.Minimum,
			Maximum:       sd.Maximum,
			Unit:          sd.Unit,
			IsMultiplexer: sd.IsMultiplexerSwitch,
			Multiplexed:   sd.IsMultiplexed,
			MuxValue:      sd.MultiplexerSwitch,
		}
		if sig.IsMultiplexer {
			msg.multiplexer = sig
		}
		msg.Signals = append(msg.Signals, sig)
	}

	return msg
}

// signal resolves a signal referenced by a VAL_ or SIG_VALTYPE_ line
func (db *Database) signal(id dbc.MessageID, name dbc.Identifier) *Signal {
	msg, ok := db.messages[keyOf(id)]
	if !ok {
		return nil
	}
	return msg.Signal(string(name))
}

// Name returns the source name the database was loaded from
func (db *Database) Name() string {
	return db.name
}

// Lookup returns the message for a frame id. A miss is not an error.
// Trace lines do not say whether a frame is extended, so ids up to 0x7FF
// prefer a standard message and larger ids prefer an extended one.
func (db *Database) Lookup(id uint32) (*Message, bool) {
	id &= idMask
	first, second := messageKey{id: id}, messageKey{id: id, extended: true}
	if id > maxStandardID {
		first, second = second, first
	}
	if msg, ok := db.messages[first]; ok {
		return msg, true
	}
	msg, ok := db.messages[second]
	return msg, ok
}

// Messages returns all messages in declaration order
func (db *Database) Messages() []*Message {
	return db.order
}

// SignalNames returns every signal name once, in declaration order
func (db *Database) SignalNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, msg := range db.order {
		for _, sig := range msg.Signals {
			if seen[sig.Name] {
				continue
			}
			seen[sig.Name] = true
			names = append(names, sig.Name)
		}
	}
	return names
}

// Units maps signal names to their units, skipping unitless signals
func (db *Database) Units() map[string]string {
	units := make(map[string]string)
	for _, msg := range db.order {
		for _, sig := range msg.Signals {
			if _, seen := units[sig.Name]; !seen && sig.Unit != "" {
				units[sig.Name] = sig.Unit
			}
		}
	}
	return units
}

// Signal returns the named signal of the message, or nil
func (m *Message) Signal(name string) *Signal {
	for _, sig := range m.Signals {
		if sig.Name == name {
			return sig
		}
	}
	return nil
}

// Decode maps a payload to physical values keyed by signal name.
// Multiplexed signals are only decoded when the multiplexer selects them;
// signals extending past the payload are left out.
func (m *Message) Decode(data []byte) map[string]float64 {
	values := make(map[string]float64, len(m.Signals))

	var (
		mux    uint64
		hasMux bool
	)
	if m.multiplexer != nil {
		if raw, ok := m.multiplexer.Raw(data); ok {
			mux = uint64(raw)
			hasMux = true
		}
	}

	for _, sig := range m.Signals {
		if sig.Multiplexed && (!hasMux || sig.MuxValue != mux) {
			continue
		}
		if v, ok := sig.Decode(data); ok {
			values[sig.Name] = v
		}
	}

	return values
}

// ChoiceValues returns the choice table sorted by raw value
func (s *Signal) ChoiceValues() []int64 {
	keys := make([]int64, 0, len(s.Choices))
	for k := range s.Choices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
