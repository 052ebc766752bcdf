package signaldb

import (
	"fmt"
	"math"
)

// ValueType is how the raw bits of a signal are interpreted
type ValueType string

// Value types from SIG_VALTYPE_. Integer is the default and has no declaration.
const (
	ValueInteger ValueType = ""
	ValueFloat32 ValueType = "float32"
	ValueFloat64 ValueType = "float64"
)

// Signal is a scaled value packed into a message payload
type Signal struct {
	Name      string           `json:"name"`
	StartBit  uint             `json:"start_bit"`
	Length    uint             `json:"length"`
	BigEndian bool             `json:"big_endian"`
	Signed    bool             `json:"signed"`
	Factor    float64          `json:"factor"`
	Offset    float64          `json:"offset"`
	Minimum   float64          `json:"minimum"`
	Maximum   float64          `json:"maximum"`
	Unit      string           `json:"unit,omitempty"`
	Choices   map[int64]string `json:"choices,omitempty"`
	ValueType ValueType        `json:"value_type,omitempty"`

	IsMultiplexer bool   `json:"is_multiplexer,omitempty"`
	Multiplexed   bool   `json:"multiplexed,omitempty"`
	MuxValue      uint64 `json:"mux_value,omitempty"`
}

// Decode returns the physical value raw*factor+offset. Choice signals
// decode to their numeric value, never the label. IEEE float signals use
// the raw bits as a float32/float64 before scaling.
func (s *Signal) Decode(data []byte) (float64, bool) {
	u, ok := s.unsigned(data)
	if !ok {
		return 0, false
	}
	switch s.ValueType {
	case ValueFloat32:
		if s.Length != 32 {
			return 0, false
		}
		return float64(math.Float32frombits(uint32(u)))*s.Factor + s.Offset, true
	case ValueFloat64:
		if s.Length != 64 {
			return 0, false
		}
		return math.Float64frombits(u)*s.Factor + s.Offset, true
	}
	if s.Signed {
		return float64(signExtend(u, s.Length))*s.Factor + s.Offset, true
	}
	return float64(u)*s.Factor + s.Offset, true
}

// Raw returns the unscaled integer value
func (s *Signal) Raw(data []byte) (int64, bool) {
	u, ok := s.unsigned(data)
	if !ok {
		return 0, false
	}
	if s.Signed {
		return signExtend(u, s.Length), true
	}
	return int64(u), true
}

// Layout formats the bit layout the way DBC SG_ lines do, e.g. 0|16@1+
func (s *Signal) Layout() string {
	order, sign := "1", "+"
	if s.BigEndian {
		order = "0"
	}
	if s.Signed {
		sign = "-"
	}
	return fmt.Sprintf("%d|%d@%s%s", s.StartBit, s.Length, order, sign)
}

// unsigned extracts the raw bits. Intel signals count up from the LSB start
// bit; Motorola signals start at the MSB and walk the DBC sawtooth numbering.
func (s *Signal) unsigned(data []byte) (uint64, bool) {
	if s.Length == 0 || s.Length > 64 {
		return 0, false
	}

	var raw uint64
	if !s.BigEndian {
		last := s.StartBit + s.Length - 1
		if int(last/8) >= len(data) {
			return 0, false
		}
		for i := int(s.Length) - 1; i >= 0; i-- {
			pos := s.StartBit + uint(i)
			raw = raw<<1 | uint64(data[pos/8]>>(pos%8)&1)
		}
		return raw, true
	}

	pos := s.StartBit
	for i := uint(0); i < s.Length; i++ {
		if int(pos/8) >= len(data) {
			return 0, false
		}
		raw = raw<<1 | uint64(data[pos/8]>>(pos%8)&1)
		if pos%8 == 0 {
			pos += 15
		} else {
			pos--
		}
	}
	return raw, true
}

func signExtend(u uint64, length uint) int64 {
	if length >= 64 {
		return int64(u)
	}
	if u&(1<<(length-1)) != 0 {
		return int64(u) - int64(1)<<length
	}
	return int64(u)
}
