package ethcontract

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// TraceStep is one opcode execution record of a traced call, normalized from
// whatever the trace provider emits. Steps are read-only inputs to the
// scanners; the operand stack is ordered bottom to top.
type TraceStep struct {
	Op    string
	Depth int
	Stack []uint256.Int

	// Memory holds the full memory snapshot for this step. Providers are
	// only required to populate it for KECCAK256 steps.
	Memory []byte
}

// StackBack returns the i-th operand from the top of the stack.
// ok is false when the trace did not record enough operands, which
// happens with incomplete tracer output; callers skip such steps.
func (s *TraceStep) StackBack(i int) (*uint256.Int, bool) {
	if i < 0 || i >= len(s.Stack) {
		return nil, false
	}
	return &s.Stack[len(s.Stack)-1-i], true
}

// MemorySlice returns size bytes of memory starting at offset,
// zero-padded past the recorded end.
func (s *TraceStep) MemorySlice(offset, size uint64) []byte {
	out := make([]byte, size)
	if offset < uint64(len(s.Memory)) {
		copy(out, s.Memory[offset:])
	}
	return out
}

// StructLog is one entry of a debug_traceCall struct-log stream. Its
// UnmarshalJSON tolerates the dialect differences between providers:
// opcodes as strings or numbers (with an optional opName), memory as one
// hex string or as a list of 32-byte hex words, and the legacy SHA3
// mnemonic for KECCAK256.
type StructLog struct {
	PC     uint64
	Op     string
	Depth  int
	Stack  []string
	Memory []byte
}

func (l *StructLog) UnmarshalJSON(data []byte) error {
	var raw struct {
		PC     uint64          `json:"pc"`
		Op     json.RawMessage `json:"op"`
		OpName string          `json:"opName"`
		Depth  int             `json:"depth"`
		Stack  []string        `json:"stack"`
		Memory json.RawMessage `json:"memory"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.PC = raw.PC
	l.Depth = raw.Depth
	l.Stack = raw.Stack

	op, err := decodeOp(raw.Op, raw.OpName)
	if err != nil {
		return err
	}
	l.Op = op

	mem, err := decodeMemory(raw.Memory)
	if err != nil {
		return err
	}
	l.Memory = mem
	return nil
}

func decodeOp(raw json.RawMessage, opName string) (string, error) {
	if opName != "" {
		return normalizeOp(opName), nil
	}
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalizeOp(s), nil
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return normalizeOp(vm.OpCode(n).String()), nil
}

// normalizeOp maps the pre-EIP-1803 SHA3 mnemonic onto KECCAK256 so the
// scanners only deal in one name.
func normalizeOp(op string) string {
	if op == "SHA3" {
		return "KECCAK256"
	}
	return op
}

func decodeMemory(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decodeHex(s)
	}
	var words []string
	if err := json.Unmarshal(raw, &words); err != nil {
		return nil, err
	}
	var mem []byte
	for _, w := range words {
		bz, err := decodeHex(w)
		if err != nil {
			return nil, err
		}
		mem = append(mem, bz...)
	}
	return mem, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// parseStackWord decodes one hex stack entry. Providers disagree on
// zero-padding, so both "0x1" and full-width "0x00...01" are accepted.
func parseStackWord(s string) (uint256.Int, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	var w uint256.Int
	if err := w.SetFromHex("0x" + s); err != nil {
		return uint256.Int{}, false
	}
	return w, true
}

// ParseStructLogs normalizes a struct-log stream into trace steps.
// Malformed entries (no recorded stack, or undecodable stack words) are
// dropped rather than failing the whole trace, since completeness varies
// across providers.
func ParseStructLogs(logs []StructLog) []TraceStep {
	steps := make([]TraceStep, 0, len(logs))
outer:
	for _, l := range logs {
		if l.Stack == nil {
			continue
		}
		stack := make([]uint256.Int, len(l.Stack))
		for i, s := range l.Stack {
			w, ok := parseStackWord(s)
			if !ok {
				continue outer
			}
			stack[i] = w
		}
		steps = append(steps, TraceStep{
			Op:     l.Op,
			Depth:  l.Depth,
			Stack:  stack,
			Memory: l.Memory,
		})
	}
	return steps
}

// TraceResult is the response shape of debug_traceCall with the default
// struct logger.
type TraceResult struct {
	Gas         uint64      `json:"gas"`
	Failed      bool        `json:"failed"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}
