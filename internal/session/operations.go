package session

import (
	"fmt"
	"sort"

	"github.com/muurk/wsgate/internal/protocol"
)

// Handler processes one inbound message. Handlers run on the tick goroutine,
// may call s.Send and must not block indefinitely.
type Handler func(s *Session, msg protocol.Message)

// Operation binds an opcode to its handler. Name is only used in logs.
type Operation struct {
	Opcode  protocol.Opcode
	Name    string
	Handler Handler
}

// Operations is the opcode registry. It is built once by NewOperations and
// never modified afterwards, so lookups from any goroutine need no locking.
type Operations struct {
	ops map[protocol.Opcode]Operation
}

// NewOperations builds the registry. Duplicate opcodes and nil handlers are
// rejected.
func NewOperations(ops ...Operation) (*Operations, error) {
	table := make(map[protocol.Opcode]Operation, len(ops))
	for _, op := range ops {
		if op.Handler == nil {
			return nil, fmt.Errorf("opcode %s (%s): nil handler", op.Opcode, op.Name)
		}
		if _, exists := table[op.Opcode]; exists {
			return nil, fmt.Errorf("%w: %s (%s)", ErrDuplicateOpcode, op.Opcode, op.Name)
		}
		if op.Name == "" {
			op.Name = op.Opcode.Name()
		}
		table[op.Opcode] = op
	}
	return &Operations{ops: table}, nil
}

// Lookup returns the operation registered for op.
func (o *Operations) Lookup(op protocol.Opcode) (Operation, bool) {
	if o == nil {
		return Operation{}, false
	}
	operation, ok := o.ops[op]
	return operation, ok
}

// Len returns the number of registered operations.
func (o *Operations) Len() int {
	if o == nil {
		return 0
	}
	return len(o.ops)
}

// Opcodes returns the registered opcodes in ascending order.
func (o *Operations) Opcodes() []protocol.Opcode {
	if o == nil {
		return nil
	}
	codes := make([]protocol.Opcode, 0, len(o.ops))
	for code := range o.ops {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
