package logical

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// A Plan is the flat SSA form of a value tree. Instructions are ordered so
// that every operand is defined before its first use, and a value shared by
// multiple consumers appears exactly once.
type Plan struct {
	Instructions []Instruction
}

// String returns the disassembled SSA form of the plan.
func (p *Plan) String() string {
	var sb strings.Builder
	for _, inst := range p.Instructions {
		if val, ok := inst.(Value); ok {
			fmt.Fprintf(&sb, "%s = %s\n", val.Name(), inst.String())
		} else {
			fmt.Fprintf(&sb, "%s\n", inst.String())
		}
	}
	return sb.String()
}

// Fingerprint returns a stable hash of the plan. Two plans with the same
// instructions in the same order have the same fingerprint.
func (p *Plan) Fingerprint() uint64 {
	return xxhash.Sum64String(p.String())
}

// valueInstruction is an instruction that also yields a value and is
// assigned a numbered identifier when a plan is built.
type valueInstruction interface {
	Value
	Instruction
	setID(id string)
}

const (
	stateVisiting = iota + 1
	stateDone
)

// convertToPlan flattens the value tree rooted at root into a [Plan] by
// walking operands in post order. Values reachable through more than one
// consumer are emitted once.
func convertToPlan(root Value) (*Plan, error) {
	if root == nil {
		return nil, errors.New("plan has no value")
	}

	var (
		plan  Plan
		state = make(map[Value]int)
	)

	var walk func(v Value) error
	walk = func(v Value) error {
		if v == nil {
			return errors.New("plan references a nil value")
		}

		switch state[v] {
		case stateVisiting:
			return fmt.Errorf("plan contains a cycle through %s", v.Name())
		case stateDone:
			return nil
		}
		state[v] = stateVisiting

		for _, operand := range operands(v) {
			if err := walk(operand); err != nil {
				return err
			}
		}
		state[v] = stateDone

		if inst, ok := v.(valueInstruction); ok {
			inst.setID(fmt.Sprintf("%%%d", len(plan.Instructions)+1))
			plan.Instructions = append(plan.Instructions, inst)
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}

	plan.Instructions = append(plan.Instructions, &Return{Value: root})
	return &plan, nil
}

// operands returns the values the given value depends on.
func operands(v Value) []Value {
	switch v := v.(type) {
	case *UnaryOp:
		return []Value{v.Value}
	case *BinOp:
		return []Value{v.Left, v.Right}
	case *FuncCall:
		return v.Args
	case *Select:
		return []Value{v.Table, v.Predicate}
	case *Project:
		return []Value{v.Table}
	case *Apply:
		return []Value{v.Table, v.Call}
	case *Join:
		if v.On != nil {
			return []Value{v.Left, v.Right, v.On}
		}
		return []Value{v.Left, v.Right}
	case *Unnest:
		return []Value{v.Table}
	case *Limit:
		return []Value{v.Table}
	}
	return nil
}
