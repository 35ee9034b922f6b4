package logical

import (
	"fmt"
	"strings"
)

// The FuncCall instruction yields the result of invoking the named function
// with the given arguments, one row at a time. The function is resolved
// against a registry during physical planning.
//
// FuncCall implements both [Instruction] and [Value].
type FuncCall struct {
	id string

	// Function is the registered name of the function to invoke.
	Function string
	// Args are the arguments passed to each invocation.
	Args []Value
}

var (
	_ Value       = (*FuncCall)(nil)
	_ Instruction = (*FuncCall)(nil)
)

// Name returns an identifier for the FuncCall operation.
func (f *FuncCall) Name() string {
	if f.id != "" {
		return f.id
	}
	return fmt.Sprintf("<%p>", f)
}

// String returns the disassembled SSA form of the FuncCall instruction.
func (f *FuncCall) String() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = arg.Name()
	}
	return fmt.Sprintf("CALL %s [args=(%s)]", f.Function, strings.Join(args, ", "))
}

func (f *FuncCall) setID(id string) { f.id = id }

func (f *FuncCall) isValue()       {}
func (f *FuncCall) isInstruction() {}
