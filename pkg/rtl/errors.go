package rtl

import (
	"errors"
	"fmt"
)

var (
	// ErrInternal wraps every internal invariant violation reported by a pass.
	ErrInternal = errors.New("internal error")
	// ErrTooManyArgs is returned when a function or call exceeds MaxArgs.
	ErrTooManyArgs = errors.New("too many arguments")
)

// MaxArgs is the largest number of parameters or call arguments accepted.
const MaxArgs = 253

// InternalError describes a broken invariant: an incomplete rule table, a
// malformed instruction, an impossible allocation. Passes panic with it and
// the driver recovers it.
type InternalError struct {
	Pass  string
	Msg   string
	Instr *Instr
}

func (e *InternalError) Error() string {
	if e.Instr != nil {
		return fmt.Sprintf("%s: %s: %s", e.Pass, e.Msg, FormatInstr(e.Instr))
	}
	return fmt.Sprintf("%s: %s", e.Pass, e.Msg)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

// Panicf aborts the current pass with an InternalError.
func Panicf(pass string, in *Instr, format string, args ...any) {
	var snapshot *Instr
	if in != nil {
		c := *in
		snapshot = &c
	}
	panic(&InternalError{Pass: pass, Msg: fmt.Sprintf(format, args...), Instr: snapshot})
}

// Recover turns an InternalError panic into *err. It must be deferred
// directly. Other panics propagate.
func Recover(err *error) {
	if r := recover(); r != nil {
		ie, ok := r.(*InternalError)
		if !ok {
			panic(r)
		}
		*err = ie
	}
}
