package check

import "fmt"

// Failure is the panic value of a failed assertion.
type Failure struct {
	Msg string
}

func (f *Failure) Error() string { return "assertion failed: " + f.Msg }

// Assert panics with msg when cond is false and assertions are enabled.
func Assert(cond bool, msg string) {
	if Enabled && !cond {
		panic(&Failure{Msg: msg})
	}
}

// Assertf is Assert with a formatted message. The arguments are only
// formatted on failure.
func Assertf(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(&Failure{Msg: fmt.Sprintf(format, args...)})
	}
}
