package oauth2

import "fmt"

// Fault is an internal invariant violation: a deployment or programming bug
// such as an unregistered rule key or a missing dependency. Faults are raised
// by panic, never returned as error values, and must not be caught by
// protocol-level handlers. The transport boundary recovers them into a
// 500-class server_error response.
type Fault struct {
	Reason string
}

func (f Fault) Error() string {
	return "fault: " + f.Reason
}

// Faultf panics with a Fault.
func Faultf(format string, args ...any) {
	panic(Fault{Reason: fmt.Sprintf(format, args...)})
}
