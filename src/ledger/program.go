package ledger

// DefaultProgram is the identifier of the built-in system program. Fresh
// pages belong to it until assigned away.
var DefaultProgram = []byte{}

// IsDefaultProgram reports whether a program identifier designates the
// built-in system program. The empty identifier and the all-zero identifier
// are both accepted because callers that pad keys to a fixed width send
// zeros where we send nothing.
func IsDefaultProgram(program []byte) bool {
	for _, b := range program {
		if b != 0 {
			return false
		}
	}
	return true
}

// SameProgram reports whether two program identifiers designate the same
// program, treating all spellings of the default program as equal.
func SameProgram(a, b []byte) bool {
	if IsDefaultProgram(a) {
		return IsDefaultProgram(b)
	}
	if IsDefaultProgram(b) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
