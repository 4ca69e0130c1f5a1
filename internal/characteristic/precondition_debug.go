//go:build debug

package characteristic

// debug builds fail loudly on precondition violations
const strictPreconditions = true
