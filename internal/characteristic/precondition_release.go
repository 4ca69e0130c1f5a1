//go:build !debug

package characteristic

const strictPreconditions = false
