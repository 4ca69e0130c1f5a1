//go:build !linux && !darwin

package ptyio

func New(*Options) (PTY, error) {
	return nil, ErrUnsupported
}
