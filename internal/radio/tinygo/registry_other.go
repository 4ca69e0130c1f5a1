//go:build !linux

package tinyble

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/radio"
)

// Registry is unavailable off Linux; NewRegistry always fails.
type Registry struct{}

func NewRegistry(_ *logrus.Logger) (*Registry, error) {
	return nil, radio.ErrUnsupported
}

func (r *Registry) SetServices(radio.Service) error    { return radio.ErrUnsupported }
func (r *Registry) UpdateServices(radio.Service) error { return radio.ErrUnsupported }
func (r *Registry) Advertise(context.Context, radio.Advertisement) error {
	return radio.ErrUnsupported
}
func (r *Registry) Close() error { return nil }
