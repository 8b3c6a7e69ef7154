//go:build !linux

// Package afpacket adapts kernel AF_PACKET sockets to the port
// capability interface. Only available on linux.
package afpacket

import (
	"errors"

	"github.com/mazdakn/ufwd/pkg/packet"
	"github.com/mazdakn/ufwd/pkg/port"
)

type Driver struct{}

func NewDriver(interfaces []string) *Driver {
	return &Driver{}
}

func (d *Driver) InitPort(id uint16, rxQueues, txQueues int, pool packet.Pool) (port.Device, error) {
	return nil, &port.DeviceError{Port: id, Op: "init", Err: errors.New("afpacket driver requires linux")}
}
