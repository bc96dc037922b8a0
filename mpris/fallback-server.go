//go:build !linux

package mpris

import (
	vgmplay "github.com/devgianlu/go-vgmplay"
)

// NewServer creates a no-op mpris server to replace the equivalently named method in builds outside linux
func NewServer(log vgmplay.Logger) (_ *DummyServer, err error) {
	log.Warn("mpris was set to enabled although it is not included in this build")

	return &DummyServer{}, nil
}
