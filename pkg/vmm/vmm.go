/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package vmm is the boundary to the hypervisor's guest-management surface.
package vmm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

var (
	// ErrGuestNotFound is returned when an operation targets an id the
	// hypervisor does not know.
	ErrGuestNotFound = errors.New("guest not found")
	// ErrUnknownBackend is returned by New for an unsupported hypervisor.
	ErrUnknownBackend = errors.New("unknown hypervisor backend")

	errCreateGuest   = errors.New("failed to create guest")
	errListGuests    = errors.New("failed to list guests")
	errUnpauseGuest  = errors.New("failed to unpause guest")
	errOpenConsole   = errors.New("failed to open console")
	errDestroyGuest  = errors.New("failed to destroy guest")
	errWriteGuestCfg = errors.New("failed to write guest configuration")
)

// Console is a long-lived bidirectional stream attached to a guest's console.
// Reads return io.EOF once the stream ends.
type Console interface {
	io.Reader
	io.Writer
	Close() error
}

// VMM manages guests on a hypervisor.
type VMM interface {
	// CreatePaused creates the guest described by cfg without starting it.
	CreatePaused(ctx context.Context, cfg guest.Config) error
	// List returns every guest currently known to the hypervisor.
	List(ctx context.Context) ([]guest.Snapshot, error)
	Unpause(ctx context.Context, id int) error
	Console(ctx context.Context, id int) (Console, error)
	Destroy(ctx context.Context, id int) error
	Close() error
}

// Backend names a VMM implementation.
type Backend string

const (
	BackendXL      Backend = "xl"
	BackendLibvirt Backend = "libvirt"
)

// Options selects and configures a backend.
type Options struct {
	Backend Backend
	// XL backend.
	XL []XLOption
	// Libvirt backend.
	LibvirtURI string
}

// New returns the VMM for opts.Backend.
func New(opts Options) (VMM, error) {
	switch opts.Backend {
	case BackendXL, "":
		return NewXL(opts.XL...), nil
	case BackendLibvirt:
		return NewLibvirt(opts.LibvirtURI)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
