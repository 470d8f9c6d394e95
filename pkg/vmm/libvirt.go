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

package vmm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"libvirt.org/go/libvirt"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

const DefaultLibvirtURI = "xen:///system"

var errConnectLibvirt = errors.New("failed to connect to libvirt")

// Libvirt manages guests through a libvirt connection.
type Libvirt struct {
	conn *libvirt.Connect
}

func NewLibvirt(uri string) (*Libvirt, error) {
	if uri == "" {
		uri = DefaultLibvirtURI
	}

	conn, err := libvirt.NewConnect(uri)
	if err != nil {
		return nil, errors.Join(err, fmt.Errorf("uri=%s", uri), errConnectLibvirt)
	}
	return &Libvirt{conn: conn}, nil
}

// CreatePaused implements VMM. The domain is transient: it disappears from
// listings once destroyed.
func (l *Libvirt) CreatePaused(ctx context.Context, cfg guest.Config) error {
	doc, err := generateDomainXML(cfg)
	if err != nil {
		return errors.Join(err, errCreateGuest)
	}

	logr.FromContextOrDiscard(ctx).V(2).Info("creating domain", "name", cfg.Name, "xml", doc)

	dom, err := l.conn.DomainCreateXML(doc, libvirt.DOMAIN_START_PAUSED)
	if err != nil {
		return errors.Join(err, fmt.Errorf("name=%s", cfg.Name), errCreateGuest)
	}
	return dom.Free()
}

// List implements VMM. Inactive domains have no id and are skipped.
func (l *Libvirt) List(ctx context.Context) ([]guest.Snapshot, error) {
	doms, err := l.conn.ListAllDomains(libvirt.CONNECT_LIST_DOMAINS_ACTIVE)
	if err != nil {
		return nil, errors.Join(err, errListGuests)
	}

	out := make([]guest.Snapshot, 0, len(doms))
	for i := range doms {
		s, err := snapshotDomain(&doms[i])
		_ = doms[i].Free()
		if err != nil {
			logr.FromContextOrDiscard(ctx).V(1).Info("skipping domain", "err", err.Error())
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Unpause implements VMM.
func (l *Libvirt) Unpause(_ context.Context, id int) error {
	dom, err := l.lookup(id)
	if err != nil {
		return errors.Join(err, errUnpauseGuest)
	}
	defer dom.Free()

	if err := dom.Resume(); err != nil {
		return errors.Join(err, fmt.Errorf("id=%d", id), errUnpauseGuest)
	}
	return nil
}

// Destroy implements VMM.
func (l *Libvirt) Destroy(_ context.Context, id int) error {
	dom, err := l.lookup(id)
	if err != nil {
		return errors.Join(err, errDestroyGuest)
	}
	defer dom.Free()

	if err := dom.Destroy(); err != nil {
		return errors.Join(err, fmt.Errorf("id=%d", id), errDestroyGuest)
	}
	return nil
}

// Console implements VMM.
func (l *Libvirt) Console(_ context.Context, id int) (Console, error) {
	dom, err := l.lookup(id)
	if err != nil {
		return nil, errors.Join(err, errOpenConsole)
	}
	defer dom.Free()

	stream, err := l.conn.NewStream(0)
	if err != nil {
		return nil, errors.Join(err, fmt.Errorf("id=%d", id), errOpenConsole)
	}

	if err := dom.OpenConsole("", stream, libvirt.DOMAIN_CONSOLE_FORCE); err != nil {
		_ = stream.Free()
		return nil, errors.Join(err, fmt.Errorf("id=%d", id), errOpenConsole)
	}
	return &streamConsole{stream: stream}, nil
}

// Close implements VMM.
func (l *Libvirt) Close() error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.Close()
	return err
}

func (l *Libvirt) lookup(id int) (*libvirt.Domain, error) {
	dom, err := l.conn.LookupDomainById(uint32(id))
	if err != nil {
		var lerr libvirt.Error
		if errors.As(err, &lerr) && lerr.Code == libvirt.ERR_NO_DOMAIN {
			return nil, errors.Join(err, fmt.Errorf("id=%d", id), ErrGuestNotFound)
		}
		return nil, errors.Join(err, fmt.Errorf("id=%d", id))
	}
	return dom, nil
}

func snapshotDomain(dom *libvirt.Domain) (guest.Snapshot, error) {
	name, err := dom.GetName()
	if err != nil {
		return guest.Snapshot{}, err
	}

	id, err := dom.GetID()
	if err != nil {
		return guest.Snapshot{}, errors.Join(err, fmt.Errorf("name=%s", name))
	}

	info, err := dom.GetInfo()
	if err != nil {
		return guest.Snapshot{}, errors.Join(err, fmt.Errorf("name=%s", name))
	}

	raw := rawState(info.State)
	state, err := guest.Decode(raw)
	if err != nil {
		return guest.Snapshot{}, err
	}

	return guest.Snapshot{
		Name:     name,
		ID:       int(id),
		MemoryMB: int(info.Memory / 1024),
		VCPUs:    int(info.NrVirtCpu),
		RawState: raw,
		State:    state,
		Time:     float64(info.CpuTime) / 1e9,
	}, nil
}

// rawState maps a libvirt domain state onto the six-letter state string used
// by the xl listing, so that both backends decode through guest.Decode.
func rawState(s libvirt.DomainState) string {
	switch s {
	case libvirt.DOMAIN_RUNNING:
		return guest.Encode(guest.StateRunning)
	case libvirt.DOMAIN_BLOCKED:
		return guest.Encode(guest.StateBlocked)
	case libvirt.DOMAIN_PAUSED, libvirt.DOMAIN_PMSUSPENDED:
		return guest.Encode(guest.StatePaused)
	case libvirt.DOMAIN_SHUTDOWN, libvirt.DOMAIN_SHUTOFF:
		return guest.Encode(guest.StateShutdown)
	case libvirt.DOMAIN_CRASHED:
		return guest.Encode(guest.StateCrashed)
	default:
		return guest.Encode(guest.StateUnknown)
	}
}

// streamConsole adapts a libvirt stream to Console.
type streamConsole struct {
	stream *libvirt.Stream

	once     sync.Once
	closeErr error
}

func (c *streamConsole) Read(p []byte) (int, error) {
	n, err := c.stream.Recv(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *streamConsole) Write(p []byte) (int, error) {
	return c.stream.Send(p)
}

func (c *streamConsole) Close() error {
	c.once.Do(func() {
		c.closeErr = errors.Join(c.stream.Abort(), c.stream.Free())
	})
	return c.closeErr
}
