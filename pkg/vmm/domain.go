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
	"errors"
	"fmt"

	"k8s.io/utils/ptr"
	"libvirt.org/go/libvirtxml"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

var errMarshalDomainXML = errors.New("failed to marshal domain XML")

// generateDomainXML renders cfg as a paravirtualized xen domain booting the
// unikernel image directly, with its console on a pty.
func generateDomainXML(cfg guest.Config) (string, error) {
	memory := cfg.MemoryMB
	if memory <= 0 {
		memory = guest.DefaultMemoryMB
	}

	domain := &libvirtxml.Domain{
		Type: "xen",
		Name: cfg.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(memory),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Value: 1,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Type: "xen",
			},
			Kernel: cfg.Kernel,
		},
		OnPoweroff: "destroy",
		OnReboot:   "destroy",
		OnCrash:    cfg.CrashPolicy(),
		Devices: &libvirtxml.DomainDeviceList{
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "xen",
						Port: ptr.To[uint](0),
					},
				},
			},
		},
	}

	doc, err := domain.Marshal()
	if err != nil {
		return "", errors.Join(err, fmt.Errorf("name=%s", cfg.Name), errMarshalDomainXML)
	}
	return doc, nil
}
