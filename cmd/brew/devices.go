package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/born-ml/brew/internal/backend"
	"github.com/born-ml/brew/internal/backend/emu"
	"github.com/born-ml/brew/internal/backend/webgpu"
	"github.com/dustin/go-humanize"
	"github.com/evilsocket/islazy/tui"
	"github.com/pbnjay/memory"
)

func listDevices(w io.Writer) error {
	host := humanize.Bytes(memory.TotalMemory())
	rows := [][]string{
		{"cpu", fmt.Sprintf("%s/%s, %d threads", runtime.GOOS, runtime.GOARCH, runtime.NumCPU()), host, "yes"},
		{"emu", "software accelerator", host, "yes"},
	}

	adapters, err := webgpu.Adapters()
	if err != nil {
		rows = append(rows, []string{"webgpu", err.Error(), "-", "no"})
	}
	for _, a := range adapters {
		rows = append(rows, []string{"webgpu", a, "-", "yes"})
	}

	tui.Table(w, []string{"device", "description", "memory", "available"}, rows)
	return nil
}

// openDevice returns the accelerator named by --device and a release func.
func openDevice(name string) (backend.Device, func(), error) {
	switch name {
	case "emu":
		return emu.New(), func() {}, nil
	case "webgpu":
		dev, err := webgpu.Open()
		if err != nil {
			return nil, nil, err
		}
		release := func() {}
		if r, ok := dev.(interface{ Release() }); ok {
			release = r.Release
		}
		return dev, release, nil
	default:
		return nil, nil, fmt.Errorf("unknown device %q", name)
	}
}
