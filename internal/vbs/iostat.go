package vbs

import (
	"strings"

	"github.com/lufia/iostat"
)

// DiskRate is one mountpoint's most recently sampled read/write byte
// counters. It is not part of the status endpoint's payload.
type DiskRate struct {
	Mountpoint  string
	BytesRead   uint64
	BytesWrite  uint64
}

// SampleDiskRates reports the current read/write counters for every
// device backing fs's mountpoints. It is a point-in-time sample; callers
// wanting a rate take two samples and divide by the elapsed interval.
func (fs *Filesystem) SampleDiskRates() ([]DiskRate, error) {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		return nil, err
	}

	rates := make([]DiskRate, 0, len(fs.mountpoints))
	for _, mp := range fs.mountpoints {
		for _, d := range drives {
			if !strings.Contains(mp, d.Name) {
				continue
			}
			rates = append(rates, DiskRate{
				Mountpoint: mp,
				BytesRead:  uint64(d.BytesRead),
				BytesWrite: uint64(d.BytesWrite),
			})
			break
		}
	}
	return rates, nil
}
