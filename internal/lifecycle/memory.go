package lifecycle

import "github.com/prometheus/procfs"

// memoryProbe reports available system memory in MB. Injectable for
// tests and for hosts without procfs.
type memoryProbe interface {
	availableMB() (int, bool)
}

type procfsMemory struct{}

func (procfsMemory) availableMB() (int, bool) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, false
	}
	info, err := fs.Meminfo()
	if err != nil || info.MemAvailable == nil {
		return 0, false
	}
	return int(*info.MemAvailable / 1024), true
}
