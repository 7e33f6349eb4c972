// Package version reports the application and firmware versions.
package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	AppVersion  = "1"
	AppRevision = "0"
	BuildCommit = "dev"
)

// AppFirmwareID identifies the application image.
const AppFirmwareID uint16 = 0x0001

// hostFirmwareID identifies the second firmware target.
const hostFirmwareID uint16 = 0x1234

// FirmwareTargets is the number of firmware targets whose version is reported.
const FirmwareTargets = 1

// FirmwareID returns the id of firmware target n. Target 0 is the
// application image; unknown targets report 0.
func FirmwareID(n int) uint16 {
	switch n {
	case 0:
		return AppFirmwareID
	case 1:
		return hostFirmwareID
	default:
		return 0
	}
}

// Firmware is the version of one firmware target.
type Firmware struct {
	Target   int    `json:"target"`
	ID       uint16 `json:"id"`
	Version  string `json:"version"`
	Revision string `json:"revision"`
}

// FirmwareVersion returns the version of target n. Targets other than the
// application report "0".
func FirmwareVersion(n int) Firmware {
	fw := Firmware{Target: n, ID: FirmwareID(n), Version: "0", Revision: "0"}
	if n == 0 {
		fw.Version = AppVersion
		fw.Revision = AppRevision
	}
	return fw
}

// Info is the full version report.
type Info struct {
	Version   string     `json:"version"`
	Commit    string     `json:"commit"`
	Firmwares []Firmware `json:"firmwares"`
}

// Get returns the version report.
func Get() Info {
	info := Info{
		Version: String(),
		Commit:  BuildCommit,
	}
	for n := 0; n < FirmwareTargets; n++ {
		info.Firmwares = append(info.Firmwares, FirmwareVersion(n))
	}
	return info
}

// String returns "version.revision".
func String() string {
	return fmt.Sprintf("%s.%s", AppVersion, AppRevision)
}
