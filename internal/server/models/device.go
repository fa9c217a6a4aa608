package models

import "github.com/dmitrijs2005/pxauth/internal/netx"

const (
	UnknownDevice      = "Unknown"
	maxDeviceStringLen = 255
)

// DeviceInfo describes the client a request came from.
type DeviceInfo struct {
	DeviceString string
	IPAddress    *string
}

// NewDeviceInfo normalises raw request material: the device string is
// trimmed and capped, the address loses any port and IPv6 brackets.
func NewDeviceInfo(deviceString, address string) DeviceInfo {
	d := DeviceInfo{DeviceString: netx.CleanDeviceString(deviceString, maxDeviceStringLen)}
	if d.DeviceString == "" {
		d.DeviceString = UnknownDevice
	}
	if ip := netx.NormalizeIP(address); ip != "" {
		d.IPAddress = &ip
	}
	return d
}
