package xpldevice

import "github.com/xplgo/gxpl/pkg/xplio"

// localIPText renders this device's UDP local address as a dotted
// quad for the heartbeat's remote-ip pair.
func (d *Device) localIPText() string {
	resp, err := d.app.Transport().Ctl(xplio.CtlRequest{Kind: xplio.CtlLocalAddr})
	if err != nil {
		return ""
	}
	ua, ok := resp.Addr.(xplio.UDPAddress)
	if !ok {
		return ""
	}
	return ua.IP.String()
}

// localAddrText renders this device's non-UDP local address (ZigBee)
// as hex bytes for the hbeat.basic remote-addr extension.
func (d *Device) localAddrText() string {
	resp, err := d.app.Transport().Ctl(xplio.CtlRequest{Kind: xplio.CtlLocalAddr})
	if err != nil || resp.Addr == nil {
		return ""
	}
	return resp.Addr.String()
}
