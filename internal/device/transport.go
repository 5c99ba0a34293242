package device

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultTCPPort is used when a host is given without a port.
const DefaultTCPPort = "8888"

// serialPrefixes are the device-path spellings that select the USB-serial
// transport. "usb" alone picks the first enumerated port.
var serialPrefixes = []string{"/dev/cu.", "/dev/tty", "COM"}

// IsSerialName reports whether name selects the serial transport.
func IsSerialName(name string) bool {
	if name == "usb" {
		return true
	}
	for _, p := range serialPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func openSerial(name string, baud int) (io.ReadWriteCloser, error) {
	if name == "usb" {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("enumerate serial ports: %w", err)
		}
		name = ""
		for _, p := range ports {
			if IsSerialName(p) {
				name = p
				break
			}
		}
		if name == "" {
			return nil, fmt.Errorf("no USB serial device found")
		}
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return port, nil
}

func openTCP(name string, timeout time.Duration) (io.ReadWriteCloser, error) {
	addr := name
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(name, DefaultTCPPort)
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
