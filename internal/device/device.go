package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/picolume/lightscript/internal/script"
)

// Options tune how the link is opened.
type Options struct {
	SerialBaud  int           // 0 = 115200
	DialTimeout time.Duration // 0 = 5s
}

// Device is an open controller link. All requests are synchronous
// request/reply exchanges; a mutex serializes callers.
type Device struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	name string
}

// Open interprets name and connects: serial-device paths (or "usb") open
// USB-serial, anything else is dialed as host[:port] over TCP.
func Open(name string, opts Options) (*Device, error) {
	baud := opts.SerialBaud
	if baud <= 0 {
		baud = 115200
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if IsSerialName(name) {
		conn, err = openSerial(name, baud)
	} else {
		conn, err = openTCP(name, timeout)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("device: connected to %s", name)
	return &Device{conn: conn, name: name}, nil
}

// NewWithConn wraps an already-open duplex link. Used by tests and by
// embedders with their own transport.
func NewWithConn(name string, conn io.ReadWriteCloser) *Device {
	return &Device{conn: conn, name: name}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	log.Printf("device: closed %s", d.name)
	return err
}

// roundTrip sends one request frame and reads the reply frame.
func (d *Device) roundTrip(reqType uint16, tlvs []TLV, rpyType uint16) ([]TLV, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, fmt.Errorf("device not open")
	}
	req := Packet{Type: reqType, Payload: MarshalTLVs(tlvs)}
	if _, err := d.conn.Write(req.Marshal()); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	rpy, err := readPacket(d.conn)
	if err != nil {
		return nil, err
	}
	if rpy.Type != rpyType {
		return nil, fmt.Errorf("unexpected reply type 0x%04x, want 0x%04x", rpy.Type, rpyType)
	}
	rtlvs, err := UnmarshalTLVs(rpy.Payload)
	if err != nil {
		return nil, err
	}
	if e := FindTLV(rtlvs, TagErrorMessage); e != nil && len(e.Value) > 0 {
		return nil, fmt.Errorf("device error: %s", e.Value)
	}
	return rtlvs, nil
}

func readPacket(r io.Reader) (*Packet, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length > MaxPacketSize {
		return nil, fmt.Errorf("payload too large: %d", length)
	}
	rest := make([]byte, length+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return Unmarshal(append(header[:], rest...))
}

// FireCmd carries one schedule event to the controller.
type FireCmd struct {
	Animation  int
	Mask       script.StripMask
	Palette    int
	Speed      int
	Brightness int
	Direction  int
	Option     int
}

// Fire dispatches one animation event.
func (d *Device) Fire(cmd FireCmd) error {
	mask := make([]byte, len(cmd.Mask)*4)
	for i, w := range cmd.Mask {
		binary.BigEndian.PutUint32(mask[i*4:], w)
	}
	tlvs := []TLV{
		u32TLV(TagAnimation, uint32(cmd.Animation)),
		{Tag: TagStripMask, Value: mask},
		u32TLV(TagPalette, uint32(cmd.Palette)),
		u32TLV(TagSpeed, uint32(cmd.Speed)),
		u32TLV(TagBrightness, uint32(cmd.Brightness)),
		u32TLV(TagDirection, uint32(cmd.Direction)),
		u32TLV(TagOption, uint32(cmd.Option)),
	}
	_, err := d.roundTrip(TypeFireReq, tlvs, TypeFireRpy)
	return err
}

// AllOff blanks every strip.
func (d *Device) AllOff() error {
	_, err := d.roundTrip(TypeOffReq, nil, TypeOffRpy)
	return err
}

// UploadConfig pushes the channel map and substrip definitions derived from
// the strip tables. The blob is brotli-compressed inside the frame; the
// substrip words inside it are the parser's encoding, byte for byte.
func (d *Device) UploadConfig(scr *script.Script) error {
	blob := configBlob(scr)
	var cbuf bytes.Buffer
	bw := brotli.NewWriter(&cbuf)
	if _, err := bw.Write(blob); err != nil {
		return fmt.Errorf("compress config: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("compress config: %w", err)
	}
	tlvs := []TLV{
		u32TLV(TagRawLength, uint32(len(blob))),
		{Tag: TagConfigBlob, Value: cbuf.Bytes()},
	}
	_, err := d.roundTrip(TypeConfigReq, tlvs, TypeConfigRpy)
	if err != nil {
		return err
	}
	log.Printf("device: uploaded config: %d pstrips, %d vstrips (%d -> %d bytes)",
		len(scr.PStrips), len(scr.VStrips), len(blob), cbuf.Len())
	return nil
}

// configBlob lays out the strip tables for the controller:
//
//	uint16 pstrip count
//	per pstrip: uint16 channel, uint16 type, uint16 start, uint16 length
//	uint16 vstrip count
//	per vstrip: uint16 substrip count,
//	            per substrip: uint16 pstrip index, uint32 substrip word
func configBlob(scr *script.Script) []byte {
	var buf bytes.Buffer
	put16 := func(v int) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	}
	put32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	pindex := make(map[string]int, len(scr.PStrips))
	put16(len(scr.PStrips))
	for i, ps := range scr.PStrips {
		pindex[ps.Name] = i
		put16(ps.Channel)
		put16(ps.Type)
		put16(ps.Start)
		put16(ps.Length)
	}
	put16(len(scr.VStrips))
	for _, vs := range scr.VStrips {
		put16(len(vs.Substrips))
		for _, sub := range vs.Substrips {
			put16(pindex[sub.PStrip])
			put32(sub.Field)
		}
	}
	return buf.Bytes()
}

// CheckVersion queries controller firmware.
func (d *Device) CheckVersion() (string, error) {
	tlvs, err := d.roundTrip(TypeVersionReq, nil, TypeVersionRpy)
	if err != nil {
		return "", err
	}
	v := FindTLV(tlvs, TagVersion)
	if v == nil {
		return "", fmt.Errorf("version reply missing version")
	}
	return string(v.Value), nil
}

// ResetToDFU reboots the controller into its firmware loader. The link is
// unusable afterwards.
func (d *Device) ResetToDFU() error {
	_, err := d.roundTrip(TypeDFUReq, nil, TypeDFURpy)
	return err
}

// EnvSet writes one controller environment variable.
func (d *Device) EnvSet(name, value string) error {
	tlvs := []TLV{
		{Tag: TagEnvName, Value: []byte(name)},
		{Tag: TagEnvValue, Value: []byte(value)},
	}
	_, err := d.roundTrip(TypeEnvSetReq, tlvs, TypeEnvSetRpy)
	return err
}

// EnvGet reads one controller environment variable.
func (d *Device) EnvGet(name string) (string, error) {
	tlvs, err := d.roundTrip(TypeEnvGetReq, []TLV{{Tag: TagEnvName, Value: []byte(name)}}, TypeEnvGetRpy)
	if err != nil {
		return "", err
	}
	v := FindTLV(tlvs, TagEnvValue)
	if v == nil {
		return "", fmt.Errorf("env get reply missing value")
	}
	return string(v.Value), nil
}

// EnvList returns all controller environment variables as name TLV/value TLV
// pairs flattened to "name=value" lines.
func (d *Device) EnvList() ([]string, error) {
	tlvs, err := d.roundTrip(TypeEnvListReq, nil, TypeEnvListRpy)
	if err != nil {
		return nil, err
	}
	var out []string
	var name string
	for _, t := range tlvs {
		switch t.Tag {
		case TagEnvName:
			name = string(t.Value)
		case TagEnvValue:
			out = append(out, name+"="+string(t.Value))
		}
	}
	return out, nil
}

// EnvEraseAll clears the controller environment.
func (d *Device) EnvEraseAll() error {
	_, err := d.roundTrip(TypeEnvEraseReq, nil, TypeEnvEraseRpy)
	return err
}
