package device

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/picolume/lightscript/internal/script"
)

// fakeController answers every request on conn with a canned reply, and
// records received packets.
type fakeController struct {
	conn net.Conn
	got  chan *Packet
}

func startFakeController(t *testing.T) (*Device, *fakeController) {
	t.Helper()
	client, server := net.Pipe()
	fc := &fakeController{conn: server, got: make(chan *Packet, 64)}
	go fc.serve()
	t.Cleanup(func() { client.Close(); server.Close() })
	return NewWithConn("fake", client), fc
}

func (fc *fakeController) serve() {
	for {
		req, err := readPacket(fc.conn)
		if err != nil {
			return
		}
		fc.got <- req
		var tlvs []TLV
		switch req.Type {
		case TypeVersionReq:
			tlvs = []TLV{{Tag: TagVersion, Value: []byte("picolume 2.1")}}
		case TypeEnvGetReq:
			tlvs = []TLV{{Tag: TagEnvValue, Value: []byte("42")}}
		case TypeEnvListReq:
			tlvs = []TLV{
				{Tag: TagEnvName, Value: []byte("bright")},
				{Tag: TagEnvValue, Value: []byte("200")},
				{Tag: TagEnvName, Value: []byte("mode")},
				{Tag: TagEnvValue, Value: []byte("demo")},
			}
		}
		rpy := Packet{Type: req.Type + 1, Payload: MarshalTLVs(tlvs)}
		if _, err := fc.conn.Write(rpy.Marshal()); err != nil {
			return
		}
	}
}

func TestFireCarriesAllFields(t *testing.T) {
	dev, fc := startFakeController(t)
	var mask script.StripMask
	mask.Set(0)
	mask.Set(40)
	err := dev.Fire(FireCmd{
		Animation: 3, Mask: mask, Palette: 7, Speed: 5,
		Brightness: 200, Direction: 1, Option: 9,
	})
	if err != nil {
		t.Fatal(err)
	}
	req := <-fc.got
	if req.Type != TypeFireReq {
		t.Fatalf("type: 0x%04x", req.Type)
	}
	tlvs, err := UnmarshalTLVs(req.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if v := FindTLV(tlvs, TagAnimation); v == nil || binary.BigEndian.Uint32(v.Value) != 3 {
		t.Errorf("animation TLV: %+v", v)
	}
	m := FindTLV(tlvs, TagStripMask)
	if m == nil || len(m.Value) != len(mask)*4 {
		t.Fatalf("mask TLV: %+v", m)
	}
	if binary.BigEndian.Uint32(m.Value[0:4]) != mask[0] || binary.BigEndian.Uint32(m.Value[4:8]) != mask[1] {
		t.Errorf("mask words: % x", m.Value)
	}
	if v := FindTLV(tlvs, TagBrightness); v == nil || binary.BigEndian.Uint32(v.Value) != 200 {
		t.Errorf("brightness TLV: %+v", v)
	}
}

func TestCheckVersion(t *testing.T) {
	dev, _ := startFakeController(t)
	v, err := dev.CheckVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != "picolume 2.1" {
		t.Errorf("version: %q", v)
	}
}

func TestEnvOps(t *testing.T) {
	dev, fc := startFakeController(t)
	if err := dev.EnvSet("bright", "200"); err != nil {
		t.Fatal(err)
	}
	<-fc.got
	v, err := dev.EnvGet("bright")
	if err != nil || v != "42" {
		t.Fatalf("get: %q %v", v, err)
	}
	<-fc.got
	list, err := dev.EnvList()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0] != "bright=200" || list[1] != "mode=demo" {
		t.Errorf("list: %v", list)
	}
	<-fc.got
	if err := dev.EnvEraseAll(); err != nil {
		t.Fatal(err)
	}
}

func TestUploadConfigBlobRoundTrips(t *testing.T) {
	scr := script.New()
	scr.PStrips = []script.PStrip{{Name: "p1", Channel: 2, Type: 1, Start: 0, Length: 100}}
	f1, _ := script.EncodeSubstrip(0, 50, false)
	f2, _ := script.EncodeSubstrip(50, 50, true)
	scr.VStrips = []script.VStrip{{Name: "v1", Substrips: []script.Substrip{
		{PStrip: "p1", Field: f1},
		{PStrip: "p1", Field: f2},
	}}}

	dev, fc := startFakeController(t)
	if err := dev.UploadConfig(scr); err != nil {
		t.Fatal(err)
	}
	req := <-fc.got
	tlvs, err := UnmarshalTLVs(req.Payload)
	if err != nil {
		t.Fatal(err)
	}
	blobTLV := FindTLV(tlvs, TagConfigBlob)
	rawLen := FindTLV(tlvs, TagRawLength)
	if blobTLV == nil || rawLen == nil {
		t.Fatal("missing config TLVs")
	}
	blob, err := io.ReadAll(brotli.NewReader(bytes.NewReader(blobTLV.Value)))
	if err != nil {
		t.Fatal(err)
	}
	if int(binary.BigEndian.Uint32(rawLen.Value)) != len(blob) {
		t.Errorf("raw length: %d vs %d", binary.BigEndian.Uint32(rawLen.Value), len(blob))
	}
	// Substrip words must arrive byte for byte as encoded.
	// Layout: pstrip count (2) + pstrip (8) + vstrip count (2) + sub count (2) + 2*(index 2 + word 4).
	if len(blob) != 2+8+2+2+12 {
		t.Fatalf("blob size: %d", len(blob))
	}
	w1 := binary.BigEndian.Uint32(blob[16:20])
	w2 := binary.BigEndian.Uint32(blob[22:26])
	if w1 != f1 || w2 != f2 {
		t.Errorf("substrip words: %#x %#x want %#x %#x", w1, w2, f1, f2)
	}
}

func TestIsSerialName(t *testing.T) {
	for _, name := range []string{"/dev/cu.usbmodem1301", "/dev/ttyACM0", "COM3", "usb"} {
		if !IsSerialName(name) {
			t.Errorf("%q should be serial", name)
		}
	}
	for _, name := range []string{"192.168.1.40", "lights.local:9000", "controller"} {
		if IsSerialName(name) {
			t.Errorf("%q should not be serial", name)
		}
	}
}

func TestRoundTripAfterClose(t *testing.T) {
	dev, _ := startFakeController(t)
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
	if err := dev.AllOff(); err == nil {
		t.Fatal("ops on a closed device should fail")
	}
}
