package device

import (
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{Type: TypeFireReq, Payload: []byte{1, 2, 3}}
	buf := p.Marshal()
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeFireReq || !bytes.Equal(got.Payload, []byte{1, 2, 3}) {
		t.Errorf("round trip: %+v", got)
	}
}

func TestPacketEmptyPayload(t *testing.T) {
	p := Packet{Type: TypeOffReq}
	got, err := Unmarshal(p.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeOffReq || len(got.Payload) != 0 {
		t.Errorf("round trip: %+v", got)
	}
}

func TestPacketCRCMismatch(t *testing.T) {
	buf := (&Packet{Type: TypeOffReq, Payload: []byte{9}}).Marshal()
	buf[4] ^= 0xFF
	if _, err := Unmarshal(buf); err == nil {
		t.Fatal("corrupted packet should fail CRC")
	}
}

func TestPacketTooShort(t *testing.T) {
	if _, err := Unmarshal([]byte{0, 1, 0}); err == nil {
		t.Fatal("short packet should fail")
	}
}

func TestTLVRoundTrip(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i)
	}
	in := []TLV{
		{Tag: TagAnimation, Value: []byte{0, 0, 0, 5}},
		{Tag: TagEnvName, Value: []byte("brightness")},
		{Tag: TagConfigBlob, Value: long},
	}
	out, err := UnmarshalTLVs(MarshalTLVs(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("items: %d", len(out))
	}
	for i := range in {
		if out[i].Tag != in[i].Tag || !bytes.Equal(out[i].Value, in[i].Value) {
			t.Errorf("item %d: %+v", i, out[i])
		}
	}
}

func TestTLVTruncated(t *testing.T) {
	buf := MarshalTLVs([]TLV{{Tag: TagEnvName, Value: []byte("abc")}})
	if _, err := UnmarshalTLVs(buf[:len(buf)-1]); err == nil {
		t.Fatal("truncated TLV should fail")
	}
}

func TestFindTLV(t *testing.T) {
	tlvs := []TLV{{Tag: TagEnvName, Value: []byte("a")}, {Tag: TagEnvValue, Value: []byte("b")}}
	if v := FindTLV(tlvs, TagEnvValue); v == nil || string(v.Value) != "b" {
		t.Errorf("find: %+v", v)
	}
	if v := FindTLV(tlvs, TagVersion); v != nil {
		t.Errorf("missing tag should return nil, got %+v", v)
	}
}
