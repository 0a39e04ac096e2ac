package matchwire

import "testing"

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(EventMove, SessionRef{SessionID: "m1", Notation: "e2e4"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var ref SessionRef
	ev, err := Decode(raw, &ref)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev != EventMove || ref.SessionID != "m1" || ref.Notation != "e2e4" {
		t.Fatalf("unexpected: %s %+v", ev, ref)
	}

	raw = MustEncode(EventDrawAccepted, nil)
	if string(raw) != `{"event":"drawAccepted"}` {
		t.Fatalf("unexpected frame: %s", raw)
	}

	if _, err := Decode([]byte("{"), nil); err == nil {
		t.Fatalf("expected decode error")
	}
}
