package store

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/dSync/lib/clock"
)

func TestPosIDCompare(t *testing.T) {
	a := PosID{{Digit: 5, Site: "alice"}}
	b := PosID{{Digit: 7, Site: "alice"}}
	prefix := PosID{{Digit: 5, Site: "alice"}}
	extended := PosID{{Digit: 5, Site: "alice"}, {Digit: 1, Site: "bob"}}
	siteTie := PosID{{Digit: 5, Site: "bob"}}
	tagTie1 := PosID{{Digit: 5, Site: "alice", Tag: "upd-1"}}
	tagTie2 := PosID{{Digit: 5, Site: "alice", Tag: "upd-2"}}

	if a.Compare(b) != -1 || b.Compare(a) != 1 {
		t.Error("smaller digit must sort first")
	}
	if a.Compare(prefix) != 0 {
		t.Error("identical ids must compare equal")
	}
	if prefix.Compare(extended) != -1 {
		t.Error("a proper prefix must sort before its extension")
	}
	if a.Compare(siteTie) != -1 {
		t.Error("equal digits must tie-break by site")
	}
	if tagTie1.Compare(tagTie2) != -1 || tagTie2.Compare(tagTie1) != 1 {
		t.Error("equal digit and site must tie-break by tag")
	}
	if tagTie1.Compare(tagTie1) != 0 {
		t.Error("identical tagged ids must compare equal")
	}
}

func TestOperationCodecRoundTrip(t *testing.T) {
	ops := []Operation{
		&TextInsert{Position: 0, Text: "hi", Atoms: []TextAtom{
			{ID: PosID{{Digit: 3, Site: "alice"}}, Value: "h"},
			{ID: PosID{{Digit: 4, Site: "alice"}}, Value: "i"},
		}},
		&TextDelete{Position: 1, Length: 2, IDs: []PosID{{{Digit: 3, Site: "alice"}}}},
		&TextFormat{Position: 0, Length: 1, Style: map[string]string{"bold": "true"}},
		&ObjectCreate{ObjectID: "shape1", ObjectType: "rect", Payload: json.RawMessage(`{"color":"red"}`), X: 1, Y: 2},
		&ObjectUpdate{ObjectID: "shape1", Payload: json.RawMessage(`{"color":"blue"}`)},
		&ObjectMove{ObjectID: "shape1", X: 10, Y: -4},
		&ObjectDelete{ObjectID: "shape1"},
		&TableInsert{Table: "t", Row: "r1", Col: "c1", Value: json.RawMessage(`5`)},
		&TableUpdate{Table: "t", Row: "r1", Col: "c1", Value: json.RawMessage(`7`)},
		&TableDelete{Table: "t", Row: "r1"},
	}

	for _, op := range ops {
		t.Run(op.Kind(), func(t *testing.T) {
			b, err := EncodeOperation(op)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			decoded, err := DecodeOperation(b)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if decoded.Kind() != op.Kind() || decoded.Category() != op.Category() {
				t.Errorf("round-trip changed identity: %s/%s", decoded.Kind(), decoded.Category())
			}
			reEncoded, err := EncodeOperation(decoded)
			if err != nil {
				t.Fatalf("re-encode failed: %v", err)
			}
			if string(b) != string(reEncoded) {
				t.Errorf("round-trip is not stable:\n first %s\nsecond %s", b, reEncoded)
			}
		})
	}
}

func TestDecodeOperationRejectsUnknownKind(t *testing.T) {
	_, err := DecodeOperation([]byte(`{"kind":"bogus.op","op":{}}`))
	if CodeOf(err) != RetCInvalidOperation {
		t.Errorf("expected RetCInvalidOperation, got %v", err)
	}
}

func TestUpdateEnvelopeRoundTrip(t *testing.T) {
	u := Update{
		UpdateID:  "u-1",
		SessionID: "s-1",
		UserID:    "alice",
		Timestamp: 1234567,
		Operation: &TableUpdate{Table: "t", Row: "r", Col: "c", Value: json.RawMessage(`"x"`)},
		Clock:     clock.VectorClock{"alice": 3, "bob": 1},
	}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Update
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.UpdateID != u.UpdateID || decoded.UserID != u.UserID || decoded.Timestamp != u.Timestamp {
		t.Errorf("envelope fields lost: %+v", decoded)
	}
	if decoded.Clock["alice"] != 3 || decoded.Clock["bob"] != 1 {
		t.Errorf("vector clock lost: %+v", decoded.Clock)
	}
	cell, ok := decoded.Operation.(*TableUpdate)
	if !ok {
		t.Fatalf("operation type lost: %T", decoded.Operation)
	}
	if cell.Table != "t" || cell.Row != "r" || cell.Col != "c" {
		t.Errorf("operation fields lost: %+v", cell)
	}
}
