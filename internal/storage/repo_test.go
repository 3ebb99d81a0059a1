package storage

import "testing"

func TestImageURLValueNormalization(t *testing.T) {
	if v := imageURLValue(nil); v != nil {
		t.Fatalf("nil pointer must store NULL, got %#v", v)
	}

	empty := ""
	if v := imageURLValue(&empty); v != nil {
		t.Fatalf("empty string must store NULL, got %#v", v)
	}

	blank := "   "
	if v := imageURLValue(&blank); v != nil {
		t.Fatalf("blank string must store NULL, got %#v", v)
	}

	uri := "data:image/jpeg;base64,AAAA"
	if v := imageURLValue(&uri); v != uri {
		t.Fatalf("expected data uri to pass through, got %#v", v)
	}
}

func TestMessageKey(t *testing.T) {
	m := ChatMessage{ClientID: "client-7"}
	if m.Key() != "client-7" {
		t.Fatalf("optimistic entries are keyed by client id, got %q", m.Key())
	}

	m = ChatMessage{ID: 42}
	if m.Key() != "m42" {
		t.Fatalf("persisted entries are keyed by store id, got %q", m.Key())
	}

	// ClientID survives persistence and keeps the key stable across
	// the optimistic -> persisted transition.
	m = ChatMessage{ID: 42, ClientID: "client-7"}
	if m.Key() != "client-7" {
		t.Fatalf("client id wins when both are set, got %q", m.Key())
	}
}
