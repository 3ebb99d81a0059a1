package crypto

import (
	"encoding/base64"
	"testing"
)

func TestSealOpenToken(t *testing.T) {
	keys := map[string][]byte{
		"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="),
	}
	m, err := NewManager("k1", keys)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.SealToken([]byte(`{"id":"abc"}`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	out, err := m.OpenToken(token)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(out) != `{"id":"abc"}` {
		t.Fatalf("expected original plaintext, got %q", out)
	}
}

func TestOpenTokenRejectsTampering(t *testing.T) {
	m, err := NewManager("k1", map[string][]byte{
		"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.SealToken([]byte("identity"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := m.OpenToken("not-a-token"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
	if _, err := m.OpenToken(token[:len(token)-4]); err == nil {
		t.Fatalf("expected error for truncated token")
	}
}

func TestRotationOpensOldSealsNew(t *testing.T) {
	oldKey := mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	newKey := mustKey(t, "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=")

	oldManager, err := NewManager("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old manager: %v", err)
	}
	oldToken, err := oldManager.SealToken([]byte("legacy"))
	if err != nil {
		t.Fatalf("old seal: %v", err)
	}

	rotatedManager, err := NewManager("new", map[string][]byte{
		"old": oldKey,
		"new": newKey,
	})
	if err != nil {
		t.Fatalf("rotated manager: %v", err)
	}

	plain, err := rotatedManager.OpenToken(oldToken)
	if err != nil {
		t.Fatalf("open with old key failed: %v", err)
	}
	if string(plain) != "legacy" {
		t.Fatalf("unexpected plaintext: %q", plain)
	}

	newToken, err := rotatedManager.SealToken([]byte("fresh"))
	if err != nil {
		t.Fatalf("new seal failed: %v", err)
	}
	fresh, err := rotatedManager.OpenToken(newToken)
	if err != nil {
		t.Fatalf("new open failed: %v", err)
	}
	if string(fresh) != "fresh" {
		t.Fatalf("unexpected new plaintext: %q", fresh)
	}
}

func mustKey(t *testing.T, b64 string) []byte {
	t.Helper()
	k, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if len(k) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k))
	}
	return k
}
