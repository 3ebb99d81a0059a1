package session

import (
	"context"
	"testing"

	"github.com/SalehSedlah/doctor-assistant/internal/crypto"
)

type recordingRegistrar struct {
	ids []string
}

func (r *recordingRegistrar) EnsureIdentity(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return nil
}

func testManager(t *testing.T) *crypto.Manager {
	t.Helper()
	key := make([]byte, 32)
	m, err := crypto.NewManager("k1", map[string][]byte{"k1": key})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestEstablishAndVerifyRoundtrip(t *testing.T) {
	reg := &recordingRegistrar{}
	p := NewProvider(testManager(t), reg)

	id, token, err := p.Establish(context.Background())
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if id.ID == "" {
		t.Fatalf("expected a non-empty identity id")
	}
	if len(reg.ids) != 1 || reg.ids[0] != id.ID {
		t.Fatalf("identity must be registered once, got %v", reg.ids)
	}

	got, err := p.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != id.ID {
		t.Fatalf("verified identity %q does not match established %q", got.ID, id.ID)
	}
}

func TestEstablishYieldsDistinctIdentities(t *testing.T) {
	p := NewProvider(testManager(t), nil)

	a, _, err := p.Establish(context.Background())
	if err != nil {
		t.Fatalf("establish a: %v", err)
	}
	b, _, err := p.Establish(context.Background())
	if err != nil {
		t.Fatalf("establish b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("two sessions must not share an identity")
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	p := NewProvider(testManager(t), nil)

	if _, err := p.Verify(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := p.Verify("bogus"); err == nil {
		t.Fatalf("expected error for malformed token")
	}

	other := NewProvider(testManager(t), nil)
	_, token, err := other.Establish(context.Background())
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	// Same key bytes, so cross-verification succeeds; flip a byte to
	// ensure tampering is caught.
	tampered := []byte(token)
	tampered[len(tampered)/2] ^= 0x01
	if _, err := p.Verify(string(tampered)); err == nil {
		t.Fatalf("expected error for tampered token")
	}
}
