package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SalehSedlah/doctor-assistant/internal/crypto"
)

// Identity is an anonymous, unauthenticated-but-unique browser
// session. It is created once per session and scopes all persisted
// conversation data; it is never rotated while the session lives.
type Identity struct {
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"issued_at"`
}

// IdentityRegistrar records new identities in the store. Registration
// is best-effort: a store failure degrades the session to ephemeral
// chat instead of blocking it.
type IdentityRegistrar interface {
	EnsureIdentity(ctx context.Context, identityID string) error
}

type Provider struct {
	crypto *crypto.Manager
	store  IdentityRegistrar
}

func NewProvider(cm *crypto.Manager, store IdentityRegistrar) *Provider {
	return &Provider{crypto: cm, store: store}
}

// Establish mints a fresh anonymous identity and its opaque token.
// The returned registration error, if any, is reported separately so
// the caller can still hand out the (ephemeral) identity.
func (p *Provider) Establish(ctx context.Context) (Identity, string, error) {
	id := Identity{
		ID:       uuid.NewString(),
		IssuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(id)
	if err != nil {
		return Identity{}, "", fmt.Errorf("marshal identity: %w", err)
	}
	token, err := p.crypto.SealToken(payload)
	if err != nil {
		return Identity{}, "", fmt.Errorf("seal identity token: %w", err)
	}

	var regErr error
	if p.store != nil {
		regErr = p.store.EnsureIdentity(ctx, id.ID)
	}
	return id, token, regErr
}

// Verify opens a session token and returns the identity it carries.
func (p *Provider) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("empty session token")
	}
	raw, err := p.crypto.OpenToken(token)
	if err != nil {
		return Identity{}, fmt.Errorf("open session token: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, fmt.Errorf("unmarshal identity: %w", err)
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("session token carries no identity")
	}
	return id, nil
}
