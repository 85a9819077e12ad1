// Package verify is the read path: signature checks against the local
// revocation cache, with every attempt recorded in the audit trail.
package verify

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/types"
)

// VerifyFunc is the opaque cryptographic check. The real implementation
// lives with the credential scheme; tests and callers inject it.
type VerifyFunc func(message, signature, publicKey []byte) bool

// RevocationReader is the store slice the read path needs
type RevocationReader interface {
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*store.RevocationFact, error)
}

// AuditRecorder appends verification attempts
type AuditRecorder interface {
	Record(ctx context.Context, entry *store.AuditEntry) error
}

// Decision is the outcome of one access verification
type Decision struct {
	Allowed       bool   `json:"allowed"`
	Revoked       bool   `json:"revoked"`
	SignatureHash string `json:"signature_hash"`
	Reason        string `json:"reason"`
}

// Service answers revocation queries without any network round trip
type Service struct {
	revocations RevocationReader
	audit       AuditRecorder
	verify      VerifyFunc
	logger      types.Logger
}

// New creates the verification service. verify may be nil when only
// IsRevoked lookups are needed.
func New(revocations RevocationReader, audit AuditRecorder, verify VerifyFunc, logger types.Logger) *Service {
	if logger == nil {
		logger = types.StdLogger{}
	}
	return &Service{
		revocations: revocations,
		audit:       audit,
		verify:      verify,
		logger:      logger,
	}
}

// HashSignature derives the content hash used as the revocation key.
// Must match what the contract emits as the sigHash topic.
func HashSignature(signature []byte) string {
	return crypto.Keccak256Hash(signature).Hex()
}

// IsRevoked checks the local cache for a signature hash
func (s *Service) IsRevoked(ctx context.Context, signatureHash string) (bool, error) {
	revoked, err := s.revocations.Exists(ctx, signatureHash)
	if err != nil {
		return false, fmt.Errorf("revocation lookup failed: %w", err)
	}
	return revoked, nil
}

// Lookup returns the full fact for a signature hash, or store.ErrNotFound
func (s *Service) Lookup(ctx context.Context, signatureHash string) (*store.RevocationFact, error) {
	return s.revocations.Get(ctx, signatureHash)
}

// VerifyAccess runs the cryptographic check, then the revocation check, and
// records the attempt. An audit write failure is logged, never surfaced:
// the decision does not depend on the trail.
func (s *Service) VerifyAccess(ctx context.Context, message, signature, publicKey []byte) (*Decision, error) {
	sigHash := HashSignature(signature)
	decision := &Decision{SignatureHash: sigHash}

	if s.verify == nil {
		return nil, fmt.Errorf("no verify function configured")
	}

	if !s.verify(message, signature, publicKey) {
		decision.Reason = "signature invalid"
		s.recordAudit(ctx, decision, publicKey)
		return decision, nil
	}

	revoked, err := s.IsRevoked(ctx, sigHash)
	if err != nil {
		return nil, err
	}

	decision.Revoked = revoked
	if revoked {
		decision.Reason = "signature revoked"
	} else {
		decision.Allowed = true
		decision.Reason = "ok"
	}

	s.recordAudit(ctx, decision, publicKey)
	return decision, nil
}

func (s *Service) recordAudit(ctx context.Context, decision *Decision, publicKey []byte) {
	entry := &store.AuditEntry{
		SignatureHash: decision.SignatureHash,
		Revoked:       decision.Revoked,
	}
	if len(publicKey) > 0 {
		entry.PublicKeyRef = fmt.Sprintf("%x", publicKey)
	}

	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Printf("[verify] failed to record audit entry for %s: %v", decision.SignatureHash, err)
	}
}
