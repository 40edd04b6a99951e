// Package auth implements the optional per-envelope digital signature
// check described in §4.J: a detached Ed25519 signature, carried in the
// envelope's `secret` field, over the canonical JSON encoding of the
// envelope with `secret` cleared.
package auth

import (
	"encoding/base64"

	"go.bryk.io/rmi/crypto/ed25519"
	"go.bryk.io/rmi/document"
	"go.bryk.io/rmi/errors"
)

// Verifier checks an envelope's `secret` field against a known public key.
// A nil *Verifier accepts every envelope: agents run without
// authentication enabled simply never configure one.
type Verifier struct {
	pub [32]byte
}

// NewVerifier returns a Verifier that checks signatures against pub, the
// 32-byte Ed25519 public key of the expected signer.
func NewVerifier(pub [32]byte) *Verifier {
	return &Verifier{pub: pub}
}

// VerifierFromKeyPair derives a Verifier from a local key pair's public
// half, for the common case of an agent that trusts its own controller's
// counterpart key.
func VerifierFromKeyPair(kp *ed25519.KeyPair) *Verifier {
	return &Verifier{pub: kp.PublicKey()}
}

// Verify checks doc's `secret` field as a base64-encoded detached
// signature over the envelope's canonical encoding with `secret` cleared.
// A nil Verifier, or an envelope carrying no `secret`, is accepted
// unconditionally: signing is opt-in per the deployment, not mandatory
// per envelope.
func (v *Verifier) Verify(doc *document.Envelope) error {
	if v == nil || doc.Secret == "" {
		return nil
	}
	sig, err := base64.StdEncoding.DecodeString(doc.Secret)
	if err != nil {
		return &document.InvalidDocument{
			Code:        document.CodeAuthFailed,
			Description: "malformed signature encoding",
			Details:     errors.Wrap(err, "decode secret"),
		}
	}

	unsigned := *doc
	unsigned.Secret = ""
	msg, err := unsigned.Dump()
	if err != nil {
		return &document.InvalidDocument{
			Code:        document.CodeAuthFailed,
			Description: "failed to re-encode envelope for verification",
			Details:     errors.Wrap(err, "dump envelope"),
		}
	}

	if !ed25519.Verify(msg, sig, v.pub[:]) {
		return &document.InvalidDocument{
			Code:        document.CodeAuthFailed,
			Description: "signature does not match the configured key",
		}
	}
	return nil
}

// Sign produces a base64-encoded detached signature over doc's canonical
// encoding (with `secret` cleared first) using kp, and assigns it to
// doc.Secret. Callers that both sign outbound envelopes and verify
// inbound ones derive their Verifier from the same key pair via
// VerifierFromKeyPair.
func Sign(kp *ed25519.KeyPair, doc *document.Envelope) error {
	doc.Secret = ""
	msg, err := doc.Dump()
	if err != nil {
		return errors.Wrap(err, "dump envelope")
	}
	doc.Secret = base64.StdEncoding.EncodeToString(kp.Sign(msg))
	return nil
}
