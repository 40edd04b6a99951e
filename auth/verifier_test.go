package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/crypto/ed25519"
	"go.bryk.io/rmi/document"
)

func TestNilVerifierAcceptsEverything(t *testing.T) {
	var v *Verifier
	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, v.Verify(env))
}

func TestUnsignedEnvelopeIsAccepted(t *testing.T) {
	kp, err := ed25519.New()
	require.NoError(t, err)
	defer kp.Destroy()

	v := VerifierFromKeyPair(kp)
	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, v.Verify(env))
}

func TestSignThenVerifySucceeds(t *testing.T) {
	kp, err := ed25519.New()
	require.NoError(t, err)
	defer kp.Destroy()

	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, Sign(kp, env))
	require.NotEmpty(t, env.Secret)

	v := VerifierFromKeyPair(kp)
	require.NoError(t, v.Verify(env))
}

func TestTamperedEnvelopeFailsVerification(t *testing.T) {
	kp, err := ed25519.New()
	require.NoError(t, err)
	defer kp.Destroy()

	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, Sign(kp, env))

	env.URL = "amqp://tampered"

	v := VerifierFromKeyPair(kp)
	err = v.Verify(env)
	require.Error(t, err)
	var invalid *document.InvalidDocument
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, document.CodeAuthFailed, invalid.Code)
}

func TestWrongKeyFailsVerification(t *testing.T) {
	signer, err := ed25519.New()
	require.NoError(t, err)
	defer signer.Destroy()
	other, err := ed25519.New()
	require.NoError(t, err)
	defer other.Destroy()

	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, Sign(signer, env))

	v := VerifierFromKeyPair(other)
	err = v.Verify(env)
	require.Error(t, err)
}
