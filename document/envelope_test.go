package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStampsIdentity(t *testing.T) {
	e, err := New(Request, Routing{"agent-1", "controller"})
	require.NoError(t, err)
	require.NotEmpty(t, e.SN)
	require.Equal(t, ProtocolVersion, e.Version)
	require.Equal(t, Request, e.Kind)
}

func TestMissingSNIsInvalid(t *testing.T) {
	raw := []byte(`{"version":"1.0","routing":["a","b"],"kind":"request"}`)
	_, err := Load(raw)
	require.Error(t, err)
	var bad *InvalidDocument
	require.ErrorAs(t, err, &bad)
	require.Equal(t, CodeSNMissing, bad.Code)
}

func TestUnsupportedVersionIsInvalid(t *testing.T) {
	raw := []byte(`{"sn":"abc","version":"2.0","routing":["a","b"],"kind":"request"}`)
	_, err := Load(raw)
	require.Error(t, err)
	var bad *InvalidDocument
	require.ErrorAs(t, err, &bad)
	require.Equal(t, CodeVersionUnsupported, bad.Code)
}

func TestDumpLoadRoundtripPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"sn":"abc","version":"1.0","routing":["a","b"],"kind":"request","extension":"kept"}`)
	e, err := Load(raw)
	require.NoError(t, err)

	out, err := e.Dump()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &fields))
	require.Contains(t, fields, "extension")
	require.JSONEq(t, `"kept"`, string(fields["extension"]))
}

func TestEqualityBySerialNumber(t *testing.T) {
	a, _ := New(Request, Routing{"x", "y"})
	b, _ := New(Request, Routing{"x", "y"})
	require.False(t, a.Equal(b))
	b.SN = a.SN
	require.True(t, a.Equal(b))
}

func TestWindowRoundtrip(t *testing.T) {
	raw := []byte(`{"sn":"abc","version":"1.0","routing":["a","b"],"kind":"request","window":{"begin":"2026-01-01T00:00:00Z","duration":60}}`)
	e, err := Load(raw)
	require.NoError(t, err)
	require.NotNil(t, e.Window)
	require.Equal(t, int64(60), int64(e.Window.Duration.Seconds()))
}
