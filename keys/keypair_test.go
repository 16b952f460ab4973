package keys

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerate_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id.json")

	pub, err := Generate(path, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	priv, gotPub, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		t.Fatalf("private key len=%d, want %d", len(priv), ed25519.PrivateKeySize)
	}
	if gotPub != pub {
		t.Fatalf("pub mismatch")
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if (st.Mode() & 0o777) != 0o600 {
		t.Fatalf("mode=%#o, want 0600", st.Mode()&0o777)
	}

	if _, err := Generate(path, false); err == nil {
		t.Fatalf("expected error when file exists without force")
	}

	pub2, err := Generate(path, true)
	if err != nil {
		t.Fatalf("Generate(force): %v", err)
	}
	if pub2 == pub {
		t.Fatalf("expected different pubkey after overwrite")
	}
}

func TestLoad_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"not-json.json":   "hello",
		"wrong-len.json":  "[1,2,3]",
		"bad-values.json": "[" + repeatBytes("300,", 63) + "300]",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, _, err := Load(path); err == nil {
			t.Fatalf("Load(%s): expected error", name)
		}
	}

	if _, _, err := Load(""); err == nil {
		t.Fatalf("Load(\"\"): expected error")
	}
	if _, _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("Load(missing): expected error")
	}
}

func TestNewEphemeral(t *testing.T) {
	pub, priv, err := NewEphemeral()
	if err != nil {
		t.Fatalf("NewEphemeral: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		t.Fatalf("private key len=%d", len(priv))
	}
	pk := priv.Public().(ed25519.PublicKey)
	var want [32]byte
	copy(want[:], pk)
	if pub != want {
		t.Fatalf("pubkey does not match private key")
	}
}

func repeatBytes(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
