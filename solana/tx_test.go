package solana

import (
	"crypto/ed25519"
	"testing"
)

func TestEncodeShortVecLen_Golden(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{129, []byte{0x81, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		got := encodeShortVecLen(tt.n)
		if string(got) != string(tt.want) {
			t.Fatalf("encodeShortVecLen(%d) = %x, want %x", tt.n, got, tt.want)
		}
		n, consumed, ok := decodeShortVecLen(tt.want)
		if !ok || n != tt.n || consumed != len(tt.want) {
			t.Fatalf("decodeShortVecLen(%x) = %d/%d/%v", tt.want, n, consumed, ok)
		}
	}
}

func testKeypair(t *testing.T, fill byte) (ed25519.PrivateKey, Pubkey) {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = fill
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var pub Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return priv, pub
}

func TestBuildAndSignLegacyTransaction_SignatureVerifies(t *testing.T) {
	priv, feePayer := testKeypair(t, 1)

	var recipient Pubkey
	for i := range recipient {
		recipient[i] = 0x44
	}
	var blockhash [32]byte
	for i := range blockhash {
		blockhash[i] = 0x42
	}

	tx, err := BuildAndSignLegacyTransaction(
		blockhash,
		feePayer,
		map[Pubkey]ed25519.PrivateKey{feePayer: priv},
		[]Instruction{
			{
				ProgramID: SystemProgramID,
				Accounts: []AccountMeta{
					{Pubkey: feePayer, IsSigner: true, IsWritable: true},
					{Pubkey: recipient, IsSigner: false, IsWritable: true},
				},
				Data: []byte{1, 2, 3},
			},
		},
	)
	if err != nil {
		t.Fatalf("BuildAndSignLegacyTransaction: %v", err)
	}

	nSigs, consumed, ok := decodeShortVecLen(tx)
	if !ok || nSigs != 1 {
		t.Fatalf("signature count=%d ok=%v", nSigs, ok)
	}
	sig := tx[consumed : consumed+64]
	msg := tx[consumed+64:]
	if !ed25519.Verify(priv.Public().(ed25519.PublicKey), msg, sig) {
		t.Fatalf("signature does not verify")
	}

	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned
	// (recipient is writable, so only the program id is readonly).
	if msg[0] != 1 || msg[1] != 0 || msg[2] != 1 {
		t.Fatalf("header=%v", msg[:3])
	}
}

func TestBuildAndSignLegacyTransaction_MissingSigner(t *testing.T) {
	_, feePayer := testKeypair(t, 2)
	var blockhash [32]byte

	_, err := BuildAndSignLegacyTransaction(
		blockhash,
		feePayer,
		nil,
		[]Instruction{{ProgramID: SystemProgramID}},
	)
	if err != ErrMissingSigner {
		t.Fatalf("want ErrMissingSigner, got %v", err)
	}
}

func TestBuildAndSignLegacyTransaction_MultipleSigners(t *testing.T) {
	payerPriv, payer := testKeypair(t, 3)
	mintPriv, mint := testKeypair(t, 4)
	var blockhash [32]byte

	tx, err := BuildAndSignLegacyTransaction(
		blockhash,
		payer,
		map[Pubkey]ed25519.PrivateKey{payer: payerPriv, mint: mintPriv},
		[]Instruction{
			SystemCreateAccount(payer, mint, CreateAccountArgs{
				Lamports: 1_000_000,
				Space:    MintAccountSize,
				Owner:    TokenProgramID,
			}),
		},
	)
	if err != nil {
		t.Fatalf("BuildAndSignLegacyTransaction: %v", err)
	}

	nSigs, _, ok := decodeShortVecLen(tx)
	if !ok || nSigs != 2 {
		t.Fatalf("signature count=%d, want 2", nSigs)
	}
}

func TestTransactionSignature_RoundTrip(t *testing.T) {
	priv, feePayer := testKeypair(t, 5)
	var blockhash [32]byte

	tx, err := BuildAndSignLegacyTransaction(
		blockhash,
		feePayer,
		map[Pubkey]ed25519.PrivateKey{feePayer: priv},
		[]Instruction{{ProgramID: SystemProgramID}},
	)
	if err != nil {
		t.Fatalf("BuildAndSignLegacyTransaction: %v", err)
	}

	sig, err := TransactionSignature(tx)
	if err != nil {
		t.Fatalf("TransactionSignature: %v", err)
	}
	if sig == "" {
		t.Fatalf("empty signature")
	}

	if _, err := TransactionSignature([]byte{0x01}); err == nil {
		t.Fatalf("expected error for truncated tx")
	}
}
