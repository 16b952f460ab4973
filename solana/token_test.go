package solana

import (
	"encoding/binary"
	"testing"
)

func TestSystemCreateAccount_Layout(t *testing.T) {
	var funder, newAcc Pubkey
	funder[0] = 1
	newAcc[0] = 2

	ix := SystemCreateAccount(funder, newAcc, CreateAccountArgs{
		Lamports: 12345,
		Space:    MintAccountSize,
		Owner:    TokenProgramID,
	})

	if ix.ProgramID != SystemProgramID {
		t.Fatalf("program id mismatch")
	}
	if len(ix.Accounts) != 2 || !ix.Accounts[0].IsSigner || !ix.Accounts[1].IsSigner {
		t.Fatalf("both funder and new account must sign: %+v", ix.Accounts)
	}
	if len(ix.Data) != 52 {
		t.Fatalf("data len=%d, want 52", len(ix.Data))
	}
	if binary.LittleEndian.Uint32(ix.Data[0:4]) != 0 {
		t.Fatalf("instruction index=%d, want 0", binary.LittleEndian.Uint32(ix.Data[0:4]))
	}
	if binary.LittleEndian.Uint64(ix.Data[4:12]) != 12345 {
		t.Fatalf("lamports mismatch")
	}
	if binary.LittleEndian.Uint64(ix.Data[12:20]) != MintAccountSize {
		t.Fatalf("space mismatch")
	}
	var owner Pubkey
	copy(owner[:], ix.Data[20:52])
	if owner != TokenProgramID {
		t.Fatalf("owner mismatch")
	}
}

func TestTokenInitializeMint2_Layout(t *testing.T) {
	var mint, authority Pubkey
	mint[0] = 3
	authority[0] = 4

	ix := TokenInitializeMint2(mint, InitializeMintArgs{
		Decimals:      9,
		MintAuthority: authority,
	})

	if ix.ProgramID != TokenProgramID {
		t.Fatalf("program id mismatch")
	}
	if len(ix.Accounts) != 1 || ix.Accounts[0].Pubkey != mint || !ix.Accounts[0].IsWritable {
		t.Fatalf("accounts=%+v", ix.Accounts)
	}
	if len(ix.Data) != 1+1+32+1 {
		t.Fatalf("data len=%d", len(ix.Data))
	}
	if ix.Data[0] != 20 || ix.Data[1] != 9 {
		t.Fatalf("variant/decimals=%d/%d", ix.Data[0], ix.Data[1])
	}
	if ix.Data[34] != 0 {
		t.Fatalf("freeze authority option=%d, want 0 (none)", ix.Data[34])
	}

	withFreeze := TokenInitializeMint2(mint, InitializeMintArgs{
		Decimals:        6,
		MintAuthority:   authority,
		FreezeAuthority: &authority,
	})
	if len(withFreeze.Data) != 1+1+32+1+32 || withFreeze.Data[34] != 1 {
		t.Fatalf("freeze authority not encoded")
	}
}

func TestTokenMintTo_Layout(t *testing.T) {
	var mint, dest, authority Pubkey
	mint[0] = 5
	dest[0] = 6
	authority[0] = 7

	ix := TokenMintTo(mint, dest, authority, 1_000_000_000)

	if ix.Data[0] != 7 {
		t.Fatalf("variant=%d, want 7", ix.Data[0])
	}
	if binary.LittleEndian.Uint64(ix.Data[1:9]) != 1_000_000_000 {
		t.Fatalf("amount mismatch")
	}
	if len(ix.Accounts) != 3 {
		t.Fatalf("accounts len=%d", len(ix.Accounts))
	}
	if !ix.Accounts[0].IsWritable || !ix.Accounts[1].IsWritable {
		t.Fatalf("mint and destination must be writable")
	}
	if !ix.Accounts[2].IsSigner || ix.Accounts[2].IsWritable {
		t.Fatalf("authority must be a readonly signer")
	}
}

func TestATACreateIdempotent_Layout(t *testing.T) {
	var payer, ata, owner, mint Pubkey
	payer[0] = 8
	ata[0] = 9
	owner[0] = 10
	mint[0] = 11

	ix := ATACreateIdempotent(payer, ata, owner, mint)

	if ix.ProgramID != AssociatedTokenProgramID {
		t.Fatalf("program id mismatch")
	}
	if string(ix.Data) != "\x01" {
		t.Fatalf("data=%x, want 01 (CreateIdempotent)", ix.Data)
	}
	want := []struct {
		pk       Pubkey
		signer   bool
		writable bool
	}{
		{payer, true, true},
		{ata, false, true},
		{owner, false, false},
		{mint, false, false},
		{SystemProgramID, false, false},
		{TokenProgramID, false, false},
	}
	if len(ix.Accounts) != len(want) {
		t.Fatalf("accounts len=%d, want %d", len(ix.Accounts), len(want))
	}
	for i, w := range want {
		am := ix.Accounts[i]
		if am.Pubkey != w.pk || am.IsSigner != w.signer || am.IsWritable != w.writable {
			t.Fatalf("account %d = %+v, want %+v", i, am, w)
		}
	}
}
