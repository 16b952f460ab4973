package solana

import (
	"errors"
	"testing"
)

func TestCreateProgramAddress_RejectsInvalidSeeds(t *testing.T) {
	_, err := CreateProgramAddress(make([][]byte, 17), SystemProgramID)
	if !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("want ErrInvalidSeeds, got %v", err)
	}

	seed := make([]byte, 33)
	_, err = CreateProgramAddress([][]byte{seed}, SystemProgramID)
	if !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("want ErrInvalidSeeds, got %v", err)
	}
}

func TestFindProgramAddress_RejectsInvalidSeeds(t *testing.T) {
	seed := make([]byte, 33)
	_, _, err := FindProgramAddress([][]byte{seed}, SystemProgramID)
	if !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("want ErrInvalidSeeds, got %v", err)
	}
}

func TestFindProgramAddress_Deterministic(t *testing.T) {
	program := MustParsePubkey("9CoY42r3y5WFDJjQX97e9m9THcVGpvuVSKjBjGkiksMR")
	var mint Pubkey
	for i := range mint {
		mint[i] = 0x11
	}

	a1, b1, err := FindProgramAddress([][]byte{[]byte("Treasury"), mint[:]}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	a2, b2, err := FindProgramAddress([][]byte{[]byte("Treasury"), mint[:]}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if a1 != a2 || b1 != b2 {
		t.Fatalf("derivation not deterministic: %s/%d vs %s/%d", a1.Base58(), b1, a2.Base58(), b2)
	}
	if isOnCurve(a1) {
		t.Fatalf("expected off-curve PDA")
	}
}

func TestFindAssociatedTokenAddress_Deterministic(t *testing.T) {
	var owner, mint Pubkey
	for i := range owner {
		owner[i] = 0x22
		mint[i] = 0x33
	}

	a1, _, err := FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	a2, _, err := FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("ATA derivation not deterministic")
	}

	b, _, err := FindAssociatedTokenAddress(mint, owner)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	if a1 == b {
		t.Fatalf("seed order must matter")
	}
}
