package lending

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/openlend/lending-client/solana"
)

var ErrBadAccountData = errors.New("malformed lending account data")

// Bank is the decoded per-mint pool account. Layout is the program's borsh
// serialization behind the 8-byte account discriminator.
type Bank struct {
	Authority            solana.Pubkey
	MintAddress          solana.Pubkey
	TotalDeposits        uint64
	TotalDepositsShares  uint64
	TotalBorrows         uint64
	TotalBorrowsShares   uint64
	LiquidationThreshold uint64
	LiquidationBonus     uint64
	LiquidationClose     uint64
	MaxLTV               uint64
	InterestRate         uint64
	LastUpdated          int64
}

const bankDataSize = 8 + 32 + 32 + 8*9 + 8

// User is the decoded per-wallet ledger account.
type User struct {
	Owner               solana.Pubkey
	DepositedSol        uint64
	DepositedSolShares  uint64
	BorrowedSol         uint64
	BorrowedSolShares   uint64
	DepositedUsdc       uint64
	DepositedUsdcShares uint64
	BorrowedUsdc        uint64
	BorrowedUsdcShares  uint64
	UsdcAddress         solana.Pubkey
	LastUpdated         int64
}

const userDataSize = 8 + 32 + 8*8 + 32 + 8

// accountDiscriminator tags on-chain accounts by type:
// sha256("account:<Name>")[..8].
func accountDiscriminator(name string) [8]byte {
	h := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], h[:8])
	return out
}

func checkDiscriminator(data []byte, name string, minLen int) error {
	if len(data) < minLen {
		return fmt.Errorf("%w: %s account too short: %d < %d", ErrBadAccountData, name, len(data), minLen)
	}
	want := accountDiscriminator(name)
	var got [8]byte
	copy(got[:], data[:8])
	if got != want {
		return fmt.Errorf("%w: %s discriminator mismatch", ErrBadAccountData, name)
	}
	return nil
}

func DecodeBank(data []byte) (Bank, error) {
	var out Bank
	if err := checkDiscriminator(data, "Bank", bankDataSize); err != nil {
		return out, err
	}

	off := 8
	copy(out.Authority[:], data[off:off+32])
	off += 32
	copy(out.MintAddress[:], data[off:off+32])
	off += 32

	u64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return v
	}
	out.TotalDeposits = u64()
	out.TotalDepositsShares = u64()
	out.TotalBorrows = u64()
	out.TotalBorrowsShares = u64()
	out.LiquidationThreshold = u64()
	out.LiquidationBonus = u64()
	out.LiquidationClose = u64()
	out.MaxLTV = u64()
	out.InterestRate = u64()
	out.LastUpdated = int64(u64())
	return out, nil
}

func DecodeUser(data []byte) (User, error) {
	var out User
	if err := checkDiscriminator(data, "User", userDataSize); err != nil {
		return out, err
	}

	off := 8
	copy(out.Owner[:], data[off:off+32])
	off += 32

	u64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return v
	}
	out.DepositedSol = u64()
	out.DepositedSolShares = u64()
	out.BorrowedSol = u64()
	out.BorrowedSolShares = u64()
	out.DepositedUsdc = u64()
	out.DepositedUsdcShares = u64()
	out.BorrowedUsdc = u64()
	out.BorrowedUsdcShares = u64()

	copy(out.UsdcAddress[:], data[off:off+32])
	off += 32
	out.LastUpdated = int64(u64())
	return out, nil
}
