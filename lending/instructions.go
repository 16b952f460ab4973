package lending

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/openlend/lending-client/solana"
)

// TokenType is the borsh enum the program uses to select which side of the
// user ledger an amount applies to.
type TokenType uint8

const (
	TokenUSDC TokenType = 0
	TokenSOL  TokenType = 1
)

const (
	SolDecimals  = 9
	UsdcDecimals = 6
)

func (t TokenType) String() string {
	switch t {
	case TokenUSDC:
		return "USDC"
	case TokenSOL:
		return "SOL"
	default:
		return "unknown"
	}
}

// Decimals returns the smallest-unit precision of the mint backing this
// token type.
func (t TokenType) Decimals() uint8 {
	if t == TokenSOL {
		return SolDecimals
	}
	return UsdcDecimals
}

// anchorDiscriminator is the 8-byte instruction tag the program's dispatcher
// matches on: sha256("global:<instruction_name>")[..8].
func anchorDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:8]
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// The account order and signer/writable flags in each builder are a fixed
// schema owned by the program; reordering or reflagging silently corrupts the
// transaction, so every builder lists its metas explicitly.

type InitializeBankAccounts struct {
	Signer   solana.Pubkey
	Mint     solana.Pubkey
	Bank     solana.Pubkey
	Treasury solana.Pubkey
}

type InitializeBankArgs struct {
	LiquidationThreshold uint64
	MaxLTV               uint64
}

func NewInitializeBankInstruction(programID solana.Pubkey, accounts InitializeBankAccounts, args InitializeBankArgs) solana.Instruction {
	data := make([]byte, 0, 8+8+8)
	data = append(data, anchorDiscriminator("initialize_bank")...)
	data = appendU64(data, args.LiquidationThreshold)
	data = appendU64(data, args.MaxLTV)

	return solana.Instruction{
		ProgramID: programID,
		Accounts: []solana.AccountMeta{
			{Pubkey: accounts.Signer, IsSigner: true, IsWritable: true},
			{Pubkey: accounts.Mint, IsSigner: false, IsWritable: false},
			{Pubkey: accounts.Bank, IsSigner: false, IsWritable: true},
			{Pubkey: accounts.Treasury, IsSigner: false, IsWritable: true},
			{Pubkey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
			{Pubkey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		Data: data,
	}
}

type InitializeAccountAccounts struct {
	Signer      solana.Pubkey
	UserAccount solana.Pubkey
}

type InitializeAccountArgs struct {
	UsdcAddress solana.Pubkey
}

func NewInitializeAccountInstruction(programID solana.Pubkey, accounts InitializeAccountAccounts, args InitializeAccountArgs) solana.Instruction {
	data := make([]byte, 0, 8+32)
	data = append(data, anchorDiscriminator("initialize_account")...)
	data = append(data, args.UsdcAddress[:]...)

	return solana.Instruction{
		ProgramID: programID,
		Accounts: []solana.AccountMeta{
			{Pubkey: accounts.Signer, IsSigner: true, IsWritable: true},
			{Pubkey: accounts.UserAccount, IsSigner: false, IsWritable: true},
			{Pubkey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		Data: data,
	}
}

// AmountOpAccounts is the shared account set of the four amount-moving
// operations. Deposit/Withdraw/Repay use it as-is; Borrow adds the price
// update account.
type AmountOpAccounts struct {
	Signer           solana.Pubkey
	Mint             solana.Pubkey
	Bank             solana.Pubkey
	Treasury         solana.Pubkey
	UserAccount      solana.Pubkey
	UserTokenAccount solana.Pubkey
}

type AmountOpArgs struct {
	Amount    uint64
	TokenType TokenType
}

func amountOpData(name string, args AmountOpArgs) []byte {
	data := make([]byte, 0, 8+8+1)
	data = append(data, anchorDiscriminator(name)...)
	data = appendU64(data, args.Amount)
	data = append(data, byte(args.TokenType))
	return data
}

func amountOpMetas(accounts AmountOpAccounts) []solana.AccountMeta {
	return []solana.AccountMeta{
		{Pubkey: accounts.Signer, IsSigner: true, IsWritable: true},
		{Pubkey: accounts.Mint, IsSigner: false, IsWritable: false},
		{Pubkey: accounts.Bank, IsSigner: false, IsWritable: true},
		{Pubkey: accounts.Treasury, IsSigner: false, IsWritable: true},
		{Pubkey: accounts.UserAccount, IsSigner: false, IsWritable: true},
		{Pubkey: accounts.UserTokenAccount, IsSigner: false, IsWritable: true},
	}
}

func appendProgramMetas(metas []solana.AccountMeta) []solana.AccountMeta {
	return append(metas,
		solana.AccountMeta{Pubkey: solana.AssociatedTokenProgramID, IsSigner: false, IsWritable: false},
		solana.AccountMeta{Pubkey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		solana.AccountMeta{Pubkey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	)
}

func NewDepositInstruction(programID solana.Pubkey, accounts AmountOpAccounts, args AmountOpArgs) solana.Instruction {
	return solana.Instruction{
		ProgramID: programID,
		Accounts:  appendProgramMetas(amountOpMetas(accounts)),
		Data:      amountOpData("deposit", args),
	}
}

func NewWithdrawInstruction(programID solana.Pubkey, accounts AmountOpAccounts, args AmountOpArgs) solana.Instruction {
	return solana.Instruction{
		ProgramID: programID,
		Accounts:  appendProgramMetas(amountOpMetas(accounts)),
		Data:      amountOpData("withdraw", args),
	}
}

// NewBorrowInstruction takes the pyth price update account the program reads
// to value the collateral; it sits between the user token account and the
// program ids. Unlike the other amount ops, UserTokenAccount must be the
// associated token account of the user-account PDA, not of the signing
// wallet: the program pays borrowed funds into an account it controls.
func NewBorrowInstruction(programID solana.Pubkey, accounts AmountOpAccounts, priceUpdate solana.Pubkey, args AmountOpArgs) solana.Instruction {
	metas := amountOpMetas(accounts)
	metas = append(metas, solana.AccountMeta{Pubkey: priceUpdate, IsSigner: false, IsWritable: false})
	return solana.Instruction{
		ProgramID: programID,
		Accounts:  appendProgramMetas(metas),
		Data:      amountOpData("borrow", args),
	}
}

func NewRepayInstruction(programID solana.Pubkey, accounts AmountOpAccounts, args AmountOpArgs) solana.Instruction {
	return solana.Instruction{
		ProgramID: programID,
		Accounts:  appendProgramMetas(amountOpMetas(accounts)),
		Data:      amountOpData("repay", args),
	}
}
