package solana

import (
	"encoding/binary"
)

// MintAccountSize is the serialized size of an spl-token Mint account.
const MintAccountSize = 82

type CreateAccountArgs struct {
	Lamports uint64
	Space    uint64
	Owner    Pubkey
}

// SystemCreateAccount builds the system-program CreateAccount instruction.
// Both the funder and the new account sign.
func SystemCreateAccount(funder, newAccount Pubkey, args CreateAccountArgs) Instruction {
	// Layout: u32 instruction index (0), u64 lamports, u64 space, owner [32].
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint64(data[4:12], args.Lamports)
	binary.LittleEndian.PutUint64(data[12:20], args.Space)
	copy(data[20:52], args.Owner[:])

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: funder, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

type InitializeMintArgs struct {
	Decimals        uint8
	MintAuthority   Pubkey
	FreezeAuthority *Pubkey
}

// TokenInitializeMint2 builds the spl-token InitializeMint2 instruction
// (variant 20; no rent sysvar account required).
func TokenInitializeMint2(mint Pubkey, args InitializeMintArgs) Instruction {
	data := make([]byte, 0, 1+1+32+1+32)
	data = append(data, 20)
	data = append(data, args.Decimals)
	data = append(data, args.MintAuthority[:]...)
	if args.FreezeAuthority != nil {
		data = append(data, 1)
		data = append(data, args.FreezeAuthority[:]...)
	} else {
		data = append(data, 0)
	}

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: mint, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}

// TokenMintTo builds the spl-token MintTo instruction (variant 7). The mint
// authority signs.
func TokenMintTo(mint, destination, authority Pubkey, amount uint64) Instruction {
	data := make([]byte, 1+8)
	data[0] = 7
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: mint, IsSigner: false, IsWritable: true},
			{Pubkey: destination, IsSigner: false, IsWritable: true},
			{Pubkey: authority, IsSigner: true, IsWritable: false},
		},
		Data: data,
	}
}

// ATACreateIdempotent builds the associated-token-program CreateIdempotent
// instruction: creates the ATA for (owner, mint) if it does not exist yet and
// succeeds without effect when it does.
func ATACreateIdempotent(payer, ata, owner, mint Pubkey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsSigner: false, IsWritable: true},
			{Pubkey: owner, IsSigner: false, IsWritable: false},
			{Pubkey: mint, IsSigner: false, IsWritable: false},
			{Pubkey: SystemProgramID, IsSigner: false, IsWritable: false},
			{Pubkey: TokenProgramID, IsSigner: false, IsWritable: false},
		},
		Data: []byte{1},
	}
}
