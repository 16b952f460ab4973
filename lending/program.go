// Package lending encodes the client side of the on-chain lending protocol:
// the program's derived-address conventions, its instruction wire format, and
// its account state layouts. Everything here is pure; network access lives in
// solanarpc and the sender.
package lending

import (
	"github.com/openlend/lending-client/solana"
)

// ProgramID is the deployed lending program. The seed scheme and instruction
// layout below are pinned to this deployment; a different program build needs
// a different client.
var ProgramID = solana.MustParsePubkey("9CoY42r3y5WFDJjQX97e9m9THcVGpvuVSKjBjGkiksMR")

// treasurySeed prefixes the bank token account derivation.
var treasurySeed = []byte("Treasury")

// BankAddress derives the bank PDA for a mint: seeds = [mint].
func BankAddress(programID, mint solana.Pubkey) (solana.Pubkey, uint8, error) {
	return solana.FindProgramAddress([][]byte{mint[:]}, programID)
}

// TreasuryAddress derives the bank token account PDA for a mint:
// seeds = ["Treasury", mint].
func TreasuryAddress(programID, mint solana.Pubkey) (solana.Pubkey, uint8, error) {
	return solana.FindProgramAddress([][]byte{treasurySeed, mint[:]}, programID)
}

// UserAccountAddress derives the per-wallet ledger account PDA:
// seeds = [wallet].
func UserAccountAddress(programID, wallet solana.Pubkey) (solana.Pubkey, uint8, error) {
	return solana.FindProgramAddress([][]byte{wallet[:]}, programID)
}
