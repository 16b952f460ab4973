package lending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressDerivation_Deterministic(t *testing.T) {
	mint := pk(0x11)
	wallet := pk(0x22)

	b1, bump1, err := BankAddress(ProgramID, mint)
	require.NoError(t, err)
	b2, bump2, err := BankAddress(ProgramID, mint)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, bump1, bump2)

	tr, _, err := TreasuryAddress(ProgramID, mint)
	require.NoError(t, err)
	assert.NotEqual(t, b1, tr, "treasury seeds must differ from bank seeds")

	u, _, err := UserAccountAddress(ProgramID, wallet)
	require.NoError(t, err)
	assert.NotEqual(t, b1, u)
}

func TestAddressDerivation_VariesByMint(t *testing.T) {
	a, _, err := BankAddress(ProgramID, pk(0x11))
	require.NoError(t, err)
	b, _, err := BankAddress(ProgramID, pk(0x12))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
