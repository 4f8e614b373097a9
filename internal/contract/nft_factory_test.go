package contract_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/testutil"
)

func TestNFTFactoryMintAndTransfer(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 3)
	s := c.Signers()

	factory, _, err := contract.DeployNFTFactory(ctx, c, s[0])
	require.NoError(t, err)

	id0, _, err := factory.Mint(ctx, s[1], "first", "ipfs://first")
	require.NoError(t, err)
	id1, _, err := factory.Mint(ctx, s[1], "second", "ipfs://second")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id0)
	assert.Equal(t, uint64(1), id1)

	bal, err := factory.BalanceOf(ctx, s[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bal)

	name, err := factory.TokenName(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "second", name)

	// 非持有者不能转移
	_, err = factory.Connect(s[2]).TransferFrom(ctx, s[1], s[2], id0)
	require.ErrorIs(t, err, contract.ErrNotTokenOwner)

	_, err = factory.Connect(s[1]).TransferFrom(ctx, s[1], chain.ZeroAddress, id0)
	require.ErrorIs(t, err, contract.ErrTransferToZero)

	rcpt, err := factory.Connect(s[1]).TransferFrom(ctx, s[1], s[2], id0)
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)

	owner, err := factory.OwnerOf(ctx, id0)
	require.NoError(t, err)
	assert.Equal(t, s[2], owner)

	_, err = factory.OwnerOf(ctx, 42)
	assert.ErrorIs(t, err, contract.ErrTokenNotFound)

	_, _, err = factory.Mint(ctx, chain.ZeroAddress, "x", "y")
	assert.ErrorIs(t, err, contract.ErrMintToZero)
}

func TestBindChecksKind(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	deployer := c.Signers()[0]

	factory, _, err := contract.DeployNFTFactory(ctx, c, deployer)
	require.NoError(t, err)

	_, err = contract.BindNFTFactory(ctx, c, factory.Address())
	require.NoError(t, err)
	_, err = contract.BindQuteeMedia(ctx, c, factory.Address())
	assert.ErrorIs(t, err, contract.ErrWrongContractKind)
	_, err = contract.BindQuteeMedia(ctx, c, deployer)
	assert.ErrorIs(t, err, chain.ErrContractNotFound)
}

func TestEncodeConstructorArgs(t *testing.T) {
	admin := chain.MustParseAddress("0x77158c23cC2D9dd3067a82E2067182C85fA3b1F6")
	factory := chain.MustParseAddress("0x311213bB5125aA63ef65EE42e3748d67998049B7")

	got := contract.EncodeConstructorArgs(admin, factory)
	want := "00000000000000000000000077158c23cc2d9dd3067a82e2067182c85fa3b1f6" +
		"000000000000000000000000311213bb5125aa63ef65ee42e3748d67998049b7"
	assert.Equal(t, want, got)

	args, err := contract.DecodeConstructorArgs(`["0x77158c23cC2D9dd3067a82E2067182C85fA3b1F6","0x311213bb5125aa63ef65ee42e3748d67998049b7"]`)
	require.NoError(t, err)
	assert.Equal(t, []chain.Address{admin, factory}, args)
}
