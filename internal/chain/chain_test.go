package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/internal/testutil"
)

func TestAddressChecksum(t *testing.T) {
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		a, err := chain.ParseAddress(want)
		require.NoError(t, err)
		assert.Equal(t, want, a.Hex())

		lower, err := chain.ParseAddress("0x" + a.Lower()[2:])
		require.NoError(t, err)
		assert.Equal(t, a, lower)
	}
}

func TestParseAddressRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA",
		"0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	} {
		_, err := chain.ParseAddress(in)
		assert.ErrorIs(t, err, chain.ErrInvalidAddress, in)
	}
}

func TestAddressJSON(t *testing.T) {
	a := chain.MustParseAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	raw, err := json.Marshal(map[string]chain.Address{"owner": a})
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"}`, string(raw))

	var back map[string]chain.Address
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, a, back["owner"])
}

func TestCreateAddress(t *testing.T) {
	deployer := chain.MustParseAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", chain.CreateAddress(deployer, 0).Hex())
	assert.Equal(t, "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512", chain.CreateAddress(deployer, 1).Hex())
	// 不同 nonce 编码分支
	assert.NotEqual(t, chain.CreateAddress(deployer, 0x7f), chain.CreateAddress(deployer, 0x80))
	assert.NotEqual(t, chain.CreateAddress(deployer, 0x100), chain.CreateAddress(deployer, 0x80))
}

func TestDeriveSignersDeterministic(t *testing.T) {
	a := chain.DeriveSigners("seed", 4)
	b := chain.DeriveSigners("seed", 4)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0], a[1])
	assert.NotEqual(t, a[0], chain.DeriveSigners("other", 1)[0])
}

func newChainWith(t *testing.T, signers ...chain.Address) *chain.Chain {
	t.Helper()
	c, err := chain.New(context.Background(), testutil.NewDB(t), chain.Options{
		ChainID: testutil.TestChainID,
		Network: "hardhat",
		Signers: signers,
	})
	require.NoError(t, err)
	return c
}

func TestDeployUsesSenderNonce(t *testing.T) {
	ctx := context.Background()
	deployer := chain.MustParseAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	c := newChainWith(t, deployer)

	first, rcpt, err := c.Deploy(ctx, deployer, "Dummy", []string{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", first.Hex())
	assert.Equal(t, uint64(1), rcpt.BlockNumber)
	assert.Nil(t, rcpt.To)

	second, _, err := c.Deploy(ctx, deployer, "Dummy", []string{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512", second.Hex())
	assert.Equal(t, uint64(2), c.BlockNumber())

	ct, err := c.Contract(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Dummy", ct.Kind)
	assert.Equal(t, `["x"]`, ct.ConstructorArgs)
}

func TestRevertRollsBackStateButConsumesNonce(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 2)
	from := c.Signers()[0]

	addr, _, err := c.Deploy(ctx, from, "Counter", nil, nil)
	require.NoError(t, err)

	boom := chain.Revert("boom")
	rcpt, err := c.Transact(ctx, from, addr, "bump", nil, func(env *chain.Env) error {
		if _, err := repository.NewStorageRepository(env.DB()).Incr(env.Context(), env.Self.Lower(), "n"); err != nil {
			return err
		}
		require.NoError(t, env.Emit("Bumped", map[string]int{"n": 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, rcpt)
	assert.False(t, rcpt.Succeeded())
	assert.Equal(t, "boom", rcpt.RevertReason)
	assert.Empty(t, rcpt.Logs)

	n, err := repository.NewStorageRepository(c.DB()).Uint(ctx, addr.Lower(), "n")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	nonce, err := repository.NewAccountRepository(c.DB()).GetNonce(ctx, c.ChainID(), from.Lower())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), nonce)

	stored, err := c.Receipt(ctx, rcpt.TxHash)
	require.NoError(t, err)
	assert.Equal(t, chain.ReceiptStatusReverted, stored.Status)
	assert.Equal(t, "boom", stored.RevertReason)
}

func TestNonRevertErrorDoesNotMine(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	from := c.Signers()[0]
	addr, _, err := c.Deploy(ctx, from, "Counter", nil, nil)
	require.NoError(t, err)

	dbErr := errors.New("disk on fire")
	rcpt, err := c.Transact(ctx, from, addr, "bump", nil, func(*chain.Env) error { return dbErr })
	require.ErrorIs(t, err, dbErr)
	assert.Nil(t, rcpt)
	assert.Equal(t, uint64(1), c.BlockNumber())
}

func TestTransactErrors(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	from := c.Signers()[0]
	stranger := chain.DeriveSigners("stranger", 1)[0]

	_, err := c.Transact(ctx, from, stranger, "noop", nil, nil)
	assert.ErrorIs(t, err, chain.ErrContractNotFound)

	_, _, err = c.Deploy(ctx, stranger, "Dummy", nil, nil)
	assert.ErrorIs(t, err, chain.ErrUnknownSigner)

	err = c.View(ctx, stranger, func(*chain.Env) error { return nil })
	assert.ErrorIs(t, err, chain.ErrContractNotFound)
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	addr, _, err := c.Deploy(ctx, c.Signers()[0], "Dummy", nil, nil)
	require.NoError(t, err)

	err = c.View(ctx, addr, func(env *chain.Env) error {
		assert.True(t, env.ReadOnly())
		assert.True(t, env.Sender.IsZero())
		return env.Emit("Nope", nil)
	})
	assert.ErrorIs(t, err, chain.ErrStaticCall)
}

func TestNestedCallSender(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	from := c.Signers()[0]
	callee, _, err := c.Deploy(ctx, from, "Callee", nil, nil)
	require.NoError(t, err)
	caller, _, err := c.Deploy(ctx, from, "Caller", nil, nil)
	require.NoError(t, err)

	rcpt, err := c.Transact(ctx, from, caller, "ping", nil, func(env *chain.Env) error {
		return env.Call(callee, func(sub *chain.Env) error {
			assert.Equal(t, caller, sub.Sender)
			assert.Equal(t, from, sub.Origin)
			assert.Equal(t, callee, sub.Self)
			return sub.Emit("Pong", nil)
		})
	})
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, callee, rcpt.Logs[0].Address)
}

func TestMineAndReload(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	c := testutil.NewChainOnDB(t, db, 1)

	n, err := c.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	_, _, err = c.Deploy(ctx, c.Signers()[0], "Dummy", nil, nil)
	require.NoError(t, err)

	// 重新打开同一个库，块高延续
	again := testutil.NewChainOnDB(t, db, 1)
	assert.Equal(t, uint64(2), again.BlockNumber())

	var blocks []model.Block
	require.NoError(t, db.Order("number").Find(&blocks).Error)
	require.Len(t, blocks, 3)
	assert.Equal(t, blocks[1].Hash, blocks[2].ParentHash)
	assert.Equal(t, 0, blocks[1].TxCount)
	assert.Equal(t, 1, blocks[2].TxCount)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	ch, cancel := c.Subscribe(4)
	defer cancel()

	addr, _, err := c.Deploy(ctx, c.Signers()[0], "Dummy", nil, nil)
	require.NoError(t, err)

	select {
	case rcpt := <-ch:
		require.NotNil(t, rcpt.ContractAddress)
		assert.Equal(t, addr, *rcpt.ContractAddress)
	case <-time.After(time.Second):
		t.Fatal("no receipt delivered")
	}

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestSubscribeDropsForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 1)
	ch, cancel := c.Subscribe(1)
	defer cancel()

	// 不读取通道，交易也不能被阻塞
	done := make(chan error, 1)
	var first chain.Address
	go func() {
		var err error
		if first, _, err = c.Deploy(ctx, c.Signers()[0], "Dummy", nil, nil); err != nil {
			done <- err
			return
		}
		_, _, err = c.Deploy(ctx, c.Signers()[0], "Dummy", nil, nil)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transactions blocked on a full subscriber")
	}

	assert.Equal(t, uint64(2), c.BlockNumber())
	require.Len(t, ch, 1)
	rcpt := <-ch
	require.NotNil(t, rcpt.ContractAddress)
	assert.Equal(t, first, *rcpt.ContractAddress)
}

func TestDeployRejectsOccupiedAddress(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	signers := chain.DeriveSigners(testutil.TestSeed, 1)
	open := func(id int64, network string) *chain.Chain {
		c, err := chain.New(ctx, db, chain.Options{ChainID: id, Network: network, Signers: signers})
		require.NoError(t, err)
		return c
	}
	local := open(testutil.TestChainID, "hardhat")
	other := open(11155111, "sepolia")

	addr, _, err := local.Deploy(ctx, signers[0], "Dummy", nil, nil)
	require.NoError(t, err)

	// 同一库、同一部署者、同一 nonce 推出相同地址
	_, rcpt, err := other.Deploy(ctx, signers[0], "Dummy", nil, nil)
	require.ErrorIs(t, err, chain.ErrAddressInUse)
	assert.Contains(t, err.Error(), addr.Hex())
	assert.Nil(t, rcpt)
	assert.Equal(t, uint64(0), other.BlockNumber())

	nonce, err := repository.NewAccountRepository(db).GetNonce(ctx, 11155111, signers[0].Lower())
	require.NoError(t, err)
	assert.Zero(t, nonce)

	ct, err := local.Contract(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, int64(testutil.TestChainID), ct.ChainID)
}

func TestMiner(t *testing.T) {
	c := testutil.NewChain(t, 1)

	m, err := chain.NewMiner(c, "")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = chain.NewMiner(c, "not a spec")
	assert.Error(t, err)

	m, err = chain.NewMiner(c, "@every 1s")
	require.NoError(t, err)
	m.Start()
	require.Eventually(t, func() bool { return c.BlockNumber() >= 1 }, 5*time.Second, 50*time.Millisecond)
	m.Stop()
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.ChainConfig{
		Network:  "hardhat",
		Networks: map[string]config.NetworkConfig{"hardhat": {ChainID: 31337}},
		Accounts: []string{"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"},
	}
	c, err := chain.FromConfig(ctx, testutil.NewDB(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(31337), c.ChainID())
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", c.Signers()[1].Hex())

	cfg.Accounts = nil
	cfg.Seed, cfg.AccountCount = "seed", 3
	signers, err := chain.SignersFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, chain.DeriveSigners("seed", 3), signers)

	cfg.Accounts = []string{"0xbad"}
	_, err = chain.SignersFromConfig(cfg)
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)

	cfg.Network = "mainnet"
	_, err = chain.FromConfig(ctx, testutil.NewDB(t), cfg)
	assert.Error(t, err)
}
