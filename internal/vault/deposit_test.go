package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/utils"
	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

func TestDepositToVault_MultiApprovesThenDeposits(t *testing.T) {
	chain, h := newTestChain(t)
	c := newTestClient(t, types.VaultVariantMulti)

	d, err := c.DepositToVault(context.Background(), h, "100.5", testUSDC)
	require.NoError(t, err)
	assert.Equal(t, DepositDepositing, d.Stage())
	assert.True(t, d.Approved())
	assert.Equal(t, big.NewInt(100_500_000), d.Amount())

	sent := chain.Sent()
	require.Len(t, sent, 2)

	assert.Equal(t, methodApprove, sent[0].Method)
	assert.Equal(t, testUSDC, sent[0].To)
	assert.Equal(t, testVault, sent[0].Args[0])
	assert.Equal(t, big.NewInt(100_500_000), sent[0].Args[1])
	assert.Equal(t, sent[0].Hash, d.ApproveTx())

	assert.Equal(t, methodDeposit, sent[1].Method)
	assert.Equal(t, testVault, sent[1].To)
	assert.Equal(t, big.NewInt(100_500_000), sent[1].Args[0])
	assert.Equal(t, sent[1].Hash, d.DepositTx())

	receipt, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, d.DepositTx(), receipt.TxHash)
	assert.Equal(t, DepositComplete, d.Stage())
	assert.NoError(t, d.Err())

	// waiting again on a completed saga returns the same receipt
	again, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, receipt.TxHash, again.TxHash)
}

func TestDepositToVault_SingleSkipsApproval(t *testing.T) {
	chain, h := newTestChain(t)
	c := newTestClient(t, types.VaultVariantSingle)

	d, err := c.DepositToVault(context.Background(), h, "1.5", common.Address{})
	require.NoError(t, err)
	assert.False(t, d.Approved())
	assert.Equal(t, common.Hash{}, d.ApproveTx())

	sent := chain.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, methodDeposit, sent[0].Method)
	// converted with the vault's 18 decimals
	assert.Equal(t, units("1500000000000000000"), sent[0].Args[0])
}

func TestDepositToVault_ApprovalRevertStopsBeforeDeposit(t *testing.T) {
	chain, h := newTestChain(t)
	chain.Revert(methodApprove)
	c := newTestClient(t, types.VaultVariantMulti)

	d, err := c.DepositToVault(context.Background(), h, "10", testUSDT)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, wallet.ErrTransactionReverted)

	require.NotNil(t, d)
	assert.Equal(t, DepositFailed, d.Stage())
	assert.False(t, d.Approved())

	sent := chain.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, methodApprove, sent[0].Method)
}

func TestDepositToVault_DepositFailureKeepsApproval(t *testing.T) {
	chain, h := newTestChain(t)
	chain.FailSend(methodDeposit, errors.New("insufficient funds for gas"))
	c := newTestClient(t, types.VaultVariantMulti)

	d, err := c.DepositToVault(context.Background(), h, "10", testUSDT)
	assert.ErrorIs(t, err, ErrTransactionFailed)

	require.NotNil(t, d)
	assert.Equal(t, DepositFailed, d.Stage())
	assert.True(t, d.Approved(), "approval is not rolled back")
	assert.NotEqual(t, common.Hash{}, d.ApproveTx())
	assert.Equal(t, common.Hash{}, d.DepositTx())
	assert.ErrorIs(t, d.Err(), ErrTransactionFailed)

	_, err = d.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestDepositToVault_DepositRevertFailsOnWait(t *testing.T) {
	chain, h := newTestChain(t)
	chain.Revert(methodDeposit)
	c := newTestClient(t, types.VaultVariantMulti)

	d, err := c.DepositToVault(context.Background(), h, "10", testUSDC)
	require.NoError(t, err)

	_, err = d.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Equal(t, DepositFailed, d.Stage())
	assert.True(t, d.Approved())
}

func TestDepositToVault_InvalidAmountSendsNothing(t *testing.T) {
	for _, amount := range []string{"abc", "-1", "1.1234567"} {
		t.Run(amount, func(t *testing.T) {
			chain, h := newTestChain(t)
			c := newTestClient(t, types.VaultVariantMulti)

			d, err := c.DepositToVault(context.Background(), h, amount, testUSDC)
			assert.Nil(t, d)
			assert.Error(t, err)
			assert.Empty(t, chain.Sent())
		})
	}

	chain, h := newTestChain(t)
	c := newTestClient(t, types.VaultVariantMulti)
	_, err := c.DepositToVault(context.Background(), h, "1.1234567", testUSDC)
	assert.ErrorIs(t, err, utils.ErrFractionTooPrecise)
	assert.Empty(t, chain.Sent())
}

func TestDepositToVault_TokenDecimalsFailure(t *testing.T) {
	chain, h := newTestChain(t)
	chain.SetCallError(testUSDC, methodDecimals, errors.New("execution reverted"))
	c := newTestClient(t, types.VaultVariantMulti)

	d, err := c.DepositToVault(context.Background(), h, "1", testUSDC)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	require.NotNil(t, d)
	assert.Equal(t, DepositFailed, d.Stage())
	assert.Empty(t, chain.Sent())
}

func TestDepositStage_String(t *testing.T) {
	tests := []struct {
		stage DepositStage
		want  string
	}{
		{DepositIdle, "idle"},
		{DepositApproving, "approving"},
		{DepositApproved, "approved"},
		{DepositDepositing, "depositing"},
		{DepositComplete, "complete"},
		{DepositFailed, "failed"},
		{DepositStage(42), "unknown(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.String())
	}
}
