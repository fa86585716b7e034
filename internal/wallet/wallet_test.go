package wallet

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAccount = common.HexToAddress("0xABC0000000000000000000000000000000000001")
	testVault   = common.HexToAddress("0xA5269A8e31B93Ff27B887B56720A25F844db0529")
)

// fakeEth is an in-process JSON-RPC "eth" namespace.
type fakeEth struct {
	mu sync.Mutex

	accounts     []common.Address
	rejectAccess bool
	chainID      int64
	baseFee      *big.Int

	callResult   []byte
	sent         []TransactionArgs
	raw          []*ethtypes.Transaction
	receiptAfter int // receipt lookups returning null before the receipt appears
	receiptCalls int
	status       uint64
}

func (s *fakeEth) Accounts() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts
}

func (s *fakeEth) RequestAccounts() ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectAccess {
		return nil, errors.New("User rejected the request.")
	}
	return s.accounts, nil
}

func (s *fakeEth) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(s.chainID))
}

func (s *fakeEth) Call(args map[string]interface{}, block *string) hexutil.Bytes {
	return s.callResult
}

func (s *fakeEth) GetCode(addr common.Address, block *string) hexutil.Bytes {
	return hexutil.Bytes{0x60, 0x80}
}

func (s *fakeEth) SendTransaction(args TransactionArgs) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, args)
	return common.BytesToHash([]byte{byte(len(s.sent))}), nil
}

func (s *fakeEth) GetTransactionReceipt(hash common.Hash) (*ethtypes.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptCalls++
	if s.receiptCalls <= s.receiptAfter {
		return nil, nil
	}
	return &ethtypes.Receipt{
		Status:            s.status,
		CumulativeGasUsed: 21000,
		GasUsed:           21000,
		Logs:              []*ethtypes.Log{},
		TxHash:            hash,
	}, nil
}

func (s *fakeEth) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	return 7
}

func (s *fakeEth) EstimateGas(args map[string]interface{}, block *string) hexutil.Uint64 {
	return 50000
}

func (s *fakeEth) MaxPriorityFeePerGas() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1_000_000_000))
}

func (s *fakeEth) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(20_000_000_000))
}

func (s *fakeEth) GetBlockByNumber(number string, full bool) (*ethtypes.Header, error) {
	return &ethtypes.Header{
		Number:     big.NewInt(100),
		Difficulty: big.NewInt(0),
		GasLimit:   30_000_000,
		Extra:      []byte{},
		BaseFee:    s.baseFee,
	}, nil
}

func (s *fakeEth) SendRawTransaction(data hexutil.Bytes) (common.Hash, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return common.Hash{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, tx)
	return tx.Hash(), nil
}

func newInProcClient(t *testing.T, svc *fakeEth) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func TestRPCProvider_AccountsAndChain(t *testing.T) {
	svc := &fakeEth{accounts: []common.Address{testAccount}, chainID: 1}
	p := NewRPCProvider("inproc", newInProcClient(t, svc))
	ctx := context.Background()

	accounts, err := Accounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testAccount}, accounts)

	accounts, err = RequestAccounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, testAccount, accounts[0])

	chainID, err := ChainID(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), chainID)
}

func TestRPCProvider_RequestAccountsRejected(t *testing.T) {
	svc := &fakeEth{accounts: []common.Address{testAccount}, rejectAccess: true, chainID: 1}
	p := NewRPCProvider("inproc", newInProcClient(t, svc))

	_, err := RequestAccounts(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User rejected")
}

func TestRPCProvider_NoAccounts(t *testing.T) {
	svc := &fakeEth{chainID: 1}
	p := NewRPCProvider("inproc", newInProcClient(t, svc))

	_, err := RequestAccounts(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestDialRPCProvider_NoEndpoint(t *testing.T) {
	_, err := DialRPCProvider(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoWalletDetected)
}

func TestHandle_CallAndSend(t *testing.T) {
	svc := &fakeEth{chainID: 1, callResult: common.LeftPadBytes([]byte{6}, 32), status: ethtypes.ReceiptStatusSuccessful, receiptAfter: 2}
	p := NewRPCProvider("inproc", newInProcClient(t, svc))
	h := NewHandle(p, testAccount, 1, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	out, err := h.CallContract(ctx, ethereum.CallMsg{To: &testVault}, nil)
	require.NoError(t, err)
	assert.Equal(t, svc.callResult, out)

	hash, err := h.SendTransaction(ctx, testVault, []byte{0xde, 0xad})
	require.NoError(t, err)
	require.Len(t, svc.sent, 1)
	assert.Equal(t, testAccount, svc.sent[0].From)
	assert.Equal(t, testVault, *svc.sent[0].To)
	assert.Equal(t, hexutil.Bytes{0xde, 0xad}, svc.sent[0].Data)

	receipt, err := h.WaitMined(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
	assert.Equal(t, 3, svc.receiptCalls)
}

func TestHandle_WaitMinedReverted(t *testing.T) {
	svc := &fakeEth{chainID: 1, status: ethtypes.ReceiptStatusFailed}
	p := NewRPCProvider("inproc", newInProcClient(t, svc))
	h := NewHandle(p, testAccount, 1, WithPollInterval(5*time.Millisecond))

	_, err := h.WaitMined(context.Background(), common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrTransactionReverted)
}

func TestHandle_WaitMinedContextCancelled(t *testing.T) {
	svc := &fakeEth{chainID: 1, receiptAfter: 1 << 30}
	p := NewRPCProvider("inproc", newInProcClient(t, svc))
	h := NewHandle(p, testAccount, 1, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := h.WaitMined(ctx, common.HexToHash("0x01"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle_WithAccount(t *testing.T) {
	h := NewHandle(nil, testAccount, 5)
	other := common.HexToAddress("0x0000000000000000000000000000000000000002")

	moved := h.WithAccount(other)
	assert.Equal(t, other, moved.Account())
	assert.Equal(t, uint64(5), moved.ChainID())
	assert.Equal(t, testAccount, h.Account())
}

func TestKeystoreProvider_SignsLocally(t *testing.T) {
	for _, tc := range []struct {
		name    string
		baseFee *big.Int
		txType  uint8
	}{
		{"london", big.NewInt(10_000_000_000), ethtypes.DynamicFeeTxType},
		{"legacy", nil, ethtypes.LegacyTxType},
	} {
		t.Run(tc.name, func(t *testing.T) {
			key, err := crypto.GenerateKey()
			require.NoError(t, err)

			svc := &fakeEth{chainID: 11155111, baseFee: tc.baseFee}
			p := NewKeystoreProviderWithClient(newInProcClient(t, svc), key)
			ctx := context.Background()

			accounts, err := RequestAccounts(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, []common.Address{p.Address()}, accounts)

			h := NewHandle(p, p.Address(), 11155111)
			hash, err := h.SendTransaction(ctx, testVault, []byte{0x01, 0x02})
			require.NoError(t, err)

			require.Len(t, svc.raw, 1)
			tx := svc.raw[0]
			assert.Equal(t, hash, tx.Hash())
			assert.Equal(t, tc.txType, tx.Type())
			assert.Equal(t, uint64(7), tx.Nonce())
			assert.Equal(t, uint64(50000), tx.Gas())
			assert.Equal(t, testVault, *tx.To())

			sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(11155111)), tx)
			require.NoError(t, err)
			assert.Equal(t, p.Address(), sender)
		})
	}
}

func TestKeystoreProvider_RejectsForeignAccount(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	svc := &fakeEth{chainID: 1, baseFee: big.NewInt(1)}
	p := NewKeystoreProviderWithClient(newInProcClient(t, svc), key)

	h := NewHandle(p, testAccount, 1)
	_, err = h.SendTransaction(context.Background(), testVault, nil)
	assert.ErrorIs(t, err, ErrTxSignFailed)
	assert.Empty(t, svc.raw)
}

func TestNewKeystoreProvider_DecryptsFile(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(pk.PublicKey),
		PrivateKey: pk,
	}
	keyJSON, err := keystore.EncryptKey(key, "secret", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, keyJSON, 0o600))

	p, err := NewKeystoreProvider(context.Background(), "http://127.0.0.1:8545", path, "secret")
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, key.Address, p.Address())

	_, err = NewKeystoreProvider(context.Background(), "http://127.0.0.1:8545", path, "wrong")
	assert.ErrorIs(t, err, ErrKeystoreInit)
}
