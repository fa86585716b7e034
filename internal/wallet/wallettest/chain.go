// Package wallettest provides an in-memory wallet and contract backend for tests.
package wallettest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

// Contract is a deployed contract answering view calls from fixed return values.
type Contract struct {
	ABI     abi.ABI
	Returns map[string][]interface{}
	Errors  map[string]error
}

// Sent is a transaction the wallet was asked to submit.
type Sent struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Method string
	Args   []interface{}
}

// Chain is a fake wallet plus chain. It implements wallet.Provider and wallet.Backend.
type Chain struct {
	mu sync.Mutex

	accounts     []common.Address
	chainID      uint64
	rejectAccess bool
	requestErr   error

	contracts map[common.Address]*Contract
	calls     map[string]int
	sent      []Sent
	sendErr   map[string]error
	revert    map[string]bool
	receipts  map[common.Hash]*ethtypes.Receipt
	nonce     uint64
	closed    bool
}

var (
	_ wallet.Provider = (*Chain)(nil)
	_ wallet.Backend  = (*Chain)(nil)
)

// NewChain creates a chain whose wallet has authorized accounts.
func NewChain(chainID uint64, accounts ...common.Address) *Chain {
	return &Chain{
		accounts:  accounts,
		chainID:   chainID,
		contracts: make(map[common.Address]*Contract),
		calls:     make(map[string]int),
		sendErr:   make(map[string]error),
		revert:    make(map[string]bool),
		receipts:  make(map[common.Hash]*ethtypes.Receipt),
	}
}

// Deploy registers a contract at address.
func (c *Chain) Deploy(address common.Address, contract *Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if contract.Returns == nil {
		contract.Returns = make(map[string][]interface{})
	}
	if contract.Errors == nil {
		contract.Errors = make(map[string]error)
	}
	c.contracts[address] = contract
}

// SetReturn changes the values a view method returns.
func (c *Chain) SetReturn(address common.Address, method string, values ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address].Returns[method] = values
}

// SetCallError makes a view method fail.
func (c *Chain) SetCallError(address common.Address, method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address].Errors[method] = err
}

// SetAccounts replaces the authorized accounts.
func (c *Chain) SetAccounts(accounts ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = accounts
}

// SetChainID switches the wallet to another chain.
func (c *Chain) SetChainID(chainID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chainID = chainID
}

// RejectAccess makes eth_requestAccounts fail as if the user declined the prompt.
func (c *Chain) RejectAccess(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectAccess = reject
}

// FailRequests makes every wallet request fail with err; nil restores normal behavior.
func (c *Chain) FailRequests(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestErr = err
}

// FailSend makes submission of transactions calling method fail.
func (c *Chain) FailSend(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr[method] = err
}

// Revert makes transactions calling method finalize with a failed receipt.
func (c *Chain) Revert(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revert[method] = true
}

// Calls returns how many times a view method was called, across all contracts.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TotalCalls returns the number of view calls made.
func (c *Chain) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// Sent returns the submitted transactions in order.
func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Closed reports whether Close was called.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Request implements wallet.Provider.
func (c *Chain) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.requestErr != nil {
		return fmt.Errorf("%s: %w", method, c.requestErr)
	}

	switch method {
	case wallet.MethodAccounts:
		return assign(result, c.accounts)
	case wallet.MethodRequestAccounts:
		if c.rejectAccess {
			return fmt.Errorf("%s: user rejected the request", method)
		}
		return assign(result, c.accounts)
	case wallet.MethodChainID:
		return assign(result, hexutil.Uint64(c.chainID))
	case wallet.MethodSendTransaction:
		if len(params) != 1 {
			return fmt.Errorf("%s: expected one argument", method)
		}
		args, ok := params[0].(wallet.TransactionArgs)
		if !ok {
			return fmt.Errorf("%s: unexpected argument %T", method, params[0])
		}
		hash, err := c.sendLocked(args)
		if err != nil {
			return err
		}
		return assign(result, hash)
	}
	return fmt.Errorf("the method %s does not exist/is not available", method)
}

// Backend implements wallet.Provider.
func (c *Chain) Backend() wallet.Backend { return c }

// Close implements wallet.Provider.
func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// CodeAt implements bind.ContractCaller.
func (c *Chain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contracts[contract]; !ok {
		return nil, nil
	}
	return []byte{0x60, 0x80}, nil
}

// CallContract implements bind.ContractCaller.
func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.To == nil {
		return nil, errors.New("call without target")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	contract, ok := c.contracts[*call.To]
	if !ok {
		return nil, nil
	}
	if len(call.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	m, err := contract.ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}
	c.calls[m.Name]++

	if err := contract.Errors[m.Name]; err != nil {
		return nil, err
	}
	values, ok := contract.Returns[m.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: no return value for %s", m.Name)
	}
	return m.Outputs.Pack(values...)
}

// TransactionReceipt implements wallet.Backend.
func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) sendLocked(args wallet.TransactionArgs) (common.Hash, error) {
	if args.To == nil {
		return common.Hash{}, errors.New("contract creation is not supported")
	}

	sent := Sent{From: args.From, To: *args.To}
	if contract, ok := c.contracts[*args.To]; ok && len(args.Data) >= 4 {
		if m, err := contract.ABI.MethodById(args.Data[:4]); err == nil {
			sent.Method = m.Name
			if sent.Args, err = m.Inputs.Unpack(args.Data[4:]); err != nil {
				return common.Hash{}, err
			}
		}
	}
	if err := c.sendErr[sent.Method]; err != nil {
		return common.Hash{}, err
	}

	c.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.nonce)
	sent.Hash = crypto.Keccak256Hash(args.From.Bytes(), buf[:])
	c.sent = append(c.sent, sent)

	status := ethtypes.ReceiptStatusSuccessful
	if c.revert[sent.Method] {
		status = ethtypes.ReceiptStatusFailed
	}
	c.receipts[sent.Hash] = &ethtypes.Receipt{
		Status:      status,
		TxHash:      sent.Hash,
		GasUsed:     21000,
		BlockNumber: new(big.Int).SetUint64(c.nonce),
	}
	return sent.Hash, nil
}

func assign(result interface{}, value interface{}) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}
