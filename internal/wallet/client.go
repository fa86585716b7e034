package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/coinchange/cdsusd-vault/internal/logger"
)

// Wallet request methods, named after the EIP-1193 provider API.
const (
	MethodAccounts        = "eth_accounts"
	MethodRequestAccounts = "eth_requestAccounts"
	MethodChainID         = "eth_chainId"
	MethodSendTransaction = "eth_sendTransaction"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoWalletDetected    = errors.New("no ethereum wallet detected")
	ErrRPCConnectionFailed = errors.New("RPC connection failed")
	ErrNoAccounts          = errors.New("wallet returned no accounts")
	ErrInvalidResponse     = errors.New("wallet response is invalid")
)

var walletLogger = logger.GetForComponent("wallet_client")

// Backend is the read side of a wallet: contract calls and receipt lookups.
type Backend interface {
	bind.ContractCaller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Provider is the host wallet capability. Request follows the request/response shape of
// an injected wallet; Backend serves reads against the same chain.
type Provider interface {
	Request(ctx context.Context, result interface{}, method string, params ...interface{}) error
	Backend() Backend
	Close()
}

// TransactionArgs is the eth_sendTransaction payload. The wallet fills nonce, gas and fees.
type TransactionArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// RPCProvider forwards every request to a JSON-RPC wallet endpoint.
type RPCProvider struct {
	endpoint string
	client   *rpc.Client
	backend  *ethclient.Client
}

// DialRPCProvider connects to the wallet endpoint. An empty endpoint means no wallet is
// present in this environment.
func DialRPCProvider(ctx context.Context, endpoint string) (*RPCProvider, error) {
	if endpoint == "" {
		return nil, ErrNoWalletDetected
	}

	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Join(ErrRPCConnectionFailed, fmt.Errorf("failed to dial %s: %w", endpoint, err))
	}

	walletLogger.Info().
		Str("endpoint", endpoint).
		Msg("Wallet RPC provider connected")

	return NewRPCProvider(endpoint, client), nil
}

// NewRPCProvider wraps an existing RPC client.
func NewRPCProvider(endpoint string, client *rpc.Client) *RPCProvider {
	return &RPCProvider{
		endpoint: endpoint,
		client:   client,
		backend:  ethclient.NewClient(client),
	}
}

// Request issues a raw wallet request.
func (p *RPCProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	walletLogger.Debug().Str("method", method).Msg("Wallet request")
	if err := p.client.CallContext(ctx, result, method, params...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Backend returns the ethclient bound to the wallet endpoint.
func (p *RPCProvider) Backend() Backend {
	return p.backend
}

// Close closes the RPC connection.
func (p *RPCProvider) Close() {
	p.client.Close()
	walletLogger.Debug().Str("endpoint", p.endpoint).Msg("Wallet RPC provider closed")
}

// Accounts silently queries already-authorized accounts.
func Accounts(ctx context.Context, p Provider) ([]common.Address, error) {
	return requestAccounts(ctx, p, MethodAccounts)
}

// RequestAccounts asks the wallet for account access; the wallet may prompt the user.
func RequestAccounts(ctx context.Context, p Provider) ([]common.Address, error) {
	accounts, err := requestAccounts(ctx, p, MethodRequestAccounts)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

// ChainID reads the wallet's current chain identifier.
func ChainID(ctx context.Context, p Provider) (uint64, error) {
	var chainID hexutil.Big
	if err := p.Request(ctx, &chainID, MethodChainID); err != nil {
		return 0, err
	}
	id := (*big.Int)(&chainID)
	if !id.IsUint64() {
		return 0, fmt.Errorf("%w: chain id %s", ErrInvalidResponse, id)
	}
	return id.Uint64(), nil
}

func requestAccounts(ctx context.Context, p Provider, method string) ([]common.Address, error) {
	var raw []string
	if err := p.Request(ctx, &raw, method); err != nil {
		return nil, err
	}

	accounts := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("%w: account %q", ErrInvalidResponse, a)
		}
		accounts = append(accounts, common.HexToAddress(a))
	}
	return accounts, nil
}

// assignResult copies value into a caller-supplied result pointer the way a JSON-RPC
// response would be decoded.
func assignResult(result interface{}, value interface{}) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}
