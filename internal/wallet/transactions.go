package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/coinchange/cdsusd-vault/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrKeystoreInit      = errors.New("keystore initialization failed")
	ErrTxBuildFailed     = errors.New("transaction build failed")
	ErrTxSignFailed      = errors.New("transaction signing failed")
	ErrTxBroadcastFailed = errors.New("transaction broadcast failed")
)

var txLogger = logger.GetForComponent("keystore_wallet")

// KeystoreProvider behaves like an injected wallet backed by a single keystore key. It
// answers account requests itself, signs eth_sendTransaction locally and forwards every
// other request to the node.
type KeystoreProvider struct {
	upstream *rpc.Client
	backend  *ethclient.Client
	address  common.Address
	key      *ecdsa.PrivateKey

	// serializes nonce assignment
	sendMu sync.Mutex
}

// NewKeystoreProvider decrypts the keystore file and dials the node endpoint.
func NewKeystoreProvider(ctx context.Context, endpoint, keystorePath, passphrase string) (*KeystoreProvider, error) {
	if endpoint == "" {
		return nil, ErrNoWalletDetected
	}

	keyJSON, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, errors.Join(ErrKeystoreInit, fmt.Errorf("failed to read keystore %s: %w", keystorePath, err))
	}

	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, errors.Join(ErrKeystoreInit, fmt.Errorf("failed to decrypt keystore: %w", err))
	}

	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Join(ErrRPCConnectionFailed, fmt.Errorf("failed to dial %s: %w", endpoint, err))
	}

	p := NewKeystoreProviderWithClient(client, key.PrivateKey)

	txLogger.Info().
		Str("address", p.address.Hex()).
		Str("endpoint", endpoint).
		Msg("Keystore wallet initialized")

	return p, nil
}

// NewKeystoreProviderWithClient builds a keystore wallet over an existing RPC client.
func NewKeystoreProviderWithClient(client *rpc.Client, key *ecdsa.PrivateKey) *KeystoreProvider {
	return &KeystoreProvider{
		upstream: client,
		backend:  ethclient.NewClient(client),
		address:  crypto.PubkeyToAddress(key.PublicKey),
		key:      key,
	}
}

// Address returns the wallet's only account.
func (p *KeystoreProvider) Address() common.Address {
	return p.address
}

// Request implements Provider.
func (p *KeystoreProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	switch method {
	case MethodAccounts, MethodRequestAccounts:
		return assignResult(result, []common.Address{p.address})

	case MethodSendTransaction:
		if len(params) != 1 {
			return fmt.Errorf("%w: %s expects one argument, got %d", ErrTxBuildFailed, method, len(params))
		}
		args, ok := params[0].(TransactionArgs)
		if !ok {
			return fmt.Errorf("%w: unexpected %s argument %T", ErrTxBuildFailed, method, params[0])
		}
		hash, err := p.signAndSend(ctx, args)
		if err != nil {
			return err
		}
		return assignResult(result, hash)

	default:
		if err := p.upstream.CallContext(ctx, result, method, params...); err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		return nil
	}
}

// Backend implements Provider.
func (p *KeystoreProvider) Backend() Backend {
	return p.backend
}

// Close implements Provider.
func (p *KeystoreProvider) Close() {
	p.upstream.Close()
}

func (p *KeystoreProvider) signAndSend(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From != p.address {
		return common.Hash{}, fmt.Errorf("%w: unknown account %s", ErrTxSignFailed, args.From.Hex())
	}
	if args.To == nil {
		return common.Hash{}, fmt.Errorf("%w: contract creation is not supported", ErrTxBuildFailed)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, errors.Join(ErrTxBuildFailed, fmt.Errorf("failed to get chain id: %w", err))
	}

	tx, err := p.buildTx(ctx, chainID, args)
	if err != nil {
		return common.Hash{}, errors.Join(ErrTxBuildFailed, err)
	}

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return common.Hash{}, errors.Join(ErrTxSignFailed, err)
	}

	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Join(ErrTxBroadcastFailed, err)
	}

	txLogger.Info().
		Str("txHash", signed.Hash().Hex()).
		Uint64("nonce", signed.Nonce()).
		Uint64("gas", signed.Gas()).
		Msg("Transaction signed and broadcast")

	return signed.Hash(), nil
}

func (p *KeystoreProvider) buildTx(ctx context.Context, chainID *big.Int, args TransactionArgs) (*ethtypes.Transaction, error) {
	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	gas := uint64(0)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		gas, err = p.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  p.address,
			To:    args.To,
			Value: value,
			Data:  args.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("gas estimation failed: %w", err)
		}
	}

	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := p.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       args.To,
			Value:    value,
			Data:     args.Data,
		}), nil
	}

	tip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        args.To,
		Value:     value,
		Data:      args.Data,
	}), nil
}
