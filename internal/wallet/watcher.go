package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a wallet notification.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

// Event is a wallet notification. Accounts is set for accountsChanged, ChainID for
// chainChanged.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  uint64
}

// EventHandler receives wallet notifications. Calls are made from a single goroutine per
// subscription, in the order changes were observed.
type EventHandler func(ctx context.Context, ev Event)

// Watcher turns a request/response wallet into accountsChanged/chainChanged notifications
// by polling eth_accounts and eth_chainId.
type Watcher struct {
	provider Provider
	interval time.Duration
}

// NewWatcher creates a watcher polling at interval.
func NewWatcher(provider Provider, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{provider: provider, interval: interval}
}

// Subscribe starts polling with the given baseline and calls handler on every observed
// change. The returned function unregisters the handler; it is safe to call from inside
// the handler and more than once.
func (w *Watcher) Subscribe(ctx context.Context, accounts []common.Address, chainID uint64, handler EventHandler) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once

	go w.run(ctx, accounts, chainID, handler)

	walletLogger.Debug().
		Dur("interval", w.interval).
		Uint64("chainId", chainID).
		Msg("Wallet event subscription started")

	return func() {
		once.Do(func() {
			cancel()
			walletLogger.Debug().Msg("Wallet event subscription stopped")
		})
	}
}

func (w *Watcher) run(ctx context.Context, accounts []common.Address, chainID uint64, handler EventHandler) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := Accounts(ctx, w.provider)
		if err != nil {
			if ctx.Err() == nil {
				walletLogger.Warn().Err(err).Msg("Polling wallet accounts failed")
			}
			continue
		}
		if !sameAccounts(accounts, current) {
			accounts = current
			handler(ctx, Event{Kind: EventAccountsChanged, Accounts: current})
		}
		if ctx.Err() != nil {
			return
		}

		currentChain, err := ChainID(ctx, w.provider)
		if err != nil {
			if ctx.Err() == nil {
				walletLogger.Warn().Err(err).Msg("Polling wallet chain id failed")
			}
			continue
		}
		if currentChain != chainID {
			chainID = currentChain
			handler(ctx, Event{Kind: EventChainChanged, ChainID: currentChain})
		}
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
