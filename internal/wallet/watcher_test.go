package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memProvider is a Provider whose account and chain can be switched by the test.
type memProvider struct {
	mu       sync.Mutex
	accounts []common.Address
	chainID  uint64
}

func (m *memProvider) set(accounts []common.Address, chainID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = accounts
	m.chainID = chainID
}

func (m *memProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch method {
	case MethodAccounts, MethodRequestAccounts:
		return assignResult(result, m.accounts)
	case MethodChainID:
		return assignResult(result, hexutil.Uint64(m.chainID))
	}
	return nil
}

func (m *memProvider) Backend() Backend { return nil }

func (m *memProvider) Close() {}

func TestWatcher_EmitsChanges(t *testing.T) {
	p := &memProvider{accounts: []common.Address{testAccount}, chainID: 1}
	w := NewWatcher(p, 5*time.Millisecond)

	events := make(chan Event, 8)
	unsubscribe := w.Subscribe(context.Background(), []common.Address{testAccount}, 1, func(_ context.Context, ev Event) {
		events <- ev
	})
	defer unsubscribe()

	other := common.HexToAddress("0x0000000000000000000000000000000000000002")
	p.set([]common.Address{other}, 1)

	select {
	case ev := <-events:
		assert.Equal(t, EventAccountsChanged, ev.Kind)
		assert.Equal(t, []common.Address{other}, ev.Accounts)
	case <-time.After(time.Second):
		t.Fatal("accountsChanged not observed")
	}

	p.set([]common.Address{other}, 137)

	select {
	case ev := <-events:
		assert.Equal(t, EventChainChanged, ev.Kind)
		assert.Equal(t, uint64(137), ev.ChainID)
	case <-time.After(time.Second):
		t.Fatal("chainChanged not observed")
	}

	p.set(nil, 137)

	select {
	case ev := <-events:
		assert.Equal(t, EventAccountsChanged, ev.Kind)
		assert.Empty(t, ev.Accounts)
	case <-time.After(time.Second):
		t.Fatal("account disconnect not observed")
	}
}

func TestWatcher_UnsubscribeStopsDelivery(t *testing.T) {
	p := &memProvider{accounts: []common.Address{testAccount}, chainID: 1}
	w := NewWatcher(p, 5*time.Millisecond)

	var mu sync.Mutex
	calls := 0
	var unsubscribe func()
	unsubscribe = w.Subscribe(context.Background(), []common.Address{testAccount}, 1, func(_ context.Context, ev Event) {
		mu.Lock()
		calls++
		mu.Unlock()
		unsubscribe()
	})

	p.set(nil, 1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	p.set([]common.Address{testAccount}, 5)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)

	unsubscribe()
}

func TestSameAccounts(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	assert.True(t, sameAccounts(nil, []common.Address{}))
	assert.True(t, sameAccounts([]common.Address{a, b}, []common.Address{a, b}))
	assert.False(t, sameAccounts([]common.Address{a, b}, []common.Address{b, a}))
	assert.False(t, sameAccounts([]common.Address{a}, nil))
}
