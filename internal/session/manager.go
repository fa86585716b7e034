// Package session owns the wallet session lifecycle and the cached vault data that
// presentation consumers read.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/coinchange/cdsusd-vault/internal/logger"
	"github.com/coinchange/cdsusd-vault/internal/metrics"
	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/vault"
	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoWalletDetected           = errors.New("no wallet detected")
	ErrConnectionRejectedOrFailed = errors.New("wallet connection rejected or failed")
	ErrConnectInProgress          = errors.New("wallet connection already in progress")
	ErrConnectAborted             = errors.New("session was torn down while connecting")
	ErrRefreshFailed              = errors.New("vault data refresh failed")
)

// User-visible notification texts.
const (
	msgNoWallet      = "No wallet detected. Please install a wallet to continue."
	msgConnected     = "Wallet connected successfully!"
	msgConnectFailed = "Failed to connect wallet. Please try again."
	msgDisconnected  = "Wallet disconnected"
	msgRefreshFailed = "Failed to load vault data. Please try again later."
)

var sessionLogger = logger.GetForComponent("session_manager")

// Notifier receives user-visible notifications. *notify.Hub satisfies it.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// SnapshotRecorder persists the result of a successful refresh.
type SnapshotRecorder func(ctx context.Context, snapshot types.VaultSnapshot) error

// Option configures a Manager.
type Option func(*Manager)

// WithSnapshotRecorder stores a snapshot after every applied refresh.
func WithSnapshotRecorder(rec SnapshotRecorder) Option {
	return func(m *Manager) { m.recorder = rec }
}

// WithPollInterval sets how often the wallet is polled for account and chain changes.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithTxPollInterval sets the receipt polling interval of the session's wallet handle.
func WithTxPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.txPollInterval = d }
}

// WithClock replaces time.Now, used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the single owner of a wallet session. All mutations, whether from explicit
// calls or wallet events, go through its mutex so they apply in order.
type Manager struct {
	provider wallet.Provider
	gateway  vault.Gateway
	notifier Notifier
	watcher  *wallet.Watcher
	recorder SnapshotRecorder
	now      func() time.Time

	pollInterval   time.Duration
	txPollInterval time.Duration

	mu          sync.Mutex
	state       types.SessionState
	account     common.Address
	chainID     uint64
	handle      *wallet.Handle
	metadata    *types.VaultMetadata
	userData    *types.UserVaultData
	generation  uint64
	refreshSeq  uint64
	appliedSeq  uint64
	unsubscribe func()
}

// NewManager creates a manager in the Uninitialized state. A nil provider means no
// wallet is available in this environment; Connect then fails with ErrNoWalletDetected.
func NewManager(provider wallet.Provider, gateway vault.Gateway, notifier Notifier, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		gateway:  gateway,
		notifier: notifier,
		now:      time.Now,
		state:    types.SessionUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	if provider != nil {
		m.watcher = wallet.NewWatcher(provider, m.pollInterval)
	}
	return m
}

// Connect requests account access, commits the session and performs one refresh for
// the account just obtained.
func (m *Manager) Connect(ctx context.Context) error {
	if m.provider == nil {
		sessionLogger.Warn().Msg("Connect requested but no wallet is available")
		metrics.RecordConnect("no_wallet")
		m.notifier.Error(msgNoWallet)
		return ErrNoWalletDetected
	}

	m.mu.Lock()
	switch m.state {
	case types.SessionConnecting:
		m.mu.Unlock()
		metrics.RecordConnect("in_progress")
		return ErrConnectInProgress
	case types.SessionConnected:
		account := m.account
		m.mu.Unlock()
		sessionLogger.Debug().Str("account", account.Hex()).Msg("Connect ignored, already connected")
		return nil
	}
	m.state = types.SessionConnecting
	gen := m.generation
	m.mu.Unlock()

	accounts, err := wallet.RequestAccounts(ctx, m.provider)
	var chainID uint64
	if err == nil {
		chainID, err = wallet.ChainID(ctx, m.provider)
	}
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.state = types.SessionDisconnected
		}
		m.mu.Unlock()

		sessionLogger.Error().Err(err).Msg("Wallet connection failed")
		metrics.RecordConnect("failed")
		m.notifier.Error(msgConnectFailed)
		return errors.Join(ErrConnectionRejectedOrFailed, err)
	}
	account := accounts[0]

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		sessionLogger.Warn().Str("account", account.Hex()).Msg("Connect result discarded, session was torn down")
		metrics.RecordConnect("aborted")
		return errors.Join(ErrConnectionRejectedOrFailed, ErrConnectAborted)
	}
	m.generation++
	m.state = types.SessionConnected
	m.account = account
	m.chainID = chainID
	m.handle = wallet.NewHandle(m.provider, account, chainID, wallet.WithPollInterval(m.txPollInterval))
	m.metadata = nil
	m.userData = nil
	m.unsubscribe = m.watcher.Subscribe(context.WithoutCancel(ctx), accounts, chainID, m.handleEvent)
	h := m.handle
	m.mu.Unlock()

	sessionLogger.Info().
		Str("account", account.Hex()).
		Uint64("chainId", chainID).
		Msg("Wallet connected")
	metrics.RecordConnect("success")
	metrics.SetConnected(true)
	m.notifier.Success(msgConnected)

	if err := m.refresh(ctx, h, account); err != nil {
		sessionLogger.Warn().Err(err).Msg("Initial vault data refresh failed")
	}
	return nil
}

// Disconnect clears the session and cached data. It never fails.
func (m *Manager) Disconnect() {
	m.teardown()
	sessionLogger.Info().Msg("Wallet disconnected")
	m.notifier.Info(msgDisconnected)
}

// Close tears the session down without notifying.
func (m *Manager) Close() {
	m.teardown()
}

func (m *Manager) teardown() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.generation++
	m.state = types.SessionDisconnected
	m.account = common.Address{}
	m.chainID = 0
	m.handle = nil
	m.metadata = nil
	m.userData = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	metrics.SetConnected(false)
}

// HandleAccountsChanged reacts to a change in the wallet's authorized accounts.
func (m *Manager) HandleAccountsChanged(ctx context.Context, accounts []common.Address) {
	metrics.RecordWalletEvent(string(wallet.EventAccountsChanged))

	if len(accounts) == 0 {
		sessionLogger.Info().Msg("Wallet reported no accounts, disconnecting")
		m.Disconnect()
		return
	}

	m.mu.Lock()
	if m.state != types.SessionConnected {
		m.mu.Unlock()
		return
	}
	if accounts[0] == m.account {
		m.mu.Unlock()
		sessionLogger.Debug().Str("account", m.account.Hex()).Msg("Accounts changed to the active account, ignoring")
		return
	}
	previous := m.account
	m.generation++
	m.account = accounts[0]
	m.handle = m.handle.WithAccount(accounts[0])
	m.userData = nil
	h := m.handle
	m.mu.Unlock()

	sessionLogger.Info().
		Str("from", previous.Hex()).
		Str("to", accounts[0].Hex()).
		Msg("Active account changed")

	if err := m.refresh(ctx, h, accounts[0]); err != nil {
		sessionLogger.Warn().Err(err).Msg("Refresh after account change failed")
	}
}

// HandleChainChanged reacts to a chain switch with a full reload.
func (m *Manager) HandleChainChanged(ctx context.Context, chainID uint64) {
	metrics.RecordWalletEvent(string(wallet.EventChainChanged))
	sessionLogger.Info().Uint64("chainId", chainID).Msg("Chain changed, reloading session")

	if err := m.Reload(ctx); err != nil {
		sessionLogger.Warn().Err(err).Msg("Session reload after chain change failed")
	}
}

// Reload tears the session down silently and runs the startup restore sequence again.
func (m *Manager) Reload(ctx context.Context) error {
	metrics.RecordReload()
	// Unsubscribing cancels the context of the wallet event that may have led here.
	ctx = context.WithoutCancel(ctx)
	m.teardown()
	return m.Restore(ctx)
}

// Restore reconnects without prompting when the wallet already has an authorized
// account. It is a silent no-op otherwise.
func (m *Manager) Restore(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}

	accounts, err := wallet.Accounts(ctx, m.provider)
	if err != nil {
		sessionLogger.Warn().Err(err).Msg("Checking authorized accounts failed")
		return nil
	}
	if len(accounts) == 0 {
		sessionLogger.Debug().Msg("No authorized accounts, staying disconnected")
		m.mu.Lock()
		if m.state == types.SessionUninitialized {
			m.state = types.SessionDisconnected
		}
		m.mu.Unlock()
		return nil
	}
	return m.Connect(ctx)
}

// Refresh reloads vault metadata and user data for the active account. It is a no-op
// when no session is connected.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.state != types.SessionConnected || m.handle == nil {
		m.mu.Unlock()
		return nil
	}
	h, account := m.handle, m.account
	m.mu.Unlock()

	return m.refresh(ctx, h, account)
}

func (m *Manager) refresh(ctx context.Context, h *wallet.Handle, account common.Address) error {
	m.mu.Lock()
	m.refreshSeq++
	seq, gen := m.refreshSeq, m.generation
	m.mu.Unlock()

	start := time.Now()

	var (
		meta *types.VaultMetadata
		user *types.UserVaultData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { meta, err = m.gateway.GetVaultMetadata(gctx, h); return })
	g.Go(func() (err error) { user, err = m.gateway.GetUserVaultData(gctx, h, account); return })
	err := g.Wait()

	m.mu.Lock()
	stale := gen != m.generation || seq <= m.appliedSeq
	if !stale && err == nil {
		m.appliedSeq = seq
		m.metadata = meta
		m.userData = user
	}
	chainID := m.chainID
	m.mu.Unlock()

	if stale {
		sessionLogger.Debug().
			Uint64("seq", seq).
			Str("account", account.Hex()).
			Msg("Discarding stale refresh result")
		metrics.RecordStaleRefresh()
		return nil
	}

	if err != nil {
		sessionLogger.Error().Err(err).Str("account", account.Hex()).Msg("Vault data refresh failed")
		metrics.RecordRefresh("failed", time.Since(start).Seconds(), m.now().Unix())
		m.notifier.Error(msgRefreshFailed)
		return errors.Join(ErrRefreshFailed, err)
	}

	sessionLogger.Debug().
		Uint64("seq", seq).
		Str("account", account.Hex()).
		Dur("took", time.Since(start)).
		Msg("Vault data refreshed")
	metrics.RecordRefresh("success", time.Since(start).Seconds(), m.now().Unix())

	m.record(ctx, account, chainID, meta, user)
	return nil
}

func (m *Manager) record(ctx context.Context, account common.Address, chainID uint64, meta *types.VaultMetadata, user *types.UserVaultData) {
	if m.recorder == nil {
		return
	}

	now := m.now().UTC()
	stats, err := vault.BuildStats(meta, user, now)
	if err != nil {
		sessionLogger.Warn().Err(err).Msg("Cannot derive snapshot values")
		return
	}

	snapshot := types.VaultSnapshot{
		Timestamp:     now,
		Account:       account.Hex(),
		ChainID:       chainID,
		TVL:           stats.TVL,
		APY:           meta.APY,
		PricePerShare: meta.PricePerShare,
		TotalSupply:   meta.TotalSupply,
	}
	if err := m.recorder(ctx, snapshot); err != nil {
		sessionLogger.Warn().Err(err).Msg("Failed to record vault snapshot")
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev wallet.Event) {
	switch ev.Kind {
	case wallet.EventAccountsChanged:
		m.HandleAccountsChanged(ctx, ev.Accounts)
	case wallet.EventChainChanged:
		m.HandleChainChanged(ctx, ev.ChainID)
	}
}

// Snapshot returns a copy of the session flags and cached data. Metadata and UserData
// are nil unless connected.
func (m *Manager) Snapshot() types.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := types.SessionView{
		State:      m.state,
		Connected:  m.state == types.SessionConnected,
		Connecting: m.state == types.SessionConnecting,
	}
	if !view.Connected {
		return view
	}

	view.Account = m.account.Hex()
	view.ChainID = m.chainID
	if m.metadata != nil {
		meta := *m.metadata
		view.Metadata = &meta
	}
	if m.userData != nil {
		user := *m.userData
		view.UserData = &user
	}
	return view
}

// Handle returns the wallet handle of the connected session, or nil.
func (m *Manager) Handle() *wallet.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != types.SessionConnected {
		return nil
	}
	return m.handle
}
