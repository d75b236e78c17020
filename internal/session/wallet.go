// Package session holds the wallet and contract session state machines the
// front-end drives. Sessions are constructed with their dependencies and
// torn down with Close.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/provider"
	"github.com/Mohsinsiddi/koneko/internal/wallet"
)

const subscriberBuffer = 16

// ConnState is the wallet connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// WalletState is a snapshot of the wallet session.
type WalletState struct {
	Account    string // checksummed, empty unless connected
	ChainID    string // hex, empty unless connected
	BalanceWei *big.Int
	State      ConnState
	// Locked means the wallet exposes no authorized account. It never
	// implies Connected.
	Locked    bool
	Signature string
	LastError string
}

func (s WalletState) clone() WalletState {
	s.BalanceWei = new(big.Int).Set(s.BalanceWei)
	return s
}

func initialWalletState() WalletState {
	return WalletState{BalanceWei: new(big.Int), Locked: true}
}

// WalletSession tracks the connection to a wallet provider.
type WalletSession struct {
	p    provider.Provider
	opts options

	mu      sync.Mutex
	st      WalletState
	subs    []chan WalletState
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	connect singleflight.Group
	epoch   uint64 // bumped by Disconnect; a connect started in an older epoch is void

	now   func() time.Time
	nonce func() string
}

// NewWalletSession creates a disconnected session. p may be nil when no
// wallet is available; Connect then fails with provider.ErrNoProvider.
func NewWalletSession(p provider.Provider, opts ...Option) *WalletSession {
	return &WalletSession{
		p:     p,
		opts:  buildOptions(opts),
		st:    initialWalletState(),
		now:   time.Now,
		nonce: func() string { return uuid.NewString() },
	}
}

// Provider returns the wallet provider, nil when there is none.
func (s *WalletSession) Provider() provider.Provider { return s.p }

// State returns the current snapshot.
func (s *WalletSession) State() WalletState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Subscribe returns a channel of snapshots, delivered after every change.
// A slow reader only misses intermediate snapshots. The channel is closed
// by Close.
func (s *WalletSession) Subscribe() <-chan WalletState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan WalletState, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// publishLocked fans the current state out. Callers hold s.mu.
func (s *WalletSession) publishLocked() {
	snap := s.st.clone()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// full: drop the oldest snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *WalletSession) update(fn func(st *WalletState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
	s.publishLocked()
}

// ---------------------------------------------------------------------------
// lifecycle
// ---------------------------------------------------------------------------

// Start probes eth_accounts to derive Locked and begins applying provider
// events. It does not connect.
func (s *WalletSession) Start(ctx context.Context) error {
	if s.p == nil {
		return provider.ErrNoProvider
	}

	s.mu.Lock()
	if s.closed || s.done != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	locked := true
	accounts, err := s.accounts(ctx, "eth_accounts", s.opts.callTimeout)
	if err != nil {
		s.opts.log.Warn().Err(err).Msg("probing wallet accounts")
	} else {
		locked = len(accounts) == 0
	}
	s.update(func(st *WalletState) { st.Locked = locked && st.State != Connected })

	go s.loop(loopCtx)
	return nil
}

func (s *WalletSession) loop(ctx context.Context) {
	defer close(s.done)
	events := s.p.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

// Close stops event handling and closes subscriber channels.
func (s *WalletSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// transitions
// ---------------------------------------------------------------------------

// Connect requests account access, reads chain and balance, and signs the
// login message when required. Concurrent calls share one attempt.
func (s *WalletSession) Connect(ctx context.Context) error {
	if s.p == nil {
		err := provider.ErrNoProvider
		s.update(func(st *WalletState) {
			*st = initialWalletState()
			st.LastError = UserMessage(err)
		})
		return err
	}

	_, err, shared := s.connect.Do("connect", func() (interface{}, error) {
		return nil, s.doConnect(ctx)
	})
	if shared {
		s.opts.log.Debug().Msg("joined in-flight connect")
	}
	return err
}

func (s *WalletSession) doConnect(ctx context.Context) error {
	s.mu.Lock()
	if s.st.State == Connected {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.st.State = Connecting
	s.st.LastError = ""
	s.publishLocked()
	s.mu.Unlock()

	accounts, err := s.accounts(ctx, "eth_requestAccounts", s.opts.promptTimeout)
	if err != nil {
		return s.fail(err)
	}
	if len(accounts) == 0 {
		return s.fail(ErrNoAccounts)
	}
	account := accounts[0]

	chainID, err := s.chainID(ctx)
	if err != nil {
		return s.fail(err)
	}
	balance, err := s.balance(ctx, account)
	if err != nil {
		return s.fail(err)
	}

	var sig string
	if s.opts.requireSignature {
		if sig, err = s.signLogin(ctx, account); err != nil {
			return s.fail(err)
		}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.opts.log.Info().Str("account", account.Hex()).Msg("wallet disconnected during connect")
		return ErrConnectAborted
	}
	s.st = WalletState{
		Account:    account.Hex(),
		ChainID:    chainID,
		BalanceWei: balance,
		State:      Connected,
		Signature:  sig,
	}
	s.publishLocked()
	s.mu.Unlock()
	s.opts.log.Info().Str("account", account.Hex()).Str("chain", chainID).Msg("wallet connected")
	return nil
}

// fail clears intermediate connect state and records err.
func (s *WalletSession) fail(err error) error {
	s.update(func(st *WalletState) {
		locked := st.Locked
		*st = initialWalletState()
		st.Locked = locked
		st.LastError = UserMessage(err)
	})
	s.opts.log.Warn().Err(err).Msg("wallet connect failed")
	return err
}

// Disconnect resets the session locally. The wallet keeps its own
// authorization.
func (s *WalletSession) Disconnect() {
	s.mu.Lock()
	s.epoch++
	s.st = initialWalletState()
	s.publishLocked()
	s.mu.Unlock()
	s.opts.log.Info().Msg("wallet disconnected")
}

// Refresh re-reads balance and chain ID. It is a no-op when not connected.
func (s *WalletSession) Refresh(ctx context.Context) error {
	st := s.State()
	if st.State != Connected {
		return nil
	}
	account := common.HexToAddress(st.Account)

	chainID, err := s.chainID(ctx)
	if err != nil {
		return s.recordError(err)
	}
	balance, err := s.balance(ctx, account)
	if err != nil {
		return s.recordError(err)
	}

	s.update(func(cur *WalletState) {
		if cur.State != Connected || cur.Account != st.Account {
			return
		}
		cur.ChainID = chainID
		cur.BalanceWei = balance
		cur.LastError = ""
	})
	return nil
}

func (s *WalletSession) recordError(err error) error {
	s.update(func(st *WalletState) { st.LastError = UserMessage(err) })
	s.opts.log.Warn().Err(err).Msg("wallet refresh failed")
	return err
}

// handle applies one provider event.
func (s *WalletSession) handle(ctx context.Context, ev provider.Event) {
	s.opts.log.Debug().Str("event", string(ev.Kind)).Strs("accounts", ev.Accounts).Str("chain", ev.ChainID).Msg("wallet event")

	switch ev.Kind {
	case provider.AccountsChanged:
		if len(ev.Accounts) == 0 {
			s.Disconnect()
			return
		}
		if !common.IsHexAddress(ev.Accounts[0]) {
			return
		}
		account := common.HexToAddress(ev.Accounts[0])

		s.mu.Lock()
		connected := s.st.State == Connected
		s.st.Locked = false
		if connected {
			s.st.Account = account.Hex()
		}
		s.publishLocked()
		s.mu.Unlock()

		if connected {
			_ = s.Refresh(ctx)
		}

	case provider.ChainChanged:
		s.mu.Lock()
		connected := s.st.State == Connected
		if connected {
			s.st.ChainID = ev.ChainID
			s.publishLocked()
		}
		s.mu.Unlock()

		if connected {
			_ = s.Refresh(ctx)
		}
	}
}

// ---------------------------------------------------------------------------
// provider calls
// ---------------------------------------------------------------------------

func (s *WalletSession) accounts(ctx context.Context, method string, timeout time.Duration) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.p.Request(ctx, method)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	out := make([]common.Address, 0, len(list))
	for _, a := range list {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("%s: invalid address %q", method, a)
		}
		out = append(out, common.HexToAddress(a))
	}
	return out, nil
}

func (s *WalletSession) chainID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	raw, err := s.p.Request(ctx, "eth_chainId")
	if err != nil {
		return "", err
	}
	id, err := chain.ParseQuantity(raw)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(id), nil
}

func (s *WalletSession) balance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	raw, err := s.p.Request(ctx, "eth_getBalance", account.Hex(), "latest")
	if err != nil {
		return nil, err
	}
	return chain.ParseQuantity(raw)
}

// LoginMessage builds the text signed on connect.
func LoginMessage(app string, account common.Address, nonce string, at time.Time) string {
	return fmt.Sprintf("%s: sign to login\n\nAddress: %s\nNonce: %s\nTimestamp: %s",
		app, account.Hex(), nonce, at.UTC().Format(time.RFC3339))
}

func (s *WalletSession) signLogin(ctx context.Context, account common.Address) (string, error) {
	msg := LoginMessage(s.opts.appName, account, s.nonce(), s.now())

	ctx, cancel := context.WithTimeout(ctx, s.opts.promptTimeout)
	defer cancel()

	raw, err := s.p.Request(ctx, "personal_sign", hexutil.Encode([]byte(msg)), account.Hex())
	if err != nil {
		return "", err
	}
	var sigHex string
	if err := json.Unmarshal(raw, &sigHex); err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}

	signer, err := wallet.RecoverMessageSigner([]byte(msg), sig)
	if err != nil {
		return "", fmt.Errorf("verifying signature: %w", err)
	}
	if signer != account {
		return "", fmt.Errorf("%w: signed by %s", ErrSignatureMismatch, signer.Hex())
	}
	return sigHex, nil
}
