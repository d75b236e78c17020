package session

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
	"github.com/Mohsinsiddi/koneko/internal/contract"
	"github.com/Mohsinsiddi/koneko/internal/ledger"
)

// ContractState is the contract session lifecycle state.
type ContractState int

const (
	Uninitialized ContractState = iota
	Initializing
	Ready
)

func (s ContractState) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return "uninitialized"
}

// ContractSnapshot is a copy of the contract session state.
type ContractSnapshot struct {
	State        ContractState
	Account      string
	MintFeeWei   *big.Int
	TotalSupply  *big.Int
	CallerTokens []contract.OwnedToken
	Paused       bool
	MaxBatchSize uint64
	MintInFlight bool
	LastError    string
}

func (s ContractSnapshot) clone() ContractSnapshot {
	s.MintFeeWei = new(big.Int).Set(s.MintFeeWei)
	s.TotalSupply = new(big.Int).Set(s.TotalSupply)
	s.CallerTokens = append([]contract.OwnedToken(nil), s.CallerTokens...)
	return s
}

func emptySnapshot() ContractSnapshot {
	return ContractSnapshot{MintFeeWei: new(big.Int), TotalSupply: new(big.Int)}
}

// chainData is one combined read of both contracts.
type chainData struct {
	fee      *big.Int
	supply   *big.Int
	tokens   []contract.OwnedToken
	paused   bool
	maxBatch uint64
}

// ContractSession binds the gateway to the connected wallet account.
type ContractSession struct {
	wallet     *WalletSession
	token      common.Address
	controller common.Address
	opts       options

	mu  sync.Mutex
	st  ContractSnapshot
	gw  *contract.Gateway
	gen uint64 // bumped on every reset; stale results are dropped

	refresh singleflight.Group

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewContractSession creates an uninitialized session over ws's provider.
func NewContractSession(ws *WalletSession, token, controller common.Address, opts ...Option) *ContractSession {
	return &ContractSession{
		wallet:     ws,
		token:      token,
		controller: controller,
		opts:       buildOptions(opts),
		st:         emptySnapshot(),
	}
}

// Snapshot returns the current state.
func (s *ContractSession) Snapshot() ContractSnapshot {
	s.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// sync resets the session when the wallet is no longer connected to the
// account it was initialized for.
func (s *ContractSession) sync() {
	ws := s.wallet.State()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.State == Uninitialized {
		return
	}
	if ws.State != Connected || ws.Account != s.st.Account {
		s.resetLocked()
	}
}

func (s *ContractSession) resetLocked() {
	s.gen++
	s.gw = nil
	s.st = emptySnapshot()
}

// Reset drops all contract state.
func (s *ContractSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ---------------------------------------------------------------------------
// lifecycle
// ---------------------------------------------------------------------------

// Start follows the wallet session until ctx is done or Close: a connected
// account initializes the session, a disconnect resets it.
func (s *ContractSession) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.done != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	updates := s.wallet.Subscribe()
	go func() {
		defer close(s.done)
		// a wallet that connected before Start
		if ws := s.wallet.State(); ws.State == Connected {
			s.follow(loopCtx, ws)
		}
		for {
			select {
			case <-loopCtx.Done():
				return
			case ws, ok := <-updates:
				if !ok {
					return
				}
				s.follow(loopCtx, ws)
			}
		}
	}()
}

func (s *ContractSession) follow(ctx context.Context, ws WalletState) {
	if ws.State != Connected || ws.Account == "" {
		if ws.State == Disconnected {
			s.Reset()
		}
		return
	}
	s.mu.Lock()
	current := s.st.State != Uninitialized && s.st.Account == ws.Account
	s.mu.Unlock()
	if current {
		return
	}
	if err := s.Initialize(ctx); err != nil {
		s.opts.log.Warn().Err(err).Msg("contract session initialization failed")
	}
}

// Close stops following the wallet.
func (s *ContractSession) Close() {
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
}

// Initialize builds the gateway for the connected account and loads the
// contract state. A call while another initialization is running returns
// immediately.
func (s *ContractSession) Initialize(ctx context.Context) error {
	ws := s.wallet.State()
	if ws.State != Connected || ws.Account == "" {
		return ErrNotConnected
	}

	s.mu.Lock()
	if s.st.State == Initializing {
		s.mu.Unlock()
		return nil
	}
	s.resetLocked()
	s.st.State = Initializing
	s.st.Account = ws.Account
	gen := s.gen
	s.mu.Unlock()

	opts := s.opts.gatewayOpts
	if s.opts.meta != nil {
		opts = append(append([]contract.GatewayOption(nil), opts...), contract.WithMetadata(s.opts.meta))
	}
	opts = append(opts, contract.WithGatewayLogger(s.opts.log))

	gw, err := contract.NewGateway(s.wallet.Provider(), s.token, s.controller, opts...)
	if err == nil {
		var data *chainData
		if data, err = s.load(ctx, gw, common.HexToAddress(ws.Account)); err == nil {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.gen != gen {
				return ErrNotConnected
			}
			s.gw = gw
			s.applyLocked(data)
			s.st.State = Ready
			s.opts.log.Info().Str("account", ws.Account).Int("tokens", len(data.tokens)).Msg("contract session ready")
			return nil
		}
	}

	s.mu.Lock()
	if s.gen == gen {
		s.resetLocked()
		s.st.LastError = UserMessage(err)
	}
	s.mu.Unlock()
	s.opts.log.Warn().Err(err).Msg("initializing contracts")
	return err
}

func (s *ContractSession) applyLocked(d *chainData) {
	s.st.MintFeeWei = d.fee
	s.st.TotalSupply = d.supply
	s.st.CallerTokens = d.tokens
	s.st.Paused = d.paused
	s.st.MaxBatchSize = d.maxBatch
	s.st.LastError = ""
}

// load reads fee, supply, paused, batch limit and owned tokens in parallel.
func (s *ContractSession) load(ctx context.Context, gw *contract.Gateway, account common.Address) (*chainData, error) {
	var d chainData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.fee, err = gw.MintFee(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.supply, err = gw.TotalSupply(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.paused, err = gw.IsPaused(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.maxBatch, err = gw.MaxBatchSize(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.tokens, err = gw.OwnedTokens(gctx, account)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ready returns the gateway, account and generation of a Ready session.
func (s *ContractSession) ready() (*contract.Gateway, common.Address, uint64, error) {
	s.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.State != Ready || s.gw == nil {
		return nil, common.Address{}, 0, ErrNotInitialized
	}
	return s.gw, common.HexToAddress(s.st.Account), s.gen, nil
}

// ---------------------------------------------------------------------------
// operations
// ---------------------------------------------------------------------------

// Refresh reloads fee, supply, owned tokens, paused and batch limit.
// Overlapping calls share one read.
func (s *ContractSession) Refresh(ctx context.Context) error {
	gw, account, gen, err := s.ready()
	if err != nil {
		return err
	}
	_, err, _ = s.refresh.Do("refresh", func() (interface{}, error) {
		return nil, s.reload(ctx, gw, account, gen)
	})
	return err
}

func (s *ContractSession) reload(ctx context.Context, gw *contract.Gateway, account common.Address, gen uint64) error {
	data, err := s.load(ctx, gw, account)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrNotInitialized
	}
	if err != nil {
		s.st.LastError = UserMessage(err)
		s.opts.log.Warn().Err(err).Msg("refreshing contract state")
		return err
	}
	s.applyLocked(data)
	return nil
}

// Mint mints qty tokens to the connected account, records them and
// refreshes the session once the receipt is in.
func (s *ContractSession) Mint(ctx context.Context, qty uint64) (*contract.MintResult, error) {
	gw, account, gen, err := s.ready()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.st.MintInFlight {
		s.mu.Unlock()
		return nil, ErrMintInFlight
	}
	s.st.MintInFlight = true
	s.st.LastError = ""
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.st.MintInFlight = false
		}
		s.mu.Unlock()
	}()

	res, err := gw.Mint(ctx, account, account, qty)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.st.LastError = UserMessage(err)
		}
		s.mu.Unlock()
		s.opts.log.Warn().Err(err).Uint64("qty", qty).Msg("mint failed")
		return nil, err
	}
	s.opts.log.Info().Str("tx", res.TxHash.Hex()).Interface("tokens", res.TokenIDs).Msg("mint confirmed")

	s.record(ctx, account, res)

	// not shared with an in-flight Refresh that may predate the receipt
	if err := s.reload(ctx, gw, account, gen); err != nil {
		s.opts.log.Warn().Err(err).Msg("post-mint refresh")
	}
	return res, nil
}

func (s *ContractSession) record(ctx context.Context, account common.Address, res *contract.MintResult) {
	if s.opts.recorder == nil {
		return
	}
	entries := make([]ledger.Entry, 0, len(res.TokenIDs))
	for _, id := range res.TokenIDs {
		entries = append(entries, ledger.Entry{
			TokenID: id,
			Account: account.Hex(),
			TxHash:  res.TxHash.Hex(),
			Name:    s.name(id),
		})
	}
	if err := s.opts.recorder.Record(ctx, entries...); err != nil {
		s.opts.log.Warn().Err(err).Msg("recording minted tokens")
	}
}

func (s *ContractSession) name(id uint64) string {
	if s.opts.meta == nil {
		return catalog.Placeholder(id).Name
	}
	return s.opts.meta.Lookup(id).Name
}

// ---------------------------------------------------------------------------
// reads
// ---------------------------------------------------------------------------

// MintFee returns the last read per-token fee.
func (s *ContractSession) MintFee() (*big.Int, error) {
	if _, _, _, err := s.ready(); err != nil {
		return nil, err
	}
	return s.Snapshot().MintFeeWei, nil
}

// TotalSupply returns the last read total supply.
func (s *ContractSession) TotalSupply() (*big.Int, error) {
	if _, _, _, err := s.ready(); err != nil {
		return nil, err
	}
	return s.Snapshot().TotalSupply, nil
}

// Tokens returns the caller's tokens from the last enumeration.
func (s *ContractSession) Tokens() ([]contract.OwnedToken, error) {
	if _, _, _, err := s.ready(); err != nil {
		return nil, err
	}
	return s.Snapshot().CallerTokens, nil
}

// Quote returns fee × qty for a Ready session.
func (s *ContractSession) Quote(qty uint64) (*big.Int, error) {
	fee, err := s.MintFee()
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", contract.ErrInvalidQuantity)
	}
	return new(big.Int).Mul(fee, new(big.Int).SetUint64(qty)), nil
}
