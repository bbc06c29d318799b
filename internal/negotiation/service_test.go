package negotiation

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/privacy"
	"github.com/Checker-Finance/private-otc/internal/settlement"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/chain"
	"github.com/Checker-Finance/private-otc/pkg/eventbus"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeSettlement struct {
	mu          sync.Mutex
	sufficient   bool
	balanceErr   error
	balanceDelay time.Duration
	withdrawErr  error
	status       string
	balances     []settlement.BalanceQuery
	withdrawals  []settlement.WithdrawRequest
	withdrawN    atomic.Int32
}

func newFakeSettlement() *fakeSettlement {
	return &fakeSettlement{sufficient: true, status: "confirmed"}
}

func (f *fakeSettlement) CheckBalance(_ context.Context, q settlement.BalanceQuery) (bool, error) {
	time.Sleep(f.balanceDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = append(f.balances, q)
	return f.sufficient, f.balanceErr
}

func (f *fakeSettlement) Withdraw(_ context.Context, req settlement.WithdrawRequest) (*settlement.WithdrawResult, error) {
	f.withdrawN.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals = append(f.withdrawals, req)
	if f.withdrawErr != nil {
		return nil, f.withdrawErr
	}
	return &settlement.WithdrawResult{
		Success:   true,
		RequestID: "wd-" + req.NullifierHash[:8],
		TxHash:    "5VfYmGC3t8e5CzHaB2tGm1pVhTtNwXvCyZ5sJbT9Qq6uT2J3eqG7iVxFz3bM4hYcS8dXkRnQp1wZ2aLmN4oP6rS",
		Status:    f.status,
	}, nil
}

func (f *fakeSettlement) balanceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.balances)
}

type fakeWhitelist struct {
	mu    sync.Mutex
	addrs map[string]bool
}

func (w *fakeWhitelist) IsWhitelisted(_ context.Context, address string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addrs[address], nil
}

func (w *fakeWhitelist) add(t *testing.T, pub string) {
	t.Helper()
	addr, err := sigauth.AddressOf(pub)
	require.NoError(t, err)
	w.mu.Lock()
	w.addrs[addr] = true
	w.mu.Unlock()
}

// ─── harness ─────────────────────────────────────────────────────────────────

type harness struct {
	svc    *Service
	store  *store.MemoryStore
	settle *fakeSettlement
	wl     *fakeWhitelist
	bus    *eventbus.EventBus
	now    time.Time
	taker  *sigauth.PrivateKey
	maker  *sigauth.PrivateKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  store.NewMemory(),
		settle: newFakeSettlement(),
		wl:     &fakeWhitelist{addrs: map[string]bool{}},
		bus:    eventbus.New(zap.NewNop()),
		now:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	var err error
	h.taker, err = sigauth.GenerateKey()
	require.NoError(t, err)
	h.maker, err = sigauth.GenerateKey()
	require.NoError(t, err)

	auth := sigauth.NewService(zap.NewNop(), h.store)
	h.svc = NewService(zap.NewNop(), Config{WhitelistEnabled: true}, h.store, auth, h.settle, h.wl, h.bus)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) createInput(pair, dir, amount string, timeout time.Time) CreateQuoteRequestInput {
	return CreateQuoteRequestInput{
		AssetPair:      pair,
		Direction:      dir,
		Amount:         amount,
		Timeout:        timeout,
		TakerPublicKey: h.taker.PublicKeyHex(),
		Signature:      h.taker.SignHex(sigauth.CreateRequestMessage(pair, dir, amount, timeout)),
	}
}

func (h *harness) create(t *testing.T) *CreateQuoteRequestResult {
	t.Helper()
	res, err := h.svc.CreateQuoteRequest(context.Background(), h.createInput("SOL/USDC", "buy", "1.5", h.now.Add(time.Hour)))
	require.NoError(t, err)
	return res
}

func (h *harness) submitInput(maker *sigauth.PrivateKey, reqID, price string, exp time.Time) SubmitQuoteInput {
	return SubmitQuoteInput{
		QuoteRequestID: reqID,
		Price:          price,
		Expiration:     exp,
		MakerPublicKey: maker.PublicKeyHex(),
		Signature:      maker.SignHex(sigauth.SubmitQuoteMessage(reqID, price, exp)),
	}
}

func (h *harness) submit(t *testing.T, reqID, price string, exp time.Time) *SubmitQuoteResult {
	t.Helper()
	h.wl.add(t, h.maker.PublicKeyHex())
	res, err := h.svc.SubmitQuote(context.Background(), h.submitInput(h.maker, reqID, price, exp))
	require.NoError(t, err)
	return res
}

func (h *harness) acceptInput(quoteID, reqID string) AcceptInput {
	return AcceptInput{
		QuoteID:        quoteID,
		QuoteRequestID: reqID,
		TakerPublicKey: h.taker.PublicKeyHex(),
		Signature:      h.taker.SignHex(sigauth.AcceptQuoteMessage(quoteID, reqID)),
	}
}

func (h *harness) cancelInput(reqID string) CancelInput {
	return CancelInput{
		QuoteRequestID: reqID,
		TakerPublicKey: h.taker.PublicKeyHex(),
		Signature:      h.taker.SignHex(sigauth.CancelRequestMessage(reqID)),
	}
}

// ─── scenarios ───────────────────────────────────────────────────────────────

func TestScenario_HappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var filledEvents atomic.Int32
	eventbus.On(h.bus, func(model.QuoteRequestFilled) { filledEvents.Add(1) })

	created := h.create(t)
	req := created.QuoteRequest
	assert.Equal(t, model.RequestActive, req.Status)
	assert.NotEmpty(t, created.StealthAddress)
	assert.NotEmpty(t, created.StealthPrivateKey)
	assert.NoError(t, chain.Solana.ValidateAddress(created.StealthAddress))
	assert.True(t, privacy.VerifyCommitment(created.AmountCommitment, big.NewInt(1_500_000_000), created.AmountBlinding))

	quote := h.submit(t, req.ID, "150", h.now.Add(30*time.Minute))
	assert.Equal(t, model.QuoteActive, quote.Quote.Status)
	assert.True(t, privacy.VerifyCommitment(quote.PriceCommitment, big.NewInt(150_000_000), quote.PriceBlinding))

	accepted, err := h.svc.AcceptQuote(ctx, h.acceptInput(quote.Quote.ID, req.ID))
	require.NoError(t, err)
	assert.Equal(t, model.RequestFilled, accepted.QuoteRequest.Status)
	assert.Equal(t, model.QuoteAccepted, accepted.Quote.Status)
	raw, err := hex.DecodeString(accepted.Nullifier)
	require.NoError(t, err)
	assert.Equal(t, privacy.HashNullifier(raw), accepted.NullifierHash)
	assert.Contains(t, accepted.ExplorerURL, "explorer.solana.com/tx/")

	require.Len(t, h.settle.withdrawals, 1)
	wd := h.settle.withdrawals[0]
	assert.Equal(t, "225000000", wd.Amount, "1.5 SOL × 150 USDC in USDC base units")
	assert.Equal(t, req.StealthAddress, wd.Recipient)
	assert.Equal(t, accepted.NullifierHash, wd.NullifierHash)

	stored, err := h.store.GetQuoteRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFilled, stored.Status)
	assert.Equal(t, accepted.NullifierHash, stored.NullifierHash)
	assert.Equal(t, quote.Quote.ID, stored.FilledQuoteID)

	_, err = h.svc.AcceptQuote(ctx, h.acceptInput(quote.Quote.ID, req.ID))
	assert.ErrorIs(t, err, otcerr.ErrRequestFilled)

	h.bus.Wait()
	assert.EqualValues(t, 1, filledEvents.Load())
}

func TestScenario_NonWhitelistedMaker(t *testing.T) {
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	balanceCalls := h.settle.balanceCalls()

	stranger, err := sigauth.GenerateKey()
	require.NoError(t, err)
	_, err = h.svc.SubmitQuote(context.Background(), h.submitInput(stranger, req.ID, "150", h.now.Add(10*time.Minute)))
	assert.ErrorIs(t, err, otcerr.ErrNotWhitelisted)
	assert.Equal(t, otcerr.KindAuthorization, otcerr.KindOf(err))

	quotes, err := h.store.ListQuotesByRequest(context.Background(), req.ID, "", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Equal(t, balanceCalls, h.settle.balanceCalls(), "rejected before any commitment or balance work")
}

func TestScenario_ExpiredQuote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	quote := h.submit(t, req.ID, "150", h.now.Add(10*time.Minute)).Quote

	h.now = h.now.Add(11 * time.Minute)
	_, err := h.svc.AcceptQuote(ctx, h.acceptInput(quote.ID, req.ID))
	assert.ErrorIs(t, err, otcerr.ErrQuoteExpired)

	q, err := h.store.GetQuote(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteExpired, q.Status)
	r, err := h.store.GetQuoteRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestActive, r.Status)
	assert.Zero(t, h.settle.withdrawN.Load())
}

// ─── create ──────────────────────────────────────────────────────────────────

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	future := h.now.Add(time.Hour)

	cases := []struct {
		name  string
		in    CreateQuoteRequestInput
		field string
	}{
		{"lowercase pair", h.createInput("sol/usdc", "buy", "1", future), "assetPair"},
		{"no slash", h.createInput("SOLUSDC", "buy", "1", future), "assetPair"},
		{"same asset", h.createInput("SOL/SOL", "buy", "1", future), "assetPair"},
		{"direction", h.createInput("SOL/USDC", "hold", "1", future), "direction"},
		{"zero amount", h.createInput("SOL/USDC", "buy", "0", future), "amount"},
		{"negative amount", h.createInput("SOL/USDC", "buy", "-2", future), "amount"},
		{"not a number", h.createInput("SOL/USDC", "buy", "lots", future), "amount"},
		{"too precise", h.createInput("SOL/USDC", "buy", "1.0000000001", future), "amount"},
		{"past timeout", h.createInput("SOL/USDC", "buy", "1", h.now.Add(-time.Second)), "timeout"},
		{"now timeout", h.createInput("SOL/USDC", "buy", "1", h.now), "timeout"},
		{"beyond horizon", h.createInput("SOL/USDC", "buy", "1", h.now.Add(25*time.Hour)), "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateQuoteRequest(context.Background(), tc.in)
			e, ok := otcerr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, otcerr.KindValidation, e.Kind)
			assert.Equal(t, tc.field, e.Field)
		})
	}

	in := h.createInput("SOL/USDC", "buy", "1", future)
	in.Chain = "dogecoin"
	_, err := h.svc.CreateQuoteRequest(context.Background(), in)
	assert.ErrorIs(t, err, otcerr.ErrValidation)
}

func TestCreate_EVMChain(t *testing.T) {
	h := newHarness(t)
	in := h.createInput("ETH/USDC", "sell", "0.25", h.now.Add(time.Hour))
	in.Chain = "evm"
	res, err := h.svc.CreateQuoteRequest(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, chain.EVM, res.QuoteRequest.Chain)
	assert.NoError(t, chain.EVM.ValidateAddress(res.StealthAddress))
	require.Len(t, h.settle.balances, 1)
	assert.Equal(t, "250000000000000000", h.settle.balances[0].Amount)
}

func TestCreate_SignatureRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := h.createInput("SOL/USDC", "buy", "1.5", h.now.Add(time.Hour))

	tampered := in
	tampered.Amount = "15"
	_, err := h.svc.CreateQuoteRequest(ctx, tampered)
	assert.ErrorIs(t, err, otcerr.ErrInvalidSignature)

	_, err = h.svc.CreateQuoteRequest(ctx, in)
	require.NoError(t, err)
	_, err = h.svc.CreateQuoteRequest(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrSignatureReused)
}

func TestCreate_InsufficientBalanceKeepsSignatureFresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := h.createInput("SOL/USDC", "buy", "1.5", h.now.Add(time.Hour))

	h.settle.sufficient = false
	_, err := h.svc.CreateQuoteRequest(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrInsufficientBalance)

	h.settle.sufficient = true
	_, err = h.svc.CreateQuoteRequest(ctx, in)
	assert.NoError(t, err)
}

func TestCreate_BalanceServiceDown(t *testing.T) {
	h := newHarness(t)
	h.settle.balanceErr = otcerr.ErrSettlementUnavailable
	_, err := h.svc.CreateQuoteRequest(context.Background(), h.createInput("SOL/USDC", "buy", "1", h.now.Add(time.Hour)))
	assert.Equal(t, otcerr.KindExternal, otcerr.KindOf(err))
}

// ─── expiry and cancel ───────────────────────────────────────────────────────

func TestLazyExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest

	got, err := h.svc.GetQuoteRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestActive, got.Status)

	h.now = req.ExpiresAt
	got, err = h.svc.GetQuoteRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestExpired, got.Status)

	stored, err := h.store.GetQuoteRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestExpired, stored.Status)

	_, err = h.svc.CancelQuoteRequest(ctx, h.cancelInput(req.ID))
	assert.ErrorIs(t, err, otcerr.ErrRequestExpired)

	h.wl.add(t, h.maker.PublicKeyHex())
	_, err = h.svc.SubmitQuote(ctx, h.submitInput(h.maker, req.ID, "1", h.now.Add(time.Minute)))
	assert.ErrorIs(t, err, otcerr.ErrRequestExpired)
}

func TestGet_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetQuoteRequest(context.Background(), "nope")
	assert.ErrorIs(t, err, otcerr.ErrRequestNotFound)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest

	var cancelled atomic.Int32
	eventbus.On(h.bus, func(model.QuoteRequestCancelled) { cancelled.Add(1) })

	other, err := sigauth.GenerateKey()
	require.NoError(t, err)
	_, err = h.svc.CancelQuoteRequest(ctx, CancelInput{
		QuoteRequestID: req.ID,
		TakerPublicKey: other.PublicKeyHex(),
		Signature:      other.SignHex(sigauth.CancelRequestMessage(req.ID)),
	})
	assert.ErrorIs(t, err, otcerr.ErrNotOwner)

	bad := h.cancelInput(req.ID)
	bad.Signature = h.taker.SignHex(sigauth.CancelRequestMessage("other"))
	_, err = h.svc.CancelQuoteRequest(ctx, bad)
	assert.ErrorIs(t, err, otcerr.ErrInvalidSignature)

	got, err := h.svc.CancelQuoteRequest(ctx, h.cancelInput(req.ID))
	require.NoError(t, err)
	assert.Equal(t, model.RequestCancelled, got.Status)

	_, err = h.svc.CancelQuoteRequest(ctx, h.cancelInput(req.ID))
	assert.ErrorIs(t, err, otcerr.ErrRequestCancelled)

	h.bus.Wait()
	assert.EqualValues(t, 1, cancelled.Load())
}

func TestCancel_AfterFill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	q := h.submit(t, req.ID, "150", h.now.Add(10*time.Minute)).Quote
	_, err := h.svc.AcceptQuote(ctx, h.acceptInput(q.ID, req.ID))
	require.NoError(t, err)

	_, err = h.svc.CancelQuoteRequest(ctx, h.cancelInput(req.ID))
	assert.ErrorIs(t, err, otcerr.ErrRequestFilled)
}

// ─── quotes ──────────────────────────────────────────────────────────────────

func TestSubmit_ExpirationRules(t *testing.T) {
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	h.wl.add(t, h.maker.PublicKeyHex())

	for name, exp := range map[string]time.Time{
		"past":          h.now.Add(-time.Minute),
		"now":           h.now,
		"after request": req.ExpiresAt.Add(time.Second),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.SubmitQuote(context.Background(), h.submitInput(h.maker, req.ID, "150", exp))
			e, ok := otcerr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, "expirationTime", e.Field)
		})
	}

	_, err := h.svc.SubmitQuote(context.Background(), h.submitInput(h.maker, req.ID, "150", req.ExpiresAt))
	assert.NoError(t, err, "expiry equal to the request's is allowed")
}

func TestSubmit_PriceAndKeyValidation(t *testing.T) {
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	h.wl.add(t, h.maker.PublicKeyHex())
	exp := h.now.Add(time.Minute)

	_, err := h.svc.SubmitQuote(context.Background(), h.submitInput(h.maker, req.ID, "0", exp))
	assert.ErrorIs(t, err, otcerr.ErrValidation)
	_, err = h.svc.SubmitQuote(context.Background(), h.submitInput(h.maker, req.ID, "1.0000001", exp))
	assert.ErrorIs(t, err, otcerr.ErrValidation, "USDC has 6 decimals")

	in := h.submitInput(h.maker, req.ID, "150", exp)
	in.MakerPublicKey = "abcd"
	_, err = h.svc.SubmitQuote(context.Background(), in)
	assert.ErrorIs(t, err, otcerr.ErrValidation)
}

func TestSubmit_WhitelistDisabled(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.WhitelistEnabled = false
	req := h.create(t).QuoteRequest

	_, err := h.svc.SubmitQuote(context.Background(), h.submitInput(h.maker, req.ID, "150", h.now.Add(time.Minute)))
	assert.NoError(t, err)
}

func TestSubmit_MakerBalanceBySide(t *testing.T) {
	h := newHarness(t)
	in := h.createInput("SOL/USDC", "sell", "2", h.now.Add(time.Hour))
	res, err := h.svc.CreateQuoteRequest(context.Background(), in)
	require.NoError(t, err)

	h.submit(t, res.QuoteRequest.ID, "151.5", h.now.Add(time.Minute))
	last := h.settle.balances[len(h.settle.balances)-1]
	assert.Equal(t, "303000000", last.Amount, "maker pays 2 × 151.5 USDC")
}

func TestListQuotes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	short := h.submit(t, req.ID, "150", h.now.Add(5*time.Minute)).Quote
	long := h.submit(t, req.ID, "149", h.now.Add(20*time.Minute)).Quote

	open, err := h.svc.ListQuotes(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	h.now = h.now.Add(10 * time.Minute)
	open, err = h.svc.ListQuotes(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, long.ID, open[0].ID)
	assert.Equal(t, long.PriceCommitment, open[0].PriceCommitment)

	stored, err := h.store.GetQuote(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteExpired, stored.Status)

	all, err := h.svc.QuotesForRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.svc.ListQuotes(ctx, "missing")
	assert.ErrorIs(t, err, otcerr.ErrRequestNotFound)
}

// ─── accept ──────────────────────────────────────────────────────────────────

func TestAccept_SettlementFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	q := h.submit(t, req.ID, "150", h.now.Add(10*time.Minute)).Quote
	in := h.acceptInput(q.ID, req.ID)

	h.settle.withdrawErr = otcerr.ErrSettlementUnavailable
	_, err := h.svc.AcceptQuote(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrSettlementUnavailable)

	r, _ := h.store.GetQuoteRequest(ctx, req.ID)
	assert.Equal(t, model.RequestActive, r.Status)
	assert.Empty(t, r.NullifierHash)
	stored, _ := h.store.GetQuote(ctx, q.ID)
	assert.Equal(t, model.QuoteActive, stored.Status)

	// nothing changed locally, so the same signature is still fresh
	h.settle.withdrawErr = nil
	res, err := h.svc.AcceptQuote(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFilled, res.QuoteRequest.Status)
}

func TestAccept_NonTerminalSettlement(t *testing.T) {
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	q := h.submit(t, req.ID, "150", h.now.Add(10*time.Minute)).Quote

	h.settle.status = "pending"
	_, err := h.svc.AcceptQuote(context.Background(), h.acceptInput(q.ID, req.ID))
	assert.ErrorIs(t, err, otcerr.ErrSettlementFailed)
}

func TestAccept_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	q := h.submit(t, req.ID, "150", h.now.Add(10*time.Minute)).Quote

	otherReq, err := h.svc.CreateQuoteRequest(ctx, h.createInput("ETH/USDC", "buy", "1", h.now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = h.svc.AcceptQuote(ctx, h.acceptInput(q.ID, otherReq.QuoteRequest.ID))
	assert.ErrorIs(t, err, otcerr.ErrQuoteMismatch)

	_, err = h.svc.AcceptQuote(ctx, h.acceptInput("missing", req.ID))
	assert.ErrorIs(t, err, otcerr.ErrQuoteNotFound)

	in := h.acceptInput(q.ID, req.ID)
	in.TakerPublicKey = h.maker.PublicKeyHex()
	_, err = h.svc.AcceptQuote(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrNotOwner)

	in = h.acceptInput(q.ID, req.ID)
	in.Signature = h.taker.SignHex(sigauth.AcceptQuoteMessage(req.ID, q.ID))
	_, err = h.svc.AcceptQuote(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrInvalidSignature)

	h.now = req.ExpiresAt.Add(time.Second)
	_, err = h.svc.AcceptQuote(ctx, h.acceptInput(q.ID, req.ID))
	assert.ErrorIs(t, err, otcerr.ErrRequestExpired)
	assert.Zero(t, h.settle.withdrawN.Load())
}

func TestAccept_PrefixedKeyAccepted(t *testing.T) {
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	q := h.submit(t, req.ID, "150", h.now.Add(10*time.Minute)).Quote

	in := h.acceptInput(q.ID, req.ID)
	in.TakerPublicKey = "0x" + in.TakerPublicKey
	in.Signature = "0x" + in.Signature
	_, err := h.svc.AcceptQuote(context.Background(), in)
	assert.NoError(t, err)
}

func TestAccept_ConcurrentFillsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest

	const n = 8
	quotes := make([]*model.Quote, n)
	for i := range quotes {
		quotes[i] = h.submit(t, req.ID, strconv.Itoa(150+i), h.now.Add(10*time.Minute)).Quote
	}

	var (
		g       errgroup.Group
		success atomic.Int32
		filled  atomic.Int32
	)
	for _, q := range quotes {
		in := h.acceptInput(q.ID, req.ID)
		g.Go(func() error {
			_, err := h.svc.AcceptQuote(ctx, in)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, otcerr.ErrRequestFilled):
				filled.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, success.Load())
	assert.EqualValues(t, n-1, filled.Load())
	assert.EqualValues(t, 1, h.settle.withdrawN.Load(), "settlement called exactly once")

	stored, err := h.store.GetQuoteRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFilled, stored.Status)

	accepted := 0
	all, err := h.store.ListQuotesByRequest(ctx, req.ID, "", time.Time{})
	require.NoError(t, err)
	for _, q := range all {
		if q.Status == model.QuoteAccepted {
			accepted++
			assert.Equal(t, stored.FilledQuoteID, q.ID)
		}
	}
	assert.Equal(t, 1, accepted)
}

// One signature, many concurrent callers: the ledger insert lets exactly one through.
func TestCreate_ConcurrentSameSignatureOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.settle.balanceDelay = 20 * time.Millisecond
	in := h.createInput("SOL/USDC", "buy", "1.5", h.now.Add(time.Hour))

	const n = 8
	var (
		g       errgroup.Group
		success atomic.Int32
		reused  atomic.Int32
	)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := h.svc.CreateQuoteRequest(ctx, in)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, otcerr.ErrSignatureReused):
				reused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, success.Load())
	assert.EqualValues(t, n-1, reused.Load())
	assert.Equal(t, 1, h.settle.balanceCalls(), "only the reserving caller reaches the balance check")
}

func TestSubmit_ConcurrentSameSignatureOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	h.wl.add(t, h.maker.PublicKeyHex())
	h.settle.balanceDelay = 20 * time.Millisecond
	in := h.submitInput(h.maker, req.ID, "150", h.now.Add(10*time.Minute))

	const n = 8
	var (
		g       errgroup.Group
		success atomic.Int32
	)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := h.svc.SubmitQuote(ctx, in)
			if err == nil {
				success.Add(1)
				return nil
			}
			if errors.Is(err, otcerr.ErrSignatureReused) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, success.Load())
	quotes, err := h.svc.ListQuotes(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

// A failed transition hands the signature back; a successful one keeps it.
func TestSubmit_FailedTransitionReleasesSignature(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := h.create(t).QuoteRequest
	h.wl.add(t, h.maker.PublicKeyHex())
	in := h.submitInput(h.maker, req.ID, "150", h.now.Add(10*time.Minute))

	raw, err := sigauth.DecodeHex(in.Signature)
	require.NoError(t, err)
	hash := sigauth.SignatureHash(raw)

	h.settle.sufficient = false
	_, err = h.svc.SubmitQuote(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrInsufficientBalance)
	rec, err := h.store.GetUsedSignature(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, rec)

	h.settle.sufficient = true
	_, err = h.svc.SubmitQuote(ctx, in)
	require.NoError(t, err)
	rec, err = h.store.GetUsedSignature(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.OpSubmitQuote, rec.OperationType)

	_, err = h.svc.SubmitQuote(ctx, in)
	assert.ErrorIs(t, err, otcerr.ErrSignatureReused)
}
