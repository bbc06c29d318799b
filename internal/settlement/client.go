// Package settlement talks to the withdraw and balance-check services that
// move funds out of the shielded pool. Both sit behind one circuit breaker.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/httpclient"
	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/rate"
	"github.com/Checker-Finance/private-otc/pkg/chain"
)

const (
	pathWithdraw     = "/withdraw"
	pathBalanceCheck = "/balance/check"
)

var (
	// MaxNumOfFailingRequests is the request count after which the breaker may trip.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the share of unavailable responses that trips the breaker.
	FailingRatio = 0.6
)

// WithdrawRequest asks the settlement service to release Amount (base units
// of the quote asset) to Recipient, spending NullifierHash.
type WithdrawRequest struct {
	Commitment    string      `json:"commitment"`
	NullifierHash string      `json:"nullifier_hash"`
	Recipient     string      `json:"recipient"`
	Amount        string      `json:"amount"`
	Chain         chain.Chain `json:"chain"`
}

// WithdrawResult is the settlement outcome. Success is true only for a
// terminal success status.
type WithdrawResult struct {
	Success              bool   `json:"success"`
	RequestID            string `json:"request_id"`
	TxHash               string `json:"tx_hash"`
	Status               string `json:"status"`
	ZKCompressed         bool   `json:"zk_compressed"`
	CompressionSignature string `json:"compression_signature,omitempty"`
}

// BalanceQuery asks whether the shielded balance behind Commitment covers Amount.
type BalanceQuery struct {
	Commitment string      `json:"commitment"`
	Amount     string      `json:"amount"`
	Chain      chain.Chain `json:"chain"`
}

type balanceResponse struct {
	Sufficient bool `json:"sufficient"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// IsTerminalSuccess reports whether status means the funds moved.
func IsTerminalSuccess(status string) bool {
	switch strings.ToLower(status) {
	case "completed", "confirmed", "finalized":
		return true
	}
	return false
}

// Config configures Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RetryMax  int
	RateLimit rate.Config
}

// Client implements the withdraw and balance-check collaborators over HTTP.
type Client struct {
	logger   *zap.Logger
	balance  *httpclient.Executor
	withdraw *httpclient.Executor
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	headers  map[string]string
}

// NewClient builds a Client. Withdraw is never retried: a lost response must
// not turn into a second spend attempt.
func NewClient(logger *zap.Logger, cfg Config, httpClient *http.Client) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	exec := httpclient.New(logger, rate.NewManager(cfg.RateLimit), httpClient, cfg.BaseURL, cfg.RetryMax, "settlement")

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	return &Client{
		logger:   logger,
		balance:  exec,
		withdraw: exec.WithRetries(0),
		breaker:  newBreaker(logger),
		timeout:  cfg.Timeout,
		headers:  headers,
	}
}

func newBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "settlement",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("settlement.breaker_state_changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// call runs fn through the breaker. Only unavailability counts against the
// breaker; business rejections come back through rejected.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rejected error
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := fn(ctx)
		if err == nil {
			return nil, nil
		}
		mapped := classify(err)
		if errors.Is(mapped, otcerr.ErrSettlementUnavailable) {
			return nil, mapped
		}
		rejected = mapped
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return otcerr.ErrSettlementUnavailable.Wrap(err)
	}
	if err != nil {
		return err
	}
	return rejected
}

// classify maps transport and HTTP failures onto the otcerr taxonomy.
func classify(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		// transport failure or timeout
		return otcerr.ErrSettlementUnavailable.Wrap(err)
	}
	if se.StatusCode >= 500 {
		return otcerr.ErrSettlementUnavailable.Wrap(err)
	}

	var body errorBody
	_ = json.Unmarshal(se.Body, &body)
	code := strings.ToUpper(body.Code)
	if code == "" {
		code = strings.ToUpper(body.Error)
	}
	switch code {
	case otcerr.ErrInsufficientBalance.Code:
		return otcerr.ErrInsufficientBalance.Wrap(err)
	case otcerr.ErrNullifierUsed.Code:
		return otcerr.ErrNullifierUsed.Wrap(err)
	case otcerr.ErrSettlementUnavailable.Code:
		return otcerr.ErrSettlementUnavailable.Wrap(err)
	}
	if se.StatusCode == http.StatusPaymentRequired {
		return otcerr.ErrInsufficientBalance.Wrap(err)
	}
	if body.Message != "" {
		return otcerr.ErrSettlementFailed.WithMessage("%s", body.Message).Wrap(err)
	}
	return otcerr.ErrSettlementFailed.Wrap(err)
}

// Withdraw submits req. A nil error with Success false means the service
// accepted the request but did not report a terminal success.
func (c *Client) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawResult, error) {
	var res WithdrawResult
	err := c.call(ctx, func(ctx context.Context) error {
		return c.withdraw.DoJSON(ctx, httpclient.Call{
			Method:  http.MethodPost,
			Path:    pathWithdraw,
			Body:    req,
			Headers: c.headers,
		}, &res)
	})
	if err != nil {
		c.logger.Warn("settlement.withdraw_failed",
			zap.String("nullifier_hash", req.NullifierHash),
			zap.String("chain", req.Chain.String()),
			zap.Error(err))
		return nil, err
	}

	res.Success = res.Success && IsTerminalSuccess(res.Status)
	if res.TxHash != "" {
		if verr := req.Chain.ValidateTxHash(res.TxHash); verr != nil {
			c.logger.Warn("settlement.unexpected_tx_hash",
				zap.String("request_id", res.RequestID),
				zap.Error(verr))
		}
	}
	c.logger.Info("settlement.withdraw_completed",
		zap.String("request_id", res.RequestID),
		zap.String("status", res.Status),
		zap.Bool("success", res.Success),
		zap.String("tx_hash", res.TxHash))
	return &res, nil
}

// CheckBalance reports whether the balance behind q.Commitment covers q.Amount.
func (c *Client) CheckBalance(ctx context.Context, q BalanceQuery) (bool, error) {
	var res balanceResponse
	err := c.call(ctx, func(ctx context.Context) error {
		return c.balance.DoJSON(ctx, httpclient.Call{
			Method:  http.MethodPost,
			Path:    pathBalanceCheck,
			Body:    q,
			Headers: c.headers,
		}, &res)
	})
	if errors.Is(err, otcerr.ErrInsufficientBalance) {
		return false, nil
	}
	if err != nil {
		c.logger.Warn("settlement.balance_check_failed", zap.Error(err))
		return false, err
	}
	return res.Sufficient, nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// HealthCheck fails while the breaker is open.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("settlement circuit open")
	}
	return nil
}
