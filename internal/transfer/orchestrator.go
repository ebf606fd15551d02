package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"dualwallet/internal/chain"
	"dualwallet/internal/constant"
	"dualwallet/internal/fee"
	"dualwallet/internal/model"
	"dualwallet/internal/network"
	"dualwallet/internal/provider"
	"dualwallet/internal/walletstate"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"
)

// Phase is the orchestrator state of one wallet slot.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseResolving  Phase = "resolving"
	PhasePersisting Phase = "persisting"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

const (
	WarningNotRecorded   = "transfer succeeded but could not be recorded"
	WarningVerifyNetwork = "the wallet is on an unknown network, verify the transfer manually"
)

// WalletState is the view of the wallet slots the orchestrator needs.
type WalletState interface {
	Mode() (constant.Chain, bool)
	Connection(c constant.Chain) walletstate.Connection
	Refresh(ctx context.Context, c constant.Chain) (walletstate.Connection, error)
}

// RecordStore persists completed transfers.
type RecordStore interface {
	Insert(ctx context.Context, data *model.TransferRecord) error
}

// Request is a user's transfer order. An empty Mode uses the current network
// mode.
type Request struct {
	Mode      constant.Chain
	Recipient string
	Amount    decimal.Decimal
}

// Intent is a validated transfer, owned by the orchestrator until it settles.
type Intent struct {
	Mode         constant.Chain
	From         string
	Recipient    string
	Amount       decimal.Decimal
	BaseAmount   *big.Int
	EstimatedFee decimal.Decimal
	Quote        *fee.Quote
	Symbol       string
	// Network is the network name recorded with the transfer.
	Network  string
	Detected *network.Detection
	Warnings []string
}

// Result is the outcome of a submission that reached the wallet.
type Result struct {
	Phase         Phase
	Chain         constant.Chain
	TxID          string
	FormatWarning bool
	ExplorerUrl   string
	Recorded      bool
	Record        *model.TransferRecord
	Quote         *fee.Quote
	Warnings      []string
}

type Config struct {
	MinAmount       decimal.Decimal
	L1Symbol        string
	L1Network       string
	L1ExplorerUrl   string
	L1EstimatedTime string
	L2EstimatedTime string
	// TargetNetwork is the registry label L2 transfers must be sent on.
	TargetNetwork string
	// SettleTimeout bounds resolving, recording and refreshing once the wallet
	// accepted a transfer. These steps outlive the caller's context.
	SettleTimeout time.Duration
}

type Deps struct {
	Config    Config
	Validator *chain.Validator
	Estimator *fee.Estimator
	Detector  *network.Detector
	State     WalletState
	Records   RecordStore
	L1        provider.UtxoWalletProvider
	L2        provider.EvmWalletProvider
}

type Orchestrator struct {
	cfg       Config
	validator *chain.Validator
	estimator *fee.Estimator
	builder   *Builder
	detector  *network.Detector
	state     WalletState
	records   RecordStore
	l1        provider.UtxoWalletProvider
	l2        provider.EvmWalletProvider

	guards map[constant.Chain]*syncx.AtomicBool
	mu     sync.RWMutex
	phases map[constant.Chain]Phase
}

func NewOrchestrator(deps Deps) *Orchestrator {
	cfg := deps.Config
	if cfg.MinAmount.IsZero() {
		cfg.MinAmount = decimal.RequireFromString(constant.DefaultMinTransfer)
	}
	if cfg.L1Symbol == "" {
		cfg.L1Symbol = "KAS"
	}
	if cfg.L1Network == "" {
		cfg.L1Network = "kaspa-mainnet"
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = constant.DefaultSettleTimeout
	}
	if cfg.TargetNetwork == "" && deps.Detector != nil {
		cfg.TargetNetwork = deps.Detector.Registry().Primary().Label
	}

	o := &Orchestrator{
		cfg:       cfg,
		validator: deps.Validator,
		estimator: deps.Estimator,
		builder:   NewBuilder(deps.Estimator),
		detector:  deps.Detector,
		state:     deps.State,
		records:   deps.Records,
		l1:        deps.L1,
		l2:        deps.L2,
		guards:    make(map[constant.Chain]*syncx.AtomicBool, len(constant.SupportedChains)),
		phases:    make(map[constant.Chain]Phase, len(constant.SupportedChains)),
	}
	for _, c := range constant.SupportedChains {
		o.guards[c] = syncx.NewAtomicBool()
		o.phases[c] = PhaseIdle
	}
	return o
}

// Phase reports where the slot's current or last transfer is.
func (o *Orchestrator) Phase(c constant.Chain) Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if p, ok := o.phases[c]; ok {
		return p
	}
	return PhaseIdle
}

func (o *Orchestrator) setPhase(c constant.Chain, p Phase) {
	o.mu.Lock()
	o.phases[c] = p
	o.mu.Unlock()
}

// Estimate validates the request and quotes its fee without submitting.
func (o *Orchestrator) Estimate(ctx context.Context, req Request) (*Intent, error) {
	mode, err := o.resolveMode(req.Mode)
	if err != nil {
		return nil, err
	}
	return o.prepare(ctx, mode, req)
}

// Send validates, submits, resolves and records one transfer. At most one
// transfer per slot runs at a time; a concurrent call fails with
// ErrTransferInFlight.
//
// When the transfer was accepted but could not be recorded, Send returns a
// completed Result together with an ErrPersistenceFailed error.
func (o *Orchestrator) Send(ctx context.Context, req Request) (*Result, error) {
	logger := logx.WithContext(ctx)

	mode, err := o.resolveMode(req.Mode)
	if err != nil {
		return nil, err
	}

	guard := o.guards[mode]
	if !guard.CompareAndSwap(false, true) {
		return nil, newError(ErrTransferInFlight, fmt.Sprintf("a %s transfer is already being sent", mode),
			"wait for the current transfer to finish", nil)
	}
	defer guard.Set(false)

	// 1. validate
	o.setPhase(mode, PhaseValidating)
	logger.Infof("[%s] step 1: validating transfer of %s to %s", mode, req.Amount.String(), req.Recipient)
	intent, err := o.prepare(ctx, mode, req)
	if err != nil {
		o.setPhase(mode, PhaseFailed)
		logger.Errorf("[%s] validation failed: %v", mode, err)
		return nil, err
	}

	// 2. submit
	o.setPhase(mode, PhaseSubmitting)
	logger.Infof("[%s] step 2: submitting from %s", mode, intent.From)
	raw, quote, err := o.submit(ctx, intent)
	if err != nil {
		o.setPhase(mode, PhaseFailed)
		logger.Errorf("[%s] submission failed: %v", mode, err)
		return nil, submissionError(string(mode), err)
	}

	// the transfer is on its way; a cancelled request must not lose its record
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SettleTimeout)
	defer cancel()

	// 3. resolve
	o.setPhase(mode, PhaseResolving)
	logger.Infof("[%s] step 3: resolving transaction id from %T", mode, raw)
	resolved, err := ResolveTransactionID(settleCtx, mode, raw)
	if err != nil {
		o.setPhase(mode, PhaseFailed)
		logger.Errorf("[%s] wallet response %v carried no transaction id", mode, raw)
		return &Result{Phase: PhaseFailed, Chain: mode, Quote: quote, Warnings: intent.Warnings}, err
	}

	result := &Result{
		Phase:         PhaseFailed,
		Chain:         mode,
		TxID:          resolved.ID,
		FormatWarning: resolved.FormatWarning,
		ExplorerUrl:   o.explorerURL(intent, resolved.ID),
		Quote:         quote,
		Warnings:      intent.Warnings,
	}
	if resolved.FormatWarning {
		result.Warnings = append(result.Warnings, "transaction id "+resolved.ID+" has an unexpected format, verify it on the explorer")
	}

	// 4. persist, only if the same wallet is still connected
	o.setPhase(mode, PhasePersisting)
	logger.Infof("[%s] step 4: recording transfer %s", mode, resolved.ID)
	if conn := o.state.Connection(mode); !conn.Connected || !strings.EqualFold(conn.Address, intent.From) {
		o.setPhase(mode, PhaseFailed)
		logger.Errorf("[%s] wallet disconnected before transfer %s was recorded", mode, resolved.ID)
		return result, newError(ErrWalletDisconnected,
			"the wallet disconnected before the transfer was recorded",
			"check the chain explorer for transaction "+resolved.ID, nil)
	}

	record := o.newRecord(intent, quote, resolved.ID, result.ExplorerUrl)
	result.Phase = PhaseCompleted
	result.Record = record
	var persistErr error
	if err := o.records.Insert(settleCtx, record); err != nil {
		logger.Errorf("[%s] transfer %s succeeded but recording failed: %v", mode, resolved.ID, err)
		result.Warnings = append(result.Warnings, WarningNotRecorded)
		persistErr = newError(ErrPersistenceFailed, WarningNotRecorded,
			"transaction "+resolved.ID+" was sent; it will not appear in the history", err)
	} else {
		result.Recorded = true
	}
	o.setPhase(mode, PhaseCompleted)

	// 5. refresh balances
	if _, err := o.state.Refresh(settleCtx, mode); err != nil {
		logger.Errorf("[%s] post-transfer refresh failed: %v", mode, err)
	}
	logger.Infof("[%s] step 5: transfer %s completed, recorded=%t", mode, resolved.ID, result.Recorded)
	return result, persistErr
}

func (o *Orchestrator) resolveMode(requested constant.Chain) (constant.Chain, error) {
	if requested != "" {
		c, ok := constant.ParseChain(string(requested))
		if !ok {
			return "", validationError("unsupported network %q", requested)
		}
		return c, nil
	}
	mode, ok := o.state.Mode()
	if !ok {
		return "", newError(ErrNetworkUnresolved, "select L1 or L2 before sending",
			"connect exactly one wallet or select a network", nil)
	}
	return mode, nil
}

// prepare runs every check that must pass before the wallet is called.
func (o *Orchestrator) prepare(ctx context.Context, mode constant.Chain, req Request) (*Intent, error) {
	conn := o.state.Connection(mode)
	if !conn.Connected {
		return nil, newError(ErrWalletDisconnected, fmt.Sprintf("the %s wallet is not connected", mode),
			"connect the wallet first", nil)
	}

	recipient := strings.TrimSpace(req.Recipient)
	if err := o.validator.Validate(recipient, mode); err != nil {
		return nil, newError(ErrValidation, err.Error(), "", err)
	}
	if req.Amount.LessThan(o.cfg.MinAmount) {
		return nil, validationError("amount %s is below the minimum of %s", req.Amount.String(), o.cfg.MinAmount.String())
	}
	if spendable := conn.Spendable(); req.Amount.GreaterThan(spendable) {
		return nil, validationError("amount %s exceeds the available balance of %s", req.Amount.String(), spendable.String())
	}
	base, err := chain.ToBaseUnits(req.Amount, mode.Decimals())
	if err != nil {
		return nil, newError(ErrValidation, err.Error(), "", err)
	}

	intent := &Intent{
		Mode:       mode,
		From:       conn.Address,
		Recipient:  recipient,
		Amount:     req.Amount,
		BaseAmount: base,
	}

	switch mode {
	case constant.ChainL1:
		if o.l1 == nil {
			return nil, submissionError(string(mode), provider.ErrProviderUnavailable)
		}
		intent.Quote = o.estimator.EstimateL1(req.Amount)
		intent.Symbol = o.cfg.L1Symbol
		intent.Network = o.cfg.L1Network
	case constant.ChainL2:
		if o.l2 == nil {
			return nil, submissionError(string(mode), provider.ErrProviderUnavailable)
		}
		det, err := o.detector.Check(ctx, o.l2, o.cfg.TargetNetwork)
		if err != nil {
			if errors.Is(err, network.ErrNetworkMismatch) {
				return nil, newError(ErrNetworkMismatch, err.Error(),
					"switch the L2 wallet to "+o.cfg.TargetNetwork+" and try again", nil)
			}
			return nil, submissionError(string(mode), err)
		}
		if !det.Known {
			intent.Warnings = append(intent.Warnings, WarningVerifyNetwork)
		}
		intent.Detected = &det
		intent.Symbol = det.Network.NativeCurrency.Symbol
		intent.Network = det.Network.Name

		quote, err := o.estimator.EstimateL2(ctx, o.l2, fee.GasRequest{From: intent.From, To: recipient, Value: base})
		if err != nil {
			return nil, newError(ErrGasEstimationFailed, "could not price the L2 transfer", "try again shortly", err)
		}
		intent.Quote = quote
	}

	if intent.Quote != nil {
		intent.EstimatedFee = intent.Quote.Fee
		if intent.Quote.Kind != fee.KindFlatPercent && !intent.Quote.GasEstimated {
			intent.Warnings = append(intent.Warnings,
				fmt.Sprintf("%v, sending with %d gas", ErrGasEstimationFailed, intent.Quote.GasLimit))
		}
	}
	return intent, nil
}

func (o *Orchestrator) submit(ctx context.Context, intent *Intent) (any, *fee.Quote, error) {
	if intent.Mode == constant.ChainL1 {
		raw, err := o.builder.SubmitL1(ctx, o.l1, intent)
		return raw, intent.Quote, err
	}
	return o.builder.SubmitL2(ctx, o.l2, intent)
}

func (o *Orchestrator) explorerURL(intent *Intent, txID string) string {
	if intent.Mode == constant.ChainL2 {
		if intent.Detected == nil {
			return ""
		}
		return intent.Detected.Network.TxURL(txID)
	}
	if o.cfg.L1ExplorerUrl == "" {
		return ""
	}
	return strings.TrimRight(o.cfg.L1ExplorerUrl, "/") + "/txs/" + txID
}

func (o *Orchestrator) newRecord(intent *Intent, quote *fee.Quote, txID, explorerURL string) *model.TransferRecord {
	estimated := o.cfg.L1EstimatedTime
	if intent.Mode == constant.ChainL2 {
		estimated = o.cfg.L2EstimatedTime
	}
	feeAmount := intent.EstimatedFee
	if quote != nil {
		feeAmount = quote.Fee
	}
	return &model.TransferRecord{
		FromNetwork:   intent.Network,
		ToNetwork:     intent.Network,
		FromAddress:   intent.From,
		ToAddress:     intent.Recipient,
		Amount:        intent.Amount.String(),
		TokenSymbol:   intent.Symbol,
		Status:        model.TransferStatusCompleted,
		TxHash:        txID,
		Fee:           feeAmount.String(),
		EstimatedTime: estimated,
		ExplorerUrl:   explorerURL,
		CreatedAt:     time.Now(),
	}
}
