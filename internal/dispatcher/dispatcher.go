// Package dispatcher is the thin instruction dispatch table: it exposes one
// method per instruction taking typed parameters (no wire payload is
// decoded here), calls into internal/decision for every
// authorization/policy check, and delegates the actual mutation to
// internal/risk or internal/crank. It never inlines a decide_* check and
// never talks to the matcher ABI directly — both are the responsibility of
// the packages it wires together.
package dispatcher

import (
	"golang.org/x/time/rate"

	percerrors "percolator/core/errors"
	"percolator/core/keys"
	"percolator/internal/crank"
	"percolator/internal/decision"
	"percolator/internal/matcher"
	"percolator/internal/oracle"
	"percolator/internal/risk"
	"percolator/internal/slab"
	"percolator/internal/unitscale"
	"percolator/observability/metrics"
)

// Tag identifies an instruction for the per-instruction metrics label. Its
// values follow this list's order and are not a wire-format discriminant;
// PushOraclePrice has no Tag.
type Tag uint8

const (
	TagInitMarket Tag = iota
	TagInitUser
	TagInitLP
	TagDeposit
	TagWithdraw
	TagTradeNoCpi
	TagTradeCpi
	TagKeeperCrank
	TagUpdateConfig
	TagResolveMarket
	TagAdminForceCloseAccount
	TagWithdrawInsurance
	TagCloseAccount
	TagCloseSlab
	TagUpdateAdmin
	TagSetRiskThreshold
	TagSetOraclePriceCap
	TagTopUpInsurance
	TagLiquidateAtOracle
	TagSetMaintenanceFee
	TagSetOracleAuthority
)

// MatcherInvoker is the CPI boundary: given the request fields a TradeCpi
// instruction must send, it performs the actual cross-program call and
// returns the decoded response. Implementations outside this module
// own the chain-runtime specifics of issuing the call.
type MatcherInvoker interface {
	InvokeMatcher(matcherProgram, matcherContext keys.Pubkey, req matcher.Expected) (matcher.Response, error)
}

// Market bundles everything one dispatcher call operates on: the slab, its
// risk engine, its keeper, the crank cursor, and the signer performing the
// call. All of it is held in-process; the external vault/token movement
// and chain-runtime account model are out of scope.
type Market struct {
	Slab    *slab.Slab
	Engine  *risk.Engine
	Keeper  *crank.Keeper
	Cursor  crank.Cursor
	Metrics *metrics.Market

	// crankLimit throttles KeeperCrank per-caller, the way the gateway's
	// RateLimiter throttles HTTP handlers. Nil disables throttling.
	crankLimit map[keys.Pubkey]*rate.Limiter
	crankRate  rate.Limit
	crankBurst int

	// oraclePushLimit throttles PushOraclePrice per authority signer.
	oraclePushLimit map[keys.Pubkey]*rate.Limiter
	oraclePushRate  rate.Limit
	oraclePushBurst int
}

// NewMarket wires a fresh slab into a risk engine and keeper. Metrics is
// left nil; call WithMetrics to attach the process-wide Prometheus
// registry.
func NewMarket(s *slab.Slab) *Market {
	e := risk.NewEngine(s)
	return &Market{Slab: s, Engine: e, Keeper: crank.NewKeeper(s, e)}
}

// WithMetrics attaches a metrics registry and returns the market for
// chaining.
func (m *Market) WithMetrics(reg *metrics.Market) *Market {
	m.Metrics = reg
	return m
}

// WithCrankRateLimit enables per-signer throttling of KeeperCrank, so a
// single caller cannot spam crank calls. A disabled limit (perSecond <= 0)
// is a no-op.
func (m *Market) WithCrankRateLimit(perSecond float64, burst int) *Market {
	if perSecond <= 0 {
		return m
	}
	m.crankLimit = make(map[keys.Pubkey]*rate.Limiter)
	m.crankRate = rate.Limit(perSecond)
	m.crankBurst = burst
	return m
}

// allowCrank reports whether signer may run KeeperCrank right now, lazily
// creating its limiter bucket on first use.
func (m *Market) allowCrank(signer keys.Pubkey) bool {
	if m.crankLimit == nil {
		return true
	}
	l, ok := m.crankLimit[signer]
	if !ok {
		l = rate.NewLimiter(m.crankRate, m.crankBurst)
		m.crankLimit[signer] = l
	}
	return l.Allow()
}

func (m *Market) observe() {
	if m.Metrics == nil {
		return
	}
	m.Metrics.ObserveAggregates(m.Slab.Aggregates.CapitalTotal, m.Slab.Header.InsuranceFund, m.Slab.Aggregates.OILong, m.Slab.Aggregates.OIShort)
}

// tagNames gives each instruction a stable metric label, independent of the
// iota ordering in Tag.
var tagNames = map[Tag]string{
	TagInitMarket:             "init_market",
	TagInitUser:               "init_user",
	TagInitLP:                 "init_lp",
	TagDeposit:                "deposit",
	TagWithdraw:               "withdraw",
	TagTradeNoCpi:             "trade_no_cpi",
	TagTradeCpi:               "trade_cpi",
	TagKeeperCrank:            "keeper_crank",
	TagUpdateConfig:           "update_config",
	TagResolveMarket:          "resolve_market",
	TagAdminForceCloseAccount: "admin_force_close_account",
	TagWithdrawInsurance:      "withdraw_insurance",
	TagCloseAccount:           "close_account",
	TagCloseSlab:              "close_slab",
	TagUpdateAdmin:            "update_admin",
	TagSetRiskThreshold:       "set_risk_threshold",
	TagSetOraclePriceCap:      "set_oracle_price_cap",
	TagTopUpInsurance:         "top_up_insurance",
	TagLiquidateAtOracle:      "liquidate_at_oracle",
	TagSetMaintenanceFee:      "set_maintenance_fee",
	TagSetOracleAuthority:     "set_oracle_authority",
}

// recordInstruction increments the per-tag instruction counter, and on
// failure the per-error-kind failure counter, then refreshes the aggregate
// gauges. Every instruction method that has a Tag funnels its outcome
// through this; PushOraclePrice and ParseOraclePrice do not.
func (m *Market) recordInstruction(tag Tag, err error) {
	if m.Metrics == nil {
		return
	}
	m.Metrics.InstructionsTotal.WithLabelValues(tagNames[tag]).Inc()
	if err != nil {
		m.Metrics.InstructionErrors.WithLabelValues(err.Error()).Inc()
		return
	}
	m.observe()
}

func (m *Market) resolved() bool { return m.Slab.Header.Resolved }

// InitMarket initializes a freshly-allocated slab's admin, unit scale, and
// config. Must be the first call against a slab.
func (m *Market) InitMarket(admin, vaultAuthority keys.Pubkey, unitScale uint64, cfg slab.MarketConfig) (err error) {
	defer func() { m.recordInstruction(TagInitMarket, err) }()
	if err = unitscale.InitMarketScale(unitScale); err != nil {
		return err
	}
	*m.Slab = *slab.New(admin, vaultAuthority, unitScale, cfg)
	return nil
}

// InitUser allocates a new user account, rejecting once the market is
// resolved.
func (m *Market) InitUser(owner keys.Pubkey) (idx uint32, err error) {
	defer func() { m.recordInstruction(TagInitUser, err) }()
	if m.resolved() {
		return 0, percerrors.ErrPostResolution
	}
	idx, err = m.Slab.AllocateAccount(owner, slab.KindUser)
	return idx, err
}

// InitLP allocates a new LP account and binds its matcher identity,
// rejecting once the market is resolved.
func (m *Market) InitLP(owner, matcherProgram, matcherContext keys.Pubkey) (idx uint32, err error) {
	defer func() { m.recordInstruction(TagInitLP, err) }()
	if m.resolved() {
		return 0, percerrors.ErrPostResolution
	}
	idx, err = m.Slab.AllocateAccount(owner, slab.KindLP)
	if err != nil {
		return 0, err
	}
	a := &m.Slab.Accounts[idx]
	a.MatcherProgram = matcherProgram
	a.MatcherContext = matcherContext
	return idx, nil
}

// Deposit credits units of capital, rejecting once the market is resolved.
func (m *Market) Deposit(idx uint32, signer keys.Pubkey, units uint64) (err error) {
	defer func() { m.recordInstruction(TagDeposit, err) }()
	if m.resolved() {
		return percerrors.ErrPostResolution
	}
	if err = m.authorize(idx, signer); err != nil {
		return err
	}
	return m.Engine.Deposit(idx, units)
}

// Withdraw debits units of capital against the account's required margin.
// Permitted post-resolution, since a resolved market still owes withdrawals
// of whatever capital/PnL settled out at close.
func (m *Market) Withdraw(idx uint32, signer keys.Pubkey, units uint64, markPriceE6 uint64) (err error) {
	defer func() { m.recordInstruction(TagWithdraw, err) }()
	if err = m.authorize(idx, signer); err != nil {
		return err
	}
	return m.Engine.Withdraw(idx, units, markPriceE6)
}

func (m *Market) authorize(idx uint32, signer keys.Pubkey) error {
	if err := m.Slab.CheckIdx(idx); err != nil {
		return err
	}
	d := decision.SingleOwner(m.Slab.Accounts[idx].Owner, signer)
	if !d.Accepted {
		return percerrors.ErrUnauthorized
	}
	return nil
}

// TradeNoCpiParams bundles the inputs for a direct (non-CPI) fill between
// a user and an LP at an operator-supplied exec price.
type TradeNoCpiParams struct {
	UserIdx      uint32
	LPIdx        uint32
	UserSigner   keys.Pubkey
	LPSigner     keys.Pubkey
	SignedSize   int64
	ExecPriceE6  uint64
	OraclePriceE6 uint64
	RiskIncrease bool
}

// TradeNoCpi applies a trade with no external matcher: both sides are
// authorized directly by their signers, and the gate is checked against
// the current insurance/threshold before the fill is applied to either
// account.
func (m *Market) TradeNoCpi(p TradeNoCpiParams) (err error) {
	defer func() { m.recordInstruction(TagTradeNoCpi, err) }()
	if m.resolved() {
		return percerrors.ErrPostResolution
	}
	if err = m.Slab.CheckIdx(p.UserIdx); err != nil {
		return err
	}
	if err = m.Slab.CheckIdx(p.LPIdx); err != nil {
		return err
	}

	gate := decision.GateActive(m.Slab.Header.RiskReductionThreshold, m.Slab.Header.InsuranceFund)
	d := decision.TradeNoCpi(decision.TradeNoCpiInputs{
		UserAuthorized: m.Slab.Accounts[p.UserIdx].Owner == p.UserSigner,
		LPAuthorized:   m.Slab.Accounts[p.LPIdx].Owner == p.LPSigner,
		GateActive:     gate,
		RiskIncrease:   p.RiskIncrease,
	})
	if !d.Accepted {
		if gate && p.RiskIncrease {
			err = percerrors.ErrRiskGate
		} else {
			err = percerrors.ErrUnauthorized
		}
		if m.Metrics != nil {
			m.Metrics.TradesRejected.WithLabelValues(err.Error()).Inc()
		}
		return err
	}

	err = m.settleTrade(p.UserIdx, p.LPIdx, p.SignedSize, p.ExecPriceE6)
	if m.Metrics != nil {
		if err == nil {
			m.Metrics.TradesAccepted.Inc()
		} else {
			m.Metrics.TradesRejected.WithLabelValues(err.Error()).Inc()
		}
	}
	return err
}

// TradeCpiParams bundles the inputs for a matcher-routed fill.
type TradeCpiParams struct {
	UserIdx            uint32
	LPIdx              uint32
	UserSigner         keys.Pubkey
	LPSigner           keys.Pubkey
	ProvidedProgram    keys.Pubkey
	ProvidedContext    keys.Pubkey
	ProgramExecutable  bool
	ContextExecutable  bool
	ContextOwner       keys.Pubkey
	ContextLen         int
	MinContextLen      int
	ShapeOK            bool
	PdaOK              bool
	RequestedSize      matcher.Int128
	OraclePriceE6      uint64
	RiskIncrease       bool
	Invoker            MatcherInvoker
}

// TradeCpi invokes the LP's bound matcher via CPI, validates its response
// against the ABI, and applies the matcher's exec_size/exec_price — never
// the caller's requested size — with a nonce effect coupled to acceptance.
func (m *Market) TradeCpi(p TradeCpiParams) (err error) {
	defer func() { m.recordInstruction(TagTradeCpi, err) }()
	if m.resolved() {
		return percerrors.ErrPostResolution
	}
	if err = m.Slab.CheckIdx(p.UserIdx); err != nil {
		return err
	}
	if err = m.Slab.CheckIdx(p.LPIdx); err != nil {
		return err
	}
	lp := &m.Slab.Accounts[p.LPIdx]

	identityOK := decision.CpiIdentityOK(decision.CpiIdentityInputs{
		ProvidedProgram:   p.ProvidedProgram,
		ProvidedContext:   p.ProvidedContext,
		BoundProgram:      lp.MatcherProgram,
		BoundContext:      lp.MatcherContext,
		ProgramExecutable: p.ProgramExecutable,
		ContextExecutable: p.ContextExecutable,
		ContextOwner:      p.ContextOwner,
		ContextLen:        p.ContextLen,
		MinContextLen:     p.MinContextLen,
	})

	noncePre := m.Slab.Header.Nonce
	reqID := decision.ReqIDForTrade(noncePre)

	req := matcher.Expected{
		AbiVersion:    1,
		ReqID:         reqID,
		LPAccountID:   lp.ID,
		OraclePriceE6: p.OraclePriceE6,
		ReqSize:       p.RequestedSize,
	}

	var resp matcher.Response
	var abiOK bool
	var execSize matcher.Int128
	if identityOK && p.ShapeOK && p.PdaOK {
		var err error
		resp, err = p.Invoker.InvokeMatcher(lp.MatcherProgram, lp.MatcherContext, req)
		if err == nil {
			execSize, err = matcher.Validate(resp, req)
			abiOK = err == nil
		}
	}

	gate := decision.GateActive(m.Slab.Header.RiskReductionThreshold, m.Slab.Header.InsuranceFund)
	userAuthorized := m.Slab.Accounts[p.UserIdx].Owner == p.UserSigner
	lpAuthorized := lp.Owner == p.LPSigner
	d := decision.TradeCpi(decision.TradeCpiInputs{
		ShapeOK:        p.ShapeOK,
		PdaOK:          p.PdaOK,
		UserAuthorized: userAuthorized,
		LPAuthorized:   lpAuthorized,
		IdentityOK:     identityOK,
		AbiOK:          abiOK,
		GateActive:     gate,
		RiskIncrease:   p.RiskIncrease,
	})
	if !d.Accepted {
		switch {
		case !identityOK:
			err = percerrors.ErrInvalidMatcherIdentity
		case !p.ShapeOK || !p.PdaOK:
			err = percerrors.ErrInvalidMatcherShape
		case !userAuthorized || !lpAuthorized:
			err = percerrors.ErrUnauthorized
		case gate && p.RiskIncrease:
			err = percerrors.ErrRiskGate
		default:
			err = percerrors.ErrInvalidMatcherAbi
		}
		if m.Metrics != nil {
			m.Metrics.TradesRejected.WithLabelValues(err.Error()).Inc()
		}
		return err
	}

	err = m.settleTrade(p.UserIdx, p.LPIdx, execSize.Int64(), resp.ExecPriceE6)
	if err == nil {
		m.Slab.Header.Nonce = decision.NonceOnAccept(noncePre)
	}
	if m.Metrics != nil {
		if err == nil {
			m.Metrics.TradesAccepted.Inc()
		} else {
			m.Metrics.TradesRejected.WithLabelValues(err.Error()).Inc()
		}
	}
	return err
}

func (m *Market) settleTrade(userIdx, lpIdx uint32, signedSize int64, execPriceE6 uint64) error {
	if err := m.Engine.Trade(userIdx, signedSize, execPriceE6); err != nil {
		return err
	}
	if err := m.Engine.Trade(lpIdx, -signedSize, execPriceE6); err != nil {
		return err
	}
	return nil
}

// ParseOraclePrice runs the configured source's parser and clamps the
// result into the slab's cached effective price, given the current slot.
func (m *Market) ParseOraclePrice(raw oracle.PythUpdate, currentSlot uint64) (uint64, error) {
	mark, err := oracle.ParsePyth(raw)
	if err != nil {
		return 0, err
	}
	return m.applyMark(mark, currentSlot), nil
}

// PushOraclePrice applies an authority-signed price push, rate-limited per
// signer so a compromised or misbehaving authority key cannot force the
// clamp to chase a manipulated price every slot. The signer is checked
// against the market's configured OracleAuthority (set by
// SetOracleAuthority), never against a caller-supplied expectation.
func (m *Market) PushOraclePrice(raw oracle.AuthorityPush, currentSlot uint64) (uint64, error) {
	raw.ExpectedSigner = m.Slab.Header.OracleAuthority
	mark, err := oracle.ParseAuthorityPush(raw)
	if err != nil {
		return 0, err
	}
	if !m.allowOraclePush(raw.Signer) {
		return 0, percerrors.ErrThrottled
	}
	return m.applyMark(mark, currentSlot), nil
}

func (m *Market) applyMark(mark, currentSlot uint64) uint64 {
	c := &m.Slab.Header.OracleCache
	var dt uint64
	if currentSlot > c.LastEffectiveSlot {
		dt = currentSlot - c.LastEffectiveSlot
	}
	effective := oracle.ClampTowardWithDt(c.LastEffective, mark, c.CapPerSlot, dt)
	c.LastPrice = mark
	c.LastEffective = effective
	c.LastEffectiveSlot = currentSlot
	return effective
}

func (m *Market) allowOraclePush(signer keys.Pubkey) bool {
	if m.oraclePushLimit == nil {
		return true
	}
	l, ok := m.oraclePushLimit[signer]
	if !ok {
		l = rate.NewLimiter(m.oraclePushRate, m.oraclePushBurst)
		m.oraclePushLimit[signer] = l
	}
	return l.Allow()
}

// WithOraclePushRateLimit enables per-authority throttling of PushOraclePrice.
// A disabled limit (perSecond <= 0) is a no-op.
func (m *Market) WithOraclePushRateLimit(perSecond float64, burst int) *Market {
	if perSecond <= 0 {
		return m
	}
	m.oraclePushLimit = make(map[keys.Pubkey]*rate.Limiter)
	m.oraclePushRate = rate.Limit(perSecond)
	m.oraclePushBurst = burst
	return m
}

// KeeperCrank runs one bounded crank pass.
func (m *Market) KeeperCrank(signer keys.Pubkey, callerIdx uint32, callerValid bool, currentSlot, markPriceE6 uint64, panicMode bool) (report crank.Report, err error) {
	defer func() { m.recordInstruction(TagKeeperCrank, err) }()
	target := decision.CrankTarget{}
	if callerValid {
		if cErr := m.Slab.CheckIdx(callerIdx); cErr == nil {
			target = decision.CrankTarget{Exists: true, Owner: m.Slab.Accounts[callerIdx].Owner}
		}
	}
	d := decision.Crank(target, signer, m.Slab.Header.Admin, panicMode)
	if !d.Accepted {
		err = percerrors.ErrUnauthorized
		return crank.Report{}, err
	}
	if !m.allowCrank(signer) {
		err = percerrors.ErrThrottled
		return crank.Report{}, err
	}
	report, err = m.Keeper.Run(&m.Cursor, currentSlot, markPriceE6, callerIdx, callerValid, panicMode)
	if m.Metrics != nil && err == nil {
		m.Metrics.CrankAccountsTouched.Add(float64(report.AccountsVisited))
		m.Metrics.CrankLiquidations.Add(float64(report.Liquidations))
		m.Metrics.CrankForceCloses.Add(float64(report.ForceCloses + report.ForceRealizes))
		m.Metrics.DustSwept.Add(float64(report.DustSwept))
	}
	return report, err
}

// LiquidateAtOracle force-liquidates a single account outside the bounded
// crank cursor, permissionless like KeeperCrank's own liquidation pass: any
// signer may trigger it, but it only succeeds against an account that is
// actually under its maintenance requirement at markPriceE6. It applies the
// same closed-form partial-close sizing the crank uses, so a direct call
// and a cursor pass over the same account liquidate it identically.
func (m *Market) LiquidateAtOracle(idx uint32, markPriceE6 uint64) (err error) {
	defer func() { m.recordInstruction(TagLiquidateAtOracle, err) }()
	if err = m.Slab.CheckIdx(idx); err != nil {
		return err
	}
	a := &m.Slab.Accounts[idx]
	liqSize, shouldLiquidate := crank.LiquidationSlice(a, markPriceE6, m.Slab.Config)
	if !shouldLiquidate {
		err = percerrors.ErrNotLiquidatable
		return err
	}
	abs := a.Position
	if abs < 0 {
		abs = -abs
	}
	if liqSize >= uint64(abs) {
		err = m.Engine.OracleClosePosition(idx, markPriceE6)
	} else {
		err = m.Engine.OracleClosePositionSlice(idx, liqSize, markPriceE6)
	}
	if err == nil && m.Metrics != nil {
		if liqSize >= uint64(abs) {
			m.Metrics.CrankForceCloses.Inc()
		} else {
			m.Metrics.CrankLiquidations.Inc()
		}
	}
	return err
}

// UpdateConfig applies a new market config; admin-only. It rejects a zero
// funding horizon or inverse notional scale, an alpha above 10_000 bps, and
// a threshold minimum above its maximum.
func (m *Market) UpdateConfig(signer keys.Pubkey, cfg slab.MarketConfig) (err error) {
	defer func() { m.recordInstruction(TagUpdateConfig, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	if cfg.FundingHorizonSlots == 0 || cfg.FundingInvScaleNotionalE6 == 0 ||
		cfg.ThreshAlphaBps > 10_000 || cfg.ThreshMin > cfg.ThreshMax {
		return percerrors.ErrInvalidConfig
	}
	m.Slab.Config = cfg
	return nil
}

// UpdateAdmin rotates the admin key, admin-only. Setting newAdmin to the
// zero key permanently burns admin authority: every subsequent decide_admin
// check rejects outright, regardless of who signs.
func (m *Market) UpdateAdmin(signer, newAdmin keys.Pubkey) (err error) {
	defer func() { m.recordInstruction(TagUpdateAdmin, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	m.Slab.Header.Admin = newAdmin
	return nil
}

// SetRiskThreshold sets the insurance-fund level below which the
// risk-reduction gate activates, admin-only.
func (m *Market) SetRiskThreshold(signer keys.Pubkey, threshold uint64) (err error) {
	defer func() { m.recordInstruction(TagSetRiskThreshold, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	m.Slab.Header.RiskReductionThreshold = threshold
	return nil
}

// SetMaintenanceFee sets the maintenance fee rate the crank charges open
// positions, admin-only. UpdateConfig can also set this field as part of a
// full config replacement; this instruction exists so an operator can
// adjust the fee alone without resending every other config field.
func (m *Market) SetMaintenanceFee(signer keys.Pubkey, bps uint64) (err error) {
	defer func() { m.recordInstruction(TagSetMaintenanceFee, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	m.Slab.Config.MaintenanceFeeBps = bps
	return nil
}

// SetOracleAuthority designates the signer PushOraclePrice trusts, admin-only.
func (m *Market) SetOracleAuthority(signer, authority keys.Pubkey) (err error) {
	defer func() { m.recordInstruction(TagSetOracleAuthority, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	m.Slab.Header.OracleAuthority = authority
	return nil
}

// SetOraclePriceCap sets the per-slot clamp rate applied to mark price
// movement, admin-only.
func (m *Market) SetOraclePriceCap(signer keys.Pubkey, capPerSlot uint64) (err error) {
	defer func() { m.recordInstruction(TagSetOraclePriceCap, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	m.Slab.Header.OracleCache.CapPerSlot = capPerSlot
	return nil
}

// ResolveMarket force-closes every open position at the given oracle price
// and marks the slab resolved, forbidding further deposits and trades.
func (m *Market) ResolveMarket(signer keys.Pubkey, markPriceE6 uint64) (err error) {
	defer func() { m.recordInstruction(TagResolveMarket, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	for i := range m.Slab.Accounts {
		if !m.Slab.Accounts[i].Used {
			continue
		}
		if m.Slab.Accounts[i].Position == 0 {
			continue
		}
		if err = m.Engine.OracleClosePosition(uint32(i), markPriceE6); err != nil {
			return err
		}
	}
	m.Slab.Header.Resolved = true
	return nil
}

// AdminForceCloseAccount force-closes a single account's position at the
// oracle price; permitted even post-resolution.
func (m *Market) AdminForceCloseAccount(signer keys.Pubkey, idx uint32, markPriceE6 uint64) (err error) {
	defer func() { m.recordInstruction(TagAdminForceCloseAccount, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	if err = m.Slab.CheckIdx(idx); err != nil {
		return err
	}
	return m.Engine.OracleClosePosition(idx, markPriceE6)
}

// TopUpInsurance credits the insurance fund, admin-only, the counterpart
// lever to WithdrawInsurance. Permitted even post-resolution, since a
// resolved market's force-closes and withdrawals can still draw on it.
func (m *Market) TopUpInsurance(signer keys.Pubkey, units uint64) (err error) {
	defer func() { m.recordInstruction(TagTopUpInsurance, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	m.Slab.Header.InsuranceFund = slab.SaturatingAddU64(m.Slab.Header.InsuranceFund, units)
	return nil
}

// WithdrawInsurance debits the insurance fund; permitted even
// post-resolution.
func (m *Market) WithdrawInsurance(signer keys.Pubkey, units uint64) (err error) {
	defer func() { m.recordInstruction(TagWithdrawInsurance, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	if units > m.Slab.Header.InsuranceFund {
		return percerrors.ErrInsufficientMargin
	}
	m.Slab.Header.InsuranceFund -= units
	return nil
}

// CloseAccount releases an account's slot once its close precondition
// holds.
func (m *Market) CloseAccount(signer keys.Pubkey, idx uint32) (err error) {
	defer func() { m.recordInstruction(TagCloseAccount, err) }()
	if err = m.authorize(idx, signer); err != nil {
		return err
	}
	if !m.Slab.ClosePrecondition(idx) {
		return percerrors.ErrInvalidAccount
	}
	m.Slab.ReleaseAccount(idx)
	return nil
}

// CloseSlab tears down the market once the vault, insurance fund, account
// table, and dust accumulator are all empty.
func (m *Market) CloseSlab(signer keys.Pubkey) (err error) {
	defer func() { m.recordInstruction(TagCloseSlab, err) }()
	if !decision.Admin(m.Slab.Header.Admin, signer).Accepted {
		return percerrors.ErrUnauthorized
	}
	if m.Slab.VaultBalance != 0 || m.Slab.Header.InsuranceFund != 0 {
		return percerrors.ErrStateInvariant
	}
	if m.Slab.Header.NumUsedAccounts != 0 {
		return percerrors.ErrStateInvariant
	}
	if m.Slab.Header.DustBase != 0 {
		return percerrors.ErrStateInvariant
	}
	*m.Slab = slab.Slab{}
	return nil
}
