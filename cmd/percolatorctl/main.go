// percolatorctl is an operator CLI for a single local market: it loads a
// slab from a LevelDB data directory (creating one on init-market), applies
// one dispatcher call per invocation, and persists the result back. There is
// no chain runtime backing this binary, so every call that would normally
// run inside a transaction instead runs as one local, non-atomic step.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"percolator/config"
	"percolator/core/keys"
	"percolator/internal/dispatcher"
	"percolator/internal/slab"
	"percolator/internal/store"
	"percolator/observability/logging"
	"percolator/observability/metrics"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	bootLogger := logging.Setup("percolatorctl", os.Getenv("PERCOLATOR_ENV"))

	cfgPath := os.Getenv("PERCOLATOR_CONFIG")
	if cfgPath == "" {
		cfgPath = "percolator.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.SetupWithFile("percolatorctl", cfg.Environment, cfg.LogFile)
	logger.Info("invocation", "command", os.Args[1], "correlation_id", uuid.NewString())

	switch os.Args[1] {
	case "init-market":
		runInitMarket(cfg)
	case "init-user":
		runInitUser(cfg)
	case "init-lp":
		runInitLP(cfg)
	case "deposit":
		runDeposit(cfg)
	case "withdraw":
		runWithdraw(cfg)
	case "trade":
		runTrade(cfg)
	case "crank":
		runCrank(cfg)
	case "show":
		runShow(cfg)
	case "resolve":
		runResolve(cfg)
	case "update-admin":
		runUpdateAdmin(cfg)
	case "set-risk-threshold":
		runSetRiskThreshold(cfg)
	case "set-maintenance-fee":
		runSetMaintenanceFee(cfg)
	case "set-oracle-authority":
		runSetOracleAuthority(cfg)
	case "set-oracle-price-cap":
		runSetOraclePriceCap(cfg)
	case "top-up-insurance":
		runTopUpInsurance(cfg)
	case "liquidate":
		runLiquidateAtOracle(cfg)
	default:
		fmt.Printf("unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`usage: percolatorctl <command> [args]

commands:
  init-market <admin-hex> <vault-authority-hex>
  init-user   <owner-hex>
  init-lp     <owner-hex> <matcher-program-hex> <matcher-context-hex>
  deposit     <account-idx> <signer-hex> <units>
  withdraw    <account-idx> <signer-hex> <units> <mark-price-e6>
  trade       <user-idx> <lp-idx> <user-signer-hex> <lp-signer-hex> <signed-size> <exec-price-e6>
  crank       <current-slot> <mark-price-e6>
  resolve     <admin-hex> <mark-price-e6>
  update-admin          <admin-hex> <new-admin-hex>
  set-risk-threshold    <admin-hex> <threshold>
  set-maintenance-fee   <admin-hex> <bps>
  set-oracle-authority  <admin-hex> <authority-hex>
  set-oracle-price-cap  <admin-hex> <cap-per-slot>
  top-up-insurance      <admin-hex> <units>
  liquidate             <account-idx> <mark-price-e6>
  show`)
}

func dataDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "slab.db")
}

func openMarket(cfg *config.Config) (*store.LevelDB, *dispatcher.Market, error) {
	db, err := store.Open(dataDir(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	s, err := store.LoadSlab(db)
	if err != nil {
		s = slab.New(keys.Zero, keys.Zero, cfg.UnitScale, cfg.Market.ToSlabConfig())
	}
	m := dispatcher.NewMarket(s).WithMetrics(metrics.Registry())
	return db, m, nil
}

func closeMarket(db *store.LevelDB, m *dispatcher.Market) error {
	if err := store.SaveSlab(db, m.Slab); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func parseKey(s string) keys.Pubkey {
	raw, err := hex.DecodeString(s)
	if err != nil {
		fmt.Printf("bad key %q: %v\n", s, err)
		os.Exit(1)
	}
	k, err := keys.FromBytes(raw)
	if err != nil {
		fmt.Printf("bad key %q: %v\n", s, err)
		os.Exit(1)
	}
	return k
}

func parseU64(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fmt.Printf("bad number %q: %v\n", s, err)
		os.Exit(1)
	}
	return v
}

func parseU32(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		fmt.Printf("bad number %q: %v\n", s, err)
		os.Exit(1)
	}
	return uint32(v)
}

func parseI64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Printf("bad number %q: %v\n", s, err)
		os.Exit(1)
	}
	return v
}

func runInitMarket(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl init-market <admin-hex> <vault-authority-hex>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	vaultAuthority := parseKey(os.Args[3])

	db, err := store.Open(dataDir(cfg))
	if err != nil {
		fmt.Printf("open store: %v\n", err)
		os.Exit(1)
	}
	m := dispatcher.NewMarket(&slab.Slab{}).WithMetrics(metrics.Registry())
	if err := m.InitMarket(admin, vaultAuthority, cfg.UnitScale, cfg.Market.ToSlabConfig()); err != nil {
		fmt.Printf("init-market: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("market initialized")
}

func runInitUser(cfg *config.Config) {
	if len(os.Args) < 3 {
		fmt.Println("usage: percolatorctl init-user <owner-hex>")
		os.Exit(1)
	}
	owner := parseKey(os.Args[2])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	idx, err := m.InitUser(owner)
	if err != nil {
		fmt.Printf("init-user: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("user account %d\n", idx)
}

func runInitLP(cfg *config.Config) {
	if len(os.Args) < 5 {
		fmt.Println("usage: percolatorctl init-lp <owner-hex> <matcher-program-hex> <matcher-context-hex>")
		os.Exit(1)
	}
	owner := parseKey(os.Args[2])
	matcherProgram := parseKey(os.Args[3])
	matcherContext := parseKey(os.Args[4])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	idx, err := m.InitLP(owner, matcherProgram, matcherContext)
	if err != nil {
		fmt.Printf("init-lp: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("lp account %d\n", idx)
}

func runDeposit(cfg *config.Config) {
	if len(os.Args) < 5 {
		fmt.Println("usage: percolatorctl deposit <account-idx> <signer-hex> <units>")
		os.Exit(1)
	}
	idx := parseU32(os.Args[2])
	signer := parseKey(os.Args[3])
	units := parseU64(os.Args[4])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.Deposit(idx, signer, units); err != nil {
		fmt.Printf("deposit: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("deposit applied")
}

func runWithdraw(cfg *config.Config) {
	if len(os.Args) < 6 {
		fmt.Println("usage: percolatorctl withdraw <account-idx> <signer-hex> <units> <mark-price-e6>")
		os.Exit(1)
	}
	idx := parseU32(os.Args[2])
	signer := parseKey(os.Args[3])
	units := parseU64(os.Args[4])
	markPriceE6 := parseU64(os.Args[5])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.Withdraw(idx, signer, units, markPriceE6); err != nil {
		fmt.Printf("withdraw: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("withdraw applied")
}

func runTrade(cfg *config.Config) {
	if len(os.Args) < 8 {
		fmt.Println("usage: percolatorctl trade <user-idx> <lp-idx> <user-signer-hex> <lp-signer-hex> <signed-size> <exec-price-e6>")
		os.Exit(1)
	}
	userIdx := parseU32(os.Args[2])
	lpIdx := parseU32(os.Args[3])
	userSigner := parseKey(os.Args[4])
	lpSigner := parseKey(os.Args[5])
	signedSize := parseI64(os.Args[6])
	execPriceE6 := parseU64(os.Args[7])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	err = m.TradeNoCpi(dispatcher.TradeNoCpiParams{
		UserIdx:     userIdx,
		LPIdx:       lpIdx,
		UserSigner:  userSigner,
		LPSigner:    lpSigner,
		SignedSize:  signedSize,
		ExecPriceE6: execPriceE6,
	})
	if err != nil {
		fmt.Printf("trade: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("trade applied")
}

func runCrank(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl crank <current-slot> <mark-price-e6>")
		os.Exit(1)
	}
	currentSlot := parseU64(os.Args[2])
	markPriceE6 := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	m.WithCrankRateLimit(0.5, 1)
	report, err := m.KeeperCrank(keys.Zero, 0, false, currentSlot, markPriceE6, false)
	if err != nil {
		fmt.Printf("crank: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("visited=%d fees=%d liquidations=%d force_closes=%d dust_swept=%d\n",
		report.AccountsVisited, report.MaintenanceFeesApplied, report.Liquidations, report.ForceCloses, report.DustSwept)
}

func runResolve(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl resolve <admin-hex> <mark-price-e6>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	markPriceE6 := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.ResolveMarket(admin, markPriceE6); err != nil {
		fmt.Printf("resolve: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("market resolved")
}

func runUpdateAdmin(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl update-admin <admin-hex> <new-admin-hex>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	newAdmin := parseKey(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.UpdateAdmin(admin, newAdmin); err != nil {
		fmt.Printf("update-admin: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("admin updated")
}

func runSetRiskThreshold(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl set-risk-threshold <admin-hex> <threshold>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	threshold := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.SetRiskThreshold(admin, threshold); err != nil {
		fmt.Printf("set-risk-threshold: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("risk threshold updated")
}

func runSetMaintenanceFee(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl set-maintenance-fee <admin-hex> <bps>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	bps := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.SetMaintenanceFee(admin, bps); err != nil {
		fmt.Printf("set-maintenance-fee: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("maintenance fee updated")
}

func runSetOracleAuthority(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl set-oracle-authority <admin-hex> <authority-hex>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	authority := parseKey(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.SetOracleAuthority(admin, authority); err != nil {
		fmt.Printf("set-oracle-authority: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("oracle authority updated")
}

func runSetOraclePriceCap(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl set-oracle-price-cap <admin-hex> <cap-per-slot>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	capPerSlot := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.SetOraclePriceCap(admin, capPerSlot); err != nil {
		fmt.Printf("set-oracle-price-cap: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("oracle price cap updated")
}

func runTopUpInsurance(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl top-up-insurance <admin-hex> <units>")
		os.Exit(1)
	}
	admin := parseKey(os.Args[2])
	units := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.TopUpInsurance(admin, units); err != nil {
		fmt.Printf("top-up-insurance: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("insurance fund topped up")
}

func runLiquidateAtOracle(cfg *config.Config) {
	if len(os.Args) < 4 {
		fmt.Println("usage: percolatorctl liquidate <account-idx> <mark-price-e6>")
		os.Exit(1)
	}
	idx := parseU32(os.Args[2])
	markPriceE6 := parseU64(os.Args[3])

	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := m.LiquidateAtOracle(idx, markPriceE6); err != nil {
		fmt.Printf("liquidate: %v\n", err)
		db.Close()
		os.Exit(1)
	}
	if err := closeMarket(db, m); err != nil {
		fmt.Printf("save: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("account liquidated")
}

func runShow(cfg *config.Config) {
	db, m, err := openMarket(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer db.Close()

	h := m.Slab.Header
	fmt.Printf("admin=%s vault_authority=%s oracle_authority=%s resolved=%t\n", h.Admin, h.VaultAuthority, h.OracleAuthority, h.Resolved)
	fmt.Printf("unit_scale=%d dust_base=%d nonce=%d insurance_fund=%d risk_threshold=%d oracle_cap_per_slot=%d\n",
		h.UnitScale, h.DustBase, h.Nonce, h.InsuranceFund, h.RiskReductionThreshold, h.OracleCache.CapPerSlot)
	fmt.Printf("used_accounts=%d capital_total=%d oi_long=%d oi_short=%d\n",
		h.NumUsedAccounts, m.Slab.Aggregates.CapitalTotal, m.Slab.Aggregates.OILong, m.Slab.Aggregates.OIShort)
	if err := m.Slab.CheckConservation(); err != nil {
		fmt.Printf("conservation check: %v\n", err)
	} else {
		fmt.Println("conservation check: ok")
	}
}
