package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openlend/lending-client/banksconfig"
	"github.com/openlend/lending-client/keys"
	"github.com/openlend/lending-client/lending"
	"github.com/openlend/lending-client/sender"
	"github.com/openlend/lending-client/solana"
	"github.com/openlend/lending-client/solanarpc"
	"github.com/openlend/lending-client/workflow"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		printUsage(os.Stdout)
		return nil
	}

	switch argv[0] {
	case "setup":
		return cmdSetup(argv[1:])
	case "faucet":
		return cmdFaucet(argv[1:])
	case "init-account":
		return cmdInitAccount(argv[1:])
	case "deposit":
		return cmdAmountOp(argv[1:], "deposit")
	case "withdraw":
		return cmdAmountOp(argv[1:], "withdraw")
	case "borrow":
		return cmdBorrow(argv[1:])
	case "repay":
		return cmdAmountOp(argv[1:], "repay")
	case "status":
		return cmdStatus(argv[1:])
	case "pda":
		return cmdPDA(argv[1:])
	default:
		return fmt.Errorf("unknown command: %s", argv[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "lending-cli: client for the on-chain lending protocol")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  lending-cli setup [-airdrop=false]")
	fmt.Fprintln(w, "  lending-cli faucet <recipient>")
	fmt.Fprintln(w, "  lending-cli init-account")
	fmt.Fprintln(w, "  lending-cli deposit  -token SOL|USDC -amount <decimal>")
	fmt.Fprintln(w, "  lending-cli withdraw -token SOL|USDC -amount <decimal>")
	fmt.Fprintln(w, "  lending-cli borrow   -token SOL|USDC -amount <decimal> -price-update <pubkey>")
	fmt.Fprintln(w, "  lending-cli repay    -token SOL|USDC -amount <decimal>")
	fmt.Fprintln(w, "  lending-cli status")
	fmt.Fprintln(w, "  lending-cli pda [-wallet <pubkey>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  setup         Bootstrap mints, banks, seed liquidity, and the deployer user account. Idempotent.")
	fmt.Fprintln(w, "  faucet        Mint 5 SOL and 1000 USDC test tokens to a wallet.")
	fmt.Fprintln(w, "  init-account  Create the wallet's user account if it does not exist.")
	fmt.Fprintln(w, "  deposit       Deposit tokens into a bank.")
	fmt.Fprintln(w, "  withdraw      Withdraw deposited tokens.")
	fmt.Fprintln(w, "  borrow        Borrow against deposited collateral.")
	fmt.Fprintln(w, "  repay         Repay borrowed tokens.")
	fmt.Fprintln(w, "  status        Print bank and user account state.")
	fmt.Fprintln(w, "  pda           Print the derived protocol addresses.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags: -keypair, -rpc-url (or $SOLANA_RPC_URL), -config, -cluster, -cu-price, -v")
}

// commonFlags registers the flags every command shares.
type commonFlags struct {
	keypair string
	rpcURL  string
	config  string
	cluster string
	cuPrice uint64
	verbose bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.keypair, "keypair", keys.DefaultPath(), "Path to the Solana CLI keypair file")
	fs.StringVar(&c.rpcURL, "rpc-url", "", "RPC endpoint (defaults to $SOLANA_RPC_URL, then the local validator)")
	fs.StringVar(&c.config, "config", banksconfig.DefaultPath(), "Path to banks-config.json")
	fs.StringVar(&c.cluster, "cluster", "localnet", "Cluster name used to key cached reads")
	fs.Uint64Var(&c.cuPrice, "cu-price", 0, "Priority fee in micro-lamports per compute unit (0 = none)")
	fs.BoolVar(&c.verbose, "v", false, "Verbose (debug) logging")
	return c
}

type app struct {
	flow   *workflow.Client
	reader *lending.Reader
	config *banksconfig.Config
	wallet solana.Pubkey
	log    *zap.Logger
}

func buildApp(c *commonFlags, airdrop bool) (*app, error) {
	log, err := buildLogger(c.verbose)
	if err != nil {
		return nil, err
	}

	walletKey, wallet, err := keys.Load(c.keypair)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", c.keypair, err)
	}

	var rpc *solanarpc.Client
	if c.rpcURL != "" {
		rpc = solanarpc.New(c.rpcURL, nil)
	} else if rpc, err = solanarpc.ClientFromEnv(); err != nil {
		return nil, err
	}

	cfg, err := banksconfig.Load(c.config)
	if err != nil {
		return nil, err
	}

	reader := lending.NewReader(rpc, c.cluster)
	flow := workflow.New(workflow.Params{
		RPC:        rpc,
		Sender:     sender.New(rpc, log, sender.WithComputeUnitPrice(c.cuPrice)),
		Reader:     reader,
		Config:     cfg,
		ConfigPath: c.config,
		Wallet:     wallet,
		WalletKey:  walletKey,
		Airdrop:    airdrop,
		Log:        log,
	})
	return &app{flow: flow, reader: reader, config: cfg, wallet: wallet, log: log}, nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}

func cmdSetup(argv []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	var airdrop bool
	fs.BoolVar(&airdrop, "airdrop", true, "Request an airdrop for the deployer wallet first")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}

	a, err := buildApp(common, airdrop)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, cancel := opContext()
	defer cancel()
	return a.flow.Bootstrap(ctx)
}

func cmdFaucet(argv []string) error {
	fs := flag.NewFlagSet("faucet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return fmt.Errorf("usage: faucet <recipient>")
	}
	recipient, err := solana.ParsePubkey(fs.Args()[0])
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}

	a, err := buildApp(common, false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, cancel := opContext()
	defer cancel()
	sigs, err := a.flow.Faucet(ctx, recipient)
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		fmt.Println(sig)
	}
	return nil
}

func cmdInitAccount(argv []string) error {
	fs := flag.NewFlagSet("init-account", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}

	a, err := buildApp(common, false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, cancel := opContext()
	defer cancel()
	sig, err := a.flow.InitAccount(ctx)
	if err != nil {
		return err
	}
	if sig == "" {
		fmt.Println("user account already exists")
		return nil
	}
	fmt.Println(sig)
	return nil
}

func cmdAmountOp(argv []string, op string) error {
	fs := flag.NewFlagSet(op, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	var tokenStr, amountStr string
	fs.StringVar(&tokenStr, "token", "", "Token: SOL or USDC")
	fs.StringVar(&amountStr, "amount", "", "Amount in whole tokens (e.g. 1.5)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	token, amount, err := parseTokenAmount(tokenStr, amountStr)
	if err != nil {
		return err
	}

	a, err := buildApp(common, false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, cancel := opContext()
	defer cancel()

	var sig string
	switch op {
	case "deposit":
		sig, err = a.flow.Deposit(ctx, token, amount)
	case "withdraw":
		sig, err = a.flow.Withdraw(ctx, token, amount)
	case "repay":
		sig, err = a.flow.Repay(ctx, token, amount)
	}
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func cmdBorrow(argv []string) error {
	fs := flag.NewFlagSet("borrow", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	var tokenStr, amountStr, priceUpdateStr string
	fs.StringVar(&tokenStr, "token", "", "Token: SOL or USDC")
	fs.StringVar(&amountStr, "amount", "", "Amount in whole tokens (e.g. 1.5)")
	fs.StringVar(&priceUpdateStr, "price-update", "", "Pyth price update account")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	token, amount, err := parseTokenAmount(tokenStr, amountStr)
	if err != nil {
		return err
	}
	if priceUpdateStr == "" {
		return errors.New("-price-update is required")
	}
	priceUpdate, err := solana.ParsePubkey(priceUpdateStr)
	if err != nil {
		return fmt.Errorf("parse -price-update: %w", err)
	}

	a, err := buildApp(common, false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, cancel := opContext()
	defer cancel()
	sig, err := a.flow.Borrow(ctx, token, amount, priceUpdate)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func cmdStatus(argv []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}

	a, err := buildApp(common, false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if !a.config.HasMints() {
		return workflow.ErrConfigNotLoaded
	}

	ctx, cancel := opContext()
	defer cancel()

	for _, token := range []lending.TokenType{lending.TokenSOL, lending.TokenUSDC} {
		mint, err := mintFor(a.config, token)
		if err != nil {
			return err
		}
		bankAddr, _, err := lending.BankAddress(lending.ProgramID, mint)
		if err != nil {
			return err
		}
		bank, err := a.reader.FetchBank(ctx, bankAddr)
		if err != nil {
			return err
		}
		if bank == nil {
			fmt.Printf("%s bank %s: not initialized\n", token, bankAddr.Base58())
			continue
		}
		dec := token.Decimals()
		fmt.Printf("%s bank %s:\n", token, bankAddr.Base58())
		fmt.Printf("  deposits: %s  borrows: %s\n",
			lending.FormatAmount(bank.TotalDeposits, dec),
			lending.FormatAmount(bank.TotalBorrows, dec))
		fmt.Printf("  liquidation threshold: %d  max LTV: %d\n",
			bank.LiquidationThreshold, bank.MaxLTV)
	}

	userAddr, _, err := lending.UserAccountAddress(lending.ProgramID, a.wallet)
	if err != nil {
		return err
	}
	user, err := a.reader.FetchUserAccount(ctx, userAddr)
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Printf("user account %s: not initialized\n", userAddr.Base58())
		return nil
	}
	fmt.Printf("user account %s:\n", userAddr.Base58())
	fmt.Printf("  SOL  deposited: %s  borrowed: %s\n",
		lending.FormatAmount(user.DepositedSol, lending.SolDecimals),
		lending.FormatAmount(user.BorrowedSol, lending.SolDecimals))
	fmt.Printf("  USDC deposited: %s  borrowed: %s\n",
		lending.FormatAmount(user.DepositedUsdc, lending.UsdcDecimals),
		lending.FormatAmount(user.BorrowedUsdc, lending.UsdcDecimals))
	return nil
}

func cmdPDA(argv []string) error {
	fs := flag.NewFlagSet("pda", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	common := registerCommon(fs)
	var walletStr string
	fs.StringVar(&walletStr, "wallet", "", "Wallet to derive for (defaults to the loaded keypair)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}

	cfg, err := banksconfig.Load(common.config)
	if err != nil {
		return err
	}

	var wallet solana.Pubkey
	if walletStr != "" {
		if wallet, err = solana.ParsePubkey(walletStr); err != nil {
			return fmt.Errorf("parse -wallet: %w", err)
		}
	} else {
		if _, wallet, err = keys.Load(common.keypair); err != nil {
			return fmt.Errorf("load keypair %s: %w", common.keypair, err)
		}
	}

	userAddr, userBump, err := lending.UserAccountAddress(lending.ProgramID, wallet)
	if err != nil {
		return err
	}
	fmt.Printf("program: %s\n", lending.ProgramID.Base58())
	fmt.Printf("user account: %s (bump %d)\n", userAddr.Base58(), userBump)

	for _, token := range []lending.TokenType{lending.TokenSOL, lending.TokenUSDC} {
		mint, err := mintFor(cfg, token)
		if err != nil {
			fmt.Printf("%s: mint not recorded in %s\n", token, common.config)
			continue
		}
		bank, bankBump, err := lending.BankAddress(lending.ProgramID, mint)
		if err != nil {
			return err
		}
		treasury, _, err := lending.TreasuryAddress(lending.ProgramID, mint)
		if err != nil {
			return err
		}
		ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
		if err != nil {
			return err
		}
		fmt.Printf("%s mint: %s\n", token, mint.Base58())
		fmt.Printf("  bank: %s (bump %d)\n", bank.Base58(), bankBump)
		fmt.Printf("  treasury: %s\n", treasury.Base58())
		fmt.Printf("  wallet token account: %s\n", ata.Base58())
	}
	return nil
}

func parseTokenAmount(tokenStr, amountStr string) (lending.TokenType, uint64, error) {
	token, err := parseToken(tokenStr)
	if err != nil {
		return 0, 0, err
	}
	if amountStr == "" {
		return 0, 0, errors.New("-amount is required")
	}
	amount, err := lending.ParseAmount(amountStr, token.Decimals())
	if err != nil {
		return 0, 0, fmt.Errorf("parse -amount: %w", err)
	}
	return token, amount, nil
}

func parseToken(s string) (lending.TokenType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SOL":
		return lending.TokenSOL, nil
	case "USDC":
		return lending.TokenUSDC, nil
	case "":
		return 0, errors.New("-token is required")
	default:
		return 0, fmt.Errorf("unknown token %q (want SOL or USDC)", s)
	}
}

func mintFor(cfg *banksconfig.Config, token lending.TokenType) (solana.Pubkey, error) {
	if token == lending.TokenUSDC {
		return cfg.UsdcMintAddress()
	}
	return cfg.SolMintAddress()
}
