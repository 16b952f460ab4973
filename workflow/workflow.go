// Package workflow drives the multi-step protocol flows: the idempotent bank
// bootstrap, the test-token faucet, and the single-instruction user
// operations. It owns no wire format; it composes the lending builders, the
// sender, and the reader.
package workflow

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openlend/lending-client/banksconfig"
	"github.com/openlend/lending-client/keys"
	"github.com/openlend/lending-client/lending"
	"github.com/openlend/lending-client/solana"
)

var (
	// ErrConfigNotLoaded means the banks config has no mint addresses, so no
	// user operation can even derive its accounts. Raised before any network
	// traffic.
	ErrConfigNotLoaded = errors.New("banks config not loaded")

	// ErrAddressMismatch means a re-derived bank address diverged from the one
	// the bank was initialized with. That can only happen when the config or
	// program id changed underneath us; depositing anyway would credit the
	// wrong bank, so this is fatal.
	ErrAddressMismatch = errors.New("derived address mismatch")
)

// Protocol parameters used when this client bootstraps a bank, matching the
// deployed program's setup.
const (
	defaultLiquidationThreshold = 80
	defaultMaxLTV               = 70

	bankFundingWholeUnits = 10
	faucetSolWholeUnits   = 5
	faucetUsdcWholeUnits  = 1000

	airdropLamports     = 100_000_000_000 // 100 SOL
	airdropMinLamports  = 1_000_000_000
	airdropPollAttempts = 20
)

// Submitter signs, sends, and confirms one transaction.
type Submitter interface {
	Submit(ctx context.Context, instructions []solana.Instruction, feePayer solana.Pubkey, signers map[solana.Pubkey]ed25519.PrivateKey) (string, error)
}

// StateReader is the existence-aware view of on-chain lending state.
type StateReader interface {
	FetchBank(ctx context.Context, address solana.Pubkey) (*lending.Bank, error)
	FetchUserAccount(ctx context.Context, address solana.Pubkey) (*lending.User, error)
	InvalidateBank(address solana.Pubkey)
	InvalidateUser(address solana.Pubkey)
}

// ChainRPC is the slice of the RPC client the workflow uses directly; all
// transaction traffic goes through the Submitter instead.
type ChainRPC interface {
	RequestAirdrop(ctx context.Context, pubkey string, lamports uint64) (string, error)
	BalanceLamports(ctx context.Context, pubkey string) (uint64, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
}

type Params struct {
	RPC        ChainRPC
	Sender     Submitter
	Reader     StateReader
	Config     *banksconfig.Config
	ConfigPath string

	Wallet    solana.Pubkey
	WalletKey ed25519.PrivateKey

	// ProgramID defaults to the deployed lending program.
	ProgramID solana.Pubkey

	// Airdrop requests lamports for the wallet before bootstrapping. Only
	// meaningful on test clusters.
	Airdrop bool

	Log *zap.Logger
}

type Client struct {
	rpc       ChainRPC
	sender    Submitter
	reader    StateReader
	cfg       *banksconfig.Config
	cfgPath   string
	wallet    solana.Pubkey
	walletKey ed25519.PrivateKey
	programID solana.Pubkey
	airdrop   bool
	log       *zap.Logger

	pollInterval time.Duration
}

func New(p Params) *Client {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	programID := p.ProgramID
	if programID.IsZero() {
		programID = lending.ProgramID
	}
	cfg := p.Config
	if cfg == nil {
		cfg = &banksconfig.Config{}
	}
	return &Client{
		rpc:          p.RPC,
		sender:       p.Sender,
		reader:       p.Reader,
		cfg:          cfg,
		cfgPath:      p.ConfigPath,
		wallet:       p.Wallet,
		walletKey:    p.WalletKey,
		programID:    programID,
		airdrop:      p.Airdrop,
		log:          log,
		pollInterval: time.Second,
	}
}

func (c *Client) walletSigners() map[solana.Pubkey]ed25519.PrivateKey {
	return map[solana.Pubkey]ed25519.PrivateKey{c.wallet: c.walletKey}
}

// Bootstrap converges the cluster to the fully set-up end state: both mints
// exist, both banks are initialized and seeded with liquidity, and the wallet
// has a user account. Every step checks for prior completion first, so a
// second run submits nothing; there is no locking, just existence checks.
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.airdrop {
		if err := c.ensureLamports(ctx); err != nil {
			return err
		}
	}

	// SOL first, then USDC. Both mints are resolved up front so the user
	// account can record the real USDC mint address.
	solMint, err := c.ensureMint(ctx, lending.TokenSOL)
	if err != nil {
		return err
	}
	usdcMint, err := c.ensureMint(ctx, lending.TokenUSDC)
	if err != nil {
		return err
	}

	for _, tok := range []struct {
		token lending.TokenType
		mint  solana.Pubkey
	}{
		{lending.TokenSOL, solMint},
		{lending.TokenUSDC, usdcMint},
	} {
		needsFunding, bank, err := c.ensureBank(ctx, tok.token, tok.mint)
		if err != nil {
			return err
		}
		if err := c.ensureUserAccount(ctx, usdcMint); err != nil {
			return err
		}
		if needsFunding {
			if err := c.fundBank(ctx, tok.token, tok.mint, bank); err != nil {
				return err
			}
		}
	}

	c.cfg.BanksInitialized = true
	if c.cfgPath != "" {
		if err := c.cfg.Save(c.cfgPath); err != nil {
			return err
		}
	}
	c.log.Info("bootstrap complete",
		zap.String("sol_mint", c.cfg.SolMint),
		zap.String("usdc_mint", c.cfg.UsdcMint))
	return nil
}

func (c *Client) ensureLamports(ctx context.Context) error {
	balance, err := c.rpc.BalanceLamports(ctx, c.wallet.Base58())
	if err != nil {
		return fmt.Errorf("check wallet balance: %w", err)
	}
	if balance >= airdropMinLamports {
		return nil
	}

	sig, err := c.rpc.RequestAirdrop(ctx, c.wallet.Base58(), airdropLamports)
	if err != nil {
		return fmt.Errorf("request airdrop: %w", err)
	}
	c.log.Info("requested airdrop", zap.String("signature", sig))

	for i := 0; i < airdropPollAttempts; i++ {
		newBalance, err := c.rpc.BalanceLamports(ctx, c.wallet.Base58())
		if err != nil {
			return fmt.Errorf("check wallet balance: %w", err)
		}
		if newBalance > balance {
			return nil
		}
		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("airdrop %s did not land", sig)
}

// ensureMint returns the recorded mint for the token, creating a fresh one
// (with the wallet as mint authority) when the config has none.
func (c *Client) ensureMint(ctx context.Context, token lending.TokenType) (solana.Pubkey, error) {
	recorded := c.cfg.SolMint
	if token == lending.TokenUSDC {
		recorded = c.cfg.UsdcMint
	}
	if recorded != "" {
		mint, err := solana.ParsePubkey(recorded)
		if err != nil {
			return solana.Pubkey{}, fmt.Errorf("recorded %s mint: %w", token, err)
		}
		c.log.Debug("using recorded mint",
			zap.Stringer("token", token), zap.String("mint", recorded))
		return mint, nil
	}

	mint, mintKey, err := keys.NewEphemeral()
	if err != nil {
		return solana.Pubkey{}, err
	}
	rent, err := c.rpc.MinimumBalanceForRentExemption(ctx, solana.MintAccountSize)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("mint rent exemption: %w", err)
	}

	ixs := []solana.Instruction{
		solana.SystemCreateAccount(c.wallet, mint, solana.CreateAccountArgs{
			Lamports: rent,
			Space:    solana.MintAccountSize,
			Owner:    solana.TokenProgramID,
		}),
		solana.TokenInitializeMint2(mint, solana.InitializeMintArgs{
			Decimals:      token.Decimals(),
			MintAuthority: c.wallet,
		}),
	}
	signers := c.walletSigners()
	signers[mint] = mintKey

	sig, err := c.sender.Submit(ctx, ixs, c.wallet, signers)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("create %s mint: %w", token, err)
	}
	c.log.Info("mint created",
		zap.Stringer("token", token),
		zap.String("mint", mint.Base58()),
		zap.String("signature", sig))

	if token == lending.TokenUSDC {
		c.cfg.SetUsdcMint(mint, c.wallet)
	} else {
		c.cfg.SetSolMint(mint, c.wallet)
	}
	return mint, nil
}

// ensureBank initializes the bank for a mint unless it already exists.
// needsFunding reports whether the bank still holds no deposits, so a run
// that crashed between initialization and funding gets picked up where it
// stopped instead of leaving the bank empty forever.
func (c *Client) ensureBank(ctx context.Context, token lending.TokenType, mint solana.Pubkey) (needsFunding bool, bank solana.Pubkey, err error) {
	bank, _, err = lending.BankAddress(c.programID, mint)
	if err != nil {
		return false, bank, err
	}
	existing, err := c.reader.FetchBank(ctx, bank)
	if err != nil {
		return false, bank, err
	}
	if existing != nil {
		c.log.Debug("bank already initialized",
			zap.Stringer("token", token),
			zap.String("bank", bank.Base58()),
			zap.Uint64("total_deposits", existing.TotalDeposits))
		return existing.TotalDeposits == 0, bank, nil
	}

	treasury, _, err := lending.TreasuryAddress(c.programID, mint)
	if err != nil {
		return false, bank, err
	}
	ix := lending.NewInitializeBankInstruction(c.programID,
		lending.InitializeBankAccounts{
			Signer:   c.wallet,
			Mint:     mint,
			Bank:     bank,
			Treasury: treasury,
		},
		lending.InitializeBankArgs{
			LiquidationThreshold: defaultLiquidationThreshold,
			MaxLTV:               defaultMaxLTV,
		})

	sig, err := c.sender.Submit(ctx, []solana.Instruction{ix}, c.wallet, c.walletSigners())
	if err != nil {
		return false, bank, fmt.Errorf("initialize %s bank: %w", token, err)
	}
	c.reader.InvalidateBank(bank)
	c.log.Info("bank initialized",
		zap.Stringer("token", token),
		zap.String("bank", bank.Base58()),
		zap.String("signature", sig))
	return true, bank, nil
}

func (c *Client) ensureUserAccount(ctx context.Context, usdcMint solana.Pubkey) error {
	user, _, err := lending.UserAccountAddress(c.programID, c.wallet)
	if err != nil {
		return err
	}
	existing, err := c.reader.FetchUserAccount(ctx, user)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	ix := lending.NewInitializeAccountInstruction(c.programID,
		lending.InitializeAccountAccounts{Signer: c.wallet, UserAccount: user},
		lending.InitializeAccountArgs{UsdcAddress: usdcMint})

	sig, err := c.sender.Submit(ctx, []solana.Instruction{ix}, c.wallet, c.walletSigners())
	if err != nil {
		return fmt.Errorf("initialize user account: %w", err)
	}
	c.reader.InvalidateUser(user)
	c.log.Info("user account initialized",
		zap.String("user_account", user.Base58()),
		zap.String("signature", sig))
	return nil
}

// fundBank seeds a freshly initialized bank: mint funding tokens to the
// wallet's ATA, then deposit them through the protocol so the bank holds real
// liquidity from the start.
func (c *Client) fundBank(ctx context.Context, token lending.TokenType, mint, bank solana.Pubkey) error {
	if err := c.requireMintAuthority(token); err != nil {
		return err
	}

	ata, _, err := solana.FindAssociatedTokenAddress(c.wallet, mint)
	if err != nil {
		return err
	}
	amount := lending.WholeUnits(bankFundingWholeUnits, token.Decimals())

	mintIxs := []solana.Instruction{
		solana.ATACreateIdempotent(c.wallet, ata, c.wallet, mint),
		solana.TokenMintTo(mint, ata, c.wallet, amount),
	}
	sig, err := c.sender.Submit(ctx, mintIxs, c.wallet, c.walletSigners())
	if err != nil {
		return fmt.Errorf("mint %s funding tokens: %w", token, err)
	}
	c.log.Info("funding tokens minted",
		zap.Stringer("token", token),
		zap.Uint64("amount", amount),
		zap.String("signature", sig))

	// The deposit derives the bank independently; a divergence from the
	// initialize-bank derivation means the deposit would credit a different
	// bank, so stop rather than skip.
	derivedBank, _, err := lending.BankAddress(c.programID, mint)
	if err != nil {
		return err
	}
	if derivedBank != bank {
		return fmt.Errorf("%w: bank initialized at %s but deposit derives %s",
			ErrAddressMismatch, bank.Base58(), derivedBank.Base58())
	}

	sig, err = c.submitAmountOp(ctx, opDeposit, token, mint, amount, solana.Pubkey{})
	if err != nil {
		return fmt.Errorf("fund %s bank: %w", token, err)
	}
	c.log.Info("bank funded",
		zap.Stringer("token", token),
		zap.String("bank", bank.Base58()),
		zap.String("signature", sig))
	return nil
}

func (c *Client) requireMintAuthority(token lending.TokenType) error {
	recorded := c.cfg.SolMintAuthority
	if token == lending.TokenUSDC {
		recorded = c.cfg.UsdcMintAuthority
	}
	authority, err := solana.ParsePubkey(recorded)
	if err != nil {
		return fmt.Errorf("recorded %s mint authority: %w", token, err)
	}
	if authority != c.wallet {
		return fmt.Errorf("%s mint authority is %s, not the loaded wallet %s",
			token, authority.Base58(), c.wallet.Base58())
	}
	return nil
}

// Faucet mints test tokens to a wallet: 5 SOL-mint units and 1000 USDC-mint
// units, creating the recipient's token accounts as needed. The loaded wallet
// must hold mint authority.
func (c *Client) Faucet(ctx context.Context, recipient solana.Pubkey) ([]string, error) {
	if !c.cfg.HasMints() {
		return nil, ErrConfigNotLoaded
	}

	var sigs []string
	for _, grant := range []struct {
		token lending.TokenType
		whole uint64
	}{
		{lending.TokenSOL, faucetSolWholeUnits},
		{lending.TokenUSDC, faucetUsdcWholeUnits},
	} {
		if err := c.requireMintAuthority(grant.token); err != nil {
			return sigs, err
		}
		mint, err := c.mintFor(grant.token)
		if err != nil {
			return sigs, err
		}
		ata, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
		if err != nil {
			return sigs, err
		}
		amount := lending.WholeUnits(grant.whole, grant.token.Decimals())

		ixs := []solana.Instruction{
			solana.ATACreateIdempotent(c.wallet, ata, recipient, mint),
			solana.TokenMintTo(mint, ata, c.wallet, amount),
		}
		sig, err := c.sender.Submit(ctx, ixs, c.wallet, c.walletSigners())
		if err != nil {
			return sigs, fmt.Errorf("faucet %s: %w", grant.token, err)
		}
		c.log.Info("faucet minted",
			zap.Stringer("token", grant.token),
			zap.String("recipient", recipient.Base58()),
			zap.Uint64("amount", amount),
			zap.String("signature", sig))
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// InitAccount creates the wallet's user account if it does not exist yet.
// Returns an empty signature when the account was already there.
func (c *Client) InitAccount(ctx context.Context) (string, error) {
	if !c.cfg.HasMints() {
		return "", ErrConfigNotLoaded
	}
	user, _, err := lending.UserAccountAddress(c.programID, c.wallet)
	if err != nil {
		return "", err
	}
	existing, err := c.reader.FetchUserAccount(ctx, user)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", nil
	}
	usdcMint, err := c.cfg.UsdcMintAddress()
	if err != nil {
		return "", err
	}

	ix := lending.NewInitializeAccountInstruction(c.programID,
		lending.InitializeAccountAccounts{Signer: c.wallet, UserAccount: user},
		lending.InitializeAccountArgs{UsdcAddress: usdcMint})
	sig, err := c.sender.Submit(ctx, []solana.Instruction{ix}, c.wallet, c.walletSigners())
	if err != nil {
		return "", err
	}
	c.reader.InvalidateUser(user)
	return sig, nil
}

type amountOp int

const (
	opDeposit amountOp = iota
	opWithdraw
	opBorrow
	opRepay
)

func (o amountOp) String() string {
	switch o {
	case opDeposit:
		return "deposit"
	case opWithdraw:
		return "withdraw"
	case opBorrow:
		return "borrow"
	default:
		return "repay"
	}
}

// Deposit moves amount (smallest units) from the wallet's token account into
// the bank.
func (c *Client) Deposit(ctx context.Context, token lending.TokenType, amount uint64) (string, error) {
	return c.amountOp(ctx, opDeposit, token, amount, solana.Pubkey{})
}

func (c *Client) Withdraw(ctx context.Context, token lending.TokenType, amount uint64) (string, error) {
	return c.amountOp(ctx, opWithdraw, token, amount, solana.Pubkey{})
}

// Borrow needs the pyth price update account the program uses to value the
// collateral; the caller supplies it because it is cluster-specific.
func (c *Client) Borrow(ctx context.Context, token lending.TokenType, amount uint64, priceUpdate solana.Pubkey) (string, error) {
	return c.amountOp(ctx, opBorrow, token, amount, priceUpdate)
}

func (c *Client) Repay(ctx context.Context, token lending.TokenType, amount uint64) (string, error) {
	return c.amountOp(ctx, opRepay, token, amount, solana.Pubkey{})
}

func (c *Client) amountOp(ctx context.Context, op amountOp, token lending.TokenType, amount uint64, priceUpdate solana.Pubkey) (string, error) {
	if !c.cfg.HasMints() {
		return "", ErrConfigNotLoaded
	}
	mint, err := c.mintFor(token)
	if err != nil {
		return "", err
	}
	sig, err := c.submitAmountOp(ctx, op, token, mint, amount, priceUpdate)
	if err != nil {
		return "", err
	}
	c.log.Info("operation confirmed",
		zap.Stringer("op", op),
		zap.Stringer("token", token),
		zap.Uint64("amount", amount),
		zap.String("signature", sig))
	return sig, nil
}

func (c *Client) submitAmountOp(ctx context.Context, op amountOp, token lending.TokenType, mint solana.Pubkey, amount uint64, priceUpdate solana.Pubkey) (string, error) {
	bank, _, err := lending.BankAddress(c.programID, mint)
	if err != nil {
		return "", err
	}
	treasury, _, err := lending.TreasuryAddress(c.programID, mint)
	if err != nil {
		return "", err
	}
	user, _, err := lending.UserAccountAddress(c.programID, c.wallet)
	if err != nil {
		return "", err
	}

	// Deposit/withdraw/repay move tokens through the wallet's own associated
	// token account. Borrow is the exception: the program pays borrowed funds
	// into an account owned by the user-account PDA, so the ATA is derived
	// from the PDA, not the wallet.
	tokenAccountOwner := c.wallet
	if op == opBorrow {
		tokenAccountOwner = user
	}
	ata, _, err := solana.FindAssociatedTokenAddress(tokenAccountOwner, mint)
	if err != nil {
		return "", err
	}

	accounts := lending.AmountOpAccounts{
		Signer:           c.wallet,
		Mint:             mint,
		Bank:             bank,
		Treasury:         treasury,
		UserAccount:      user,
		UserTokenAccount: ata,
	}
	args := lending.AmountOpArgs{Amount: amount, TokenType: token}

	var ix solana.Instruction
	switch op {
	case opDeposit:
		ix = lending.NewDepositInstruction(c.programID, accounts, args)
	case opWithdraw:
		ix = lending.NewWithdrawInstruction(c.programID, accounts, args)
	case opBorrow:
		ix = lending.NewBorrowInstruction(c.programID, accounts, priceUpdate, args)
	case opRepay:
		ix = lending.NewRepayInstruction(c.programID, accounts, args)
	}

	sig, err := c.sender.Submit(ctx, []solana.Instruction{ix}, c.wallet, c.walletSigners())
	if err != nil {
		return "", err
	}
	c.reader.InvalidateBank(bank)
	c.reader.InvalidateUser(user)
	return sig, nil
}

func (c *Client) mintFor(token lending.TokenType) (solana.Pubkey, error) {
	if token == lending.TokenUSDC {
		return c.cfg.UsdcMintAddress()
	}
	return c.cfg.SolMintAddress()
}
