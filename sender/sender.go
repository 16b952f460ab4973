// Package sender turns built instructions into confirmed transactions: it
// fetches a recent blockhash, signs, submits, and awaits confirmation,
// retrying once with a fresh blockhash when the first one ages out.
package sender

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openlend/lending-client/solana"
	"github.com/openlend/lending-client/solanarpc"
)

var (
	// ErrTransactionExpired means the transaction's blockhash aged out twice:
	// once on the original submission and once on the internal retry.
	ErrTransactionExpired = errors.New("transaction expired")

	ErrInstructionRejected = errors.New("instruction rejected by program")
)

// InstructionRejectedError carries the program-level rejection. Code is the
// program's custom error code when the failure was a custom error, -1
// otherwise; Raw preserves the node's error value for diagnosis. Rejections
// are never retried: resubmitting a logically-rejected instruction cannot
// change the outcome.
type InstructionRejectedError struct {
	Code int64
	Raw  json.RawMessage
}

func (e *InstructionRejectedError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("%s: custom error %d", ErrInstructionRejected.Error(), e.Code)
	}
	return fmt.Sprintf("%s: %s", ErrInstructionRejected.Error(), string(e.Raw))
}

func (e *InstructionRejectedError) Unwrap() error { return ErrInstructionRejected }

// RPC is the slice of the RPC client the sender needs.
type RPC interface {
	LatestBlockhash(ctx context.Context) (solanarpc.Blockhash, error)
	SendTransaction(ctx context.Context, tx []byte) (string, error)
	SignatureStatus(ctx context.Context, signature string) (*solanarpc.SignatureStatus, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

type Sender struct {
	rpc            RPC
	log            *zap.Logger
	confirmTimeout time.Duration
	pollInterval   time.Duration
	cuLimit        uint32
	cuPrice        uint64
}

type Option func(*Sender)

func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Sender) { s.confirmTimeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Sender) { s.pollInterval = d }
}

// WithComputeUnitLimit prepends a compute-budget instruction to every
// transaction. Zero disables it.
func WithComputeUnitLimit(limit uint32) Option {
	return func(s *Sender) { s.cuLimit = limit }
}

// WithComputeUnitPrice sets a priority fee in micro-lamports per compute
// unit, prepended to every transaction. Zero disables it.
func WithComputeUnitPrice(microLamports uint64) Option {
	return func(s *Sender) { s.cuPrice = microLamports }
}

func New(rpc RPC, log *zap.Logger, opts ...Option) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sender{
		rpc:            rpc,
		log:            log,
		confirmTimeout: 30 * time.Second,
		pollInterval:   time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit signs, sends, and confirms one transaction, returning its signature.
// The signature is the caller's only durable proof of the mutation; callers
// must invalidate dependent cached reads after a successful return. Once a
// transaction has been sent it may land even if the caller stops waiting.
func (s *Sender) Submit(
	ctx context.Context,
	instructions []solana.Instruction,
	feePayer solana.Pubkey,
	signers map[solana.Pubkey]ed25519.PrivateKey,
) (string, error) {
	var prefix []solana.Instruction
	if s.cuLimit != 0 {
		prefix = append(prefix, solana.ComputeBudgetSetComputeUnitLimit(s.cuLimit))
	}
	if s.cuPrice != 0 {
		prefix = append(prefix, solana.ComputeBudgetSetComputeUnitPrice(s.cuPrice))
	}
	ixs := instructions
	if len(prefix) != 0 {
		ixs = append(prefix, instructions...)
	}

	const maxAttempts = 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sig, err := s.submitOnce(ctx, ixs, feePayer, signers)
		if err == nil {
			return sig, nil
		}
		if !errors.Is(err, ErrTransactionExpired) {
			return "", err
		}
		if attempt < maxAttempts {
			s.log.Warn("blockhash expired, resubmitting with a fresh one",
				zap.Int("attempt", attempt))
			continue
		}
	}
	return "", ErrTransactionExpired
}

func (s *Sender) submitOnce(
	ctx context.Context,
	ixs []solana.Instruction,
	feePayer solana.Pubkey,
	signers map[solana.Pubkey]ed25519.PrivateKey,
) (string, error) {
	bh, err := s.rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.BuildAndSignLegacyTransaction(bh.Hash, feePayer, signers, ixs)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	sig, err := s.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	s.log.Debug("transaction submitted",
		zap.String("signature", sig),
		zap.Uint64("last_valid_block_height", bh.LastValidBlockHeight))

	return s.awaitConfirmation(ctx, sig, bh.LastValidBlockHeight)
}

func (s *Sender) awaitConfirmation(ctx context.Context, sig string, lastValidBlockHeight uint64) (string, error) {
	deadline := time.Now().Add(s.confirmTimeout)
	for {
		st, err := s.rpc.SignatureStatus(ctx, sig)
		if err != nil {
			return "", fmt.Errorf("confirm %s: %w", sig, err)
		}
		if st != nil {
			if len(st.Err) != 0 && string(st.Err) != "null" {
				rej := parseTransactionError(st.Err)
				s.log.Warn("transaction rejected",
					zap.String("signature", sig),
					zap.Int64("code", rej.Code))
				return "", rej
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				s.log.Info("transaction confirmed",
					zap.String("signature", sig),
					zap.Uint64("slot", st.Slot))
				return sig, nil
			}
		}

		if height, err := s.rpc.BlockHeight(ctx); err == nil && height > lastValidBlockHeight {
			return "", ErrTransactionExpired
		}
		if time.Now().After(deadline) {
			return "", ErrTransactionExpired
		}

		t := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

// parseTransactionError extracts the custom program error code from the
// node's error value, which looks like {"InstructionError":[0,{"Custom":6001}]}.
func parseTransactionError(raw json.RawMessage) *InstructionRejectedError {
	out := &InstructionRejectedError{Code: -1, Raw: raw}

	var wrapper struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || len(wrapper.InstructionError) < 2 {
		return out
	}
	var custom struct {
		Custom *int64 `json:"Custom"`
	}
	if err := json.Unmarshal(wrapper.InstructionError[1], &custom); err != nil || custom.Custom == nil {
		return out
	}
	out.Code = *custom.Custom
	return out
}
