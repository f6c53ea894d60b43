package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// ReferencePricer supplies the share price a deposit is valued at. Lookup
// failures degrade to a price of 1, so the method never errors.
type ReferencePricer interface {
	ReferencePrice(ctx context.Context, tx domain.LedgerTx, vault domain.Vault) domain.PricePoint
}

// errDropEvent aborts the unit of work for an event that must not be applied
// (withdrawal-shaped with no ACTIVE position). The rollback also discards the
// idempotency marker, so a later replay can still apply the event once its
// position exists.
var errDropEvent = errors.New("ledger: event dropped")

// Processor is the guard+updater pipeline shared by the live listener and the
// backfill scanner. Each event is processed in one transaction: idempotency
// marker, position read (locked), transition, write.
type Processor struct {
	uow    domain.UnitOfWork
	pricer ReferencePricer
	up     Updater
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(uow domain.UnitOfWork, pricer ReferencePricer, logger *slog.Logger) *Processor {
	return &Processor{
		uow:    uow,
		pricer: pricer,
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
}

// Process applies one decoded event to the ledger. Duplicate transactions and
// droppable events return nil; only infrastructure failures surface as errors.
func (p *Processor) Process(ctx context.Context, vault domain.Vault, ev domain.VaultEvent) error {
	log := p.logger.With(
		slog.String("vault", vault.ContractAddress),
		slog.String("txhash", ev.TxHash),
		slog.String("kind", string(ev.Kind)),
		slog.String("source", string(ev.Source)),
	)

	err := p.uow.Do(ctx, func(tx domain.LedgerTx) error {
		inserted, err := tx.Transactions().Insert(ctx, ev.TxHash)
		if err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		if !inserted {
			log.InfoContext(ctx, "transaction already processed, skipping")
			return nil
		}
		return p.apply(ctx, tx, vault, ev, log)
	})
	if errors.Is(err, errDropEvent) {
		return nil
	}
	return err
}

func (p *Processor) apply(ctx context.Context, tx domain.LedgerTx, vault domain.Vault, ev domain.VaultEvent, log *slog.Logger) error {
	now := p.now().UTC()

	pos, err := tx.Positions().GetActive(ctx, vault.ID, ev.UserAddress)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		if ev.Kind.IsWithdrawalShaped() {
			// Never fabricate a position from a withdrawal-shaped event.
			log.WarnContext(ctx, "no active position for event, dropping",
				slog.String("user", ev.UserAddress))
			return errDropEvent
		}
	default:
		return fmt.Errorf("load position: %w", err)
	}
	hasPosition := err == nil

	switch ev.Kind {
	case domain.EventDeposit:
		ref := p.pricer.ReferencePrice(ctx, tx, vault)
		if !hasPosition {
			pos = p.up.OpenPosition(vault.ID, ev.UserAddress, ev.Amount, ref.PricePerShare, now)
			if err := tx.Positions().Create(ctx, &pos); err != nil {
				return fmt.Errorf("create position: %w", err)
			}
			log.InfoContext(ctx, "position opened",
				slog.String("user", ev.UserAddress),
				slog.String("amount", ev.Amount.String()),
				slog.String("entry_price", ref.PricePerShare.String()))
			return nil
		}
		p.up.Deposit(&pos, ev.Amount, ref.PricePerShare)
		log.InfoContext(ctx, "deposit applied",
			slog.String("user", ev.UserAddress),
			slog.String("amount", ev.Amount.String()),
			slog.String("entry_price", pos.EntryPrice.String()))

	case domain.EventInitiateWithdraw:
		p.up.InitiateWithdraw(&pos, ev.Amount, now)
		log.InfoContext(ctx, "withdrawal initiated",
			slog.String("user", ev.UserAddress),
			slog.String("amount", ev.Amount.String()),
			slog.String("pending", pos.PendingWithdrawal.String()))

	case domain.EventCompleteWithdraw:
		p.up.CompleteWithdraw(&pos, ev.Amount, now)
		if pos.Status == domain.PositionStatusClosed {
			log.InfoContext(ctx, "position closed",
				slog.String("user", ev.UserAddress),
				slog.String("amount", ev.Amount.String()))
		} else {
			log.InfoContext(ctx, "withdrawal completed",
				slog.String("user", ev.UserAddress),
				slog.String("balance", pos.TotalBalance.String()))
		}

	case domain.EventPositionOpened, domain.EventPositionClosed:
		if vault.Category != domain.CategoryPoints {
			log.WarnContext(ctx, "restaking event on non-points vault, dropping")
			return errDropEvent
		}
		if ev.Kind == domain.EventPositionOpened {
			if err := recordExternalDeposit(ctx, tx, pos.ID, ev.Amount, now); err != nil {
				return err
			}
		} else {
			if err := recordExternalWithdrawal(ctx, tx, pos.ID, ev.Amount, now); err != nil {
				return err
			}
		}
		log.InfoContext(ctx, "restaking exposure recorded",
			slog.String("user", ev.UserAddress),
			slog.String("amount", ev.Amount.String()))
		return nil

	default:
		log.WarnContext(ctx, "unknown event kind, dropping")
		return errDropEvent
	}

	if err := tx.Positions().Update(ctx, pos); err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}
