package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
)

// =============================================================================
// ADMINISTRATIVE EDITS
// =============================================================================
// These are the only balance changes not caused by a bill. They take the
// same per payment method lock as bill mutations.

// SetOpeningBalance records a new opening balance for a payment method.
// The running total moves by the same difference so every applied bill
// stays accounted for. Credit cards are still held to their limit.
func (e *Engine) SetOpeningBalance(ctx context.Context, pmID uuid.UUID, opening decimal.Decimal) (domain.PaymentMethod, error) {
	var result domain.PaymentMethod
	err := e.run(ctx, opSetOpeningBalance, domain.KindPaymentMethod, pmID, []uuid.UUID{pmID}, func(ctx context.Context, t *txn) error {
		pm, err := t.paymentMethod(ctx, pmID)
		if err != nil {
			return err
		}
		next, err := domain.WithOpeningBalance(pm, opening)
		if err != nil {
			return err
		}
		if err := t.repo.UpdatePaymentMethod(ctx, next); err != nil {
			return t.persistence(domain.KindPaymentMethod, pmID, err)
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("payment_method_id", pmID.String()).Str("opening_balance", opening.String()).
		Msg("opening balance set")
	return result, nil
}

// UpdatePaymentMethodDetails edits the descriptive fields of a payment
// method: name, transaction type, sort order and, for credit cards, the
// credit limit and billing date.
//
// The running total and opening balance always come from storage; values
// carried by pm for them are ignored. Account type and owner cannot change.
// A credit limit below the current outstanding balance is rejected.
func (e *Engine) UpdatePaymentMethodDetails(ctx context.Context, pm domain.PaymentMethod) (domain.PaymentMethod, error) {
	info := pm.Info()
	var result domain.PaymentMethod

	err := e.run(ctx, opUpdatePaymentMethod, domain.KindPaymentMethod, info.ID, []uuid.UUID{info.ID}, func(ctx context.Context, t *txn) error {
		current, err := t.paymentMethod(ctx, info.ID)
		if err != nil {
			return err
		}
		if current.AccountType() != pm.AccountType() {
			return fmt.Errorf("%w: account type %s -> %s", domain.ErrImmutableField, current.AccountType(), pm.AccountType())
		}
		if current.Info().OwnerID != info.OwnerID {
			return fmt.Errorf("%w: owner of payment method %s", domain.ErrImmutableField, info.ID)
		}

		next, err := mergeDetails(current, pm)
		if err != nil {
			return err
		}
		if err := t.repo.UpdatePaymentMethod(ctx, next); err != nil {
			return t.persistence(domain.KindPaymentMethod, info.ID, err)
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("payment_method_id", info.ID.String()).Msg("payment method updated")
	return result, nil
}

func mergeDetails(current, edit domain.PaymentMethod) (domain.PaymentMethod, error) {
	in := edit.Info()
	switch cur := current.(type) {
	case domain.CreditCard:
		card, ok := edit.(domain.CreditCard)
		if !ok {
			return nil, fmt.Errorf("%w: %T", domain.ErrUnknownAccountType, edit)
		}
		cur.Name = in.Name
		cur.TransactionType = in.TransactionType
		cur.SortOrder = in.SortOrder
		cur.BillingDate = card.BillingDate
		if cur.OutstandingBalance.GreaterThan(card.CreditLimit) {
			return nil, &domain.CreditLimitExceededError{
				PaymentMethodID: cur.ID,
				CreditLimit:     card.CreditLimit,
				Outstanding:     cur.OutstandingBalance,
				Attempted:       cur.OutstandingBalance,
			}
		}
		cur.CreditLimit = card.CreditLimit
		return cur, nil
	case domain.SavingsAccount:
		if _, ok := edit.(domain.SavingsAccount); !ok {
			return nil, fmt.Errorf("%w: %T", domain.ErrUnknownAccountType, edit)
		}
		cur.Name = in.Name
		cur.TransactionType = in.TransactionType
		cur.SortOrder = in.SortOrder
		return cur, nil
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownAccountType, current)
	}
}
