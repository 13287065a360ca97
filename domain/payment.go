package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT METHOD - Sum type over credit cards and savings accounts
// =============================================================================

// AccountType discriminates the PaymentMethod variants.
type AccountType string

const (
	AccountCredit  AccountType = "credit"
	AccountSavings AccountType = "savings"
)

// PaymentMethodInfo holds the fields every variant shares.
type PaymentMethodInfo struct {
	ID              uuid.UUID
	Name            string
	TransactionType TransactionType
	OwnerID         uuid.UUID
	SortOrder       int

	// OpeningBalance is the running total the method started with:
	// the outstanding debt for credit, the balance for savings.
	OpeningBalance decimal.Decimal
}

// Info returns the shared fields.
func (i PaymentMethodInfo) Info() PaymentMethodInfo { return i }

// PaymentMethod is either a CreditCard or a SavingsAccount.
//
// Shared fields are reachable through Info(). Variant fields require a type
// switch:
//
//	switch m := pm.(type) {
//	case domain.CreditCard:
//	    _ = m.OutstandingBalance
//	case domain.SavingsAccount:
//	    _ = m.Balance
//	}
type PaymentMethod interface {
	Info() PaymentMethodInfo
	AccountType() AccountType
	paymentMethod()
}

// CreditCard tracks debt against a limit.
//
// OutstandingBalance may be negative (the holder over-paid) but never above
// CreditLimit.
type CreditCard struct {
	PaymentMethodInfo
	CreditLimit        decimal.Decimal
	OutstandingBalance decimal.Decimal
	BillingDate        int // day of month, 0 when unset
}

func (CreditCard) AccountType() AccountType { return AccountCredit }
func (CreditCard) paymentMethod()           {}

// SavingsAccount tracks a plain balance. No floor is enforced.
type SavingsAccount struct {
	PaymentMethodInfo
	Balance decimal.Decimal
}

func (SavingsAccount) AccountType() AccountType { return AccountSavings }
func (SavingsAccount) paymentMethod()           {}

// =============================================================================
// BALANCE ARITHMETIC
// =============================================================================

// ApplyBillAmount returns pm with a signed bill amount applied.
//
//	Credit:  outstanding - amount, rejected when the result exceeds the limit
//	Savings: balance + amount, always accepted
//
// To reverse a bill pass amount.Neg(). pm itself is never modified.
func ApplyBillAmount(pm PaymentMethod, amount decimal.Decimal) (PaymentMethod, error) {
	switch m := pm.(type) {
	case CreditCard:
		next := m.OutstandingBalance.Sub(amount)
		if next.GreaterThan(m.CreditLimit) {
			return pm, &CreditLimitExceededError{
				PaymentMethodID: m.ID,
				CreditLimit:     m.CreditLimit,
				Outstanding:     m.OutstandingBalance,
				Attempted:       next,
			}
		}
		m.OutstandingBalance = next
		return m, nil
	case SavingsAccount:
		m.Balance = m.Balance.Add(amount)
		return m, nil
	default:
		return pm, fmt.Errorf("%w: %T", ErrUnknownAccountType, pm)
	}
}

// RevertBillAmount undoes a previous ApplyBillAmount(pm, amount) exactly.
// It skips the credit limit check: restoring a prior state is always allowed.
func RevertBillAmount(pm PaymentMethod, amount decimal.Decimal) PaymentMethod {
	switch m := pm.(type) {
	case CreditCard:
		m.OutstandingBalance = m.OutstandingBalance.Add(amount)
		return m
	case SavingsAccount:
		m.Balance = m.Balance.Sub(amount)
		return m
	}
	return pm
}

// RunningTotal returns the outstanding balance of a credit card or the
// balance of a savings account.
func RunningTotal(pm PaymentMethod) decimal.Decimal {
	switch m := pm.(type) {
	case CreditCard:
		return m.OutstandingBalance
	case SavingsAccount:
		return m.Balance
	}
	return decimal.Zero
}

// ExpectedRunningTotal recomputes what the running total must be given the
// amounts of every bill currently applied to pm.
func ExpectedRunningTotal(pm PaymentMethod, applied []decimal.Decimal) decimal.Decimal {
	total := pm.Info().OpeningBalance
	for _, a := range applied {
		if pm.AccountType() == AccountCredit {
			total = total.Sub(a)
		} else {
			total = total.Add(a)
		}
	}
	return total
}

// WithOpeningBalance records a new opening balance and shifts the running
// total by the same difference, keeping every applied bill in place.
func WithOpeningBalance(pm PaymentMethod, opening decimal.Decimal) (PaymentMethod, error) {
	diff := opening.Sub(pm.Info().OpeningBalance)
	switch m := pm.(type) {
	case CreditCard:
		next := m.OutstandingBalance.Add(diff)
		if next.GreaterThan(m.CreditLimit) {
			return pm, &CreditLimitExceededError{
				PaymentMethodID: m.ID,
				CreditLimit:     m.CreditLimit,
				Outstanding:     m.OutstandingBalance,
				Attempted:       next,
			}
		}
		m.OutstandingBalance = next
		m.OpeningBalance = opening
		return m, nil
	case SavingsAccount:
		m.Balance = m.Balance.Add(diff)
		m.OpeningBalance = opening
		return m, nil
	default:
		return pm, fmt.Errorf("%w: %T", ErrUnknownAccountType, pm)
	}
}

// NewCreditCard builds a credit card whose opening outstanding balance is
// the given outstanding value.
func NewCreditCard(info PaymentMethodInfo, limit, outstanding decimal.Decimal, billingDate int) CreditCard {
	info.OpeningBalance = outstanding
	return CreditCard{
		PaymentMethodInfo:  info,
		CreditLimit:        limit,
		OutstandingBalance: outstanding,
		BillingDate:        billingDate,
	}
}

// NewSavingsAccount builds a savings account opened with balance.
func NewSavingsAccount(info PaymentMethodInfo, balance decimal.Decimal) SavingsAccount {
	info.OpeningBalance = balance
	return SavingsAccount{PaymentMethodInfo: info, Balance: balance}
}
