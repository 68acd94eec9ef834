/**
 * @description
 * This file defines the money value object and the commission-split arithmetic used
 * across the payments-service. The split is computed once, deterministically, and the
 * same function serves both checkout creation and payment completion so the two call
 * sites can never disagree about who gets what.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact decimal arithmetic for monetary amounts.
 */

package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrInvalidFeePercent = errors.New("fee percentage must be between 0 and 100")
	ErrInvalidCurrency   = errors.New("currency must be a 3-letter code")
)

var oneHundred = decimal.NewFromInt(100)

// Money is an amount in a single currency. The currency is fixed for the lifetime
// of a payment.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney validates and returns a Money value.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// CommissionSplit is the derived breakdown of a gross amount into the platform fee
// and the counterparty share. PlatformFee + CounterpartyAmount always equals
// TotalAmount exactly; any rounding remainder lands in CounterpartyAmount.
type CommissionSplit struct {
	TotalAmount        decimal.Decimal `json:"total_amount"`
	FeePercentage      decimal.Decimal `json:"fee_percentage"`
	PlatformFee        decimal.Decimal `json:"platform_fee"`
	CounterpartyAmount decimal.Decimal `json:"counterparty_amount"`
}

// Split divides total into the platform fee and the counterparty amount.
// The fee is rounded half-up to 2 decimal places; the counterparty share is the
// exact remainder.
func Split(total decimal.Decimal, feePercent decimal.Decimal) (CommissionSplit, error) {
	if total.IsNegative() {
		return CommissionSplit{}, ErrNegativeAmount
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(oneHundred) {
		return CommissionSplit{}, fmt.Errorf("%w: got %s", ErrInvalidFeePercent, feePercent)
	}

	fee := total.Mul(feePercent.Div(oneHundred)).Round(2)
	return CommissionSplit{
		TotalAmount:        total,
		FeePercentage:      feePercent,
		PlatformFee:        fee,
		CounterpartyAmount: total.Sub(fee),
	}, nil
}
