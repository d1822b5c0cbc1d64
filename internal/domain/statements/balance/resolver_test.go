package balance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
)

type fakeAccounts struct {
	applied     bool
	gotBalance  decimal.Decimal
	gotAsOf     time.Time
	applyResult bool
	err         error
}

func (f *fakeAccounts) GetAccount(context.Context, uuid.UUID) (*repository.Account, error) {
	return nil, nil
}

func (f *fakeAccounts) ApplyBalance(_ context.Context, _ uuid.UUID, balance decimal.Decimal, asOf time.Time) (bool, error) {
	f.applied = true
	f.gotBalance = balance
	f.gotAsOf = asOf
	return f.applyResult, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolve_FromBalanceText(t *testing.T) {
	r := New(&fakeAccounts{}, testLogger())

	res, ok := r.Resolve("Closing Balance 31/03/2024 1,234.56", "", date("2024-03-15"))

	require.True(t, ok)
	assert.Equal(t, "1234.56", res.Amount.String())
	assert.Equal(t, date("2024-03-31"), res.AsOf)
}

func TestResolve_ScansRawTextWhenNoBalanceText(t *testing.T) {
	r := New(&fakeAccounts{}, testLogger())
	raw := "ACME BANK\n2024-03-01 GROCERY -45.20\nEnding balance: 987.65\nThank you"

	res, ok := r.Resolve("", raw, date("2024-03-01"))

	require.True(t, ok)
	assert.Equal(t, "987.65", res.Amount.String())
	assert.Equal(t, date("2024-03-01"), res.AsOf, "falls back to the latest transaction date")
}

func TestResolve_LastAmountOnLineWins(t *testing.T) {
	r := New(&fakeAccounts{}, testLogger())

	res, ok := r.Resolve("Opening balance 100.00 Closing balance 250.00", "", date("2024-03-01"))

	require.True(t, ok)
	assert.Equal(t, "250", res.Amount.String())
}

func TestResolve_OverdrawnMarker(t *testing.T) {
	r := New(&fakeAccounts{}, testLogger())

	res, ok := r.Resolve("Closing balance 120.00 DR", "", date("2024-03-01"))

	require.True(t, ok)
	assert.Equal(t, "-120", res.Amount.String())
}

func TestResolve_NoBalance(t *testing.T) {
	r := New(&fakeAccounts{}, testLogger())

	_, ok := r.Resolve("", "just some text without figures", date("2024-03-01"))
	assert.False(t, ok)

	_, ok = r.Resolve("", "closing balance line with 10.00", time.Time{})
	// No date on the line and no transactions: nothing to anchor recency on.
	assert.False(t, ok)
}

func TestApply_PassesThroughToRepository(t *testing.T) {
	accounts := &fakeAccounts{applyResult: true}
	r := New(accounts, testLogger())
	accountID := uuid.New()

	applied, err := r.Apply(context.Background(), accountID, Resolution{
		Amount: decimal.RequireFromString("1234.56"),
		AsOf:   date("2024-03-31"),
	})

	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, accounts.applied)
	assert.Equal(t, "1234.56", accounts.gotBalance.String())
	assert.Equal(t, date("2024-03-31"), accounts.gotAsOf)
}

func TestShouldApply(t *testing.T) {
	older := date("2024-02-28")
	newer := date("2024-03-31")

	assert.True(t, ShouldApply(newer, nil), "no stored as-of date always applies")
	assert.True(t, ShouldApply(newer, &older))
	assert.False(t, ShouldApply(older, &newer), "an older statement never overwrites a newer balance")
	assert.True(t, ShouldApply(newer, &newer), "re-import of the same statement refreshes the balance")
}
