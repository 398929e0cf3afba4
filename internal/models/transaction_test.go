package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricing_Price(t *testing.T) {
	assert.Equal(t, int64(30), Pricing{Credits: 30}.Price())
	agreed := int64(25)
	assert.Equal(t, int64(25), Pricing{Credits: 30, AgreedPrice: &agreed}.Price())
}

func TestStatus_Terminal(t *testing.T) {
	terminal := map[Status]bool{StatusPaid: true, StatusRejected: true, StatusCancelled: true, StatusDisputedResolved: true}
	for _, s := range Statuses {
		assert.Equal(t, terminal[s], s.Terminal(), s)
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("done").Valid())
}

func TestStamp_WriteOnceAndMonotonic(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	txn := &Transaction{Timeline: Timeline{Requested: base}}

	require.NoError(t, txn.Stamp(StampAccepted, base.Add(time.Hour)))
	require.ErrorIs(t, txn.Stamp(StampAccepted, base.Add(2*time.Hour)), ErrAlreadySet)

	// A clock that went backwards never produces an earlier stamp.
	require.NoError(t, txn.Stamp(StampStarted, base.Add(time.Minute)))
	assert.Equal(t, base.Add(time.Hour), *txn.Timeline.Started)

	assert.Error(t, txn.Stamp("finished", base))
}

func TestWriteOnceRecords(t *testing.T) {
	txn := &Transaction{}
	require.NoError(t, txn.SetPayment(Payment{Amount: 30}))
	assert.ErrorIs(t, txn.SetPayment(Payment{Amount: 1}), ErrAlreadySet)
	assert.Equal(t, int64(30), txn.Payment.Amount)

	require.NoError(t, txn.SetCancellation(Cancellation{Reason: "busy"}))
	assert.ErrorIs(t, txn.SetCancellation(Cancellation{}), ErrAlreadySet)

	require.NoError(t, txn.OpenDispute(Dispute{Reason: "no show", Resolution: ResolutionSplit}))
	assert.Empty(t, txn.Dispute.Resolution, "resolution is not set when opening")
	assert.ErrorIs(t, txn.OpenDispute(Dispute{}), ErrAlreadySet)
}

func TestClone_IsDeep(t *testing.T) {
	at := time.Now()
	fraction := 0.5
	orig := &Transaction{
		ID:       uuid.New(),
		Timeline: Timeline{Accepted: &at},
		Contact:  ContactDisclosure{ProviderShared: true, CustomerShared: true, SharedAt: &at},
		Payment:  &Payment{Amount: 10},
		Dispute:  &Dispute{SplitFraction: &fraction},
	}
	cp := orig.Clone()
	*cp.Timeline.Accepted = at.Add(time.Hour)
	cp.Payment.Amount = 99
	*cp.Dispute.SplitFraction = 1

	assert.Equal(t, at, *orig.Timeline.Accepted)
	assert.Equal(t, int64(10), orig.Payment.Amount)
	assert.Equal(t, 0.5, *orig.Dispute.SplitFraction)
}

func TestCounterparty(t *testing.T) {
	c, p := uuid.New(), uuid.New()
	txn := &Transaction{CustomerID: c, ProviderID: p}

	got, ok := txn.Counterparty(c)
	assert.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = txn.Counterparty(uuid.New())
	assert.False(t, ok)
	assert.True(t, txn.IsParty(p))
}
