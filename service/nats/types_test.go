package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/aliquot/service/db"
)

func TestFromDBDistribution(t *testing.T) {
	txRef := "sig-tx-1"
	fundRef := "sig-funding-1"
	recordedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	event := FromDBDistribution(&db.Distribution{
		ID:                   7,
		StreamID:             "mint-1",
		TotalAmount:          1_000_000_000,
		RecipientCount:       3,
		AmountPerHolder:      292_500_000,
		PlatformFee:          25_000_000,
		TreasuryAmount:       97_500_000,
		TransactionReference: &txRef,
		FundingReference:     &fundRef,
		Status:               "completed",
		SourceOperation:      "webhook",
		CreatedAt:            recordedAt,
	})

	assert.Equal(t, "mint-1", event.StreamID)
	assert.Equal(t, "completed", event.Status)
	assert.Equal(t, int64(1_000_000_000), event.TotalAmount)
	assert.Equal(t, 3, event.RecipientCount)
	assert.Equal(t, int64(292_500_000), event.AmountPerHolder)
	require.NotNil(t, event.TransactionReference)
	assert.Equal(t, txRef, *event.TransactionReference)
	require.NotNil(t, event.FundingReference)
	assert.Equal(t, fundRef, *event.FundingReference)
	assert.Equal(t, recordedAt, event.RecordedAt)
	assert.False(t, event.PublishedAt.IsZero())
	assert.Nil(t, event.ErrorDetail)
}

func TestMockPublisher(t *testing.T) {
	pub := NewMockPublisher()

	ctx := context.Background()
	require.NoError(t, pub.PublishDistribution(ctx, &DistributionEvent{StreamID: "mint-1"}))
	require.NoError(t, pub.PublishDistribution(ctx, &DistributionEvent{StreamID: "mint-2"}))

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "mint-1", events[0].StreamID)

	require.NoError(t, pub.Close())
	assert.True(t, pub.IsClosed())

	pub.Reset()
	assert.Empty(t, pub.Events())
	assert.False(t, pub.IsClosed())
}
