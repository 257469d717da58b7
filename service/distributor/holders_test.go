package distributor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solanasvc "github.com/brojonat/aliquot/service/solana"
)

type fakeTokenHolderClient struct {
	holders []solanasvc.TokenHolder
	err     error
}

func (f *fakeTokenHolderClient) GetTokenHolders(_ context.Context, _ string) ([]solanasvc.TokenHolder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.holders, nil
}

func TestLiveHolderDirectory_GetHolders(t *testing.T) {
	client := &fakeTokenHolderClient{
		holders: []solanasvc.TokenHolder{
			{Owner: "owner-1", TokenAccount: "acct-1", Balance: 100},
			{Owner: "owner-2", TokenAccount: "acct-2", Balance: 250},
		},
	}
	dir := NewLiveHolderDirectory(client, 30*time.Second, testLogger())

	holders, err := dir.GetHolders(context.Background(), "mint-1")
	require.NoError(t, err)
	require.Len(t, holders, 2)

	assert.Equal(t, "owner-1", holders[0].AccountAddress)
	assert.Equal(t, "acct-1", holders[0].TokenAccount)
	assert.Equal(t, uint64(100), holders[0].Balance)
	assert.Equal(t, 1.0, holders[0].Weight)
}

func TestLiveHolderDirectory_QueryFailure(t *testing.T) {
	client := &fakeTokenHolderClient{err: errors.New("rpc timeout")}
	dir := NewLiveHolderDirectory(client, 30*time.Second, testLogger())

	_, err := dir.GetHolders(context.Background(), "mint-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestLiveHolderDirectory_EmptyHolderSet(t *testing.T) {
	dir := NewLiveHolderDirectory(&fakeTokenHolderClient{}, 30*time.Second, testLogger())

	_, err := dir.GetHolders(context.Background(), "mint-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoHoldersFound)
}

func TestMockHolderDirectory_Deterministic(t *testing.T) {
	dir := NewMockHolderDirectory(5, testLogger())

	first, err := dir.GetHolders(context.Background(), "mint-1")
	require.NoError(t, err)
	second, err := dir.GetHolders(context.Background(), "mint-1")
	require.NoError(t, err)

	// Same stream ID always resolves the same synthetic addresses.
	require.Len(t, first, 5)
	assert.Equal(t, first, second)

	other, err := dir.GetHolders(context.Background(), "mint-2")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].AccountAddress, other[0].AccountAddress)
}

func TestMockHolderDirectory_DefaultCount(t *testing.T) {
	dir := NewMockHolderDirectory(0, testLogger())

	holders, err := dir.GetHolders(context.Background(), "mint-1")
	require.NoError(t, err)
	assert.Len(t, holders, 25)
}
