package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/cryptox"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfirmationStore(t *testing.T, gen cryptox.Generator) (*ConfirmationStore, *memStore, *fakeClock) {
	t.Helper()
	m := newMemStore()
	clock := newFakeClock()
	s := NewConfirmationStore(m, gen, 15*time.Minute, 3, nopLogger{})
	s.now = clock.Now
	return s, m, clock
}

var testDevice = models.NewDeviceInfo("Firefox on Linux", "192.0.2.10:5555")

func TestConfirmationStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newConfirmationStore(t, &seqGenerator{digits: []uint32{7}})

	redirect := "https://app.example.com/after"
	issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, &redirect)
	require.NoError(t, err)
	assert.Len(t, issued.Token, confirmationTokenBytes)
	assert.Len(t, issued.CodeToken, confirmationTokenBytes)
	assert.Equal(t, uint32(7), issued.Code)
	assert.NotEqual(t, issued.Token, issued.CodeToken)

	c, err := s.FindByCodeToken(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 7)
	require.NoError(t, err)
	assert.Equal(t, "Firefox on Linux", c.DeviceString)
	require.NotNil(t, c.IPAddress)
	assert.Equal(t, "192.0.2.10", *c.IPAddress)
	assert.Equal(t, redirect, *c.RedirectURL)

	_, err = s.FindByCodeToken(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 8)
	assert.True(t, common.IsKind(err, common.KindConfirmationNotFound))

	_, err = s.FindByToken(ctx, nil, 1, models.ActionSignin, issued.Token)
	assert.True(t, common.IsKind(err, common.KindConfirmationNotFound), "action is part of the key")

	c, err = s.FindByToken(ctx, nil, 1, models.ActionSignup, issued.Token)
	require.NoError(t, err)
	assert.False(t, c.Used)
}

func TestConfirmationStore_InsertRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newConfirmationStore(t, &seqGenerator{})

	// The first draw (0x01...) is already taken.
	m.confirmations = append(m.confirmations, &models.Confirmation{
		AccountID: 1, Action: models.ActionSignup,
		Token: bytes.Repeat([]byte{1}, 16), CodeToken: bytes.Repeat([]byte{0xff}, 16),
	})

	issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{3}, 16), issued.Token)
	assert.Equal(t, bytes.Repeat([]byte{4}, 16), issued.CodeToken)
	assert.Len(t, m.confirmationsFor(1), 2)
}

func TestConfirmationStore_InsertGivesUp(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newConfirmationStore(t, constGenerator{b: 9})

	m.confirmations = append(m.confirmations, &models.Confirmation{
		AccountID: 1, Action: models.ActionSignin,
		Token: bytes.Repeat([]byte{9}, 16), CodeToken: bytes.Repeat([]byte{9}, 16),
	})

	_, err := s.Insert(ctx, nil, 1, models.ActionSignin, testDevice, nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindDatabaseError))
	assert.True(t, errors.Is(err, common.ErrTokenAllocationExhausted))
	assert.True(t, common.AsError(err).RollbackRequired())
}

func TestConfirmationStore_InsertStoreFailure(t *testing.T) {
	s, m, _ := newConfirmationStore(t, &seqGenerator{})
	m.failWith = errors.New("db error: connection reset")

	_, err := s.Insert(context.Background(), nil, 1, models.ActionSignup, testDevice, nil)
	assert.True(t, common.IsKind(err, common.KindDatabaseError))
}

func TestConfirmationStore_CheckAndMarkUsed(t *testing.T) {
	ctx := context.Background()

	t.Run("right code redeems once", func(t *testing.T) {
		s, _, _ := newConfirmationStore(t, &seqGenerator{digits: []uint32{4321}})
		issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
		require.NoError(t, err)

		c, err := s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 4321)
		require.NoError(t, err)
		assert.True(t, c.Used)

		_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 4321)
		assert.True(t, common.IsKind(err, common.KindConfirmationAlreadyUsed))
		assert.True(t, common.AsError(err).RollbackRequired())
	})

	t.Run("unknown code token", func(t *testing.T) {
		s, _, _ := newConfirmationStore(t, &seqGenerator{})
		_, err := s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, []byte{1, 2}, 1234)
		assert.True(t, common.IsKind(err, common.KindConfirmationNotFound))
		assert.True(t, common.AsError(err).RollbackRequired())
	})

	t.Run("wrong code counts a trial and keeps it", func(t *testing.T) {
		s, m, _ := newConfirmationStore(t, &seqGenerator{digits: []uint32{1111}})
		issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
		require.NoError(t, err)

		_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 2222)
		require.True(t, common.IsKind(err, common.KindConfirmationNotFound))
		assert.False(t, common.AsError(err).RollbackRequired(), "the trial counter must be committed")

		rows := m.confirmationsFor(1)
		require.Len(t, rows, 1)
		assert.Equal(t, 1, rows[0].CodeTrials)
		assert.False(t, rows[0].Used)
	})

	t.Run("last wrong code burns the confirmation", func(t *testing.T) {
		s, m, _ := newConfirmationStore(t, &seqGenerator{digits: []uint32{1111}})
		issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 9999)
			require.True(t, common.IsKind(err, common.KindConfirmationNotFound))
		}
		_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 9999)
		require.True(t, common.IsKind(err, common.KindConfirmationTooManyAttempts))
		assert.False(t, common.AsError(err).RollbackRequired())
		assert.True(t, m.confirmationsFor(1)[0].Used)

		// Even the right code is refused now.
		_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 1111)
		assert.True(t, common.IsKind(err, common.KindConfirmationAlreadyUsed))
	})

	t.Run("exhausted trials are refused before the code is compared", func(t *testing.T) {
		s, m, _ := newConfirmationStore(t, &seqGenerator{digits: []uint32{1111}})
		issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
		require.NoError(t, err)
		m.confirmations[0].CodeTrials = 3

		_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 1111)
		assert.True(t, common.IsKind(err, common.KindConfirmationTooManyAttempts))
		assert.True(t, m.confirmationsFor(1)[0].Used)
	})

	t.Run("expired confirmation is burnt and committed", func(t *testing.T) {
		s, m, clock := newConfirmationStore(t, &seqGenerator{digits: []uint32{1111}})
		issued, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
		require.NoError(t, err)

		clock.Advance(16 * time.Minute)
		_, err = s.CheckAndMarkUsed(ctx, nil, 1, models.ActionSignup, issued.CodeToken, 1111)
		require.True(t, common.IsKind(err, common.KindConfirmationExpired))
		assert.False(t, common.AsError(err).RollbackRequired())
		assert.True(t, m.confirmationsFor(1)[0].Used)
	})
}

func TestConfirmationStore_CheckTokenAndMarkUsed(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newConfirmationStore(t, &seqGenerator{})

	first, err := s.Insert(ctx, nil, 1, models.ActionSignin, testDevice, nil)
	require.NoError(t, err)
	second, err := s.Insert(ctx, nil, 1, models.ActionSignin, testDevice, nil)
	require.NoError(t, err)

	_, err = s.CheckTokenAndMarkUsed(ctx, nil, 1, models.ActionSignin, []byte("nope"))
	assert.True(t, common.IsKind(err, common.KindConfirmationNotFound))

	c, err := s.CheckTokenAndMarkUsed(ctx, nil, 1, models.ActionSignin, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.CodeToken, c.CodeToken)

	_, err = s.CheckTokenAndMarkUsed(ctx, nil, 1, models.ActionSignin, first.Token)
	assert.True(t, common.IsKind(err, common.KindConfirmationAlreadyUsed))

	clock.Advance(time.Hour)
	_, err = s.CheckTokenAndMarkUsed(ctx, nil, 1, models.ActionSignin, second.Token)
	assert.True(t, common.IsKind(err, common.KindConfirmationExpired))
}

func TestConfirmationStore_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newConfirmationStore(t, &seqGenerator{})

	for i := 0; i < 2; i++ {
		_, err := s.Insert(ctx, nil, 1, models.ActionSignin, testDevice, nil)
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, nil, 1, models.ActionSignup, testDevice, nil)
	require.NoError(t, err)

	require.NoError(t, s.InvalidateAll(ctx, nil, 1, models.ActionSignin))

	for _, c := range m.confirmationsFor(1) {
		assert.Equal(t, c.Action == models.ActionSignin, c.Used, "only Signin rows are invalidated")
	}
}
