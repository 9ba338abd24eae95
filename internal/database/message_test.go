package database_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/database/dbtest"
	"github.com/thereayou/esim-portal/internal/models"
)

func TestGetConversationOrdered(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice", models.RoleUser)
	other := dbtest.User(t, db, "bob", models.RoleUser)

	base := time.Now().Add(-time.Hour)
	dbtest.Message(t, db, u.ID, models.RoleUser, "second", base.Add(2*time.Minute))
	dbtest.Message(t, db, u.ID, models.RoleAdmin, "first", base.Add(time.Minute))
	dbtest.Message(t, db, u.ID, models.RoleUser, "third", base.Add(3*time.Minute))
	dbtest.Message(t, db, other.ID, models.RoleUser, "elsewhere", base)

	msgs, err := db.GetConversation(u.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
	assert.Equal(t, "alice", msgs[0].Owner.Name)
}

func TestMarkConversationReadOnlyTouchesSenderRole(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice", models.RoleUser)
	now := time.Now()

	dbtest.Message(t, db, u.ID, models.RoleUser, "u1", now)
	dbtest.Message(t, db, u.ID, models.RoleUser, "u2", now.Add(time.Second))
	admin := &models.Message{OwnerUserID: u.ID, SenderID: uuid.New(), SenderRole: models.RoleAdmin, Text: "a1", CreatedAt: now}
	require.NoError(t, db.SaveMessage(admin))

	n, err := db.MarkConversationRead(u.ID, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := db.GetConversation(u.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.SenderRole == models.RoleUser {
			assert.True(t, m.IsRead, m.Text)
		} else {
			assert.False(t, m.IsRead, m.Text)
		}
	}

	// повторная отметка ничего не меняет
	n, err = db.MarkConversationRead(u.ID, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSetPinnedIdempotent(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice", models.RoleUser)
	m := dbtest.Message(t, db, u.ID, models.RoleUser, "pin me", time.Now())

	for i := 0; i < 2; i++ {
		got, err := db.SetPinned(m.ID, true)
		require.NoError(t, err)
		assert.True(t, got.IsPinned)
	}

	pinned, err := db.GetPinned(u.ID)
	require.NoError(t, err)
	require.Len(t, pinned, 1)

	for i := 0; i < 2; i++ {
		got, err := db.SetPinned(m.ID, false)
		require.NoError(t, err)
		assert.False(t, got.IsPinned)
	}

	pinned, err = db.GetPinned(u.ID)
	require.NoError(t, err)
	assert.Empty(t, pinned)

	_, err = db.SetPinned(uuid.New(), true)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestAddReactionStacksDuplicates(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice", models.RoleUser)
	m := dbtest.Message(t, db, u.ID, models.RoleUser, "hi", time.Now())

	_, err := db.AddReaction(m.ID, u.ID, "👍")
	require.NoError(t, err)
	reactions, err := db.AddReaction(m.ID, u.ID, "👍")
	require.NoError(t, err)

	require.Len(t, reactions, 2)
	assert.Equal(t, "👍", reactions[0].Emoji)
	assert.Equal(t, u.ID, reactions[1].UserID)

	got, err := db.GetMessage(m.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 2)
}

func TestConversationSummaries(t *testing.T) {
	db := dbtest.New(t)
	alice := dbtest.User(t, db, "alice", models.RoleUser)
	bob := dbtest.User(t, db, "bob", models.RoleUser)
	base := time.Now().Add(-time.Hour)

	dbtest.Message(t, db, alice.ID, models.RoleUser, "a1", base)
	dbtest.Message(t, db, alice.ID, models.RoleUser, "a2", base.Add(time.Minute))
	dbtest.Message(t, db, alice.ID, models.RoleAdmin, "a3", base.Add(2*time.Minute))
	dbtest.Message(t, db, bob.ID, models.RoleUser, "b1", base.Add(5*time.Minute))

	summaries, err := db.ConversationSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, bob.ID, summaries[0].OwnerUserID)
	assert.Equal(t, "b1", summaries[0].LastMessage.Text)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)

	assert.Equal(t, alice.ID, summaries[1].OwnerUserID)
	assert.Equal(t, "a3", summaries[1].LastMessage.Text)
	assert.Equal(t, int64(2), summaries[1].UnreadCount)
	assert.Equal(t, int64(3), summaries[1].MessageCount)
}

func TestGetMessageNotFound(t *testing.T) {
	db := dbtest.New(t)
	_, err := db.GetMessage(uuid.New())
	assert.ErrorIs(t, err, database.ErrNotFound)
}
