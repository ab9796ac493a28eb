package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUserEnforcesUniqueness(t *testing.T) {
	s := newTestStore(t)

	alice, err := s.CreateUser("alice", "a@x.com", "hash1")
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, "a@x.com", alice.Email)

	_, err = s.CreateUser("alice", "other@x.com", "hash2")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.CreateUser("bob", "a@x.com", "hash3")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.CreateUser("bob", "b@x.com", "hash3")
	assert.NoError(t, err)
}

func TestGetUserByUsername(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateUser("alice", "a@x.com", "hash")
	require.NoError(t, err)

	found, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)

	missing, err := s.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessagesKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "a@x.com", "hash")
	require.NoError(t, err)

	contents := []string{"first", "second", "third", "fourth"}
	for i, c := range contents {
		msg := Message{UserID: user.ID, Content: c, IsUser: i%2 == 0}
		require.NoError(t, s.CreateMessage(&msg))
		assert.NotEmpty(t, msg.ID)
	}

	messages, err := s.GetMessagesByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	for i, msg := range messages {
		assert.Equal(t, contents[i], msg.Content)
		assert.Nil(t, msg.Feedback)
		assert.False(t, msg.HasFeedback)
	}
}

func TestGetLastNMessagesReturnsTailInOrder(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "a@x.com", "hash")
	require.NoError(t, err)

	for _, c := range []string{"one", "two", "three", "four", "five"} {
		msg := Message{UserID: user.ID, Content: c, IsUser: true}
		require.NoError(t, s.CreateMessage(&msg))
	}

	tail, err := s.GetLastNMessagesByUserID(user.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "four", tail[0].Content)
	assert.Equal(t, "five", tail[1].Content)
}

func TestUpdateMessageFeedbackIsScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "a@x.com", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "b@x.com", "hash")
	require.NoError(t, err)

	msg := Message{UserID: alice.ID, Content: "hello", IsUser: false}
	require.NoError(t, s.CreateMessage(&msg))

	// Another user cannot touch the row, and the miss is indistinguishable
	// from an unknown id.
	err = s.UpdateMessageFeedback(msg.ID, bob.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.UpdateMessageFeedback("no-such-id", alice.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)

	messages, err := s.GetMessagesByUserID(alice.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.False(t, messages[0].HasFeedback)

	require.NoError(t, s.UpdateMessageFeedback(msg.ID, alice.ID, false))
	messages, err = s.GetMessagesByUserID(alice.ID)
	require.NoError(t, err)
	require.NotNil(t, messages[0].Feedback)
	assert.False(t, *messages[0].Feedback)
	assert.True(t, messages[0].HasFeedback)

	// Feedback can be overwritten; the given-flag stays set.
	require.NoError(t, s.UpdateMessageFeedback(msg.ID, alice.ID, true))
	messages, err = s.GetMessagesByUserID(alice.ID)
	require.NoError(t, err)
	assert.True(t, *messages[0].Feedback)
	assert.True(t, messages[0].HasFeedback)
}

func TestDeleteMessagesLeavesOtherUsersUntouched(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "a@x.com", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "b@x.com", "hash")
	require.NoError(t, err)

	for _, u := range []int64{alice.ID, bob.ID} {
		msg := Message{UserID: u, Content: "hi", IsUser: true}
		require.NoError(t, s.CreateMessage(&msg))
	}

	require.NoError(t, s.DeleteMessagesByUserID(alice.ID))

	aliceMsgs, err := s.GetMessagesByUserID(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceMsgs)

	bobMsgs, err := s.GetMessagesByUserID(bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobMsgs, 1)
}
