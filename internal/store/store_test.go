package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chattrix/chattrix/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUser_DuplicateEmailConflicts(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	u := domain.User{ID: "user_1", Username: "alice", Email: "alice@example.com", Status: domain.StatusOffline}
	req.NoError(s.CreateUser(u))

	u2 := domain.User{ID: "user_2", Username: "alice2", Email: "alice@example.com"}
	req.ErrorIs(s.CreateUser(u2), ErrConflict)

	got, err := s.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal("user_1", got.ID)
}

func TestUpdateUserStatus_UnknownUserIsNoOp(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	// Matches UPDATE-with-zero-rows semantics: success, nothing written.
	req.NoError(s.UpdateUserStatus("user_missing", domain.StatusOnline, ""))
	_, err := s.GetUser("user_missing")
	req.ErrorIs(err, ErrNotFound)
}

func TestMessage_EditAndSoftDelete(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	m := domain.Message{
		ID:        "msg_1",
		Content:   "hi",
		AuthorID:  "u1",
		ChannelID: "general",
		CreatedAt: time.Now().UTC(),
	}
	req.NoError(s.CreateMessage(m))

	edited, err := s.EditMessage("msg_1", "hello")
	req.NoError(err)
	req.Equal("hello", edited.Content)
	req.NotNil(edited.EditedAt)

	deleted, err := s.DeleteMessage("msg_1")
	req.NoError(err)
	req.NotNil(deleted.DeletedAt)

	// Soft delete: the row is still readable.
	got, err := s.GetMessage("msg_1")
	req.NoError(err)
	req.NotNil(got.DeletedAt)
	req.Equal("hello", got.Content)
}

func TestMessage_EditMissingIsNotFound(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	_, err := s.EditMessage("msg_nope", "x")
	req.ErrorIs(err, ErrNotFound)
}

func TestReaction_UniquePerMessageEmojiUser(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	// First add succeeds, the duplicate conflicts, exactly one record stays.
	req.NoError(s.AddReaction("msg_1", "👍", "u1"))
	req.ErrorIs(s.AddReaction("msg_1", "👍", "u1"), ErrConflict)

	n, err := s.CountReactions("msg_1", "👍")
	req.NoError(err)
	req.Equal(1, n)

	// A different user reacting with the same emoji is its own record.
	req.NoError(s.AddReaction("msg_1", "👍", "u2"))
	n, err = s.CountReactions("msg_1", "👍")
	req.NoError(err)
	req.Equal(2, n)
}

func TestReaction_RemoveMissingIsNoOp(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	req.NoError(s.RemoveReaction("msg_1", "👍", "u1"))
}

func TestDM_HistoryIsChronologicalAndSymmetric(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	base := time.Now().UTC()
	for i, content := range []string{"one", "two", "three"} {
		sender, recipient := "u1", "u2"
		if i%2 == 1 {
			sender, recipient = "u2", "u1"
		}
		dm := domain.DirectMessage{
			ID:          domain.NewID("dm"),
			Content:     content,
			SenderID:    sender,
			RecipientID: recipient,
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}
		req.NoError(s.CreateDM(dm))
	}

	// Both orderings of the pair see the same conversation, oldest first.
	forward, err := s.ListDMs("u1", "u2", 50)
	req.NoError(err)
	backward, err := s.ListDMs("u2", "u1", 50)
	req.NoError(err)

	req.Len(forward, 3)
	req.Equal("one", forward[0].Content)
	req.Equal("three", forward[2].Content)
	req.Equal(forward, backward)
}

func TestDM_HistoryHonorsLimit(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		req.NoError(s.CreateDM(domain.DirectMessage{
			ID:          domain.NewID("dm"),
			Content:     string(rune('a' + i)),
			SenderID:    "u1",
			RecipientID: "u2",
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	// The limit keeps the newest messages, still in chronological order.
	got, err := s.ListDMs("u1", "u2", 2)
	req.NoError(err)
	req.Len(got, 2)
	req.Equal("d", got[0].Content)
	req.Equal("e", got[1].Content)
}

func TestDM_DeleteRemovesRow(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	dm := domain.DirectMessage{
		ID:          "dm_1",
		Content:     "secret",
		SenderID:    "u1",
		RecipientID: "u2",
		CreatedAt:   time.Now().UTC(),
	}
	req.NoError(s.CreateDM(dm))
	req.NoError(s.DeleteDM("dm_1"))

	got, err := s.ListDMs("u1", "u2", 50)
	req.NoError(err)
	req.Empty(got)

	req.ErrorIs(s.DeleteDM("dm_1"), ErrNotFound)
}

func TestServer_CreateWritesGroupAtomically(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	srv := domain.Server{ID: "srv_1", Name: "Guild", OwnerID: "u1", CreatedAt: time.Now().UTC()}
	owner := domain.Member{ID: "mem_1", UserID: "u1", ServerID: "srv_1", JoinedAt: time.Now().UTC()}
	general := domain.Channel{ID: "ch_1", Name: "general", ServerID: "srv_1", Type: "text"}
	req.NoError(s.CreateServer(srv, owner, general))

	got, err := s.GetServer("srv_1")
	req.NoError(err)
	req.Equal("Guild", got.Name)

	member, err := s.GetMember("srv_1", "u1")
	req.NoError(err)
	req.Equal("mem_1", member.ID)
}

func TestMember_AddRemoveAndBan(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	m := domain.Member{ID: "mem_1", UserID: "u2", ServerID: "srv_1", JoinedAt: time.Now().UTC()}
	req.NoError(s.AddMember(m))
	req.ErrorIs(s.AddMember(m), ErrConflict)

	// Ban records the ban and drops the membership in one transaction.
	req.NoError(s.BanMember(domain.Ban{ID: "ban_1", ServerID: "srv_1", UserID: "u2", BannedBy: "u1"}))
	_, err := s.GetMember("srv_1", "u2")
	req.ErrorIs(err, ErrNotFound)

	// Removing the already-gone membership is an explicit not-found.
	req.ErrorIs(s.RemoveMember("srv_1", "u2"), ErrNotFound)
}

func TestInvite_DuplicateCodeConflicts(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	inv := domain.Invite{Code: "ABCD2345", ServerID: "srv_1", CreatedBy: "u1", CreatedAt: time.Now().UTC()}
	req.NoError(s.CreateInvite(inv))
	req.ErrorIs(s.CreateInvite(inv), ErrConflict)

	got, err := s.GetInvite("ABCD2345")
	req.NoError(err)
	req.Equal("srv_1", got.ServerID)
}
