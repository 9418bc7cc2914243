package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jamspace/internal/access"
	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository/sqlite"
)

func newJamService(t *testing.T) (*JamService, *sqlite.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewJamService(db.Jams(), db.Participations(), db.Messages(), discardLogger()), db
}

func messageOf(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}

// =========================================================================
// CREATE / READ
// =========================================================================

func TestJamCreate(t *testing.T) {
	svc, db := newJamService(t)
	host := createAccount(t, db, "host")

	jam, err := svc.Create(context.Background(), host.ID, validJamInput())
	require.NoError(t, err)

	assert.NotEmpty(t, jam.ID)
	assert.Equal(t, "host", jam.CreatedBy)
	assert.Equal(t, host.ID, jam.CreatedByID)

	got, err := svc.Get(context.Background(), jam.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sunday blues", got.Title)
	assert.True(t, got.DateTime.Equal(validJamInput().DateTime))
}

func TestJamCreate_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*JamInput)
		field  string
	}{
		{"missing title", func(in *JamInput) { in.Title = " " }, "title"},
		{"title too long", func(in *JamInput) { in.Title = strings.Repeat("t", 201) }, "title"},
		{"missing description", func(in *JamInput) { in.Description = "" }, "description"},
		{"unknown genre", func(in *JamInput) { in.Genre = "polka" }, "genre"},
		{"missing skill level", func(in *JamInput) { in.SkillLevel = "" }, "skill_level"},
		{"unknown skill level", func(in *JamInput) { in.SkillLevel = "expert" }, "skill_level"},
		{"missing location", func(in *JamInput) { in.Location = "" }, "location"},
		{"missing date", func(in *JamInput) { in.DateTime = time.Time{} }, "date_time"},
		{"zero participants", func(in *JamInput) { in.MaxParticipants = 0 }, "max_participants"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := newJamService(t)
			host := createAccount(t, db, "host")
			in := validJamInput()
			tc.mutate(&in)

			_, err := svc.Create(context.Background(), host.ID, in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tc.field, fieldOf(err))
		})
	}
}

func TestJamCreate_RequiresActor(t *testing.T) {
	svc, _ := newJamService(t)
	_, err := svc.Create(context.Background(), "", validJamInput())
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestJamList_OrderAndPagination(t *testing.T) {
	svc, db := newJamService(t)
	host := createAccount(t, db, "host")
	ctx := context.Background()
	base := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	for _, offsetDays := range []int{3, 1, 2} {
		in := validJamInput()
		in.Title = "day " + string(rune('0'+offsetDays))
		in.DateTime = base.AddDate(0, 0, offsetDays)
		_, err := svc.Create(ctx, host.ID, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"day 1", "day 2", "day 3"}, []string{all[0].Title, all[1].Title, all[2].Title})

	page, err := svc.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "day 2", page[0].Title)

	clamped, err := svc.List(ctx, 5000, -4)
	require.NoError(t, err)
	assert.Len(t, clamped, 3)
}

func TestJamGet_NotFound(t *testing.T) {
	svc, _ := newJamService(t)
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// DELETE
// =========================================================================

func TestJamDelete_OnlyCreator(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	guest := createAccount(t, db, "guest")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)
	_, err = svc.Join(ctx, guest.ID, jam.ID)
	require.NoError(t, err)

	err = svc.Delete(ctx, guest.ID, jam.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, access.MsgOnlyCreatorDeletes, messageOf(err))

	_, err = svc.Get(ctx, jam.ID)
	assert.NoError(t, err, "a refused delete leaves the jam in place")
}

func TestJamDelete_CascadesParticipationsAndMessages(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	guest := createAccount(t, db, "guest")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)
	_, err = svc.Join(ctx, guest.ID, jam.ID)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, guest.ID, jam.ID, "see you there")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, host.ID, jam.ID))

	_, err = svc.Get(ctx, jam.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	parts, err := db.Participations().ListByJam(ctx, jam.ID)
	require.NoError(t, err)
	assert.Empty(t, parts)
	msgs, err := db.Messages().ListByJam(ctx, jam.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	mine, err := svc.MyJams(ctx, guest.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestJamDelete_NotFound(t *testing.T) {
	svc, db := newJamService(t)
	host := createAccount(t, db, "host")
	assert.ErrorIs(t, svc.Delete(context.Background(), host.ID, "nope"), apperror.ErrNotFound)
}

// =========================================================================
// JOIN / LEAVE
// =========================================================================

func TestJoinAndLeave(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	guest := createAccount(t, db, "guest")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)

	p, err := svc.Join(ctx, guest.ID, jam.ID)
	require.NoError(t, err)
	assert.Equal(t, "guest", p.Username)
	assert.Equal(t, jam.ID, p.JamSessionID)

	_, err = svc.Join(ctx, guest.ID, jam.ID)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, access.MsgAlreadyJoined, messageOf(err))

	parts, err := svc.Participants(ctx, jam.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "guest", parts[0].Username)

	require.NoError(t, svc.Leave(ctx, guest.ID, jam.ID))

	mine, err := svc.MyJams(ctx, guest.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	err = svc.Leave(ctx, guest.ID, jam.ID)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, access.MsgNotJoined, messageOf(err))

	// Leaving then rejoining is allowed.
	_, err = svc.Join(ctx, guest.ID, jam.ID)
	assert.NoError(t, err)
}

func TestLeave_CreatorKeepsJamInMyJams(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)

	_, err = svc.Join(ctx, host.ID, jam.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Leave(ctx, host.ID, jam.ID))

	mine, err := svc.MyJams(ctx, host.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, jam.ID, mine[0].ID)
}

func TestJoin_UnknownJam(t *testing.T) {
	svc, db := newJamService(t)
	guest := createAccount(t, db, "guest")

	_, err := svc.Join(context.Background(), guest.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "jam_session", fieldOf(err))
}

func TestJoin_CreatorMayJoinOwnJam(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)

	_, err = svc.Join(ctx, host.ID, jam.ID)
	assert.NoError(t, err)
}

func TestJoin_CapacityIsNotEnforced(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	in := validJamInput()
	in.MaxParticipants = 1
	jam, err := svc.Create(ctx, host.ID, in)
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		acc := createAccount(t, db, name)
		_, err := svc.Join(ctx, acc.ID, jam.ID)
		assert.NoError(t, err)
	}
}

func TestJoin_ConcurrentSameAccountJoinsOnce(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	guest := createAccount(t, db, "guest")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Join(ctx, guest.ID, jam.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrValidation)
		assert.Equal(t, access.MsgAlreadyJoined, messageOf(err))
	}
	assert.Equal(t, 1, ok)
}

// =========================================================================
// MESSAGES
// =========================================================================

func TestPostMessage_Gating(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	member := createAccount(t, db, "member")
	outsider := createAccount(t, db, "outsider")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)
	_, err = svc.Join(ctx, member.ID, jam.ID)
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, outsider.ID, jam.ID, "let me in")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, access.MsgOnlyMembersPost, messageOf(err))

	_, err = svc.PostMessage(ctx, host.ID, jam.ID, "first")
	require.NoError(t, err, "creator can post without joining")
	msg, err := svc.PostMessage(ctx, member.ID, jam.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "member", msg.Sender)

	require.NoError(t, svc.Leave(ctx, member.ID, jam.ID))
	_, err = svc.PostMessage(ctx, member.ID, jam.ID, "after leaving")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	msgs, err := svc.Messages(ctx, jam.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestPostMessage_Validation(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	host := createAccount(t, db, "host")
	jam, err := svc.Create(ctx, host.ID, validJamInput())
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, host.ID, jam.ID, "   ")
	assert.Equal(t, "text", fieldOf(err))

	_, err = svc.PostMessage(ctx, host.ID, jam.ID, strings.Repeat("m", MaxMessageLength+1))
	assert.Equal(t, "text", fieldOf(err))

	_, err = svc.PostMessage(ctx, host.ID, "missing", "hello")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// MY JAMS
// =========================================================================

func TestMyJams_UnionWithoutDuplicates(t *testing.T) {
	svc, db := newJamService(t)
	ctx := context.Background()
	me := createAccount(t, db, "me")
	other := createAccount(t, db, "other")
	base := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	create := func(owner *model.Account, title string, day int) *model.JamSession {
		in := validJamInput()
		in.Title = title
		in.DateTime = base.AddDate(0, 0, day)
		jam, err := svc.Create(ctx, owner.ID, in)
		require.NoError(t, err)
		return jam
	}

	ownAndJoined := create(me, "own+joined", 2)
	joinedOnly := create(other, "joined", 1)
	create(me, "own", 3)
	create(other, "unrelated", 0)

	_, err := svc.Join(ctx, me.ID, ownAndJoined.ID)
	require.NoError(t, err)
	_, err = svc.Join(ctx, me.ID, joinedOnly.ID)
	require.NoError(t, err)

	mine, err := svc.MyJams(ctx, me.ID)
	require.NoError(t, err)

	titles := make([]string, len(mine))
	for i, j := range mine {
		titles[i] = j.Title
	}
	assert.Equal(t, []string{"joined", "own+joined", "own"}, titles)
}
