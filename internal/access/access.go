// Package access holds the authorization rules for jam sessions.
//
// Every function is pure: it looks only at the actor, the session and whether
// the actor is a participant, and returns nil or an *apperror.AppError the
// HTTP layer can render directly. Services call these before each mutation
// and never re-implement a rule inline.
package access

import (
	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
)

// Client-facing messages for each rule. Tests compare against these.
const (
	MsgOnlyCreatorDeletes   = "Only the creator can delete this jam session."
	MsgOnlyMembersPost      = "Only the creator or participants can post messages."
	MsgAlreadyJoined        = "You have already joined this jam session."
	MsgNotJoined            = "You have not joined this jam session."
	msgAuthenticationNeeded = "Authentication credentials were not provided."
)

// IsCreator reports whether actorID owns the session.
func IsCreator(actorID string, session *model.JamSession) bool {
	return actorID != "" && session != nil && session.CreatedByID == actorID
}

// CanDeleteSession allows only the creator to delete.
func CanDeleteSession(actorID string, session *model.JamSession) error {
	if !IsCreator(actorID, session) {
		return apperror.Forbidden(MsgOnlyCreatorDeletes)
	}
	return nil
}

// CanPostMessage allows the creator and participants to post.
func CanPostMessage(actorID string, session *model.JamSession, joined bool) error {
	if actorID == "" {
		return apperror.Unauthenticated(msgAuthenticationNeeded)
	}
	if IsCreator(actorID, session) || joined {
		return nil
	}
	return apperror.Forbidden(MsgOnlyMembersPost)
}

// CanJoin rejects anonymous actors and repeat joins. The creator may join
// their own session.
func CanJoin(actorID string, joined bool) error {
	if actorID == "" {
		return apperror.Unauthenticated(msgAuthenticationNeeded)
	}
	if joined {
		return AlreadyJoined()
	}
	return nil
}

// CanLeave requires an existing participation.
func CanLeave(joined bool) error {
	if !joined {
		return apperror.ValidationFailed("jam_session", MsgNotJoined)
	}
	return nil
}

// AlreadyJoined is also returned when a concurrent join wins the unique
// constraint after CanJoin passed.
func AlreadyJoined() error {
	return apperror.ValidationFailed("jam_session", MsgAlreadyJoined)
}
