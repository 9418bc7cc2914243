package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/jamspace/internal/access"
	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository"
	"github.com/sakif/jamspace/internal/telemetry"
)

// Validation limits and pagination defaults.
const (
	MaxTitleLength    = 200
	MaxLocationLength = 255
	MaxMessageLength  = 2000
	DefaultListLimit  = 20
	MaxListLimit      = 100
)

// JamService handles jam sessions, who is in them, and their chat.
//
// Every mutation loads what the access rule needs, asks the access package,
// and only then writes. Reads that are public (list, retrieve, participants)
// skip the checks.
type JamService struct {
	jams           repository.JamRepository
	participations repository.ParticipationRepository
	messages       repository.MessageRepository
	logger         *slog.Logger
}

// NewJamService wires the session, participation and message stores.
func NewJamService(
	jams repository.JamRepository,
	participations repository.ParticipationRepository,
	messages repository.MessageRepository,
	logger *slog.Logger,
) *JamService {
	return &JamService{
		jams:           jams,
		participations: participations,
		messages:       messages,
		logger:         logger,
	}
}

// JamInput is the body of a create request. DateTime is required; a zero
// value means the client didn't send one.
type JamInput struct {
	Title           string
	Description     string
	Genre           string
	SkillLevel      string
	Location        string
	DateTime        time.Time
	MaxParticipants int
}

// List returns all sessions, soonest first, with the limit clamped to
// 1..MaxListLimit.
func (s *JamService) List(ctx context.Context, limit, offset int) ([]model.JamSession, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jams, err := s.jams.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("service/jam: listing: %w", err)
	}
	return jams, nil
}

// Create validates and stores a session owned by actorID.
func (s *JamService) Create(ctx context.Context, actorID string, in JamInput) (*model.JamSession, error) {
	if actorID == "" {
		return nil, apperror.Unauthenticated("Authentication credentials were not provided.")
	}

	jam := &model.JamSession{
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Genre:           in.Genre,
		SkillLevel:      in.SkillLevel,
		Location:        strings.TrimSpace(in.Location),
		DateTime:        in.DateTime,
		MaxParticipants: in.MaxParticipants,
		CreatedByID:     actorID,
	}
	if err := validateJam(jam); err != nil {
		return nil, err
	}

	if err := s.jams.Create(ctx, jam); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// The creator's account was deleted after the token was issued.
			return nil, apperror.Unauthenticated("Account no longer exists.")
		}
		return nil, fmt.Errorf("service/jam: creating %q: %w", jam.Title, err)
	}

	telemetry.RecordJamCreated()
	s.logger.Info("jam session created",
		slog.String("jamID", jam.ID),
		slog.String("accountID", actorID),
	)
	return jam, nil
}

func validateJam(j *model.JamSession) error {
	required := "This field is required."
	switch {
	case j.Title == "":
		return apperror.ValidationFailed("title", required)
	case len([]rune(j.Title)) > MaxTitleLength:
		return apperror.ValidationFailed("title",
			fmt.Sprintf("Ensure this field has no more than %d characters.", MaxTitleLength))
	case j.Description == "":
		return apperror.ValidationFailed("description", required)
	case j.Genre == "":
		return apperror.ValidationFailed("genre", required)
	case !model.ValidGenre(j.Genre):
		return apperror.ValidationFailed("genre", fmt.Sprintf("%q is not a valid choice.", j.Genre))
	case j.SkillLevel == "":
		return apperror.ValidationFailed("skill_level", required)
	case !model.ValidSkillLevel(j.SkillLevel):
		return apperror.ValidationFailed("skill_level", fmt.Sprintf("%q is not a valid choice.", j.SkillLevel))
	case j.Location == "":
		return apperror.ValidationFailed("location", required)
	case len([]rune(j.Location)) > MaxLocationLength:
		return apperror.ValidationFailed("location",
			fmt.Sprintf("Ensure this field has no more than %d characters.", MaxLocationLength))
	case j.DateTime.IsZero():
		return apperror.ValidationFailed("date_time", required)
	case j.MaxParticipants < 1:
		return apperror.ValidationFailed("max_participants", "Ensure this value is greater than or equal to 1.")
	}
	return nil
}

// Get returns one session. Anyone may read it.
func (s *JamService) Get(ctx context.Context, jamID string) (*model.JamSession, error) {
	if strings.TrimSpace(jamID) == "" {
		return nil, apperror.ValidationFailed("id", "jam session ID is required")
	}
	return s.jams.GetByID(ctx, jamID)
}

// Delete removes a session and, through the store's cascade, its
// participations and messages. Only the creator may delete.
func (s *JamService) Delete(ctx context.Context, actorID, jamID string) error {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return err
	}
	if err := access.CanDeleteSession(actorID, jam); err != nil {
		return err
	}

	if err := s.jams.Delete(ctx, jamID); err != nil {
		return err
	}
	s.logger.Info("jam session deleted",
		slog.String("jamID", jamID),
		slog.String("accountID", actorID),
	)
	return nil
}

// MyJams returns the sessions actorID created or joined, each once.
func (s *JamService) MyJams(ctx context.Context, actorID string) ([]model.JamSession, error) {
	jams, err := s.jams.ListForAccount(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("service/jam: listing jams for %s: %w", actorID, err)
	}
	return jams, nil
}

// Join adds actorID to the session. Capacity is not enforced.
func (s *JamService) Join(ctx context.Context, actorID, jamID string) (*model.Participation, error) {
	if strings.TrimSpace(jamID) == "" {
		return nil, apperror.ValidationFailed("jam_session", "This field is required.")
	}
	if _, err := s.jams.GetByID(ctx, jamID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("jam_session",
				fmt.Sprintf("Invalid pk %q - object does not exist.", jamID))
		}
		return nil, err
	}

	joined, err := s.participations.Exists(ctx, actorID, jamID)
	if err != nil {
		return nil, fmt.Errorf("service/jam: checking participation: %w", err)
	}
	if err := access.CanJoin(actorID, joined); err != nil {
		return nil, err
	}

	p := &model.Participation{AccountID: actorID, JamSessionID: jamID}
	if err := s.participations.Create(ctx, p); err != nil {
		switch {
		case errors.Is(err, apperror.ErrConflict):
			// Lost a race with a concurrent join by the same account.
			return nil, access.AlreadyJoined()
		case errors.Is(err, apperror.ErrNotFound):
			// Session deleted between the check and the insert.
			return nil, apperror.ValidationFailed("jam_session",
				fmt.Sprintf("Invalid pk %q - object does not exist.", jamID))
		}
		return nil, fmt.Errorf("service/jam: joining %s: %w", jamID, err)
	}

	s.logger.Info("joined jam session",
		slog.String("jamID", jamID),
		slog.String("accountID", actorID),
	)
	return p, nil
}

// Leave removes actorID's participation.
func (s *JamService) Leave(ctx context.Context, actorID, jamID string) error {
	if _, err := s.Get(ctx, jamID); err != nil {
		return err
	}

	joined, err := s.participations.Exists(ctx, actorID, jamID)
	if err != nil {
		return fmt.Errorf("service/jam: checking participation: %w", err)
	}
	if err := access.CanLeave(joined); err != nil {
		return err
	}

	if err := s.participations.Delete(ctx, actorID, jamID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// A concurrent leave got there first.
			return access.CanLeave(false)
		}
		return fmt.Errorf("service/jam: leaving %s: %w", jamID, err)
	}

	s.logger.Info("left jam session",
		slog.String("jamID", jamID),
		slog.String("accountID", actorID),
	)
	return nil
}

// Participants lists who joined, in join order.
func (s *JamService) Participants(ctx context.Context, jamID string) ([]model.Participation, error) {
	if _, err := s.Get(ctx, jamID); err != nil {
		return nil, err
	}
	ps, err := s.participations.ListByJam(ctx, jamID)
	if err != nil {
		return nil, fmt.Errorf("service/jam: listing participants of %s: %w", jamID, err)
	}
	return ps, nil
}

// Messages returns the session's chat, oldest first.
func (s *JamService) Messages(ctx context.Context, jamID string) ([]model.Message, error) {
	if _, err := s.Get(ctx, jamID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByJam(ctx, jamID)
	if err != nil {
		return nil, fmt.Errorf("service/jam: listing messages of %s: %w", jamID, err)
	}
	return msgs, nil
}

// PostMessage appends a message. Only the creator and participants may post.
func (s *JamService) PostMessage(ctx context.Context, actorID, jamID, text string) (*model.Message, error) {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return nil, err
	}

	joined := false
	if actorID != "" && !access.IsCreator(actorID, jam) {
		if joined, err = s.participations.Exists(ctx, actorID, jamID); err != nil {
			return nil, fmt.Errorf("service/jam: checking participation: %w", err)
		}
	}
	if err := access.CanPostMessage(actorID, jam, joined); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "This field may not be blank.")
	}
	if len([]rune(text)) > MaxMessageLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("Ensure this field has no more than %d characters.", MaxMessageLength))
	}

	msg := &model.Message{JamSessionID: jamID, SenderID: actorID, Text: text}
	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("jam session", jamID)
		}
		return nil, fmt.Errorf("service/jam: posting to %s: %w", jamID, err)
	}

	telemetry.RecordMessagePosted()
	s.logger.Debug("message posted",
		slog.String("jamID", jamID),
		slog.String("accountID", actorID),
	)
	return msg, nil
}
