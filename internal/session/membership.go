package session

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

const maxDisplayName = 40

// JoinRequest addresses a session by id or access code. Participants rejoin
// by ParticipantID or Identity; otherwise a new participant is created from
// DisplayName. Hosts pass the session's host id as ParticipantID.
type JoinRequest struct {
	SessionID     uuid.UUID
	AccessCode    string
	Role          quiz.Role
	ParticipantID uuid.UUID
	DisplayName   string
	Identity      string
}

// Membership is the result of a join.
type Membership struct {
	Session     quiz.Session
	Role        quiz.Role
	Participant *quiz.Participant
	// Created is true when the join inserted a new participant row.
	Created bool
}

// MemberID is the id the connection acts as: the participant id, or the
// host id for hosts, or nil for displays.
func (m Membership) MemberID() uuid.UUID {
	switch {
	case m.Participant != nil:
		return m.Participant.ID
	case m.Role == quiz.RoleHost:
		return m.Session.HostID
	default:
		return uuid.Nil
	}
}

// Join resolves the session and the caller's identity within it.
func (s *Service) Join(ctx context.Context, req JoinRequest) (Membership, error) {
	if !req.Role.Valid() {
		return Membership{}, quiz.Validation(quiz.CodeInvalidRequest, "unknown role %q", req.Role)
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	sess, err := s.resolve(wctx, req)
	if err != nil {
		return Membership{}, err
	}
	m := Membership{Session: sess, Role: req.Role}

	switch req.Role {
	case quiz.RoleHost:
		if err := authorize(sess, HostActor(req.ParticipantID)); err != nil {
			return Membership{}, err
		}
		return m, nil
	case quiz.RoleDisplay:
		return m, nil
	}

	p, created, err := s.participant(wctx, sess.ID, req)
	if err != nil {
		return Membership{}, err
	}
	m.Participant = &p
	m.Created = created

	if s.roster != nil {
		if err := s.roster.Enroll(wctx, p); err != nil {
			s.logger.Warn().Err(err).
				Str("session_id", sess.ID.String()).
				Str("participant_id", p.ID.String()).
				Msg("leaderboard enroll failed")
		}
	}
	return m, nil
}

// roster lists joined participants on the leaderboard before they score.
type roster interface {
	Enroll(ctx context.Context, p quiz.Participant) error
}

func (s *Service) resolve(ctx context.Context, req JoinRequest) (quiz.Session, error) {
	if req.SessionID != uuid.Nil {
		return s.store.GetSession(ctx, req.SessionID)
	}
	code := strings.TrimSpace(req.AccessCode)
	if code == "" {
		return quiz.Session{}, quiz.Validation(quiz.CodeInvalidRequest, "sessionId or accessCode is required")
	}
	return s.store.GetSessionByAccessCode(ctx, code)
}

func (s *Service) participant(ctx context.Context, sessionID uuid.UUID, req JoinRequest) (quiz.Participant, bool, error) {
	now := s.now().UTC()

	if req.ParticipantID != uuid.Nil {
		p, err := s.store.GetParticipant(ctx, sessionID, req.ParticipantID)
		if err != nil {
			if errors.Is(err, quiz.ErrParticipantNotFound) {
				return quiz.Participant{}, false, quiz.Validation(quiz.CodeNotMember, "participant is not part of this session")
			}
			return quiz.Participant{}, false, err
		}
		return s.rejoin(ctx, p, now)
	}

	identity := strings.TrimSpace(req.Identity)
	if identity != "" {
		p, err := s.store.FindParticipantByIdentity(ctx, sessionID, identity)
		switch {
		case err == nil:
			return s.rejoin(ctx, p, now)
		case !errors.Is(err, quiz.ErrParticipantNotFound):
			return quiz.Participant{}, false, err
		}
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return quiz.Participant{}, false, quiz.Validation(quiz.CodeInvalidRequest, "displayName is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayName {
		return quiz.Participant{}, false, quiz.Validation(quiz.CodeInvalidRequest, "displayName must be at most %d characters", maxDisplayName)
	}

	p, err := s.store.CreateParticipant(ctx, quiz.Participant{
		ID:          uuid.New(),
		SessionID:   sessionID,
		DisplayName: name,
		Identity:    identity,
		Badges:      []string{},
		LastSeen:    now,
		JoinedAt:    now,
	})
	if errors.Is(err, quiz.ErrIdentityTaken) {
		// Lost a race with another device using the same identity.
		existing, ferr := s.store.FindParticipantByIdentity(ctx, sessionID, identity)
		if ferr != nil {
			return quiz.Participant{}, false, ferr
		}
		return s.rejoin(ctx, existing, now)
	}
	if err != nil {
		return quiz.Participant{}, false, err
	}
	return p, true, nil
}

func (s *Service) rejoin(ctx context.Context, p quiz.Participant, now time.Time) (quiz.Participant, bool, error) {
	if err := s.store.TouchParticipant(ctx, p.SessionID, p.ID, now); err != nil {
		return quiz.Participant{}, false, err
	}
	p.LastSeen = now
	return p, false, nil
}

// Joined announces a participant joining. Rejoins carry no store write, so
// they are marked ephemeral.
func (s *Service) Joined(ctx context.Context, m Membership) {
	if m.Participant == nil {
		return
	}
	s.publish(ctx, fanout.Update{
		Kind:          fanout.KindParticipantsChanged,
		SessionID:     m.Session.ID,
		ParticipantID: m.Participant.ID.String(),
		Reason:        fanout.ReasonJoined,
		Ephemeral:     !m.Created,
	})
}

// Left announces a participant's last connection going away. The row is kept.
func (s *Service) Left(ctx context.Context, sessionID, participantID uuid.UUID) {
	s.publish(ctx, fanout.Update{
		Kind:          fanout.KindParticipantsChanged,
		SessionID:     sessionID,
		ParticipantID: participantID.String(),
		Reason:        fanout.ReasonLeft,
		Ephemeral:     true,
	})
}

// Touch refreshes a participant's last-seen time.
func (s *Service) Touch(ctx context.Context, sessionID, participantID uuid.UUID) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return s.store.TouchParticipant(wctx, sessionID, participantID, s.now().UTC())
}
