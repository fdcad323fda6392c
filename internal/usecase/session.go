package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"reflection-journal/internal/domain"
)

type StartOutput struct {
	SessionID string
}

type ReplyOutput struct {
	SessionID string
	Reply     string
	Turns     int
}

type FinishOutput struct {
	Entry         domain.Entry
	WeeklyUpdated bool
}

// StartSession opens an empty conversation for owner. name is how the
// confidante addresses the user.
func (s *JournalService) StartSession(ctx context.Context, owner, name string) (StartOutput, error) {
	if err := requireOwner(owner); err != nil {
		return StartOutput{}, err
	}
	sess := domain.Session{
		ID:        newUUID(),
		Owner:     owner,
		Name:      strings.TrimSpace(name),
		StartedAt: s.now().UTC(),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return StartOutput{}, newError(ErrorInternal, "session_write_error", err)
	}
	return StartOutput{SessionID: sess.ID}, nil
}

// Reply sends message to the confidante and records the exchange. Each
// response fragment is passed to onFragment as it arrives when onFragment is
// not nil. Nothing is recorded if generation fails.
func (s *JournalService) Reply(ctx context.Context, owner, sessionID, message string, onFragment func(string)) (ReplyOutput, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ReplyOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.settings.MaxMessageLength {
		return ReplyOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	sess, err := s.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return ReplyOutput{}, err
	}
	count := sess.TurnCount()
	if count+2 > s.settings.MaxSessionTurns {
		return ReplyOutput{}, newError(ErrorInvalidInput, "session_turn_limit", nil)
	}

	userTurn := user(message)
	msgs := instructed(append(append([]domain.Turn(nil), sess.Turns...), userTurn), system(confidantePrompt(sess.Name)))

	var b strings.Builder
	for fragment, err := range s.gen.GenerateStream(ctx, msgs, s.temperature) {
		if err != nil {
			return ReplyOutput{}, generationError(err)
		}
		b.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}
	reply := b.String()
	if strings.TrimSpace(reply) == "" {
		return ReplyOutput{}, newError(ErrorUpstream, "openai_empty_response", nil)
	}

	assistantTurn := domain.Turn{Role: domain.RoleAssistant, Text: reply}
	if err := s.sessions.AppendTurns(ctx, sess.ID, count, userTurn, assistantTurn); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return ReplyOutput{}, newError(ErrorConflict, "session_conflict", err)
		}
		return ReplyOutput{}, newError(ErrorInternal, "session_write_error", err)
	}
	return ReplyOutput{SessionID: sess.ID, Reply: reply, Turns: count + 2}, nil
}

// Finish turns the conversation into a journal entry, discards the session
// and refreshes the summary of the entry's week. The session is claimed
// first so concurrent or repeated calls create at most one entry; a second
// call while the first runs fails with CONFLICT. The session survives, and
// the claim is dropped, when the entry could not be stored. A failed weekly
// refresh is logged and reported through WeeklyUpdated only.
func (s *JournalService) Finish(ctx context.Context, owner, sessionID string) (FinishOutput, error) {
	sess, err := s.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return FinishOutput{}, err
	}
	if sess.TurnCount() == 0 {
		return FinishOutput{}, newError(ErrorInvalidInput, "empty_conversation", nil)
	}

	now := s.now().In(s.settings.Location)
	if err := s.sessions.ClaimSession(ctx, sess.ID, now.Add(finishClaimTTL)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return FinishOutput{}, newError(ErrorConflict, "session_finishing", err)
		}
		return FinishOutput{}, newError(ErrorInternal, "session_write_error", err)
	}
	// The claim is only kept once the entry exists.
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.sessions.ReleaseSession(context.WithoutCancel(ctx), sess.ID); err != nil {
			s.logger.WarnContext(ctx, "release finish claim failed", "session_id", sess.ID, "error", err)
		}
	}()

	ext, err := s.extractor.Extract(ctx, sess.Turns, now)
	if err != nil {
		if errors.Is(err, ErrEmptyConversation) {
			return FinishOutput{}, newError(ErrorInvalidInput, "empty_conversation", err)
		}
		return FinishOutput{}, generationError(err)
	}

	entry, err := s.entries.AppendEntry(ctx, domain.Entry{
		Owner:    owner,
		Date:     now.Format(domain.DateLayout),
		Time:     now.Format(domain.TimeLayout),
		Summary:  ext.Summary,
		Emotions: ext.Emotions,
		People:   ext.People,
		Topics:   ext.Topics,
	})
	if err != nil {
		return FinishOutput{}, newError(ErrorInternal, "entry_write_error", err)
	}
	committed = true
	s.logger.InfoContext(ctx, "journal entry saved",
		"owner", owner, "session_id", sess.ID, "entry_id", entry.ID, "turns", sess.TurnCount())

	if err := s.sessions.DeleteSession(ctx, sess.ID); err != nil {
		s.logger.WarnContext(ctx, "discard finished session failed", "session_id", sess.ID, "error", err)
	}

	out := FinishOutput{Entry: entry, WeeklyUpdated: true}
	if err := s.refreshWeek(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "weekly summary refresh failed", "owner", owner, "entry_id", entry.ID, "error", err)
		out.WeeklyUpdated = false
	}
	return out, nil
}

func (s *JournalService) refreshWeek(ctx context.Context, e domain.Entry) error {
	day, err := e.Day()
	if err != nil {
		return err
	}
	return s.aggregator.RecomputeWeek(ctx, e.Owner, day)
}

// ownedSession loads a session, hiding sessions of other owners.
func (s *JournalService) ownedSession(ctx context.Context, owner, sessionID string) (domain.Session, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, newError(ErrorNotFound, "session_not_found", nil)
	}
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "session_read_error", err)
	}
	if sess.Owner != owner {
		return domain.Session{}, newError(ErrorNotFound, "session_not_found", nil)
	}
	return sess, nil
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return newError(ErrorInvalidInput, "missing_owner", nil)
	}
	return nil
}
