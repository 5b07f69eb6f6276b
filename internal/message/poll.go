package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// PollDraft describes a poll to post.
type PollDraft struct {
	Question      string
	Options       []string
	ExpiresAt     *time.Time
	AllowMultiple bool
}

func (d PollDraft) build(id string) (*models.Poll, error) {
	question := strings.TrimSpace(d.Question)
	if question == "" {
		return nil, apperr.Invalid("poll question is required")
	}
	if err := validateBody(question, true); err != nil {
		return nil, err
	}
	if len(d.Options) < models.MinPollOptions || len(d.Options) > models.MaxPollOptions {
		return nil, apperr.Invalid(fmt.Sprintf("poll needs %d to %d options", models.MinPollOptions, models.MaxPollOptions))
	}

	p := &models.Poll{
		ID:            id,
		Question:      question,
		Options:       make([]models.PollOption, 0, len(d.Options)),
		Voters:        make(map[string][]string),
		AllowMultiple: d.AllowMultiple,
	}
	for i, text := range d.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, apperr.Invalid("poll options must not be empty")
		}
		p.Options = append(p.Options, models.PollOption{ID: strconv.Itoa(i + 1), Text: text})
	}
	if d.ExpiresAt != nil {
		t := d.ExpiresAt.UTC()
		p.ExpiresAt = &t
	}
	return p, nil
}

// SendPoll posts a new message carrying a poll. The message body is the question.
func (s *Store) SendPoll(key roomkey.Key, author string, d PollDraft) (*models.Message, error) {
	if key.IsZero() {
		return nil, apperr.Invalid("room is required")
	}
	poll, err := d.build(s.newID())
	if err != nil {
		return nil, err
	}
	if poll.ExpiresAt != nil && !poll.ExpiresAt.After(s.now()) {
		return nil, apperr.Invalid("poll expiry must be in the future")
	}

	msg := &models.Message{
		ID:        s.newID(),
		Room:      key,
		Author:    author,
		Body:      poll.Question,
		Timestamp: s.now(),
		Reactions: make(map[string][]string),
		Poll:      poll,
	}
	s.appendMessage(key, msg)
	return msg.Clone(), nil
}

// Vote records actor choosing optionID in the poll attached to message id.
// Expiry is checked here rather than by a timer.
func (s *Store) Vote(key roomkey.Key, id, actor, optionID string) (*models.Message, error) {
	return s.mutate(key, id, func(m *models.Message) error {
		p := m.Poll
		if p == nil {
			return fmt.Errorf("vote on %s: %w", id, apperr.ErrPollNotFound)
		}
		if p.ExpiresAt != nil && !s.now().Before(*p.ExpiresAt) {
			return fmt.Errorf("vote on %s: %w", id, apperr.ErrPollExpired)
		}

		opt := -1
		for i := range p.Options {
			if p.Options[i].ID == optionID {
				opt = i
				break
			}
		}
		if opt < 0 {
			return fmt.Errorf("vote on %s: %w", id, apperr.ErrInvalidOption)
		}

		chosen := p.Voters[actor]
		if len(chosen) > 0 && !p.AllowMultiple {
			return fmt.Errorf("vote on %s: %w", id, apperr.ErrAlreadyVoted)
		}
		for _, c := range chosen {
			if c == optionID {
				return fmt.Errorf("vote on %s: %w", id, apperr.ErrAlreadyVoted)
			}
		}

		p.Options[opt].Votes++
		if p.Voters == nil {
			p.Voters = make(map[string][]string)
		}
		p.Voters[actor] = append(chosen, optionID)
		return nil
	})
}
