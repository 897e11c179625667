package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"donormatch/internal/util"
	"donormatch/pkg/domain"
	"donormatch/pkg/store"
	"donormatch/pkg/vision"
)

// MaxMessageRunes bounds a single donor chat message.
const MaxMessageRunes = 4000

// ChatView is the donor's thread with the vision and board derived from it.
type ChatView struct {
	Messages []domain.ChatMessage `json:"messages"`
	Vision   vision.Vision        `json:"vision"`
	Board    vision.Board         `json:"board"`
	Greeting string               `json:"greeting,omitempty"`
}

// TurnResult is returned after a donor message has been handled.
type TurnResult struct {
	Message   domain.ChatMessage `json:"message"`
	Reply     domain.ChatMessage `json:"reply"`
	Vision    vision.Vision      `json:"vision"`
	Board     vision.Board       `json:"board"`
	Completed bool               `json:"completed"`
}

// GetChat returns the recent thread. Vision and board are recomputed from
// the full message log, not read from the profile cache.
func (a *App) GetChat(donor domain.User) (ChatView, error) {
	all, err := a.store.ListChatMessages(donor.ID, 0)
	if err != nil {
		return ChatView{}, fmt.Errorf("list chat: %w", err)
	}
	v := vision.Extract(toTurns(all))
	view := ChatView{
		Messages: tail(all, a.chatHistoryLimit),
		Vision:   v,
		Board:    vision.BuildBoard(v),
	}
	if view.Messages == nil {
		view.Messages = []domain.ChatMessage{}
	}
	if len(all) == 0 {
		view.Greeting = vision.ComposeReply(v, "", vision.ComposeOptions{}).Reply
	}
	return view, nil
}

// PostChatTurn appends the donor message and the assistant reply and
// refreshes the cached profile. The whole turn holds the donor lock so two
// concurrent turns cannot interleave their reads and writes.
func (a *App) PostChatTurn(ctx context.Context, donor domain.User, content string) (TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return TurnResult{}, ErrMessageRequired
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return TurnResult{}, ErrMessageTooLong
	}
	var result TurnResult
	err := a.store.WithDonorLock(donor.ID, func(tx store.Store) error {
		history, err := tx.ListChatMessages(donor.ID, 0)
		if err != nil {
			return fmt.Errorf("list chat: %w", err)
		}
		turns := toTurns(history)
		prev := vision.Extract(turns)

		msg := domain.ChatMessage{
			ID:        util.NewID(),
			DonorID:   donor.ID,
			Role:      vision.RoleDonor,
			Content:   content,
			CreatedAt: a.timestamp(),
		}
		if err := tx.AppendChatMessage(msg); err != nil {
			return fmt.Errorf("append donor message: %w", err)
		}
		turns = append(turns, vision.Turn{Role: msg.Role, Content: msg.Content})
		next := vision.Extract(turns)
		reply := vision.ComposeReply(next, content, vision.ComposeOptions{PrevVision: &prev})

		assistant := domain.ChatMessage{
			ID:        util.NewID(),
			DonorID:   donor.ID,
			Role:      vision.RoleAssistant,
			Content:   reply.Reply,
			CreatedAt: msg.CreatedAt.Add(time.Millisecond),
		}
		if err := tx.AppendChatMessage(assistant); err != nil {
			return fmt.Errorf("append assistant message: %w", err)
		}

		profile, _, err := tx.GetProfile(donor.ID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		board := vision.BuildBoard(next)
		profile.DonorID = donor.ID
		profile.Vision = next
		profile.Board = board
		profile.UpdatedAt = assistant.CreatedAt
		if err := tx.SaveProfile(profile); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		result = TurnResult{
			Message:   msg,
			Reply:     assistant,
			Vision:    next,
			Board:     board,
			Completed: board.Complete,
		}
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}
	util.LoggerFromContext(ctx).Info("chat_turn",
		"donor_id", donor.ID,
		"pillars", len(result.Vision.Pillars),
		"geo", len(result.Vision.GeoFocus),
		"board_complete", result.Completed,
	)
	return result, nil
}

func toTurns(messages []domain.ChatMessage) []vision.Turn {
	turns := make([]vision.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, vision.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
