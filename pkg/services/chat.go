package services

import (
	"context"
	"strings"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/state"
)

// ChatErrorPrefix starts the placeholder text of a failed answer.
const ChatErrorPrefix = "Error: "

// StaleChatNotice replaces a placeholder whose answer was discarded because
// the selection changed while it was pending.
const StaleChatNotice = "Response discarded: the selected report changed."

// Ask submits question about the selected report. The question and an
// assistant placeholder are appended before the backend is called; the
// placeholder is then resolved exactly once with the answer, an error
// notice, or StaleChatNotice. The question itself is never removed.
func (s *Session) Ask(ctx context.Context, question string) (state.ChatMessage, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		if _, ok := s.store.Current(); !ok {
			return state.ChatMessage{}, ErrNoSelection
		}
		return state.ChatMessage{}, ErrEmptyQuestion
	}

	var placeholder *state.Handle
	t, err := s.admit(ctx, state.ActionChat, func() error {
		if err := s.chat.Begin(); err != nil {
			return err
		}
		s.transcript.Append(state.ChatMessage{Role: state.RoleUser, Text: q})
		placeholder = s.transcript.AppendPending()
		return nil
	})
	if err != nil {
		return state.ChatMessage{}, err
	}
	defer s.leave(state.ActionChat)

	resp, callErr := s.client.Query(ctx, backend.QueryRequest{
		Question:  q,
		ReportIDs: []string{t.report.ID},
		TopK:      s.topK,
	})

	err = s.settle(ctx, t, callErr, func(stale bool) error {
		switch {
		case stale:
			return placeholder.Fail(StaleChatNotice)
		case callErr != nil:
			msg := backend.ErrorMessage(callErr)
			if err := placeholder.Fail(ChatErrorPrefix + msg); err != nil {
				return err
			}
			return s.chat.Fail(msg)
		default:
			if err := placeholder.Resolve(resp.Answer, resp.Citations); err != nil {
				return err
			}
			return s.chat.Succeed(s.transcript.Get(placeholder))
		}
	})
	return s.transcript.Get(placeholder), err
}
