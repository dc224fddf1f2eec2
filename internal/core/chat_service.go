package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/docstack/pdfchat/internal/store"
)

// ChatService orchestrates one conversational turn: load the conversation
// history, retrieve grounded passages, compose the answer and append both
// turns to the durable message log.
type ChatService struct {
	dbStore   *store.SQLiteStore
	retriever *Retriever
	composer  *Composer
}

func NewChatService(db *store.SQLiteStore, retriever *Retriever, composer *Composer) *ChatService {
	return &ChatService{
		dbStore:   db,
		retriever: retriever,
		composer:  composer,
	}
}

func (s *ChatService) GetUserByExternalID(externalUserID string) (*store.User, error) {
	return s.dbStore.GetUserByExternalID(externalUserID)
}

func (s *ChatService) CreateUser(externalUserID, passwordHash string) (*store.User, error) {
	return s.dbStore.CreateUser(externalUserID, passwordHash)
}

// Ask answers a question about the conversation's document and persists both
// turns. The history is read in full so the retriever can rewrite follow-up
// questions into standalone queries.
func (s *ChatService) Ask(ctx context.Context, conversationID, ownerID, documentID, question string, cfg RetrievalConfig) (*store.Message, error) {
	history, err := s.dbStore.MessagesByConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history for conversation %s: %w", conversationID, err)
	}

	query, passages, err := s.retriever.Retrieve(ctx, ownerID, documentID, cfg, history, question)
	if err != nil {
		return nil, err
	}

	if _, err := s.dbStore.AppendMessage(conversationID, store.RoleHuman, question); err != nil {
		return nil, fmt.Errorf("storing question for conversation %s: %w", conversationID, err)
	}

	answer, err := s.composer.Compose(ctx, query, passages, history)
	if err != nil {
		return nil, err
	}

	msg, err := s.dbStore.AppendMessage(conversationID, store.RoleAssistant, answer.Text)
	if err != nil {
		return nil, fmt.Errorf("storing answer for conversation %s: %w", conversationID, err)
	}
	return msg, nil
}

// AskStream is the streaming variant of Ask. Tokens are forwarded to the
// returned channel as they arrive; the assistant turn is persisted only
// after the stream has been fully consumed, so an aborted stream leaves no
// half answer in the history.
func (s *ChatService) AskStream(ctx context.Context, conversationID, ownerID, documentID, question string, cfg RetrievalConfig) (<-chan StreamToken, error) {
	history, err := s.dbStore.MessagesByConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history for conversation %s: %w", conversationID, err)
	}

	query, passages, err := s.retriever.Retrieve(ctx, ownerID, documentID, cfg, history, question)
	if err != nil {
		return nil, err
	}

	if _, err := s.dbStore.AppendMessage(conversationID, store.RoleHuman, question); err != nil {
		return nil, fmt.Errorf("storing question for conversation %s: %w", conversationID, err)
	}

	stream, err := s.composer.ComposeStream(ctx, query, passages, history)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamToken)
	go func() {
		defer close(out)
		var full strings.Builder
		failed := false
		for token := range stream {
			if token.Err != nil {
				failed = true
			} else {
				full.WriteString(token.Content)
			}
			out <- token
		}
		if failed {
			return
		}
		if _, err := s.dbStore.AppendMessage(conversationID, store.RoleAssistant, full.String()); err != nil {
			log.Printf("Failed to store streamed answer for conversation %s: %v", conversationID, err)
		}
	}()
	return out, nil
}

func (s *ChatService) SetMessageFeedback(messageID string, negative bool) error {
	return s.dbStore.UpdateMessageFeedback(messageID, negative)
}
