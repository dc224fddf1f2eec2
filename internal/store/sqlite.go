package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        name TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        document_id TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id),
        FOREIGN KEY (document_id) REFERENCES documents (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('human', 'assistant')),
        content TEXT NOT NULL,
        sequence INTEGER NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        negative_feedback BOOLEAN DEFAULT FALSE,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id),
        UNIQUE (conversation_id, sequence)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByExternalID(externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, password_hash, created_at FROM users WHERE external_user_id = ?", externalUserID).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(externalUserID, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (external_user_id, password_hash) VALUES (?, ?)", externalUserID, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(id)
}

func (s *SQLiteStore) getUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Document methods
func (s *SQLiteStore) CreateDocument(userID int64, name string) (*Document, error) {
	docID := uuid.NewString()
	now := time.Now()
	_, err := s.db.Exec("INSERT INTO documents (id, user_id, name, created_at) VALUES (?, ?, ?, ?)", docID, userID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return &Document{ID: docID, UserID: userID, Name: name, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetDocumentByID(docID string, userID int64) (*Document, error) {
	var doc Document
	err := s.db.QueryRow("SELECT id, user_id, name, created_at FROM documents WHERE id = ? AND user_id = ?", docID, userID).Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteStore) GetDocumentsByUserID(userID int64) ([]Document, error) {
	rows, err := s.db.Query("SELECT id, user_id, name, created_at FROM documents WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteDocument removes the document row together with every conversation
// and message that references it. The vector collection and the uploaded
// file are not touched here; those belong to other owners.
func (s *SQLiteStore) DeleteDocument(docID string, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE document_id = ? AND user_id = ?)", docID, userID); err != nil {
		return fmt.Errorf("failed to delete messages for document %s: %w", docID, err)
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE document_id = ? AND user_id = ?", docID, userID); err != nil {
		return fmt.Errorf("failed to delete conversations for document %s: %w", docID, err)
	}
	res, err := tx.Exec("DELETE FROM documents WHERE id = ? AND user_id = ?", docID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document not found or not owned by user")
	}
	return tx.Commit()
}

// Conversation methods
func (s *SQLiteStore) CreateConversation(userID int64, documentID string) (*Conversation, error) {
	convID := uuid.NewString()
	now := time.Now()
	_, err := s.db.Exec("INSERT INTO conversations (id, user_id, document_id, created_at) VALUES (?, ?, ?, ?)", convID, userID, documentID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return &Conversation{ID: convID, UserID: userID, DocumentID: documentID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetConversationByID(convID string, userID int64) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow("SELECT id, user_id, document_id, created_at FROM conversations WHERE id = ? AND user_id = ?", convID, userID).Scan(&conv.ID, &conv.UserID, &conv.DocumentID, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLiteStore) GetConversationsByDocumentID(docID string, userID int64) ([]Conversation, error) {
	rows, err := s.db.Query("SELECT id, user_id, document_id, created_at FROM conversations WHERE document_id = ? AND user_id = ? ORDER BY created_at DESC", docID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.DocumentID, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// Message methods

// AppendMessage stores a conversation turn. The sequence is assigned inside
// the INSERT so it is strictly increasing per conversation regardless of
// clock resolution. Duplicate content on retry is accepted as-is.
func (s *SQLiteStore) AppendMessage(conversationID, role, content string) (*Message, error) {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
	}

	query := `
        INSERT INTO messages (id, conversation_id, role, content, sequence, timestamp)
        VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE conversation_id = ?), ?)
    `
	_, err := s.db.Exec(query, msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ConversationID, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := s.db.QueryRow("SELECT sequence FROM messages WHERE id = ?", msg.ID).Scan(&msg.Sequence); err != nil {
		return nil, fmt.Errorf("failed to read back message sequence: %w", err)
	}
	return &msg, nil
}

// MessagesByConversation returns the full ordered history for a conversation.
// The history is read in full on every request; conversations are small.
func (s *SQLiteStore) MessagesByConversation(conversationID string) ([]Message, error) {
	query := "SELECT id, conversation_id, role, content, sequence, timestamp, negative_feedback FROM messages WHERE conversation_id = ? ORDER BY sequence ASC"
	rows, err := s.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Sequence, &msg.Timestamp, &msg.NegativeFeedback); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *SQLiteStore) UpdateMessageFeedback(messageID string, negativeFeedback bool) error {
	res, err := s.db.Exec("UPDATE messages SET negative_feedback = ? WHERE id = ?", negativeFeedback, messageID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("message not found, feedback not updated")
	}
	return nil
}
