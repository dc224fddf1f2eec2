package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/docstack/pdfchat/internal/auth"
	"github.com/docstack/pdfchat/internal/chunker"
	"github.com/docstack/pdfchat/internal/core"
	"github.com/docstack/pdfchat/internal/extract"
	"github.com/docstack/pdfchat/internal/store"
	"github.com/docstack/pdfchat/internal/vectorstore"
)

var pdfMagic = []byte("%PDF-")

type APIHandler struct {
	dbStore     *store.SQLiteStore
	chatService *core.ChatService
	indexer     *core.Indexer
	extractor   *extract.Extractor
	uploadDir   string

	// One in-flight indexing job per document id; concurrent indexing of
	// the same document races on the mapping file.
	indexing sync.Map
}

func NewAPIHandler(db *store.SQLiteStore, cs *core.ChatService, ix *core.Indexer, ex *extract.Extractor, uploadDir string) *APIHandler {
	return &APIHandler{
		dbStore:     db,
		chatService: cs,
		indexer:     ix,
		extractor:   ex,
		uploadDir:   uploadDir,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.chatService.GetUserByExternalID(externalUserID)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", externalUserID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "externalUserID", user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.chatService.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.UserID, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.chatService.GetUserByExternalID(req.UserID)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.UserID, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// UploadPDFHandler accepts a multipart PDF upload, records the document and
// kicks off indexing in the background.
func (h *APIHandler) UploadPDFHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A 'file' form field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, head); err != nil || !bytes.HasPrefix(head, pdfMagic) {
		http.Error(w, "File is not a valid PDF", http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}

	doc, err := h.dbStore.CreateDocument(userID, header.Filename)
	if err != nil {
		log.Printf("Error creating document record for user %d: %v", userID, err)
		http.Error(w, "Failed to create document", http.StatusInternalServerError)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		log.Printf("Error creating upload dir: %v", err)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	path := h.uploadPath(doc.ID)
	dst, err := os.Create(path)
	if err != nil {
		log.Printf("Error creating upload file for document %s: %v", doc.ID, err)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		log.Printf("Error writing upload for document %s: %v", doc.ID, err)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	dst.Close()

	go h.indexDocument(userID, doc.ID, path)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

// indexDocument runs the extraction and indexing pipeline for one upload.
// The indexing map guarantees a single in-flight job per document id.
func (h *APIHandler) indexDocument(userID int64, docID, path string) {
	if _, loaded := h.indexing.LoadOrStore(docID, struct{}{}); loaded {
		log.Printf("Indexing already in flight for document %s, skipping", docID)
		return
	}
	defer h.indexing.Delete(docID)

	ctx := context.Background()
	pages, err := h.extractor.Pages(ctx, path)
	if err != nil {
		log.Printf("Error extracting document %s: %v", docID, err)
		return
	}

	chunkPages := make([]chunker.Page, len(pages))
	for i, p := range pages {
		chunkPages[i] = chunker.Page{Number: p.Number, Text: p.Text}
	}

	if err := h.indexer.IndexDocument(ctx, ownerKey(userID), docID, chunkPages); err != nil {
		log.Printf("Error indexing document %s for user %d: %v", docID, userID, err)
	}
}

func (h *APIHandler) ListPDFsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	docs, err := h.dbStore.GetDocumentsByUserID(userID)
	if err != nil {
		log.Printf("Error listing documents for user %d: %v", userID, err)
		http.Error(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(docs)
}

func (h *APIHandler) GetPDFHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	docID := chi.URLParam(r, "pdfID")

	doc, err := h.dbStore.GetDocumentByID(docID, userID)
	if err != nil {
		log.Printf("Error getting document %s for user %d: %v", docID, userID, err)
		http.Error(w, "Failed to get document", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(doc)
}

// DeletePDFHandler removes the document, its conversations and messages, its
// vector collection and the uploaded file. Embedding or file removal
// failures are logged and do not block the user-visible deletion.
func (h *APIHandler) DeletePDFHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	docID := chi.URLParam(r, "pdfID")

	doc, err := h.dbStore.GetDocumentByID(docID, userID)
	if err != nil {
		log.Printf("Error getting document %s for user %d: %v", docID, userID, err)
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	if err := h.indexer.DeleteDocument(ownerKey(userID), docID); err != nil {
		log.Printf("Warning: could not delete embeddings for document %s: %v", docID, err)
	}

	if err := os.Remove(h.uploadPath(docID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not delete upload for document %s: %v", docID, err)
	}

	if err := h.dbStore.DeleteDocument(docID, userID); err != nil {
		log.Printf("Error deleting document %s for user %d: %v", docID, userID, err)
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Document deleted successfully"})
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	docID := r.URL.Query().Get("pdf_id")
	if docID == "" {
		http.Error(w, "pdf_id query parameter is required", http.StatusBadRequest)
		return
	}

	convs, err := h.dbStore.GetConversationsByDocumentID(docID, userID)
	if err != nil {
		log.Printf("Error listing conversations for document %s: %v", docID, err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(convs)
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	docID := r.URL.Query().Get("pdf_id")
	if docID == "" {
		http.Error(w, "pdf_id query parameter is required", http.StatusBadRequest)
		return
	}

	doc, err := h.dbStore.GetDocumentByID(docID, userID)
	if err != nil {
		log.Printf("Error verifying document %s for user %d: %v", docID, userID, err)
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	conv, err := h.dbStore.CreateConversation(userID, docID)
	if err != nil {
		log.Printf("Error creating conversation for document %s: %v", docID, err)
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conv)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	conv, err := h.dbStore.GetConversationByID(convID, userID)
	if err != nil {
		log.Printf("Error getting conversation %s for user %d: %v", convID, userID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	messages, err := h.dbStore.MessagesByConversation(convID)
	if err != nil {
		log.Printf("Error getting messages for conversation %s: %v", convID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(struct {
		*store.Conversation
		Messages []store.Message `json:"messages"`
	}{conv, messages})
}

type PostMessageRequest struct {
	Input string `json:"input"`
}

// PostMessageHandler runs one conversational turn. With ?stream=true the
// answer is delivered as server-sent events.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Input == "" {
		http.Error(w, "No input provided", http.StatusBadRequest)
		return
	}

	conv, err := h.dbStore.GetConversationByID(convID, userID)
	if err != nil {
		log.Printf("Error verifying conversation %s for user %d: %v", convID, userID, err)
		http.Error(w, "Failed to post message", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	cfg := core.BalancedRetrieval()
	streaming := strings.EqualFold(r.URL.Query().Get("stream"), "true")

	if streaming {
		h.streamAnswer(w, r, conv, cfg, req.Input, userID)
		return
	}

	msg, err := h.chatService.Ask(r.Context(), conv.ID, ownerKey(userID), conv.DocumentID, req.Input, cfg)
	if err != nil {
		h.writeAskError(w, conv, err)
		return
	}
	json.NewEncoder(w).Encode(msg)
}

func (h *APIHandler) streamAnswer(w http.ResponseWriter, r *http.Request, conv *store.Conversation, cfg core.RetrievalConfig, input string, userID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	stream, err := h.chatService.AskStream(r.Context(), conv.ID, ownerKey(userID), conv.DocumentID, input, cfg)
	if err != nil {
		h.writeAskError(w, conv, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for token := range stream {
		if token.Err != nil {
			log.Printf("Stream error for conversation %s: %v", conv.ID, token.Err)
			fmt.Fprint(w, "event: error\ndata: generation failed\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", strings.ReplaceAll(token.Content, "\n", "\ndata: "))
		flusher.Flush()
	}
}

func (h *APIHandler) writeAskError(w http.ResponseWriter, conv *store.Conversation, err error) {
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		http.Error(w, "Document has not been indexed yet", http.StatusConflict)
	case errors.Is(err, core.ErrRetrieval):
		log.Printf("Retrieval failed for conversation %s: %v", conv.ID, err)
		http.Error(w, "Failed to retrieve document context", http.StatusBadGateway)
	case errors.Is(err, core.ErrGeneration):
		log.Printf("Generation failed for conversation %s: %v", conv.ID, err)
		http.Error(w, "Failed to generate answer", http.StatusBadGateway)
	default:
		log.Printf("Error answering in conversation %s: %v", conv.ID, err)
		http.Error(w, "Failed to post message", http.StatusInternalServerError)
	}
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.chatService.SetMessageFeedback(messageID, req.Negative)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Message not found", http.StatusNotFound)
		} else {
			log.Printf("Error setting feedback for message %s by user %d: %v", messageID, userID, err)
			http.Error(w, "Failed to set feedback", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) uploadPath(docID string) string {
	return filepath.Join(h.uploadDir, docID+".pdf")
}

// ownerKey is the vector store partition key for a user.
func ownerKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
