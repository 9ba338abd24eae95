package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/esim-portal/internal/database/dbtest"
	"github.com/thereayou/esim-portal/internal/handlers/dto"
	"github.com/thereayou/esim-portal/internal/models"
	"github.com/thereayou/esim-portal/internal/storage"
	"go.uber.org/zap"
)

type fakeFileStore struct {
	uploads []string
	deleted []string
	err     error
}

func (s *fakeFileStore) Upload(ctx context.Context, file *multipart.FileHeader) (*storage.StoredFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	name := "attachments/test/" + file.Filename
	s.uploads = append(s.uploads, name)
	return &storage.StoredFile{
		Name:       file.Filename,
		Type:       storage.ContentType(file),
		URL:        "https://files.example.com/" + name,
		Size:       file.Size,
		ObjectName: name,
	}, nil
}

func (s *fakeFileStore) Delete(ctx context.Context, objectName string) error {
	s.deleted = append(s.deleted, objectName)
	return nil
}

func messageRouter(f *fixture, files storage.FileStore, actor *models.User) *gin.Engine {
	h := NewHTTPMessageHandler(f.db, f.hub, files, zap.NewNop())

	r := gin.New()
	g := r.Group("/api/v1/messages", as(actor))
	g.GET("/conversation/self", h.GetOwnConversation)
	g.GET("/conversation/:userId", h.GetConversation)
	g.GET("/conversations", h.GetConversations)
	g.PUT("/mark-read", h.MarkRead)
	g.POST("/pin", h.Pin)
	g.POST("/unpin", h.Unpin)
	g.GET("/pinned/:userId", h.GetPinned)
	g.GET("/export/:userId", h.ExportConversation)
	g.POST("/attachment", h.SendWithAttachment)
	return r
}

type listResponse struct {
	Success  bool                  `json:"success"`
	Messages []dto.MessageResponse `json:"messages"`
}

type conversationsResponse struct {
	Success       bool                      `json:"success"`
	Conversations []dto.ConversationSummary `json:"conversations"`
}

func TestOpeningConversationMarksUserMessagesRead(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)
	bob := dbtest.User(t, f.db, "bob", models.RoleUser)
	admin := dbtest.User(t, f.db, "support", models.RoleAdmin)
	f.connect(alice)

	base := time.Now().Add(-time.Hour)
	dbtest.Message(t, f.db, alice.ID, models.RoleUser, "first", base)
	dbtest.Message(t, f.db, alice.ID, models.RoleUser, "second", base.Add(time.Minute))
	dbtest.Message(t, f.db, bob.ID, models.RoleUser, "bob here", base.Add(2*time.Minute))

	r := messageRouter(f, nil, admin)

	var list conversationsResponse
	w := doJSON(t, r, http.MethodGet, "/api/v1/messages/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list.Conversations, 2)

	// новые первыми
	assert.Equal(t, bob.ID, list.Conversations[0].ID)
	assert.False(t, list.Conversations[0].IsOnline)
	assert.Equal(t, alice.ID, list.Conversations[1].ID)
	assert.Equal(t, "alice", list.Conversations[1].Name)
	assert.Equal(t, "alice@example.com", list.Conversations[1].Email)
	assert.Equal(t, int64(2), list.Conversations[1].UnreadCount)
	assert.True(t, list.Conversations[1].HasUnread)
	assert.True(t, list.Conversations[1].IsOnline)
	assert.Equal(t, "second", list.Conversations[1].LastMessage.Text)

	var history listResponse
	w = doJSON(t, r, http.MethodGet, "/api/v1/messages/conversation/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "first", history.Messages[0].Text)
	assert.Equal(t, "second", history.Messages[1].Text)

	w = doJSON(t, r, http.MethodGet, "/api/v1/messages/conversations", nil)
	decode(t, w, &list)
	for _, c := range list.Conversations {
		if c.ID == alice.ID {
			assert.Zero(t, c.UnreadCount)
			assert.False(t, c.HasUnread)
		}
	}
}

func TestConversationsSkipMissingOwner(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)
	admin := dbtest.User(t, f.db, "support", models.RoleAdmin)

	base := time.Now().Add(-time.Hour)
	dbtest.Message(t, f.db, alice.ID, models.RoleUser, "hello", base)
	dbtest.Message(t, f.db, uuid.New(), models.RoleUser, "from a deleted account", base.Add(time.Minute))

	r := messageRouter(f, nil, admin)

	var list conversationsResponse
	w := doJSON(t, r, http.MethodGet, "/api/v1/messages/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, alice.ID, list.Conversations[0].ID)
	assert.Equal(t, "alice", list.Conversations[0].Name)
}

func TestOwnConversationAndMarkRead(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)

	base := time.Now().Add(-time.Hour)
	dbtest.Message(t, f.db, alice.ID, models.RoleUser, "question", base)
	reply := &models.Message{
		OwnerUserID: alice.ID,
		SenderID:    uuid.New(),
		SenderRole:  models.RoleAdmin,
		Text:        "see attachment",
		CreatedAt:   base.Add(time.Minute),
	}
	require.NoError(t, f.db.SaveMessage(reply))

	r := messageRouter(f, nil, alice)

	var history listResponse
	w := doJSON(t, r, http.MethodGet, "/api/v1/messages/conversation/self", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &history)
	require.Len(t, history.Messages, 2)
	assert.False(t, history.Messages[1].IsRead)

	var marked struct {
		Success bool  `json:"success"`
		Updated int64 `json:"updated"`
	}
	w = doJSON(t, r, http.MethodPut, "/api/v1/messages/mark-read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &marked)
	assert.True(t, marked.Success)
	assert.Equal(t, int64(1), marked.Updated)

	stored, err := f.db.GetMessage(reply.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
}

func TestPinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)
	admin := dbtest.User(t, f.db, "support", models.RoleAdmin)
	base := time.Now().Add(-time.Hour)
	older := dbtest.Message(t, f.db, alice.ID, models.RoleUser, "older", base)
	newer := dbtest.Message(t, f.db, alice.ID, models.RoleUser, "newer", base.Add(time.Minute))

	r := messageRouter(f, nil, admin)

	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/v1/messages/pin", gin.H{"messageId": older.ID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/messages/pin", gin.H{"messageId": newer.ID})
	require.Equal(t, http.StatusOK, w.Code)

	var pinned listResponse
	w = doJSON(t, r, http.MethodGet, "/api/v1/messages/pinned/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &pinned)
	require.Len(t, pinned.Messages, 2)
	assert.Equal(t, newer.ID, pinned.Messages[0].ID)
	assert.Equal(t, older.ID, pinned.Messages[1].ID)

	for i := 0; i < 2; i++ {
		w = doJSON(t, r, http.MethodPost, "/api/v1/messages/unpin", gin.H{"messageId": older.ID})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/v1/messages/pinned/"+alice.ID.String(), nil)
	decode(t, w, &pinned)
	require.Len(t, pinned.Messages, 1)

	w = doJSON(t, r, http.MethodPost, "/api/v1/messages/pin", gin.H{"messageId": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/messages/pin", gin.H{"messageId": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/messages/pin", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportConversation(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)
	admin := dbtest.User(t, f.db, "support", models.RoleAdmin)
	dbtest.Message(t, f.db, alice.ID, models.RoleUser, "hello", time.Now())

	r := messageRouter(f, nil, admin)

	w := doJSON(t, r, http.MethodGet, "/api/v1/messages/export/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		`attachment; filename="chat-history-`+alice.ID.String()+`.json"`,
		w.Header().Get("Content-Disposition"),
	)

	var doc struct {
		User         dto.UserInfo          `json:"user"`
		MessageCount int                   `json:"messageCount"`
		Messages     []dto.MessageResponse `json:"messages"`
	}
	decode(t, w, &doc)
	assert.Equal(t, alice.ID, doc.User.ID)
	assert.Equal(t, 1, doc.MessageCount)
	require.Len(t, doc.Messages, 1)

	w = doJSON(t, r, http.MethodGet, "/api/v1/messages/export/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("attachment", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/attachment", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSendWithAttachment(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)
	admin := dbtest.User(t, f.db, "support", models.RoleAdmin)
	aliceConn := f.connect(alice)
	files := &fakeFileStore{}

	r := messageRouter(f, files, admin)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, map[string]string{
		"userId": alice.ID.String(),
		"text":   "Your invoice",
	}, "invoice.pdf", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool                `json:"success"`
		Message dto.MessageResponse `json:"message"`
	}
	decode(t, w, &resp)
	require.NotNil(t, resp.Message.Attachment)
	assert.Equal(t, "invoice.pdf", resp.Message.Attachment.Name)
	assert.Equal(t, "application/pdf", resp.Message.Attachment.Type)
	assert.Equal(t, "https://files.example.com/attachments/test/invoice.pdf", resp.Message.Attachment.URL)
	assert.Len(t, files.uploads, 1)

	stored, err := f.db.GetMessage(resp.Message.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
	assert.Equal(t, models.RoleAdmin, stored.SenderRole)
	assert.Equal(t, alice.ID, stored.OwnerUserID)

	// без push в реальном времени
	assert.Empty(t, drain(aliceConn))
}

func TestSendWithAttachmentErrors(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.User(t, f.db, "alice", models.RoleUser)
	admin := dbtest.User(t, f.db, "support", models.RoleAdmin)

	send := func(r http.Handler, fields map[string]string, filename string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, fields, filename, []byte("data")))
		return w.Code
	}

	r := messageRouter(f, &fakeFileStore{}, admin)
	assert.Equal(t, http.StatusBadRequest, send(r, map[string]string{"userId": "nope"}, "a.png"))
	assert.Equal(t, http.StatusBadRequest, send(r, map[string]string{"userId": alice.ID.String()}, ""))
	assert.Equal(t, http.StatusNotFound, send(r, map[string]string{"userId": uuid.NewString()}, "a.png"))

	tooLarge := messageRouter(f, &fakeFileStore{err: storage.ErrFileTooLarge}, admin)
	assert.Equal(t, http.StatusBadRequest, send(tooLarge, map[string]string{"userId": alice.ID.String()}, "a.png"))

	disabled := messageRouter(f, nil, admin)
	assert.Equal(t, http.StatusServiceUnavailable, send(disabled, map[string]string{"userId": alice.ID.String()}, "a.png"))

	files := &fakeFileStore{}
	dbtest.Close(t, f.db)
	failing := messageRouter(f, files, admin)
	assert.Equal(t, http.StatusInternalServerError, send(failing, map[string]string{"userId": alice.ID.String()}, "a.png"))
}
