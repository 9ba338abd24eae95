package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/database/dbtest"
	"github.com/thereayou/esim-portal/internal/middleware"
	"github.com/thereayou/esim-portal/internal/models"
	"github.com/thereayou/esim-portal/internal/services"
	"github.com/thereayou/esim-portal/internal/websocket"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db  *database.Database
	hub *websocket.Hub
	mh  *MessageHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	hub := websocket.NewHub(zap.NewNop())
	return &fixture{
		db:  db,
		hub: hub,
		mh:  NewMessageHandler(db, hub, zap.NewNop()),
	}
}

// connect регистрирует соединение без сети: всё, что хаб отправляет
// клиенту, остаётся в Send
func (f *fixture) connect(u *models.User) *websocket.Client {
	c := websocket.NewClient(f.hub, nil, u.ID, u.Role, u.Name)
	f.hub.Register(c)
	return c
}

func event(t *testing.T, typ websocket.MessageType, data interface{}) *websocket.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &websocket.Message{Type: typ, Data: raw}
}

func drain(c *websocket.Client) []websocket.Message {
	var out []websocket.Message
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var m websocket.Message
			if err := json.Unmarshal(data, &m); err == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func only(t *testing.T, msgs []websocket.Message, typ websocket.MessageType, v interface{}) {
	t.Helper()
	require.Len(t, msgs, 1, "expected exactly one %s", typ)
	require.Equal(t, typ, msgs[0].Type)
	if v != nil {
		require.NoError(t, json.Unmarshal(msgs[0].Data, v))
	}
}

func identityOf(u *models.User) *services.Identity {
	return &services.Identity{ActorID: u.ID, Role: u.Role, DisplayName: u.Name, Email: u.Email}
}

// as подставляет уже проверенную личность, минуя JWT
func as(u *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.IdentityKey, identityOf(u))
		c.Set(middleware.UserIDKey, u.ID)
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
