package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type streamFixture struct {
	srv    *httptest.Server
	hub    *services.SSEHub
	tokens *utils.TokenManager
	db     *gorm.DB
}

func streamServer(t *testing.T) *streamFixture {
	t.Helper()
	tokens, err := utils.NewTokenManager(utils.JWTOptions{Secret: "stream-secret"})
	require.NoError(t, err)
	db := openTestDB(t)
	dir := services.NewDirectory(db)
	hub := services.NewSSEHub()

	r := gin.New()
	r.GET("/stream", NewSSEHandler(hub, tokens, authz.NewEngine(dir, dir)).StreamNotifications)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &streamFixture{srv: srv, hub: hub, tokens: tokens, db: db}
}

func (f *streamFixture) account(t *testing.T, username string, active bool) (*models.User, string) {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     authz.Member.String(),
		AuthType: models.AuthTypeLocal,
		IsActive: true,
	}
	require.NoError(t, f.db.Create(u).Error)
	if !active {
		require.NoError(t, f.db.Model(u).Update("is_active", false).Error)
	}
	token, _, err := f.tokens.Issue(u.ID, u.Username, u.Role)
	require.NoError(t, err)
	return u, token
}

func TestStreamNotifications_RequiresToken(t *testing.T) {
	f := streamServer(t)

	for _, path := range []string{"/stream", "/stream?token=garbage"} {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestStreamNotifications_InactiveAccount(t *testing.T) {
	f := streamServer(t)
	_, token := f.account(t, "gone", false)

	resp, err := http.Get(f.srv.URL + "/stream?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotEqual(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Contains(t, env.Message, authz.ReasonUnknownActor)
	assert.Zero(t, f.hub.ClientCount())
}

func TestStreamNotifications_DeliversOwnEvents(t *testing.T) {
	f := streamServer(t)
	ada, token := f.account(t, "ada", true)
	hub := f.hub

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/stream?token="+token, nil)
	require.NoError(t, err)

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		done <- result{resp, err}
	}()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.Publish(ada.ID+1, services.StreamEvent{ID: 1, Message: "not yours"}))
	require.Equal(t, 1, hub.Publish(ada.ID, services.StreamEvent{ID: 2, Kind: "task_assigned", Message: "yours"}))

	res := <-done
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	assert.Equal(t, "text/event-stream", res.resp.Header.Get("Content-Type"))

	var lines []string
	scanner := bufio.NewScanner(res.resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "event: notification", lines[0])
	assert.Equal(t, "id: 2", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "data: "))
	assert.Contains(t, lines[2], `"message":"yours"`)

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamToken(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		header string
		want   string
	}{
		{"query", "?token=abc", "", "abc"},
		{"query wins", "?token=abc", "Bearer xyz", "abc"},
		{"header", "", "bearer xyz", "xyz"},
		{"no scheme", "", "xyz", ""},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/stream"+tt.query, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, streamToken(c))
		})
	}
}
