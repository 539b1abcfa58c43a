package setting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/setting/entity"
)

type memStore struct {
	rows map[string]entity.Setting
}

func (m *memStore) FindOrCreate(_ context.Context, s *entity.Setting) (*entity.Setting, error) {
	if row, ok := m.rows[s.ID]; ok {
		return &row, nil
	}
	m.rows[s.ID] = *s
	row := *s
	return &row, nil
}

func (m *memStore) Save(_ context.Context, s *entity.Setting) error {
	m.rows[s.ID] = *s
	return nil
}

func TestSiteIsCreatedWithDefaults(t *testing.T) {
	store := &memStore{rows: map[string]entity.Setting{}}
	svc := NewService(store)

	v, err := svc.Site(context.Background())
	require.NoError(t, err)
	require.Equal(t, SiteID, v.ID)
	require.False(t, v.DeleteConfirmation)
	require.Contains(t, store.rows, SiteID)
}

func TestUpdateSiteKeepsUnsetFields(t *testing.T) {
	store := &memStore{rows: map[string]entity.Setting{}}
	svc := NewService(store)
	on := true

	v, err := svc.UpdateSite(context.Background(), SitePatch{DeleteConfirmation: &on})
	require.NoError(t, err)
	require.True(t, v.DeleteConfirmation)

	v, err = svc.UpdateSite(context.Background(), SitePatch{})
	require.NoError(t, err)
	require.True(t, v.DeleteConfirmation)
	require.JSONEq(t, `{"deleteConfirmation":true}`, string(store.rows[SiteID].Metadata))
}

func TestGetHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(NewService(&memStore{rows: map[string]entity.Setting{}}), zap.NewNop().Sugar())
	r.GET("/api/settings", h.Get)
	r.PATCH("/api/settings", h.Update)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"_id":"site","deleteConfirmation":false}`, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/settings", strings.NewReader(`{"deleteConfirmation":true}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"message":"Settings updated successfully.","page":{"_id":"site","deleteConfirmation":true}}`, w.Body.String())
}
