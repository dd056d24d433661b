package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "audience/internal/core/context"
	"audience/internal/core/tx"
	"audience/internal/domain/auth"
	"audience/internal/domain/importer"
	"audience/internal/domain/profile"
	"audience/internal/domain/profile/profiletest"
	"audience/internal/domain/segment"
	"audience/internal/domain/segment/segmenttest"
	"audience/internal/infrastructure/http/v1/dto"
	"audience/internal/infrastructure/http/v1/middleware"
)

var allPermissions = []string{
	auth.PermProfileRead, auth.PermProfileWrite, auth.PermProfileImport,
	auth.PermSegmentRead, auth.PermSegmentWrite,
}

type apiFixture struct {
	engine   *gin.Engine
	profiles *profiletest.Repository
	segments *segmenttest.Repository
}

func newAPI(t *testing.T, perms []string, seed ...*profile.Profile) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, dto.RegisterValidators())

	f := &apiFixture{
		profiles: profiletest.NewRepository(seed...),
		segments: segmenttest.NewRepository(),
	}
	profiles := profile.NewService(profile.ServiceConfig{Repo: f.profiles, TxManager: tx.Noop{}})
	segments := segment.NewService(segment.ServiceConfig{
		Repo:      f.segments,
		Snapshots: segmenttest.NewSnapshots(),
		Profiles:  profiles,
		TxManager: tx.Noop{},
	})
	imports := importer.NewService(importer.ServiceConfig{
		Profiles: profiles,
		Segments: segments,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	})

	user := &appctx.UserContext{UserID: "u-1", TenantID: "t-1", Permissions: perms}
	engine := gin.New()
	engine.Use(middleware.ErrorHandler())
	api := engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Next()
	})
	RegisterRoutes(api, RouterConfig{
		Profiles:          profiles,
		Segments:          segments,
		Importer:          imports,
		MaxImportFileSize: 1 << 20,
	})
	f.engine = engine
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(raw))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func audience() []*profile.Profile {
	return []*profile.Profile{
		profiletest.New("Ann", "ann@example.com", profiletest.WithCountry("Spain"), profiletest.WithCustom("plan", "gold")),
		profiletest.New("Bo", "bo@example.com", profiletest.WithCountry("France")),
		profiletest.New("Cy", "cy@example.com", profiletest.WithCountry("Spain")),
	}
}

var spain = map[string]any{
	"conditions": []map[string]any{{"field": "country", "operator": "equals", "value": "Spain"}},
}

func TestProfiles_CreateAndGet(t *testing.T) {
	f := newAPI(t, allPermissions)

	w := f.do(t, http.MethodPost, "/api/v1/profiles", map[string]any{
		"firstName":     " Ann ",
		"email":         "ANN@Example.com",
		"tags":          []string{"vip", "vip"},
		"lifetimeValue": "12.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.ProfileResponse](t, w)
	assert.Equal(t, "Ann", created.FirstName)
	require.NotNil(t, created.Email)
	assert.Equal(t, "ann@example.com", *created.Email)
	assert.Equal(t, []string{"vip"}, created.Tags)
	require.NotNil(t, created.LifetimeValue)
	assert.Equal(t, "12.5", *created.LifetimeValue)

	w = f.do(t, http.MethodGet, "/api/v1/profiles/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[dto.ProfileResponse](t, w).ID)
}

func TestProfiles_CreateRejectsProfileWithoutContact(t *testing.T) {
	f := newAPI(t, allPermissions)

	w := f.do(t, http.MethodPost, "/api/v1/profiles", map[string]any{"firstName": "Nobody"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, w).Code)
}

func TestProfiles_ListWithFilterQuery(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	raw, err := json.Marshal(spain)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/v1/profiles?limit=1&filter="+url.QueryEscape(string(raw)), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[dto.ListResponse[dto.ProfileResponse]](t, w)
	assert.EqualValues(t, 2, page.TotalCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Ann", page.Items[0].FirstName)

	w = f.do(t, http.MethodGet, "/api/v1/profiles?search=bo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[dto.ListResponse[dto.ProfileResponse]](t, w).TotalCount)
}

func TestProfiles_ListRejectsBadFilters(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	tests := []struct {
		name string
		path string
		code string
	}{
		{"not json", "/api/v1/profiles?filter=" + url.QueryEscape("{oops"), "INVALID_FILTER"},
		{"unknown type", "/api/v1/profiles?type=vip", "VALIDATION_ERROR"},
		{"limit too large", "/api/v1/profiles?limit=5000", "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode[dto.ErrorResponse](t, w).Code)
		})
	}
}

func TestProfiles_IncompleteConditionsFailClosed(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	near := map[string]any{
		"conditions": []map[string]any{{"field": "country", "operator": "near", "value": "Spain"}},
	}
	raw, err := json.Marshal(near)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/v1/profiles?filter="+url.QueryEscape(string(raw)), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[dto.ListResponse[dto.ProfileResponse]](t, w)
	assert.Zero(t, page.TotalCount)
	assert.Empty(t, page.Items)

	tests := []struct {
		name string
		cond map[string]any
		want int64
	}{
		{"unknown operator", map[string]any{"field": "country", "operator": "not_a_real_operator", "value": "Spain"}, 0},
		{"non-numeric bound", map[string]any{"field": "lifetime_value", "operator": "greater_than", "value": "abc"}, 0},
		{"empty contains", map[string]any{"field": "country", "operator": "contains", "value": ""}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/profiles/search", map[string]any{
				"criteria": map[string]any{"conditions": []map[string]any{tt.cond}},
			})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.EqualValues(t, tt.want, decode[dto.ListResponse[dto.ProfileResponse]](t, w).TotalCount)
		})
	}

	w = f.do(t, http.MethodPost, "/api/v1/profiles/export?format=csv", near)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0", w.Header().Get("X-Export-Count"))
}

func TestProfiles_Search(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	w := f.do(t, http.MethodPost, "/api/v1/profiles/search", map[string]any{
		"criteria": map[string]any{
			"conditions": []map[string]any{{"field": "custom_fields.plan", "operator": "is", "value": "gold"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[dto.ListResponse[dto.ProfileResponse]](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Ann", page.Items[0].FirstName)
}

func TestProfiles_UpdateVersionConflict(t *testing.T) {
	seed := audience()
	f := newAPI(t, allPermissions, seed...)
	path := "/api/v1/profiles/" + seed[1].ID.String()

	w := f.do(t, http.MethodPut, path, map[string]any{
		"firstName": "Bob", "email": "bo@example.com", "version": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[dto.ProfileResponse](t, w)
	assert.Equal(t, "Bob", updated.FirstName)
	assert.Equal(t, 2, updated.Version)

	w = f.do(t, http.MethodPut, path, map[string]any{
		"firstName": "Bobby", "email": "bo@example.com", "version": 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONCURRENT_MODIFICATION", decode[dto.ErrorResponse](t, w).Code)
}

func TestProfiles_DeleteMarksInactive(t *testing.T) {
	seed := audience()
	f := newAPI(t, allPermissions, seed...)
	path := "/api/v1/profiles/" + seed[0].ID.String()

	w := f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Inactive", decode[dto.ProfileResponse](t, w).Status)
}

func TestProfiles_InvalidID(t *testing.T) {
	f := newAPI(t, allPermissions)
	w := f.do(t, http.MethodGet, "/api/v1/profiles/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfiles_FieldsAndExport(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	w := f.do(t, http.MethodGet, "/api/v1/profiles/fields", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fields := decode[dto.FieldsResponse](t, w)
	assert.Contains(t, fields.Standard, "lifetime_value")
	assert.Equal(t, []string{"plan"}, fields.Custom)

	w = f.do(t, http.MethodPost, "/api/v1/profiles/export?format=csv", spain)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "2", w.Header().Get("X-Export-Count"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,first_name,last_name,email"))

	w = f.do(t, http.MethodPost, "/api/v1/profiles/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermissions(t *testing.T) {
	f := newAPI(t, []string{auth.PermProfileRead}, audience()...)

	w := f.do(t, http.MethodGet, "/api/v1/profiles", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/profiles", map[string]any{"email": "x@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/segments", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auth.PermSegmentRead, decode[dto.ErrorResponse](t, w).Details["required_permission"])
}

func TestSegments_Lifecycle(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	w := f.do(t, http.MethodPost, "/api/v1/segments", map[string]any{"name": "Spain", "criteria": spain})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	seg := decode[dto.SegmentResponse](t, w)
	assert.Equal(t, 2, seg.EstimatedSize)
	assert.Equal(t, "manual", seg.Source)
	require.NotNil(t, seg.CreatedBy)
	assert.Equal(t, "u-1", *seg.CreatedBy)

	base := "/api/v1/segments/" + seg.ID

	w = f.do(t, http.MethodGet, base+"/members?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[dto.ListResponse[dto.ProfileResponse]](t, w).TotalCount)

	w = f.do(t, http.MethodGet, base+"/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[dto.SnapshotResponse](t, w)
	assert.Equal(t, 2, snap.Size)
	assert.Len(t, snap.MemberIDs, 2)

	w = f.do(t, http.MethodGet, "/api/v1/segments?search=spa", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[dto.ListResponse[dto.SegmentResponse]](t, w).TotalCount)

	w = f.do(t, http.MethodPut, base, map[string]any{
		"name":     "Spain or France",
		"criteria": map[string]any{"conditions": []map[string]any{{"field": "country", "operator": "not_equals", "value": "Italy"}}},
		"version":  seg.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, decode[dto.SegmentResponse](t, w).EstimatedSize)

	w = f.do(t, http.MethodPost, base+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/segments/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode[dto.OverviewResponse](t, w)
	assert.Equal(t, 3, overview.TotalProfiles)
	require.Len(t, overview.Segments, 1)
	assert.Equal(t, 0, overview.Segments[0].Drift)

	w = f.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSegments_PreviewAndValidation(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	w := f.do(t, http.MethodPost, "/api/v1/segments/preview", map[string]any{"criteria": spain, "sample": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[dto.PreviewResponse](t, w)
	assert.Equal(t, 2, preview.Size)
	assert.Len(t, preview.Sample, 1)

	w = f.do(t, http.MethodPost, "/api/v1/segments", map[string]any{
		"name":     "Broken",
		"criteria": map[string]any{"conditions": []map[string]any{{"field": "country", "operator": "near", "value": "x"}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/segments", map[string]any{"criteria": spain})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func upload(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/profiles/import", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestImport(t *testing.T) {
	f := newAPI(t, allPermissions, audience()...)

	csv := "Email,First Name,Country\nann@example.com,,Spain\nnew@example.com,Neo,Portugal\nbroken,,\n"
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, upload(t, "contacts.csv", csv, map[string]string{
		"tag":           "spring",
		"createSegment": "true",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[importer.Result](t, w)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "spring", res.Tag)
	require.NotNil(t, res.SegmentID)

	w = f.do(t, http.MethodGet, "/api/v1/segments/"+*res.SegmentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.SegmentResponse](t, w).EstimatedSize)
}

func TestImport_Rejections(t *testing.T) {
	f := newAPI(t, []string{auth.PermProfileImport})

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, upload(t, "contacts.pdf", "email\na@example.com\n", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, upload(t, "contacts.csv", "email\na@example.com\n", map[string]string{"createSegment": "true"}))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, upload(t, "contacts.csv", "name\nAnn\n", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "IMPORT_REJECTED", decode[dto.ErrorResponse](t, w).Code)
}

func TestImport_MissingFile(t *testing.T) {
	f := newAPI(t, allPermissions)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/profiles/import", strings.NewReader(""))
	r = r.WithContext(context.Background())
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
