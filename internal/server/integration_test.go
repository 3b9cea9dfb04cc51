package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zheng93775/house-keeper/internal/backup"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/models"
	"github.com/zheng93775/house-keeper/internal/server/dto"
	"github.com/zheng93775/house-keeper/internal/server/handlers"
	"github.com/zheng93775/house-keeper/internal/server/ratelimit"
	"github.com/zheng93775/house-keeper/internal/storage"
)

var testJWTSecret = []byte("test-secret-key-32-bytes-long!!!")

type testEnv struct {
	server *httptest.Server
	svc    *handlers.Services
}

func setupTestEnv(t *testing.T, rl storage.RateLimits) *testEnv {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	store, err := docstore.New(dataDir)
	if err != nil {
		t.Fatalf("docstore.New: %v", err)
	}
	users, err := storage.NewUserService(store, 0)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	houses, err := storage.NewHouseService(store, users)
	if err != nil {
		t.Fatalf("NewHouseService: %v", err)
	}
	mgr, err := backup.New(dataDir, filepath.Join(t.TempDir(), "backup"))
	if err != nil {
		t.Fatalf("backup.New: %v", err)
	}
	svc := &handlers.Services{
		Users:  users,
		Houses: houses,
		Images: storage.NewImageService(store, 1024),
		Backup: mgr,
	}
	cfg := &handlers.Config{
		ServerConfig: storage.ServerConfig{
			JWTSecret:   testJWTSecret,
			SessionDays: 30,
			Quotas:      storage.DefaultQuotas(),
			RateLimits:  rl,
		},
		Version: "test",
	}
	limiters := ratelimit.NewConfig(rl)
	t.Cleanup(limiters.Close)

	server := httptest.NewServer(NewRouter(svc, cfg, limiters, "", nil))
	t.Cleanup(server.Close)

	for _, name := range []string{"alice", "bob", "carol"} {
		if _, err := users.Create(name, name+"-pw"); err != nil {
			t.Fatal(err)
		}
	}
	return &testEnv{server: server, svc: svc}
}

// do performs an HTTP request with the session token as cookie and returns
// the response with its body read.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: handlers.SessionCookie, Value: token})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do request: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		t.Fatalf("ReadAll/Close: %v", err)
	}
	return resp, data
}

// doJSON performs a JSON request, decodes the JSON response, and returns the status code.
func (e *testEnv) doJSON(t *testing.T, method, path string, body, response any, token string) int {
	t.Helper()
	var bodyReader io.Reader
	ct := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
		ct = "application/json"
	}
	resp, data := e.do(t, method, path, bodyReader, ct, token)
	if response != nil && len(data) > 0 {
		if err := json.Unmarshal(data, response); err != nil {
			t.Fatalf("Unmarshal response: %v\nBody: %s", err, string(data))
		}
	}
	return resp.StatusCode
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	body := strings.NewReader(`{"username":"` + username + `","password":"` + username + `-pw"}`)
	resp, data := e.do(t, http.MethodPost, "/api/login", body, "application/json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/login: got status %d: %s", resp.StatusCode, data)
	}
	for _, c := range resp.Cookies() {
		if c.Name == handlers.SessionCookie {
			if !c.HttpOnly || c.Path != "/" || c.MaxAge != 30*24*3600 {
				t.Errorf("cookie = %+v", c)
			}
			return c.Value
		}
	}
	t.Fatal("login did not set the session cookie")
	return ""
}

func TestIntegration(t *testing.T) {
	t.Parallel()
	t.Run("Health", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, storage.DefaultRateLimits())
		var health dto.HealthResponse
		if status := env.doJSON(t, http.MethodGet, "/api/health", nil, &health, ""); status != http.StatusOK {
			t.Fatalf("GET /api/health: got status %d", status)
		}
		if health.Status != "ok" || health.Version != "test" || health.GoVersion == "" {
			t.Errorf("health = %+v", health)
		}
		resp, data := env.do(t, http.MethodGet, "/metrics", nil, "", "")
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "housekeeper_http_requests_total") {
			t.Errorf("GET /metrics: status %d, missing request counter", resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header not set")
		}
	})

	t.Run("Auth", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, storage.DefaultRateLimits())
		var errResp dto.ErrorResponse
		if status := env.doJSON(t, http.MethodGet, "/api/houses", nil, &errResp, ""); status != http.StatusUnauthorized {
			t.Errorf("GET /api/houses without cookie: got status %d", status)
		}
		if errResp.Error.Code != dto.ErrorCodeUnauthorized {
			t.Errorf("error code = %s", errResp.Error.Code)
		}
		status := env.doJSON(t, http.MethodPost, "/api/login", dto.LoginRequest{Username: "alice", Password: "nope"}, &errResp, "")
		if status != http.StatusUnauthorized {
			t.Errorf("login with wrong password: got status %d", status)
		}
		status = env.doJSON(t, http.MethodPost, "/api/login", map[string]any{"username": "alice"}, &errResp, "")
		if status != http.StatusBadRequest || errResp.Error.Code != dto.ErrorCodeMissingField {
			t.Errorf("login without password: got %d %s", status, errResp.Error.Code)
		}

		token := env.login(t, "alice")
		var me dto.UserResponse
		if status := env.doJSON(t, http.MethodGet, "/api/me", nil, &me, token); status != http.StatusOK || me.Username != "alice" {
			t.Errorf("GET /api/me: got %d %+v", status, me)
		}

		// A second login rotates the token and revokes the first cookie.
		token2 := env.login(t, "alice")
		if status := env.doJSON(t, http.MethodGet, "/api/me", nil, nil, token); status != http.StatusUnauthorized {
			t.Errorf("GET /api/me with revoked cookie: got status %d", status)
		}
		if status := env.doJSON(t, http.MethodPost, "/api/logout", nil, nil, token2); status != http.StatusOK {
			t.Errorf("POST /api/logout: got status %d", status)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/me", nil, nil, token2); status != http.StatusUnauthorized {
			t.Errorf("GET /api/me after logout: got status %d", status)
		}
	})

	t.Run("HouseWorkflow", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, storage.DefaultRateLimits())
		alice := env.login(t, "alice")
		bob := env.login(t, "bob")
		carol := env.login(t, "carol")

		var created dto.CreateHouseResponse
		status := env.doJSON(t, http.MethodPost, "/api/houses", dto.CreateHouseRequest{Name: "Home"}, &created, alice)
		if status != http.StatusCreated || created.ID == "" || created.Message != "House created successfully" {
			t.Fatalf("POST /api/houses: got %d %+v", status, created)
		}
		base := "/api/houses/" + created.ID

		var msg dto.MessageResponse
		if status := env.doJSON(t, http.MethodPut, base+"/members", dto.SetMembersRequest{Usernames: []string{"bob"}}, &msg, bob); status != http.StatusForbidden {
			t.Errorf("members update by non-creator: got status %d", status)
		}
		if status := env.doJSON(t, http.MethodPut, base+"/members", dto.SetMembersRequest{Usernames: []string{"bob"}}, &msg, alice); status != http.StatusOK {
			t.Fatalf("PUT members: got status %d", status)
		}

		var list dto.ListHousesResponse
		if status := env.doJSON(t, http.MethodGet, "/api/houses", nil, &list, bob); status != http.StatusOK || len(list.Houses) != 1 {
			t.Errorf("GET /api/houses as member: got %d %+v", status, list)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/houses", nil, &list, carol); status != http.StatusOK || len(list.Houses) != 0 || list.Houses == nil {
			t.Errorf("GET /api/houses as stranger: got %d %+v", status, list)
		}
		if status := env.doJSON(t, http.MethodGet, base+"/detail", nil, nil, carol); status != http.StatusForbidden {
			t.Errorf("GET detail as stranger: got status %d", status)
		}

		var detail models.HouseDetail
		if status := env.doJSON(t, http.MethodGet, base+"/detail", nil, &detail, bob); status != http.StatusOK {
			t.Fatalf("GET detail: got status %d", status)
		}
		v1 := detail.Version
		items := []models.Area{{ID: "a1", Name: "Garage", Content: "bike pump", Images: []string{}, Items: []models.Area{}}}

		var upd dto.UpdateDetailResponse
		if status := env.doJSON(t, http.MethodPut, base+"/detail", dto.UpdateDetailRequest{Version: v1, Items: items}, &upd, bob); status != http.StatusOK {
			t.Fatalf("PUT detail: got status %d", status)
		}
		if upd.Version == "" || upd.Version == v1 {
			t.Errorf("PUT detail version = %q, want new token", upd.Version)
		}

		// A concurrent editor still holding v1 loses.
		var errResp dto.ErrorResponse
		status = env.doJSON(t, http.MethodPut, base+"/detail", dto.UpdateDetailRequest{Version: v1, Items: []models.Area{}}, &errResp, alice)
		if status != http.StatusConflict || errResp.Error.Code != dto.ErrorCodeVersionMismatch {
			t.Errorf("stale PUT detail: got %d %s", status, errResp.Error.Code)
		}

		var search dto.SearchResponse
		if status := env.doJSON(t, http.MethodGet, base+"/search?q=pump", nil, &search, alice); status != http.StatusOK {
			t.Fatalf("GET search: got status %d", status)
		}
		if len(search.Results) != 1 || search.Results[0].Path != "/Home/Garage" {
			t.Errorf("search = %+v", search.Results)
		}

		// Web clients save by sending back the whole detail they read.
		var full models.HouseDetail
		if status := env.doJSON(t, http.MethodGet, base+"/detail", nil, &full, alice); status != http.StatusOK {
			t.Fatalf("GET detail: got status %d", status)
		}
		full.Items = append(full.Items, models.Area{ID: "a2", Name: "Attic", Content: "boxes", Images: []string{}, Items: []models.Area{}})
		full.Name = "Renamed"
		if status := env.doJSON(t, http.MethodPut, base+"/detail", &full, &upd, alice); status != http.StatusOK {
			t.Fatalf("PUT whole detail: got status %d", status)
		}
		if status := env.doJSON(t, http.MethodGet, base+"/detail", nil, &full, alice); status != http.StatusOK {
			t.Fatalf("GET detail: got status %d", status)
		}
		if full.Version != upd.Version || full.Name != "Home" || len(full.Items) != 2 {
			t.Errorf("detail after whole save = %+v", full)
		}

		var report dto.BackupResponse
		if status := env.doJSON(t, http.MethodPost, "/api/backup", nil, &report, alice); status != http.StatusOK {
			t.Fatalf("POST /api/backup: got status %d", status)
		}
		if report.Message != "Backup completed successfully" || len(report.Copied) != 3 {
			t.Errorf("backup = %+v", report)
		}

		if status := env.doJSON(t, http.MethodDelete, base, nil, nil, bob); status != http.StatusForbidden {
			t.Errorf("DELETE by member: got status %d", status)
		}
		if status := env.doJSON(t, http.MethodDelete, base, nil, &msg, alice); status != http.StatusOK || msg.Message != "House deleted successfully" {
			t.Errorf("DELETE by creator: got %d %+v", status, msg)
		}
		if status := env.doJSON(t, http.MethodGet, base+"/detail", nil, nil, alice); status != http.StatusNotFound {
			t.Errorf("GET deleted detail: got status %d", status)
		}
	})

	t.Run("Images", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, storage.DefaultRateLimits())
		token := env.login(t, "alice")

		uploadField := func(field, filename, content string) (*http.Response, []byte) {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, err := mw.CreateFormFile(field, filename)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := fw.Write([]byte(content)); err != nil {
				t.Fatal(err)
			}
			if err := mw.Close(); err != nil {
				t.Fatal(err)
			}
			return env.do(t, http.MethodPost, "/api/images", &buf, mw.FormDataContentType(), token)
		}
		upload := func(filename, content string) (*http.Response, []byte) {
			return uploadField("file", filename, content)
		}

		resp, data := upload("shelf.png", "png-data")
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST /api/images: got %d %s", resp.StatusCode, data)
		}
		var up dto.UploadImageResponse
		if err := json.Unmarshal(data, &up); err != nil {
			t.Fatal(err)
		}
		resp, data = env.do(t, http.MethodGet, "/api/images/"+up.Name, nil, "", token)
		if resp.StatusCode != http.StatusOK || string(data) != "png-data" || resp.Header.Get("Content-Type") != "image/png" {
			t.Errorf("GET image: got %d %q %s", resp.StatusCode, data, resp.Header.Get("Content-Type"))
		}
		if resp, _ := env.do(t, http.MethodGet, "/api/images/"+up.Name, nil, "", ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET image without cookie: got status %d", resp.StatusCode)
		}
		if up.FileName != up.Name {
			t.Errorf("upload response = %+v, want file_name equal to name", up)
		}

		// Older web clients post the part as "image".
		resp, data = uploadField("image", "box.jpg", "jpg-data")
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST /api/images with image field: got %d %s", resp.StatusCode, data)
		}
		var legacy map[string]string
		if err := json.Unmarshal(data, &legacy); err != nil {
			t.Fatal(err)
		}
		resp, data = env.do(t, http.MethodGet, "/api/images/"+legacy["file_name"], nil, "", token)
		if resp.StatusCode != http.StatusOK || string(data) != "jpg-data" {
			t.Errorf("GET image by file_name: got %d %q", resp.StatusCode, data)
		}
		if resp, _ := uploadField("other", "x.png", "x"); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("upload without an image part: got status %d", resp.StatusCode)
		}
		if resp, _ := upload("notes.txt", "x"); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("upload .txt: got status %d", resp.StatusCode)
		}
		if resp, _ := upload("big.jpg", strings.Repeat("x", 2048)); resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("upload oversize: got status %d", resp.StatusCode)
		}
		if resp, _ := env.do(t, http.MethodGet, "/api/images/missing.png", nil, "", token); resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET missing image: got status %d", resp.StatusCode)
		}
	})

	t.Run("Schema", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, storage.DefaultRateLimits())
		var schema map[string]any
		if status := env.doJSON(t, http.MethodGet, "/api/schema/house-detail", nil, &schema, ""); status != http.StatusOK {
			t.Fatalf("GET schema: got status %d", status)
		}
		if _, ok := schema["properties"]; !ok {
			t.Errorf("schema has no properties: %v", schema)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/schema/nope", nil, nil, ""); status != http.StatusNotFound {
			t.Errorf("GET unknown schema: got status %d", status)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/nope", nil, nil, ""); status != http.StatusNotFound {
			t.Errorf("GET unknown endpoint: got status %d", status)
		}
	})

	t.Run("LoginRateLimit", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, storage.RateLimits{AuthRatePerMin: 2})
		for range 2 {
			if status := env.doJSON(t, http.MethodPost, "/api/login", dto.LoginRequest{Username: "x", Password: "y"}, nil, ""); status != http.StatusUnauthorized {
				t.Fatalf("login: got status %d", status)
			}
		}
		var errResp dto.ErrorResponse
		if status := env.doJSON(t, http.MethodPost, "/api/login", dto.LoginRequest{Username: "x", Password: "y"}, &errResp, ""); status != http.StatusTooManyRequests {
			t.Errorf("third login: got status %d", status)
		}
		if errResp.Error.Code != dto.ErrorCodeRateLimitExceeded {
			t.Errorf("error code = %s", errResp.Error.Code)
		}
	})
}
