package main

import (
	"bytes"
	"encoding/json"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"nutriscan/pkg/pipeline"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	initDB()
	tmp := t.TempDir()
	_ = os.Setenv("UPLOAD_BASE", tmp)
	seedDB()
	predictor = pipeline.New(pipeline.DefaultConfig())
	loadReferenceTable()
	r := gin.Default()
	setupRoutes(r)
	return r
}

// multipartImage builds a multipart body carrying a small PNG under the given
// field name.
func multipartImage(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	img := imaging.New(400, 200, color.NRGBA{255, 255, 255, 255})
	var png bytes.Buffer
	if err := imaging.Encode(&png, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile(field, filename)
	_, _ = w.Write(png.Bytes())
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": "scanner1", "password": "pass123"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	loginBody, _ := json.Marshal(map[string]string{"username": "scanner1", "password": "pass123"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	// 3. Create profile
	profBody, _ := json.Marshal(map[string]string{"name": "Scanner One", "email": "s1@example.com"})
	resp = performRequest(r, http.MethodPost, "/profile", bytes.NewBuffer(profBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("create profile failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 4. Public predict with the primary field name
	buf, ct := multipartImage(t, "file", "label.png")
	resp = performRequest(r, http.MethodPost, "/predict", buf, "", ct)
	if resp.Code != 200 {
		t.Fatalf("predict failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var pred map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &pred)
	if ok, _ := pred["ok"].(bool); !ok {
		t.Fatalf("predict response not ok: %+v", pred)
	}
	if _, has := pred["health_score"]; !has {
		t.Fatalf("predict response missing health_score: %+v", pred)
	}

	// 5. Predict also accepts the alternate field name
	buf, ct = multipartImage(t, "image", "label2.png")
	resp = performRequest(r, http.MethodPost, "/predict", buf, "", ct)
	if resp.Code != 200 {
		t.Fatalf("predict (image field) failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 6. Predict without a file is a structured 400
	empty := &bytes.Buffer{}
	mw := multipart.NewWriter(empty)
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/predict", empty, "", mw.FormDataContentType())
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing file, got %d", resp.Code)
	}

	// 7. Authenticated scan is persisted
	buf, ct = multipartImage(t, "file", "label.png")
	resp = performRequest(r, http.MethodPost, "/scans", buf, token, ct)
	if resp.Code != 200 {
		t.Fatalf("create scan failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 8. List scans
	resp = performRequest(r, http.MethodGet, "/scans", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list scans failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 9. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/scans", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list scans got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	initDB()
}
