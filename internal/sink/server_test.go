package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/danmuck/cictl/internal/testutil/testlog"
	"github.com/danmuck/cictl/internal/testutil/tlstest"
	"github.com/danmuck/cictl/internal/upload"
)

var testAccounts = map[string]string{"ci": "pw"}

func newTestSink(t *testing.T, accounts map[string]string) *Sink {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(Config{
		ID:         "sink-test",
		StorageDir: filepath.Join(t.TempDir(), "store"),
		Accounts:   accounts,
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	return s
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(name, name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, testAccounts)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["service"] != "sink-test" || body["status"] != "ok" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, map[string]string{"ci": "pw"})
	body, ctype := multipartBody(t, map[string]string{"a.zip": "x"})

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	list, err := s.Store().List()
	if err != nil || len(list) != 0 {
		t.Fatalf("nothing should be stored: %v %v", list, err)
	}
}

func TestNewRequiresAccounts(t *testing.T) {
	testlog.Start(t)
	_, err := New(Config{StorageDir: t.TempDir()})
	if !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
	_, err = New(Config{StorageDir: t.TempDir(), Accounts: map[string]string{}})
	if !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts for empty map, got %v", err)
	}
}

func TestAnonymousSinkMustBeExplicit(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s, err := New(Config{StorageDir: t.TempDir(), AllowAnonymous: true})
	if err != nil {
		t.Fatalf("new anonymous sink: %v", err)
	}
	body, ctype := multipartBody(t, map[string]string{"a.zip": "x"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from anonymous sink, got %d", rr.Code)
	}

	authed := newTestSink(t, testAccounts)
	rr = httptest.NewRecorder()
	authed.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/artifacts", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 listing without credentials, got %d", rr.Code)
	}
}

func TestUploadStoresFiles(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, map[string]string{"ci": "pw"})
	body, ctype := multipartBody(t, map[string]string{"a.zip": "alpha", "b.zip": "bravo"})

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	req.SetBasicAuth("ci", "pw")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(s.Store().Dir(), "b.zip"))
	if err != nil || string(data) != "bravo" {
		t.Fatalf("unexpected stored data: %q %v", data, err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/artifacts", nil)
	listReq.SetBasicAuth("ci", "pw")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, listReq)
	var listed struct {
		Artifacts []StoredArtifact `json:"artifacts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Artifacts) != 2 || listed.Artifacts[0].Name != "a.zip" || listed.Artifacts[0].Size != 5 {
		t.Fatalf("unexpected listing: %+v", listed.Artifacts)
	}

	dlReq := httptest.NewRequest(http.MethodGet, "/artifacts/a.zip", nil)
	dlReq.SetBasicAuth("ci", "pw")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, dlReq)
	if rr.Code != http.StatusOK || rr.Body.String() != "alpha" {
		t.Fatalf("unexpected download: %d %q", rr.Code, rr.Body.String())
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, testAccounts)
	body, ctype := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	req.SetBasicAuth("ci", "pw")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUploadTraversalStaysInStore(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, testAccounts)
	body, ctype := multipartBody(t, map[string]string{"../escape.zip": "x"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	req.SetBasicAuth("ci", "pw")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Store().Dir()), "escape.zip")); err == nil {
		t.Fatalf("file escaped storage dir")
	}
	if rr.Code == http.StatusOK {
		if _, err := os.Stat(filepath.Join(s.Store().Dir(), "escape.zip")); err != nil {
			t.Fatalf("expected base name stored: %v", err)
		}
	}
}

func TestDownloadMissing(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, testAccounts)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/nope.zip", nil)
	req.SetBasicAuth("ci", "pw")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCleanName(t *testing.T) {
	for _, bad := range []string{"", " ", ".", "..", "a/b.zip", `a\b.zip`, ".upload-123"} {
		if _, err := cleanName(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if name, err := cleanName(" ok.zip "); err != nil || name != "ok.zip" {
		t.Fatalf("unexpected clean result: %q %v", name, err)
	}
}

func TestUploaderRoundTrip(t *testing.T) {
	testlog.Start(t)
	s := newTestSink(t, map[string]string{"ci": "pw"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	dir := t.TempDir()
	for name, content := range map[string]string{"app-linux.zip": "linux", "app-osx.zip": "osx", "log.txt": "no"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	list, err := artifacts.Collect(dir, ".", nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	cfg := upload.DefaultConfig()
	cfg.URL = srv.URL + "/upload"
	cfg.User = "ci"
	cfg.Password = "pw"
	up, err := upload.New(cfg, nil)
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	if _, err := up.Upload(context.Background(), list); err != nil {
		t.Fatalf("upload: %v", err)
	}

	stored, err := s.Store().List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, a := range stored {
		names = append(names, a.Name)
	}
	if strings.Join(names, ",") != "app-linux.zip,app-osx.zip" {
		t.Fatalf("unexpected stored artifacts: %v", names)
	}
}

func TestNewRejectsHalfTLS(t *testing.T) {
	testlog.Start(t)
	_, err := New(Config{StorageDir: t.TempDir(), Accounts: testAccounts, TLSCertFile: "server.pem"})
	if !errors.Is(err, ErrTLSKeyPair) {
		t.Fatalf("expected ErrTLSKeyPair, got %v", err)
	}
}

func TestUploaderRoundTripTLS(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	ca := tlstest.NewAuthority(t, "cictl-test-ca")
	certFile, keyFile := ca.ServerCert(t, "127.0.0.1", "localhost")

	s, err := New(Config{
		StorageDir:  filepath.Join(t.TempDir(), "store"),
		Accounts:    testAccounts,
		TLSCertFile: certFile,
		TLSKeyFile:  keyFile,
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if s.TLSConfig() == nil {
		t.Fatalf("expected tls config")
	}
	srv := httptest.NewUnstartedServer(s.Handler())
	srv.TLS = s.TLSConfig()
	srv.StartTLS()
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.zip"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := artifacts.Collect(dir, ".", nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	cfg := upload.DefaultConfig()
	cfg.URL = srv.URL + "/upload"
	cfg.User = "ci"
	cfg.Password = "pw"

	untrusted, err := upload.New(cfg, nil)
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	if _, err := untrusted.Upload(context.Background(), list); err == nil {
		t.Fatalf("expected certificate verification failure")
	}

	cfg.CAFile = ca.CAFile()
	trusted, err := upload.New(cfg, nil)
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	if _, err := trusted.Upload(context.Background(), list); err != nil {
		t.Fatalf("upload over tls: %v", err)
	}
	stored, err := s.Store().List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "app.zip" {
		t.Fatalf("unexpected stored artifacts: %+v", stored)
	}
}
