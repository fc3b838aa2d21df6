package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	testhelpers "github.com/polkiloo/dispatchdesk/internal/test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveWithAuth(resolver ActorResolver, req *http.Request) (*httptest.ResponseRecorder, model.Actor) {
	var stored model.Actor
	router := gin.New()
	router.Use(AuthRequired(resolver))
	router.GET("/", func(c *gin.Context) {
		if v, ok := c.Get(ActorContextKey); ok {
			stored = v.(model.Actor)
		}
		c.Status(http.StatusOK)
	})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp, stored
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthRequired(t *testing.T) {
	resp, _ := serveWithAuth(testhelpers.ActorResolverStub{Actor: testhelpers.Master}, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"code":"UNAUTHORIZED"`) {
		t.Fatalf("expected error envelope, got %s", resp.Body.String())
	}

	resp, _ = serveWithAuth(testhelpers.ActorResolverStub{Err: fmt.Errorf("%w: expired", domainErrors.ErrUnauthenticated)}, bearer("token"))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.Code)
	}

	resp, _ = serveWithAuth(testhelpers.ActorResolverStub{Err: domainErrors.ErrUnavailable}, bearer("token"))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the directory is unavailable, got %d", resp.Code)
	}

	resp, _ = serveWithAuth(testhelpers.ActorResolverStub{Err: context.DeadlineExceeded}, bearer("token"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}

	resp, stored := serveWithAuth(testhelpers.ActorResolverStub{Actor: testhelpers.Master}, bearer("token"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if stored.ID != testhelpers.Master.ID || stored.Role != model.RoleMaster {
		t.Fatalf("expected master actor in context, got %+v", stored)
	}
}

func TestAuthRequiredPassesToken(t *testing.T) {
	var seen string
	resolver := testhelpers.ActorResolverStub{ResolveFn: func(_ context.Context, token string) (model.Actor, error) {
		seen = token
		return testhelpers.Admin, nil
	}}
	resp, _ := serveWithAuth(resolver, httptest.NewRequest(http.MethodGet, "/?token=from-query", nil))
	if resp.Code != http.StatusOK || seen != "from-query" {
		t.Fatalf("expected query token to be used, got %d %q", resp.Code, seen)
	}
}

func TestExtractToken(t *testing.T) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	if token := extractToken(c); token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}

	c.Request.Header.Set("Authorization", "bearer abc")
	if token := extractToken(c); token != "abc" {
		t.Fatalf("expected token from header, got %q", token)
	}

	c.Request.Header.Set("Authorization", "Basic abc")
	if token := extractToken(c); token != "" {
		t.Fatalf("non-bearer schemes must be ignored, got %q", token)
	}

	c.Request, _ = http.NewRequest(http.MethodGet, "/?token=q", nil)
	if token := extractToken(c); token != "q" {
		t.Fatalf("expected token from query, got %q", token)
	}
}

func gzipped(payload string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(payload))
	_ = gz.Close()
	return buf.Bytes()
}

func TestDecompressRequest(t *testing.T) {
	router := gin.New()
	router.Use(DecompressRequest(16))
	var body string
	var readErr error
	router.POST("/", func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		body, readErr = string(data), err
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(gzipped("payload")))
	req.Header.Set("Content-Encoding", "gzip")
	router.ServeHTTP(httptest.NewRecorder(), req)
	if body != "payload" || readErr != nil {
		t.Fatalf("expected decompressed payload, got %q (%v)", body, readErr)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("plain")))
	router.ServeHTTP(httptest.NewRecorder(), req)
	if body != "plain" {
		t.Fatalf("expected plain body, got %q", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(gzipped(strings.Repeat("x", 64))))
	req.Header.Set("Content-Encoding", "gzip")
	router.ServeHTTP(httptest.NewRecorder(), req)
	var tooLarge *http.MaxBytesError
	if !errors.As(readErr, &tooLarge) {
		t.Fatalf("expected oversized body to be cut, got %v", readErr)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not gzip")))
	req.Header.Set("Content-Encoding", "gzip")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed gzip, got %d", resp.Code)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/ok", func(c *gin.Context) {
		c.Set(ActorContextKey, testhelpers.Dispatcher)
		c.Status(http.StatusOK)
	})
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("store down"))
		c.Status(http.StatusInternalServerError)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	if !strings.Contains(buf.String(), `"level":"INFO"`) || !strings.Contains(buf.String(), `"actor":"`+testhelpers.Dispatcher.ID+`"`) {
		t.Fatalf("expected info record with actor, got %s", buf.String())
	}

	buf.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), "store down") {
		t.Fatalf("expected warn record with error, got %s", buf.String())
	}
}
