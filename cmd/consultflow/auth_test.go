package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/api/handlers"
	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/types"
)

const testJWTSecret = "test-secret-with-enough-length-0123456789"

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-42",
		"iss": "consultflow",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testJWTSecret, Issuer: "consultflow"}

	var gotUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = types.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(inner)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"
	legacy := jwt.MapClaims{"user_id": "legacy-7", "iss": "consultflow", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantCode   types.ErrorCode
		wantUser   string
	}{
		{name: "valid token", path: "/api/v1/workflow/run", header: "Bearer " + signHS256(t, validClaims(), testJWTSecret), wantStatus: http.StatusOK, wantUser: "user-42"},
		{name: "user_id claim", path: "/api/v1/workflow/run", header: "Bearer " + signHS256(t, legacy, testJWTSecret), wantStatus: http.StatusOK, wantUser: "legacy-7"},
		{name: "missing header", path: "/api/v1/workflow/run", wantStatus: http.StatusUnauthorized, wantCode: types.ErrUnauthorized},
		{name: "not bearer", path: "/api/v1/workflow/run", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: types.ErrUnauthorized},
		{name: "bad signature", path: "/api/v1/workflow/run", header: "Bearer " + signHS256(t, validClaims(), "another-secret-entirely-0123456789"), wantStatus: http.StatusUnauthorized, wantCode: types.ErrAuthentication},
		{name: "expired", path: "/api/v1/workflow/run", header: "Bearer " + signHS256(t, expired, testJWTSecret), wantStatus: http.StatusUnauthorized, wantCode: types.ErrAuthentication},
		{name: "wrong issuer", path: "/api/v1/workflow/run", header: "Bearer " + signHS256(t, wrongIssuer, testJWTSecret), wantStatus: http.StatusUnauthorized, wantCode: types.ErrAuthentication},
		{name: "skip path", path: "/health", wantStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, path: "/api/v1/workflow/run", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			method := tt.method
			if method == "" {
				method = http.MethodPost
			}
			w := httptest.NewRecorder()
			r := httptest.NewRequest(method, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantCode != "" {
				var resp handlers.Response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.NotNil(t, resp.Error)
				assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			}
		})
	}
}

func TestJWTAuth_WebSocketQueryToken(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testJWTSecret}
	handler := JWTAuth(cfg, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	token := signHS256(t, validClaims(), testJWTSecret)

	// 仅升级请求接受查询参数中的令牌
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/workflow/ws?access_token="+token, nil)
	r.Header.Set("Upgrade", "websocket")
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs?access_token="+token, nil)
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_RejectsUnexpectedAlgorithm(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testJWTSecret}
	handler := JWTAuth(cfg, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims())
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	var gotUser string
	handler := JWTAuth(config.JWTConfig{Enabled: true, PublicKey: string(pubPEM)}, nil, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, _ = types.UserID(r.Context())
		}))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", gotUser)

	// 未配置 HMAC 密钥时 HS256 令牌一律拒绝
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/v1/workflow/runs", nil)
	r.Header.Set("Authorization", "Bearer "+signHS256(t, validClaims(), testJWTSecret))
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer ")
	_, err := bearerToken(r)
	assert.ErrorIs(t, err, errNoBearer)

	r.Header.Set("Authorization", "Bearer abc")
	tok, err := bearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
