package main

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/types"
)

var errNoBearer = errors.New("missing or malformed Authorization header")

// jwtVerifier 校验 HS256 / RS256 令牌并取出调用方身份
type jwtVerifier struct {
	secret []byte
	pubKey *rsa.PublicKey
	parser *jwt.Parser
}

func newJWTVerifier(cfg config.JWTConfig, logger *zap.Logger) *jwtVerifier {
	v := &jwtVerifier{secret: []byte(cfg.Secret)}
	if cfg.PublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			logger.Warn("RS256 disabled: cannot parse public key", zap.Error(err))
		} else {
			v.pubKey = key
		}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v
}

func (v *jwtVerifier) key(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("HMAC secret not configured")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.pubKey == nil {
			return nil, errors.New("RSA public key not configured")
		}
		return v.pubKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}

// subject 返回 sub，缺省时退回旧版令牌的 user_id 声明
func (v *jwtVerifier) subject(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.key); err != nil {
		return "", err
	}
	if sub, _ := claims.GetSubject(); sub != "" {
		return sub, nil
	}
	uid, _ := claims["user_id"].(string)
	return uid, nil
}

// bearerToken 取 Authorization 头中的令牌。浏览器无法给 WebSocket
// 升级请求加头，升级请求额外接受 access_token 查询参数。
func bearerToken(r *http.Request) (string, error) {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && tok != "" {
		return tok, nil
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, nil
		}
	}
	return "", errNoBearer
}

// JWTAuth 要求 Bearer 令牌，并把调用方身份写入 context（types.WithUserID）。
// skipPaths 与 CORS 预检不校验。
func JWTAuth(cfg config.JWTConfig, skipPaths []string, logger *zap.Logger) Middleware {
	v := newJWTVerifier(cfg, logger)
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			raw, err := bearerToken(r)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, types.ErrUnauthorized, err.Error())
				return
			}
			sub, err := v.subject(raw)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				writeJSONError(w, http.StatusUnauthorized, types.ErrAuthentication, "invalid or expired token")
				return
			}

			ctx := r.Context()
			if sub != "" {
				ctx = types.WithUserID(ctx, sub)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
