package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"slices"
	"time"
)

// aeadSuites TLS 1.2 下允许的套件，均为 AEAD。TLS 1.3 套件不可配置。
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// DefaultTLSConfig 客户端侧加固配置：TLS 1.2 起步，仅 AEAD 套件。
// 每次返回新副本，调用方可以自由修改。
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:       tls.VersionTLS12,
		CipherSuites:     slices.Clone(aeadSuites),
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
	}
}

// ServerTLSConfig HTTPS 监听器配置，同时协商 h2 与 http/1.1
func ServerTLSConfig() *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.NextProtos = []string{"h2", "http/1.1"}
	return cfg
}

// 模型服务调用集中在单一主机上，放宽每主机空闲连接数
const llmIdleConnsPerHost = 16

// SecureTransport 出站 HTTP 传输层：加固 TLS、遵循代理环境变量。
// 不设置 ResponseHeaderTimeout，流式补全首包可能较慢。
func SecureTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       DefaultTLSConfig(),
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   llmIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// SecureHTTPClient 供 LLM Provider 使用的 HTTP 客户端，timeout 为 0 表示不限
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: SecureTransport()}
}
