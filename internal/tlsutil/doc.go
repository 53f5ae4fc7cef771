// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 tlsutil 集中管理 consultflow 的 TLS 参数：最低 TLS 1.2，
只允许 AEAD 套件，曲线限定 X25519 与 P-256。

  - ServerTLSConfig：HTTPS 服务端，ALPN 协商 h2 与 http/1.1。
  - SecureTransport / SecureHTTPClient：调用 LLM 服务的出站连接。
  - DefaultTLSConfig：Redis 等其他客户端共用的基础配置。
*/
package tlsutil
