package llm

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
)

// session 管理共享的 HTTP 连接池：首次使用时创建，关闭后再次使用会重建
type session struct {
	opts Options

	mu     sync.RWMutex
	client *http.Client
	closed bool
}

func newSession(opts Options) *session {
	return &session{opts: opts}
}

// acquire 获取可用的 HTTP 客户端
func (s *session) acquire() (*http.Client, error) {
	s.mu.RLock()
	if s.client != nil && !s.closed {
		c := s.client
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// 再次检查防止竞态
	if s.client != nil && !s.closed {
		return s.client, nil
	}

	c, err := s.build()
	if err != nil {
		return nil, err
	}
	s.client = c
	s.closed = false
	return c, nil
}

func (s *session) build() (*http.Client, error) {
	dialer := &net.Dialer{Timeout: s.opts.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: s.opts.ReadTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		ForceAttemptHTTP2:     true,
	}
	if s.opts.ProxyURL != "" {
		proxy, err := url.Parse(s.opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", s.opts.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: transport}, nil
}

// close 释放连接；可重复调用
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && !s.closed {
		s.client.CloseIdleConnections()
	}
	s.closed = true
}

func (s *session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client == nil || s.closed
}
