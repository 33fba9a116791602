package ssh

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// dial opens the TCP connection to addr, through the proxy when one is
// configured.
func dial(ctx context.Context, addr string, p Proxy, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	if p.Host == "" {
		return d.DialContext(ctx, "tcp", addr)
	}

	port := p.Port
	if port == 0 {
		port = DefaultProxyPort
	}
	proxyAddr := net.JoinHostPort(p.Host, strconv.Itoa(port))

	switch p.Type {
	case ProxySOCKS5:
		return dialSOCKS5(ctx, d, proxyAddr, addr, p)
	default:
		return dialHTTPConnect(ctx, d, proxyAddr, addr, p)
	}
}

func dialSOCKS5(ctx context.Context, d *net.Dialer, proxyAddr, addr string, p Proxy) (net.Conn, error) {
	var auth *proxy.Auth
	if p.Username != "" {
		auth = &proxy.Auth{User: p.Username, Password: p.Password}
	}
	socks, err := proxy.SOCKS5("tcp", proxyAddr, auth, d)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", proxyAddr, err)
	}
	if cd, ok := socks.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return socks.Dial("tcp", addr)
}

// dialHTTPConnect tunnels through an HTTP proxy with the CONNECT method.
func dialHTTPConnect(ctx context.Context, d *net.Dialer, proxyAddr, addr string, p Proxy) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("http proxy %s: %w", proxyAddr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if d.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(d.Timeout))
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if p.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(p.Username + ":" + p.Password))
		req.Header.Set("Proxy-Authorization", "Basic "+creds)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http proxy %s: write CONNECT: %w", proxyAddr, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("http proxy %s: read CONNECT response: %w", proxyAddr, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("http proxy %s: CONNECT %s: %s", proxyAddr, addr, resp.Status)
	}

	conn.SetDeadline(time.Time{})
	return &bufferedConn{Conn: conn, r: br}, nil
}

// bufferedConn keeps bytes the proxy response reader already pulled off
// the wire, such as the start of the server banner.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
