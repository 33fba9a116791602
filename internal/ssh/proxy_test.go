package ssh

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startConnectProxy runs a minimal HTTP CONNECT proxy. When user is set it
// requires matching basic credentials.
func startConnectProxy(t *testing.T, user, password string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				req, err := http.ReadRequest(bufio.NewReader(c))
				if err != nil || req.Method != http.MethodConnect {
					io.WriteString(c, "HTTP/1.1 400 Bad Request\r\n\r\n")
					return
				}
				if user != "" && req.Header.Get("Proxy-Authorization") != want {
					io.WriteString(c, "HTTP/1.1 407 Proxy Authentication Required\r\n\r\n")
					return
				}
				upstream, err := net.Dial("tcp", req.Host)
				if err != nil {
					io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
					return
				}
				defer upstream.Close()
				io.WriteString(c, "HTTP/1.1 200 Connection established\r\n\r\n")
				bidirectionalCopy(c, upstream)
			}(c)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestConnectThroughHTTPProxy(t *testing.T) {
	srv := newServer(t)
	proxyPort := startConnectProxy(t, "proxyuser", "proxypass")

	opts := passwordOptions(srv)
	opts.Proxy = Proxy{Host: "127.0.0.1", Port: proxyPort, Username: "proxyuser", Password: "proxypass"}
	tr := connect(t, opts)

	res, err := tr.RunCommand(context.Background(), commandOptions("echo via proxy", 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "via proxy\n", res.Stdout)
}

func TestConnectProxyRejectsCredentials(t *testing.T) {
	srv := newServer(t)
	proxyPort := startConnectProxy(t, "proxyuser", "proxypass")

	opts := passwordOptions(srv)
	opts.Proxy = Proxy{Host: "127.0.0.1", Port: proxyPort, Username: "proxyuser", Password: "wrong"}
	_, err := Connect(context.Background(), opts, quietLogger())

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.Contains(t, err.Error(), "407")
}

func TestConnectInvalidProxyType(t *testing.T) {
	srv := newServer(t)
	opts := passwordOptions(srv)
	opts.Proxy = Proxy{Type: "ftp", Host: "127.0.0.1"}

	_, err := Connect(context.Background(), opts, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown proxy type")
}
