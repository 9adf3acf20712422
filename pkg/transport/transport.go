// Package transport builds the HTTP clients used to reach package registries
// and terminology servers: timeouts, trusted certificates, client
// certificates, basic authentication, proxies and retries.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http/httpproxy"

	"github.com/gofhir/igpack/pkg/logger"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 5 * time.Minute
)

// Proxy configures an outbound HTTP proxy.
type Proxy struct {
	URL      string
	Username string
	Password string
	// NoProxy lists hosts, domains (".example.org") and CIDRs reached directly.
	NoProxy []string
}

// Options configures NewClient. A zero Options yields a pooled client with
// default timeouts.
type Options struct {
	// TrustedCertificates is a PEM file with CA certificates added to the
	// system pool.
	TrustedCertificates string

	ClientCertificate            string
	ClientCertificateKey         string
	ClientCertificateKeyPassword string

	Username string
	Password string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	Proxy Proxy

	// Retries on connection errors and 5xx responses.
	Retries int

	UserAgent string
}

// Validate checks options that can be judged without touching the network
// or the file system.
func (o Options) Validate() error {
	if (o.Username == "") != (o.Password == "") {
		return fmt.Errorf("username and password must be set together")
	}
	if (o.ClientCertificate == "") != (o.ClientCertificateKey == "") {
		return fmt.Errorf("client certificate and key must be set together")
	}
	if o.ClientCertificateKeyPassword != "" && o.ClientCertificateKey == "" {
		return fmt.Errorf("client certificate key password set without key")
	}
	if (o.Proxy.Username == "") != (o.Proxy.Password == "") {
		return fmt.Errorf("proxy username and password must be set together")
	}
	if o.Proxy.URL != "" {
		u, err := url.Parse(o.Proxy.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid proxy url %q", o.Proxy.URL)
		}
	}
	if o.ConnectTimeout < 0 || o.ReadTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if o.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}

// NewClient builds an http.Client from opts.
func NewClient(opts Options) (*http.Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}
	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	tlsConfig, err := tlsConfig(opts)
	if err != nil {
		return nil, err
	}

	t := cleanhttp.DefaultPooledTransport()
	t.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = connectTimeout
	t.ResponseHeaderTimeout = readTimeout
	t.TLSClientConfig = tlsConfig
	if opts.Proxy.URL != "" {
		proxy, err := proxyFunc(opts.Proxy)
		if err != nil {
			return nil, err
		}
		t.Proxy = proxy
	}

	var rt http.RoundTripper = t
	if opts.Username != "" || opts.UserAgent != "" {
		rt = &headerRoundTripper{next: t, username: opts.Username, password: opts.Password, userAgent: opts.UserAgent}
	}

	if opts.Retries == 0 {
		return &http.Client{Transport: rt}, nil
	}

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = &http.Client{Transport: rt}
	retrying.RetryMax = opts.Retries
	retrying.Logger = leveledLogger{}
	return retrying.StandardClient(), nil
}

func tlsConfig(opts Options) (*tls.Config, error) {
	config := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.TrustedCertificates != "" {
		data, err := os.ReadFile(opts.TrustedCertificates)
		if err != nil {
			return nil, fmt.Errorf("failed to read trusted certificates: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in %s", opts.TrustedCertificates)
		}
		config.RootCAs = pool
	}

	if opts.ClientCertificate != "" {
		certificate, err := clientCertificate(opts.ClientCertificate, opts.ClientCertificateKey, opts.ClientCertificateKeyPassword)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{certificate}
	}
	return config, nil
}

func clientCertificate(certFile, keyFile, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client certificate key: %w", err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("no PEM data in %s", keyFile)
	}
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		return tls.Certificate{}, fmt.Errorf("encrypted PKCS#8 key %s is not supported, decrypt it first", keyFile)
	}
	//nolint:staticcheck // legacy encrypted PEM keys are still issued by some CAs
	if x509.IsEncryptedPEMBlock(block) {
		if password == "" {
			return tls.Certificate{}, fmt.Errorf("client certificate key %s is encrypted, password required", keyFile)
		}
		//nolint:staticcheck
		der, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to decrypt client certificate key: %w", err)
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
	}

	certificate, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client certificate: %w", err)
	}
	return certificate, nil
}

func proxyFunc(p Proxy) (func(*http.Request) (*url.URL, error), error) {
	proxyURL, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", p.URL, err)
	}
	if p.Username != "" {
		proxyURL.User = url.UserPassword(p.Username, p.Password)
	}

	config := &httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    strings.Join(p.NoProxy, ","),
	}
	resolve := config.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return resolve(req.URL)
	}, nil
}

type headerRoundTripper struct {
	next      http.RoundTripper
	username  string
	password  string
	userAgent string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if h.username != "" {
		req.SetBasicAuth(h.username, h.password)
	}
	if h.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	return h.next.RoundTrip(req)
}

// leveledLogger routes retry diagnostics to the package logger.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	logger.Error("%s %v", msg, keysAndValues)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("%s %v", msg, keysAndValues)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	logger.Debug("%s %v", msg, keysAndValues)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	logger.Warn("%s %v", msg, keysAndValues)
}
