package client

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const DefaultRequestTimeout = 90 * time.Second

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode > 199 && r.StatusCode < 300
}

type ManagerConfig struct {
	BaseURL  string
	Username string
	Password string

	// InsecureSkipVerify disables TLS certificate checks. Internal deployments of the
	// manager commonly run with self-signed certificates.
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// ManagerClient talks to the replication manager REST API. Every request is independent:
// connections are closed after each call.
type ManagerClient struct {
	client *resty.Client
	log    logrus.FieldLogger
}

func NewManagerClient(cfg ManagerConfig, log logrus.FieldLogger) *ManagerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetBasicAuth(cfg.Username, cfg.Password).
		SetTimeout(timeout).
		SetCloseConnection(true).
		SetHeader("Accept", "application/json")
	if cfg.InsecureSkipVerify {
		c.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	c.SetLogger(log)
	return &ManagerClient{
		client: c,
		log:    log,
	}
}

// HTTPClient exposes the underlying client, e.g. for transport interception in tests.
func (m *ManagerClient) HTTPClient() *resty.Client {
	return m.client
}

func (m *ManagerClient) Get(ctx context.Context, endpoint string) (*Response, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		Get(endpoint)
	return m.record("GET", endpoint, resp, err)
}

func (m *ManagerClient) Patch(ctx context.Context, endpoint string, payload any) (*Response, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Patch(endpoint)
	return m.record("PATCH", endpoint, resp, err)
}

func (m *ManagerClient) record(method, endpoint string, resp *resty.Response, err error) (*Response, error) {
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"method":   method,
			"endpoint": endpoint,
		}).Warnf("%s %s -> transport error: %v", method, endpoint, err)
		return nil, err
	}
	r := &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}
	m.log.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"http":     r.StatusCode,
		"elapsed":  resp.Time().String(),
	}).Debugf("%s %s -> HTTP %d\n%s", method, endpoint, r.StatusCode, string(r.Body))
	return r, nil
}
