package net

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Endpoint paths of the swarm protocol. Peers expose these under their
// domain; see the service package for the inbound side.
const (
	infoPath         = "/swarm/info"
	announcePath     = "/swarm/announce"
	gossipPath       = "/swarm/gossip"
	interactionsPath = "/swarm/interactions/"
	profilesPath     = "/api/profiles/"
)

// maxResponseBytes caps how much of a peer's response body we are willing to
// read. A misbehaving peer must not be able to balloon our memory.
const maxResponseBytes = 4 << 20

// HTTPTransport implements Transport over HTTPS. The zero scheme is https;
// tests against local listeners can set Scheme to http.
type HTTPTransport struct {
	Scheme string

	client *http.Client
	logger *logrus.Entry
}

// NewHTTPTransport creates an HTTP transport. Per-call deadlines come from
// the context, so the underlying client carries no timeout of its own.
func NewHTTPTransport(logger *logrus.Entry) *HTTPTransport {
	return &HTTPTransport{
		Scheme: "https",
		client: &http.Client{},
		logger: logger,
	}
}

// FetchNodeInfo implements Transport.
func (t *HTTPTransport) FetchNodeInfo(ctx context.Context, domain string) (*NodeInfo, error) {
	var info NodeInfo
	if err := t.get(ctx, domain, infoPath, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Announce implements Transport.
func (t *HTTPTransport) Announce(ctx context.Context, domain string, announcement *Announcement) (*NodeInfo, error) {
	var info NodeInfo
	if err := t.post(ctx, domain, announcePath, announcement, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Gossip implements Transport.
func (t *HTTPTransport) Gossip(ctx context.Context, domain string, envelope *SignedEnvelope) (*GossipResponse, error) {
	var response GossipResponse
	if err := t.post(ctx, domain, gossipPath, envelope, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// DeliverInteraction implements Transport.
func (t *HTTPTransport) DeliverInteraction(ctx context.Context, domain string, payload *InteractionPayload) error {
	path := interactionsPath + string(payload.Kind)
	return t.post(ctx, domain, path, payload, nil)
}

// FetchProfile implements Transport.
func (t *HTTPTransport) FetchProfile(ctx context.Context, handle, domain string) (*Profile, error) {
	var profile Profile
	if err := t.get(ctx, domain, profilesPath+url.PathEscape(handle), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) endpoint(domain, path string) string {
	return fmt.Sprintf("%s://%s%s", t.Scheme, domain, path)
}

func (t *HTTPTransport) get(ctx context.Context, domain, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint(domain, path), nil)
	if err != nil {
		return err
	}
	return t.do(req, out)
}

func (t *HTTPTransport) post(ctx context.Context, domain, path string, body, out interface{}) error {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	enc := codec.NewEncoder(buf, jh)
	if err := enc.Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(domain, path), buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req, out)
}

func (t *HTTPTransport) do(req *http.Request, out interface{}) error {
	t.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	}).Debug("swarm http call")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the error message, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes), jh)
	return dec.Decode(out)
}
