// Package backend is a client for the case-management system of record. The
// intake core never touches its database; everything goes through this REST
// surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kanzlei-labs/intake-service/internal/model"
)

// Client exposes the backend operations used after a successful intake.
type Client interface {
	CreateAkte(ctx context.Context, record model.ValidatedRecord) (*Akte, error)
	CreateTicket(ctx context.Context, ticket model.ReviewTicket) (*Ticket, error)
	UploadDocument(ctx context.Context, akteID int64, att model.Attachment) (*Document, error)
}

// Akte is the created case file reference.
type Akte struct {
	ID           int64  `json:"id"`
	Aktenzeichen string `json:"aktenzeichen"`
}

// Ticket is the created review ticket reference.
type Ticket struct {
	ID int64 `json:"id"`
}

// Document is an uploaded document reference.
type Document struct {
	ID int64 `json:"id"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a backend API client.
func NewClient(baseURL, token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateAkte(ctx context.Context, record model.ValidatedRecord) (*Akte, error) {
	var akte Akte
	if err := c.postJSON(ctx, "/api/akten/", record, &akte); err != nil {
		return nil, eris.Wrap(err, "backend: create akte")
	}
	return &akte, nil
}

func (c *httpClient) CreateTicket(ctx context.Context, ticket model.ReviewTicket) (*Ticket, error) {
	var created Ticket
	if err := c.postJSON(ctx, "/api/tickets/", ticket, &created); err != nil {
		return nil, eris.Wrap(err, "backend: create ticket")
	}
	return &created, nil
}

func (c *httpClient) UploadDocument(ctx context.Context, akteID int64, att model.Attachment) (*Document, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", att.Filename)
	if err != nil {
		return nil, eris.Wrap(err, "backend: create form file")
	}
	if _, err := part.Write(att.Data); err != nil {
		return nil, eris.Wrap(err, "backend: write form file")
	}
	if err := writer.WriteField("akte", strconv.FormatInt(akteID, 10)); err != nil {
		return nil, eris.Wrap(err, "backend: write akte field")
	}
	if err := writer.WriteField("typ", string(att.Kind)); err != nil {
		return nil, eris.Wrap(err, "backend: write typ field")
	}
	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "backend: close form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/dokumente/", &body)
	if err != nil {
		return nil, eris.Wrap(err, "backend: create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	var doc Document
	if err := c.do(req, &doc); err != nil {
		return nil, eris.Wrap(err, "backend: upload document")
	}
	return &doc, nil
}

func (c *httpClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}
