// Package assetstore uploads property imagery to a Pinata-compatible
// content-addressed pinning service.
package assetstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/ipfs/go-cid"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Upload failure reasons.
const (
	ReasonNetwork  = "network"
	ReasonAuth     = "auth"
	ReasonSize     = "size"
	ReasonRejected = "rejected"
)

// UploadError reports a failed upload. No retry is attempted internally;
// the caller decides.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("asset upload failed (%s): %v", e.Reason, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Client uploads binary payloads and returns their content reference.
type Client struct {
	endpoint   string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	logger     cmtlog.Logger
}

func NewClient(endpoint, apiKey, secretKey string, logger cmtlog.Logger) *Client {
	return &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Upload pins data and returns its content-address reference. The reference
// is verified to be a well-formed CID before being handed back.
func (c *Client) Upload(ctx context.Context, data []byte, mimeHint string) (string, error) {
	if len(data) == 0 {
		return "", &UploadError{Reason: ReasonRejected, Err: fmt.Errorf("empty payload")}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreatePart(fileHeader(mimeHint))
	if err != nil {
		return "", &UploadError{Reason: ReasonRejected, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &UploadError{Reason: ReasonRejected, Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &UploadError{Reason: ReasonRejected, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", &UploadError{Reason: ReasonRejected, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Reason: ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", &UploadError{Reason: ReasonAuth, Err: err}
		case http.StatusRequestEntityTooLarge:
			return "", &UploadError{Reason: ReasonSize, Err: err}
		default:
			return "", &UploadError{Reason: ReasonRejected, Err: err}
		}
	}

	var pin pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return "", &UploadError{Reason: ReasonRejected, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if _, err := cid.Decode(pin.IpfsHash); err != nil {
		return "", &UploadError{Reason: ReasonRejected, Err: fmt.Errorf("invalid content reference %q: %w", pin.IpfsHash, err)}
	}

	c.logger.Info("Asset pinned", "ref", pin.IpfsHash, "bytes", len(data))
	return pin.IpfsHash, nil
}

func fileHeader(mimeHint string) textproto.MIMEHeader {
	filename := "property"
	if exts, err := mime.ExtensionsByType(mimeHint); err == nil && len(exts) > 0 {
		filename += exts[0]
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if mimeHint != "" {
		header.Set("Content-Type", mimeHint)
	}
	return header
}
