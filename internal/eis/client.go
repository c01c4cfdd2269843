package eis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/david/eis-harvester/internal/files"
)

const (
	tokenHeader = "individualPerson_token"

	// downloadChunk is the streaming buffer size for attachment bodies.
	downloadChunk = 128 * 1024

	// clientTimeout is generous because daily archives can be large.
	clientTimeout = 5 * time.Minute
)

var (
	// ErrTooLarge is returned when an attachment body exceeds the
	// configured size ceiling.
	ErrTooLarge = errors.New("file too large")

	// ErrEmptyBody is returned when a successful response carries zero
	// bytes; an empty attachment is never a valid outcome.
	ErrEmptyBody = errors.New("empty response")
)

// SavedFile describes one attachment written to disk.
type SavedFile struct {
	Path        string
	ContentType string
	Bytes       int64
}

// Client performs all network I/O against the integration service: the SOAP
// POSTs and the token-authenticated archive and attachment GETs.
type Client struct {
	hc       *http.Client
	fs       afero.Fs
	endpoint string
	token    string
	exts     map[string]string
}

func NewClient(endpoint, token string, exts map[string]string, fs afero.Fs) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		hc: &http.Client{
			Timeout:   clientTimeout,
			Transport: transport,
		},
		fs:       fs,
		endpoint: endpoint,
		token:    token,
		exts:     exts,
	}
}

// CheckService performs the startup reachability probe against the service
// XSD. A non-2xx status is fatal to the whole run.
func (c *Client) CheckService(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?xsd=getDocsIP-ws-api.xsd", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("service check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	log.Printf("[XSD] HTTP %d", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("service check: unexpected status code %d", resp.StatusCode)
	}
	return nil
}

// CallSOAP posts one protocol envelope and returns the raw response bytes.
func (c *Client) CallSOAP(ctx context.Context, envelope string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchArchive downloads a full result archive. No size ceiling applies:
// archives are bounded by the service itself and are consumed in memory.
func (c *Client) FetchArchive(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchAttachment streams one attachment to dest, enforcing maxBytes
// (0 = unlimited). A content-disposition filename overrides the suggested
// basename; a missing extension is inferred from the content type as a
// best-effort final rename.
func (c *Client) FetchAttachment(ctx context.Context, url, dest string, maxBytes int64) (SavedFile, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return SavedFile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SavedFile{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	finalPath := dest
	if name := files.FromDisposition(resp.Header.Get("Content-Disposition")); name != "" {
		finalPath = filepath.Join(filepath.Dir(dest), name)
	}

	if err := c.fs.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return SavedFile{}, fmt.Errorf("create directory: %w", err)
	}

	total, err := c.streamBody(resp.Body, finalPath, maxBytes)
	if err != nil {
		return SavedFile{}, fmt.Errorf("%s: %w", url, err)
	}
	if total == 0 {
		return SavedFile{}, fmt.Errorf("%s: %w", url, ErrEmptyBody)
	}

	contentType := resp.Header.Get("Content-Type")
	finalPath = c.inferExtension(finalPath, contentType)

	return SavedFile{Path: finalPath, ContentType: contentType, Bytes: total}, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// streamBody copies body to path in fixed-size chunks. The running total is
// checked before each chunk lands on disk so never more than maxBytes get
// written; the Content-Length header is not trusted. A partial file may
// remain after a ceiling violation.
func (c *Client) streamBody(body io.Reader, path string, maxBytes int64) (int64, error) {
	out, err := c.fs.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	buf := make([]byte, downloadChunk)
	var total int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if maxBytes > 0 && total+int64(n) > maxBytes {
				return total, fmt.Errorf("%w (> %d bytes)", ErrTooLarge, maxBytes)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write file: %w", err)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read body: %w", readErr)
		}
	}
}

// inferExtension renames path when it lacks an extension and the content
// type maps to one. Rename failures are swallowed: the name is cosmetic.
func (c *Client) inferExtension(p, contentType string) string {
	base := filepath.Base(p)
	if path.Ext(base) != "" || contentType == "" {
		return p
	}

	renamed := files.WithExt(base, contentType, c.exts)
	if renamed == base {
		return p
	}

	newPath := filepath.Join(filepath.Dir(p), renamed)
	if exists, _ := afero.Exists(c.fs, newPath); exists {
		if err := c.fs.Remove(newPath); err != nil {
			return p
		}
	}
	if err := c.fs.Rename(p, newPath); err != nil {
		return p
	}
	return newPath
}
