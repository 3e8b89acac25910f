package api

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/jrsteele09/granjas-console/farm"
	"github.com/pkg/errors"
)

// Upload is the file endpoint's answer. Backends differ in which field carries the link.
type Upload struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
}

// Ref returns the reference to store in an evidence record.
func (u *Upload) Ref() string {
	switch {
	case u.URL != "":
		return u.URL
	case u.Filename != "":
		return u.Filename
	default:
		return u.FileURL
	}
}

// Upload sends r as the multipart field "file".
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Upload] create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, errors.Wrap(err, "[Client.Upload] read file")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "[Client.Upload] close form")
	}

	var out Upload
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/files/upload",
		raw:    &buf,
		ctype:  mw.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Ref() == "" {
		return nil, &Error{Kind: KindServer, Message: "upload response without file reference"}
	}
	return &out, nil
}

func (c *Client) CreateEvidence(ctx context.Context, ev farm.Evidence) (*farm.Evidence, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return Create[farm.Evidence](ctx, c, farm.KindEvidence, ev)
}

// AttachEvidence uploads a file and records it as evidence of the given labor or recommendation.
func (c *Client) AttachEvidence(ctx context.Context, ev farm.Evidence, name string, r io.Reader) (*farm.Evidence, error) {
	up, err := c.Upload(ctx, name, r)
	if err != nil {
		return nil, err
	}
	ev.FileURL = up.Ref()
	if ev.Type == "" {
		ev.Type = evidenceType(name)
	}
	return c.CreateEvidence(ctx, ev)
}

func evidenceType(name string) string {
	mt := mime.TypeByExtension(filepath.Ext(name))
	switch {
	case len(mt) >= 6 && mt[:6] == "image/":
		return "imagen"
	case len(mt) >= 6 && mt[:6] == "video/":
		return "video"
	default:
		return "documento"
	}
}

// ExportFilename is the name a spreadsheet export of resource is saved under.
func ExportFilename(resource string) string {
	return resource + "_" + NowTimeFunc().Format("2006-01-02") + ".xlsx"
}

// Export downloads the spreadsheet for resource (e.g. "labores") into w and returns its file name.
func (c *Client) Export(ctx context.Context, resource string, w io.Writer) (string, error) {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: "/export/" + resource + "/excel"})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", &Error{Kind: KindNetwork, Message: "export download interrupted", Err: err}
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		return filepath.Base(params["filename"]), nil
	}
	return ExportFilename(resource), nil
}
