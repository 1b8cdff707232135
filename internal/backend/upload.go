package backend

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// Upload sends r as the multipart field "file" and returns the stored file URL.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", nil, pr, mw.FormDataContentType())
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &resp); err != nil {
		_ = pr.Close()
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("upload %s: empty url in response", filename)
	}
	return resp.URL, nil
}
