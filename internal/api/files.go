package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"os"
	"path/filepath"

	"github.com/bhtools/podbulk/internal/http"
	"github.com/bhtools/podbulk/internal/models"
)

// UploadProgress wraps each file's reader so callers can render progress.
type UploadProgress interface {
	Track(name string, size int64, r io.Reader) io.Reader
}

// UploadFiles uploads local files in one multipart request under the
// "files" field. The body is streamed, so large selections are not held in
// memory. Uploads are never retried.
func (c *Client) UploadFiles(ctx context.Context, paths []string, progress UploadProgress) (*models.UploadResponse, error) {
	const op, path = "upload", "/api/upload"

	if len(paths) == 0 {
		return nil, errors.New("no files to upload")
	}

	sizes := make([]int64, len(paths))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		sizes[i] = info.Size()
	}

	if err := c.limits.Wait(ctx, path); err != nil {
		return nil, &TransportError{Op: op, Kind: http.ClassifyError(err), Err: fmt.Errorf("rate limiter cancelled: %w", err)}
	}
	c.track(path)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeParts(mw, paths, sizes, progress)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, nethttp.MethodPost, path, "", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.rawClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &TransportError{Op: op, Kind: http.ClassifyError(err), Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	var out models.UploadResponse
	if err := decodeResponse(op, resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeParts(mw *multipart.Writer, paths []string, sizes []int64, progress UploadProgress) error {
	for i, p := range paths {
		if err := writePart(mw, p, sizes[i], progress); err != nil {
			return err
		}
	}
	return nil
}

func writePart(mw *multipart.Writer, path string, size int64, progress UploadProgress) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	part, err := mw.CreateFormFile("files", name)
	if err != nil {
		return fmt.Errorf("failed to create form part for %s: %w", name, err)
	}

	var r io.Reader = f
	if progress != nil {
		r = progress.Track(name, size, f)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to stream %s: %w", name, err)
	}
	return nil
}

// DeleteFile removes one uploaded asset from the service. A refusal is
// returned as *RemoteError carrying the service's text verbatim.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	const op = "delete file"

	var out models.DeleteResponse
	body := map[string]string{"filename": name}
	if err := c.call(ctx, op, nethttp.MethodPost, "/api/delete_file", "", body, &out); err != nil {
		return err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "delete failed"
		}
		return &RemoteError{Op: op, Status: nethttp.StatusOK, Message: msg}
	}
	return nil
}
