// Package publish uploads a directory tree to a remote workspace through the
// workspace import endpoint.
package publish

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
)

const (
	importEndpoint = "/api/2.0/workspace/import"
	maxErrorBody   = 4096
)

// Publisher uploads an archived directory to a workspace instance.
type Publisher struct {
	// InstanceURL is the workspace base URL, e.g. https://example.cloud.databricks.com.
	InstanceURL string
	Token       string
	// WorkspacePath is the destination path inside the workspace.
	WorkspacePath string

	// HTTPClient overrides the authenticated client built from Token.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Result describes a completed upload.
type Result struct {
	WorkspacePath string
	Files         int
	ArchiveBytes  int64
}

// PublishError reports a non-200 response from the import endpoint.
type PublishError struct {
	StatusCode int
	Body       string
}

func (e *PublishError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("workspace import failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("workspace import failed with status %d: %s", e.StatusCode, body)
}

// Publish zips dir, skipping .git, and imports it at WorkspacePath with
// overwrite enabled. The archive is written to a temporary file that is always
// removed.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}

	archive, err := os.CreateTemp("", "rollback-publish-*.zip")
	if err != nil {
		return Result{}, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	files, err := writeArchive(archive, dir)
	if err != nil {
		return Result{}, err
	}
	size, err := archive.Seek(0, io.SeekEnd)
	if err != nil {
		return Result{}, fmt.Errorf("size archive: %w", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("rewind archive: %w", err)
	}

	if p.Logger != nil {
		p.Logger.Info("publishing to workspace", "instance", p.InstanceURL, "path", p.WorkspacePath, "files", files, "bytes", size)
	}

	if err := p.upload(ctx, archive); err != nil {
		return Result{}, err
	}

	if p.Logger != nil {
		p.Logger.Info("workspace import complete", "path", p.WorkspacePath)
	}
	return Result{WorkspacePath: p.WorkspacePath, Files: files, ArchiveBytes: size}, nil
}

func (p *Publisher) validate() error {
	switch {
	case strings.TrimSpace(p.InstanceURL) == "":
		return fmt.Errorf("workspace instance url is required")
	case strings.TrimSpace(p.Token) == "" && p.HTTPClient == nil:
		return fmt.Errorf("workspace token is required")
	case strings.TrimSpace(p.WorkspacePath) == "":
		return fmt.Errorf("workspace path is required")
	}
	return nil
}

func (p *Publisher) client(ctx context.Context) *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.Token, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, ts)
}

func (p *Publisher) upload(ctx context.Context, archive io.Reader) error {
	body, contentType := multipartBody(archive, p.WorkspacePath)

	endpoint := strings.TrimRight(p.InstanceURL, "/") + importEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build import request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client(ctx).Do(req)
	if err != nil {
		return fmt.Errorf("workspace import: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &PublishError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// multipartBody streams the form through a pipe so the archive is never held
// in memory.
func multipartBody(archive io.Reader, workspacePath string) (io.Reader, string) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeForm(form, archive, workspacePath)
		if closeErr := form.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	return pr, form.FormDataContentType()
}

func writeForm(form *multipart.Writer, archive io.Reader, workspacePath string) error {
	fields := [][2]string{
		{"path", workspacePath},
		{"format", "SOURCE"},
		{"overwrite", "true"},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("file", "repo.zip")
	if err != nil {
		return err
	}
	_, err = io.Copy(part, archive)
	return err
}

// writeArchive stores every regular file under dir in w using slash-separated
// paths relative to dir. The .git directory is skipped.
func writeArchive(w io.Writer, dir string) (int, error) {
	zw := zip.NewWriter(w)
	files := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		closeErr := src.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		files++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	return files, nil
}
