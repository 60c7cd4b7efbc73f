// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package zotero

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// uploadAuth is the server's answer to an upload authorization request.
// Exists is set when the server already holds identical content.
type uploadAuth struct {
	Exists      int    `json:"exists"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Prefix      string `json:"prefix"`
	Suffix      string `json:"suffix"`
	UploadKey   string `json:"uploadKey"`
}

// UploadAttachment stores the PDF at path as an imported-file attachment of
// parentKey. It registers the attachment item, asks for upload
// authorization, posts the bytes to the storage URL, and registers the
// upload. Transient failures of each step are retried; a full storage quota
// or an invalid parent is reported as ErrLibraryWrite.
func (c *Client) UploadAttachment(ctx context.Context, parentKey, path, filename string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", types.ErrLibraryWrite, path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", types.ErrLibraryWrite, path, err)
	}
	sum := md5.Sum(content)

	attKey, err := c.createOne(ctx, map[string]any{
		"itemType":    "attachment",
		"parentItem":  parentKey,
		"linkMode":    "imported_file",
		"title":       filename,
		"contentType": "application/pdf",
		"filename":    filename,
		"tags":        []any{},
		"relations":   map[string]any{},
	})
	if err != nil {
		return err
	}

	auth, err := c.authorizeUpload(ctx, attKey, hex.EncodeToString(sum[:]), filename,
		int64(len(content)), info.ModTime().UnixMilli())
	if err != nil {
		return err
	}
	if auth.Exists == 1 {
		return nil
	}

	if err := c.uploadContent(ctx, auth, content); err != nil {
		return err
	}
	return c.registerUpload(ctx, attKey, auth.UploadKey)
}

func (c *Client) fileURL(itemKey string) string {
	return c.libraryURL("/items/"+url.PathEscape(itemKey)+"/file", nil)
}

func (c *Client) authorizeUpload(ctx context.Context, itemKey, md5sum, filename string, size, mtime int64) (uploadAuth, error) {
	form := url.Values{}
	form.Set("md5", md5sum)
	form.Set("filename", filename)
	form.Set("filesize", strconv.FormatInt(size, 10))
	form.Set("mtime", strconv.FormatInt(mtime, 10))

	header := http.Header{}
	header.Set("If-None-Match", "*")
	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		url:         c.fileURL(itemKey),
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		header:      header,
	})
	if err != nil {
		if httputil.StatusCode(err) == http.StatusRequestEntityTooLarge {
			return uploadAuth{}, fmt.Errorf("%w: storage quota exceeded uploading %s: %w", types.ErrLibraryWrite, filename, err)
		}
		return uploadAuth{}, fmt.Errorf("%w: authorizing upload of %s: %w", types.ErrLibraryWrite, filename, err)
	}

	var auth uploadAuth
	if err := decodeJSON(resp, &auth); err != nil {
		return uploadAuth{}, fmt.Errorf("%w: authorizing upload of %s: %w", types.ErrLibraryWrite, filename, err)
	}
	if auth.Exists != 1 && (auth.URL == "" || auth.UploadKey == "") {
		return uploadAuth{}, fmt.Errorf("%w: upload authorization for %s is missing url or uploadKey", types.ErrLibraryWrite, filename)
	}
	return auth, nil
}

// uploadContent posts prefix + file + suffix to the storage URL. The storage
// host takes no Zotero headers.
func (c *Client) uploadContent(ctx context.Context, auth uploadAuth, content []byte) error {
	var body bytes.Buffer
	body.Grow(len(auth.Prefix) + len(content) + len(auth.Suffix))
	body.WriteString(auth.Prefix)
	body.Write(content)
	body.WriteString(auth.Suffix)

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		url:         auth.URL,
		body:        body.Bytes(),
		contentType: auth.ContentType,
		external:    true,
	})
	if err != nil {
		return fmt.Errorf("%w: uploading file content: %w", types.ErrLibraryWrite, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) registerUpload(ctx context.Context, itemKey, uploadKey string) error {
	header := http.Header{}
	header.Set("If-None-Match", "*")
	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		url:         c.fileURL(itemKey),
		body:        []byte("upload=" + url.QueryEscape(uploadKey)),
		contentType: "application/x-www-form-urlencoded",
		header:      header,
	})
	if err != nil {
		return fmt.Errorf("%w: registering upload: %w", types.ErrLibraryWrite, err)
	}
	resp.Body.Close()
	return nil
}
