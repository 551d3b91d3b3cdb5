// Package filestore keeps uploaded profile pictures and company logos on
// local disk as 400x400 thumbnails, sharded by the first character of the
// owner's ID.
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// Folder namespaces stored images by what they depict.
type Folder string

const (
	FolderProfilePicture Folder = "pfp"
	FolderLogo           Folder = "logo"
)

const (
	thumbnailWidth  = 400
	thumbnailHeight = 400

	// maxImageBytes caps uploads and fetched avatars.
	maxImageBytes = 16 << 20
)

// Store writes and serves public images under a root directory.
type Store struct {
	root       string
	httpClient *http.Client
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{
		root:       dir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// shard returns the directory shard for an owner ID.
func shard(ownerID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("empty owner id")
	}
	return strings.ToLower(ownerID[:1]), nil
}

var formatExtensions = map[imaging.Format]string{
	imaging.JPEG: "jpg",
	imaging.PNG:  "png",
	imaging.GIF:  "gif",
	imaging.TIFF: "tiff",
	imaging.BMP:  "bmp",
}

// Decode parses image bytes and identifies their format.
func Decode(r io.Reader) (image.Image, imaging.Format, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read image: %w", err)
	}
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return nil, 0, fmt.Errorf("unsupported image format %q", name)
	}
	return img, format, nil
}

// Store thumbnails img and writes it under the folder's shard for ownerID.
// It returns the public path the client uses to fetch the image.
func (s *Store) Store(folder Folder, ownerID string, img image.Image, format imaging.Format) (string, error) {
	sh, err := shard(ownerID)
	if err != nil {
		return "", err
	}
	ext, ok := formatExtensions[format]
	if !ok {
		return "", fmt.Errorf("unsupported image format")
	}

	dir := filepath.Join(s.root, string(folder), sh)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailWidth, thumbnailHeight, imaging.Lanczos)

	name := fmt.Sprintf("%s.%s", ownerID, ext)
	if err := imaging.Save(thumb, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return fmt.Sprintf("static/%s/%s", folder, name), nil
}

// StoreUpload decodes and stores an uploaded image.
func (s *Store) StoreUpload(folder Folder, ownerID string, r io.Reader) (string, error) {
	img, format, err := Decode(r)
	if err != nil {
		return "", err
	}
	return s.Store(folder, ownerID, img, format)
}

// FetchAndStore downloads an image, e.g. a provider avatar, and stores it.
func (s *Store) FetchAndStore(ctx context.Context, folder Folder, ownerID, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	return s.StoreUpload(folder, ownerID, resp.Body)
}

// Resolve maps a public image name back to its on-disk path. The shard is
// derived from the name, so the client-facing URL stays flat.
func (s *Store) Resolve(folder Folder, name string) (string, error) {
	// Reject traversal; names are "<owner-id>.<ext>".
	if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	sh, err := shard(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, string(folder), sh, name), nil
}
