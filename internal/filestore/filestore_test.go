package filestore

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestStoreUploadShardsAndThumbnails(t *testing.T) {
	store := New(t.TempDir())

	path, err := store.StoreUpload(FolderProfilePicture, "Abc-user-id", bytes.NewReader(pngBytes(t, 900, 600)))
	if err != nil {
		t.Fatalf("store upload: %v", err)
	}
	if path != "static/pfp/Abc-user-id.png" {
		t.Fatalf("public path = %q", path)
	}

	disk, err := store.Resolve(FolderProfilePicture, "Abc-user-id.png")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(disk, filepath.Join("pfp", "a")) {
		t.Fatalf("disk path %q not sharded by lowercased first char", disk)
	}

	img, err := imaging.Open(disk)
	if err != nil {
		t.Fatalf("open stored image: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > 400 || b.Dy() > 400 {
		t.Fatalf("thumbnail too large: %dx%d", b.Dx(), b.Dy())
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	for _, name := range []string{"", "../../etc/passwd", ".hidden", `a\b.png`} {
		if _, err := store.Resolve(FolderProfilePicture, name); err == nil {
			t.Fatalf("resolve accepted %q", name)
		}
	}
}

func TestFetchAndStore(t *testing.T) {
	data := pngBytes(t, 100, 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	store := New(t.TempDir())
	path, err := store.FetchAndStore(context.Background(), FolderLogo, "company-1", srv.URL)
	if err != nil {
		t.Fatalf("fetch and store: %v", err)
	}
	if path != "static/logo/company-1.png" {
		t.Fatalf("public path = %q", path)
	}

	disk, err := store.Resolve(FolderLogo, "company-1.png")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := os.Stat(disk); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode(strings.NewReader("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}
