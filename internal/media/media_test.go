package media_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/jensholdgaard/sneakerbid/internal/media"
)

type fakeUploader struct {
	names []string
	fail  bool
}

func (f *fakeUploader) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	if f.fail {
		return "", errors.New("quota exceeded")
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.names = append(f.names, name)
	return "https://cdn.example/" + name, nil
}

func multipartFiles(t *testing.T, names ...string) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, n := range names {
		fw, err := w.CreateFormFile("images", n)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte("img"))
	}
	w.Close()

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	return req.MultipartForm.File["images"]
}

func TestUploadFiles(t *testing.T) {
	up := &fakeUploader{}
	files := multipartFiles(t, "left.jpg", "dir/right.png")

	urls, err := media.UploadFiles(context.Background(), up, "a1", files)
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2", len(urls))
	}
	want := []string{"a1_0_left", "a1_1_right"}
	for i, n := range want {
		if up.names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, up.names[i], n)
		}
	}
	if urls[0] != "https://cdn.example/a1_0_left" {
		t.Errorf("urls[0] = %q", urls[0])
	}
}

func TestUploadFiles_Errors(t *testing.T) {
	files := multipartFiles(t, "a.jpg")

	if _, err := media.UploadFiles(context.Background(), &fakeUploader{fail: true}, "a1", files); err == nil {
		t.Error("expected upload error")
	}
	if _, err := media.UploadFiles(context.Background(), media.Disabled{}, "a1", files); !errors.Is(err, media.ErrUnavailable) {
		t.Errorf("Disabled error = %v, want ErrUnavailable", err)
	}
}
