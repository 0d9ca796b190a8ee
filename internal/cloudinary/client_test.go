package cloudinary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	c := New("demo", "key", "abcd", "")
	got := c.sign(map[string]string{
		"timestamp": "1315060510",
		"public_id": "sample_image",
		"api_key":   "key",
		"eager":     "w_400,h_300,c_pad|w_260,h_200,c_crop",
	})
	const want = "bfd09f95f331f558cbd1320e67aa8d488770583e"
	if got != want {
		t.Errorf("sign = %s, want %s", got, want)
	}
}

func TestUploadPNG(t *testing.T) {
	var fields map[string]string
	var fileBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/image/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		fileBody = string(b)
		_ = json.NewEncoder(w).Encode(UploadResult{PublicID: "qr/" + fields["public_id"], SecureURL: "https://res.example/qr.png"})
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "qr")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.UploadPNG(context.Background(), []byte("png-bytes"), "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.SecureURL != "https://res.example/qr.png" {
		t.Errorf("result = %+v", res)
	}
	if fileBody != "png-bytes" {
		t.Errorf("uploaded %q", fileBody)
	}
	if fields["timestamp"] != "1700000000" || fields["folder"] != "qr" || fields["overwrite"] != "true" {
		t.Errorf("fields = %v", fields)
	}
	if fields["signature"] != c.sign(map[string]string{
		"timestamp": "1700000000", "public_id": "session-1", "overwrite": "true", "folder": "qr",
	}) {
		t.Error("signature does not cover the signed params")
	}
}

func TestUploadPNGError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	_, err := c.UploadPNG(context.Background(), []byte("x"), "session-1")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v", err)
	}
}
