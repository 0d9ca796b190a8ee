package qr

import (
	"bytes"
	"image/png"
	"testing"
)

func TestPNGRender(t *testing.T) {
	r := NewPNG()
	tests := []struct {
		name    string
		payload string
		size    int
		want    int
		wantErr bool
	}{
		{"explicit size", "https://classroll.example/checkin?code=ABC234", 128, 128, false},
		{"default size", "ABC234", 0, DefaultSize, false},
		{"empty payload", "", 128, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := r.Render(tc.payload, tc.size)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("not a png: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tc.want || b.Dy() != tc.want {
				t.Errorf("bounds = %v, want %dx%d", b, tc.want, tc.want)
			}
		})
	}
	if r.ContentType() != "image/png" {
		t.Errorf("content type = %q", r.ContentType())
	}
}
