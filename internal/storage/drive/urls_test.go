package drive

import "testing"

func TestPublicURLIsReproducible(t *testing.T) {
	a := PublicURL("file-123")
	b := PublicURL("file-123")
	if a != b {
		t.Fatalf("derivation is not pure: %q vs %q", a, b)
	}
	if a != "https://drive.google.com/uc?export=view&id=file-123" {
		t.Fatalf("unexpected url: %s", a)
	}
}

func TestThumbnailURL(t *testing.T) {
	got := ThumbnailURL("file-123")
	if got != "https://drive.google.com/thumbnail?id=file-123&sz=w400" {
		t.Fatalf("unexpected url: %s", got)
	}
}
