package pdfinfo

import "testing"

func TestPageCountImagesAreSinglePage(t *testing.T) {
	inspector := New()
	for _, name := range []string{"scan.png", "photo.JPG", "chart.tiff"} {
		pages, err := inspector.PageCount([]byte{0x89, 0x50}, name)
		if err != nil {
			t.Fatalf("PageCount(%s) error = %v", name, err)
		}
		if pages != 1 {
			t.Fatalf("PageCount(%s) = %d, want 1", name, pages)
		}
	}
}

func TestPageCountRejectsGarbagePDF(t *testing.T) {
	inspector := New()
	if _, err := inspector.PageCount([]byte("not a pdf at all"), "broken.pdf"); err == nil {
		t.Fatalf("expected parse error for garbage pdf")
	}
}
