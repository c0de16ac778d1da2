package handlers

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"p9e.in/mfgops/models"
)

func TestFilenameFromSrc(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"plain path", "/static/photos/stamp.png", "stamp.png"},
		{"query string stripped", "/img/logo.jpg?v=3&cache=no", "logo.jpg"},
		{"placeholder token", "blob:__cs_img__diagram.png", "diagram.png"},
		{"bare filename", "seal.gif", "seal.gif"},
		{"empty", "", ""},
		{"token with path prefix", "/uploads/__cs_img__wiring.svg", "wiring.svg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filenameFromSrc(tt.src); got != tt.expected {
				t.Errorf("filenameFromSrc(%q) = %q, expected %q", tt.src, got, tt.expected)
			}
		})
	}
}

func TestScanImagePlaceholders(t *testing.T) {
	markup := `<div><img src="/a/first.png" alt="x"><p>text</p>` +
		`<IMG class="big" SRC='second.jpg?rev=2'/><img alt="no src"></div>`

	found := scanImagePlaceholders(markup)
	if len(found) != 3 {
		t.Fatalf("expected 3 image tags, got %d", len(found))
	}
	if found[0].Index != 0 || found[0].Filename != "first.png" {
		t.Errorf("first placeholder = %+v", found[0])
	}
	if found[1].Index != 1 || found[1].Filename != "second.jpg" || found[1].Src != "second.jpg?rev=2" {
		t.Errorf("second placeholder = %+v", found[1])
	}
	if found[2].Src != "" || found[2].Filename != "" {
		t.Errorf("src-less tag should record empty src, got %+v", found[2])
	}
}

func TestResolvePosition(t *testing.T) {
	taken := map[int]bool{}

	if p := resolvePosition(0, taken); p != 0 {
		t.Errorf("first slot = %d, expected 0", p)
	}
	// same slot requested again probes forward
	if p := resolvePosition(0, taken); p != 1 {
		t.Errorf("collision probe = %d, expected 1", p)
	}
	if p := resolvePosition(5, taken); p != 5 {
		t.Errorf("free explicit slot = %d, expected 5", p)
	}
	taken[6] = true
	if p := resolvePosition(5, taken); p != 7 {
		t.Errorf("probe past run of taken slots = %d, expected 7", p)
	}
}

func TestRewriteImageSources(t *testing.T) {
	templateID := uuid.New()
	imgA := models.ChecksheetImage{ID: uuid.New(), Filename: "a.png", PositionIndex: 0, OriginalSrc: "blob:__cs_img__a.png"}
	imgB := models.ChecksheetImage{ID: uuid.New(), Filename: "b.png", PositionIndex: 1, OriginalSrc: ""}

	markup := `<img src="blob:__cs_img__a.png"><img src="/tmp/b.png">`
	out := rewriteImageSources(markup, templateID, []models.ChecksheetImage{imgB, imgA})

	if strings.Contains(out, "__cs_img__") {
		t.Errorf("placeholder src survived rewrite: %s", out)
	}
	if !strings.Contains(out, imageURL(templateID, imgA.ID)) {
		t.Errorf("image A reference missing from %s", out)
	}
	if !strings.Contains(out, imageURL(templateID, imgB.ID)) {
		t.Errorf("image B (matched by filename) reference missing from %s", out)
	}
	if strings.Contains(out, "/tmp/b.png") {
		t.Errorf("blob-style src for B survived rewrite: %s", out)
	}
}

func TestRewriteImageSourcesNoMatches(t *testing.T) {
	templateID := uuid.New()
	img := models.ChecksheetImage{ID: uuid.New(), Filename: "missing.png", PositionIndex: 0}
	markup := `<p>no images here</p>`
	if out := rewriteImageSources(markup, templateID, []models.ChecksheetImage{img}); out != markup {
		t.Errorf("markup without matching srcs must be untouched, got %s", out)
	}
}
