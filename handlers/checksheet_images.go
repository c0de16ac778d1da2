package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/models"
)

// imagePlaceholderToken marks designer-inserted image slots in raw markup:
// the slot name follows the token in the src attribute.
const imagePlaceholderToken = "__cs_img__"

var (
	imgTagPattern = regexp.MustCompile(`(?i)<img[^>]*>`)
	srcAttrPattern = regexp.MustCompile(`(?i)src\s*=\s*["']([^"']*)["']`)
)

// imagePlaceholder is one <img> occurrence found in template markup.
type imagePlaceholder struct {
	Index    int
	Src      string
	Filename string
}

// filenameFromSrc derives the file name an uploaded image is matched by:
// query string stripped, path basename taken, placeholder token unwrapped.
func filenameFromSrc(src string) string {
	s := src
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, imagePlaceholderToken); i >= 0 {
		return s[i+len(imagePlaceholderToken):]
	}
	if s == "" {
		return ""
	}
	return path.Base(s)
}

// scanImagePlaceholders records every image tag in document order with its
// raw src and derived filename.
func scanImagePlaceholders(markup string) []imagePlaceholder {
	var found []imagePlaceholder
	for i, tag := range imgTagPattern.FindAllString(markup, -1) {
		src := ""
		if m := srcAttrPattern.FindStringSubmatch(tag); m != nil {
			src = m[1]
		}
		found = append(found, imagePlaceholder{
			Index:    i,
			Src:      src,
			Filename: filenameFromSrc(src),
		})
	}
	return found
}

// ImageUpload is one image payload in a publish/update request.
type ImageUpload struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"` // base64
	Position *int   `json:"position,omitempty"`
	Src      string `json:"src,omitempty"`
}

// resolvePosition picks the final position for an upload: the explicit
// position when given, otherwise the upload order; an occupied slot probes
// linearly forward to the next free one.
func resolvePosition(wanted int, taken map[int]bool) int {
	pos := wanted
	for taken[pos] {
		pos++
	}
	taken[pos] = true
	return pos
}

// SaveTemplateImages persists the uploaded images for a template and
// rewrites the markup so every matched placeholder src points at the stored
// image id. A single bad image is logged and skipped; the publish goes on
// with the rest.
func SaveTemplateImages(tx *gorm.DB, template *models.ChecksheetTemplate, uploads []ImageUpload) string {
	placeholders := scanImagePlaceholders(template.HTMLContent)

	// slots already occupied by persisted images count as taken
	taken := make(map[int]bool)
	var existing []models.ChecksheetImage
	if err := tx.Where("template_id = ?", template.ID).Find(&existing).Error; err == nil {
		for _, img := range existing {
			taken[img.PositionIndex] = true
		}
	}
	var saved []models.ChecksheetImage
	for i, up := range uploads {
		wanted := i
		if up.Position != nil {
			wanted = *up.Position
		}
		pos := resolvePosition(wanted, taken)

		src := up.Src
		if src == "" {
			// resolve the originating src by filename against the markup scan
			for _, ph := range placeholders {
				if ph.Filename != "" && ph.Filename == up.Filename {
					src = ph.Src
					break
				}
			}
		}

		img := models.ChecksheetImage{
			ID:            uuid.New(),
			TemplateID:    template.ID,
			Filename:      up.Filename,
			MimeType:      up.MimeType,
			Content:       up.Content,
			ByteSize:      base64.StdEncoding.DecodedLen(len(up.Content)),
			PositionIndex: pos,
			OriginalSrc:   src,
			ElementID:     fmt.Sprintf("cs-img-%s", img8(uuid.New())),
		}
		if err := tx.Create(&img).Error; err != nil {
			log.Printf("Failed to save image %s for template %s, skipping: %v", up.Filename, template.ID, err)
			continue
		}
		saved = append(saved, img)
	}

	// previously persisted images participate in the rewrite too, so
	// markup carried into a forked version resolves its copied images
	return rewriteImageSources(template.HTMLContent, template.ID, append(existing, saved...))
}

func img8(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// imageURL is the reference written into processed markup.
func imageURL(templateID, imageID uuid.UUID) string {
	return fmt.Sprintf("/api/v1/checksheet/templates/%s/images/%s", templateID, imageID)
}

// rewriteImageSources replaces every placeholder or blob style src matching
// a saved image with that image's stored reference. Replacement runs in
// final-position order so later substitutions cannot corrupt earlier ones.
func rewriteImageSources(markup string, templateID uuid.UUID, images []models.ChecksheetImage) string {
	ordered := make([]models.ChecksheetImage, len(images))
	copy(ordered, images)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PositionIndex < ordered[j].PositionIndex
	})

	out := markup
	for _, img := range ordered {
		url := imageURL(templateID, img.ID)
		if img.OriginalSrc != "" {
			out = strings.ReplaceAll(out, `src="`+img.OriginalSrc+`"`, `src="`+url+`"`)
			out = strings.ReplaceAll(out, `src='`+img.OriginalSrc+`'`, `src='`+url+`'`)
			continue
		}
		// no recorded src: rewrite any remaining placeholder matching by filename
		for _, ph := range scanImagePlaceholders(out) {
			if ph.Src != "" && ph.Filename == img.Filename {
				out = strings.ReplaceAll(out, `src="`+ph.Src+`"`, `src="`+url+`"`)
				out = strings.ReplaceAll(out, `src='`+ph.Src+`'`, `src='`+url+`'`)
				break
			}
		}
	}
	return out
}

// GetTemplateImages lists a template's image metadata.
// GET /api/v1/checksheet/templates/{id}/images
func GetTemplateImages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var images []models.ChecksheetImage
	if err := config.DB.Where("template_id = ?", templateID).
		Order("position_index ASC").Find(&images).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(images)
}

// GetTemplateImage streams one image's binary content with cache headers.
// GET /api/v1/checksheet/templates/{id}/images/{imageId}
func GetTemplateImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}
	imageID, err := uuid.Parse(vars["imageId"])
	if err != nil {
		http.Error(w, "invalid image id", http.StatusBadRequest)
		return
	}

	var img models.ChecksheetImage
	if err := config.DB.Where("id = ? AND template_id = ?", imageID, templateID).
		First(&img).Error; err != nil {
		http.Error(w, "image not found", http.StatusNotFound)
		return
	}

	etag := `"` + img.ID.String() + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := base64.StdEncoding.DecodeString(img.Content)
	if err != nil {
		http.Error(w, "stored image is corrupt", http.StatusInternalServerError)
		return
	}

	mime := img.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
