// Package vision detects garments in listing photos and maps the detected
// labels onto the marketplace categories. Detection is a hint only: any
// failure degrades to "no suggestion" in the callers.
package vision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// ErrDisabled is returned when no classifier credentials are configured.
var ErrDisabled = errors.New("classifier disabled")

// Image is either a public URL or raw bytes. URL wins when both are set.
type Image struct {
	URL   string
	Bytes []byte
}

// Box is a normalized bounding box.
type Box struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// Detection is one labelled region.
type Detection struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Classifier detects garments in an image.
type Classifier interface {
	Detect(ctx context.Context, img Image) ([]Detection, error)
}

// Disabled is a Classifier that always returns ErrDisabled.
type Disabled struct{}

// Detect implements Classifier.
func (Disabled) Detect(context.Context, Image) ([]Detection, error) { return nil, ErrDisabled }

var labelCategories = map[string]domain.Category{
	"shirt": domain.CategoryShirt, "t-shirt": domain.CategoryShirt, "blouse": domain.CategoryShirt,
	"top": domain.CategoryShirt, "polo": domain.CategoryShirt,

	"pants": domain.CategoryPants, "jeans": domain.CategoryPants, "trousers": domain.CategoryPants,
	"shorts": domain.CategoryPants, "leggings": domain.CategoryPants,

	"dress": domain.CategoryDress, "gown": domain.CategoryDress, "skirt": domain.CategoryDress,

	"jacket": domain.CategoryJacket, "coat": domain.CategoryJacket, "blazer": domain.CategoryJacket,
	"sweater": domain.CategoryJacket, "hoodie": domain.CategoryJacket, "cardigan": domain.CategoryJacket,

	"shoes": domain.CategoryShoes, "sneakers": domain.CategoryShoes, "boots": domain.CategoryShoes,
	"sandals": domain.CategoryShoes, "heels": domain.CategoryShoes,

	"bag": domain.CategoryAccessories, "purse": domain.CategoryAccessories, "backpack": domain.CategoryAccessories,
	"hat": domain.CategoryAccessories, "cap": domain.CategoryAccessories, "scarf": domain.CategoryAccessories,
	"belt": domain.CategoryAccessories, "tie": domain.CategoryAccessories, "gloves": domain.CategoryAccessories,
	"sunglasses": domain.CategoryAccessories,
}

// MapCategory maps a detector label to a category. Unknown labels map to Accesorios.
func MapCategory(label string) domain.Category {
	if c, ok := labelCategories[strings.ToLower(strings.TrimSpace(label))]; ok {
		return c
	}
	return domain.CategoryAccessories
}

// Suggestion is the category proposed for a photo.
type Suggestion struct {
	Category   domain.Category `json:"category,omitempty"`
	Label      string          `json:"label,omitempty"`
	Confidence float64         `json:"confidence"`
	Accepted   bool            `json:"accepted"`
	Message    string          `json:"message"`
	Detections []Detection     `json:"detections"`
}

// Suggest picks the most confident detection and maps it. The suggestion is
// Accepted only when its confidence reaches threshold; below it, Category is
// left empty.
func Suggest(dets []Detection, threshold float64) Suggestion {
	if len(dets) == 0 {
		return Suggestion{Message: "No se detectaron prendas en la imagen.", Detections: []Detection{}}
	}
	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	top := sorted[0]

	s := Suggestion{Label: top.Name, Confidence: top.Confidence, Detections: dets}
	if top.Confidence >= threshold {
		s.Category = MapCategory(top.Name)
		s.Accepted = true
		s.Message = fmt.Sprintf("Se detectó '%s' con %.1f%% de confianza.", top.Name, top.Confidence*100)
	} else {
		s.Message = fmt.Sprintf("Baja confianza (%.1f%%). Verifica la categoría manualmente.", top.Confidence*100)
	}
	return s
}

// Summary renders the three most confident detections, e.g.
// "Detectado: shirt (98%), jeans (95%)".
func Summary(dets []Detection) string {
	if len(dets) == 0 {
		return ""
	}
	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}
	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", d.Name, d.Confidence*100))
	}
	return "Detectado: " + strings.Join(parts, ", ")
}
