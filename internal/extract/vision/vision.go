// Package vision turns catalog page images into product records via a
// multimodal model. The model is prompted to answer with a JSON array of
// products; parsing is lenient because models wrap JSON in prose or
// markdown fences more often than not.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gutlabs/catalograg/internal/domain"
)

// ExtractionPrompt instructs the model to describe every product on a
// catalog page as structured JSON. The catalog corpus is French, so the
// extraction keys are too.
const ExtractionPrompt = `Tu analyses une page de catalogue produits. ` +
	`Identifie chaque produit visible et réponds UNIQUEMENT avec un tableau JSON. ` +
	`Chaque élément doit contenir les clés : ` +
	`"titre_legende" (nom du produit), ` +
	`"legende" (marque ou sous-titre), ` +
	`"prix_principal" (objet {"montant", "FLC", "PrixDetails"}), ` +
	`"prix_barre" (ancien prix, même structure, ou null), ` +
	`"reduction" (ex "-20%", ou null), ` +
	`"categorie" (rayon ou famille de produits), ` +
	`"public_cible" (ou null), ` +
	`"description" (caractéristiques visibles). ` +
	`N'invente aucun produit. Tableau vide [] si la page n'en contient pas.`

// rawExtractor produces the model's raw textual answer for one image.
type rawExtractor interface {
	ExtractRaw(ctx context.Context, image []byte, instruction string) (string, error)
}

// Extractor converts page images into product records.
type Extractor struct {
	model rawExtractor
}

func New(model rawExtractor) *Extractor {
	return &Extractor{model: model}
}

// Extract analyzes one page image. pageID seeds the product IDs
// ("{pageID}_0", "{pageID}_1", ...) and is recorded as the source file.
func (e *Extractor) Extract(ctx context.Context, image []byte, pageID string) ([]domain.ProductRecord, error) {
	if e.model == nil {
		return nil, domain.ErrNotInitialized
	}
	raw, err := e.model.ExtractRaw(ctx, image, ExtractionPrompt)
	if err != nil {
		return nil, err
	}
	return buildRecords(ParseProducts(raw), pageID), nil
}

// ExtractPages analyzes a sequence of page images, suffixing each page's
// IDs with "_p{n}" so records from different pages never collide.
func (e *Extractor) ExtractPages(ctx context.Context, pages [][]byte, docID string) ([]domain.ProductRecord, error) {
	var all []domain.ProductRecord
	for n, img := range pages {
		recs, err := e.Extract(ctx, img, fmt.Sprintf("%s_p%d", docID, n+1))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n+1, err)
		}
		all = append(all, recs...)
	}
	return all, nil
}

// ParseProducts pulls product objects out of a model answer. It first
// scans for the outermost JSON array, falls back to decoding the whole
// answer, and yields nothing when neither works.
func ParseProducts(raw string) []map[string]any {
	var items []map[string]any
	if arr := firstJSONArray(raw); arr != "" {
		if err := json.Unmarshal([]byte(arr), &items); err == nil {
			return items
		}
	}
	var single map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &single); err == nil && len(single) > 0 {
		return []map[string]any{single}
	}
	return nil
}

// firstJSONArray returns the first balanced top-level [...] in s,
// ignoring brackets inside JSON strings.
func firstJSONArray(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// buildRecords normalizes parsed objects into product records.
func buildRecords(items []map[string]any, pageID string) []domain.ProductRecord {
	records := make([]domain.ProductRecord, 0, len(items))
	for i, item := range items {
		metadata := map[string]any{}
		for _, key := range []string{
			"titre_legende", "legende", "prix_principal", "prix_barre",
			"reduction", "categorie", "public_cible", "image_path",
		} {
			if v, ok := item[key]; ok && v != nil {
				metadata[key] = v
			}
		}
		records = append(records, domain.ProductRecord{
			ProductID:  fmt.Sprintf("%s_%d", pageID, i),
			SourceFile: pageID,
			Content:    buildContent(item),
			Metadata:   metadata,
		})
	}
	return records
}

// buildContent flattens an extracted product into one searchable line,
// fields in a fixed order joined with ". ".
func buildContent(item map[string]any) string {
	parts := make([]string, 0, 8)
	add := func(label, key string) {
		if v := asString(item[key]); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Produit", "titre_legende")
	add("Marque", "legende")
	add("Description", "description")
	if p := priceString(item["prix_principal"]); p != "" {
		parts = append(parts, "Prix: "+p)
	}
	if p := priceString(item["prix_barre"]); p != "" {
		parts = append(parts, "Ancien prix: "+p)
	}
	add("Réduction", "reduction")
	add("Catégorie", "categorie")
	add("Pour", "public_cible")
	return strings.Join(parts, ". ")
}

// priceString renders a structured price as "49€99".
func priceString(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case map[string]any:
		whole := asString(p["montant"])
		if whole == "" {
			return ""
		}
		return whole + asString(p["FLC"]) + asString(p["PrixDetails"])
	default:
		return ""
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", s), "0"), ".")
	default:
		return ""
	}
}
