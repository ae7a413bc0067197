// Package html extracts product records from catalog product pages.
package html

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gutlabs/catalograg/internal/domain"
)

// Selectors for the catalog page layout. A page without the product
// container is not a product page and parses to nil.
const (
	selContainer     = ".WeldomProd24Detaille"
	selTitle         = ".titreLegende span"
	selLegend        = ".legende"
	selTitleP        = "p.titreLegende"
	selDetails       = ".plusP"
	selImage         = ".Packshot-Principal"
	selPriceMain     = ".PrixPrincipal"
	selPriceCrossed  = ".PrixBarre"
	selPriceUnit     = ".FLC"
	selPriceSubt     = ".PrixDetails"
	selPriceDiscount = ".PrixReduc"
)

// ParseProduct extracts the product from one HTML page. filename becomes
// the source_file and seeds the product ID. Returns nil when the page
// has no product container.
func ParseProduct(content, filename string) (*domain.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	container := doc.Find(selContainer).First()
	if container.Length() == 0 {
		return nil, nil
	}

	title := cleanText(container.Find(selTitle).First().Text())
	description := legendDescription(container.Find(selLegend).First())
	details := cleanText(container.Find(selDetails).First().Text())
	imagePath := backgroundImageURL(container.Find(selImage).First())

	metadata := map[string]any{
		"titre_legende": title,
		"description":   description,
		"plusP":         details,
		"image_path":    imagePath,
	}

	main := parsePriceBlock(container.Find(selPriceMain).First())
	if main != nil {
		metadata["prix_principal"] = main
	}
	if crossed := parsePriceBlock(container.Find(selPriceCrossed).First()); crossed != nil {
		metadata["prix_barre"] = crossed
	}
	if discount := cleanText(container.Find(selPriceDiscount).First().Text()); discount != "" {
		metadata["reduction"] = discount
	}

	return &domain.ProductRecord{
		ProductID:  ProductIDFromFilename(filename),
		SourceFile: filename,
		Content:    buildContent(title, description, details, priceText(main)),
		Metadata:   metadata,
	}, nil
}

// legendDescription takes the paragraph following the title inside the
// legend block; the title paragraph itself repeats the product name.
func legendDescription(legend *goquery.Selection) string {
	titleP := legend.Find(selTitleP).First()
	if titleP.Length() == 0 {
		return ""
	}
	return cleanText(titleP.NextAllFiltered("p").First().Text())
}

// styleURLRe pulls the image URL out of an inline
// background-image: url('...') declaration.
var styleURLRe = regexp.MustCompile(`url\('([^']+)'\)`)

func backgroundImageURL(sel *goquery.Selection) string {
	style, ok := sel.Attr("style")
	if !ok {
		return ""
	}
	m := styleURLRe.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return m[1]
}

// ProductIDFromFilename derives a stable product ID from the page
// filename, e.g. "fiche-123.html" -> "fiche-123".
func ProductIDFromFilename(filename string) string {
	base := filepath.Base(filename)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "unknown"
	}
	return base
}

// parsePriceBlock reads a price element with its FLC unit marker and
// PrixDetails cents, e.g. "49" + "€" + "99" -> "49€99".
func parsePriceBlock(sel *goquery.Selection) map[string]any {
	if sel.Length() == 0 {
		return nil
	}

	unit := cleanText(sel.Find(selPriceUnit).First().Text())
	cents := cleanText(sel.Find(selPriceSubt).First().Text())

	// Whole part is the element's own text, excluding child elements.
	var mb strings.Builder
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			mb.WriteString(c.Text())
		}
	})
	whole := cleanText(mb.String())
	if whole == "" && unit == "" && cents == "" {
		return nil
	}

	block := map[string]any{"montant": whole}
	if unit != "" {
		block["FLC"] = unit
	}
	if cents != "" {
		block["PrixDetails"] = cents
	}
	return block
}

// buildContent synthesizes the searchable description for embedding.
func buildContent(title, description, details, price string) string {
	parts := make([]string, 0, 4)
	if title != "" {
		parts = append(parts, "Produit: "+title)
	}
	if description != "" {
		parts = append(parts, description)
	}
	if details != "" {
		parts = append(parts, "Description textuelle : "+details)
	}
	if price != "" {
		parts = append(parts, "Prix: "+price)
	}
	return strings.Join(parts, ". ")
}

// priceText renders a parsed price block as "49€99".
func priceText(block map[string]any) string {
	if block == nil {
		return ""
	}
	whole, _ := block["montant"].(string)
	unit, _ := block["FLC"].(string)
	cents, _ := block["PrixDetails"].(string)
	return whole + unit + cents
}

// cleanText collapses whitespace and non-breaking spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
