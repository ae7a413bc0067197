package vision

import (
	"context"
	"errors"
	"testing"
)

type mockModel struct {
	answer string
	err    error
	calls  int
}

func (m *mockModel) ExtractRaw(_ context.Context, _ []byte, _ string) (string, error) {
	m.calls++
	return m.answer, m.err
}

func TestParseProductsFencedArray(t *testing.T) {
	raw := "Voici les produits :\n```json\n" +
		`[{"titre_legende":"Tondeuse","prix_principal":{"montant":"199","FLC":"€","PrixDetails":"00"}}]` +
		"\n```"
	items := ParseProducts(raw)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0]["titre_legende"] != "Tondeuse" {
		t.Errorf("titre_legende = %v", items[0]["titre_legende"])
	}
}

func TestParseProductsSingleObject(t *testing.T) {
	items := ParseProducts(`{"titre_legende":"Scie"}`)
	if len(items) != 1 || items[0]["titre_legende"] != "Scie" {
		t.Fatalf("items = %v", items)
	}
}

func TestParseProductsGarbage(t *testing.T) {
	if items := ParseProducts("je ne vois aucun produit"); items != nil {
		t.Fatalf("expected nil, got %v", items)
	}
}

func TestParseProductsBracketInString(t *testing.T) {
	raw := `[{"titre_legende":"Kit [promo]","legende":"Marque X"}]`
	items := ParseProducts(raw)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0]["titre_legende"] != "Kit [promo]" {
		t.Errorf("titre_legende = %v", items[0]["titre_legende"])
	}
}

func TestExtractBuildsRecords(t *testing.T) {
	model := &mockModel{answer: `[
		{"titre_legende":"Tondeuse","legende":"GreenCut","prix_principal":{"montant":"199","FLC":"€","PrixDetails":"00"},"reduction":"-10%","categorie":"Jardin","description":"Moteur thermique","public_cible":null},
		{"titre_legende":"Arrosoir","categorie":"Jardin"}
	]`}
	ex := New(model)

	recs, err := ex.Extract(context.Background(), []byte("img"), "catalogue_avril")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	if recs[0].ProductID != "catalogue_avril_0" || recs[1].ProductID != "catalogue_avril_1" {
		t.Errorf("ids = %q, %q", recs[0].ProductID, recs[1].ProductID)
	}
	if recs[0].SourceFile != "catalogue_avril" {
		t.Errorf("SourceFile = %q", recs[0].SourceFile)
	}

	want := "Produit: Tondeuse. Marque: GreenCut. Description: Moteur thermique. Prix: 199€00. Réduction: -10%. Catégorie: Jardin"
	if recs[0].Content != want {
		t.Errorf("Content = %q\nwant      %q", recs[0].Content, want)
	}

	if _, ok := recs[0].Metadata["public_cible"]; ok {
		t.Error("null public_cible should be dropped from metadata")
	}
	if recs[0].Metadata["categorie"] != "Jardin" {
		t.Errorf("categorie = %v", recs[0].Metadata["categorie"])
	}
}

func TestBuildContentAllFields(t *testing.T) {
	item := map[string]any{
		"titre_legende":  "Casque de ski",
		"legende":        "Atomic",
		"description":    "Coque ABS",
		"prix_principal": map[string]any{"montant": "49", "FLC": "€", "PrixDetails": "99"},
		"prix_barre":     map[string]any{"montant": "69", "FLC": "€", "PrixDetails": "00"},
		"reduction":      "-29%",
		"categorie":      "equipement",
		"public_cible":   "enfant",
	}

	want := "Produit: Casque de ski. Marque: Atomic. Description: Coque ABS. " +
		"Prix: 49€99. Ancien prix: 69€00. Réduction: -29%. Catégorie: equipement. Pour: enfant"
	if got := buildContent(item); got != want {
		t.Errorf("buildContent = %q\nwant        %q", got, want)
	}
}

func TestExtractPagesSuffixesIDs(t *testing.T) {
	model := &mockModel{answer: `[{"titre_legende":"Produit"}]`}
	ex := New(model)

	recs, err := ex.ExtractPages(context.Background(), [][]byte{[]byte("a"), []byte("b")}, "doc")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if model.calls != 2 {
		t.Fatalf("model calls = %d, want 2", model.calls)
	}
	if recs[0].ProductID != "doc_p1_0" || recs[1].ProductID != "doc_p2_0" {
		t.Errorf("ids = %q, %q", recs[0].ProductID, recs[1].ProductID)
	}
}

func TestExtractModelError(t *testing.T) {
	wantErr := errors.New("model down")
	ex := New(&mockModel{err: wantErr})
	if _, err := ex.Extract(context.Background(), []byte("img"), "p"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
