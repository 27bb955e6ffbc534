package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"openprices_sync/internal/core/models"
)

// RawRecord is one undecoded dump entry. Values are decoded lazily so the
// large parts of a product (nutriments, ingredients) are never parsed.
type RawRecord map[string]json.RawMessage

// ImageEntry is a single key of a product's "images" object.
type ImageEntry struct {
	Key string
	Rev string
}

// Images keeps the dump order of the "images" object, which decides which
// front image wins when the product language has none.
type Images []ImageEntry

func (im Images) Lookup(key string) (ImageEntry, bool) {
	for _, e := range im {
		if e.Key == key {
			return e, true
		}
	}
	return ImageEntry{}, false
}

func (im *Images) UnmarshalJSON(data []byte) error {
	*im = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("images: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var value struct {
			Rev json.Number `json:"rev"`
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		// entries that are not objects or carry an odd rev are just unusable
		if err := json.Unmarshal(raw, &value); err != nil {
			value.Rev = ""
		}
		*im = append(*im, ImageEntry{Key: key, Rev: value.Rev.String()})
	}
	_, err = dec.Token()
	return err
}

// Record is a normalized dump entry ready for reconciliation.
type Record struct {
	Code           string
	LastModifiedAt time.Time
	Lang           string
	Images         Images
	models.ProductFields
}

// Product builds the row to upsert for this record.
func (r *Record) Product(flavor Flavor, syncedAt time.Time) models.Product {
	source := string(flavor)
	synced := syncedAt
	return models.Product{
		Code:             r.Code,
		Source:           &source,
		SourceLastSynced: &synced,
		ProductFields:    r.ProductFields,
	}
}
