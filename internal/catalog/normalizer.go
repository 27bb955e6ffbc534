package catalog

import (
	"encoding/json"
	"errors"
	"time"

	"openprices_sync/internal/catalog/converters"
	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/logger"
)

// MaxProductQuantity is the first quantity treated as a data-entry error.
// Larger values overflow the integer column. The limit ignores the unit.
const MaxProductQuantity = 100_000

const defaultLang = "en"

var kindConverters = map[models.FieldKind]converters.ValueConverter{
	models.KindString: converters.StringConverter,
	models.KindInt:    converters.IntConverter,
	models.KindTags:   converters.TagsConverter,
}

// Normalizer turns raw dump entries into Records for one sync run. It owns
// the run's seen-codes set, so a new Normalizer is needed per run.
type Normalizer struct {
	flavor     Flavor
	startOfDay time.Time
	seen       *CodeSet
	log        logger.Logger
}

func NewNormalizer(flavor Flavor, runStart time.Time, log logger.Logger) *Normalizer {
	return &Normalizer{
		flavor:     flavor,
		startOfDay: StartOfDay(runStart),
		seen:       NewCodeSet(1 << 16),
		log:        log,
	}
}

// StartOfDay is midnight UTC of the day t falls on in UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Seen returns the number of distinct valid codes met so far.
func (n *Normalizer) Seen() int { return n.seen.Len() }

// Normalize applies the skip rules in order and extracts the descriptive
// fields. Every error it returns is a *SkipError.
func (n *Normalizer) Normalize(raw RawRecord) (*Record, error) {
	code, ok := readCode(raw)
	if !ok {
		return nil, skip(code, SkipInvalidCode, nil)
	}

	if !n.seen.AddIfAbsent(code) {
		return nil, skip(code, SkipDuplicate, nil)
	}

	modified, err := converters.EpochConverter(raw["last_modified_t"])
	if err != nil {
		return nil, skip(code, SkipNoTimestamp, err)
	}
	if modified == nil {
		return nil, skip(code, SkipNoTimestamp, nil)
	}
	lastModified := time.Unix(modified.(int64), 0).UTC()
	// The dump is produced some time during the day, so anything modified
	// today may still change before the next dump.
	if !lastModified.Before(n.startOfDay) {
		return nil, skip(code, SkipModifiedToday, nil)
	}

	rec := &Record{
		Code:           code,
		LastModifiedAt: lastModified,
		Lang:           readLang(raw),
	}
	if imagesRaw, ok := raw["images"]; ok {
		if err := json.Unmarshal(imagesRaw, &rec.Images); err != nil {
			n.log.Debug("product %s: ignoring images: %v", code, err)
			rec.Images = nil
		}
	}

	if err := ExtractFields(raw, &rec.ProductFields, n.log); err != nil {
		return nil, skip(code, SkipMalformed, err)
	}
	if url := MainImageURL(n.flavor, code, rec.Lang, rec.Images); url != "" {
		rec.ImageURL = &url
	}
	return rec, nil
}

// ExtractFields copies every non-derived descriptive field from raw into
// dst. Missing or unconvertible values become NULL.
func ExtractFields(raw RawRecord, dst *models.ProductFields, log logger.Logger) error {
	for _, field := range models.Fields {
		var value interface{}
		if !field.Derived {
			if rawValue, ok := raw[field.Name]; ok {
				converted, err := kindConverters[field.Kind](rawValue)
				if err != nil {
					log.Debug("field %s: %v", field.Name, err)
				} else {
					value = converted
				}
			}
		}
		if err := dst.Set(field.Name, value); err != nil {
			return err
		}
	}

	if dst.ProductQuantity != nil && *dst.ProductQuantity >= MaxProductQuantity {
		dst.ProductQuantity = nil
	}
	// the table rejects negative counts and groups
	for _, v := range []**int{&dst.ProductQuantity, &dst.NovaGroup, &dst.UniqueScansN} {
		if *v != nil && **v < 0 {
			*v = nil
		}
	}
	return nil
}

func readCode(raw RawRecord) (string, bool) {
	value, ok := raw["code"]
	if !ok {
		return "", false
	}
	var code string
	if err := json.Unmarshal(value, &code); err != nil {
		return string(value), false
	}
	if !ValidCode(code) {
		return code, false
	}
	return code, true
}

// readLang falls back from "lang" to "lc" to English; non-OFF products
// often lack the language field.
func readLang(raw RawRecord) string {
	for _, key := range []string{"lang", "lc"} {
		var lang string
		if value, ok := raw[key]; ok && json.Unmarshal(value, &lang) == nil && lang != "" {
			return lang
		}
	}
	return defaultLang
}

// IsSkip reports whether err is a record-level skip and returns it.
func IsSkip(err error) (*SkipError, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
