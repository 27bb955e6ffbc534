package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

// imageResolution is the size suffix of the stored main image.
const imageResolution = "400"

// SplitBarcode returns the folder path of a product on the image host:
// leading zeros stripped, padded to 13 digits and cut as 3/3/3/rest.
func SplitBarcode(code string) (string, error) {
	if !ValidCode(code) {
		return "", fmt.Errorf("unknown barcode format: %q", code)
	}
	code = strings.TrimLeft(code, "0")
	if len(code) < 13 {
		code = strings.Repeat("0", 13-len(code)) + code
	}
	return strings.Join([]string{code[0:3], code[3:6], code[6:9], code[9:]}, "/"), nil
}

// MainImageURL picks front_<lang>, else the first front_* key, and builds its
// URL on the flavor's image host. It returns "" when no usable front image
// exists.
func MainImageURL(flavor Flavor, code, lang string, images Images) string {
	entry, ok := images.Lookup("front_" + lang)
	if !ok || !usableImage(entry) {
		ok = false
		for _, e := range images {
			if strings.HasPrefix(e.Key, "front_") && usableImage(e) {
				entry, ok = e, true
				break
			}
		}
	}
	if !ok {
		return ""
	}

	path, err := SplitBarcode(code)
	if err != nil {
		return ""
	}
	imageID := fmt.Sprintf("%s.%s.%s", entry.Key, entry.Rev, imageResolution)
	return fmt.Sprintf("%s/images/products/%s/%s.jpg", flavor.ImageBaseURL(), path, imageID)
}

// usableImage rejects entries without a revision and keys or revisions
// carrying control characters, which cannot be stored in a URL column.
func usableImage(e ImageEntry) bool {
	if e.Rev == "" {
		return false
	}
	return !strings.ContainsFunc(e.Key, unicode.IsControl) && !strings.ContainsFunc(e.Rev, unicode.IsControl)
}

// ValidCode reports whether code is a non-empty string of ASCII digits.
func ValidCode(code string) bool {
	return code != "" && isDigits(code)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
