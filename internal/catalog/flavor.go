package catalog

import (
	"fmt"
	"strings"
)

// Flavor identifies which open-data project a product was sourced from.
type Flavor string

const (
	FlavorOFF    Flavor = "off"
	FlavorOBF    Flavor = "obf"
	FlavorOPFF   Flavor = "opff"
	FlavorOPF    Flavor = "opf"
	FlavorOFFPro Flavor = "off_pro"
)

type flavorInfo struct {
	domain string
	// dump file name under https://static.<domain>/data/, empty when the
	// project publishes no public export
	dump string
}

var flavors = map[Flavor]flavorInfo{
	FlavorOFF:    {domain: "openfoodfacts.org", dump: "openfoodfacts-products.jsonl.gz"},
	FlavorOBF:    {domain: "openbeautyfacts.org", dump: "openbeautyfacts-products.jsonl.gz"},
	FlavorOPFF:   {domain: "openpetfoodfacts.org", dump: "openpetfoodfacts-products.jsonl.gz"},
	FlavorOPF:    {domain: "openproductsfacts.org", dump: "openproductsfacts-products.jsonl.gz"},
	FlavorOFFPro: {domain: "pro.openfoodfacts.org"},
}

func Flavors() []Flavor {
	return []Flavor{FlavorOFF, FlavorOBF, FlavorOPFF, FlavorOPF, FlavorOFFPro}
}

func ParseFlavor(s string) (Flavor, error) {
	f := Flavor(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := flavors[f]; !ok {
		return "", fmt.Errorf("unknown flavor %q", s)
	}
	return f, nil
}

func (f Flavor) String() string { return string(f) }

// DatasetURL is the public JSONL dump location, or "" if there is none.
func (f Flavor) DatasetURL() string {
	info, ok := flavors[f]
	if !ok || info.dump == "" {
		return ""
	}
	return fmt.Sprintf("https://static.%s/data/%s", info.domain, info.dump)
}

// ImageBaseURL is the canonical image host of the flavor.
func (f Flavor) ImageBaseURL() string {
	return "https://images." + flavors[f].domain
}

// APIBaseURL is the world product API host of the flavor.
func (f Flavor) APIBaseURL() string {
	return "https://world." + flavors[f].domain
}
