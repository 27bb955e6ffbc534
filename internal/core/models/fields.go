package models

import "fmt"

type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindTags
)

type Field struct {
	Name string
	Kind FieldKind
	// Derived fields are computed from other record data instead of being
	// read from a dump entry under Name.
	Derived bool
}

// Fields is the fixed descriptive field set copied from the product dump.
// The normalizer fills exactly these and the writer upserts exactly these.
var Fields = []Field{
	{Name: "product_name", Kind: KindString},
	{Name: "product_quantity", Kind: KindInt},
	{Name: "product_quantity_unit", Kind: KindString},
	{Name: "categories_tags", Kind: KindTags},
	{Name: "brands", Kind: KindString},
	{Name: "brands_tags", Kind: KindTags},
	{Name: "labels_tags", Kind: KindTags},
	{Name: "image_url", Kind: KindString, Derived: true},
	{Name: "nutriscore_grade", Kind: KindString},
	{Name: "ecoscore_grade", Kind: KindString},
	{Name: "nova_group", Kind: KindInt},
	{Name: "unique_scans_n", Kind: KindInt},
}

func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// ProductFields carries the descriptive values. A nil pointer or nil slice
// means NULL, so an upsert clears values the dump no longer has.
type ProductFields struct {
	ProductName         *string  `json:"product_name"`
	ProductQuantity     *int     `json:"product_quantity"`
	ProductQuantityUnit *string  `json:"product_quantity_unit"`
	CategoriesTags      []string `json:"categories_tags"`
	Brands              *string  `json:"brands"`
	BrandsTags          []string `json:"brands_tags"`
	LabelsTags          []string `json:"labels_tags"`
	ImageURL            *string  `json:"image_url"`
	NutriscoreGrade     *string  `json:"nutriscore_grade"`
	EcoscoreGrade       *string  `json:"ecoscore_grade"`
	NovaGroup           *int     `json:"nova_group"`
	UniqueScansN        *int     `json:"unique_scans_n"`
}

// Value returns the field as a plain value: *string, *int or []string.
func (f *ProductFields) Value(name string) (interface{}, error) {
	switch name {
	case "product_name":
		return f.ProductName, nil
	case "product_quantity":
		return f.ProductQuantity, nil
	case "product_quantity_unit":
		return f.ProductQuantityUnit, nil
	case "categories_tags":
		return f.CategoriesTags, nil
	case "brands":
		return f.Brands, nil
	case "brands_tags":
		return f.BrandsTags, nil
	case "labels_tags":
		return f.LabelsTags, nil
	case "image_url":
		return f.ImageURL, nil
	case "nutriscore_grade":
		return f.NutriscoreGrade, nil
	case "ecoscore_grade":
		return f.EcoscoreGrade, nil
	case "nova_group":
		return f.NovaGroup, nil
	case "unique_scans_n":
		return f.UniqueScansN, nil
	}
	return nil, fmt.Errorf("unknown product field %q", name)
}

// Set assigns a converted value. nil clears the field.
func (f *ProductFields) Set(name string, v interface{}) error {
	switch name {
	case "product_name":
		return setString(&f.ProductName, name, v)
	case "product_quantity":
		return setInt(&f.ProductQuantity, name, v)
	case "product_quantity_unit":
		return setString(&f.ProductQuantityUnit, name, v)
	case "categories_tags":
		return setTags(&f.CategoriesTags, name, v)
	case "brands":
		return setString(&f.Brands, name, v)
	case "brands_tags":
		return setTags(&f.BrandsTags, name, v)
	case "labels_tags":
		return setTags(&f.LabelsTags, name, v)
	case "image_url":
		return setString(&f.ImageURL, name, v)
	case "nutriscore_grade":
		return setString(&f.NutriscoreGrade, name, v)
	case "ecoscore_grade":
		return setString(&f.EcoscoreGrade, name, v)
	case "nova_group":
		return setInt(&f.NovaGroup, name, v)
	case "unique_scans_n":
		return setInt(&f.UniqueScansN, name, v)
	}
	return fmt.Errorf("unknown product field %q", name)
}

func setString(dst **string, name string, v interface{}) error {
	switch val := v.(type) {
	case nil:
		*dst = nil
	case string:
		*dst = &val
	case *string:
		*dst = val
	default:
		return fmt.Errorf("field %s: expected string, got %T", name, v)
	}
	return nil
}

func setInt(dst **int, name string, v interface{}) error {
	switch val := v.(type) {
	case nil:
		*dst = nil
	case int:
		*dst = &val
	case *int:
		*dst = val
	default:
		return fmt.Errorf("field %s: expected int, got %T", name, v)
	}
	return nil
}

func setTags(dst *[]string, name string, v interface{}) error {
	switch val := v.(type) {
	case nil:
		*dst = nil
	case []string:
		*dst = val
	default:
		return fmt.Errorf("field %s: expected []string, got %T", name, v)
	}
	return nil
}
