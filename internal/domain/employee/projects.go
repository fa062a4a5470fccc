package employee

import "sort"

// baseColumns are the HR attributes every project stores.
var baseColumns = []Column{
	{Name: "nik", Kind: KindText},
	{Name: "position", Kind: KindText},
	{Name: "department", Kind: KindText},
	{Name: "work_location", Kind: KindText},
	{Name: "phone", Kind: KindText},
	{Name: "email", Kind: KindText},
	{Name: "address", Kind: KindText},
	{Name: "birth_place", Kind: KindText},
	{Name: "birth_date", Kind: KindDate},
	{Name: "gender", Kind: KindText},
	{Name: "religion", Kind: KindText},
	{Name: "marital_status", Kind: KindText},
	{Name: "last_education", Kind: KindText},
	{Name: "npwp", Kind: KindText},
	{Name: "bpjs_kesehatan", Kind: KindText},
	{Name: "bpjs_ketenagakerjaan", Kind: KindText},
	{Name: "bank_name", Kind: KindText},
	{Name: "bank_account_number", Kind: KindText},
	{Name: "join_date", Kind: KindDate},
	{Name: "basic_salary", Kind: KindNumeric},
	{Name: "fixed_allowance", Kind: KindNumeric},
	{Name: "meal_allowance", Kind: KindNumeric},
	{Name: "transport_allowance", Kind: KindNumeric},
}

func withColumns(extra ...Column) []Column {
	out := make([]Column, 0, len(baseColumns)+len(extra))
	out = append(out, baseColumns...)
	return append(out, extra...)
}

func newSchema(slug, displayName string, extra ...Column) Schema {
	return Schema{
		Project:        slug,
		DisplayName:    displayName,
		Table:          "employees_" + slug,
		DocumentKinds:  DefaultDocumentKinds,
		RequiredFields: DefaultRequiredFields,
		Columns:        withColumns(extra...),
	}
}

func regional(slug, displayName string) Schema {
	return newSchema(slug, displayName,
		Column{Name: "regional_unit", Kind: KindText},
		Column{Name: "field_allowance", Kind: KindNumeric},
	)
}

var builtin = map[string]Schema{
	"elnusa": newSchema("elnusa", "Elnusa",
		Column{Name: "wbs_code", Kind: KindText},
		Column{Name: "cost_center", Kind: KindText},
	),
	"regional2": regional("regional2", "Pertamina Regional 2"),
	"regional3": regional("regional3", "Pertamina Regional 3"),
	"regional4": regional("regional4", "Pertamina Regional 4"),
	"regional5": regional("regional5", "Pertamina Regional 5"),
	"umran": newSchema("umran", "Umran",
		Column{Name: "site", Kind: KindText},
		Column{Name: "overtime_rate", Kind: KindNumeric},
	),
}

// KnownProjects lists the built-in project slugs in sorted order.
func KnownProjects() []string {
	out := make([]string, 0, len(builtin))
	for slug := range builtin {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

func LookupProject(slug string) (Schema, bool) {
	schema, ok := builtin[slug]
	return schema, ok
}
