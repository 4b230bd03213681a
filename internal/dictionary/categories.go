package dictionary

import "github.com/tinoosan/marketbooks/internal/books"

// CategoryDef describes one curated company category.
type CategoryDef struct {
	Code  books.Category `json:"code"`
	Label string         `json:"label"`
}

var companyCategories = []CategoryDef{
	{Code: books.CategorySupplier, Label: "Supplier"},
	{Code: books.CategoryServiceCompany, Label: "Service Company"},
	{Code: books.CategoryCustomer, Label: "Customer"},
}

// ExpenseCategories are the curated general-expense categories offered by
// the expense form; free-text values are still accepted.
var ExpenseCategories = []string{
	"rent",
	"salaries",
	"transport",
	"customs",
	"utilities",
	"repairs",
	"other",
}

// CompanyCategories returns the curated company categories.
func CompanyCategories() []CategoryDef {
	out := make([]CategoryDef, len(companyCategories))
	copy(out, companyCategories)
	return out
}

// IsExpenseCategory reports whether c is a known operating expense category.
func IsExpenseCategory(c string) bool {
	for _, e := range ExpenseCategories {
		if e == c {
			return true
		}
	}
	return false
}

// IsCompanyCategory reports whether c is one of the curated categories.
func IsCompanyCategory(c books.Category) bool {
	for _, d := range companyCategories {
		if d.Code == c {
			return true
		}
	}
	return false
}
