package domain

import "github.com/google/uuid"

// Axiomatic items exist in every store with fixed UUIDs. They are created by
// the store itself and never written to the log.
var (
	// AxiomaticUser stamps the axiomatic items.
	AxiomaticUser = axiom("00000000")

	AttrName              = axiom("00000001")
	AttrCategory          = axiom("00000002")
	AttrItemsInCategory   = axiom("00000003")
	AttrInverseAttribute  = axiom("00000004")
	AttrMatchingAttribute = axiom("00000005")
	AttrMatchingValue     = axiom("00000006")

	CategoryCategory  = axiom("00000101")
	CategoryAttribute = axiom("00000102")
	CategoryQuery     = axiom("00000103")
	CategoryUser      = axiom("00000104")
)

func axiom(prefix string) uuid.UUID {
	return uuid.MustParse(prefix + "-0000-1000-8000-00a0c9000000")
}

// AxiomaticItems lists every axiomatic item in creation order.
func AxiomaticItems() []uuid.UUID {
	return []uuid.UUID{
		AxiomaticUser,
		AttrName, AttrCategory, AttrItemsInCategory, AttrInverseAttribute,
		AttrMatchingAttribute, AttrMatchingValue,
		CategoryCategory, CategoryAttribute, CategoryQuery, CategoryUser,
	}
}

// IsAxiomatic reports whether id names an axiomatic item.
func IsAxiomatic(id uuid.UUID) bool {
	for _, a := range AxiomaticItems() {
		if a == id {
			return true
		}
	}
	return false
}
