package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleClient        Role = "CLIENT"
	RoleAdmin         Role = "ADMIN"
	RoleModerator     Role = "MODERATOR"
	RoleFoundationRep Role = "FOUNDATION_REP"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAdmin, RoleModerator, RoleFoundationRep:
		return true
	}
	return false
}

// Category is the closed set of garment categories.
type Category string

const (
	CategoryShirt       Category = "Camiseta"
	CategoryPants       Category = "Pantalón"
	CategoryDress       Category = "Vestido"
	CategoryJacket      Category = "Chaqueta"
	CategoryShoes       Category = "Zapatos"
	CategoryAccessories Category = "Accesorios"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryShirt, CategoryPants, CategoryDress,
	CategoryJacket, CategoryShoes, CategoryAccessories,
}

// Size is a garment size.
type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes lists every size from smallest to largest.
var Sizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}

// Condition describes the wear of a garment.
type Condition string

const (
	ConditionNew       Condition = "Nuevo"
	ConditionExcellent Condition = "Excelente"
	ConditionGood      Condition = "Bueno"
	ConditionUsed      Condition = "Usado"
)

// Conditions lists every condition from best to worst.
var Conditions = []Condition{ConditionNew, ConditionExcellent, ConditionGood, ConditionUsed}

// ListingStatus is the availability of a listing.
type ListingStatus string

const (
	ListingAvailable   ListingStatus = "AVAILABLE"
	ListingReserved    ListingStatus = "RESERVED"
	ListingTransferred ListingStatus = "TRANSFERRED"
	ListingRemoved     ListingStatus = "REMOVED"
)

// TxType tags the kind of a transaction.
type TxType string

const (
	TxExchange TxType = "EXCHANGE"
	TxSale     TxType = "SALE"
	TxDonation TxType = "DONATION"
)

// TxTypes lists the seeded transaction types with their descriptions.
var TxTypes = []TransactionType{
	{Code: TxExchange, Description: "Intercambio de prendas entre usuarios"},
	{Code: TxSale, Description: "Venta de una prenda a otro usuario"},
	{Code: TxDonation, Description: "Donación de una prenda a una fundación"},
}

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxPending    TxStatus = "PENDIENTE"
	TxReserved   TxStatus = "RESERVADA"
	TxInProgress TxStatus = "EN_PROCESO"
	TxCompleted  TxStatus = "COMPLETADA"
	TxRejected   TxStatus = "RECHAZADA"
	TxCancelled  TxStatus = "CANCELADA"
	TxDisputed   TxStatus = "EN_DISPUTA"

	// TxAccepted is accepted on input as a synonym of TxReserved.
	TxAccepted TxStatus = "ACEPTADA"
)

// OpenStatuses are the non-terminal states. A listing referenced by a
// transaction in one of these states is considered busy.
var OpenStatuses = []TxStatus{TxPending, TxReserved, TxInProgress, TxDisputed}

// Terminal reports whether no further transition is possible from s.
func (s TxStatus) Terminal() bool {
	switch s {
	case TxCompleted, TxRejected, TxCancelled:
		return true
	}
	return false
}

// ParseTxStatus normalizes a status filter, mapping ACEPTADA to RESERVADA.
func ParseTxStatus(s string) (TxStatus, bool) {
	st := TxStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st == TxAccepted {
		return TxReserved, true
	}
	switch st {
	case TxPending, TxReserved, TxInProgress, TxCompleted, TxRejected, TxCancelled, TxDisputed:
		return st, true
	}
	return "", false
}

// AchievementCode identifies an achievement definition.
type AchievementCode string

const (
	AchievementDonor      AchievementCode = "DONOR"
	AchievementSuperUser  AchievementCode = "SUPERUSER"
	AchievementExchanger  AchievementCode = "EXCHANGER"
	AchievementEcoWarrior AchievementCode = "ECO_WARRIOR"
)

// AchievementCatalog is the static set of badges seeded at startup.
var AchievementCatalog = []Achievement{
	{Code: AchievementDonor, Name: "Donador", Description: "Completaste tu primera donación", Icon: "hand-heart", Threshold: 1},
	{Code: AchievementSuperUser, Name: "Súper usuario", Description: "Publicaste 10 prendas", Icon: "star", Threshold: 10},
	{Code: AchievementExchanger, Name: "Intercambiador", Description: "Completaste 5 intercambios", Icon: "repeat", Threshold: 5},
	{Code: AchievementEcoWarrior, Name: "Eco guerrero", Description: "Tus prendas evitaron 1000 kg de CO2", Icon: "leaf", Threshold: 1000},
}

// ParseCategory matches s against the category set ignoring case and
// accents, so "pantalon" and "PANTALÓN" both resolve to CategoryPants.
func ParseCategory(s string) (Category, bool) {
	k := foldKey(s)
	for _, c := range Categories {
		if foldKey(string(c)) == k {
			return c, true
		}
	}
	return "", false
}

// ParseSize matches s against the size set ignoring case.
func ParseSize(s string) (Size, bool) {
	k := strings.ToUpper(strings.TrimSpace(s))
	for _, v := range Sizes {
		if string(v) == k {
			return v, true
		}
	}
	return "", false
}

// ParseCondition matches s against the condition set ignoring case and accents.
func ParseCondition(s string) (Condition, bool) {
	k := foldKey(s)
	for _, c := range Conditions {
		if foldKey(string(c)) == k {
			return c, true
		}
	}
	return "", false
}

// foldKey lowercases s and strips combining marks. A new transformer is
// built per call because transform chains carry state.
func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
