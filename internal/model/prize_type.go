package model

// Prize types are numeric and extensible.  The column is a tinyint, so
// values range 0-255.  Physical vs virtual is classified by range rather
// than by an explicit flag:
//
//  1        physical prize
//  2        virtual prize
//  3        "thanks for participating" (may carry no content at all)
//  100-199  fallback prize types (coupon, points, membership, ...)
//  200-255  custom types, treated as virtual
const (
	PrizeTypePhysical   = 1
	PrizeTypeVirtual    = 2
	PrizeTypeThanks     = 3
	PrizeTypeCoupon     = 100
	PrizeTypePoints     = 101
	PrizeTypeMembership = 102
)

// IsVirtualType reports whether the given type is delivered virtually.
func IsVirtualType(t int) bool {
	return t == PrizeTypeVirtual || t == PrizeTypeThanks || (t >= 100 && t <= 255)
}

// IsPhysicalType reports whether the given type requires shipping a real
// item.
func IsPhysicalType(t int) bool {
	return !IsVirtualType(t)
}

// IsThanksType reports whether the given type is the empty consolation
// outcome.
func IsThanksType(t int) bool {
	return t == PrizeTypeThanks
}
