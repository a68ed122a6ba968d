// Package donor implements emergency blood donor eligibility: the ABO/Rh
// compatibility lookup and the medical eligibility rules applied to a
// read-only donor dataset.
package donor

import (
	"fmt"

	"github.com/maternal-guard-server/internal/domain"
)

// CompatibilityTable maps a recipient blood group to the donor groups it may
// receive from. The table is declared, not derived, and covers all eight
// groups.
type CompatibilityTable map[domain.BloodGroup][]domain.BloodGroup

// StandardCompatibility returns the ABO/Rh red cell compatibility table.
func StandardCompatibility() CompatibilityTable {
	return CompatibilityTable{
		domain.BloodGroupONeg: {domain.BloodGroupONeg},
		domain.BloodGroupOPos: {domain.BloodGroupOPos, domain.BloodGroupONeg},
		domain.BloodGroupANeg: {domain.BloodGroupANeg, domain.BloodGroupONeg},
		domain.BloodGroupAPos: {
			domain.BloodGroupAPos, domain.BloodGroupANeg,
			domain.BloodGroupOPos, domain.BloodGroupONeg,
		},
		domain.BloodGroupBNeg: {domain.BloodGroupBNeg, domain.BloodGroupONeg},
		domain.BloodGroupBPos: {
			domain.BloodGroupBPos, domain.BloodGroupBNeg,
			domain.BloodGroupOPos, domain.BloodGroupONeg,
		},
		domain.BloodGroupABNeg: {
			domain.BloodGroupABNeg, domain.BloodGroupANeg,
			domain.BloodGroupBNeg, domain.BloodGroupONeg,
		},
		domain.BloodGroupABPos: {
			domain.BloodGroupONeg, domain.BloodGroupOPos,
			domain.BloodGroupANeg, domain.BloodGroupAPos,
			domain.BloodGroupBNeg, domain.BloodGroupBPos,
			domain.BloodGroupABNeg, domain.BloodGroupABPos,
		},
	}
}

// Allowed returns a copy of the donor groups compatible with recipient.
func (t CompatibilityTable) Allowed(recipient domain.BloodGroup) ([]domain.BloodGroup, error) {
	groups, ok := t[recipient]
	if !ok {
		return nil, domain.NewValidationError("blood_group", "no compatibility entry for blood group", string(recipient))
	}
	out := make([]domain.BloodGroup, len(groups))
	copy(out, groups)
	return out, nil
}

// Accepts reports whether recipient may receive blood from donor.
func (t CompatibilityTable) Accepts(recipient, donor domain.BloodGroup) bool {
	for _, g := range t[recipient] {
		if g == donor {
			return true
		}
	}
	return false
}

// Validate checks that every blood group has an entry and that entries only
// name known groups.
func (t CompatibilityTable) Validate() error {
	for _, g := range domain.AllBloodGroups() {
		allowed, ok := t[g]
		if !ok {
			return fmt.Errorf("compatibility table missing recipient %s", g)
		}
		for _, d := range allowed {
			if !d.IsValid() {
				return fmt.Errorf("compatibility table entry %s lists unknown donor group %q", g, d)
			}
		}
	}
	if len(t) != len(domain.AllBloodGroups()) {
		return fmt.Errorf("compatibility table has %d recipients, want %d", len(t), len(domain.AllBloodGroups()))
	}
	return nil
}
