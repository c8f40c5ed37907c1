package rehab

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the canonical role enumeration. Older documents spell the buddy
// role several ways; ParseRole folds them onto RoleBuddy.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RoleBuddy   Role = "buddy"
	RolePatient Role = "patient"
)

var roleAliases = map[string]Role{
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"receptionist":  RoleAdmin,
	"doctor":        RoleDoctor,
	"physician":     RoleDoctor,
	"nurse":         RoleNurse,
	"buddy":         RoleBuddy,
	"medicalbuddy":  RoleBuddy,
	"patient":       RolePatient,
}

// ParseRole normalizes a role string. Case, spaces, dashes and underscores
// are ignored, so "Medical Buddy", "medicalBuddy" and "medical-buddy" all
// resolve to RoleBuddy.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(s)
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	if r, ok := roleAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleBuddy, RolePatient:
		return true
	}
	return false
}

// UnmarshalJSON normalizes legacy spellings on read. Unknown values are kept
// verbatim so a single bad document does not break a whole load.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if parsed, err := ParseRole(s); err == nil {
		*r = parsed
		return nil
	}
	*r = Role(s)
	return nil
}

// Tier ranks buddies by experience: Bronze < Silver < Gold.
type Tier string

const (
	TierBronze Tier = "Bronze"
	TierSilver Tier = "Silver"
	TierGold   Tier = "Gold"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierBronze, TierSilver, TierGold}

// Rank orders tiers; unknown tiers rank below Bronze.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	}
	return 0
}

// ParseTier accepts any capitalization of a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}
