package models

import "fmt"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleShopkeeper Role = "shopkeeper"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleShopkeeper:
		return Role(s), nil
	case "":
		return RoleShopkeeper, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Capability int

const (
	CapReadOwn Capability = iota
	CapReadAll
	CapWriteAll
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin:      {CapReadOwn, CapReadAll, CapWriteAll},
	RoleShopkeeper: {CapReadOwn},
}

func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// Identity is the verified caller of a core operation.
type Identity struct {
	UserID int64
	Role   Role
}

func (id Identity) CanSee(ownerID int64) bool {
	return id.Role.Can(CapReadAll) || (id.Role.Can(CapReadOwn) && ownerID == id.UserID)
}

func (id Identity) CanModify(ownerID int64) bool {
	return id.Role.Can(CapWriteAll) || (id.Role.Can(CapReadOwn) && ownerID == id.UserID)
}

// Scope returns the listing filter for this caller: all owners for readers
// of everything, otherwise only the caller's own items.
func (id Identity) Scope() StockFilter {
	if id.Role.Can(CapReadAll) {
		return StockFilter{}
	}
	owner := id.UserID
	return StockFilter{OwnerID: &owner}
}
