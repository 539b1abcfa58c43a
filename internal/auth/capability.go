package auth

// Capability names one permission a route can require.
type Capability string

const (
	CapSelf           Capability = "self"
	CapManageUsers    Capability = "users:manage"
	CapViewDonations  Capability = "donations:view"
	CapManageSettings Capability = "settings:manage"
	CapPromoteUsers   Capability = "users:promote"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// user ⊂ admin ⊂ superadmin
var roleCapabilities = map[string][]Capability{
	RoleUser:       {CapSelf},
	RoleAdmin:      {CapSelf, CapManageUsers, CapViewDonations, CapManageSettings},
	RoleSuperAdmin: {CapSelf, CapManageUsers, CapViewDonations, CapManageSettings, CapPromoteUsers},
}

// Allows reports whether role holds every required capability. Unknown roles
// hold nothing.
func Allows(role string, required ...Capability) bool {
	held := roleCapabilities[role]
	for _, r := range required {
		found := false
		for _, h := range held {
			if h == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
