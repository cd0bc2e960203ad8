package osu

// Privileges is the server-side privilege bitset stored per user.
type Privileges uint32

const (
	PrivUnrestricted Privileges = 1 << 0 // account is not restricted
	PrivVerified     Privileges = 1 << 1 // has logged in at least once
	PrivWhitelisted  Privileges = 1 << 2 // exempt from pp autorestriction
	PrivSupporter    Privileges = 1 << 4
	PrivPremium      Privileges = 1 << 5
	PrivAlumni       Privileges = 1 << 7
	PrivTournament   Privileges = 1 << 10 // can manage tourney matches
	PrivNominator    Privileges = 1 << 11
	PrivMod          Privileges = 1 << 12
	PrivAdmin        Privileges = 1 << 13
	PrivDangerous    Privileges = 1 << 14 // server owner

	PrivDonator = PrivSupporter | PrivPremium
	PrivStaff   = PrivMod | PrivAdmin | PrivDangerous
)

// ClientPrivileges is the much smaller bitset the osu! client understands.
type ClientPrivileges uint8

const (
	ClientPrivPlayer     ClientPrivileges = 1 << 0
	ClientPrivModerator  ClientPrivileges = 1 << 1
	ClientPrivSupporter  ClientPrivileges = 1 << 2
	ClientPrivOwner      ClientPrivileges = 1 << 3
	ClientPrivDeveloper  ClientPrivileges = 1 << 4
	ClientPrivTournament ClientPrivileges = 1 << 5
)

// ToClient converts server privileges to the client's view. Every
// unrestricted player gets supporter; it gates osu!direct and some
// client features that should be on for everyone on a private server.
func (p Privileges) ToClient() ClientPrivileges {
	var c ClientPrivileges
	if p&PrivUnrestricted != 0 {
		c |= ClientPrivPlayer | ClientPrivSupporter
	}
	if p&PrivMod != 0 {
		c |= ClientPrivModerator
	}
	if p&PrivAdmin != 0 {
		c |= ClientPrivDeveloper
	}
	if p&PrivDangerous != 0 {
		c |= ClientPrivOwner
	}
	return c
}
