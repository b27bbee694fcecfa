package access

type App string

const (
	AppPayables    App = "ap"
	AppReceivables App = "ar"
	AppJobs        App = "jobs"
	AppHuddle      App = "huddle"
	AppMarketing   App = "marketing"
	AppAdmin       App = "admin"
	AppSync        App = "sync"
)

type Capability string

const (
	CapView           Capability = "view"
	CapEdit           Capability = "edit"
	CapManage         Capability = "manage"
	CapEditRates      Capability = "edit_rates"
	CapManagePayments Capability = "manage_payments"
	CapManageTasks    Capability = "manage_tasks"
	CapSync           Capability = "sync"
	CapUpload         Capability = "upload"
	CapManageUsers    Capability = "manage_users"
)

// Rule grants a capability to every role at or above MinRole, and to any principal
// whose permission map sets Flag for the app.
type Rule struct {
	MinRole Role
	Flag    string
}

var policy = map[App]map[Capability]Rule{
	AppPayables: {
		CapView:           {MinRole: RoleManager, Flag: "can_view_payables"},
		CapEditRates:      {MinRole: RoleManager, Flag: "can_edit_rates"},
		CapManagePayments: {MinRole: RoleOwner, Flag: "can_manage_payments"},
	},
	AppReceivables: {
		CapView:        {MinRole: RoleManager, Flag: "can_view_collections"},
		CapManageTasks: {MinRole: RoleManager, Flag: "can_manage_tasks"},
		CapSync:        {MinRole: RoleManager},
	},
	AppJobs: {
		CapView:   {MinRole: RoleEmployee},
		CapEdit:   {MinRole: RoleEmployee},
		CapManage: {MinRole: RoleManager, Flag: "can_manage_trackers"},
	},
	AppHuddle: {
		CapView:   {MinRole: RoleEmployee},
		CapEdit:   {MinRole: RoleManager, Flag: "can_edit_kpis"},
		CapManage: {MinRole: RoleOwner},
	},
	AppMarketing: {
		CapUpload: {MinRole: RoleManager, Flag: "can_manage_gbp_posts"},
	},
	AppAdmin: {
		CapManageUsers: {MinRole: RoleOwner, Flag: "can_manage_users"},
	},
	AppSync: {
		CapView: {MinRole: RoleManager},
	},
}

// Allow decides whether p may exercise capability on app. It does no I/O.
func Allow(p *Principal, app App, capability Capability) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleOwner {
		return true
	}

	rule, ok := policy[app][capability]
	if !ok {
		return false
	}

	return p.Role.AtLeast(rule.MinRole) || p.Permissions.Has(app, rule.Flag)
}

// Capabilities lists every capability defined for app.
func Capabilities(app App) []Capability {
	out := make([]Capability, 0, len(policy[app]))
	for c := range policy[app] {
		out = append(out, c)
	}
	return out
}

// Apps lists every app that has a policy.
func Apps() []App {
	out := make([]App, 0, len(policy))
	for a := range policy {
		out = append(out, a)
	}
	return out
}

// Flags lists the permission flags that can be granted for app.
func Flags(app App) []string {
	var out []string
	for _, rule := range policy[app] {
		if rule.Flag != "" {
			out = append(out, rule.Flag)
		}
	}
	return out
}

// ValidatePermissions drops apps and flags that no rule refers to.
func ValidatePermissions(in Permissions) Permissions {
	out := Permissions{}
	for app, flags := range in {
		known := map[string]bool{}
		for _, f := range Flags(app) {
			known[f] = true
		}
		for flag, v := range flags {
			if !known[flag] {
				continue
			}
			if out[app] == nil {
				out[app] = map[string]bool{}
			}
			out[app][flag] = v
		}
	}
	return out
}
