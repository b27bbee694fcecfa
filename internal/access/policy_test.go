package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principal(role Role, perms Permissions) *Principal {
	return &Principal{Email: "someone@example.com", Role: role, Permissions: perms}
}

func TestAllow_NilPrincipal(t *testing.T) {
	assert.False(t, Allow(nil, AppJobs, CapView))
}

func TestAllow_MonotoneInRole(t *testing.T) {
	permSets := []Permissions{
		nil,
		{AppPayables: {"can_view_payables": true}},
		{AppMarketing: {"can_manage_gbp_posts": true}, AppHuddle: {"can_edit_kpis": true}},
	}
	roles := []Role{RoleEmployee, RoleManager, RoleOwner}

	for _, perms := range permSets {
		for _, app := range Apps() {
			for _, c := range Capabilities(app) {
				for i, lower := range roles {
					if !Allow(principal(lower, perms), app, c) {
						continue
					}
					for _, higher := range roles[i+1:] {
						assert.True(t, Allow(principal(higher, perms), app, c),
							"%s allowed %s/%s but %s was not", lower, app, c, higher)
					}
				}
			}
		}
	}
}

func TestAllow_Table(t *testing.T) {
	cases := []struct {
		name  string
		p     *Principal
		app   App
		cap   Capability
		allow bool
	}{
		{"employee cannot view payables", principal(RoleEmployee, nil), AppPayables, CapView, false},
		{"manager views payables", principal(RoleManager, nil), AppPayables, CapView, true},
		{"manager cannot pay", principal(RoleManager, nil), AppPayables, CapManagePayments, false},
		{"flag grants employee", principal(RoleEmployee, Permissions{AppPayables: {"can_view_payables": true}}), AppPayables, CapView, true},
		{"flag false does not grant", principal(RoleEmployee, Permissions{AppPayables: {"can_view_payables": false}}), AppPayables, CapView, false},
		{"flag on other app does not grant", principal(RoleEmployee, Permissions{AppReceivables: {"can_view_payables": true}}), AppPayables, CapView, false},
		{"gbp flag grants upload", principal(RoleEmployee, Permissions{AppMarketing: {"can_manage_gbp_posts": true}}), AppMarketing, CapUpload, true},
		{"employee edits trackers", principal(RoleEmployee, nil), AppJobs, CapEdit, true},
		{"owner passes unknown capability", principal(RoleOwner, nil), App("reports"), Capability("export"), true},
		{"manager denied unknown capability", principal(RoleManager, nil), App("reports"), Capability("export"), false},
		{"manager cannot manage users", principal(RoleManager, nil), AppAdmin, CapManageUsers, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allow, Allow(tc.p, tc.app, tc.cap))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("manager")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, r)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestPermissions_ScanValue(t *testing.T) {
	var p Permissions
	require.NoError(t, p.Scan([]byte(`{"ap":{"can_edit_rates":true}}`)))
	assert.True(t, p.Has(AppPayables, "can_edit_rates"))

	require.NoError(t, p.Scan(nil))
	assert.Empty(t, p)

	assert.Error(t, p.Scan(42))
	assert.Error(t, p.Scan("not json"))
}

func TestValidatePermissions(t *testing.T) {
	in := Permissions{
		AppPayables: {"can_edit_rates": true, "can_fly": true},
		App("nope"): {"x": true},
	}
	out := ValidatePermissions(in)
	assert.Equal(t, Permissions{AppPayables: {"can_edit_rates": true}}, out)
}

func TestPrincipal_Actor(t *testing.T) {
	var p *Principal
	assert.Equal(t, "system", p.Actor())
	assert.Equal(t, "a@example.com", (&Principal{Email: "a@example.com"}).Actor())
	assert.Equal(t, "Ana", (&Principal{Email: "a@example.com", Name: "Ana"}).Actor())
}
