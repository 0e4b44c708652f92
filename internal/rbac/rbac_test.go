package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleOwner, ActionRead, true},
		{RoleOwner, ActionWrite, true},
		{RoleOwner, ActionInvite, true},
		{RoleOwner, ActionAdmin, true},
		{RoleMember, ActionRead, true},
		{RoleMember, ActionWrite, true},
		{RoleMember, ActionInvite, false},
		{RoleMember, ActionAdmin, false},
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionWrite, false},
		{Role("bogus"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("owner") != RoleOwner {
		t.Error("owner not preserved")
	}
	if Normalize("member") != RoleMember {
		t.Error("member not preserved")
	}
	if Normalize("") != RoleViewer {
		t.Error("empty role must default to viewer")
	}
	if Normalize("superuser") != RoleViewer {
		t.Error("unknown role must default to viewer")
	}
}
