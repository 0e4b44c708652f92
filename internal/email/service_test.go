package email

import (
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	cases := []struct {
		name   string
		config Config
		want   bool
	}{
		{"empty", Config{}, false},
		{"missing from", Config{Host: "smtp.example.com", Port: "587"}, false},
		{"missing port", Config{Host: "smtp.example.com", From: "app@example.com"}, false},
		{"complete", Config{Host: "smtp.example.com", Port: "587", From: "app@example.com"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.config)
			if got := svc.IsConfigured(); got != tc.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@example.com"}, "subject", "body"); err == nil {
		t.Fatal("expected error for unconfigured service")
	}
	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "subject", "<p>body</p>"); err == nil {
		t.Fatal("expected error for unconfigured service")
	}
}

func TestRenderInvite(t *testing.T) {
	body, err := RenderInvite(InviteData{
		OrganizationName: "Acme",
		InviterName:      "Dana",
		InviteLink:       "https://tackboard.example.com/invite?token=abc123",
	})
	if err != nil {
		t.Fatalf("RenderInvite: %v", err)
	}
	for _, want := range []string{"Acme", "Dana", "https://tackboard.example.com/invite?token=abc123"} {
		if !strings.Contains(body, want) {
			t.Errorf("invite body missing %q", want)
		}
	}
}

func TestRenderInviteEscapesHTML(t *testing.T) {
	body, err := RenderInvite(InviteData{
		OrganizationName: "<script>alert(1)</script>",
		InviterName:      "Dana",
		InviteLink:       "https://tackboard.example.com/invite?token=abc",
	})
	if err != nil {
		t.Fatalf("RenderInvite: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Error("invite body contains unescaped HTML")
	}
}
