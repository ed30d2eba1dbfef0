package userutil

import (
	"errors"
	"os/user"
	"testing"
)

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "domain user", input: "DOMAIN\\user", want: "DOMAIN_user"},
		{name: "email", input: "user@domain.com", want: "user_domain.com"},
		{name: "spaces collapse", input: "unit user!", want: "unit_user_"},
		{name: "empty", input: "", want: "unknown"},
		{name: "whitespace", input: "  ", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUsername(tt.input); got != tt.want {
				t.Fatalf("SanitizeUsername(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func stubLookup(t *testing.T, name string, err error) {
	t.Helper()
	orig := lookupCurrentUser
	t.Cleanup(func() { lookupCurrentUser = orig })
	lookupCurrentUser = func() (*user.User, error) {
		if err != nil {
			return nil, err
		}
		return &user.User{Username: name}, nil
	}
}

func TestCurrentUsername(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		user      string
		lookup    string
		lookupErr error
		want      string
	}{
		{name: "USERNAME wins", username: "win user", user: "posix", lookup: "db", want: "win_user"},
		{name: "USER fallback", user: "posix", lookup: "db", want: "posix"},
		{name: "account database", lookup: `CORP\bob`, want: "CORP_bob"},
		{name: "nothing available", lookupErr: errors.New("no user"), want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("USERNAME", tt.username)
			t.Setenv("USER", tt.user)
			stubLookup(t, tt.lookup, tt.lookupErr)

			if got := CurrentUsername(); got != tt.want {
				t.Fatalf("CurrentUsername() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScopedName(t *testing.T) {
	t.Setenv("USERNAME", "alice")
	if got := ScopedName("gamepause"); got != "gamepause-alice" {
		t.Fatalf("ScopedName() = %q, want gamepause-alice", got)
	}
}
