package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                     "/",
		"/metrics":                             "/metrics",
		"/v1/groups/01HZX":                     "/v1/groups/:id",
		"/v1/groups/01HZX/members/01HZY":       "/v1/groups/:id/members/:id",
		"/v1/groups/01HZX/policies":            "/v1/groups/:id/policies",
		"/v1/session/login":                    "/v1/session/login",
		"/v1/permitted?identity=a&permission=b": "/v1/permitted",
		"/v1/identities/abc":                   "/v1/identities/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
