package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/healthz":                  "/healthz",
		"/v1/accounts/42":           "/v1/accounts/:client",
		"/v1/accounts/42/extra":     "/v1/accounts/42/extra",
		"/v1/transactions":          "/v1/transactions",
		"/v1/batches":               "/v1/batches",
		"/v1/stream":                "/v1/stream",
		"/v1/info":                  "/v1/info",
		"/somewhere/else":           "/somewhere/else",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
