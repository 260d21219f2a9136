package httpstatus

import "testing"

func TestReasonPhrase(t *testing.T) {
	cases := map[int]string{
		200: "OK",
		404: "Not Found",
		301: "Moved Permanently",
		511: "Network Authentication Required",
		999: "Undefined",
	}
	for code, want := range cases {
		if got := ReasonPhrase(code); got != want {
			t.Errorf("ReasonPhrase(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMIMEType(t *testing.T) {
	cases := map[string]string{
		".html": "text/html",
		".js":    "application/javascript",
		".weird": "application/octet-stream",
	}
	for ext, want := range cases {
		if got := MIMEType(ext); got != want {
			t.Errorf("MIMEType(%q) = %q, want %q", ext, got, want)
		}
	}
}
