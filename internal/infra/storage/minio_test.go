package storage

import "testing"

func TestUnsafeChars_Sanitization(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":              "photo.jpg",
		"mon médicament (1).jpg": "mon_m_dicament__1_.jpg",
		"../../etc/passwd":       ".._.._etc_passwd",
		"IMG 2026-02-10.png":     "IMG_2026-02-10.png",
	}
	for in, want := range cases {
		if got := unsafeChars.ReplaceAllString(in, "_"); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", in, want, got)
		}
	}
}
