package runner

import "testing"

func TestEscapeQuoted(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{``, ``},
		{`plain text`, `plain text`},
		{`"`, `\"`},
		{`say "hi"`, `say \"hi\"`},
		{`\`, `\\`},
		{`a\b`, `a\b`},
		{`\"`, `\\\"`},
		{`\\"`, `\\\\\"`},
		{`tail\`, `tail\\`},
		{`tail\\`, `tail\\\\`},
		{`mix \"quoted\" end\`, `mix \\\"quoted\\\" end\\`},
	}
	for _, tc := range cases {
		if got := EscapeQuoted(tc.in); got != tc.want {
			t.Fatalf("EscapeQuoted(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	inputs := []string{
		``,
		`echo hello`,
		`"`,
		`""`,
		`\`,
		`\\`,
		`\"`,
		`\\"`,
		`\\\"`,
		`grep "foo \"bar\" baz"`,
		`path\to\file`,
		`path\to\dir\`,
		`weird \" mix " of \\" runs \\\`,
		"unicode ✓ \"quoted\"",
	}
	for _, in := range inputs {
		if got := UnescapeQuoted(EscapeQuoted(in)); got != in {
			t.Fatalf("round trip %q -> %q -> %q", in, EscapeQuoted(in), got)
		}
	}
}

func TestQuoteArg(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`simple`, `'simple'`},
		{`with space`, `'with space'`},
		{`$HOME`, `'$HOME'`},
		{"a`b", "'a`b'"},
		{`say "hi"`, `'say "hi"'`},
		{`it's`, `'it'\''s'`},
		// A backslash right before a dollar must stay a literal backslash
		// followed by a literal dollar, never an expansion.
		{`/tmp/\$HOME/job.log`, `'/tmp/\$HOME/job.log'`},
	}
	for _, tc := range cases {
		if got := QuoteArg(tc.in); got != tc.want {
			t.Fatalf("QuoteArg(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
