package email

import "testing"

func TestValidateRejectsAdversarialSet(t *testing.T) {
	cases := []struct {
		in     string
		reason Reason
	}{
		{"", ReasonMalformedStructure},
		{"abc", ReasonMalformedStructure},
		{"something@@somewhere.com", ReasonMalformedStructure},
		{"a @x.cz", ReasonMalformedLocalPart},
		{".leading@example.com", ReasonMalformedLocalPart},
		{"trailing.@example.com", ReasonMalformedLocalPart},
		{"quo\"ted@example.com", ReasonMalformedLocalPart},
		{"abc@", ReasonMalformedDomain},
		{"user@localhost", ReasonMalformedDomain},
		{"example@invalid-.com", ReasonMalformedDomain},
		{"example@-invalid.com", ReasonMalformedDomain},
		{"example@inv-.alid-.com", ReasonMalformedDomain},
		{"trailingdot@shouldfail.com.", ReasonMalformedDomain},
		{"double..dot@exa..mple.com", ReasonMalformedDomain},
		{"email@[12.34.56]", ReasonMalformedDomain},
		{"email@[1.2.3.04]", ReasonMalformedDomain},
		{"email@[unclosed.example.com", ReasonMalformedDomain},
		{"email@[1:2:3]", ReasonMalformedDomain},
		{"email@[12345::]", ReasonMalformedDomain},
		{"email@[1::2::3]", ReasonMalformedDomain},
		{"email@[127.0.0.256]", ReasonIPLiteralOutOfRange},
		{"email@[999.0.0.1]", ReasonIPLiteralOutOfRange},
		{"email@[::ffff:127.0.0.256]", ReasonIPLiteralOutOfRange},
		{"email@[IPv6:::ffff:1.2.3.999]", ReasonIPLiteralOutOfRange},
	}
	for _, tc := range cases {
		got := Validate(tc.in)
		if got.OK {
			t.Fatalf("%q expected rejection, got valid", tc.in)
		}
		if got.Reason != tc.reason {
			t.Fatalf("%q expected reason %q, got %q", tc.in, tc.reason, got.Reason)
		}
	}
}

func TestValidateAcceptsWellFormedAddresses(t *testing.T) {
	cases := []string{
		"reuben-Tomas@demonic.demon.co.uk",
		"simple@example.com",
		"a_b%c+d-1@sub.example-site.org",
		"UPPER.case@EXAMPLE.COM",
		"email@[127.0.0.1]",
		"email@[0.0.0.0]",
		"email@[IPv6:2001:db8::1]",
		"email@[::1]",
		"email@[::ffff:127.0.0.1]",
		"email@[2001:db8:0:0:0:0:2:1]",
	}
	for _, in := range cases {
		if got := Validate(in); !got.OK {
			t.Fatalf("%q expected valid, got reason %q", in, got.Reason)
		}
	}
}
