package outbound

import (
	"errors"
	"net/url"
	"testing"
)

func TestAssertSafeURLRejectsPrivateTargetsEvenWhenAllowlisted(t *testing.T) {
	targets := []string{
		"https://127.0.0.1:8443/webhook",
		"https://127.8.9.10/",
		"https://10.1.2.3/",
		"https://192.168.0.10/",
		"https://169.254.169.254/latest/meta-data",
		"https://172.16.0.1/",
		"https://172.31.255.255/",
		"https://localhost/",
		"https://LOCALHOST./",
		"https://printer.local/",
		"https://metadata.google.internal/",
		"https://[::1]/",
		"https://[fd00::1]/",
		"https://[fc00::1]/",
		"https://[fe80::1]/",
		"https://[::ffff:127.0.0.1]/",
		"http://2130706433/",
		"http://127.1/",
		"http://0x7f.0.0.1/",
		"http://0177.0.0.1/",
		"http://0x7F000001/",
		"https://0xa.1/",
		"https://0251.0376.169.254/",
		"https://3232235521./",
	}
	for _, raw := range targets {
		t.Run(raw, func(t *testing.T) {
			allow := HostSet("127.0.0.1", "10.1.2.3", "localhost", "printer.local", "::1", "fd00::1")
			_, err := AssertSafeURL(raw, allow, "X", false)
			if err == nil {
				t.Fatalf("expected %s to be rejected", raw)
			}
			if err.Error() != "X points to a private or local network address." {
				t.Fatalf("unexpected message: %q", err.Error())
			}
		})
	}
}

func TestAssertSafeURLInvalid(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path", "ftp://files.example.com/x", "https://"} {
		_, err := AssertSafeURL(raw, nil, "Payment URL", false)
		if err == nil || err.Error() != "Payment URL is not a valid URL." {
			t.Fatalf("AssertSafeURL(%q) err = %v", raw, err)
		}
	}
}

func TestAssertSafeURLRejectsMalformedNumericHosts(t *testing.T) {
	for _, raw := range []string{
		"http://1.2.3.999999999999/",
		"http://256.0.0.1/",
		"http://1.2.3.4.5/",
		"http://0x1ffffffff/",
		"http://09.0.0.1/",
		"http://127..1/",
	} {
		_, err := AssertSafeURL(raw, nil, "Payment URL", false)
		if err == nil || err.Error() != "Payment URL is not a valid URL." {
			t.Fatalf("AssertSafeURL(%q) err = %v", raw, err)
		}
		if !IsPrivateHost(mustHostname(t, raw)) {
			t.Fatalf("IsPrivateHost should fail closed for %q", raw)
		}
	}
}

func TestIsPrivateHostKeepsPublicNumericForms(t *testing.T) {
	for _, host := range []string{"134744072", "8.8.2056", "0x08.0x08.0x08.0x08", "example.com", "v1.example.com"} {
		if IsPrivateHost(host) {
			t.Fatalf("IsPrivateHost(%q) = true, want false", host)
		}
	}
}

func mustHostname(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Hostname()
}

func TestAssertSafeURLRequiresHTTPSInProduction(t *testing.T) {
	_, err := AssertSafeURL("http://pay.pesapal.com/api", HostSet("pay.pesapal.com"), "Payment URL", true)
	if err == nil || err.Error() != "Payment URL must use HTTPS in production." {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := AssertSafeURL("http://pay.pesapal.com/api", HostSet("pay.pesapal.com"), "Payment URL", false)
	if err != nil || u.Host != "pay.pesapal.com" {
		t.Fatalf("http should be accepted outside production: %v", err)
	}
}

func TestAssertSafeURLAllowlist(t *testing.T) {
	allow := HostSet("pay.pesapal.com")

	u, err := AssertSafeURL("https://PAY.pesapal.com/pesapalv3/api", allow, "Payment URL", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Path != "/pesapalv3/api" {
		t.Fatalf("unexpected parsed URL: %v", u)
	}

	_, err = AssertSafeURL("https://evil.example/api", allow, "Payment URL", true)
	if err == nil || err.Error() != "Payment URL host is not in the outbound allowlist." {
		t.Fatalf("unexpected error: %v", err)
	}

	var guardErr *Error
	if !errors.As(err, &guardErr) || guardErr.Label != "Payment URL" {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestAssertSafeURLAllowlistKeysAreCaseInsensitive(t *testing.T) {
	allow := map[string]struct{}{"Pay.Pesapal.com": {}, " cybqa.pesapal.com. ": {}}

	for _, raw := range []string{"https://pay.pesapal.com/api", "https://PAY.PESAPAL.COM/api", "https://cybqa.pesapal.com/api"} {
		if _, err := AssertSafeURL(raw, allow, "Payment URL", true); err != nil {
			t.Fatalf("AssertSafeURL(%q) unexpected error: %v", raw, err)
		}
	}

	_, err := AssertSafeURL("https://pay.pesapal.com.evil.example/api", allow, "Payment URL", true)
	if err == nil || err.Error() != "Payment URL host is not in the outbound allowlist." {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAssertSafeURLEmptyAllowlistAcceptsPublicHosts(t *testing.T) {
	for _, raw := range []string{"https://api.example.com/", "https://8.8.8.8/", "https://172.32.0.1/", "https://[2001:db8::1]/"} {
		if _, err := AssertSafeURL(raw, nil, "X", true); err != nil {
			t.Fatalf("AssertSafeURL(%q) unexpected error: %v", raw, err)
		}
	}
}
