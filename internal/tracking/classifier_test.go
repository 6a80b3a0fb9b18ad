package tracking_test

import (
	"errors"
	"testing"

	"github.com/basket/decoy/internal/config"
	"github.com/basket/decoy/internal/tracking"
)

const realBrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

func newClassifier(cfg config.FilterConfig) *tracking.Classifier {
	return tracking.NewClassifier(cfg)
}

func TestShouldTrack_RealBrowserAccepted(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true})
	v := tracking.Visit{
		UserAgent: realBrowserUA,
		Referrer:  "https://example.org/landing",
		Host:      "decoy.example.org",
	}
	if !c.ShouldTrack("s1", v) {
		t.Fatal("realistic browser visit should be tracked")
	}
}

func TestShouldTrack_SentinelUserAgentRejected(t *testing.T) {
	c := newClassifier(config.FilterConfig{})
	v := tracking.Visit{
		UserAgent: tracking.MissingHeaderSentinel,
		Referrer:  "https://example.org",
		Host:      "decoy.example.org",
	}
	if c.ShouldTrack("s1", v) {
		t.Fatal("sentinel user-agent must be rejected")
	}
}

func TestShouldTrack_NoBrowserContextRejected(t *testing.T) {
	c := newClassifier(config.FilterConfig{})
	for _, v := range []tracking.Visit{
		{UserAgent: "", Referrer: "", Host: ""},
		{UserAgent: "Unknown", Referrer: "none", Host: "undefined"},
	} {
		if c.ShouldTrack("s1", v) {
			t.Fatalf("visit without browser context must be rejected: %+v", v)
		}
	}
}

func TestShouldTrack_FailOpenOnHeaderAccessError(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true, StrictFrequency: true})
	v := tracking.Visit{Err: errors.New("headers unavailable")}
	if !c.ShouldTrack("s1", v) {
		t.Fatal("header access failure must fail open")
	}
}

func TestShouldTrack_DenylistSubstrings(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true})
	agents := []string{
		"Googlebot/2.1 (+http://www.google.com/bot.html)",
		"python-requests/2.31.0 long enough to pass length",
		"UptimeRobot/2.0; http://www.uptimerobot.com/",
		"curl/8.4.0 something something",
	}
	for _, ua := range agents {
		v := tracking.Visit{UserAgent: ua, Referrer: "https://x.example", Host: "h"}
		if c.ShouldTrack("s1", v) {
			t.Fatalf("denylisted agent should be rejected: %q", ua)
		}
	}
}

func TestShouldTrack_DenylistCaseInsensitive(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true})
	v := tracking.Visit{UserAgent: "MegaCRAWLER enterprise edition v4", Referrer: "r", Host: "h"}
	if c.ShouldTrack("s1", v) {
		t.Fatal("denylist match must be case-insensitive")
	}
}

func TestShouldTrack_ShortAgentRejected(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true})
	v := tracking.Visit{UserAgent: "abc", Referrer: "https://x.example", Host: "h"}
	if c.ShouldTrack("s1", v) {
		t.Fatal("implausibly short user-agent should be rejected")
	}
}

func TestShouldTrack_SimpleClientNameRejected(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true, MinAgentLength: 3})
	v := tracking.Visit{UserAgent: "  python  ", Referrer: "https://x.example", Host: "h"}
	if c.ShouldTrack("s1", v) {
		t.Fatal("bare client name should be rejected")
	}
}

func TestShouldTrack_HealthCheckReferrerRejected(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: true})
	v := tracking.Visit{
		UserAgent: realBrowserUA,
		Referrer:  "http://internal/healthz",
		Host:      "decoy.example.org",
	}
	if c.ShouldTrack("s1", v) {
		t.Fatal("health-check referrer should be rejected")
	}
}

func TestShouldTrack_StrictAgentDisabledLetsBotsThrough(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: false})
	v := tracking.Visit{
		UserAgent: "Googlebot/2.1 (+http://www.google.com/bot.html)",
		Referrer:  "https://x.example",
		Host:      "h",
	}
	// Only the base rules apply; the denylist is off.
	if !c.ShouldTrack("s1", v) {
		t.Fatal("with strict_agent off, denylist must not apply")
	}
}

func TestShouldTrack_CustomDenylist(t *testing.T) {
	c := newClassifier(config.FilterConfig{
		StrictAgent: true,
		Denylist:    []string{"evilagent"},
	})
	blocked := tracking.Visit{UserAgent: "EvilAgent/1.0 (probe unit)", Referrer: "r", Host: "h"}
	if c.ShouldTrack("s1", blocked) {
		t.Fatal("custom denylist entry should reject")
	}
	// Built-in entries are replaced, not merged.
	bot := tracking.Visit{UserAgent: "Googlebot/2.1 (+http://www.google.com/bot.html)", Referrer: "r", Host: "h"}
	if !c.ShouldTrack("s1", bot) {
		t.Fatal("custom denylist should replace the built-in list")
	}
}

func TestReconfigure_SwapsRulesLive(t *testing.T) {
	c := newClassifier(config.FilterConfig{StrictAgent: false})
	bot := tracking.Visit{UserAgent: "monitor-agent/3.2 synthetic", Referrer: "r", Host: "h"}
	if !c.ShouldTrack("s1", bot) {
		t.Fatal("precondition: strict rules off")
	}
	c.Reconfigure(config.FilterConfig{StrictAgent: true})
	if c.ShouldTrack("s1", bot) {
		t.Fatal("reconfigure should enable strict rules without restart")
	}
}
