package usecase

import "testing"

func TestFingerprintCollapsesSurfaceVariation(t *testing.T) {
	variants := []string{
		"NVR   storage capacity",
		"nvr storage capacity",
		"  storage capacity NVR ",
		"the NVR storage capacity please",
	}

	base := Fingerprint(variants[0])
	for _, v := range variants[1:] {
		if got := Fingerprint(v); got != base {
			t.Fatalf("expected identical fingerprint for %q, got %s want %s", v, got, base)
		}
	}
}

func TestFingerprintCollapsesParticleVariation(t *testing.T) {
	a := Fingerprint("NVR 저장 용량은")
	b := Fingerprint("NVR 저장 용량")
	if a != b {
		t.Fatalf("expected particle-insensitive fingerprint, got %s vs %s", a, b)
	}
}

func TestFingerprintDistinguishesDifferentQuestions(t *testing.T) {
	if Fingerprint("NVR storage capacity") == Fingerprint("camera warranty period") {
		t.Fatalf("different questions must not collide")
	}
}

func TestNormalizeQuerySortsAndDeduplicates(t *testing.T) {
	got := NormalizeQuery("beta alpha beta")
	if got != "alpha beta" {
		t.Fatalf("expected %q, got %q", "alpha beta", got)
	}
}
