package rendercache

import "testing"

func TestEffectiveFallbackDeclarations(t *testing.T) {
	req := &RenderRequest{}

	if mode := effectiveFallback(FallbackDecl{}, false, req, false); mode != FallbackDisabled {
		t.Fatalf("Mode is %s", mode)
	}
	if mode := effectiveFallback(FallbackDecl{Blocking: true}, true, req, false); mode != FallbackBlocking {
		t.Fatalf("Mode is %s", mode)
	}
	if mode := effectiveFallback(FallbackDecl{Artifact: "x.html"}, true, req, false); mode != FallbackStatic {
		t.Fatalf("Mode is %s", mode)
	}
}

func TestEffectiveFallbackBotEscalation(t *testing.T) {
	req := &RenderRequest{Bot: true}
	if mode := effectiveFallback(FallbackDecl{Artifact: "x.html"}, true, req, false); mode != FallbackBlocking {
		t.Fatalf("Mode is %s", mode)
	}
	// bots never downgrade blocking or disabled
	if mode := effectiveFallback(FallbackDecl{}, false, req, false); mode != FallbackDisabled {
		t.Fatalf("Mode is %s", mode)
	}
}

func TestEffectiveFallbackManualRevalidate(t *testing.T) {
	req := &RenderRequest{ManualRevalidate: true}

	// fallback enabled: always blocking
	if mode := effectiveFallback(FallbackDecl{Artifact: "x.html"}, true, req, false); mode != FallbackBlocking {
		t.Fatalf("Mode is %s", mode)
	}
	// fallback disabled but an entry exists: blocking
	if mode := effectiveFallback(FallbackDecl{}, false, req, true); mode != FallbackBlocking {
		t.Fatalf("Mode is %s", mode)
	}
	// fallback disabled, nothing generated: stays disabled
	if mode := effectiveFallback(FallbackDecl{}, false, req, false); mode != FallbackDisabled {
		t.Fatalf("Mode is %s", mode)
	}
}

func TestIsBot(t *testing.T) {
	if !IsBot("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)") {
		t.Fatal("Googlebot not detected")
	}
	if IsBot("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15") {
		t.Fatal("Safari detected as bot")
	}
}
