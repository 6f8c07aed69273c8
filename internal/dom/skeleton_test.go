package dom

import (
	"strings"
	"testing"
)

func TestSkeletonKeepsInteractiveNodesAndDropsOthers(t *testing.T) {
	raw := `<html><body><div class="wrapper"><p>Welcome to our site, read this long paragraph.</p>
		<button id="go">Go</button></div></body></html>`
	skel := Skeleton(raw)

	if !strings.Contains(skel, "<button") {
		t.Fatalf("expected interactive <button> to survive skeleton, got %q", skel)
	}
	// The button's direct parent (div.wrapper, one ancestor generation up)
	// is retained for structural context.
	if !strings.Contains(skel, "<div") {
		t.Fatalf("expected the button's direct ancestor <div> to survive skeleton, got %q", skel)
	}
	// <p> is a sibling of the button, not an ancestor, so it is unwrapped.
	if strings.Contains(skel, "<p>") {
		t.Fatalf("expected the non-ancestor <p> tag to be unwrapped, got %q", skel)
	}
	if !strings.Contains(skel, "Welcome to our site") {
		t.Fatalf("expected unwrapped text content to survive, got %q", skel)
	}
}

func TestSkeletonBoundsAncestorWalkToThreeGenerations(t *testing.T) {
	raw := `<html><body>
		<div id="g4"><div id="g3"><div id="g2"><div id="g1">
			<button id="go">Go</button>
		</div></div></div></div>
	</body></html>`
	skel := Skeleton(raw)

	for _, id := range []string{"g1", "g2", "g3"} {
		if !strings.Contains(skel, `id="`+id+`"`) {
			t.Fatalf("expected ancestor %q within three generations to survive, got %q", id, skel)
		}
	}
	if strings.Contains(skel, `id="g4"`) {
		t.Fatalf("expected the fourth ancestor generation to be unwrapped, got %q", skel)
	}
}

func TestSkeletonDropsScriptStyleMeta(t *testing.T) {
	raw := `<html><head><meta charset="utf-8"><style>.a{}</style></head>
	<body><script>evil()</script><button>OK</button></body></html>`
	skel := Skeleton(raw)
	if strings.Contains(skel, "evil()") || strings.Contains(skel, ".a{}") || strings.Contains(skel, "<meta") {
		t.Fatalf("expected script/style/meta to be dropped, got %q", skel)
	}
}
