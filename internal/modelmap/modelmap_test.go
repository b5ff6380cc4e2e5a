package modelmap

import "testing"

func TestResolveEmptyMapUsesDefault(t *testing.T) {
	tbl, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Resolve("anything", "gpt-default"); got != "gpt-default" {
		t.Fatalf("got %q, want default", got)
	}
}

func TestResolveExactMatchCaseFoldedAndTrimmed(t *testing.T) {
	tbl, err := Parse([]byte(`{"foo-a":"gpt-foo"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Resolve(" Foo-A ", "gpt-default"); got != "gpt-foo" {
		t.Fatalf("got %q, want gpt-foo", got)
	}
}

func TestResolveAmbiguousPrefixFallsBackToDefault(t *testing.T) {
	tbl, err := Parse([]byte(`{"foo-a":"gpt-a","foo-b":"gpt-b"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Resolve("foo", "gpt-default"); got != "gpt-default" {
		t.Fatalf("got %q, want default (ambiguous)", got)
	}
}

func TestResolveUniquePrefixMatch(t *testing.T) {
	tbl, err := Parse([]byte(`{"claude-3-5-sonnet":"gpt-5"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Resolve("claude-3-5-sonnet-20241022", "gpt-default"); got != "gpt-5" {
		t.Fatalf("got %q, want gpt-5", got)
	}
}

func TestParseWrappedModelsForm(t *testing.T) {
	tbl, err := Parse([]byte(`{"models":{"foo":"bar"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Resolve("foo", "default"); got != "bar" {
		t.Fatalf("got %q, want bar", got)
	}
}

func TestParseRejectsMixedForms(t *testing.T) {
	_, err := Parse([]byte(`{"models":{"foo":"bar"}, "other": "baz"}`))
	if err == nil {
		t.Fatal("expected error for mixed models/flat form")
	}
}

func TestParseRejectsDuplicateAfterNormalization(t *testing.T) {
	_, err := Parse([]byte(`{"Foo":"a", "foo":"b"}`))
	if err == nil {
		t.Fatal("expected error for colliding keys after normalization")
	}
}

func TestParseRejectsEmptyValue(t *testing.T) {
	_, err := Parse([]byte(`{"foo":""}`))
	if err == nil {
		t.Fatal("expected error for empty value")
	}
}
