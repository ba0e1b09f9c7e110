package orderflow

import (
	"strings"
	"testing"
)

func testSteps(t *testing.T) []StepSpec {
	t.Helper()
	cfg := DefaultConfig()
	steps, err := buildSteps(&cfg)
	if err != nil {
		t.Fatalf("buildSteps() error = %v", err)
	}
	return steps
}

func TestBuildSteps_Sequence(t *testing.T) {
	steps := testSteps(t)

	want := []string{FieldQuantity, FieldPhone, FieldDeliveryMethod, FieldDeliveryDetail}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(steps), len(want))
	}
	for i, field := range want {
		if steps[i].Field != field {
			t.Errorf("step %d field = %q, want %q", i, steps[i].Field, field)
		}
	}
}

func TestBuildSteps_InvalidPhonePattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PhonePattern = "("
	if _, err := buildSteps(&cfg); err == nil {
		t.Error("buildSteps() accepted an invalid phone pattern")
	}
}

func TestQuantityValidator_NormalizesValue(t *testing.T) {
	steps := testSteps(t)
	sess := NewSession("u1")

	value, ok := steps[0].Validate("  07 ", sess)
	if !ok {
		t.Fatal("leading zeros with spaces rejected")
	}
	if value != "7" {
		t.Errorf("normalized value = %q, want 7", value)
	}
}

func TestDeliveryPromptListsOptions(t *testing.T) {
	steps := testSteps(t)
	sess := NewSession("u1")

	prompt := steps[2].Prompt(sess)
	for _, want := range []string{"1 — Нова пошта", "2 — Укрпошта"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("delivery prompt %q missing option %q", prompt, want)
		}
	}
}

func TestDetailPromptDependsOnMethod(t *testing.T) {
	cfg := DefaultConfig()
	steps, err := buildSteps(&cfg)
	if err != nil {
		t.Fatalf("buildSteps() error = %v", err)
	}

	sess := NewSession("u1")
	sess.Fields[FieldDeliveryMethod] = cfg.DeliveryOptions[1].Label

	if got := steps[3].Prompt(sess); got != cfg.DeliveryOptions[1].DetailPrompt {
		t.Errorf("detail prompt = %q, want %q", got, cfg.DeliveryOptions[1].DetailPrompt)
	}

	// Unknown method falls back to the first option's prompt.
	sess.Fields[FieldDeliveryMethod] = "teleport"
	if got := steps[3].Prompt(sess); got != cfg.DeliveryOptions[0].DetailPrompt {
		t.Errorf("fallback detail prompt = %q", got)
	}
}

func TestDetailValidator_TrimsWhitespace(t *testing.T) {
	steps := testSteps(t)
	sess := NewSession("u1")

	if _, ok := steps[3].Validate("   ", sess); ok {
		t.Error("whitespace-only detail accepted")
	}
	value, ok := steps[3].Validate("  Branch 12  ", sess)
	if !ok || value != "Branch 12" {
		t.Errorf("Validate() = (%q, %v), want trimmed value", value, ok)
	}
}

func TestMatchesAny(t *testing.T) {
	phrases := []string{"замовити", "order"}

	tests := []struct {
		text string
		want bool
	}{
		{"замовити", true},
		{"Хочу ЗАМОВИТИ мед", true},
		{"order now", true},
		{"привіт", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := matchesAny(phrases, tt.text); got != tt.want {
			t.Errorf("matchesAny(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
