package safety

import (
	"context"
	"strings"
	"testing"
)

func TestDecideInput_Table(t *testing.T) {
	cases := map[RiskLevel]Action{
		RiskNone:     ActionAllow,
		RiskLow:      ActionAllow,
		RiskMedium:   ActionAllow,
		RiskHigh:     ActionBlock,
		RiskCritical: ActionEscalate,
	}
	for level, want := range cases {
		res := DecideInput(Assessment{Level: level})
		if res.Action != want {
			t.Fatalf("input %s => %s, want %s", level, res.Action, want)
		}
		if res.ModifiedText != "" {
			t.Fatalf("input should never modify text")
		}
	}
}

func TestDecideOutput_Table(t *testing.T) {
	cases := map[RiskLevel]Action{
		RiskNone:     ActionAllow,
		RiskLow:      ActionAllow,
		RiskMedium:   ActionModify,
		RiskHigh:     ActionBlock,
		RiskCritical: ActionBlock,
	}
	for level, want := range cases {
		res := DecideOutput(Assessment{Level: level}, "text")
		if res.Action != want {
			t.Fatalf("output %s => %s, want %s", level, res.Action, want)
		}
		if (res.ModifiedText != "") != (want == ActionModify) {
			t.Fatalf("output %s modified=%q", level, res.ModifiedText)
		}
	}
}

func TestGuardrails_CheckInputEscalates(t *testing.T) {
	g := NewGuardrails(nil)
	res := g.CheckInput(context.Background(), "I want to end my life tonight")
	if res.Action != ActionEscalate {
		t.Fatalf("action=%s", res.Action)
	}
}

func TestGuardrails_CheckOutputModifies(t *testing.T) {
	g := NewGuardrails(nil)
	text := "You have been diagnosed with major depressive disorder."
	res := g.CheckOutput(context.Background(), text)
	if res.Action != ActionModify {
		t.Fatalf("action=%s", res.Action)
	}
	if !strings.Contains(res.ModifiedText, text) {
		t.Fatalf("modified text lost original: %q", res.ModifiedText)
	}
	if !strings.HasSuffix(res.ModifiedText, BoundaryDisclaimer) {
		t.Fatalf("modified text missing disclaimer: %q", res.ModifiedText)
	}
}

func TestPrependCrisisResources(t *testing.T) {
	out := PrependCrisisResources("hello")
	if !strings.Contains(out, "988") {
		t.Fatalf("missing hotline: %q", out)
	}
	if !strings.HasSuffix(out, "hello") {
		t.Fatalf("original text not preserved: %q", out)
	}
	if got := StripCrisisResources(out); got != "hello" {
		t.Fatalf("StripCrisisResources=%q", got)
	}
	if got := StripCrisisResources("plain reply"); got != "plain reply" {
		t.Fatalf("unprefixed text changed: %q", got)
	}
}
