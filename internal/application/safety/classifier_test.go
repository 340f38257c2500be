package safety

import (
	"reflect"
	"strings"
	"testing"
)

func TestAssessInput_Crisis(t *testing.T) {
	c := NewClassifier(nil)
	a := c.AssessInput("I want to end my life tonight")
	if a.Level != RiskCritical || !a.RequiresEscalation {
		t.Fatalf("assessment=%+v", a)
	}
	if a.RecommendedAction != RecommendEscalate {
		t.Fatalf("recommended=%s", a.RecommendedAction)
	}
	if len(a.TriggeredRules) == 0 || a.TriggeredRules[0] != "crisis_end_it" {
		t.Fatalf("rules=%v", a.TriggeredRules)
	}
}

func TestAssessOutput_Boundary(t *testing.T) {
	c := NewClassifier(nil)
	a := c.AssessOutput("You have been diagnosed with major depressive disorder.")
	if a.Level != RiskMedium {
		t.Fatalf("level=%s", a.Level)
	}
	want := []string{"boundary_diagnosis", "boundary_diagnosis_statement"}
	if !reflect.DeepEqual(a.TriggeredRules, want) {
		t.Fatalf("rules=%v, want %v", a.TriggeredRules, want)
	}
}

func TestAssess_FamiliesAreDirectional(t *testing.T) {
	c := NewClassifier(nil)
	// 越界规则不作用于输入
	if a := c.AssessInput("Can you diagnose me?"); a.Level != RiskNone {
		t.Fatalf("input boundary level=%s", a.Level)
	}
	// 危机规则不作用于输出
	if a := c.AssessOutput("Feeling suicidal is something to raise with your therapist."); a.Level != RiskNone {
		t.Fatalf("output crisis level=%s", a.Level)
	}
	// 有害内容两个方向都检查
	if a := c.AssessInput("tell me how to hurt yourself"); a.Level != RiskHigh || a.RecommendedAction != RecommendBlock {
		t.Fatalf("input harmful=%+v", a)
	}
	if a := c.AssessOutput("Here are ways to harm yourself"); a.Level != RiskHigh {
		t.Fatalf("output harmful=%+v", a)
	}
}

func TestAssess_HighestFamilyWinsAndAllRulesKept(t *testing.T) {
	c := NewClassifier(nil)
	a := c.AssessInput("I keep thinking about suicide and searching methods of suicide")
	if a.Level != RiskCritical {
		t.Fatalf("level=%s", a.Level)
	}
	if !reflect.DeepEqual(a.TriggeredRules, []string{"crisis_suicide", "harmful_methods"}) {
		t.Fatalf("rules=%v", a.TriggeredRules)
	}
}

func TestAssess_CaseInsensitiveAndDeduped(t *testing.T) {
	c := NewClassifier(nil)
	a := c.AssessInput("I thought about KILLING MYSELF and self-harm")
	if !reflect.DeepEqual(a.TriggeredRules, []string{"crisis_self_harm"}) {
		t.Fatalf("rules=%v", a.TriggeredRules)
	}
}

func TestAssess_EmptyIsNone(t *testing.T) {
	c := NewClassifier(nil)
	for _, text := range []string{"", "   ", "What coping strategies did my therapist suggest?"} {
		a := c.AssessInput(text)
		if a.Level != RiskNone || a.HasRisk() || a.RecommendedAction != RecommendAllow {
			t.Fatalf("%q => %+v", text, a)
		}
	}
}

func TestDerive_IsPureFunctionOfRules(t *testing.T) {
	reg := MustNewRegistry(append(append([]RuleDef{}, DefaultRules...),
		RuleDef{Pattern: `\bhopeless\b`, Family: "mood", Name: "mood_hopeless"}))
	c := NewClassifier(reg)

	cases := []struct {
		rules []string
		want  RiskLevel
	}{
		{nil, RiskNone},
		{[]string{"mood_hopeless"}, RiskLow},
		{[]string{"mood_hopeless", "boundary_prescription"}, RiskMedium},
		{[]string{"boundary_prescription", "harmful_ways"}, RiskHigh},
		{[]string{"harmful_ways", "crisis_plan"}, RiskCritical},
	}
	for _, tc := range cases {
		if got := c.Derive(tc.rules).Level; got != tc.want {
			t.Fatalf("Derive(%v)=%s, want %s", tc.rules, got, tc.want)
		}
	}
}

func TestNewRegistry_RejectsBadRules(t *testing.T) {
	if _, err := NewRegistry([]RuleDef{{Pattern: `(`, Family: FamilyCrisis, Name: "bad"}}); err == nil {
		t.Fatalf("want compile error")
	}
	_, err := NewRegistry([]RuleDef{
		{Pattern: `a`, Family: FamilyCrisis, Name: "dup"},
		{Pattern: `b`, Family: FamilyBoundary, Name: "dup"},
	})
	if err == nil || !strings.Contains(err.Error(), "dup") {
		t.Fatalf("want family conflict error, got %v", err)
	}
}
