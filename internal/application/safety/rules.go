// Package safety 实现风险分级与输入/输出护栏策略
package safety

import (
	"fmt"
	"regexp"
)

// Family 规则族
type Family string

const (
	FamilyCrisis   Family = "crisis"
	FamilyHarmful  Family = "harmful"
	FamilyBoundary Family = "boundary"
)

// RuleDef 声明式规则：(pattern, family, name)
type RuleDef struct {
	Pattern string
	Family  Family
	Name    string
}

// Rule 编译后的规则
type Rule struct {
	Family Family
	Name   string
	re     *regexp.Regexp
}

// Match 是否命中
func (r Rule) Match(text string) bool {
	return r.re.MatchString(text)
}

// DefaultRules 内置规则表，同一族内按声明顺序匹配
var DefaultRules = []RuleDef{
	// 危机：自伤、自杀意念、伤害他人意图（仅输入）
	{Pattern: `\b(suicid(?:e|al|ality))\b`, Family: FamilyCrisis, Name: "crisis_suicide"},
	{Pattern: `\b(kill(?:ing)?\s+(?:my)?self)\b`, Family: FamilyCrisis, Name: "crisis_self_harm"},
	{Pattern: `\b(want(?:ing)?\s+to\s+die)\b`, Family: FamilyCrisis, Name: "crisis_want_to_die"},
	{Pattern: `\b(end(?:ing)?\s+(?:my|it\s+all|everything))\b`, Family: FamilyCrisis, Name: "crisis_end_it"},
	{Pattern: `\b(self[- ]?harm(?:ing)?)\b`, Family: FamilyCrisis, Name: "crisis_self_harm"},
	{Pattern: `\b(cut(?:ting)?\s+(?:my)?self)\b`, Family: FamilyCrisis, Name: "crisis_self_harm_cutting"},
	{Pattern: `\b(overdos(?:e|ing))\b`, Family: FamilyCrisis, Name: "crisis_overdose"},
	{Pattern: `\b(homicid(?:e|al))\b`, Family: FamilyCrisis, Name: "crisis_homicide"},
	{Pattern: `\b(kill(?:ing)?\s+(?:some(?:one|body)|them|him|her))\b`, Family: FamilyCrisis, Name: "crisis_harm_others"},
	{Pattern: `\b(plan(?:ning)?\s+to\s+(?:hurt|harm|kill))\b`, Family: FamilyCrisis, Name: "crisis_plan"},

	// 越界：诊断、处方、否定专业人员（仅输出）
	{Pattern: `\b(diagnos(?:e|is|ed|ing))\b`, Family: FamilyBoundary, Name: "boundary_diagnosis"},
	{Pattern: `\b(prescrib(?:e|ing|ed))\b`, Family: FamilyBoundary, Name: "boundary_prescription"},
	{Pattern: `\b(you\s+(?:have|suffer\s+from|are\s+(?:diagnosed|suffering)))\b`, Family: FamilyBoundary, Name: "boundary_diagnosis_statement"},
	{Pattern: `\b(you\s+should\s+(?:take|stop\s+taking)\s+(?:your\s+)?(?:medic(?:ation|ine)))\b`, Family: FamilyBoundary, Name: "boundary_medication_advice"},
	{Pattern: `\b(stop\s+(?:seeing|going\s+to)\s+(?:your\s+)?(?:therapist|doctor))\b`, Family: FamilyBoundary, Name: "boundary_undermine_provider"},

	// 有害内容：自伤方法（输入输出均检查）
	{Pattern: `\b(how\s+to\s+(?:kill|hurt|harm)\s+(?:your)?self)\b`, Family: FamilyHarmful, Name: "harmful_instructions"},
	{Pattern: `\b(methods?\s+(?:of|for)\s+(?:suicide|self[- ]?harm))\b`, Family: FamilyHarmful, Name: "harmful_methods"},
	{Pattern: `\b(ways\s+to\s+(?:kill|hurt|harm)\s+(?:your)?self)\b`, Family: FamilyHarmful, Name: "harmful_ways"},
}

// Registry 按族分组的已编译规则，构建后只读
type Registry struct {
	byFamily map[Family][]Rule
	families map[string]Family
}

// NewRegistry 编译规则表，统一大小写不敏感
func NewRegistry(defs []RuleDef) (*Registry, error) {
	r := &Registry{
		byFamily: make(map[Family][]Rule),
		families: make(map[string]Family),
	}
	for _, d := range defs {
		if d.Name == "" || d.Pattern == "" {
			return nil, fmt.Errorf("safety rule requires pattern and name: %+v", d)
		}
		if prev, ok := r.families[d.Name]; ok && prev != d.Family {
			return nil, fmt.Errorf("rule %q declared in families %s and %s", d.Name, prev, d.Family)
		}
		re, err := regexp.Compile(`(?i)` + d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", d.Name, err)
		}
		r.byFamily[d.Family] = append(r.byFamily[d.Family], Rule{Family: d.Family, Name: d.Name, re: re})
		r.families[d.Name] = d.Family
	}
	return r, nil
}

// MustNewRegistry 编译失败时 panic，用于内置规则
func MustNewRegistry(defs []RuleDef) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

// Rules 返回某族规则
func (r *Registry) Rules(f Family) []Rule {
	return r.byFamily[f]
}

// FamilyOf 返回规则名所属的族
func (r *Registry) FamilyOf(name string) (Family, bool) {
	f, ok := r.families[name]
	return f, ok
}
