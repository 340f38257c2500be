package safety

import (
	"strings"
)

// RiskLevel 全序风险等级 NONE < LOW < MEDIUM < HIGH < CRITICAL
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "none"
	}
}

// MarshalText 以小写名称序列化
func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// 推荐动作标签
const (
	RecommendAllow    = "allow"
	RecommendModify   = "modify"
	RecommendBlock    = "block"
	RecommendEscalate = "escalate"
)

// Assessment 单段文本的风险评估，完全由 TriggeredRules 推导
type Assessment struct {
	Level              RiskLevel `json:"level"`
	TriggeredRules     []string  `json:"triggered_rules"`
	RequiresEscalation bool      `json:"requires_escalation"`
	RecommendedAction  string    `json:"recommended_action"`
}

// HasRisk 是否命中任意规则
func (a Assessment) HasRisk() bool {
	return len(a.TriggeredRules) > 0
}

// Classifier 基于规则表的无状态分类器
type Classifier struct {
	registry *Registry
}

// NewClassifier registry 为 nil 时使用内置规则
func NewClassifier(registry *Registry) *Classifier {
	if registry == nil {
		registry = MustNewRegistry(DefaultRules)
	}
	return &Classifier{registry: registry}
}

// AssessInput 检查危机与有害内容规则
func (c *Classifier) AssessInput(text string) Assessment {
	return c.assess(text, FamilyCrisis, FamilyHarmful)
}

// AssessOutput 检查越界与有害内容规则
func (c *Classifier) AssessOutput(text string) Assessment {
	return c.assess(text, FamilyBoundary, FamilyHarmful)
}

func (c *Classifier) assess(text string, families ...Family) Assessment {
	if strings.TrimSpace(text) == "" {
		return c.Derive(nil)
	}

	var triggered []string
	seen := make(map[string]struct{})
	for _, f := range families {
		for _, rule := range c.registry.Rules(f) {
			if _, dup := seen[rule.Name]; dup {
				continue
			}
			if rule.Match(text) {
				seen[rule.Name] = struct{}{}
				triggered = append(triggered, rule.Name)
			}
		}
	}
	return c.Derive(triggered)
}

// Derive 由命中规则名推导等级：crisis > harmful > boundary > 其它
func (c *Classifier) Derive(triggered []string) Assessment {
	out := Assessment{
		Level:             RiskNone,
		TriggeredRules:    triggered,
		RecommendedAction: RecommendAllow,
	}
	if len(triggered) == 0 {
		out.TriggeredRules = []string{}
		return out
	}

	present := make(map[Family]bool, 3)
	for _, name := range triggered {
		f, _ := c.registry.FamilyOf(name)
		present[f] = true
	}

	switch {
	case present[FamilyCrisis]:
		out.Level = RiskCritical
		out.RequiresEscalation = true
		out.RecommendedAction = RecommendEscalate
	case present[FamilyHarmful]:
		out.Level = RiskHigh
		out.RecommendedAction = RecommendBlock
	case present[FamilyBoundary]:
		out.Level = RiskMedium
		out.RecommendedAction = RecommendModify
	default:
		out.Level = RiskLow
	}
	return out
}
