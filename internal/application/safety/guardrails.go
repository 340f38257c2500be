package safety

import (
	"context"
	"strings"

	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
)

// Action 护栏动作
type Action string

const (
	ActionAllow    Action = "allow"
	ActionModify   Action = "modify"
	ActionBlock    Action = "block"
	ActionEscalate Action = "escalate"
)

// Direction 检查方向
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// 固定文案
const (
	CrisisResources = "**If you or someone you know is in crisis, please reach out for help:**\n" +
		"- **988 Suicide & Crisis Lifeline**: Call or text **988** (US)\n" +
		"- **Crisis Text Line**: Text **HOME** to **741741**\n" +
		"- **Emergency**: Call **911**\n\n---\n\n"

	BoundaryDisclaimer = "\n\n---\n*Note: This AI assistant cannot provide medical diagnoses, " +
		"prescriptions, or clinical advice. Please consult your therapist or healthcare " +
		"provider for professional guidance.*"

	InputRefusal = "I'm not able to help with that request. If you're in distress, " +
		"please reach out to your therapist or call 988 (Suicide & Crisis Lifeline)."

	OutputDeferral = "I generated a response that may not be appropriate. Please consult " +
		"your therapist or healthcare provider for guidance on this topic."
)

// Result 护栏结果；ModifiedText 仅在 MODIFY 时非空
type Result struct {
	Action       Action     `json:"action"`
	Assessment   Assessment `json:"assessment"`
	ModifiedText string     `json:"modified_text,omitempty"`
}

// DecideInput 输入方向：HIGH 拦截，CRITICAL 升级，其余放行
func DecideInput(a Assessment) Result {
	res := Result{Action: ActionAllow, Assessment: a}
	switch a.Level {
	case RiskHigh:
		res.Action = ActionBlock
	case RiskCritical:
		res.Action = ActionEscalate
	}
	return res
}

// DecideOutput 输出方向：MEDIUM 追加免责声明，HIGH/CRITICAL 拦截
func DecideOutput(a Assessment, text string) Result {
	res := Result{Action: ActionAllow, Assessment: a}
	switch a.Level {
	case RiskMedium:
		res.Action = ActionModify
		res.ModifiedText = text + BoundaryDisclaimer
	case RiskHigh, RiskCritical:
		res.Action = ActionBlock
	}
	return res
}

// PrependCrisisResources 在文本前加入危机热线信息
func PrependCrisisResources(text string) string {
	return CrisisResources + text
}

// StripCrisisResources 去掉 PrependCrisisResources 加入的前缀，其余文本原样返回
func StripCrisisResources(text string) string {
	return strings.TrimPrefix(text, CrisisResources)
}

// Guardrails 分类器与决策表的组合
type Guardrails struct {
	classifier *Classifier
}

func NewGuardrails(classifier *Classifier) *Guardrails {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &Guardrails{classifier: classifier}
}

// CheckInput 评估用户输入
func (g *Guardrails) CheckInput(ctx context.Context, text string) Result {
	res := DecideInput(g.classifier.AssessInput(text))
	observe(ctx, DirectionInput, res)
	return res
}

// CheckOutput 评估模型输出
func (g *Guardrails) CheckOutput(ctx context.Context, text string) Result {
	res := DecideOutput(g.classifier.AssessOutput(text), text)
	observe(ctx, DirectionOutput, res)
	return res
}

func observe(ctx context.Context, dir Direction, res Result) {
	metrics.GuardrailActionsTotal.WithLabelValues(string(dir), string(res.Action)).Inc()
	for _, name := range res.Assessment.TriggeredRules {
		metrics.RiskRulesTriggeredTotal.WithLabelValues(name).Inc()
	}
	if res.Action == ActionAllow {
		return
	}
	// 只记录规则名，不记录原文
	logger.Warn(ctx, "guardrail triggered",
		"direction", string(dir),
		"action", string(res.Action),
		"risk_level", res.Assessment.Level.String(),
		"rules", res.Assessment.TriggeredRules,
	)
}
