package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention keys for generation provider spans.
const (
	GenAISystem       = attribute.Key("gen_ai.system")        // e.g. "openai", "ollama"
	GenAIRequestModel = attribute.Key("gen_ai.request.model") // e.g. "gpt-4o-mini"

	GenAIRequestTemperature   = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens     = attribute.Key("gen_ai.request.max_tokens")
	GenAIRequestStopSequences = attribute.Key("gen_ai.request.stop_sequences")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseID           = attribute.Key("gen_ai.response.id")
)

// Pipeline attribute keys shared by the decision stages.
const (
	EngageTenant   = attribute.Key("engage.tenant_id")
	EngageAccount  = attribute.Key("engage.account_id")
	EngagePlatform = attribute.Key("engage.platform")
	EngageStrategy = attribute.Key("engage.strategy")
	EngagePlanID   = attribute.Key("engage.plan_id")
	EngageRuleID   = attribute.Key("engage.rule_id")
)

// LLMRequestAttributes creates standard attributes for generation requests.
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int, stop []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
	if len(stop) > 0 {
		attrs = append(attrs, GenAIRequestStopSequences.StringSlice(stop))
	}
	return attrs
}

// LLMUsageAttributes creates attributes for token usage
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}
