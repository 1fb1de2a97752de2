package gemini

import (
	"fmt"
	"strings"
	"time"

	"github.com/leofalp/chatkeeper/providers/ai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// requestToGemini converts a generic ChatRequest to Gemini's format.
func requestToGemini(request ai.ChatRequest) generateContentRequest {
	req := generateContentRequest{
		Contents:         buildContents(request.Turns),
		GenerationConfig: buildGenerationConfig(request.GenerationConfig),
	}

	if request.Instruction != "" {
		req.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: request.Instruction}},
		}
	}

	return req
}

// buildContents maps turns to Gemini contents. Requester turns become "user",
// responder turns become "model".
func buildContents(turns []ai.Turn) []content {
	contents := make([]content, 0, len(turns))
	for _, t := range turns {
		role := roleUser
		if t.Party == ai.PartyResponder {
			role = roleModel
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: t.Text}},
		})
	}
	return contents
}

func buildGenerationConfig(cfg *ai.GenerationConfig) *generationConfig {
	if cfg == nil {
		return nil
	}

	genCfg := &generationConfig{}
	empty := true

	if cfg.Temperature != nil {
		temp := float64(*cfg.Temperature)
		genCfg.Temperature = &temp
		empty = false
	}
	if cfg.MaxOutputTokens > 0 {
		maxTokens := cfg.MaxOutputTokens
		genCfg.MaxOutputTokens = &maxTokens
		empty = false
	}

	if empty {
		return nil
	}
	return genCfg
}

// geminiToGeneric converts a Gemini response to the generic ChatResponse.
// A response without candidates yields empty content and, when the prompt was
// blocked, the block reason in Refusal.
func geminiToGeneric(resp generateContentResponse) *ai.ChatResponse {
	result := &ai.ChatResponse{
		Id:    resp.ResponseID,
		Model: resp.ModelVersion,
	}
	if result.Id == "" {
		result.Id = fmt.Sprintf("gemini-%d", time.Now().UnixNano())
	}

	if resp.UsageMetadata != nil {
		result.Usage = &ai.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	if len(resp.Candidates) == 0 {
		result.FinishReason = "error"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			result.FinishReason = "content_filter"
			result.Refusal = resp.PromptFeedback.BlockReason
		}
		return result
	}

	c := resp.Candidates[0]
	result.FinishReason = mapFinishReason(c.FinishReason)

	if c.Content != nil {
		var textParts []string
		for _, p := range c.Content.Parts {
			if p.Text != "" && !p.Thought {
				textParts = append(textParts, p.Text)
			}
		}
		result.Content = strings.Join(textParts, "\n")
	}

	return result
}

// mapFinishReason converts Gemini finish reason to ai.ChatResponse finish reason.
func mapFinishReason(geminiReason string) string {
	switch geminiReason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	default:
		return "stop"
	}
}
