package gemini

import "strings"

// RejectionCategory is a detected content-policy rejection reason. The
// mapping from category to localized message is a finite table, decoupled
// from the raw API text it was detected in.
type RejectionCategory int

const (
	RejectionGeneric RejectionCategory = iota
	RejectionImageSafety
	RejectionSexuallySuggestive
	RejectionHarmful
	RejectionViolent
	RejectionCannotGenerate
	RejectionPolicyViolation
)

var rejectionMessages = map[RejectionCategory]string{
	RejectionImageSafety:        "抱歉，您的请求可能违反了内容安全政策，无法生成或编辑图片。请尝试修改您的描述，提供更为安全、合规的内容。",
	RejectionSexuallySuggestive: "抱歉，我无法创建这张图片。我不能生成带有性暗示或促进有害刻板印象的内容。请提供其他描述。",
	RejectionHarmful:            "抱歉，我无法创建这张图片。我不能生成可能有害或危险的内容。请提供其他描述。",
	RejectionViolent:            "抱歉，我无法创建这张图片。我不能生成暴力或血腥的内容。请提供其他描述。",
	RejectionCannotGenerate:     "抱歉，我无法生成符合您描述的图片。请尝试其他描述。",
	RejectionPolicyViolation:    "抱歉，您的请求违反了内容政策，无法生成相关图片。请提供其他描述。",
	RejectionGeneric:            "抱歉，我无法创建这张图片。请尝试修改您的描述，提供其他内容。",
}

// RejectionMessage returns the localized user-facing message for a category
func RejectionMessage(cat RejectionCategory) string {
	if msg, ok := rejectionMessages[cat]; ok {
		return msg
	}
	return rejectionMessages[RejectionGeneric]
}

// categorizeRefusal inspects a model refusal text and maps it to a category
func categorizeRefusal(text string) RejectionCategory {
	switch {
	case strings.Contains(text, "sexually suggestive"):
		return RejectionSexuallySuggestive
	case strings.Contains(text, "harmful") || strings.Contains(text, "dangerous"):
		return RejectionHarmful
	case strings.Contains(text, "violent"):
		return RejectionViolent
	case strings.Contains(text, "against our content policy"):
		return RejectionPolicyViolation
	case strings.Contains(text, "cannot generate") || strings.Contains(text, "can't generate"):
		return RejectionCannotGenerate
	default:
		return RejectionGeneric
	}
}

// isRefusalText reports whether a text-only reply reads as a content refusal
func isRefusalText(text string) bool {
	return strings.Contains(text, "I'm unable to create this image") ||
		strings.Contains(text, "cannot generate") ||
		strings.Contains(text, "can't generate") ||
		strings.Contains(text, "against our content policy")
}
