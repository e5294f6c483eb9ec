package model

import (
	"fmt"
	"strings"
)

// PromptVersion selects the prompt template used for answer generation.
// The set is closed: adding a version means adding a constant and its
// template pair below.
type PromptVersion int

const (
	// PromptVersionBaseline is the plain question answering template
	PromptVersionBaseline PromptVersion = 1
	// PromptVersionStrict instructs the model to decline when the context is
	// insufficient. This is the default.
	PromptVersionStrict PromptVersion = 2
)

// InsufficientInformationAnswer is the canonical refusal emitted when no
// relevant context is available for a question.
const InsufficientInformationAnswer = "I don't have enough information to answer that based on the provided policy documents."

// NoContextMarker is passed into the prompt in place of retrieved context
// when nothing relevant was found.
const NoContextMarker = "[no relevant context found]"

// ParsePromptVersion converts a CLI/config integer into a PromptVersion
func ParsePromptVersion(v int) (PromptVersion, error) {
	switch PromptVersion(v) {
	case PromptVersionBaseline:
		return PromptVersionBaseline, nil
	case PromptVersionStrict:
		return PromptVersionStrict, nil
	default:
		return 0, fmt.Errorf("unknown prompt version %d (use 1 or 2)", v)
	}
}

// String implements fmt.Stringer
func (v PromptVersion) String() string {
	switch v {
	case PromptVersionBaseline:
		return "v1-baseline"
	case PromptVersionStrict:
		return "v2-strict"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// SystemPrompt returns the system message for the version
func (v PromptVersion) SystemPrompt() string {
	switch v {
	case PromptVersionStrict:
		return strings.TrimSpace(`
You are an assistant answering questions about company policy documents.
Answer ONLY from the provided context. If the context does not contain the
information needed to answer the question, reply exactly:
"` + InsufficientInformationAnswer + `"
Do not use prior knowledge. Do not speculate. Quote policy wording where possible.`)
	default:
		return strings.TrimSpace(`
You are an assistant answering questions about company policy documents.
Use the provided context to answer the question as helpfully as possible.`)
	}
}

// UserPrompt combines the question and the retrieved context into the user message
func (v PromptVersion) UserPrompt(question, contextText string) string {
	if contextText == "" {
		contextText = NoContextMarker
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}
