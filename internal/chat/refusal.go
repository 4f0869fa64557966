package chat

// Category-aware refusals for off-topic queries. Rendered without any
// provider call, so rejecting is free and deterministic.
var refusals = map[string]string{
	"fiction":              "I stick to real-world hydroponics, so fictional characters and settings are outside my lane. Ask me about an actual grow and I'm all in.",
	"medical":              "I can't give medical or health advice. For anything affecting your health, please talk to a medical professional. I'm glad to help with plant health instead.",
	"controlled-substance": "I don't cover growing controlled substances. I'm happy to help with hydroponic vegetables, herbs, and ornamentals.",
	"personal":             "Personal-life advice is outside what I do. If there's a hydroponics question in there, ask it straight and I'll help.",
	"personification":      "Plants don't have feelings to discuss, but their real signals — leaf color, turgor, root health — tell a rich story. Ask me about those.",
	"political-religious":  "I keep politics and religion out of the grow room. Ask me about the growing itself and I'm happy to help.",
	"compound":             "Let's keep it to one hydroponics question at a time. Ask the growing part again on its own and I'll answer it.",
}

// defaultRefusal covers rejections without a category (stage 2 and 3).
const defaultRefusal = "That's outside hydroponics, which is all I cover. Ask me about nutrient solutions, pH and EC, lighting, system types, or plant troubleshooting."

// refusalFor picks the refusal text for a blocked category.
func refusalFor(category string) string {
	if text, ok := refusals[category]; ok {
		return text
	}
	return defaultRefusal
}
