// Package token provides the heuristic token estimator used for cost
// accounting. It deliberately avoids vendor tokenizers: one token per four
// bytes of text is close enough for a price estimate, and a flat surcharge
// stands in for attachment payloads.
package token

import "github.com/KuzeyMurathan/shadchat/internal/model"

// AttachmentTokens is the flat per-attachment surcharge. Vendor-side token
// counts for images and documents vary wildly; a fixed thousand keeps the
// estimate in the right order of magnitude.
const AttachmentTokens = 1000

// Estimate returns ceil(len(text)/4).
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

// EstimateMessage counts a message's content plus its attachment surcharge.
func EstimateMessage(m *model.Message) int {
	return Estimate(m.Content) + AttachmentTokens*len(m.Attachments)
}

// EstimateMessages sums EstimateMessage over an outbound history.
func EstimateMessages(msgs []*model.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(m)
	}
	return total
}
