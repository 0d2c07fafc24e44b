package guardrail

import "strings"

var escalationResponses = map[string]string{
	ReasonPricing: "I understand you have questions about pricing. " +
		"I've created ticket {ticket} and a member of our sales team " +
		"will follow up within 2 business hours with detailed pricing information.",
	ReasonRefund: "I understand you'd like to discuss a refund. " +
		"I've created ticket {ticket} and our billing team " +
		"will review your request within 1 business day.",
	ReasonLegal: "I've noted your concern and created ticket {ticket}. " +
		"A senior team member will contact you within 4 hours " +
		"to address this matter directly.",
	ReasonHumanRequest: "Of course! I've created ticket {ticket} and " +
		"a customer success manager will reach out to you shortly, " +
		"typically within 15 minutes during business hours.",
	ReasonDataSecurity: "I take data concerns very seriously. I've created a high-priority " +
		"ticket {ticket} and our technical team will investigate immediately. " +
		"You should hear back within 30 minutes.",
	ReasonAbusiveLanguage: "I understand this is frustrating, and I'm sorry for the experience. " +
		"I've created ticket {ticket} and I'm connecting you with a team member " +
		"who can give this the attention it deserves. They'll reach out within 1 hour.",
	ReasonNegativeSentiment: "I can see this has been a difficult experience, and I apologize. " +
		"I've created ticket {ticket} and I'm connecting you with a specialist " +
		"who can help resolve this. They'll follow up shortly.",
}

// ResponseFor renders the customer-facing escalation message for a reason.
// Unknown reasons fall back to the human-request wording.
func ResponseFor(reason, ticketNumber string) string {
	template, ok := escalationResponses[reason]
	if !ok {
		template = escalationResponses[ReasonHumanRequest]
	}
	return strings.ReplaceAll(template, "{ticket}", ticketNumber)
}
