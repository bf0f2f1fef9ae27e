// Package flow implements the conversational intake engine for LoanFlow.
package flow

import (
	"github.com/nimblefin/loanflow/internal/models"
	"github.com/nimblefin/loanflow/internal/validate"
)

// Section labels partitioning the question catalog into contiguous runs.
const (
	SectionIdentity      = "identity"
	SectionEmployment    = "employment"
	SectionOfficeAddress = "office_address"
	SectionContact       = "contact"
)

// questionCatalog is the ordered, immutable question sequence. Append at
// design time only; the engine never inserts or removes questions at runtime.
var questionCatalog = []models.QuestionDefinition{
	{
		ID:          "name",
		Prompt:      "Hello! I'm here to help you with your personal loan application. First, could you please tell me your name?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleFullName,
		Placeholder: "Enter your full name",
		Section:     SectionIdentity,
	},
	{
		ID:          "gender",
		Prompt:      "What is your gender?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleGender,
		Placeholder: "Male/Female/Other",
		Section:     SectionIdentity,
	},
	{
		ID:          "dob",
		Prompt:      "Please enter your date of birth (YYYY-MM-DD):",
		Kind:        models.InputKindDate,
		Rule:        validate.RuleAdultDOB,
		Placeholder: "YYYY-MM-DD",
		Section:     SectionIdentity,
	},
	{
		ID:          "pan",
		Prompt:      "Please provide your PAN card number:",
		Kind:        models.InputKindText,
		Rule:        validate.RulePAN,
		Placeholder: "ABCDE1234F",
		Section:     SectionIdentity,
	},
	{
		ID:          "employment",
		Prompt:      "What is your employment type?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleEmployment,
		Placeholder: "Salaried/Self-employed",
		Section:     SectionEmployment,
	},
	{
		ID:          "company_name",
		Prompt:      "Which company do you work for?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleCompanyName,
		Placeholder: "Enter your company name",
		Section:     SectionEmployment,
	},
	{
		ID:          "salary",
		Prompt:      "What is your net monthly salary?",
		Kind:        models.InputKindNumber,
		Rule:        validate.RuleIncome,
		Placeholder: "Enter amount in INR",
		Section:     SectionEmployment,
	},
	{
		ID:          "payslip",
		Prompt:      "Please upload your latest payslip:",
		Kind:        models.InputKindFile,
		Rule:        validate.RuleAttachment,
		Placeholder: "Attach a PDF or image",
		Section:     SectionEmployment,
	},
	{
		ID:          "office_address_line1",
		Prompt:      "Now a few details about your workplace. What is your office address (line 1)?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleAddressLine,
		Placeholder: "Building, street",
		Section:     SectionOfficeAddress,
	},
	{
		ID:          "office_address_line2",
		Prompt:      "And the second line of the office address?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleAddressLine,
		Placeholder: "Area, landmark",
		Section:     SectionOfficeAddress,
	},
	{
		ID:          "office_city",
		Prompt:      "Which city is your office in?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleCityName,
		Placeholder: "Enter city name",
		Section:     SectionOfficeAddress,
	},
	{
		ID:          "office_state",
		Prompt:      "Which state is that in?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleCityName,
		Placeholder: "Enter state name",
		Section:     SectionOfficeAddress,
	},
	{
		ID:          "office_pincode",
		Prompt:      "What is the office PIN code?",
		Kind:        models.InputKindText,
		Rule:        validate.RulePinCode,
		Placeholder: "Enter 6-digit PIN code",
		Section:     SectionOfficeAddress,
	},
	{
		ID:          "office_email",
		Prompt:      "Almost done! Please share your official work email address:",
		Kind:        models.InputKindEmail,
		Rule:        validate.RuleEmail,
		Placeholder: "you@company.com",
		Section:     SectionContact,
	},
	{
		ID:          "city",
		Prompt:      "Which city do you live in?",
		Kind:        models.InputKindText,
		Rule:        validate.RuleCityName,
		Placeholder: "Enter city name",
		Section:     SectionContact,
	},
	{
		ID:          "pincode",
		Prompt:      "Finally, please enter your residential PIN code:",
		Kind:        models.InputKindText,
		Rule:        validate.RulePinCode,
		Placeholder: "Enter 6-digit PIN code",
		Section:     SectionContact,
	},
}

// Questions returns a copy of the full ordered question catalog.
func Questions() []models.QuestionDefinition {
	out := make([]models.QuestionDefinition, len(questionCatalog))
	copy(out, questionCatalog)
	return out
}

// sectionMessages are the celebration texts shown when a section completes.
var sectionMessages = map[string]string{
	SectionIdentity:      "🎉 Identity details done, great start!",
	SectionEmployment:    "🎉 Employment details complete, you're making great progress!",
	SectionOfficeAddress: "🎉 Office address captured, nearly there!",
	SectionContact:       "🎉 Contact details verified!",
}

// CompletionMessage is the final bot message once every question is answered.
const CompletionMessage = "Thank you for providing all the information! We'll review your application and get back to you soon. Feel free to ask me anything about your application."

// FinalCelebrationMessage accompanies the terminal celebration event.
const FinalCelebrationMessage = "🎉 Congratulations, your application is complete!"

// sectionAt returns the section tag for question index i, or "" when i is
// outside the catalog. Derived purely from the definitions so celebration
// logic cannot drift from the question order.
func sectionAt(questions []models.QuestionDefinition, i int) string {
	if i < 0 || i >= len(questions) {
		return ""
	}
	return questions[i].Section
}
