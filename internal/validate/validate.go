// Package validate provides the pure validators applied to intake answers.
//
// Every validator is a total function over models.Input: malformed or
// unparseable input yields an invalid verdict with a reason, never an error or
// panic. Validators carry no session state, so the same input always produces
// the same verdict wherever in the flow it is checked.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nimblefin/loanflow/internal/models"
)

// Rule names used by the question catalog to reference validators.
const (
	RuleFullName    = "full_name"
	RuleGender      = "gender"
	RuleAdultDOB    = "adult_dob"
	RulePAN         = "pan"
	RulePinCode     = "pin_code"
	RuleIncome      = "income"
	RuleEmployment  = "employment_type"
	RuleCityName    = "city_name"
	RuleCompanyName = "company_name"
	RuleAddressLine = "address_line"
	RuleEmail       = "email"
	RuleAttachment  = "attachment"
)

// Func maps a raw answer to a verdict.
type Func func(models.Input) models.Verdict

var (
	namePartRe = regexp.MustCompile(`^[A-Za-z]+$`)
	panRe      = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]{1}$`)
	pinCodeRe  = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	digitsRe   = regexp.MustCompile(`^\d+$`)
	cityRe     = regexp.MustCompile(`^[A-Za-z\s]{2,50}$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Income bounds, inclusive.
const (
	MinMonthlyIncome = 10000
	MaxMonthlyIncome = 10000000
)

// MinimumAge is the age floor for the date-of-birth rule, in whole years.
const MinimumAge = 18

// rejectFile builds the standard rejection for a file payload submitted to a
// text-expecting validator.
func rejectFile(field string) models.Verdict {
	return models.InvalidVerdict(fmt.Sprintf("Expected text for %s, not a file attachment", field))
}

// FullName requires at least a first and last name, the first two parts
// letters-only and at least 2 characters each.
func FullName(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("name")
	}
	parts := strings.Fields(in.Text)
	if len(parts) < 2 {
		return models.InvalidVerdict("Please enter both first name and last name")
	}
	if !namePartRe.MatchString(parts[0]) || !namePartRe.MatchString(parts[1]) {
		return models.InvalidVerdict("Names should only contain letters")
	}
	if len(parts[0]) < 2 || len(parts[1]) < 2 {
		return models.InvalidVerdict("Each name should be at least 2 characters long")
	}
	return models.ValidVerdict()
}

// Gender accepts male, female, or other, case-insensitively.
func Gender(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("gender")
	}
	switch strings.ToLower(in.Text) {
	case "male", "female", "other":
		return models.ValidVerdict()
	default:
		return models.InvalidVerdict("Please enter Male, Female, or Other")
	}
}

// AdultDOBAt builds the date-of-birth validator against an injectable clock,
// so whole-year age arithmetic is testable with a fixed "today".
func AdultDOBAt(now func() time.Time) Func {
	return func(in models.Input) models.Verdict {
		if in.IsFile() {
			return rejectFile("date of birth")
		}
		birth, err := time.Parse("2006-01-02", strings.TrimSpace(in.Text))
		if err != nil {
			return models.InvalidVerdict("Please enter a valid date in YYYY-MM-DD format")
		}
		today := now()
		age := today.Year() - birth.Year()
		if int(today.Month()) < int(birth.Month()) ||
			(today.Month() == birth.Month() && today.Day() < birth.Day()) {
			age--
		}
		if age < MinimumAge {
			return models.InvalidVerdict(fmt.Sprintf("You must be at least %d years old to apply", MinimumAge))
		}
		return models.ValidVerdict()
	}
}

// AdultDOB validates date of birth against the wall clock.
var AdultDOB = AdultDOBAt(time.Now)

// PAN requires exactly 5 uppercase letters, 4 digits, and 1 uppercase letter.
func PAN(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("PAN")
	}
	if !panRe.MatchString(in.Text) {
		return models.InvalidVerdict("Please enter a valid PAN number (e.g., ABCDE1234F)")
	}
	return models.ValidVerdict()
}

// PinCode requires exactly 6 digits with a non-zero first digit.
func PinCode(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("PIN code")
	}
	if !pinCodeRe.MatchString(in.Text) {
		return models.InvalidVerdict("Please enter a valid 6-digit PIN code")
	}
	return models.ValidVerdict()
}

// Income requires a digits-only amount between 10,000 and 1,00,00,000 inclusive.
func Income(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("salary")
	}
	if !digitsRe.MatchString(in.Text) {
		return models.InvalidVerdict("Please enter a valid salary between 10,000 and 1,00,00,000")
	}
	amount, err := strconv.Atoi(in.Text)
	if err != nil || amount < MinMonthlyIncome || amount > MaxMonthlyIncome {
		return models.InvalidVerdict("Please enter a valid salary between 10,000 and 1,00,00,000")
	}
	return models.ValidVerdict()
}

// Employment accepts salaried or self-employed, case-insensitively.
func Employment(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("employment type")
	}
	switch strings.ToLower(in.Text) {
	case "salaried", "self-employed":
		return models.ValidVerdict()
	default:
		return models.InvalidVerdict("Please enter either Salaried or Self-employed")
	}
}

// CityName accepts letters and spaces only, 2-50 characters. Used for city
// and state names.
func CityName(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("city or state name")
	}
	if !cityRe.MatchString(in.Text) {
		return models.InvalidVerdict("Please enter a valid name (2-50 characters, letters only)")
	}
	return models.ValidVerdict()
}

// LengthBetween builds a free-text length-bound validator for the given field.
func LengthBetween(field string, min, max int) Func {
	return func(in models.Input) models.Verdict {
		if in.IsFile() {
			return rejectFile(field)
		}
		n := len(strings.TrimSpace(in.Text))
		if n < min || n > max {
			return models.InvalidVerdict(fmt.Sprintf("Please enter a %s between %d and %d characters", field, min, max))
		}
		return models.ValidVerdict()
	}
}

// CompanyName bounds company names to 2-100 characters.
var CompanyName = LengthBetween("company name", 2, 100)

// AddressLine bounds address lines to 5-100 characters.
var AddressLine = LengthBetween("address line", 5, 100)

// Email requires a local@domain.tld shape.
func Email(in models.Input) models.Verdict {
	if in.IsFile() {
		return rejectFile("email")
	}
	if !emailRe.MatchString(strings.TrimSpace(in.Text)) {
		return models.InvalidVerdict("Please enter a valid email address")
	}
	return models.ValidVerdict()
}

// Attachment requires a file payload; only file-kind questions resolve to it.
func Attachment(in models.Input) models.Verdict {
	if !in.IsFile() {
		return models.InvalidVerdict("Please upload a document for this step")
	}
	if in.File.URL == "" {
		return models.InvalidVerdict("The uploaded document could not be stored, please try again")
	}
	return models.ValidVerdict()
}

// Registry is the named validator table keyed by rule name. Built per flow so
// the date-of-birth rule can carry the flow's clock.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds the full validator table using the given clock for
// age arithmetic.
func NewRegistry(now func() time.Time) *Registry {
	return &Registry{funcs: map[string]Func{
		RuleFullName:    FullName,
		RuleGender:      Gender,
		RuleAdultDOB:    AdultDOBAt(now),
		RulePAN:         PAN,
		RulePinCode:     PinCode,
		RuleIncome:      Income,
		RuleEmployment:  Employment,
		RuleCityName:    CityName,
		RuleCompanyName: CompanyName,
		RuleAddressLine: AddressLine,
		RuleEmail:       Email,
		RuleAttachment:  Attachment,
	}}
}

// Get retrieves the validator for a rule name.
func (r *Registry) Get(rule string) (Func, bool) {
	fn, ok := r.funcs[rule]
	return fn, ok
}

// Validate applies the named rule to the input. Unknown rules yield an
// invalid verdict rather than a crash, matching the total-function contract.
func (r *Registry) Validate(rule string, in models.Input) models.Verdict {
	fn, ok := r.funcs[rule]
	if !ok {
		return models.InvalidVerdict(fmt.Sprintf("no validator registered for rule %q", rule))
	}
	return fn(in)
}
