package flow

import (
	"testing"
	"time"

	"github.com/nimblefin/loanflow/internal/models"
	"github.com/nimblefin/loanflow/internal/validate"
)

func TestQuestionCatalogShape(t *testing.T) {
	questions := Questions()
	if len(questions) != 16 {
		t.Fatalf("catalog has %d questions, want 16", len(questions))
	}

	seen := make(map[string]bool)
	for i, q := range questions {
		if q.ID == "" || q.Prompt == "" || q.Rule == "" || q.Section == "" {
			t.Errorf("question %d is incomplete: %+v", i, q)
		}
		if seen[q.ID] {
			t.Errorf("duplicate question ID %q", q.ID)
		}
		seen[q.ID] = true
	}

	if questions[0].ID != "name" {
		t.Errorf("first question is %q, want name", questions[0].ID)
	}
	if last := questions[len(questions)-1]; last.ID != "pincode" {
		t.Errorf("last question is %q, want pincode", last.ID)
	}
}

func TestQuestionSectionsAreContiguous(t *testing.T) {
	questions := Questions()
	want := []string{SectionIdentity, SectionEmployment, SectionOfficeAddress, SectionContact}

	var order []string
	for _, q := range questions {
		if len(order) == 0 || order[len(order)-1] != q.Section {
			order = append(order, q.Section)
		}
	}
	if len(order) != len(want) {
		t.Fatalf("section order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("section %d = %q, want %q", i, order[i], want[i])
		}
	}

	for _, section := range want {
		if sectionMessages[section] == "" {
			t.Errorf("section %q has no celebration message", section)
		}
	}
}

func TestEveryRuleResolvesInRegistry(t *testing.T) {
	registry := validate.NewRegistry(time.Now)
	for _, q := range Questions() {
		if _, ok := registry.Get(q.Rule); !ok {
			t.Errorf("question %q references unknown rule %q", q.ID, q.Rule)
		}
	}
}

func TestOnlyPayslipIsFileKind(t *testing.T) {
	for _, q := range Questions() {
		isFile := q.Kind == models.InputKindFile
		if isFile != (q.ID == "payslip") {
			t.Errorf("question %q has kind %q", q.ID, q.Kind)
		}
		if q.ID == "payslip" && q.Rule != validate.RuleAttachment {
			t.Errorf("payslip uses rule %q", q.Rule)
		}
	}
}

func TestQuestionsReturnsACopy(t *testing.T) {
	first := Questions()
	first[0].Prompt = "mutated"
	if Questions()[0].Prompt == "mutated" {
		t.Error("Questions exposes the underlying catalog")
	}
}
