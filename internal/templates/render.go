package templates

import (
	"regexp"
	"strings"

	"schoolcomms/internal/models"
)

// tagPattern matches {{tag}} placeholders, tolerating inner whitespace.
var tagPattern = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Tags lists every placeholder dispatch substitutes before sending.
var Tags = []string{
	"name", "father", "class", "section", "phone", "roll",
	"fee_amount", "due_date", "attendance", "exam_date",
	"result", "school", "age",
}

// tagValues maps the recipient projection into placeholder values.
func tagValues(info *models.RecipientInfo) map[string]string {
	return map[string]string{
		"name":       info.Name,
		"father":     info.Father,
		"class":      info.Class,
		"section":    info.Section,
		"phone":      info.Phone,
		"roll":       info.Roll,
		"fee_amount": info.FeeAmount,
		"due_date":   info.DueDate,
		"attendance": info.Attendance,
		"exam_date":  info.ExamDate,
		"result":     info.Result,
		"school":     info.School,
		"age":        info.Age,
	}
}

// Render substitutes {{tag}} placeholders in content with the
// recipient's values. Unknown tags are left untouched so a typo in a
// template is visible in the delivered text rather than silently blank.
func Render(content string, info *models.RecipientInfo) string {
	if info == nil || !strings.Contains(content, "{{") {
		return content
	}

	values := tagValues(info)
	return tagPattern.ReplaceAllStringFunc(content, func(match string) string {
		tag := tagPattern.FindStringSubmatch(match)[1]
		if value, ok := values[tag]; ok {
			return value
		}
		return match
	})
}
