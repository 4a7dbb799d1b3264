package models

// RecipientInfo is the narrow read model the recipient directory
// resolves a contact into. Student/staff records belong to the data
// layer; it maintains the recipient_directory view this model reads,
// and only this projection crosses into dispatch.
type RecipientInfo struct {
	ID       string `gorm:"column:id;primaryKey" json:"id"`
	TenantID string `gorm:"column:tenant_id" json:"tenant_id"`
	Name     string `gorm:"column:name" json:"name"`
	Phone    string `gorm:"column:phone" json:"phone"`
	Email    string `gorm:"column:email" json:"email"`

	// Template substitution fields.
	Father     string `gorm:"column:father" json:"father,omitempty"`
	Class      string `gorm:"column:class" json:"class,omitempty"`
	Section    string `gorm:"column:section" json:"section,omitempty"`
	Roll       string `gorm:"column:roll" json:"roll,omitempty"`
	Age        string `gorm:"column:age" json:"age,omitempty"`
	FeeAmount  string `gorm:"column:fee_amount" json:"fee_amount,omitempty"`
	DueDate    string `gorm:"column:due_date" json:"due_date,omitempty"`
	Attendance string `gorm:"column:attendance" json:"attendance,omitempty"`
	ExamDate   string `gorm:"column:exam_date" json:"exam_date,omitempty"`
	Result     string `gorm:"column:result" json:"result,omitempty"`
	School     string `gorm:"column:school" json:"school,omitempty"`
}

// TableName points at the read-only view maintained by the data layer.
func (RecipientInfo) TableName() string {
	return "recipient_directory"
}
