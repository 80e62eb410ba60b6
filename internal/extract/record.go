package extract

// Record is the structured result of one extraction, either *PositionRecord or
// *CompetitorRecord. Every field is always serialized; absent values are null.
type Record interface {
	SchemaKind() SchemaKind
}

type EmploymentType string

const (
	EmploymentFullTime EmploymentType = "full_time"
	EmploymentPartTime EmploymentType = "part_time"
	EmploymentContract EmploymentType = "contract"
	EmploymentOther    EmploymentType = "other"
)

func (t EmploymentType) Valid() bool {
	switch t {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContract, EmploymentOther:
		return true
	}
	return false
}

// PositionRecord pre-fills the job position form.
// Salary fields are monthly whole yen; hourly fields are whole yen per hour.
type PositionRecord struct {
	Title          *string         `json:"title" jsonschema:"nullable" jsonschema_description:"Job title as shown on the posting"`
	EmploymentType *EmploymentType `json:"employmentType" jsonschema:"nullable,enum=full_time,enum=part_time,enum=contract,enum=other"`
	SalaryMin      *int64          `json:"salaryMin" jsonschema:"nullable,minimum=0" jsonschema_description:"Minimum monthly salary in yen"`
	SalaryMax      *int64          `json:"salaryMax" jsonschema:"nullable,minimum=0" jsonschema_description:"Maximum monthly salary in yen"`
	HourlyMin      *int64          `json:"hourlyMin" jsonschema:"nullable,minimum=0" jsonschema_description:"Minimum hourly wage in yen"`
	HourlyMax      *int64          `json:"hourlyMax" jsonschema:"nullable,minimum=0" jsonschema_description:"Maximum hourly wage in yen"`
	Description    *string         `json:"description" jsonschema:"nullable"`
	Requirements   *string         `json:"requirements" jsonschema:"nullable"`
	Benefits       *string         `json:"benefits" jsonschema:"nullable"`
	WorkingHours   *string         `json:"workingHours" jsonschema:"nullable"`
	Holidays       *string         `json:"holidays" jsonschema:"nullable"`
}

func (*PositionRecord) SchemaKind() SchemaKind { return SchemaPosition }

// CompetitorRecord describes another clinic's recruiting page with one
// condition per distinct role and employment form.
type CompetitorRecord struct {
	ClinicName *string     `json:"clinicName" jsonschema:"nullable"`
	Address    *string     `json:"address" jsonschema:"nullable"`
	Website    *string     `json:"website" jsonschema:"nullable"`
	Conditions []Condition `json:"conditions"`
}

func (*CompetitorRecord) SchemaKind() SchemaKind { return SchemaCompetitor }

type Condition struct {
	JobTitle       *string         `json:"jobTitle" jsonschema:"nullable"`
	EmploymentType *EmploymentType `json:"employmentType" jsonschema:"nullable,enum=full_time,enum=part_time,enum=contract,enum=other"`
	SalaryMin      *int64          `json:"salaryMin" jsonschema:"nullable,minimum=0"`
	SalaryMax      *int64          `json:"salaryMax" jsonschema:"nullable,minimum=0"`
	HourlyMin      *int64          `json:"hourlyMin" jsonschema:"nullable,minimum=0"`
	HourlyMax      *int64          `json:"hourlyMax" jsonschema:"nullable,minimum=0"`
	Benefits       *string         `json:"benefits" jsonschema:"nullable"`
	WorkingHours   *string         `json:"workingHours" jsonschema:"nullable"`
	Holidays       *string         `json:"holidays" jsonschema:"nullable"`
	Source         *string         `json:"source" jsonschema:"nullable" jsonschema_description:"Where on the page the condition was found"`
}
