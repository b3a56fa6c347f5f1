// pkg/model/college.go
package model

// College is the normalized record emitted for one institution.
// Nil pointers serialize as JSON null and mean "not reported".
type College struct {
	IPEDSID          string                 `json:"ipedsId"`
	Name             *string                `json:"name"`
	Alias            *string                `json:"alias"`
	Website          *string                `json:"website"`
	Location         Location               `json:"location"`
	Control          *int64                 `json:"control"`
	Sector           *int64                 `json:"sector"`
	Admissions       Admissions             `json:"admissions"`
	Enrollment       Enrollment             `json:"enrollment"`
	Diversity        Diversity              `json:"diversity"`
	Financials       Financials             `json:"financials"`
	Outcomes         Outcomes               `json:"outcomes"`
	Override         map[string]interface{} `json:"override"`
	StaticSource     string                 `json:"staticSource"`
	LastStaticUpdate string                 `json:"lastStaticUpdate"`
}

type Location struct {
	City   *string `json:"city"`
	State  *string `json:"state"`
	Zip    *string `json:"zip"`
	Locale *int64  `json:"locale"`
}

type Admissions struct {
	AcceptanceRate *float64   `json:"acceptanceRate"`
	SATRange       ScoreRange `json:"satRange"`
	ACTRange       ScoreRange `json:"actRange"`
}

// ScoreRange is a 25th/75th percentile pair
type ScoreRange struct {
	Min *int64 `json:"min"`
	Max *int64 `json:"max"`
}

type Enrollment struct {
	Undergrad *int64 `json:"undergrad"`
}

// Diversity holds fractions of total undergraduate enrollment
type Diversity struct {
	RaceEthnicityPct map[string]float64 `json:"raceEthnicityPct"`
	GenderPct        map[string]float64 `json:"genderPct"`
	PellPct          *float64           `json:"pellPct"`
}

type Financials struct {
	TuitionInState    *int64 `json:"tuitionInState"`
	TuitionOutOfState *int64 `json:"tuitionOutOfState"`
	FeesInState       *int64 `json:"feesInState"`
	FeesOutOfState    *int64 `json:"feesOutOfState"`
	AvgCostAttendance *int64 `json:"avgCostAttendance"`
}

type Outcomes struct {
	GradRate4yr *float64 `json:"gradRate4yr"`
	GradRate6yr *float64 `json:"gradRate6yr"`
}

// DisplayName returns the institution name or an empty string
func (c *College) DisplayName() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}
