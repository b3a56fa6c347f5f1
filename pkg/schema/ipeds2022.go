package schema

// IPEDS2022 is the field registry for the 2022 provisional/revised release
// (HD2022, ADM2022_RV, EF2022A_RV, SFA2122_RV, IC2022_AY, GR2022_RV,
// GR200_22_RV, IC2022_RV).
func IPEDS2022() Registry {
	return Registry{
		Vintage:   "2022",
		KeyColumn: "UNITID",
		Directory: DirectoryFields{
			Name:    "INSTNM",
			Alias:   "IALIAS",
			Website: "WEBADDR",
			City:    "CITY",
			State:   "STABBR",
			Zip:     "ZIP",
			Locale:  "LOCALE",
			Control: "CONTROL",
			Sector:  "SECTOR",
		},
		Admissions: AdmissionsFields{
			Admitted:  "ADMSSN",
			Applied:   "APPLCN",
			SATVerb25: "SATVR25",
			SATMath25: "SATMT25",
			SATVerb75: "SATVR75",
			SATMath75: "SATMT75",
			ACT25:     "ACTCM25",
			ACT75:     "ACTCM75",
		},
		Enrollment: EnrollmentFields{
			LevelColumn:    "EFALEVEL",
			UndergradLevel: 1,
			Total:          "EFTOTLT",
			Race: map[string]string{
				"black":          "EFBKAAT",
				"hispanic":       "EFHISPT",
				"white":          "EFWHITT",
				"asian":          "EFASIAT",
				"nativeHawaiian": "EFNHPIT",
				"americanIndian": "EFAIANT",
				"twoOrMore":      "EF2MORT",
				"nonResident":    "EFNRALT",
				"unknown":        "EFUNKNT",
			},
			Male:         []string{"EFTOTLM"},
			Female:       []string{"EFTOTLW"},
			GenderPrefix: "EF",
			MaleSuffix:   "M",
			FemaleSuffix: "W",
		},
		Aid: AidFields{
			PellColumn:  "UPGRNTN",
			PellPattern: "PELL",
			PellExclude: []string{"NPELLF", "NPELLM"},
		},
		Cost: CostFields{
			TuitionInState:    "TUITION1",
			TuitionOutOfState: "TUITION2",
			FeesInState:       "FEE1",
			FeesOutOfState:    "FEE2",
			AvgCost:           "CHG1AY3",
		},
		Grad4: GraduationFields{
			TypeColumn:     "GRTYPE",
			TypeValue:      3,
			CohortColumn:   "COHORT",
			CohortValue:    2,
			Completers:     "GRTOTLT",
			CohortPatterns: []string{"CHRT", "COHORT"},
			CohortExclude:  []string{"CHRTSTAT"},
		},
		Grad6: GraduationFields{
			TypeColumn:     "GRTYPE",
			TypeValue:      3,
			CohortColumn:   "COHORT",
			CohortValue:    2,
			Completers:     "GRTOTLT",
			CohortPatterns: []string{"CHRT", "COHORT"},
			CohortExclude:  []string{"CHRTSTAT"},
		},
	}
}
