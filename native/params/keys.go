package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
	// ParamsKeyCredit stores the scoring policy overrides.
	ParamsKeyCredit = "credit/params"
	// ParamsKeyLending stores the pool admission limit overrides.
	ParamsKeyLending = "lending/params"
)
