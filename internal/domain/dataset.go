package domain

// Intent classifies a synthetic case's task family.
type Intent string

const (
	IntentQuery     Intent = "QUERY"
	IntentAnalytics Intent = "ANALYTICS"
	IntentModeling  Intent = "MODELING"
	IntentImport    Intent = "IMPORT"
	IntentQA        Intent = "QA"
)

// Difficulty is the case's escalation level, L1 (easiest) to L4 (hardest).
type Difficulty string

const (
	DifficultyL1 Difficulty = "L1"
	DifficultyL2 Difficulty = "L2"
	DifficultyL3 Difficulty = "L3"
	DifficultyL4 Difficulty = "L4"
)

var difficultyCycle = []Difficulty{DifficultyL1, DifficultyL2, DifficultyL3, DifficultyL4}

// DifficultyForIndex cycles the case index through the four levels.
func DifficultyForIndex(i int) Difficulty {
	return difficultyCycle[i%len(difficultyCycle)]
}

// CaseLineage records how a case was generated.
type CaseLineage struct {
	SeedIndex      int    `json:"seed_index"`
	Intent         Intent `json:"intent"`
	Difficulty     Difficulty `json:"difficulty"`
	IsHardNegative bool   `json:"is_hard_negative"`
}

// SyntheticCase is one generated evaluation item.
type SyntheticCase struct {
	CaseID     string      `json:"case_id"`
	Question   string      `json:"question"`
	Verifier   string      `json:"verifier"`
	Intent     Intent      `json:"intent"`
	Difficulty Difficulty  `json:"difficulty"`
	Lineage    CaseLineage `json:"lineage"`
}

// SchemaSnapshot is the minimal graph-schema shape cases are templated from.
type SchemaSnapshot struct {
	Labels    []string `json:"labels"`
	Relations []string `json:"relations"`
}

// SynthesisReport summarizes how a dataset was produced.
type SynthesisReport struct {
	RequestedSize     int            `json:"requested_size"`
	FinalSize         int            `json:"final_size"`
	Intents           []Intent       `json:"intents"`
	Labels            []string       `json:"labels"`
	Relations         []string       `json:"relations"`
	HardNegativeCount int            `json:"hard_negative_count"`
	SplitSizes        map[string]int `json:"split_sizes"`
}

// SyntheticDataset is the full generated dataset plus its train/val/test
// partition.
type SyntheticDataset struct {
	Name            string          `json:"name"`
	TaskDesc        string          `json:"task_desc"`
	Cases           []SyntheticCase `json:"cases"`
	TrainCases      []SyntheticCase `json:"train_cases"`
	ValCases        []SyntheticCase `json:"val_cases"`
	TestCases       []SyntheticCase `json:"test_cases"`
	SchemaSnapshot  SchemaSnapshot  `json:"schema_snapshot"`
	SynthesisReport SynthesisReport `json:"synthesis_report"`
}
