package app

// CLIOperation tracks a CLI invocation that may mutate local state.
// Operations are created in memory with ID=0. Only mutating commands
// persist them (giving them an auto-increment ID from the database).
type CLIOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

// NewCLIOperation creates a new in-memory operation record.
func NewCLIOperation(operation, parameters string) *CLIOperation {
	return &CLIOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *CLIOperation) Persisted() bool {
	return op.ID != 0
}
