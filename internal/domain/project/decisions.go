package project

// DecisionCounts is the program-level tally a project aggregates over.
type DecisionCounts struct {
	Total    int
	Pending  int
	Approved int
	Returned int
}

// CheckDecisions computes the aggregate evaluation outcome from per-program
// counts. It has no side effects.
//
// Partial approval is always mixed, never rejected: rejected requires that
// no program approved. A draft result means every program returned the
// project and the caller has to cancel the submission.
func CheckDecisions(c DecisionCounts) EvaluationState {
	switch {
	case c.Pending > 0:
		return EvaluationProgress
	case c.Approved == c.Total:
		return EvaluationApproved
	case c.Returned == c.Total:
		return EvaluationDraft
	case c.Approved == 0:
		return EvaluationRejected
	default:
		return EvaluationMixed
	}
}

// Counts returns the current program tally of the project.
func (p *Project) Counts() DecisionCounts {
	return DecisionCounts{
		Total:    p.TargetPrograms.Len(),
		Pending:  p.PendingPrograms.Len(),
		Approved: p.ApprovedPrograms.Len(),
		Returned: p.ReturnedPrograms.Len(),
	}
}

// CheckDecisions computes the aggregate outcome of the project's programs.
func (p *Project) CheckDecisions() EvaluationState {
	return CheckDecisions(p.Counts())
}
