package project

// EvaluationState tracks the approval round of a project across its target programs.
type EvaluationState string

const (
	EvaluationDraft    EvaluationState = "draft"
	EvaluationProgress EvaluationState = "progress"
	EvaluationApproved EvaluationState = "approved"
	EvaluationMixed    EvaluationState = "mixed"
	EvaluationRejected EvaluationState = "rejected"
)

// IsValid reports whether s is a known evaluation state.
func (s EvaluationState) IsValid() bool {
	switch s {
	case EvaluationDraft, EvaluationProgress, EvaluationApproved, EvaluationMixed, EvaluationRejected:
		return true
	default:
		return false
	}
}

// PublicationState tracks visibility to students and assignment progress.
type PublicationState string

const (
	PublicationIneligible PublicationState = "ineligible"
	PublicationPublished  PublicationState = "published"
	PublicationApplied    PublicationState = "applied"
	PublicationAssigned   PublicationState = "assigned"
	PublicationCompleted  PublicationState = "completed"
	PublicationDropped    PublicationState = "dropped"
)

// IsValid reports whether s is a known publication state.
func (s PublicationState) IsValid() bool {
	switch s {
	case PublicationIneligible, PublicationPublished, PublicationApplied,
		PublicationAssigned, PublicationCompleted, PublicationDropped:
		return true
	default:
		return false
	}
}

// AcceptsApplications reports whether students may send applications.
func (s PublicationState) AcceptsApplications() bool {
	return s == PublicationPublished || s == PublicationApplied
}

// State is the single displayed state derived from evaluation and publication.
type State string

const (
	StateDraft     State = "draft"
	StatePending   State = "pending"
	StateMixed     State = "mixed"
	StateRejected  State = "rejected"
	StatePublished State = "published"
	StateApplied   State = "applied"
	StateAssigned  State = "assigned"
	StateCompleted State = "completed"
	StateGraded    State = "graded"
)

// IsValid reports whether s is a known project state.
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StatePending, StateMixed, StateRejected, StatePublished,
		StateApplied, StateAssigned, StateCompleted, StateGraded:
		return true
	default:
		return false
	}
}

// AvailabilityState is the per-program submission state.
type AvailabilityState string

const (
	AvailabilityWaiting  AvailabilityState = "waiting"
	AvailabilityPending  AvailabilityState = "pending"
	AvailabilityApproved AvailabilityState = "approved"
	AvailabilityRejected AvailabilityState = "rejected"
	AvailabilityReturned AvailabilityState = "returned"
)

// IsValid reports whether s is a known availability state.
func (s AvailabilityState) IsValid() bool {
	switch s {
	case AvailabilityWaiting, AvailabilityPending, AvailabilityApproved,
		AvailabilityRejected, AvailabilityReturned:
		return true
	default:
		return false
	}
}

// IsUndecided reports whether no supervisor has acted on the submission yet.
func (s AvailabilityState) IsUndecided() bool {
	return s == AvailabilityWaiting || s == AvailabilityPending
}

// WorkType is the kind of academic work a project counts as.
type WorkType string

const (
	WorkCourse WorkType = "cw"   // course work
	WorkFinal  WorkType = "fqw"  // final qualifying work
	WorkBoth   WorkType = "both" // either
)

// IsValid reports whether t is a known work type.
func (t WorkType) IsValid() bool {
	return t == WorkCourse || t == WorkFinal || t == WorkBoth
}

// ShortLabel returns the label used in approval record names.
func (t WorkType) ShortLabel() string {
	switch t {
	case WorkCourse:
		return "КР"
	case WorkFinal:
		return "ВКР"
	case WorkBoth:
		return "КР/ВКР"
	default:
		return ""
	}
}

// Format of the project.
type Format string

const (
	FormatResearch Format = "research"
	FormatProject  Format = "project"
	FormatStartup  Format = "startup"
)

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	return f == FormatResearch || f == FormatProject || f == FormatStartup
}

// Language the project is carried out in.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageRussian Language = "ru"
)

// IsValid reports whether l is a known language.
func (l Language) IsValid() bool {
	return l == LanguageEnglish || l == LanguageRussian
}
