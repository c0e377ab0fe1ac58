package sop

// TargetKind says how a transition picks the next speaker.
type TargetKind int

const (
	// ToRole hands the turn to Target.Role.
	ToRole TargetKind = iota
	// ToHandoff follows the hand-off named in the signal.
	ToHandoff
	// ToSelf re-invokes the role that just spoke.
	ToSelf
	// ToTerminate ends the run.
	ToTerminate
)

// Target is the right-hand side of a transition.
type Target struct {
	Kind TargetKind
	Role string
}

// Key is the left-hand side of a transition.
type Key struct {
	Role   string
	Status Status
}

// Table maps (speaker, status) to the next step. Pairs missing from the
// table are unmatched.
type Table map[Key]Target

// DefaultTable is the standard operating procedure.
func DefaultTable() Table {
	toManager := Target{Kind: ToRole, Role: Manager}
	return Table{
		{Manager, StatusHandoff}: {Kind: ToHandoff},
		{Manager, StatusFinal}:   {Kind: ToTerminate},

		{IntentClassifier, StatusNeedsData}:  {Kind: ToRole, Role: SqlSpecialist},
		{IntentClassifier, StatusClassified}: toManager,

		{SqlSpecialist, StatusSuccess}: toManager,
		{SqlSpecialist, StatusRetry}:   {Kind: ToSelf},

		{DataAnalyst, StatusDone}:      toManager,
		{DataAnalyst, StatusNeedsMore}: toManager,

		{ReportAnalyst, StatusDone}:      toManager,
		{ReportAnalyst, StatusNeedsMore}: toManager,

		{MultiDomainAnalyst, StatusDone}: toManager,
	}
}
