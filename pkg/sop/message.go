package sop

// Role names. These strings are the wire contract between prompts, the
// transcript and the router.
const (
	Manager            = "Manager"
	IntentClassifier   = "intention_analyst"
	SqlSpecialist      = "excel_sql_specialist"
	DataAnalyst        = "data_analyst"
	ReportAnalyst      = "report_analyst"
	MultiDomainAnalyst = "multi_domain_analyst"

	// User is the source of messages typed by the person chatting.
	User = "user"
)

// MinimalTeam and ExtendedTeam list the members of each team profile.
var (
	MinimalTeam  = []string{Manager, IntentClassifier, SqlSpecialist}
	ExtendedTeam = []string{Manager, IntentClassifier, SqlSpecialist, DataAnalyst, ReportAnalyst, MultiDomainAnalyst}
)

// Kind tells chat messages apart from tool traffic.
type Kind string

const (
	KindText       Kind = "text"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
)

// Message is one transcript entry. Source is "user" or a role name.
type Message struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	Kind    Kind   `json:"kind"`
}

// IsChat reports whether the message counts toward the message cap and can
// be a routing input.
func (m Message) IsChat() bool {
	return m.Kind == "" || m.Kind == KindText
}

// ChatMessages returns only the chat messages, in order.
func ChatMessages(transcript []Message) []Message {
	out := make([]Message, 0, len(transcript))
	for _, m := range transcript {
		if m.IsChat() {
			out = append(out, m)
		}
	}
	return out
}
