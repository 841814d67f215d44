package reporting

import "math"

// Aggregate fills the totals of st from rows. Minutes are the rounded sum of
// call durations.
func Aggregate(agentID string, rows []ConversationRow) Stats {
	st := Stats{AgentID: agentID, Conversations: rows, TotalCalls: len(rows)}
	if st.Conversations == nil {
		st.Conversations = []ConversationRow{}
	}
	secs := 0
	for _, r := range rows {
		secs += r.CallDurationSecs
		switch r.CallSuccessful {
		case ResultSuccess:
			st.Exitosas++
		case ResultFailure:
			st.Fallidas++
		case ResultUnknown:
			st.Desconocidas++
		}
	}
	st.TotalMinutes = int(math.Round(float64(secs) / 60))
	return st
}
