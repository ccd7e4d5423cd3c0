package pipeline

import "fmt"

// Action names one pipeline step. Every status change goes through Next.
type Action string

const (
	ActionCompleteAssessment  Action = "complete_assessment"
	ActionScheduleOrientation Action = "schedule_orientation"
	ActionCompleteOrientation Action = "complete_orientation"
	ActionIssueBusinessForm   Action = "issue_business_form"
	ActionSubmitBusinessForm  Action = "submit_business_form"
	ActionScheduleInterview   Action = "schedule_interview"
	ActionApprove             Action = "approve"
	ActionRejectInterview     Action = "reject_interview"
	ActionIssueAcceptance     Action = "issue_acceptance"
	ActionAcceptOffer         Action = "accept_offer"
	ActionRecordPayment       Action = "record_payment"
	ActionCreateAccount       Action = "create_account"
	ActionReject              Action = "reject"
)

// transitions maps action -> source status -> destination status.
var transitions = map[Action]map[Status]Status{
	ActionCompleteAssessment:  {StatusAssessmentPending: StatusAssessmentCompleted},
	ActionScheduleOrientation: {StatusAssessmentCompleted: StatusOrientationScheduled},
	ActionCompleteOrientation: {StatusOrientationScheduled: StatusOrientationCompleted},
	ActionIssueBusinessForm:   {StatusOrientationCompleted: StatusBusinessFormPending},
	ActionSubmitBusinessForm:  {StatusBusinessFormPending: StatusBusinessFormSubmitted},
	ActionScheduleInterview:   {StatusBusinessFormSubmitted: StatusInterviewScheduled},
	ActionApprove:             {StatusInterviewScheduled: StatusApproved},
	ActionRejectInterview:     {StatusInterviewScheduled: StatusRejected},
	ActionIssueAcceptance:     {StatusApproved: StatusAcceptancePending},
	ActionAcceptOffer:         {StatusAcceptancePending: StatusPaymentPending},
	ActionRecordPayment:       {StatusPaymentPending: StatusPaymentCompleted},
	ActionCreateAccount:       {StatusPaymentCompleted: StatusAccountCreated},
	ActionReject:              rejectEdges(),
}

func rejectEdges() map[Status]Status {
	edges := make(map[Status]Status, len(Statuses))
	for _, s := range Statuses {
		if !s.Terminal() {
			edges[s] = StatusRejected
		}
	}
	return edges
}

// Next returns the status action leads to from the given status, or
// ErrInvalidTransition when the pair is not in the table.
func Next(action Action, from Status) (Status, error) {
	to, ok := transitions[action][from]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Allowed lists the actions that may start from s.
func Allowed(s Status) []Action {
	var out []Action
	for _, a := range actionOrder {
		if _, ok := transitions[a][s]; ok {
			out = append(out, a)
		}
	}
	return out
}

var actionOrder = []Action{
	ActionCompleteAssessment,
	ActionScheduleOrientation,
	ActionCompleteOrientation,
	ActionIssueBusinessForm,
	ActionSubmitBusinessForm,
	ActionScheduleInterview,
	ActionApprove,
	ActionRejectInterview,
	ActionIssueAcceptance,
	ActionAcceptOffer,
	ActionRecordPayment,
	ActionCreateAccount,
	ActionReject,
}
