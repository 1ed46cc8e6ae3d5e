package policy

// Evaluator performs pure recording decisions for one application.
type Evaluator struct {
	mode  RecordMode
	names NameList
}

// NewEvaluator builds a deterministic, side-effect free evaluator.
func NewEvaluator(snap *Snapshot) Evaluator {
	if snap == nil {
		return Evaluator{mode: ModeNone}
	}
	return Evaluator{
		mode:  snap.Mode,
		names: snap.Names,
	}
}

// Evaluate decides whether the stream may be recorded under the policy.
func (e Evaluator) Evaluate(input Input) Decision {
	switch e.mode {
	case ModeAll:
		return Decision{Action: ActionRecord, Reason: "recording all streams"}
	case ModeAllow:
		if e.names.Matches(input.StreamName) {
			return Decision{Action: ActionRecord, Reason: "stream name allowed"}
		}
		return Decision{Action: ActionSkip, Reason: "stream name not in allow list"}
	case ModeDeny:
		if e.names.Matches(input.StreamName) {
			return Decision{Action: ActionSkip, Reason: "stream name denied"}
		}
		return Decision{Action: ActionRecord, Reason: "stream name not in deny list"}
	case ModeSourceOnly:
		if input.IsTranscoderOutput {
			return Decision{Action: ActionSkip, Reason: "transcoder output"}
		}
		return Decision{Action: ActionRecord, Reason: "source stream"}
	case ModeTranscoderOnly:
		if input.IsTranscoderOutput {
			return Decision{Action: ActionRecord, Reason: "transcoder output"}
		}
		return Decision{Action: ActionSkip, Reason: "source stream"}
	case ModeNone:
		return Decision{Action: ActionSkip, Reason: "recording disabled"}
	default:
		return Decision{Action: ActionSkip, Reason: "unknown record mode"}
	}
}

// Mode returns the mode the evaluator was built with.
func (e Evaluator) Mode() RecordMode {
	return e.mode
}
