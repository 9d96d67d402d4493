// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import "fmt"

// State is a step of the reply state machine. States run strictly in
// declaration order; each either continues or ends the run.
type State int

const (
	StateStart State = iota
	StateDedup
	StateAccountLoad
	StateFetch
	StateLoopCheck
	StateAckCheck
	StateThreadRate
	StateGuardPre
	StateClassify
	StateEnrich
	StateQuotaCheck
	StateLoadConfig
	StateGenerate
	StateQualityGate
	StateRegenerate
	StateGuardPost
	StateAutoSendCheck
	StateSend
	StateMarkReplied

	stateTerminal
)

var stateNames = [...]string{
	StateStart:         "start",
	StateDedup:         "dedup",
	StateAccountLoad:   "account_load",
	StateFetch:         "fetch",
	StateLoopCheck:     "loop_check",
	StateAckCheck:      "ack_check",
	StateThreadRate:    "thread_rate",
	StateGuardPre:      "guard_pre",
	StateClassify:      "classify",
	StateEnrich:        "enrich",
	StateQuotaCheck:    "quota_check",
	StateLoadConfig:    "load_config",
	StateGenerate:      "generate",
	StateQualityGate:   "quality_gate",
	StateRegenerate:    "regenerate",
	StateGuardPost:     "guard_post",
	StateAutoSendCheck: "auto_send_check",
	StateSend:          "send",
	StateMarkReplied:   "mark_replied",
	stateTerminal:      "terminal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result reasons. Loop detector reasons from package filter are passed
// through unchanged.
const (
	ReasonInvalidRef        = "invalid_ref"
	ReasonAlreadyProcessed  = "already_processed"
	ReasonAlreadyReplied    = "already_replied"
	ReasonAccountNotFound   = "account_not_found"
	ReasonAccountLoadFailed = "account_load_failed"
	ReasonAccountInactive   = "account_inactive"
	ReasonFetchFailed       = "fetch_failed"
	ReasonAcknowledgment    = "acknowledgment"
	ReasonThreadRateLimited = "thread_rate_limited"
	ReasonHumanReplied      = "human_replied"
	ReasonQuotaExceeded     = "quota_exceeded"
	ReasonGenerationFailed  = "generation_failed"
	ReasonAutoSendDisabled  = "auto_send_disabled"
	ReasonSendFailed        = "send_failed"
	ReasonSent              = "sent"
	ReasonInternalError     = "internal_error"
	ReasonQualityGatePrefix = "quality_gate_failed:"
)

// QualityGateFailed builds the escalation reason for a twice-failed reply.
func QualityGateFailed(reason string) string {
	return ReasonQualityGatePrefix + reason
}
