package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// WorkflowState ist der Zustand einer Publikation im Open-Access-Workflow.
// Der leere Wert bedeutet "kein Workflow aktiv" und wird als NULL gespeichert.
type WorkflowState string

const (
	WorkflowStateNone                   WorkflowState = ""
	WorkflowStateDOIVerificationPending WorkflowState = "automatic DOI verification pending"
	WorkflowStateMetadataSearchPending  WorkflowState = "oa metadata search pending"
	WorkflowStateNoOADataFound          WorkflowState = "no open access data found"
	WorkflowStateMetadataSearchError    WorkflowState = "error during oa metadata search"
)

// ErrInvalidTransition is returned for state changes the transition table does not allow.
var ErrInvalidTransition = errors.New("invalid workflow state transition")

var workflowTransitions = map[WorkflowState][]WorkflowState{
	WorkflowStateNone:                   {WorkflowStateDOIVerificationPending, WorkflowStateMetadataSearchPending},
	WorkflowStateDOIVerificationPending: {WorkflowStateNone},
	WorkflowStateMetadataSearchPending:  {WorkflowStateNone, WorkflowStateNoOADataFound, WorkflowStateMetadataSearchError},
	WorkflowStateNoOADataFound:          {WorkflowStateNone},
	WorkflowStateMetadataSearchError:    {WorkflowStateNone},
}

// ParseWorkflowState lehnt unbekannte Zustände ab.
func ParseWorkflowState(s string) (WorkflowState, error) {
	state := WorkflowState(s)
	if _, ok := workflowTransitions[state]; !ok {
		return WorkflowStateNone, fmt.Errorf("unknown workflow state %q", s)
	}
	return state, nil
}

// CanTransition reports whether the table allows moving from s to next.
func (s WorkflowState) CanTransition(next WorkflowState) bool {
	for _, allowed := range workflowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal states need a manual reset or a new run before anything else happens.
func (s WorkflowState) Terminal() bool {
	return s == WorkflowStateNoOADataFound || s == WorkflowStateMetadataSearchError
}

// Value implementiert driver.Valuer.
func (s WorkflowState) Value() (driver.Value, error) {
	if s == WorkflowStateNone {
		return nil, nil
	}
	return string(s), nil
}

// Scan implementiert sql.Scanner.
func (s *WorkflowState) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*s = WorkflowStateNone
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into WorkflowState", value)
	}
	state, err := ParseWorkflowState(raw)
	if err != nil {
		return err
	}
	*s = state
	return nil
}
