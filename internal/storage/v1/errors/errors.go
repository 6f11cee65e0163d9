// Package errors provides typed errors for the storage layer.
package errors

import (
	"fmt"
)

type (
	StatementPSQLError struct {
		Err error
	}
	ExecutionPSQLError struct {
		Err error
	}
	ScanningPSQLError struct {
		Err error
	}
	ContextTimeoutExceededError struct {
		Err error
	}
	// NotFoundError covers missing accounts, requests, bonuses and claims.
	NotFoundError struct {
		Err error
		ID  string
	}
	AlreadyExistsError struct {
		Err error
		ID  string
	}
	// AlreadyProcessedError is returned when a terminal-status request is
	// approved or rejected a second time. Status carries the terminal status
	// the request already holds.
	AlreadyProcessedError struct {
		ID     string
		Status string
	}
	// InsufficientFundsError is returned when an adjustment would drive a
	// balance negative. The check happens under the account row lock.
	InsufficientFundsError struct {
		Available int64
		Required  int64
	}
)

func (e *StatementPSQLError) Error() string {
	return fmt.Sprintf("%s: could not compile", e.Err.Error())
}

func (e *ExecutionPSQLError) Error() string {
	return fmt.Sprintf("%s: could not execute", e.Err.Error())
}

func (e *ScanningPSQLError) Error() string {
	return fmt.Sprintf("%s: could not scan", e.Err.Error())
}

func (e *ContextTimeoutExceededError) Error() string {
	return fmt.Sprintf("%s: context timeout exceeded", e.Err.Error())
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.ID)
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: already exists", e.ID)
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("%s: already processed with status %s", e.ID, e.Status)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, required %d", e.Available, e.Required)
}
