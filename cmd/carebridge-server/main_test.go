package main

import (
	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/domain/triage"
)

// The concrete services wired in runServer must satisfy the interfaces the
// triage graph consumes.
var (
	_ triage.PatientReader       = (*patient.Service)(nil)
	_ triage.CommunicationStore  = (*communication.Service)(nil)
	_ triage.CommunicationReader = (*communication.Service)(nil)
)
