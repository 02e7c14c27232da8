// Copyright 2025 Poiesic Systems
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

package core

// ConceptType is the high-level category of an extracted medical concept.
type ConceptType string

const (
	ConceptPatient     ConceptType = "Patient"
	ConceptCondition   ConceptType = "Condition"
	ConceptDiagnosis   ConceptType = "Diagnosis"
	ConceptMedication  ConceptType = "Medication"
	ConceptTreatment   ConceptType = "Treatment"
	ConceptObservation ConceptType = "Observation"
	ConceptPlanAction  ConceptType = "PlanAction"
)

// MedicalConcept is a concept extracted from a clinical note, optionally
// resolved against a coding system.
type MedicalConcept struct {
	Type    ConceptType `json:"type"`
	RawText string      `json:"raw_text"`
	Name    string      `json:"name,omitempty"`
	Code    string      `json:"code,omitempty"`
	System  CodeSystem  `json:"system,omitempty"`
}

// Resolve copies a lookup result onto the concept.
func (c MedicalConcept) Resolve(r *CodeResult) MedicalConcept {
	if r == nil {
		return c
	}
	c.Name = r.Name
	c.Code = r.Code
	c.System = r.System
	return c
}

// CodeLookupAction is the lookup plan chosen for a single concept. An empty
// System means no lookup applies.
type CodeLookupAction struct {
	System CodeSystem `json:"system,omitempty"`
	Name   string     `json:"name,omitempty"`
}

// PatientInformation holds the demographic block of a structured note.
type PatientInformation struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Id        string `json:"id,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// StructuredNote is the coded rendition of a free-text clinical note.
type StructuredNote struct {
	CreatedAt    string             `json:"created_at,omitempty"`
	Patient      PatientInformation `json:"patient"`
	Conditions   []MedicalConcept   `json:"conditions"`
	Diagnoses    []MedicalConcept   `json:"diagnoses"`
	Treatments   []MedicalConcept   `json:"treatments"`
	Medications  []MedicalConcept   `json:"medications"`
	Observations []MedicalConcept   `json:"observations"`
	PlanActions  []MedicalConcept   `json:"plan_actions"`
}
