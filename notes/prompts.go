package notes

const extractInstructions = `You extract clinical concepts from a single unstructured medical note given
inside <note> tags.

Capture every concept with one of these types:
- Patient: demographic identifiers such as id, age, sex, date of birth
- Condition: problems or symptoms noted but not confirmed as diagnoses
- Diagnosis: confirmed or billed diagnoses
- Medication: any mentioned medication
- Treatment: procedures, interventions, lifestyle advice
- Observation: vital signs, lab or imaging results, exam findings
- PlanAction: follow-ups, referrals, recommended tests or goals

Only fill "type" and "raw_text", copying the text exactly as written.`

const extractSchema = `{"concepts": [{"type": "Patient|Condition|Diagnosis|Medication|Treatment|Observation|PlanAction", "raw_text": "<text from the note>"}]}`

const planInstructions = `You decide which coding system to search for one clinical concept given
inside <concept> tags as JSON.

Use ICD for a Condition, Diagnosis or Treatment. Use RXNORM for a Medication.
For any other type set "system" to null.
Set "name" to the term to search for: the concept's wording, normalised to a
clinical term where obvious.`

const planSchema = `{"system": "ICD|RXNORM|null", "name": "<search term>"}`

const assembleInstructions = `You compile coded clinical concepts, given as JSON objects inside
<concepts> tags, into one structured note.

Place every concept in the list matching its type and keep its name, code and
system unchanged. Fill the patient block from the Patient concepts and
created_at from any date the concepts state. Use an empty list for a category
with no entries.`

const assembleSchema = `{
  "created_at": "<date or empty>",
  "patient": {"first_name": "", "last_name": "", "dob": "", "id": "", "gender": ""},
  "conditions": [CONCEPT], "diagnoses": [CONCEPT], "treatments": [CONCEPT],
  "medications": [CONCEPT], "observations": [CONCEPT], "plan_actions": [CONCEPT]
}
where CONCEPT is {"type": "", "raw_text": "", "name": "", "code": "", "system": ""}`

const summarizeInstructions = `You summarize a document given inside <document> tags.
Cover all key points, ideas and context in clear, professional prose.`

func noteInput(note string) string {
	return "<note>" + note + "</note>"
}

func documentInput(text string) string {
	return "<document>" + text + "</document>"
}
