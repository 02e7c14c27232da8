package search

import (
	"strconv"
	"strings"

	"github.com/poiesic/clinrag/core"
)

const variantsInstructions = `You rewrite a question so that its paraphrases retrieve complementary
evidence from a clinical document collection when embedded.

Given one question inside <question> tags, write 4 rewrites, in order:
1. a paraphrase using synonyms
2. a question focused on its core sub-aspect
3. an expansion with helpful context, such as spelled-out acronyms
4. a single explicit query replacing any multi-step reasoning

Do not answer the question. Keep its intent, entities, constraints and time
periods. Each rewrite is 5 to 25 words.`

const variantsSchema = `{"variants": ["<rewrite>", "..."]}`

const answerInstructions = `You answer questions using only the evidence segments provided.

The input holds the question inside <question> tags and the evidence inside
<segments> tags, each segment as <segment id="N">...</segment>.

Write one to three clear sentences. Use only information from the segments.
If they do not contain enough information, answer exactly:
"I don't have sufficient information to answer."
Cite a segment by writing its id in square brackets in the answer, like [12].
Every id in "citations" must appear in the answer and every id in the answer
must appear in "citations".`

const answerSchema = `{"answer": "<answer text>", "citations": ["<segment id>", "..."]}`

const insufficientAnswer = "I don't have sufficient information to answer."

func variantsInput(question string) string {
	return "<question>" + question + "</question>"
}

func answerInput(question string, candidates []core.Candidate) string {
	var b strings.Builder
	b.WriteString("<question>")
	b.WriteString(question)
	b.WriteString("</question>\n<segments>")
	for _, c := range candidates {
		b.WriteString(`<segment id="`)
		b.WriteString(strconv.FormatUint(uint64(c.Segment.Id), 10))
		b.WriteString(`" document="`)
		b.WriteString(strconv.FormatUint(uint64(c.Segment.DocumentId), 10))
		b.WriteString(`">`)
		b.WriteString(c.Segment.HydratedText())
		b.WriteString("</segment>")
	}
	b.WriteString("</segments>")
	return b.String()
}
